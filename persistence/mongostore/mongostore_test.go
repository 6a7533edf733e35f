package mongostore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/agentrt/agentrt/agent"
	"github.com/agentrt/agentrt/persistence"
)

func TestLatestDoc_RoundTripsThroughBSON(t *testing.T) {
	doc := latestDoc{
		SessionID: "sess1",
		Scope:     "default",
		Snapshot: persistence.Snapshot{
			SchemaVersion: persistence.SchemaVersion,
			Messages: []*agent.Message{
				{Role: agent.RoleUser, Content: []agent.ContentBlock{agent.TextBlock{Text: "hi"}}},
			},
		},
	}

	data, err := bson.Marshal(doc)
	require.NoError(t, err)

	var out latestDoc
	require.NoError(t, bson.Unmarshal(data, &out))
	require.Equal(t, "sess1", out.SessionID)
	require.Equal(t, "default", out.Scope)
	require.Equal(t, persistence.SchemaVersion, out.Snapshot.SchemaVersion)
}

func TestHistoryDoc_RoundTripsThroughBSONWithTimestamp(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := historyDoc{
		SessionID: "sess1",
		Scope:     "default",
		SavedAt:   now,
		Snapshot:  persistence.Snapshot{SchemaVersion: persistence.SchemaVersion},
	}

	data, err := bson.Marshal(doc)
	require.NoError(t, err)

	var out historyDoc
	require.NoError(t, bson.Unmarshal(data, &out))
	require.True(t, out.SavedAt.Equal(now))
}
