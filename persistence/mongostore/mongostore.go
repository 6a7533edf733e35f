// Package mongostore implements persistence.SessionSync against MongoDB:
// one document per session/scope in a "latest" collection, plus an
// append-only "history" collection carrying every saved snapshot in order.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentrt/agentrt/persistence"
)

// Store is a persistence.SessionSync backed by MongoDB collections.
type Store struct {
	latest  *mongo.Collection
	history *mongo.Collection
}

// New constructs a Store using the "session_latest" and "session_history"
// collections of db.
func New(db *mongo.Database) *Store {
	return &Store{
		latest:  db.Collection("session_latest"),
		history: db.Collection("session_history"),
	}
}

type latestDoc struct {
	SessionID string              `bson:"sessionId"`
	Scope     string              `bson:"scope"`
	Snapshot  persistence.Snapshot `bson:"snapshot"`
}

type historyDoc struct {
	SessionID string              `bson:"sessionId"`
	Scope     string              `bson:"scope"`
	SavedAt   time.Time           `bson:"savedAt"`
	Snapshot  persistence.Snapshot `bson:"snapshot"`
}

// Load implements persistence.SessionSync.
func (s *Store) Load(ctx context.Context, sessionID, scope string) (*persistence.Snapshot, error) {
	if !persistence.ValidID(sessionID) || !persistence.ValidID(scope) {
		return nil, fmt.Errorf("mongostore: invalid sessionId/scope")
	}
	var doc latestDoc
	err := s.latest.FindOne(ctx, bson.M{"sessionId": sessionID, "scope": scope}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, persistence.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: find latest: %w", err)
	}
	return &doc.Snapshot, nil
}

// Save implements persistence.SessionSync.
func (s *Store) Save(ctx context.Context, sessionID, scope string, snap *persistence.Snapshot) error {
	if !persistence.ValidID(sessionID) || !persistence.ValidID(scope) {
		return fmt.Errorf("mongostore: invalid sessionId/scope")
	}
	if _, err := s.history.InsertOne(ctx, historyDoc{SessionID: sessionID, Scope: scope, SavedAt: time.Now(), Snapshot: *snap}); err != nil {
		return fmt.Errorf("mongostore: insert history: %w", err)
	}
	upsert := true
	_, err := s.latest.ReplaceOne(ctx,
		bson.M{"sessionId": sessionID, "scope": scope},
		latestDoc{SessionID: sessionID, Scope: scope, Snapshot: *snap},
		&options.ReplaceOptions{Upsert: &upsert},
	)
	if err != nil {
		return fmt.Errorf("mongostore: replace latest: %w", err)
	}
	return nil
}
