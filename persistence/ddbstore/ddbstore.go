// Package ddbstore implements persistence.SessionSync against Amazon
// DynamoDB. Each session/scope owns one logical item group: a "latest"
// item holding the current snapshot and a monotonically numbered "history"
// item per Save call, mirroring the filestore layout in a single table.
package ddbstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/agentrt/agentrt/persistence"
)

// Store is a persistence.SessionSync backed by a DynamoDB table. The table
// must have a partition key "pk" (string) and sort key "sk" (string), both
// strings; New does not create the table.
type Store struct {
	client    *dynamodb.Client
	tableName string
}

// New constructs a Store against tableName using client.
func New(client *dynamodb.Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

type item struct {
	PK      string `dynamodbav:"pk"`
	SK      string `dynamodbav:"sk"`
	Payload string `dynamodbav:"payload"`
}

func partitionKey(sessionID, scope string) string {
	return fmt.Sprintf("session#%s#%s", sessionID, scope)
}

// Load implements persistence.SessionSync.
func (s *Store) Load(ctx context.Context, sessionID, scope string) (*persistence.Snapshot, error) {
	if !persistence.ValidID(sessionID) || !persistence.ValidID(scope) {
		return nil, fmt.Errorf("ddbstore: invalid sessionId/scope")
	}
	key, err := attributevalue.MarshalMap(map[string]string{
		"pk": partitionKey(sessionID, scope),
		"sk": "latest",
	})
	if err != nil {
		return nil, fmt.Errorf("ddbstore: marshal key: %w", err)
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("ddbstore: get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, persistence.ErrSnapshotNotFound
	}
	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("ddbstore: unmarshal item: %w", err)
	}
	var snap persistence.Snapshot
	if err := json.Unmarshal([]byte(it.Payload), &snap); err != nil {
		return nil, fmt.Errorf("ddbstore: decode snapshot: %w", err)
	}
	return &snap, nil
}

// Save implements persistence.SessionSync. It writes a new history item
// whose sort key embeds a monotonic counter read from (and updated in) a
// sentinel "counter" item via an atomic ADD update, then overwrites the
// "latest" item.
func (s *Store) Save(ctx context.Context, sessionID, scope string, snap *persistence.Snapshot) error {
	if !persistence.ValidID(sessionID) || !persistence.ValidID(scope) {
		return fmt.Errorf("ddbstore: invalid sessionId/scope")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("ddbstore: encode snapshot: %w", err)
	}
	pk := partitionKey(sessionID, scope)

	next, err := s.incrementCounter(ctx, pk)
	if err != nil {
		return err
	}

	historyItem, err := attributevalue.MarshalMap(item{PK: pk, SK: fmt.Sprintf("history#%05d", next), Payload: string(payload)})
	if err != nil {
		return fmt.Errorf("ddbstore: marshal history item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tableName), Item: historyItem}); err != nil {
		return fmt.Errorf("ddbstore: put history item: %w", err)
	}

	latestItem, err := attributevalue.MarshalMap(item{PK: pk, SK: "latest", Payload: string(payload)})
	if err != nil {
		return fmt.Errorf("ddbstore: marshal latest item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tableName), Item: latestItem}); err != nil {
		return fmt.Errorf("ddbstore: put latest item: %w", err)
	}
	return nil
}

// incrementCounter atomically increments and returns the per-partition
// history counter, initializing it to 1 on first use.
func (s *Store) incrementCounter(ctx context.Context, pk string) (int, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"pk": pk, "sk": "counter"})
	if err != nil {
		return 0, fmt.Errorf("ddbstore: marshal counter key: %w", err)
	}
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              key,
		UpdateExpression: aws.String("ADD #v :one"),
		ExpressionAttributeNames: map[string]string{
			"#v": "value",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var apiErr *smithy.GenericAPIError
		if errors.As(err, &apiErr) {
			return 0, fmt.Errorf("ddbstore: increment counter (%s): %w", apiErr.Code, err)
		}
		return 0, fmt.Errorf("ddbstore: increment counter: %w", err)
	}
	var counter struct {
		Value int `dynamodbav:"value"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &counter); err != nil {
		return 0, fmt.Errorf("ddbstore: unmarshal counter: %w", err)
	}
	return counter.Value, nil
}
