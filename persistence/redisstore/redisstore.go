// Package redisstore implements persistence.SessionSync against Redis: the
// latest snapshot lives under a single key, and each Save additionally
// LPUSHes the encoded snapshot onto a history list for that session/scope.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/agentrt/agentrt/persistence"
)

// Store is a persistence.SessionSync backed by Redis.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// New constructs a Store using rdb, namespacing every key under prefix
// (e.g. "agentrt:").
func New(rdb *redis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) latestKey(sessionID, scope string) string {
	return fmt.Sprintf("%ssession:%s:%s:latest", s.prefix, sessionID, scope)
}

func (s *Store) historyKey(sessionID, scope string) string {
	return fmt.Sprintf("%ssession:%s:%s:history", s.prefix, sessionID, scope)
}

// Load implements persistence.SessionSync.
func (s *Store) Load(ctx context.Context, sessionID, scope string) (*persistence.Snapshot, error) {
	if !persistence.ValidID(sessionID) || !persistence.ValidID(scope) {
		return nil, fmt.Errorf("redisstore: invalid sessionId/scope")
	}
	data, err := s.rdb.Get(ctx, s.latestKey(sessionID, scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get latest: %w", err)
	}
	var snap persistence.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("redisstore: decode snapshot: %w", err)
	}
	return &snap, nil
}

// Save implements persistence.SessionSync.
func (s *Store) Save(ctx context.Context, sessionID, scope string, snap *persistence.Snapshot) error {
	if !persistence.ValidID(sessionID) || !persistence.ValidID(scope) {
		return fmt.Errorf("redisstore: invalid sessionId/scope")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redisstore: encode snapshot: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.latestKey(sessionID, scope), data, 0)
	pipe.LPush(ctx, s.historyKey(sessionID, scope), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: save snapshot: %w", err)
	}
	return nil
}
