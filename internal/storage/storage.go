// Package storage is the key/value persistence the sync core writes through.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var ErrNotFound = errors.New("storage: not found")

// KV persists small opaque values: sync cursors, the offline queue, cached
// presence and the conversation list snapshot.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

const (
	KeyOfflineQueue  = "offline:queue"
	KeyOfflineFailed = "offline:failed"
	KeyPresence      = "presence:self"
	KeyConversations = "conversations"
)

// KeyCursor is where the last applied event time of a conversation lives.
func KeyCursor(conversationID string) string {
	return "cursor:" + conversationID
}

func GetJSON(ctx context.Context, kv KV, key string, v any) error {
	b, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return nil
}

func PutJSON(ctx context.Context, kv KV, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	return kv.Put(ctx, key, b)
}

// Memory is a process-local KV. Nothing survives a restart.
type Memory struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string][]byte)}
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Memory) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = append([]byte(nil), value...)
	return nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}
