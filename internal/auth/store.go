package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// SessionKey is the redis key holding a session.
func SessionKey(hint string) string { return sessionKeyPrefix + hint }

// RedisStore reads sessions written by the auth service.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a RedisStore over client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Lookup returns the session for hint.
func (s *RedisStore) Lookup(ctx context.Context, hint string) (*Session, error) {
	data, err := s.client.Get(ctx, SessionKey(hint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	return decodeSession(hint, data)
}

// Save stores a session with ttl. The auth service normally owns writes;
// this is used by local tooling and tests.
func (s *RedisStore) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, SessionKey(sess.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Delete removes a session.
func (s *RedisStore) Delete(ctx context.Context, hint string) error {
	if err := s.client.Del(ctx, SessionKey(hint)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// Ping checks the redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decodeSession(hint string, data []byte) (*Session, error) {
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.ID == "" {
		sess.ID = hint
	}
	return &sess, nil
}

// MemoryStore is an in-process SessionStore.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Put stores sess under its ID.
func (s *MemoryStore) Put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
}

// Lookup returns the session for hint.
func (s *MemoryStore) Lookup(_ context.Context, hint string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[hint]
	if !ok {
		return nil, ErrNoSession
	}
	cp := *sess
	return &cp, nil
}
