// Package redis provides a Redis-backed session store. Records expire with
// the session, so abandoned sessions are garbage-collected by Redis itself.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/norspire/authcore"
)

const defaultPrefix = "authsession"

// SessionStore implements authcore.SessionStore on Redis. Alongside each
// session record it maintains a per-user set of session IDs so that
// RevokeUserSessions does not need a scan.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
}

func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return &SessionStore{client: client, prefix: defaultPrefix}
}

func (s *SessionStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, sessionID)
}

func (s *SessionStore) userKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, userID)
}

func (s *SessionStore) CreateSession(ctx context.Context, sess *authcore.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", sess.ID)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(sess.ID), data, ttl)
	pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
	// Keep the user set alive at least as long as its longest session.
	pipe.ExpireNX(ctx, s.userKey(sess.UserID), ttl)
	pipe.ExpireGT(ctx, s.userKey(sess.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (*authcore.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var sess authcore.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("corrupt session record %s: %w", sessionID, err)
	}
	return &sess, nil
}

func (s *SessionStore) RevokeSession(ctx context.Context, sessionID string) error {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil || sess == nil {
		return err
	}
	sess.Revoked = true
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	// KeepTTL preserves the original expiry on the rewritten record.
	if err := s.client.Set(ctx, s.sessionKey(sessionID), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (s *SessionStore) RevokeUserSessions(ctx context.Context, userID string) error {
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}
	for _, id := range ids {
		if err := s.RevokeSession(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
