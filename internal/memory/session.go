package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Timestamp time.Time `json:"ts"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
}

// SessionStore holds per-session conversation turns.
type SessionStore interface {
	// Append adds turns to the end of the session and refreshes its expiry.
	Append(ctx context.Context, sessionKey string, turns ...Turn) error
	// Recent returns up to k most recent turns, oldest first.
	Recent(ctx context.Context, sessionKey string, k int) ([]Turn, error)
}

// ResolveSessionKey picks the session identifier: an explicit header wins,
// then the session cookie, then a weak fingerprint of the client address
// (without port) and user agent.
func ResolveSessionKey(header, cookie, remoteAddr, userAgent string) string {
	if h := strings.TrimSpace(header); h != "" {
		return h
	}
	if c := strings.TrimSpace(cookie); c != "" {
		return c
	}
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	sum := sha256.Sum256([]byte(host + "|" + userAgent))
	return "anon-" + hex.EncodeToString(sum[:8])
}

const sessionKeyPrefix = "supportqa:session:"

// RedisSessionStore keeps each session as a Redis list of JSON-encoded turns.
type RedisSessionStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisSessionStore returns a store over rdb. ttl is reapplied on every
// append; zero disables expiry.
func NewRedisSessionStore(rdb redis.Cmdable, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

// Dial connects to Redis and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *RedisSessionStore) Append(ctx context.Context, sessionKey string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	vals := make([]any, len(turns))
	for i, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encoding turn: %w", err)
		}
		vals[i] = b
	}

	key := sessionKeyPrefix + sessionKey
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, vals...)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("appending to session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Recent(ctx context.Context, sessionKey string, k int) ([]Turn, error) {
	if k <= 0 {
		return nil, nil
	}
	raw, err := s.rdb.LRange(ctx, sessionKeyPrefix+sessionKey, int64(-k), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	turns := make([]Turn, 0, len(raw))
	for _, r := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			return nil, fmt.Errorf("decoding turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}
