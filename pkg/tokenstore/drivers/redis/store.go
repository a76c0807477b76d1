// Package redis is a tokenstore backend keeping the session record in a
// single Redis string key, for clients that share a session across hosts.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/dealerdesk/pkg/slogx"
	"github.com/aussiebroadwan/dealerdesk/pkg/tokenstore"
	goredis "github.com/redis/go-redis/v9"
)

type Store struct {
	rdb goredis.UniversalClient
	key string

	// TTL bounds how long an untouched record survives. Zero keeps it until
	// cleared.
	TTL time.Duration
}

var _ tokenstore.Store = (*Store)(nil)

// NewStore wraps an existing client. The record lives under key, or
// tokenstore.DefaultKey when key is empty.
func NewStore(rdb goredis.UniversalClient, key string) *Store {
	if key == "" {
		key = tokenstore.DefaultKey
	}
	return &Store{rdb: rdb, key: key}
}

// Dial connects to addr and verifies the connection with a PING.
func Dial(ctx context.Context, addr, password, key string) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}

	return NewStore(rdb, key), nil
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Read(ctx context.Context) (tokenstore.Session, bool) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slogx.FromContext(ctx).Warn("token store read failed", "driver", "redis", "err", err)
		}
		return tokenstore.Session{}, false
	}

	return tokenstore.Decode(data)
}

// Write replaces the record with a single SET, which Redis applies
// atomically.
func (s *Store) Write(ctx context.Context, sess tokenstore.Session) error {
	data, err := tokenstore.Encode(sess)
	if err != nil {
		return err
	}

	if err := s.rdb.Set(ctx, s.key, data, s.TTL).Err(); err != nil {
		return fmt.Errorf("redis: write session: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis: clear session: %w", err)
	}
	return nil
}
