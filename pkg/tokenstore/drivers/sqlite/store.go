// Package sqlite is a tokenstore backend keeping the session record in a
// single-row SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/dealerdesk/pkg/slogx"
	"github.com/aussiebroadwan/dealerdesk/pkg/tokenstore"
	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	key string
	dsn string
}

var _ tokenstore.Store = (*Store)(nil)

// NewStore opens the database at dsn. The record lives under key, or
// tokenstore.DefaultKey when key is empty. Call ApplyMigrations before use.
func NewStore(dsn, key string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One writer at a time keeps SQLITE_BUSY out of the picture for a
	// single-row table.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	if key == "" {
		key = tokenstore.DefaultKey
	}

	return &Store{db: db, key: key, dsn: dsn}, nil
}

// Open is NewStore followed by ApplyMigrations.
func Open(dsn, key string) (*Store, error) {
	s, err := NewStore(dsn, key)
	if err != nil {
		return nil, err
	}
	if err := s.ApplyMigrations(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("sqlite: apply migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Read(ctx context.Context) (tokenstore.Session, bool) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sessions WHERE key = ?`, s.key).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slogx.FromContext(ctx).Warn("token store read failed", "driver", "sqlite", "err", err)
		}
		return tokenstore.Session{}, false
	}

	return tokenstore.Decode(value)
}

func (s *Store) Write(ctx context.Context, sess tokenstore.Session) error {
	value, err := tokenstore.Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: write session: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE key = ?`, s.key); err != nil {
		return fmt.Errorf("sqlite: clear session: %w", err)
	}
	return nil
}
