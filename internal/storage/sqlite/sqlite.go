package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ageniuscoder/mmchat/client/internal/storage"
)

type Sqlite struct {
	Db *sql.DB
}

var _ storage.KV = (*Sqlite)(nil)

func New(dsn string) (*Sqlite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, err
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec(`PRAGMA journal_mode=WAL;`)

	// Wait up to 5s if locked
	_, _ = db.Exec(`PRAGMA busy_timeout = 5000;`)

	return &Sqlite{
		Db: db,
	}, nil
}

func (s *Sqlite) Ping(ctx context.Context) error {
	return s.Db.PingContext(ctx)
}

func (s *Sqlite) Close() error {
	return s.Db.Close()
}

func (s *Sqlite) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.Db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return v, err
}

func (s *Sqlite) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.Db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UTC())
	return err
}

func (s *Sqlite) Delete(ctx context.Context, key string) error {
	_, err := s.Db.ExecContext(ctx, `DELETE FROM kv WHERE key=?`, key)
	return err
}
