package postgres

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"

	"github.com/ageniuscoder/mmchat/client/internal/storage"
)

type Postgres struct {
	Db *sql.DB
}

var _ storage.KV = (*Postgres)(nil)

func New(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{
		Db: db,
	}, nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.Db.PingContext(ctx)
}

func (s *Postgres) Close() error {
	return s.Db.Close()
}

func (s *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.Db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return v, err
}

func (s *Postgres) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.Db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=now()`,
		key, value)
	return err
}

func (s *Postgres) Delete(ctx context.Context, key string) error {
	_, err := s.Db.ExecContext(ctx, `DELETE FROM kv WHERE key=$1`, key)
	return err
}
