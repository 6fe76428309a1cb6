package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const pgSchema = `CREATE TABLE IF NOT EXISTS documents (
  seq BIGSERIAL PRIMARY KEY,
  collection TEXT NOT NULL,
  id TEXT NOT NULL,
  version INTEGER NOT NULL DEFAULT 0,
  data JSONB NOT NULL,
  UNIQUE (collection, id)
)`

// PGConfig configures the PostgreSQL engine.
type PGConfig struct {
	DSN      string
	MaxConns int32
	Attempts int
	Backoff  time.Duration
}

// PGStore keeps documents as JSONB rows in PostgreSQL.
type PGStore struct {
	Pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// OpenPostgres connects, retrying while the server comes up, and makes sure
// the documents table exists.
func OpenPostgres(ctx context.Context, cfg PGConfig, log zerolog.Logger) (*PGStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 5
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
			pool = nil
		}
		log.Warn().Err(err).Int("attempt", attempt).Int("of", attempts).Msg("postgres connect failed")
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if pool == nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &PGStore{Pool: pool}, nil
}

var pgDialect = dialect{
	field: func(name string, v any) string {
		if isNumeric(v) {
			return fmt.Sprintf("(data->>'%s')::numeric", name)
		}
		return fmt.Sprintf("data->>'%s'", name)
	},
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	in: func(field string, values []string, next int) (string, []any) {
		return fmt.Sprintf("%s = ANY($%d)", field, next), []any{values}
	},
}

func (s *PGStore) GetByID(ctx context.Context, collection, id string) (Record, bool, error) {
	return s.one(ctx, `SELECT id,version,data FROM documents WHERE collection=$1 AND id=$2`, collection, id)
}

func (s *PGStore) GetByField(ctx context.Context, collection string, q Query) (Record, bool, error) {
	where, args, err := buildWhere(pgDialect, q, 2)
	if err != nil {
		return Record{}, false, err
	}
	query := `SELECT id,version,data FROM documents WHERE collection=$1` + where + ` ORDER BY seq ASC LIMIT 1`
	return s.one(ctx, query, append([]any{collection}, args...)...)
}

func (s *PGStore) one(ctx context.Context, query string, args ...any) (Record, bool, error) {
	var rec Record
	err := s.Pool.QueryRow(ctx, query, args...).Scan(&rec.ID, &rec.Version, &rec.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("load document: %w", err)
	}
	return rec, true, nil
}

func (s *PGStore) ListByField(ctx context.Context, collection string, q Query, sorts ...Sort) ([]Record, error) {
	where, args, err := buildWhere(pgDialect, q, 2)
	if err != nil {
		return nil, err
	}
	// jsonb ordering compares numbers numerically and strings lexically.
	order, err := buildOrder(func(f string) string { return fmt.Sprintf("data->'%s'", f) }, sorts)
	if err != nil {
		return nil, err
	}
	rows, err := s.Pool.Query(ctx, `SELECT id,version,data FROM documents WHERE collection=$1`+where+order, append([]any{collection}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Version, &rec.Data); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (s *PGStore) Save(ctx context.Context, collection string, doc Document) error {
	id := doc.DocumentID()
	if id == "" {
		return ErrMissingID
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	_, err = s.Pool.Exec(ctx, `INSERT INTO documents(collection,id,version,data) VALUES ($1,$2,$3,$4)
ON CONFLICT (collection,id) DO UPDATE SET version=EXCLUDED.version, data=EXCLUDED.data`, collection, id, versionOf(doc), data)
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *PGStore) SaveWithVersion(ctx context.Context, collection string, doc Versioned) error {
	id := doc.DocumentID()
	if id == "" {
		return ErrMissingID
	}
	prev := doc.Version()
	doc.SetVersion(prev + 1)
	data, err := json.Marshal(doc)
	if err != nil {
		doc.SetVersion(prev)
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	_, exists, err := s.GetByID(ctx, collection, id)
	if err != nil {
		doc.SetVersion(prev)
		return err
	}
	if !exists {
		if _, err := s.Pool.Exec(ctx, `INSERT INTO documents(collection,id,version,data) VALUES ($1,$2,$3,$4)`, collection, id, prev+1, data); err != nil {
			doc.SetVersion(prev)
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrConflictingVersions
			}
			return fmt.Errorf("insert %s/%s: %w", collection, id, err)
		}
		return nil
	}
	tag, err := s.Pool.Exec(ctx, `UPDATE documents SET version=$1, data=$2 WHERE collection=$3 AND id=$4 AND version=$5`,
		prev+1, data, collection, id, prev)
	if err != nil {
		doc.SetVersion(prev)
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		doc.SetVersion(prev)
		return ErrConflictingVersions
	}
	return nil
}

func (s *PGStore) Close() error {
	s.Pool.Close()
	return nil
}
