package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/harvester/internal/harvest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the Postgres connection pool backing the store.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PostgresStore persists completed-job snapshots in a single table.
//
// Expected schema:
//
//	CREATE TABLE harvest_snapshots (
//	    position    INT PRIMARY KEY,
//	    url         TEXT NOT NULL,
//	    final_url   TEXT,
//	    title       TEXT,
//	    tokens      INT NOT NULL DEFAULT 0,
//	    bytes       BIGINT NOT NULL DEFAULT 0,
//	    links       JSONB,
//	    filename    TEXT,
//	    fetched_utc TEXT,
//	    saved_at    TIMESTAMPTZ DEFAULT NOW()
//	);
type PostgresStore struct {
	pool  dbPool
	table string
}

// NewPostgresStore connects a pool using the provided config.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("snapshot.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "harvest_snapshots"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool, table: table}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool dbPool, table string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "harvest_snapshots"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresStore{pool: pool, table: table}, nil
}

// Save replaces the stored snapshot: truncate then insert, position keyed by
// arrival order.
func (s *PostgresStore) Save(ctx context.Context, jobs []harvest.CompletedJobSnapshot) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("snapshot store is not configured")
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return fmt.Errorf("clear snapshot table: %w", err)
	}
	insert := fmt.Sprintf(`
INSERT INTO %s (position, url, final_url, title, tokens, bytes, links, filename, fetched_utc)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, s.table)
	for i, job := range jobs {
		linksJSON, err := json.Marshal(job.Links)
		if err != nil {
			return fmt.Errorf("marshal links: %w", err)
		}
		if _, err := s.pool.Exec(ctx, insert,
			i,
			job.URL,
			job.FinalURL,
			job.Title,
			job.Tokens,
			job.Bytes,
			linksJSON,
			job.Filename,
			job.FetchedUTC,
		); err != nil {
			return fmt.Errorf("insert snapshot row %d: %w", i, err)
		}
	}
	return nil
}

// Load returns stored jobs ordered by position.
func (s *PostgresStore) Load(ctx context.Context) ([]harvest.CompletedJobSnapshot, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("snapshot store is not configured")
	}
	query := fmt.Sprintf(`
SELECT url, final_url, title, tokens, bytes, links, filename, fetched_utc
FROM %s
ORDER BY position`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query snapshot rows: %w", err)
	}
	defer rows.Close()

	var jobs []harvest.CompletedJobSnapshot
	for rows.Next() {
		var (
			job       harvest.CompletedJobSnapshot
			linksJSON []byte
		)
		if err := rows.Scan(
			&job.URL,
			&job.FinalURL,
			&job.Title,
			&job.Tokens,
			&job.Bytes,
			&linksJSON,
			&job.Filename,
			&job.FetchedUTC,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		if len(linksJSON) > 0 {
			if err := json.Unmarshal(linksJSON, &job.Links); err != nil {
				return nil, fmt.Errorf("decode snapshot links: %w", err)
			}
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return jobs, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
