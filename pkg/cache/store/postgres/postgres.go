// Package postgres provides a cache index stored in PostgreSQL.
//
// It is the index to use when several nearstore instances share one cache
// root: row-level atomicity comes from per-entry advisory locks taken inside
// the upsert transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/pkg/cache"
)

const entryColumns = `tenant, checksum, file_size, file_name, mime_type, file_type, location,
	expiration_date, group_ids, internal_cache, external_cache, created_at, updated_at`

// Index is a cache.Index backed by PostgreSQL.
type Index struct {
	pool   *pgxpool.Pool
	config *Config
	log    *slog.Logger
}

var _ cache.Index = (*Index)(nil)

// Open connects to PostgreSQL and, when AutoMigrate is set, applies the schema.
func Open(ctx context.Context, cfg *Config) (*Index, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.With("component", "postgres_cache_index")

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, cfg.ConnectionString(), log); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	if cfg.QueryTimeout > 0 {
		poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%dms", cfg.QueryTimeout.Milliseconds())
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	log.Info("PostgreSQL cache index ready",
		"host", cfg.Host,
		"database", cfg.Database,
		"max_conns", cfg.MaxConns,
	)
	return &Index{pool: pool, config: cfg, log: log}, nil
}

func (s *Index) Get(ctx context.Context, tenant, checksum string) (*cache.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM cache_entries WHERE tenant = $1 AND checksum = $2`,
		tenant, checksum)

	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cache.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	return e, nil
}

func (s *Index) GetMany(ctx context.Context, tenant string, checksums []string) ([]*cache.Entry, error) {
	if len(checksums) == 0 {
		return []*cache.Entry{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM cache_entries
		 WHERE tenant = $1 AND checksum = ANY($2)
		 ORDER BY checksum`,
		tenant, checksums)
	if err != nil {
		return nil, fmt.Errorf("get cache entries: %w", err)
	}
	return collectEntries(rows)
}

func (s *Index) Put(ctx context.Context, entry *cache.Entry) error {
	if _, err := s.pool.Exec(ctx, upsertSQL, entryArgs(entry)...); err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// Upsert serializes writers of the same entry with a transaction-scoped
// advisory lock, which also covers the case where the row does not exist yet.
func (s *Index) Upsert(ctx context.Context, tenant, checksum string, fn cache.UpdateFunc) (*cache.Entry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || '/' || $2))`, tenant, checksum); err != nil {
		return nil, fmt.Errorf("lock cache entry: %w", err)
	}

	existing, err := scanEntry(tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM cache_entries WHERE tenant = $1 AND checksum = $2 FOR UPDATE`,
		tenant, checksum))
	if errors.Is(err, pgx.ErrNoRows) {
		existing = nil
	} else if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}

	updated, err := fn(existing.Clone())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return existing, nil
	}

	updated.Tenant = tenant
	updated.Checksum = checksum
	if _, err := tx.Exec(ctx, upsertSQL, entryArgs(updated)...); err != nil {
		return nil, fmt.Errorf("write cache entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}
	return updated, nil
}

func (s *Index) Delete(ctx context.Context, tenant, checksum string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM cache_entries WHERE tenant = $1 AND checksum = $2`, tenant, checksum); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

func (s *Index) DeleteMany(ctx context.Context, tenant string, checksums []string) error {
	if len(checksums) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM cache_entries WHERE tenant = $1 AND checksum = ANY($2)`, tenant, checksums); err != nil {
		return fmt.Errorf("delete cache entries: %w", err)
	}
	return nil
}

func (s *Index) List(ctx context.Context, tenant string, q cache.Query) ([]*cache.Entry, error) {
	var expiredBefore *time.Time
	if !q.ExpiredBefore.IsZero() {
		expiredBefore = &q.ExpiredBefore
	}
	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM cache_entries
		 WHERE tenant = $1
		   AND checksum > $2
		   AND ($3::boolean = FALSE OR internal_cache)
		   AND ($4::timestamptz IS NULL OR expiration_date < $4)
		 ORDER BY checksum
		 LIMIT $5`,
		tenant, q.After, q.InternalOnly, expiredBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	return collectEntries(rows)
}

func (s *Index) Usage(ctx context.Context, tenant string) (cache.Usage, error) {
	var u cache.Usage
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE internal_cache),
		        COALESCE(SUM(file_size) FILTER (WHERE internal_cache), 0)
		 FROM cache_entries WHERE tenant = $1`, tenant).
		Scan(&u.Entries, &u.InternalEntries, &u.InternalBytes)
	if err != nil {
		return cache.Usage{}, fmt.Errorf("cache usage: %w", err)
	}
	return u, nil
}

// Healthcheck pings the database.
func (s *Index) Healthcheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

func (s *Index) Close() error {
	s.pool.Close()
	s.log.Info("PostgreSQL cache index closed")
	return nil
}

const upsertSQL = `
	INSERT INTO cache_entries (` + entryColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (tenant, checksum) DO UPDATE SET
		file_size = EXCLUDED.file_size,
		file_name = EXCLUDED.file_name,
		mime_type = EXCLUDED.mime_type,
		file_type = EXCLUDED.file_type,
		location = EXCLUDED.location,
		expiration_date = EXCLUDED.expiration_date,
		group_ids = EXCLUDED.group_ids,
		internal_cache = EXCLUDED.internal_cache,
		external_cache = EXCLUDED.external_cache,
		updated_at = EXCLUDED.updated_at`

func entryArgs(e *cache.Entry) []any {
	groups := e.GroupIDs
	if groups == nil {
		groups = []string{}
	}
	created, updated := e.CreatedAt, e.UpdatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if updated.IsZero() {
		updated = created
	}
	return []any{
		e.Tenant, e.Checksum, e.FileSize, e.FileName, e.MimeType, e.Type, e.Location,
		e.ExpirationDate, groups, e.InternalCache, e.ExternalCache, created, updated,
	}
}

func scanEntry(row pgx.Row) (*cache.Entry, error) {
	var e cache.Entry
	err := row.Scan(
		&e.Tenant, &e.Checksum, &e.FileSize, &e.FileName, &e.MimeType, &e.Type, &e.Location,
		&e.ExpirationDate, &e.GroupIDs, &e.InternalCache, &e.ExternalCache, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(e.GroupIDs) == 0 {
		e.GroupIDs = nil
	}
	return &e, nil
}

func collectEntries(rows pgx.Rows) ([]*cache.Entry, error) {
	defer rows.Close()

	out := []*cache.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
