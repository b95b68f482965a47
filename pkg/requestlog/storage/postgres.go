package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mercator-hq/tracker/pkg/requestlog"
)

// PostgresSchema creates the request_logs table used by the platform's
// deployment monitoring service. Column names match that table.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS request_logs (
    id BIGSERIAL PRIMARY KEY,
    projecttoken TEXT NOT NULL,
    deploymenttoken TEXT NOT NULL,
    containerid TEXT NOT NULL DEFAULT '',
    method TEXT NOT NULL,
    path TEXT NOT NULL,
    status INTEGER NOT NULL,
    responsetime BIGINT NOT NULL,
    requestip TEXT,
    useragent TEXT,
    referer TEXT,
    headers JSONB,
    queryparams JSONB,
    requestbody TEXT,
    responsebody TEXT,
    errordetails TEXT,
    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_request_logs_deployment
    ON request_logs (projecttoken, deploymenttoken, timestamp DESC);
`

const postgresColumns = `id, projecttoken, deploymenttoken, containerid,
    method, path, status, responsetime,
    requestip, useragent, referer,
    headers, queryparams, requestbody, responsebody,
    errordetails, timestamp`

// PostgresConfig contains configuration for the PostgreSQL backend.
type PostgresConfig struct {
	// DSN is a libpq style connection string or postgres:// URL.
	DSN string

	// MaxConns is the maximum pool size. Zero keeps the pgxpool default.
	MaxConns int32

	// MinConns is the minimum number of idle connections kept open.
	MinConns int32

	// ConnectTimeout bounds the initial connection and ping.
	// Default: 10 seconds
	ConnectTimeout time.Duration

	// CreateSchema creates request_logs if it does not exist.
	CreateSchema bool
}

// PostgresStore implements requestlog.Backend on a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	owned  bool
	logger *slog.Logger
}

// NewPostgresStore connects a new pool and optionally creates the schema.
func NewPostgresStore(ctx context.Context, config *PostgresConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, requestlog.NewPersistenceError("postgres", "parse_config", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, requestlog.NewPersistenceError("postgres", "connect", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, requestlog.NewPersistenceError("postgres", "ping", err)
	}

	s := &PostgresStore{
		pool:   pool,
		owned:  true,
		logger: slog.Default().With("component", "requestlog.storage.postgres"),
	}

	if config.CreateSchema {
		if _, err := pool.Exec(connectCtx, PostgresSchema); err != nil {
			pool.Close()
			return nil, requestlog.NewPersistenceError("postgres", "create_schema", err)
		}
	}

	s.logger.Info("PostgreSQL request log store initialized",
		"max_conns", poolConfig.MaxConns,
		"create_schema", config.CreateSchema,
	)

	return s, nil
}

// NewPostgresStoreFromPool wraps a pool owned by the caller. Close does not
// close the pool.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		logger: slog.Default().With("component", "requestlog.storage.postgres"),
	}
}

// Append inserts entry and returns it with the database assigned ID and
// timestamp.
func (s *PostgresStore) Append(ctx context.Context, entry *requestlog.Entry) (*requestlog.Entry, error) {
	headers, err := json.Marshal(entry.Headers)
	if err != nil {
		return nil, requestlog.NewPersistenceError("postgres", "append", err)
	}
	queryParams, err := json.Marshal(entry.QueryParams)
	if err != nil {
		return nil, requestlog.NewPersistenceError("postgres", "append", err)
	}

	stored := entry.Clone()
	query := `
		INSERT INTO request_logs (
			projecttoken, deploymenttoken, containerid, method, path,
			status, responsetime, requestip, useragent, referer,
			headers, queryparams, requestbody, responsebody, errordetails
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12::jsonb, $13, $14, $15)
		RETURNING id, timestamp`

	err = s.pool.QueryRow(ctx, query,
		stored.ProjectID, stored.DeploymentID, stored.ContainerID, stored.Method, stored.Path,
		stored.Status, stored.ResponseTime, stored.RequestIP, stored.UserAgent, stored.Referer,
		string(headers), string(queryParams), stored.RequestBody, stored.ResponseBody, nullString(stored.ErrorDetail),
	).Scan(&stored.ID, &stored.Timestamp)
	if err != nil {
		return nil, requestlog.NewPersistenceError("postgres", "append", err)
	}
	stored.Timestamp = stored.Timestamp.UTC()

	return stored, nil
}

// List returns at most limit entries for the deployment, newest first.
func (s *PostgresStore) List(ctx context.Context, projectID, deploymentID string, limit int) ([]*requestlog.Entry, error) {
	query := `SELECT ` + postgresColumns + `
		FROM request_logs
		WHERE projecttoken = $1 AND deploymenttoken = $2
		ORDER BY timestamp DESC, id DESC`
	args := []any{projectID, deploymentID}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, requestlog.NewPersistenceError("postgres", "list", err)
	}
	defer rows.Close()

	entries := []*requestlog.Entry{}
	for rows.Next() {
		entry, err := scanPostgresRow(rows)
		if err != nil {
			return nil, requestlog.NewPersistenceError("postgres", "scan", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, requestlog.NewPersistenceError("postgres", "list", err)
	}
	return entries, nil
}

// DeleteAll removes every entry for the deployment.
func (s *PostgresStore) DeleteAll(ctx context.Context, projectID, deploymentID string) (int64, error) {
	return s.exec(ctx, "delete",
		`DELETE FROM request_logs WHERE projecttoken = $1 AND deploymenttoken = $2`,
		projectID, deploymentID)
}

// DeleteBefore removes entries older than cutoff.
func (s *PostgresStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.exec(ctx, "delete_before", `DELETE FROM request_logs WHERE timestamp < $1`, cutoff)
}

// DeleteExcess keeps the newest keep entries of every deployment.
func (s *PostgresStore) DeleteExcess(ctx context.Context, keep int64) (int64, error) {
	return s.exec(ctx, "delete_excess", `
		DELETE FROM request_logs WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY projecttoken, deploymenttoken
					ORDER BY timestamp DESC, id DESC
				) AS rn
				FROM request_logs
			) ranked WHERE rn > $1
		)`, keep)
}

// Ping verifies the pool can reach the database.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return requestlog.NewPersistenceError("postgres", "ping", err)
	}
	return nil
}

// Close closes the pool if the store created it.
func (s *PostgresStore) Close() error {
	if s.owned {
		s.pool.Close()
		s.logger.Info("PostgreSQL request log store closed")
	}
	return nil
}

func (s *PostgresStore) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, requestlog.NewPersistenceError("postgres", op, err)
	}
	return tag.RowsAffected(), nil
}

func scanPostgresRow(rows pgx.Rows) (*requestlog.Entry, error) {
	var entry requestlog.Entry
	var requestIP, userAgent, referer, requestBody, responseBody, errorDetail *string
	var headers, queryParams []byte

	err := rows.Scan(
		&entry.ID, &entry.ProjectID, &entry.DeploymentID, &entry.ContainerID,
		&entry.Method, &entry.Path, &entry.Status, &entry.ResponseTime,
		&requestIP, &userAgent, &referer,
		&headers, &queryParams, &requestBody, &responseBody,
		&errorDetail, &entry.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	entry.RequestIP = deref(requestIP)
	entry.UserAgent = deref(userAgent)
	entry.Referer = deref(referer)
	entry.RequestBody = deref(requestBody)
	entry.ResponseBody = deref(responseBody)
	entry.ErrorDetail = deref(errorDetail)
	entry.Timestamp = entry.Timestamp.UTC()

	if err := unmarshalValues(string(headers), &entry.Headers); err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	if err := unmarshalValues(string(queryParams), &entry.QueryParams); err != nil {
		return nil, fmt.Errorf("decode query params: %w", err)
	}
	return &entry, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
