package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/tracker/pkg/requestlog"
)

const (
	// DriverCGO selects github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"

	// DriverPureGo selects modernc.org/sqlite.
	DriverPureGo = "sqlite"
)

// SQLiteConfig contains configuration for the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver is the database/sql driver name, DriverCGO or DriverPureGo.
	// Default: DriverCGO
	Driver string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/requests.db",
		Driver:       DriverCGO,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements requestlog.Backend using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore opens the database and creates the schema if needed.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverCGO
	}

	logger := slog.Default().With("component", "requestlog.storage.sqlite")

	db, err := sql.Open(config.Driver, config.Path)
	if err != nil {
		return nil, requestlog.NewPersistenceError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: logger,
		now:    time.Now,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite request log store initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize sets pragmas, creates the schema and verifies its version.
func (s *SQLiteStore) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return requestlog.NewPersistenceError("sqlite", "enable_wal", err)
		}
		s.logger.Debug("WAL mode enabled")
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return requestlog.NewPersistenceError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return requestlog.NewPersistenceError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return requestlog.NewPersistenceError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return requestlog.NewPersistenceError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return requestlog.NewPersistenceError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Append persists entry and returns the stored copy.
func (s *SQLiteStore) Append(ctx context.Context, entry *requestlog.Entry) (*requestlog.Entry, error) {
	headers, err := json.Marshal(entry.Headers)
	if err != nil {
		return nil, requestlog.NewPersistenceError("sqlite", "append", err)
	}
	queryParams, err := json.Marshal(entry.QueryParams)
	if err != nil {
		return nil, requestlog.NewPersistenceError("sqlite", "append", err)
	}

	stored := entry.Clone()
	stored.Timestamp = s.now().UTC()

	res, err := s.db.ExecContext(ctx, sqliteInsert,
		stored.ProjectID, stored.DeploymentID, stored.ContainerID,
		stored.Method, stored.Path, stored.Status, stored.ResponseTime,
		stored.RequestIP, stored.UserAgent, stored.Referer,
		string(headers), string(queryParams), stored.RequestBody, stored.ResponseBody,
		nullString(stored.ErrorDetail), stored.Timestamp.UnixNano(),
	)
	if err != nil {
		return nil, requestlog.NewPersistenceError("sqlite", "append", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, requestlog.NewPersistenceError("sqlite", "append", err)
	}
	stored.ID = id

	return stored, nil
}

// List returns at most limit entries for the deployment, newest first.
func (s *SQLiteStore) List(ctx context.Context, projectID, deploymentID string, limit int) ([]*requestlog.Entry, error) {
	query := "SELECT " + sqliteColumns + " FROM request_logs WHERE project_id = ? AND deployment_id = ? ORDER BY timestamp DESC, id DESC"
	args := []interface{}{projectID, deploymentID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, requestlog.NewPersistenceError("sqlite", "list", err)
	}
	defer rows.Close()

	entries := []*requestlog.Entry{}
	for rows.Next() {
		entry, err := s.scanRow(rows)
		if err != nil {
			return nil, requestlog.NewPersistenceError("sqlite", "scan", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, requestlog.NewPersistenceError("sqlite", "list", err)
	}

	return entries, nil
}

// DeleteAll removes every entry for the deployment.
func (s *SQLiteStore) DeleteAll(ctx context.Context, projectID, deploymentID string) (int64, error) {
	return s.exec(ctx, "delete", "DELETE FROM request_logs WHERE project_id = ? AND deployment_id = ?", projectID, deploymentID)
}

// DeleteBefore removes entries older than cutoff.
func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.exec(ctx, "delete_before", "DELETE FROM request_logs WHERE timestamp < ?", cutoff.UTC().UnixNano())
}

// DeleteExcess keeps the newest keep entries of every deployment.
func (s *SQLiteStore) DeleteExcess(ctx context.Context, keep int64) (int64, error) {
	return s.exec(ctx, "delete_excess", sqliteDeleteExcess, keep)
}

// Ping verifies the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return requestlog.NewPersistenceError("sqlite", "ping", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return requestlog.NewPersistenceError("sqlite", "close", err)
	}
	s.logger.Info("SQLite request log store closed")
	return nil
}

func (s *SQLiteStore) exec(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, requestlog.NewPersistenceError("sqlite", op, err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, requestlog.NewPersistenceError("sqlite", op, err)
	}
	return count, nil
}

// scanRow scans a row selected with sqliteColumns.
func (s *SQLiteStore) scanRow(row *sql.Rows) (*requestlog.Entry, error) {
	var entry requestlog.Entry
	var requestIP, userAgent, referer, headers, queryParams, requestBody, responseBody, errorDetail sql.NullString
	var ts int64

	err := row.Scan(
		&entry.ID, &entry.ProjectID, &entry.DeploymentID, &entry.ContainerID,
		&entry.Method, &entry.Path, &entry.Status, &entry.ResponseTime,
		&requestIP, &userAgent, &referer,
		&headers, &queryParams, &requestBody, &responseBody,
		&errorDetail, &ts,
	)
	if err != nil {
		return nil, err
	}

	entry.RequestIP = requestIP.String
	entry.UserAgent = userAgent.String
	entry.Referer = referer.String
	entry.RequestBody = requestBody.String
	entry.ResponseBody = responseBody.String
	entry.ErrorDetail = errorDetail.String
	entry.Timestamp = time.Unix(0, ts).UTC()

	if err := unmarshalValues(headers.String, &entry.Headers); err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	if err := unmarshalValues(queryParams.String, &entry.QueryParams); err != nil {
		return nil, fmt.Errorf("decode query params: %w", err)
	}

	return &entry, nil
}

// unmarshalValues decodes a serialized header or query map. Rows written by
// older producers store single string values; those are widened.
func unmarshalValues(raw string, dst *map[string][]string) error {
	if raw == "" || raw == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err == nil {
		return nil
	}

	var single map[string]string
	if err := json.Unmarshal([]byte(raw), &single); err != nil {
		return err
	}
	out := make(map[string][]string, len(single))
	for k, v := range single {
		out[k] = []string{v}
	}
	*dst = out
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
