package storage

// SchemaVersion is the current SQLite schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the request log schema.
// Timestamps are stored as unix nanoseconds so ordering does not depend on
// the driver's time formatting.
const Schema = `
CREATE TABLE IF NOT EXISTS request_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,

    -- Deployment identity
    project_id TEXT NOT NULL,
    deployment_id TEXT NOT NULL,
    container_id TEXT NOT NULL DEFAULT '',

    -- Exchange
    method TEXT NOT NULL,
    path TEXT NOT NULL,
    status INTEGER NOT NULL,
    response_time INTEGER NOT NULL,

    -- Client
    request_ip TEXT,
    user_agent TEXT,
    referer TEXT,

    -- Payload snapshots
    headers TEXT,
    query_params TEXT,
    request_body TEXT,
    response_body TEXT,

    error_detail TEXT,

    timestamp INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_request_logs_deployment ON request_logs(project_id, deployment_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_request_logs_timestamp ON request_logs(timestamp);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const sqliteInsert = `
INSERT INTO request_logs (
    project_id, deployment_id, container_id,
    method, path, status, response_time,
    request_ip, user_agent, referer,
    headers, query_params, request_body, response_body,
    error_detail, timestamp
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const sqliteColumns = `id, project_id, deployment_id, container_id,
    method, path, status, response_time,
    request_ip, user_agent, referer,
    headers, query_params, request_body, response_body,
    error_detail, timestamp`

const sqliteDeleteExcess = `
DELETE FROM request_logs WHERE id IN (
    SELECT id FROM (
        SELECT id, ROW_NUMBER() OVER (
            PARTITION BY project_id, deployment_id
            ORDER BY timestamp DESC, id DESC
        ) AS rn
        FROM request_logs
    ) WHERE rn > ?
)
`
