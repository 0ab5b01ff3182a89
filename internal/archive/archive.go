// Package archive persists committed requests and agent updates to a
// local SQLite database so the in-memory stores can be reconstructed or
// audited after a restart.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

// Archive writes committed requests and the agent update log to SQLite.
type Archive struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(dbPath string) (*Archive, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return a, nil
}

func (a *Archive) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS requests (
		request_id  TEXT PRIMARY KEY,
		status      TEXT NOT NULL,
		priority    TEXT NOT NULL,
		location    TEXT,
		source      TEXT,
		payload     TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_priority ON requests(priority);
	CREATE INDEX IF NOT EXISTS idx_requests_created ON requests(created_at DESC);

	CREATE TABLE IF NOT EXISTS agent_updates (
		id          TEXT PRIMARY KEY,
		request_id  TEXT NOT NULL,
		agent_id    TEXT NOT NULL,
		status      TEXT NOT NULL,
		payload     TEXT NOT NULL,
		received_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_updates_request ON agent_updates(request_id);
	`
	_, err := a.db.Exec(schema)
	return err
}

// SaveRequest upserts a request snapshot. Each call overwrites the
// previous snapshot for the same request id.
func (a *Archive) SaveRequest(ctx context.Context, rec *models.DisasterRequest) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO requests (request_id, status, priority, location, source, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(request_id) DO UPDATE SET
		   status = excluded.status,
		   priority = excluded.priority,
		   location = excluded.location,
		   payload = excluded.payload,
		   updated_at = excluded.updated_at`,
		rec.RequestID, rec.Status, rec.Priority, rec.Location, rec.Source,
		string(payload), rec.Timestamp.UTC().Format(time.RFC3339), now)
	if err != nil {
		return fmt.Errorf("archive request: %w", err)
	}
	return nil
}

// SaveUpdate appends an agent update to the audit log.
func (a *Archive) SaveUpdate(ctx context.Context, u models.AgentUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO agent_updates (id, request_id, agent_id, status, payload, received_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.RequestID, u.AgentID, u.Status, string(payload),
		u.ReceivedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("archive update: %w", err)
	}
	return nil
}

// Requests returns archived request snapshots, newest first.
func (a *Archive) Requests(ctx context.Context, limit int) ([]*models.DisasterRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT payload FROM requests ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.DisasterRequest
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec models.DisasterRequest
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode archived request: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Updates returns the archived update log for a request, oldest first.
// An empty requestID returns the whole log.
func (a *Archive) Updates(ctx context.Context, requestID string) ([]models.AgentUpdate, error) {
	query := `SELECT payload FROM agent_updates ORDER BY id`
	args := []interface{}{}
	if requestID != "" {
		query = `SELECT payload FROM agent_updates WHERE request_id = ? ORDER BY id`
		args = append(args, requestID)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AgentUpdate
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var u models.AgentUpdate
		if err := json.Unmarshal([]byte(payload), &u); err != nil {
			return nil, fmt.Errorf("decode archived update: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (a *Archive) Close() error {
	return a.db.Close()
}
