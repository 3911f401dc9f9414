// Package audit persists tool-call outcomes and approval decisions to a
// local SQLite database for the `steward audit` command.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"steward/internal/audit/migrations"
	"steward/internal/config"
	"steward/internal/policy/approval"
	"steward/internal/sched"
)

// Store wraps the audit database. It implements sched.AuditRecorder and
// approval.ApprovalLogger.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the audit database at path and
// applies pending migrations.
func Open(path string) (*Store, error) {
	expandedPath, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := sql.Open("sqlite", expandedPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, path: expandedPath}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordToolCall writes one terminal tool-call outcome.
func (s *Store) RecordToolCall(ctx context.Context, rec sched.ToolCallRecord) error {
	finishedAt := rec.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_calls
			(session_id, agent_id, call_id, batch_id, tool, args, status, error, duration_ms, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.AgentID, rec.CallID, rec.BatchID, rec.Tool,
		rec.Args, rec.Status, rec.Error, rec.Duration.Milliseconds(), finishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert tool call: %w", err)
	}
	return nil
}

// LogRequest records the creation of an approval request.
func (s *Store) LogRequest(req *approval.ApprovalRequest) error {
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO approvals
			(request_id, session_id, agent_id, tool, arguments, reason, decision, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?)`,
		req.ID, req.SessionID, req.AgentID, req.ToolName, req.Arguments, req.Reason, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert approval request: %w", err)
	}
	return nil
}

// LogDecision records the resolution of an approval request.
func (s *Store) LogDecision(req *approval.ApprovalRequest, result *approval.ApprovalResult) error {
	decidedAt := result.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now()
	}
	_, err := s.db.Exec(`
		UPDATE approvals
		SET decision = ?, message = ?, decided_at = ?
		WHERE request_id = ?`,
		string(result.Decision), result.Message, decidedAt, req.ID,
	)
	if err != nil {
		return fmt.Errorf("update approval decision: %w", err)
	}
	return nil
}
