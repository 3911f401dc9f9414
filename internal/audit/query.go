package audit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ToolCallRow is one persisted tool-call outcome.
type ToolCallRow struct {
	ID         int64
	SessionID  string
	AgentID    string
	CallID     string
	BatchID    string
	Tool       string
	Args       string
	Status     string
	Error      string
	Duration   time.Duration
	FinishedAt time.Time
}

// ApprovalRow is one persisted approval record.
type ApprovalRow struct {
	ID        int64
	RequestID string
	SessionID string
	AgentID   string
	Tool      string
	Arguments string
	Reason    string
	Decision  string
	Message   string
	CreatedAt time.Time
	DecidedAt *time.Time
}

// Filter narrows audit queries. Zero values match everything.
type Filter struct {
	SessionID string
	AgentID   string
	Tool      string
	Status    string
	Since     time.Time
	Limit     int
}

const defaultQueryLimit = 100

// ListToolCalls returns tool-call rows matching the filter, newest first.
func (s *Store) ListToolCalls(ctx context.Context, f Filter) ([]ToolCallRow, error) {
	var conds []string
	var args []any
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.AgentID != "" {
		conds = append(conds, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.Tool != "" {
		conds = append(conds, "tool = ?")
		args = append(args, f.Tool)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "finished_at >= ?")
		args = append(args, f.Since)
	}

	query := `SELECT id, session_id, agent_id, call_id, batch_id, tool, args, status, error, duration_ms, finished_at
		FROM tool_calls`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY finished_at DESC, id DESC LIMIT ?"
	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tool calls: %w", err)
	}
	defer rows.Close()

	var result []ToolCallRow
	for rows.Next() {
		var r ToolCallRow
		var durationMs int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.AgentID, &r.CallID, &r.BatchID,
			&r.Tool, &r.Args, &r.Status, &r.Error, &durationMs, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		result = append(result, r)
	}
	return result, rows.Err()
}

// ListApprovals returns approval rows matching the filter, newest first.
func (s *Store) ListApprovals(ctx context.Context, f Filter) ([]ApprovalRow, error) {
	var conds []string
	var args []any
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Tool != "" {
		conds = append(conds, "tool = ?")
		args = append(args, f.Tool)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since)
	}

	query := `SELECT id, request_id, session_id, agent_id, tool, arguments, reason, decision, message, created_at, decided_at
		FROM approvals`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query approvals: %w", err)
	}
	defer rows.Close()

	var result []ApprovalRow
	for rows.Next() {
		var r ApprovalRow
		if err := rows.Scan(&r.ID, &r.RequestID, &r.SessionID, &r.AgentID, &r.Tool,
			&r.Arguments, &r.Reason, &r.Decision, &r.Message, &r.CreatedAt, &r.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// CountToolCalls returns the number of recorded tool calls.
func (s *Store) CountToolCalls(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tool_calls").Scan(&n)
	return n, err
}
