// Package archive implements the Query Archive: a queryable side-store
// of completed queries, written once per query by the POST /api/chat
// handler after the Agent Loop returns. It sits alongside the session/context/memory
// flat-file stores as a derived, disposable index — safe to rebuild or
// drop, never the source of truth for a query's outcome.
package archive

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nugget/miniagent/internal/agenterr"
)

// Store is a SQLite-backed archive of completed queries and the tool
// invocations made while answering them.
type Store struct {
	db *sql.DB
}

// Open creates or opens the archive database at dbPath and ensures its
// schema exists.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, agenterr.IOError("open archive database", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, agenterr.IOError("migrate archive schema", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS queries (
		id TEXT PRIMARY KEY,
		session_key TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		iterations INTEGER NOT NULL,
		tool_call_count INTEGER NOT NULL,
		input_tokens INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0,
		finish_reason TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_queries_session ON queries(session_key, started_at);

	CREATE TABLE IF NOT EXISTS tool_invocations (
		id TEXT PRIMARY KEY,
		query_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		ok BOOLEAN NOT NULL,
		FOREIGN KEY (query_id) REFERENCES queries(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_tool_invocations_query ON tool_invocations(query_id);
	CREATE INDEX IF NOT EXISTS idx_tool_invocations_tool ON tool_invocations(tool_name);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ToolInvocation records one tool call made while answering a query.
type ToolInvocation struct {
	ToolName   string
	DurationMS int64
	OK         bool
}

// Query is one archived record of a completed (or cancelled) query.
type Query struct {
	ID            string
	SessionKey    string
	StartedAt     time.Time
	Iterations    int
	ToolCallCount int
	InputTokens   int
	OutputTokens  int
	FinishReason  string
	Tools         []ToolInvocation
}

// RecordQuery inserts one completed query and its tool invocations in a
// single transaction. Called once per query by the POST /api/chat
// handler; failures here are logged by the caller and never
// affect the query's own outcome.
func (s *Store) RecordQuery(q Query) error {
	id, err := uuid.NewV7()
	if err != nil {
		return agenterr.IOError("generate archive query id", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return agenterr.IOError("begin archive transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO queries (id, session_key, started_at, iterations, tool_call_count, input_tokens, output_tokens, finish_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id.String(), q.SessionKey, q.StartedAt, q.Iterations, q.ToolCallCount, q.InputTokens, q.OutputTokens, q.FinishReason)
	if err != nil {
		return agenterr.IOError("insert archived query", err)
	}

	for _, t := range q.Tools {
		invID, err := uuid.NewV7()
		if err != nil {
			return agenterr.IOError("generate tool invocation id", err)
		}
		_, err = tx.Exec(`
			INSERT INTO tool_invocations (id, query_id, tool_name, duration_ms, ok)
			VALUES (?, ?, ?, ?, ?)
		`, invID.String(), id.String(), t.ToolName, t.DurationMS, t.OK)
		if err != nil {
			return agenterr.IOError("insert tool invocation", err)
		}
	}

	return tx.Commit()
}

// ListQueries returns archived queries for a session, most recent
// first. An empty sessionKey returns queries across all sessions.
func (s *Store) ListQueries(sessionKey string, limit int) ([]Query, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if sessionKey == "" {
		rows, err = s.db.Query(`
			SELECT id, session_key, started_at, iterations, tool_call_count, input_tokens, output_tokens, finish_reason
			FROM queries ORDER BY started_at DESC LIMIT ?
		`, limit)
	} else {
		rows, err = s.db.Query(`
			SELECT id, session_key, started_at, iterations, tool_call_count, input_tokens, output_tokens, finish_reason
			FROM queries WHERE session_key = ? ORDER BY started_at DESC LIMIT ?
		`, sessionKey, limit)
	}
	if err != nil {
		return nil, agenterr.IOError("query archive", err)
	}
	defer rows.Close()

	var out []Query
	for rows.Next() {
		var q Query
		if err := rows.Scan(&q.ID, &q.SessionKey, &q.StartedAt, &q.Iterations, &q.ToolCallCount, &q.InputTokens, &q.OutputTokens, &q.FinishReason); err != nil {
			return nil, agenterr.IOError("scan archived query", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// GetQuery returns one archived query by id, including its tool
// invocations, or a NotFound error.
func (s *Store) GetQuery(id string) (*Query, error) {
	row := s.db.QueryRow(`
		SELECT id, session_key, started_at, iterations, tool_call_count, input_tokens, output_tokens, finish_reason
		FROM queries WHERE id = ?
	`, id)

	var q Query
	if err := row.Scan(&q.ID, &q.SessionKey, &q.StartedAt, &q.Iterations, &q.ToolCallCount, &q.InputTokens, &q.OutputTokens, &q.FinishReason); err != nil {
		if err == sql.ErrNoRows {
			return nil, agenterr.NotFound(fmt.Sprintf("archived query %q", id))
		}
		return nil, agenterr.IOError("scan archived query", err)
	}

	rows, err := s.db.Query(`
		SELECT tool_name, duration_ms, ok FROM tool_invocations WHERE query_id = ?
	`, id)
	if err != nil {
		return nil, agenterr.IOError("query tool invocations", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t ToolInvocation
		if err := rows.Scan(&t.ToolName, &t.DurationMS, &t.OK); err != nil {
			return nil, agenterr.IOError("scan tool invocation", err)
		}
		q.Tools = append(q.Tools, t)
	}

	return &q, nil
}

// Stats holds aggregate counters across the whole archive.
type Stats struct {
	QueryCount          int
	ToolInvocationCount int
	InputTokens         int
	OutputTokens        int
}

// GetStats computes aggregate counts and token totals across every
// archived query.
func (s *Store) GetStats() (Stats, error) {
	var st Stats
	err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(input_tokens),0), COALESCE(SUM(output_tokens),0) FROM queries`).
		Scan(&st.QueryCount, &st.InputTokens, &st.OutputTokens)
	if err != nil {
		return Stats{}, agenterr.IOError("compute archive stats", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tool_invocations`).Scan(&st.ToolInvocationCount); err != nil {
		return Stats{}, agenterr.IOError("compute tool invocation count", err)
	}
	return st, nil
}
