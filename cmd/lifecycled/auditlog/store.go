// Package auditlog is an optional, host-side append-only sink for
// lifecycle events, grounded on the teacher's internal/audit.SQLiteStore
// (same schema shape, same no-update/no-delete triggers, same
// busy-retry insert loop) repurposed from tool-call decisions to agent
// state transitions, deployments, and hot reloads. It sits outside the
// core library: orchestrator.Orchestrator never depends on it.
package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/caxtonio/agentcore/internal/orchestrator"
)

// Event is one recorded row.
type Event struct {
	ID         int64     `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	AgentID    string    `json:"agent_id"`
	Kind       string    `json:"kind"`
	Detail     string    `json:"detail"`
}

// Store is an append-only SQLite sink for orchestrator.Event values.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at dbPath and
// ensures its schema exists.
func Open(dbPath string) (*Store, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initializeSchema() error {
	for _, stmt := range schemaStatements() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute schema: %w", err)
		}
	}
	return nil
}

// Record appends one lifecycle event to the log.
func (s *Store) Record(ctx context.Context, ev orchestrator.Event) error {
	detail, err := detailOf(ev)
	if err != nil {
		return fmt.Errorf("marshal event detail: %w", err)
	}
	return s.insert(ctx, ev.AgentID.String(), string(ev.Kind), detail)
}

// Follow drains events off ch, recording each one, until ch closes or ctx
// is cancelled. Insert errors are logged to errs (if non-nil) rather than
// stopping the loop — one bad row should never wedge the event consumer.
func (s *Store) Follow(ctx context.Context, ch <-chan orchestrator.Event, errs func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := s.Record(ctx, ev); err != nil && errs != nil {
				errs(err)
			}
		}
	}
}

func detailOf(ev orchestrator.Event) (string, error) {
	var v interface{}
	switch ev.Kind {
	case orchestrator.EventStateTransition:
		v = ev.Transition
	case orchestrator.EventDeploymentResult:
		v = ev.Deployment
	case orchestrator.EventReloadResult:
		v = ev.Reload
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *Store) insert(ctx context.Context, agentID, kind, detail string) error {
	const maxRetries = 3
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err = s.db.ExecContext(ctx, queryInsertEvent, agentID, kind, detail)
		if err == nil {
			return nil
		}
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
			continue
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return fmt.Errorf("insert event after %d retries: %w", maxRetries, err)
}

// All returns every recorded event, most recent first.
func (s *Store) All(ctx context.Context) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, querySelectAll)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scan(rows)
}

// ForAgent returns every recorded event for one agent, most recent first.
func (s *Store) ForAgent(ctx context.Context, agentID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, querySelectByAgent, agentID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scan(rows)
}

func scan(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.RecordedAt, &e.AgentID, &e.Kind, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
