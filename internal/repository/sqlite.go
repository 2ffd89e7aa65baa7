package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"

	"echopulse/internal/agent"
	"echopulse/internal/zones"
	"echopulse/pkg/logging"
)

const sqliteSubsystem = "SQLite"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLite provides SQLite-backed persistence for agent records.
type SQLite struct {
	db *sql.DB
	q  querier
}

// OpenSQLite opens (creating if needed) the database file at path and
// migrates it to the current schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("open sqlite: path is empty")
	}

	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	dsn := "file:" + path + "?" + params.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer at a time; readers queue behind an open cycle transaction
	// and therefore only see committed cycles.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logging.Info(sqliteSubsystem, "Opened agent store at %s", path)
	return &SQLite{db: db, q: db}, nil
}

const upsertSQL = `INSERT INTO agents (id, name, status, mood, zone, created_at, updated_at, is_active, thought_log)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		status = excluded.status,
		mood = excluded.mood,
		zone = excluded.zone,
		updated_at = excluded.updated_at,
		is_active = excluded.is_active`

func (s *SQLite) Upsert(ctx context.Context, a agent.Agent) error {
	thoughts, err := json.Marshal(a.ThoughtLog)
	if err != nil {
		return agent.NewRepositoryError("upsert", fmt.Errorf("encode thought_log: %w", err))
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = a.UpdatedAt
	}
	_, err = s.q.ExecContext(ctx, upsertSQL,
		a.ID, a.Name, a.Status, string(a.Mood), string(a.Zone),
		formatTime(createdAt), formatTime(a.UpdatedAt), a.IsActive, string(thoughts))
	return agent.NewRepositoryError("upsert", err)
}

const selectColumns = `SELECT id, name, status, mood, zone, created_at, updated_at, is_active, thought_log FROM agents`

func (s *SQLite) List(ctx context.Context, activeOnly bool) ([]agent.Agent, error) {
	query := selectColumns
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`
	agents, err := s.query(ctx, query)
	return agents, agent.NewRepositoryError("list", err)
}

func (s *SQLite) ListInactive(ctx context.Context) ([]agent.Agent, error) {
	agents, err := s.query(ctx, selectColumns+` WHERE is_active = 0 ORDER BY updated_at DESC, id`)
	return agents, agent.NewRepositoryError("list inactive", err)
}

func (s *SQLite) Deactivate(ctx context.Context, id string, at time.Time) error {
	_, err := s.q.ExecContext(ctx, `UPDATE agents SET is_active = 0, updated_at = ? WHERE id = ?`, formatTime(at), id)
	return agent.NewRepositoryError("deactivate", err)
}

// InTx runs fn inside a single SQL transaction.
func (s *SQLite) InTx(ctx context.Context, fn func(tx agent.Repository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return agent.NewRepositoryError("begin", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&SQLite{db: s.db, q: tx}); err != nil {
		return err
	}
	return agent.NewRepositoryError("commit", tx.Commit())
}

func (s *SQLite) Close() error {
	if s.q != s.db {
		// transaction-bound view; the owner closes the handle
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) query(ctx context.Context, query string, args ...any) ([]agent.Agent, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := make([]agent.Agent, 0)
	for rows.Next() {
		var (
			a                    agent.Agent
			mood, zone           string
			createdAt, updatedAt string
			thoughts             string
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Status, &mood, &zone, &createdAt, &updatedAt, &a.IsActive, &thoughts); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.Mood = zones.Mood(mood)
		a.Zone = zones.Zone(zone)
		if a.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", a.ID, err)
		}
		if a.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at of %s: %w", a.ID, err)
		}
		if thoughts != "" {
			if err := json.Unmarshal([]byte(thoughts), &a.ThoughtLog); err != nil {
				return nil, fmt.Errorf("decode thought_log of %s: %w", a.ID, err)
			}
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
