package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seantiz/vantage/internal/model"

	_ "modernc.org/sqlite"
)

const createInvocationsTable = `
CREATE TABLE IF NOT EXISTS invocations (
    id             TEXT PRIMARY KEY,
    status         TEXT NOT NULL,
    function       TEXT NOT NULL,
    datasource     TEXT NOT NULL,
    account        TEXT NOT NULL,
    input_hash     TEXT,
    input          BLOB,
    outputs        BLOB,
    sub_operations INTEGER,
    error          TEXT,
    duration_ms    INTEGER,
    created_at     DATETIME NOT NULL,
    started_at     DATETIME,
    finished_at    DATETIME
)`

const createInvocationsIndex = `
CREATE INDEX IF NOT EXISTS invocations_created_at ON invocations (created_at DESC)`

const invocationColumns = `id, status, function, datasource, account, input_hash,
	input, outputs, sub_operations, error, duration_ms,
	created_at, started_at, finished_at`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createInvocationsTable, createInvocationsIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate invocations: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateInvocation inserts a new invocation record.
func (s *SQLiteStore) CreateInvocation(ctx context.Context, inv *model.Invocation) error {
	outputs, err := encodeOutputs(inv.Outputs)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO invocations (`+invocationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Status, inv.Function, inv.Datasource, inv.Account, inv.InputHash,
		[]byte(inv.Input), outputs, inv.SubOperations, inv.Error, inv.DurationMS,
		inv.CreatedAt, inv.StartedAt, inv.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	return nil
}

// GetInvocation retrieves an invocation by ID.
func (s *SQLiteStore) GetInvocation(ctx context.Context, id string) (*model.Invocation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invocationColumns+` FROM invocations WHERE id = ?`, id)

	inv, err := scanInvocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invocation: %w", err)
	}
	return inv, nil
}

// ListInvocations returns a page of invocations matching f ordered by
// created_at DESC, along with the total count of matching invocations. A
// non-positive limit returns every match.
func (s *SQLiteStore) ListInvocations(ctx context.Context, f ListFilter) ([]*model.Invocation, int, error) {
	var where []string
	var args []any
	if f.Function != "" {
		where = append(where, "function = ?")
		args = append(args, f.Function)
	}
	if f.Datasource != "" {
		where = append(where, "datasource = ?")
		args = append(args, f.Datasource)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM invocations"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invocations: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+invocationColumns+` FROM invocations`+clause+
			` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, f.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list invocations: %w", err)
	}
	defer rows.Close()

	var invocations []*model.Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan invocation: %w", err)
		}
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate invocations: %w", err)
	}

	return invocations, total, nil
}

// UpdateInvocationStatus moves an invocation to status. Moving to running
// sets started_at; moving to a terminal status sets finished_at.
func (s *SQLiteStore) UpdateInvocationStatus(ctx context.Context, id, status string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := checkTransition(ctx, tx, id, status); err != nil {
		return err
	}

	now := time.Now().UTC()
	switch {
	case status == model.StatusRunning:
		_, err = tx.ExecContext(ctx,
			"UPDATE invocations SET status = ?, started_at = ? WHERE id = ?", status, now, id)
	case model.Terminal(status):
		_, err = tx.ExecContext(ctx,
			"UPDATE invocations SET status = ?, finished_at = ? WHERE id = ?", status, now, id)
	default:
		_, err = tx.ExecContext(ctx,
			"UPDATE invocations SET status = ? WHERE id = ?", status, id)
	}
	if err != nil {
		return fmt.Errorf("update invocation status: %w", err)
	}

	return tx.Commit()
}

// UpdateInvocation writes every mutable field of inv. A status change must be
// a valid transition.
func (s *SQLiteStore) UpdateInvocation(ctx context.Context, inv *model.Invocation) error {
	outputs, err := encodeOutputs(inv.Outputs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := checkTransition(ctx, tx, inv.ID, inv.Status); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE invocations SET status = ?, outputs = ?, sub_operations = ?, error = ?,
			duration_ms = ?, started_at = ?, finished_at = ?
		WHERE id = ?`,
		inv.Status, outputs, inv.SubOperations, inv.Error,
		inv.DurationMS, inv.StartedAt, inv.FinishedAt, inv.ID,
	)
	if err != nil {
		return fmt.Errorf("update invocation: %w", err)
	}

	return tx.Commit()
}

// GetInvocationStats aggregates invocation counts and the mean duration of
// invocations that recorded one.
func (s *SQLiteStore) GetInvocationStats(ctx context.Context) (*InvocationStats, error) {
	stats := &InvocationStats{
		CountByStatus:     map[string]int{},
		CountByFunction:   map[string]int{},
		CountByDatasource: map[string]int{},
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), AVG(duration_ms) FROM invocations",
	).Scan(&stats.Total, &avg); err != nil {
		return nil, fmt.Errorf("count invocations: %w", err)
	}
	stats.AvgDurationMS = avg.Float64

	groups := []struct {
		column string
		into   map[string]int
	}{
		{"status", stats.CountByStatus},
		{"function", stats.CountByFunction},
		{"datasource", stats.CountByDatasource},
	}
	for _, g := range groups {
		if err := s.countBy(ctx, g.column, g.into); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

// countBy fills into with invocation counts grouped by column. column is
// never user input.
func (s *SQLiteStore) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM invocations GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		into[key] = n
	}
	return rows.Err()
}

// checkTransition verifies that the invocation exists and that moving it to
// status is allowed. Keeping the current status is always allowed.
func checkTransition(ctx context.Context, tx *sql.Tx, id, status string) error {
	var current string
	err := tx.QueryRowContext(ctx, "SELECT status FROM invocations WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read invocation status: %w", err)
	}
	if current != status && !model.ValidTransition(current, status) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current, status)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvocation(row scanner) (*model.Invocation, error) {
	inv := &model.Invocation{}
	var input, outputs []byte
	if err := row.Scan(
		&inv.ID, &inv.Status, &inv.Function, &inv.Datasource, &inv.Account, &inv.InputHash,
		&input, &outputs, &inv.SubOperations, &inv.Error, &inv.DurationMS,
		&inv.CreatedAt, &inv.StartedAt, &inv.FinishedAt,
	); err != nil {
		return nil, err
	}
	if len(input) > 0 {
		inv.Input = json.RawMessage(input)
	}
	if len(outputs) > 0 {
		if err := json.Unmarshal(outputs, &inv.Outputs); err != nil {
			return nil, fmt.Errorf("decode outputs of %s: %w", inv.ID, err)
		}
	}
	return inv, nil
}

func encodeOutputs(outputs []model.Output) ([]byte, error) {
	if outputs == nil {
		return nil, nil
	}
	raw, err := json.Marshal(outputs)
	if err != nil {
		return nil, fmt.Errorf("encode outputs: %w", err)
	}
	return raw, nil
}
