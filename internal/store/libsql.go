package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/flowplan/pkg/schema"
)

// LibSQLStore implements PlanStore using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

var _ PlanStore = (*LibSQLStore)(nil)

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/plans.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows, so QueryRow is used for all of them.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

const planColumns = "id, workflow, hash, node_count, level_count, warning_count, created_at"

func (s *LibSQLStore) SavePlan(ctx context.Context, rec *PlanRecord) error {
	if rec == nil || rec.Plan == nil {
		return schema.NewError(schema.ErrCodeStore, "plan record has no plan")
	}
	if rec.ID == "" {
		return schema.NewError(schema.ErrCodeStore, "plan record has no id")
	}
	body, err := json.Marshal(rec.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	rec.CreatedAt = timeOrNow(rec.CreatedAt)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO plans (id, workflow, hash, plan, node_count, level_count, warning_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET workflow=excluded.workflow, hash=excluded.hash, plan=excluded.plan,
		   node_count=excluded.node_count, level_count=excluded.level_count, warning_count=excluded.warning_count`,
		rec.ID, rec.Workflow, rec.Hash, string(body),
		rec.NodeCount, rec.LevelCount, rec.WarningCount, rec.CreatedAt,
	)
	if err != nil {
		return storeErr("save plan", err)
	}
	return nil
}

func (s *LibSQLStore) GetPlan(ctx context.Context, id string) (*PlanRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+planColumns+`, plan FROM plans WHERE id = ?`, id)
	rec, err := scanPlanWithBody(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("plan", id)
	}
	return rec, err
}

func (s *LibSQLStore) GetPlanByHash(ctx context.Context, hash string) (*PlanRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+planColumns+`, plan FROM plans WHERE hash = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, hash)
	rec, err := scanPlanWithBody(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("plan with hash", hash)
	}
	return rec, err
}

func (s *LibSQLStore) ListPlans(ctx context.Context, filter PlanFilter) ([]*PlanRecord, error) {
	var where []string
	var args []any

	if filter.Workflow != "" {
		where = append(where, "workflow = ?")
		args = append(args, filter.Workflow)
	}
	if filter.Hash != "" {
		where = append(where, "hash = ?")
		args = append(args, filter.Hash)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := "SELECT " + planColumns + " FROM plans"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list plans", err)
	}
	defer rows.Close()

	var plans []*PlanRecord
	for rows.Next() {
		rec := &PlanRecord{}
		if err := rows.Scan(&rec.ID, &rec.Workflow, &rec.Hash,
			&rec.NodeCount, &rec.LevelCount, &rec.WarningCount, &rec.CreatedAt); err != nil {
			return nil, err
		}
		plans = append(plans, rec)
	}
	return plans, rows.Err()
}

func (s *LibSQLStore) DeletePlan(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete plan", err)
	}
	return checkRowsAffected(res, "plan", id)
}

func (s *LibSQLStore) PrunePlans(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE created_at < ?`, before)
	if err != nil {
		return 0, storeErr("prune plans", err)
	}
	return res.RowsAffected()
}

// --- Helpers ---

func scanPlanWithBody(row *sql.Row) (*PlanRecord, error) {
	rec := &PlanRecord{}
	var body string
	if err := row.Scan(&rec.ID, &rec.Workflow, &rec.Hash,
		&rec.NodeCount, &rec.LevelCount, &rec.WarningCount, &rec.CreatedAt, &body); err != nil {
		return nil, err
	}
	rec.Plan = &schema.ExecutionPlan{}
	if err := json.Unmarshal([]byte(body), rec.Plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan %s: %w", rec.ID, err)
	}
	return rec, nil
}

func storeNotFound(resource, id string) *schema.BuildError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeErr(op string, err error) *schema.BuildError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s failed", op).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
