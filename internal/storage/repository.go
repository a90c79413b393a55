package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"expense/internal/core"

	_ "modernc.org/sqlite"
)

// DSN builds the modernc connection string with foreign keys enforced.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ListTopLevel(ctx context.Context) ([]core.Category, error) {
	rows, err := r.queries.ListTopLevelCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list top-level categories: %w", err)
	}
	return toCategories(rows), nil
}

func (r *SQLiteRepository) ListChildren(ctx context.Context, parentID int64) ([]core.Category, error) {
	if _, err := r.GetCategory(ctx, parentID); err != nil {
		return nil, err
	}
	rows, err := r.queries.ListChildCategories(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("list subcategories of %d: %w", parentID, err)
	}
	return toCategories(rows), nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	row, err := r.queries.GetCategory(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, err)
	}
	return toCategory(row), nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, name string, parentID *int64) (core.Category, error) {
	var parent sql.NullInt64
	if parentID != nil {
		p, err := r.GetCategory(ctx, *parentID)
		if err != nil {
			return core.Category{}, err
		}
		if !p.IsTopLevel() {
			return core.Category{}, core.ErrNestedCategory
		}
		parent = sql.NullInt64{Int64: p.ID, Valid: true}
	}

	id, err := r.queries.CreateCategory(ctx, name, parent)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Category{}, fmt.Errorf("%w: %s", core.ErrDuplicateName, name)
		}
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}

	slog.InfoContext(ctx, "Category saved to SQLite", "id", id, "name", name, "parent_id", parent.Int64)
	return r.GetCategory(ctx, id)
}

// DeleteCategory removes the category and its subcategories in one
// transaction. Categories whose tree still has expenses are kept.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	n, err := q.CountTreeExpenses(ctx, id)
	if err != nil {
		return fmt.Errorf("count expenses of category %d: %w", id, err)
	}
	if n > 0 {
		return fmt.Errorf("category %d: %w", id, core.ErrCategoryInUse)
	}
	if err := q.DeleteChildCategories(ctx, id); err != nil {
		return fmt.Errorf("delete subcategories of %d: %w", id, err)
	}
	affected, err := q.DeleteCategory(ctx, id)
	if err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Category deleted from SQLite", "id", id)
	return nil
}

func (r *SQLiteRepository) UsedCategoryIDs(ctx context.Context) (map[int64]bool, error) {
	ids, err := r.queries.UsedCategoryIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("used category ids: %w", err)
	}
	used := make(map[int64]bool, len(ids))
	for _, id := range ids {
		used[id] = true
	}
	return used, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	row, err := r.queries.GetExpense(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return toExpense(row)
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if _, err := r.GetCategory(ctx, e.Category.ID); err != nil {
		return core.Expense{}, err
	}
	id, err := r.queries.CreateExpense(ctx, CreateExpenseParams{
		CategoryID:      e.Category.ID,
		Count:           int64(e.Count),
		UnitPriceCents:  e.UnitPrice.Cents,
		TotalPriceCents: e.TotalPrice.Cents,
		LocalDate:       e.Date.String(),
		Note:            e.Note,
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", id,
		"category_id", e.Category.ID,
		"total_cents", e.TotalPrice.Cents,
		"date", e.Date.String())

	return r.GetExpense(ctx, id)
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if _, err := r.GetCategory(ctx, e.Category.ID); err != nil {
		return core.Expense{}, err
	}
	affected, err := r.queries.UpdateExpense(ctx, UpdateExpenseParams{
		ID:              e.ID,
		CategoryID:      e.Category.ID,
		Count:           int64(e.Count),
		UnitPriceCents:  e.UnitPrice.Cents,
		TotalPriceCents: e.TotalPrice.Cents,
		LocalDate:       e.Date.String(),
		Note:            e.Note,
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %d: %w", e.ID, err)
	}
	if affected == 0 {
		return core.Expense{}, fmt.Errorf("expense %d: %w", e.ID, core.ErrNotFound)
	}
	return r.GetExpense(ctx, e.ID)
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id int64) error {
	affected, err := r.queries.DeleteExpense(ctx, id)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.queries.ListExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return toExpenses(rows)
}

var orderColumns = map[core.OrderBy]string{
	core.OrderByDate:       "e.local_date",
	core.OrderByTotalPrice: "e.total_price_cents",
	core.OrderByUnitPrice:  "e.unit_price_cents",
	core.OrderByCount:      "e.count",
	core.OrderByNote:       "e.note",
	core.OrderByID:         "e.id",
}

func (r *SQLiteRepository) SearchExpenses(ctx context.Context, f core.ExpenseFilter) ([]core.Expense, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	order, _ := core.ParseOrderBy(string(f.OrderBy))
	arg := SearchExpensesParams{
		From:        f.From.String(),
		To:          f.To.String(),
		OrderColumn: orderColumns[order],
	}
	if f.CategoryID != 0 {
		arg.CategoryID = sql.NullInt64{Int64: f.CategoryID, Valid: true}
	}
	if f.MinTotal != nil {
		arg.MinTotal = sql.NullInt64{Int64: f.MinTotal.Cents, Valid: true}
	}
	if f.MaxTotal != nil {
		arg.MaxTotal = sql.NullInt64{Int64: f.MaxTotal.Cents, Valid: true}
	}
	if note := strings.TrimSpace(f.Note); note != "" {
		arg.Note = sql.NullString{String: note, Valid: true}
	}

	rows, err := r.queries.SearchExpenses(ctx, arg)
	if err != nil {
		return nil, fmt.Errorf("search expenses: %w", err)
	}
	return toExpenses(rows)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toCategory(row Category) core.Category {
	c := core.Category{ID: row.ID, Name: row.Name}
	if row.ParentID.Valid {
		c.Parent = &core.Category{ID: row.ParentID.Int64, Name: row.ParentName.String}
	}
	return c
}

func toCategories(rows []Category) []core.Category {
	out := make([]core.Category, len(rows))
	for i, row := range rows {
		out[i] = toCategory(row)
	}
	return out
}

func toExpense(row ExpenseRow) (core.Expense, error) {
	d, err := core.ParseDate(row.LocalDate)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d: %w", row.ID, err)
	}
	return core.Expense{
		ID: row.ID,
		Category: toCategory(Category{
			ID:         row.CategoryID,
			Name:       row.CategoryName,
			ParentID:   row.ParentID,
			ParentName: row.ParentName,
		}),
		Count:      int(row.Count),
		UnitPrice:  core.Money{Cents: row.UnitPriceCents},
		TotalPrice: core.Money{Cents: row.TotalPriceCents},
		Date:       d,
		Note:       row.Note,
	}, nil
}

func toExpenses(rows []ExpenseRow) ([]core.Expense, error) {
	out := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		e, err := toExpense(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
