package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const categoryColumns = `c.id, c.name, p.id, p.name
FROM category c
LEFT JOIN category p ON p.id = c.parent_id`

const listTopLevelCategories = `SELECT ` + categoryColumns + `
WHERE c.parent_id IS NULL
ORDER BY c.name`

func (q *Queries) ListTopLevelCategories(ctx context.Context) ([]Category, error) {
	return q.queryCategories(ctx, listTopLevelCategories)
}

const listChildCategories = `SELECT ` + categoryColumns + `
WHERE c.parent_id = ?
ORDER BY c.name`

func (q *Queries) ListChildCategories(ctx context.Context, parentID int64) ([]Category, error) {
	return q.queryCategories(ctx, listChildCategories, parentID)
}

const getCategory = `SELECT ` + categoryColumns + `
WHERE c.id = ?`

func (q *Queries) GetCategory(ctx context.Context, id int64) (Category, error) {
	row := q.db.QueryRowContext(ctx, getCategory, id)
	var i Category
	err := row.Scan(&i.ID, &i.Name, &i.ParentID, &i.ParentName)
	return i, err
}

const createCategory = `INSERT INTO category (name, parent_id) VALUES (?, ?)
RETURNING id`

func (q *Queries) CreateCategory(ctx context.Context, name string, parentID sql.NullInt64) (int64, error) {
	row := q.db.QueryRowContext(ctx, createCategory, name, parentID)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const deleteChildCategories = `DELETE FROM category WHERE parent_id = ?`

func (q *Queries) DeleteChildCategories(ctx context.Context, parentID int64) error {
	_, err := q.db.ExecContext(ctx, deleteChildCategories, parentID)
	return err
}

const deleteCategory = `DELETE FROM category WHERE id = ?`

func (q *Queries) DeleteCategory(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteCategory, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countTreeExpenses = `SELECT COUNT(*) FROM expense
WHERE category_id IN (SELECT id FROM category WHERE id = ? OR parent_id = ?)`

func (q *Queries) CountTreeExpenses(ctx context.Context, categoryID int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, countTreeExpenses, categoryID, categoryID)
	var n int64
	err := row.Scan(&n)
	return n, err
}

const usedCategoryIDs = `SELECT DISTINCT category_id FROM expense`

func (q *Queries) UsedCategoryIDs(ctx context.Context) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, usedCategoryIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	return items, rows.Err()
}

func (q *Queries) queryCategories(ctx context.Context, query string, args ...interface{}) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		var i Category
		if err := rows.Scan(&i.ID, &i.Name, &i.ParentID, &i.ParentName); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const expenseColumns = `e.id, e.count, e.unit_price_cents, e.total_price_cents, e.local_date, e.note,
       c.id, c.name, p.id, p.name
FROM expense e
JOIN category c ON c.id = e.category_id
LEFT JOIN category p ON p.id = c.parent_id`

const getExpense = `SELECT ` + expenseColumns + `
WHERE e.id = ?`

func (q *Queries) GetExpense(ctx context.Context, id int64) (ExpenseRow, error) {
	row := q.db.QueryRowContext(ctx, getExpense, id)
	var i ExpenseRow
	err := scanExpense(row, &i)
	return i, err
}

const listExpenses = `SELECT ` + expenseColumns + `
ORDER BY e.local_date, e.id`

func (q *Queries) ListExpenses(ctx context.Context) ([]ExpenseRow, error) {
	return q.queryExpenses(ctx, listExpenses)
}

// SearchExpensesParams carries the optional predicates of a search. Columns
// in OrderColumn come from a fixed whitelist, never from user input.
type SearchExpensesParams struct {
	From        string
	To          string
	CategoryID  sql.NullInt64
	MinTotal    sql.NullInt64
	MaxTotal    sql.NullInt64
	Note        sql.NullString
	OrderColumn string
}

func (q *Queries) SearchExpenses(ctx context.Context, arg SearchExpensesParams) ([]ExpenseRow, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + expenseColumns + "\nWHERE e.local_date BETWEEN ? AND ?")
	args := []interface{}{arg.From, arg.To}
	if arg.CategoryID.Valid {
		sb.WriteString("\n  AND e.category_id IN (SELECT id FROM category WHERE id = ? OR parent_id = ?)")
		args = append(args, arg.CategoryID.Int64, arg.CategoryID.Int64)
	}
	if arg.MinTotal.Valid {
		sb.WriteString("\n  AND e.total_price_cents >= ?")
		args = append(args, arg.MinTotal.Int64)
	}
	if arg.MaxTotal.Valid {
		sb.WriteString("\n  AND e.total_price_cents <= ?")
		args = append(args, arg.MaxTotal.Int64)
	}
	if arg.Note.Valid {
		sb.WriteString("\n  AND LOWER(e.note) LIKE '%' || LOWER(?) || '%'")
		args = append(args, arg.Note.String)
	}
	order := arg.OrderColumn
	if order == "" {
		order = "e.local_date"
	}
	fmt.Fprintf(&sb, "\nORDER BY %s, e.id", order)
	return q.queryExpenses(ctx, sb.String(), args...)
}

const createExpense = `INSERT INTO expense (category_id, count, unit_price_cents, total_price_cents, local_date, note)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id`

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createExpense,
		arg.CategoryID,
		arg.Count,
		arg.UnitPriceCents,
		arg.TotalPriceCents,
		arg.LocalDate,
		arg.Note,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const updateExpense = `UPDATE expense
SET category_id = ?, count = ?, unit_price_cents = ?, total_price_cents = ?, local_date = ?, note = ?,
    updated_at = CURRENT_TIMESTAMP
WHERE id = ?`

func (q *Queries) UpdateExpense(ctx context.Context, arg UpdateExpenseParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateExpense,
		arg.CategoryID,
		arg.Count,
		arg.UnitPriceCents,
		arg.TotalPriceCents,
		arg.LocalDate,
		arg.Note,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteExpense = `DELETE FROM expense WHERE id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpense, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) queryExpenses(ctx context.Context, query string, args ...interface{}) ([]ExpenseRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ExpenseRow
	for rows.Next() {
		var i ExpenseRow
		if err := scanExpense(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExpense(s scanner, i *ExpenseRow) error {
	return s.Scan(
		&i.ID,
		&i.Count,
		&i.UnitPriceCents,
		&i.TotalPriceCents,
		&i.LocalDate,
		&i.Note,
		&i.CategoryID,
		&i.CategoryName,
		&i.ParentID,
		&i.ParentName,
	)
}
