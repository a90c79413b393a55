package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}

type Category struct {
	ID         int64
	Name       string
	ParentID   sql.NullInt64
	ParentName sql.NullString
}

type ExpenseRow struct {
	ID              int64
	Count           int64
	UnitPriceCents  int64
	TotalPriceCents int64
	LocalDate       string
	Note            string
	CategoryID      int64
	CategoryName    string
	ParentID        sql.NullInt64
	ParentName      sql.NullString
}

type CreateExpenseParams struct {
	CategoryID      int64
	Count           int64
	UnitPriceCents  int64
	TotalPriceCents int64
	LocalDate       string
	Note            string
}

type UpdateExpenseParams struct {
	ID              int64
	CategoryID      int64
	Count           int64
	UnitPriceCents  int64
	TotalPriceCents int64
	LocalDate       string
	Note            string
}
