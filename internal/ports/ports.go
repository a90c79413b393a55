// Package ports declares the storage contracts the services depend on.
package ports

import (
	"context"

	"expense/internal/core"
)

// Ports for outbound adapters.
type (
	// CategoryStore persists the one-level category tree. Lists are ordered
	// by name and subcategories carry their parent.
	CategoryStore interface {
		ListTopLevel(ctx context.Context) ([]core.Category, error)
		ListChildren(ctx context.Context, parentID int64) ([]core.Category, error)
		GetCategory(ctx context.Context, id int64) (core.Category, error)
		// CreateCategory stores a category; parentID nil creates a top-level one.
		// A duplicate name yields core.ErrDuplicateName.
		CreateCategory(ctx context.Context, name string, parentID *int64) (core.Category, error)
		// DeleteCategory removes a category together with its subcategories.
		DeleteCategory(ctx context.Context, id int64) error
		// UsedCategoryIDs returns the ids of categories that have at least one expense.
		UsedCategoryIDs(ctx context.Context) (map[int64]bool, error)
	}

	// ExpenseStore persists expenses. Returned expenses carry their full
	// category including its parent.
	ExpenseStore interface {
		GetExpense(ctx context.Context, id int64) (core.Expense, error)
		CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		DeleteExpense(ctx context.Context, id int64) error
		ListExpenses(ctx context.Context) ([]core.Expense, error)
		// SearchExpenses applies the filter; a top-level filter category
		// also matches its subcategories.
		SearchExpenses(ctx context.Context, f core.ExpenseFilter) ([]core.Expense, error)
	}

	Store interface {
		CategoryStore
		ExpenseStore
	}

	// Pinger is implemented by stores that can report readiness.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
