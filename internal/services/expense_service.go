package services

import (
	"context"
	"fmt"
	"log/slog"

	"expense/internal/amqp"
	"expense/internal/core"
	"expense/internal/ports"
)

// EventPublisher announces expense changes to other processes.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, ev amqp.ExpenseEvent) error
}

// ExpenseService orchestrates expense operations across the store and AMQP.
// Publishing is best effort: a failed publish never fails the operation.
type ExpenseService struct {
	store     ports.Store
	publisher EventPublisher
}

// NewExpenseService wires the service; publisher may be nil.
func NewExpenseService(store ports.Store, publisher EventPublisher) *ExpenseService {
	return &ExpenseService{
		store:     store,
		publisher: publisher,
	}
}

func (s *ExpenseService) Get(ctx context.Context, id int64) (core.Expense, error) {
	return s.store.GetExpense(ctx, id)
}

func (s *ExpenseService) List(ctx context.Context) ([]core.Expense, error) {
	return s.store.ListExpenses(ctx)
}

// Create derives the total, validates and stores the expense.
func (s *ExpenseService) Create(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.ID = 0
	e.Normalize()
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	saved, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.publish(ctx, amqp.EventCreated, saved.ID)
	return saved, nil
}

// Update applies a partial update and recomputes the total.
func (s *ExpenseService) Update(ctx context.Context, id int64, patch core.ExpensePatch) (core.Expense, error) {
	current, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	patch.Apply(&current)
	if err := current.Validate(); err != nil {
		return core.Expense{}, err
	}
	saved, err := s.store.UpdateExpense(ctx, current)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	s.publish(ctx, amqp.EventUpdated, saved.ID)
	return saved, nil
}

func (s *ExpenseService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.publish(ctx, amqp.EventDeleted, id)
	return nil
}

func (s *ExpenseService) Search(ctx context.Context, f core.ExpenseFilter) ([]core.Expense, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return s.store.SearchExpenses(ctx, f)
}

// Bar aggregates expenses in [from, to] for the bar chart. categoryID 0
// groups by top-level category, otherwise by the subcategories of the
// given category.
func (s *ExpenseService) Bar(ctx context.Context, from, to core.Date, categoryID int64) (core.BarData, error) {
	f := core.ExpenseFilter{From: from, To: to, CategoryID: categoryID}
	if err := f.Validate(); err != nil {
		return core.BarData{}, err
	}
	var root *core.Category
	if categoryID != 0 {
		c, err := s.store.GetCategory(ctx, categoryID)
		if err != nil {
			return core.BarData{}, err
		}
		root = &c
	}
	expenses, err := s.store.SearchExpenses(ctx, f)
	if err != nil {
		return core.BarData{}, err
	}
	return core.SumByCategory(expenses, root), nil
}

func (s *ExpenseService) publish(ctx context.Context, t amqp.EventType, id int64) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not configured, skipping event", "type", t, "id", id)
		return
	}
	if err := s.publisher.PublishExpenseEvent(ctx, amqp.NewExpenseEvent(t, id)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish expense event", "type", t, "id", id, "error", err)
	}
}
