// Package worker keeps the spreadsheet mirror in step with the database by
// consuming expense events.
package worker

import (
	"context"
	"errors"
	"fmt"

	"expense/internal/amqp"
	"expense/internal/core"
	"expense/internal/log"
)

// ExpenseReader is the read side of the expense store.
type ExpenseReader interface {
	GetExpense(ctx context.Context, id int64) (core.Expense, error)
	ListExpenses(ctx context.Context) ([]core.Expense, error)
}

// Mirror is an external copy of the expenses keyed by id.
type Mirror interface {
	Upsert(ctx context.Context, e core.Expense) error
	Remove(ctx context.Context, id int64) error
}

// Consumer delivers expense events until ctx is done.
type Consumer interface {
	ConsumeExpenseEvents(ctx context.Context, handler func(context.Context, amqp.ExpenseEvent) error) error
}

// MirrorWorker applies expense events to the mirror. Events only carry the
// id, so the current state is always read back from the store.
type MirrorWorker struct {
	store  ExpenseReader
	mirror Mirror
	logger *log.Logger
}

func NewMirrorWorker(store ExpenseReader, mirror Mirror, logger *log.Logger) *MirrorWorker {
	return &MirrorWorker{
		store:  store,
		mirror: mirror,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// Run consumes events until ctx is cancelled.
func (w *MirrorWorker) Run(ctx context.Context, consumer Consumer) error {
	w.logger.InfoContext(ctx, "Mirror worker consuming expense events")
	err := consumer.ConsumeExpenseEvents(ctx, w.HandleEvent)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// HandleEvent mirrors a single event. An expense that no longer exists
// when a created or updated event arrives is removed from the mirror, so
// events delivered out of order converge on the database state.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev amqp.ExpenseEvent) error {
	logger := w.logger.With(log.FieldOperation, log.OpMirror, log.FieldEventType, string(ev.Type), log.FieldExpenseID, ev.ID)
	logger.InfoContext(ctx, "Processing expense event", "timestamp", ev.Timestamp)

	switch ev.Type {
	case amqp.EventCreated, amqp.EventUpdated:
		e, err := w.store.GetExpense(ctx, ev.ID)
		if errors.Is(err, core.ErrNotFound) {
			logger.WarnContext(ctx, "Expense vanished before it was mirrored, removing row")
			return w.remove(ctx, ev.ID)
		}
		if err != nil {
			return fmt.Errorf("get expense from storage: %w", err)
		}
		if err := w.mirror.Upsert(ctx, e); err != nil {
			return fmt.Errorf("mirror expense %d: %w", ev.ID, err)
		}
		logger.InfoContext(ctx, "Mirrored expense", log.FieldTotalCents, e.TotalPrice.Cents)
		return nil
	case amqp.EventDeleted:
		if err := w.remove(ctx, ev.ID); err != nil {
			return err
		}
		logger.InfoContext(ctx, "Removed mirrored expense")
		return nil
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

func (w *MirrorWorker) remove(ctx context.Context, id int64) error {
	if err := w.mirror.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove mirrored expense %d: %w", id, err)
	}
	return nil
}

// StartupSync writes every stored expense to the mirror. It recovers from
// events missed while the worker was down; rows of expenses deleted in the
// meantime are left alone.
func (w *MirrorWorker) StartupSync(ctx context.Context) error {
	expenses, err := w.store.ListExpenses(ctx)
	if err != nil {
		return fmt.Errorf("list expenses for startup sync: %w", err)
	}
	if len(expenses) == 0 {
		w.logger.InfoContext(ctx, "No expenses to mirror on startup")
		return nil
	}

	synced, failed := 0, 0
	for _, e := range expenses {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.mirror.Upsert(ctx, e); err != nil {
			w.logger.ErrorContext(ctx, "Failed to mirror expense during startup",
				log.FieldExpenseID, e.ID, log.FieldError, err)
			failed++
			continue
		}
		synced++
	}

	w.logger.InfoContext(ctx, "Startup sync completed",
		log.FieldOperation, log.OpStartup,
		"total", len(expenses),
		"synced", synced,
		"errors", failed)
	if failed > 0 {
		return fmt.Errorf("startup sync: %d of %d expenses failed", failed, len(expenses))
	}
	return nil
}
