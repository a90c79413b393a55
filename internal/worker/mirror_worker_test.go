package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expense/internal/amqp"
	"expense/internal/core"
	"expense/internal/log"
	"expense/internal/memory"
)

type fakeMirror struct {
	mu      sync.Mutex
	rows    map[int64]core.Expense
	failIDs map[int64]bool
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{rows: make(map[int64]core.Expense), failIDs: make(map[int64]bool)}
}

func (m *fakeMirror) Upsert(_ context.Context, e core.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIDs[e.ID] {
		return errors.New("quota exceeded")
	}
	m.rows[e.ID] = e
	return nil
}

func (m *fakeMirror) Remove(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *fakeMirror) ids() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, 0, len(m.rows))
	for id := range m.rows {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// fakeConsumer replays events then blocks until cancelled.
type fakeConsumer struct {
	events []amqp.ExpenseEvent
	errs   []error
}

func (c *fakeConsumer) ConsumeExpenseEvents(ctx context.Context, handler func(context.Context, amqp.ExpenseEvent) error) error {
	for _, ev := range c.events {
		c.errs = append(c.errs, handler(ctx, ev))
	}
	<-ctx.Done()
	return ctx.Err()
}

func newFixture(t *testing.T) (*memory.Store, core.Category) {
	t.Helper()
	store := memory.New()
	food, err := store.CreateCategory(context.Background(), "Food", nil)
	require.NoError(t, err)
	return store, food
}

func addExpense(t *testing.T, store *memory.Store, cat core.Category, cents int64) core.Expense {
	t.Helper()
	e, err := store.CreateExpense(context.Background(), core.Expense{
		Category:   cat,
		Count:      1,
		UnitPrice:  core.Money{Cents: cents},
		TotalPrice: core.Money{Cents: cents},
		Date:       core.NewDate(2025, 6, 1),
	})
	require.NoError(t, err)
	return e
}

func discardLogger() *log.Logger {
	return log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

func TestMirrorWorker_HandleEvent(t *testing.T) {
	ctx := context.Background()
	store, food := newFixture(t)
	mirror := newFakeMirror()
	w := NewMirrorWorker(store, mirror, discardLogger())

	e := addExpense(t, store, food, 1200)
	require.NoError(t, w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.EventCreated, e.ID)))
	assert.Equal(t, []int64{e.ID}, mirror.ids())

	e.Note = "lunch"
	_, err := store.UpdateExpense(ctx, e)
	require.NoError(t, err)
	require.NoError(t, w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.EventUpdated, e.ID)))
	assert.Equal(t, "lunch", mirror.rows[e.ID].Note)
	assert.Equal(t, "Food", mirror.rows[e.ID].Category.Name)

	require.NoError(t, store.DeleteExpense(ctx, e.ID))
	require.NoError(t, w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.EventDeleted, e.ID)))
	assert.Empty(t, mirror.ids())
}

func TestMirrorWorker_CreatedAfterDeleteRemovesRow(t *testing.T) {
	ctx := context.Background()
	store, food := newFixture(t)
	mirror := newFakeMirror()
	w := NewMirrorWorker(store, mirror, discardLogger())

	e := addExpense(t, store, food, 500)
	mirror.rows[e.ID] = e
	require.NoError(t, store.DeleteExpense(ctx, e.ID))

	require.NoError(t, w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.EventUpdated, e.ID)))
	assert.Empty(t, mirror.ids())
}

func TestMirrorWorker_HandleEventErrors(t *testing.T) {
	ctx := context.Background()
	store, food := newFixture(t)
	mirror := newFakeMirror()
	w := NewMirrorWorker(store, mirror, discardLogger())

	e := addExpense(t, store, food, 500)
	mirror.failIDs[e.ID] = true
	err := w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.EventCreated, e.ID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	err = w.HandleEvent(ctx, amqp.ExpenseEvent{Type: "archived", ID: e.ID})
	assert.Error(t, err)
}

func TestMirrorWorker_StartupSync(t *testing.T) {
	ctx := context.Background()
	store, food := newFixture(t)
	mirror := newFakeMirror()
	w := NewMirrorWorker(store, mirror, discardLogger())

	require.NoError(t, w.StartupSync(ctx), "empty store")

	a := addExpense(t, store, food, 100)
	b := addExpense(t, store, food, 200)
	c := addExpense(t, store, food, 300)
	mirror.failIDs[b.ID] = true

	err := w.StartupSync(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3")
	assert.Equal(t, []int64{a.ID, c.ID}, mirror.ids(), "failures do not stop the sync")
}

func TestMirrorWorker_Run(t *testing.T) {
	store, food := newFixture(t)
	mirror := newFakeMirror()
	w := NewMirrorWorker(store, mirror, discardLogger())

	e := addExpense(t, store, food, 700)
	consumer := &fakeConsumer{events: []amqp.ExpenseEvent{amqp.NewExpenseEvent(amqp.EventCreated, e.ID)}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, consumer) }()

	require.Eventually(t, func() bool { return len(mirror.ids()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done, "cancellation is a clean stop")
	assert.Equal(t, []error{nil}, consumer.errs)
}
