package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"expense/internal/core"
)

func TestNewFromFilesSeeds(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := NewFromFiles(dir)
	top, _ := s.ListTopLevel(ctx)
	if len(top) == 0 {
		t.Fatalf("expected defaults when files missing")
	}

	content := "# header\nHome > Rent\nHome > Rent\nFood\n\nHome > Utilities\n"
	if err := os.WriteFile(filepath.Join(dir, "seed_categories.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	s = NewFromFiles(dir)
	top, _ = s.ListTopLevel(ctx)
	if len(top) != 2 || top[0].Name != "Food" || top[1].Name != "Home" {
		t.Fatalf("unexpected top-level: %+v", top)
	}
	children, err := s.ListChildren(ctx, top[1].ID)
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(children) != 2 || children[0].Name != "Rent" || children[1].Name != "Utilities" {
		t.Fatalf("unexpected children: %+v", children)
	}
	if children[0].Parent == nil || children[0].Parent.Name != "Home" {
		t.Fatalf("expected parent on child: %+v", children[0])
	}
}

func TestCategoryRules(t *testing.T) {
	ctx := context.Background()
	s := New()

	home, err := s.CreateCategory(ctx, "Home", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rent, err := s.CreateCategory(ctx, "Rent", &home.ID)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if _, err := s.CreateCategory(ctx, "Deposit", &rent.ID); !errors.Is(err, core.ErrNestedCategory) {
		t.Fatalf("expected ErrNestedCategory, got %v", err)
	}
	if _, err := s.CreateCategory(ctx, "home", nil); !errors.Is(err, core.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	missing := int64(99)
	if _, err := s.CreateCategory(ctx, "X", &missing); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.DeleteCategory(ctx, home.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetCategory(ctx, rent.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected child removed with parent, got %v", err)
	}
}

func TestExpenseLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	home, _ := s.CreateCategory(ctx, "Home", nil)
	rent, _ := s.CreateCategory(ctx, "Rent", &home.ID)
	food, _ := s.CreateCategory(ctx, "Food", nil)

	add := func(cat core.Category, cents int64, d core.Date, note string) core.Expense {
		t.Helper()
		e := core.Expense{Category: core.Category{ID: cat.ID}, UnitPrice: core.Money{Cents: cents}, Date: d, Note: note}
		e.Normalize()
		out, err := s.CreateExpense(ctx, e)
		if err != nil {
			t.Fatalf("create expense: %v", err)
		}
		return out
	}
	e1 := add(rent, 80000, core.NewDate(2025, 1, 1), "January rent")
	add(home, 1500, core.NewDate(2025, 1, 10), "bulbs")
	add(food, 2000, core.NewDate(2025, 2, 1), "pizza")

	if e1.ID != 1 || e1.Category.Parent == nil || e1.Category.Parent.ID != home.ID {
		t.Fatalf("expected hydrated category: %+v", e1)
	}

	got, err := s.SearchExpenses(ctx, core.ExpenseFilter{From: core.NewDate(2025, 1, 1), To: core.NewDate(2025, 12, 31), CategoryID: home.ID})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected parent filter to include children, got %d", len(got))
	}

	if err := s.DeleteCategory(ctx, home.ID); !errors.Is(err, core.ErrCategoryInUse) {
		t.Fatalf("expected ErrCategoryInUse, got %v", err)
	}

	used, _ := s.UsedCategoryIDs(ctx)
	if !used[rent.ID] || !used[home.ID] || !used[food.ID] {
		t.Fatalf("unexpected used set: %v", used)
	}

	e1.Note = "rent"
	if _, err := s.UpdateExpense(ctx, e1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.DeleteExpense(ctx, e1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetExpense(ctx, e1.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	all, _ := s.ListExpenses(ctx)
	if len(all) != 2 {
		t.Fatalf("expected 2 expenses, got %d", len(all))
	}
}
