// Package memory provides an in-process store used for development and tests.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"expense/internal/core"
)

type category struct {
	id       int64
	name     string
	parentID int64 // zero for top-level
}

type Store struct {
	mu       sync.Mutex
	nextCat  int64
	nextExp  int64
	cats     map[int64]category
	expenses map[int64]core.Expense
}

func New() *Store {
	return &Store{
		cats:     make(map[int64]category),
		expenses: make(map[int64]core.Expense),
	}
}

// NewFromFiles seeds the store from base/seed_categories.txt. Each line is
// either a top-level name or "Parent > Child". Missing files fall back to
// a small default tree.
func NewFromFiles(base string) *Store {
	lines := readLines(filepath.Join(base, "seed_categories.txt"))
	if len(lines) == 0 {
		lines = []string{"Food > Groceries", "Food > Restaurant", "Home > Rent", "Home > Utilities", "Transport"}
	}
	s := New()
	for _, line := range lines {
		parent, child, nested := strings.Cut(line, ">")
		parent, child = strings.TrimSpace(parent), strings.TrimSpace(child)
		p, err := s.ensure(parent, 0)
		if err != nil || !nested || child == "" {
			continue
		}
		_, _ = s.ensure(child, p.id)
	}
	return s
}

func (s *Store) ensure(name string, parentID int64) (category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cats {
		if c.name == name {
			return c, nil
		}
	}
	return s.insertLocked(name, parentID)
}

func (s *Store) insertLocked(name string, parentID int64) (category, error) {
	for _, c := range s.cats {
		if strings.EqualFold(c.name, name) {
			return category{}, fmt.Errorf("%w: %s", core.ErrDuplicateName, name)
		}
	}
	s.nextCat++
	c := category{id: s.nextCat, name: name, parentID: parentID}
	s.cats[c.id] = c
	return c, nil
}

func (s *Store) toCore(c category) core.Category {
	out := core.Category{ID: c.id, Name: c.name}
	if c.parentID != 0 {
		if p, ok := s.cats[c.parentID]; ok {
			out.Parent = &core.Category{ID: p.id, Name: p.name}
		}
	}
	return out
}

func (s *Store) sortedLocked(match func(category) bool) []core.Category {
	out := make([]core.Category, 0)
	for _, c := range s.cats {
		if match(c) {
			out = append(out, s.toCore(c))
		}
	}
	slices.SortFunc(out, func(a, b core.Category) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (s *Store) ListTopLevel(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(func(c category) bool { return c.parentID == 0 }), nil
}

func (s *Store) ListChildren(_ context.Context, parentID int64) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cats[parentID]; !ok {
		return nil, fmt.Errorf("category %d: %w", parentID, core.ErrNotFound)
	}
	return s.sortedLocked(func(c category) bool { return c.parentID == parentID }), nil
}

func (s *Store) GetCategory(_ context.Context, id int64) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cats[id]
	if !ok {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	return s.toCore(c), nil
}

func (s *Store) CreateCategory(_ context.Context, name string, parentID *int64) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pid int64
	if parentID != nil {
		p, ok := s.cats[*parentID]
		if !ok {
			return core.Category{}, fmt.Errorf("category %d: %w", *parentID, core.ErrNotFound)
		}
		if p.parentID != 0 {
			return core.Category{}, core.ErrNestedCategory
		}
		pid = p.id
	}
	c, err := s.insertLocked(name, pid)
	if err != nil {
		return core.Category{}, err
	}
	return s.toCore(c), nil
}

func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cats[id]; !ok {
		return fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	for _, e := range s.expenses {
		if c := s.cats[e.Category.ID]; c.id == id || c.parentID == id {
			return fmt.Errorf("category %d: %w", id, core.ErrCategoryInUse)
		}
	}
	for cid, c := range s.cats {
		if c.parentID == id {
			delete(s.cats, cid)
		}
	}
	delete(s.cats, id)
	return nil
}

func (s *Store) UsedCategoryIDs(_ context.Context) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	used := make(map[int64]bool)
	for _, e := range s.expenses {
		used[e.Category.ID] = true
	}
	return used, nil
}

// hydrateLocked replaces the expense category with the stored one.
func (s *Store) hydrateLocked(e core.Expense) (core.Expense, error) {
	c, ok := s.cats[e.Category.ID]
	if !ok {
		return core.Expense{}, fmt.Errorf("category %d: %w", e.Category.ID, core.ErrNotFound)
	}
	e.Category = s.toCore(c)
	return e, nil
}

func (s *Store) GetExpense(_ context.Context, id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return core.Expense{}, fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	return s.hydrateLocked(e)
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	hydrated, err := s.hydrateLocked(e)
	if err != nil {
		return core.Expense{}, err
	}
	s.nextExp++
	hydrated.ID = s.nextExp
	s.expenses[hydrated.ID] = hydrated
	return hydrated, nil
}

func (s *Store) UpdateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[e.ID]; !ok {
		return core.Expense{}, fmt.Errorf("expense %d: %w", e.ID, core.ErrNotFound)
	}
	hydrated, err := s.hydrateLocked(e)
	if err != nil {
		return core.Expense{}, err
	}
	s.expenses[e.ID] = hydrated
	return hydrated, nil
}

func (s *Store) DeleteExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[id]; !ok {
		return fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) snapshotLocked() ([]core.Expense, error) {
	out := make([]core.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		h, err := s.hydrateLocked(e)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func (s *Store) ListExpenses(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.snapshotLocked()
	if err != nil {
		return nil, err
	}
	core.SortExpenses(out, core.OrderByDate)
	return out, nil
}

func (s *Store) SearchExpenses(_ context.Context, f core.ExpenseFilter) ([]core.Expense, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids map[int64]bool
	if f.CategoryID != 0 {
		ids = map[int64]bool{f.CategoryID: true}
		for _, c := range s.cats {
			if c.parentID == f.CategoryID {
				ids[c.id] = true
			}
		}
	}
	all, err := s.snapshotLocked()
	if err != nil {
		return nil, err
	}
	out := make([]core.Expense, 0, len(all))
	for _, e := range all {
		if f.Matches(e, ids) {
			out = append(out, e)
		}
	}
	core.SortExpenses(out, f.OrderBy)
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
