package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"expense/internal/cache"
	"expense/internal/core"
	"expense/internal/ports"
)

// CategoryNode is a top-level category with its subcategories.
type CategoryNode struct {
	core.Category
	Children []core.Category
}

// CategoryService enforces category rules on top of a store and caches
// the category lists, which are read on nearly every page.
type CategoryService struct {
	store ports.CategoryStore
	lists *cache.LRUCache[[]core.Category]
}

func NewCategoryService(store ports.CategoryStore, ttl time.Duration) *CategoryService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CategoryService{
		store: store,
		lists: cache.NewLRUCache[[]core.Category](256, ttl),
	}
}

// Cache exposes the list cache for cleanup registration and metrics.
func (s *CategoryService) Cache() *cache.LRUCache[[]core.Category] {
	return s.lists
}

func (s *CategoryService) ListTopLevel(ctx context.Context) ([]core.Category, error) {
	return s.lists.GetOrLoad("top", func() ([]core.Category, error) {
		return s.store.ListTopLevel(ctx)
	})
}

func (s *CategoryService) ListChildren(ctx context.Context, parentID int64) ([]core.Category, error) {
	return s.lists.GetOrLoad("children:"+strconv.FormatInt(parentID, 10), func() ([]core.Category, error) {
		return s.store.ListChildren(ctx, parentID)
	})
}

func (s *CategoryService) Get(ctx context.Context, id int64) (core.Category, error) {
	return s.store.GetCategory(ctx, id)
}

// Tree returns every top-level category with its subcategories.
func (s *CategoryService) Tree(ctx context.Context) ([]CategoryNode, error) {
	top, err := s.ListTopLevel(ctx)
	if err != nil {
		return nil, err
	}
	nodes := make([]CategoryNode, 0, len(top))
	for _, c := range top {
		children, err := s.ListChildren(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, CategoryNode{Category: c, Children: children})
	}
	return nodes, nil
}

func (s *CategoryService) CreateTopLevel(ctx context.Context, name string) (core.Category, error) {
	return s.create(ctx, name, nil)
}

// CreateChild adds a subcategory. The parent must be top-level.
func (s *CategoryService) CreateChild(ctx context.Context, parentID int64, name string) (core.Category, error) {
	return s.create(ctx, name, &parentID)
}

func (s *CategoryService) create(ctx context.Context, name string, parentID *int64) (core.Category, error) {
	name, err := core.ValidateCategoryName(name)
	if err != nil {
		return core.Category{}, err
	}
	c, err := s.store.CreateCategory(ctx, name, parentID)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category %q: %w", name, err)
	}
	s.lists.Purge()
	slog.InfoContext(ctx, "Category created", "id", c.ID, "name", c.Name, "top_level", c.IsTopLevel())
	return c, nil
}

// Delete removes a category and its subcategories. Categories with
// expenses anywhere in their tree are refused with core.ErrCategoryInUse.
func (s *CategoryService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	s.lists.Purge()
	slog.InfoContext(ctx, "Category deleted", "id", id)
	return nil
}

// FreeTopLevel lists top-level categories without expenses in themselves
// or in any of their subcategories.
func (s *CategoryService) FreeTopLevel(ctx context.Context) ([]core.Category, error) {
	used, err := s.store.UsedCategoryIDs(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	free := make([]core.Category, 0, len(tree))
	for _, node := range tree {
		if !used[node.ID] && !anyUsed(node.Children, used) {
			free = append(free, node.Category)
		}
	}
	return free, nil
}

// FreeChildren lists the subcategories of parentID without expenses.
func (s *CategoryService) FreeChildren(ctx context.Context, parentID int64) ([]core.Category, error) {
	used, err := s.store.UsedCategoryIDs(ctx)
	if err != nil {
		return nil, err
	}
	children, err := s.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	free := make([]core.Category, 0, len(children))
	for _, c := range children {
		if !used[c.ID] {
			free = append(free, c)
		}
	}
	return free, nil
}

func anyUsed(cats []core.Category, used map[int64]bool) bool {
	for _, c := range cats {
		if used[c.ID] {
			return true
		}
	}
	return false
}
