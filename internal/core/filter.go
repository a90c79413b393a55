package core

import (
	"fmt"
	"slices"
	"strings"
)

// OrderBy is an expense property searches can be sorted by.
type OrderBy string

const (
	OrderByDate       OrderBy = "localDate"
	OrderByTotalPrice OrderBy = "totalPrice"
	OrderByUnitPrice  OrderBy = "unitPrice"
	OrderByCount      OrderBy = "count"
	OrderByNote       OrderBy = "note"
	OrderByID         OrderBy = "id"
)

// OrderByOptions lists the accepted sort properties in display order.
var OrderByOptions = []OrderBy{OrderByDate, OrderByTotalPrice, OrderByUnitPrice, OrderByCount, OrderByNote, OrderByID}

// ParseOrderBy maps an empty value to OrderByDate and rejects unknown properties.
func ParseOrderBy(s string) (OrderBy, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return OrderByDate, nil
	}
	if slices.Contains(OrderByOptions, OrderBy(s)) {
		return OrderBy(s), nil
	}
	return "", fmt.Errorf("%w: unknown order property %q", ErrInvalidFilter, s)
}

// ExpenseFilter selects expenses for the search endpoint and the table page.
// From and To are inclusive and required; the remaining fields are optional.
type ExpenseFilter struct {
	From       Date
	To         Date
	CategoryID int64
	MinTotal   *Money
	MaxTotal   *Money
	Note       string
	OrderBy    OrderBy
}

func (f ExpenseFilter) Validate() error {
	if f.From.IsZero() || f.To.IsZero() {
		return fmt.Errorf("%w: date range is required", ErrInvalidFilter)
	}
	if f.To.Before(f.From.Time) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidFilter)
	}
	if f.MinTotal != nil && f.MaxTotal != nil && f.MaxTotal.Cents < f.MinTotal.Cents {
		return fmt.Errorf("%w: maximum price below minimum price", ErrInvalidFilter)
	}
	if _, err := ParseOrderBy(string(f.OrderBy)); err != nil {
		return err
	}
	return nil
}

// Matches reports whether e passes the filter. categoryIDs is the set the
// filter category expands to (itself plus its subcategories); nil means any.
func (f ExpenseFilter) Matches(e Expense, categoryIDs map[int64]bool) bool {
	if e.Date.Before(f.From.Time) || e.Date.After(f.To.Time) {
		return false
	}
	if categoryIDs != nil && !categoryIDs[e.Category.ID] {
		return false
	}
	if f.MinTotal != nil && e.TotalPrice.Cents < f.MinTotal.Cents {
		return false
	}
	if f.MaxTotal != nil && e.TotalPrice.Cents > f.MaxTotal.Cents {
		return false
	}
	if f.Note != "" && !strings.Contains(strings.ToLower(e.Note), strings.ToLower(f.Note)) {
		return false
	}
	return true
}

// SortExpenses orders expenses ascending by the given property, using the
// id as a tie-breaker so results are stable.
func SortExpenses(items []Expense, by OrderBy) {
	slices.SortStableFunc(items, func(a, b Expense) int {
		var c int
		switch by {
		case OrderByTotalPrice:
			c = cmpInt64(a.TotalPrice.Cents, b.TotalPrice.Cents)
		case OrderByUnitPrice:
			c = cmpInt64(a.UnitPrice.Cents, b.UnitPrice.Cents)
		case OrderByCount:
			c = cmpInt64(int64(a.Count), int64(b.Count))
		case OrderByNote:
			c = strings.Compare(a.Note, b.Note)
		case OrderByID:
		default:
			c = a.Date.Compare(b.Date.Time)
		}
		if c != 0 {
			return c
		}
		return cmpInt64(a.ID, b.ID)
	})
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
