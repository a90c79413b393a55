package core

import (
	"slices"
	"strings"
)

// WithoutSubcategory labels expenses booked directly on a top-level
// category when bar data is broken down by subcategory.
const WithoutSubcategory = "Without subcategory"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// BarData is the ordered result of a bar chart aggregation.
type BarData struct {
	Items []CategoryAmount `json:"items"`
	Total Money            `json:"total"`
}

// Max returns the largest amount, used to scale bar widths.
func (b BarData) Max() Money {
	var m Money
	for _, it := range b.Items {
		if it.Amount.Cents > m.Cents {
			m = it.Amount
		}
	}
	return m
}

// SumByCategory groups expenses for the bar chart.
//
// With root == nil every expense is summed under its top-level category.
// With a root category only expenses of that tree are considered: each
// subcategory gets its own entry and expenses on the root itself go to
// WithoutSubcategory. A subcategory root yields a single entry under its
// own name. Entries are sorted by name.
func SumByCategory(expenses []Expense, root *Category) BarData {
	sums := make(map[string]int64)
	var total int64
	for _, e := range expenses {
		var key string
		switch {
		case root == nil:
			if e.Category.Parent != nil {
				key = e.Category.Parent.Name
			} else {
				key = e.Category.Name
			}
		case e.Category.ID == root.ID && root.IsTopLevel():
			key = WithoutSubcategory
		case e.Category.ID == root.ID:
			key = root.Name
		case e.Category.Parent != nil && e.Category.Parent.ID == root.ID:
			key = e.Category.Name
		default:
			continue
		}
		sums[key] += e.TotalPrice.Cents
		total += e.TotalPrice.Cents
	}

	items := make([]CategoryAmount, 0, len(sums))
	for name, cents := range sums {
		items = append(items, CategoryAmount{Name: name, Amount: Money{Cents: cents}})
	}
	slices.SortFunc(items, func(a, b CategoryAmount) int { return strings.Compare(a.Name, b.Name) })
	return BarData{Items: items, Total: Money{Cents: total}}
}
