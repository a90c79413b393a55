package router

import "net/http"

// DefaultBase is where the application is served.
const DefaultBase = "/expense-backend/"

// Route names.
const (
	NameExpense      = "Expense"
	NameCategory     = "Category"
	NameSubcategory  = "Subcategory"
	NameExpenseTable = "ExpenseTable"
	NameExpenseEdit  = "ExpenseEdit"
)

// Path patterns.
const (
	PathExpense      = "/"
	PathCategory     = "/category-action"
	PathSubcategory  = "/subcategory-action"
	PathExpenseTable = "/expense-table"
	PathExpenseEdit  = "/expense-edit/:id"
	PathExpenseBar   = "/bar"
)

// Components are the page components the table routes to.
type Components struct {
	Expense      http.Handler
	Category     http.Handler
	Subcategory  http.Handler
	ExpenseTable http.Handler
	ExpenseEdit  http.Handler
	ExpenseBar   http.Handler
	NotFound     http.Handler
}

// Table returns the application's route table in match order. The bar
// chart route is deliberately unnamed and the catch-all renders NotFound.
func Table(c Components) []Route {
	return []Route{
		{Path: PathExpense, Name: NameExpense, Component: c.Expense},
		{Path: PathCategory, Name: NameCategory, Component: c.Category},
		{Path: PathSubcategory, Name: NameSubcategory, Component: c.Subcategory},
		{Path: PathExpenseTable, Name: NameExpenseTable, Component: c.ExpenseTable},
		{Path: PathExpenseEdit, Name: NameExpenseEdit, Component: c.ExpenseEdit},
		{Path: PathExpenseBar, Component: c.ExpenseBar},
		{Path: Wildcard, Component: c.NotFound},
	}
}
