// Package pages implements the page components the route table points at.
// Every component renders into the application mount point through a
// Renderer and talks to the domain through the services.
package pages

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/angelofallars/htmx-go"

	"expense/internal/app"
	"expense/internal/core"
	"expense/internal/router"
	"expense/internal/services"
)

// Renderer writes pages into the application layout.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request, p app.Page)
	RenderBlock(w http.ResponseWriter, r *http.Request, p app.Page, block string)
}

// Categories is the category surface the pages use.
type Categories interface {
	ListTopLevel(ctx context.Context) ([]core.Category, error)
	ListChildren(ctx context.Context, parentID int64) ([]core.Category, error)
	Tree(ctx context.Context) ([]services.CategoryNode, error)
	CreateTopLevel(ctx context.Context, name string) (core.Category, error)
	CreateChild(ctx context.Context, parentID int64, name string) (core.Category, error)
	Delete(ctx context.Context, id int64) error
	FreeTopLevel(ctx context.Context) ([]core.Category, error)
	FreeChildren(ctx context.Context, parentID int64) ([]core.Category, error)
}

// Expenses is the expense surface the pages use.
type Expenses interface {
	Get(ctx context.Context, id int64) (core.Expense, error)
	Create(ctx context.Context, e core.Expense) (core.Expense, error)
	Update(ctx context.Context, id int64, patch core.ExpensePatch) (core.Expense, error)
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, f core.ExpenseFilter) ([]core.Expense, error)
	Bar(ctx context.Context, from, to core.Date, categoryID int64) (core.BarData, error)
}

// Template names under templates/pages.
const (
	TemplateExpense      = "expense"
	TemplateCategory     = "category"
	TemplateSubcategory  = "subcategory"
	TemplateExpenseTable = "expense_table"
	TemplateExpenseEdit  = "expense_edit"
	TemplateExpenseBar   = "expense_bar"
	TemplateNotFound     = "not_found"
)

// HTMX events sent after successful writes.
const (
	EventExpenseCreated  = "expense:created"
	EventExpenseUpdated  = "expense:updated"
	EventExpenseDeleted  = "expense:deleted"
	EventCategoryChanged = "category:changed"
)

type Pages struct {
	render     Renderer
	categories Categories
	expenses   Expenses
	base       string
}

func New(render Renderer, categories Categories, expenses Expenses, base string) *Pages {
	return &Pages{
		render:     render,
		categories: categories,
		expenses:   expenses,
		base:       router.NormalizeBase(base),
	}
}

// Components returns the handlers for the route table.
func (p *Pages) Components() router.Components {
	return router.Components{
		Expense:      pageHandler(p.expense),
		Category:     pageHandler(p.category),
		Subcategory:  pageHandler(p.subcategory),
		ExpenseTable: pageHandler(p.expenseTable),
		ExpenseEdit:  pageHandler(p.expenseEdit),
		ExpenseBar:   http.HandlerFunc(p.expenseBar),
		NotFound:     http.HandlerFunc(p.notFound),
	}
}

// pageHandler accepts GET, HEAD and POST.
func pageHandler(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodPost:
			h(w, r)
		default:
			w.Header().Set("Allow", "GET, HEAD, POST")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}
	})
}

// href builds an absolute URL for a route path.
func (p *Pages) href(path string) string {
	return p.base + strings.TrimPrefix(path, "/")
}

func success(msg string) *app.Flash { return &app.Flash{Kind: "success", Message: msg} }
func failure(msg string) *app.Flash { return &app.Flash{Kind: "error", Message: msg} }

// failureStatus maps domain errors to a status and a user-facing message.
func failureStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "The requested item no longer exists."
	case errors.Is(err, core.ErrDuplicateName):
		return http.StatusConflict, "A category with this name already exists."
	case errors.Is(err, core.ErrCategoryInUse):
		return http.StatusConflict, "The category still has expenses and cannot be deleted."
	case errors.Is(err, core.ErrNestedCategory):
		return http.StatusUnprocessableEntity, "Subcategories cannot have subcategories."
	case errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrNameTooLong),
		errors.Is(err, core.ErrNoteTooLong),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidCount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidDay),
		errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrMissingCategory),
		errors.Is(err, core.ErrInvalidFilter),
		errors.Is(err, core.ErrInvalidID):
		return http.StatusUnprocessableEntity, capitalize(rootMessage(err))
	default:
		return http.StatusInternalServerError, "Something went wrong. Please try again."
	}
}

// rootMessage returns the message of the innermost wrapped error.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

// formValue returns a trimmed form value with control characters removed.
func formValue(r *http.Request, key string) string {
	return sanitizeInput(r.FormValue(key))
}

func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// parseID parses a positive identifier.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.ErrInvalidID
	}
	return id, nil
}

// optionalID parses an identifier that may be empty. Invalid values are
// treated as absent.
func optionalID(s string) int64 {
	id, err := parseID(s)
	if err != nil {
		return 0
	}
	return id
}

// monthRange returns the first and last day of the month containing d.
func monthRange(d core.Date) (core.Date, core.Date) {
	y, m, _ := d.Date()
	first := core.NewDate(y, int(m), 1)
	last := core.Date{Time: first.AddDate(0, 1, -1)}
	return first, last
}

// dateRange reads from/to, defaulting to the current month. Values that
// do not parse fall back to the default too.
func dateRange(r *http.Request) (core.Date, core.Date) {
	from, to := monthRange(core.Today())
	if v := formValue(r, "from"); v != "" {
		if d, err := core.ParseDate(v); err == nil {
			from = d
		}
	}
	if v := formValue(r, "to"); v != "" {
		if d, err := core.ParseDate(v); err == nil {
			to = d
		}
	}
	return from, to
}

func trigger(events ...string) []htmx.EventTrigger {
	out := make([]htmx.EventTrigger, len(events))
	for i, e := range events {
		out[i] = htmx.Trigger(e)
	}
	return out
}

// CategoryChoice feeds the category_options template. Empty labels the
// "no selection" option; an empty label omits it.
type CategoryChoice struct {
	Tree     []services.CategoryNode
	Selected int64
	Empty    string
}
