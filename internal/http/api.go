package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"expense/internal/core"
	"expense/internal/log"
	"expense/internal/pages"
)

// Error codes of the JSON API.
const (
	ErrorUser   = "USER_ERROR"
	ErrorDB     = "BD_ERROR"
	ErrorServer = "SERVER_ERROR"
)

// ErrorBody is the body of every failed API response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"error_message"`
}

type apiCategories interface {
	pages.Categories
	Get(ctx context.Context, id int64) (core.Category, error)
}

type apiExpenses interface {
	pages.Expenses
	List(ctx context.Context) ([]core.Expense, error)
}

type api struct {
	categories apiCategories
	expenses   apiExpenses
	logger     *log.Logger
	events     *log.StructuredLogger
}

func newAPI(categories apiCategories, expenses apiExpenses, logger *log.Logger) *api {
	return &api{
		categories: categories,
		expenses:   expenses,
		logger:     logger.WithComponent(log.ComponentAPI),
		events:     log.NewStructuredLogger(logger),
	}
}

func (a *api) routes(r chi.Router) {
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorBody{Error: ErrorUser, Message: "no such endpoint"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorBody{Error: ErrorUser, Message: "method not allowed"})
	})

	r.Get("/category", a.listCategories)
	r.Post("/category", a.createCategory)
	r.Get("/category/{id}", a.getCategory)
	r.Delete("/category/{id}", a.deleteCategory)
	r.Get("/category-child/{id}", a.listChildren)
	r.Post("/category-child/{id}", a.createChild)
	r.Get("/free-category", a.freeCategories)
	r.Get("/free-category-child/{id}", a.freeChildren)

	r.Get("/expense", a.listExpenses)
	r.Post("/expense", a.createExpense)
	r.Get("/expense/{id}", a.getExpense)
	r.Put("/expense/{id}", a.updateExpense)
	r.Delete("/expense/{id}", a.deleteExpense)
	r.Get("/expense-certain", a.searchExpenses)
	r.Get("/expense-bar-data", a.barData)
}

// fail maps err to a status and error code and writes the error body.
// Server errors are logged and their details withheld.
func (a *api) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		a.events.LogError(r.Context(), "API request failed", err, log.ComponentAPI, op, nil)
		msg = "internal server error"
	}
	writeJSON(w, status, ErrorBody{Error: code, Message: msg})
}

func errorStatus(err error) (int, string) {
	var re requestError
	switch {
	case errors.As(err, &re):
		return http.StatusBadRequest, ErrorUser
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, ErrorDB
	case errors.Is(err, core.ErrDuplicateName), errors.Is(err, core.ErrCategoryInUse):
		return http.StatusConflict, ErrorUser
	case errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrNameTooLong),
		errors.Is(err, core.ErrNoteTooLong),
		errors.Is(err, core.ErrNestedCategory),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidCount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidDay),
		errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrMissingCategory),
		errors.Is(err, core.ErrInvalidFilter),
		errors.Is(err, core.ErrInvalidID):
		return http.StatusUnprocessableEntity, ErrorUser
	default:
		return http.StatusInternalServerError, ErrorServer
	}
}

type categoryRequest struct {
	Name string `json:"name"`
}

func (a *api) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := a.categories.ListTopLevel(r.Context())
	if err != nil {
		a.fail(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cats))
}

func (a *api) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, log.OpCreate, err)
		return
	}
	c, err := a.categories.CreateTopLevel(r.Context(), req.Name)
	if err != nil {
		a.fail(w, r, log.OpCreate, err)
		return
	}
	a.events.LogCategoryChanged(r.Context(), log.OpCreate, c.ID, c.Name)
	writeJSON(w, http.StatusCreated, c)
}

func (a *api) getCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err == nil {
		var c core.Category
		if c, err = a.categories.Get(r.Context(), id); err == nil {
			writeJSON(w, http.StatusOK, c)
			return
		}
	}
	a.fail(w, r, log.OpRead, err)
}

func (a *api) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err == nil {
		err = a.categories.Delete(r.Context(), id)
	}
	if err != nil {
		a.fail(w, r, log.OpDelete, err)
		return
	}
	a.events.LogCategoryChanged(r.Context(), log.OpDelete, id, "")
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) listChildren(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, log.OpList, err)
		return
	}
	cats, err := a.categories.ListChildren(r.Context(), id)
	if err != nil {
		a.fail(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cats))
}

func (a *api) createChild(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, log.OpCreate, err)
		return
	}
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, log.OpCreate, err)
		return
	}
	c, err := a.categories.CreateChild(r.Context(), id, req.Name)
	if err != nil {
		a.fail(w, r, log.OpCreate, err)
		return
	}
	a.events.LogCategoryChanged(r.Context(), log.OpCreate, c.ID, c.Name)
	writeJSON(w, http.StatusCreated, c)
}

func (a *api) freeCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := a.categories.FreeTopLevel(r.Context())
	if err != nil {
		a.fail(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cats))
}

func (a *api) freeChildren(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, log.OpList, err)
		return
	}
	cats, err := a.categories.FreeChildren(r.Context(), id)
	if err != nil {
		a.fail(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cats))
}

// expenseRequest is the body of expense create and update calls. Fields
// left out of an update keep their current value.
type expenseRequest struct {
	Category *struct {
		ID int64 `json:"id"`
	} `json:"category"`
	Count     *int        `json:"count"`
	UnitPrice *core.Money `json:"unitPrice"`
	Date      *core.Date  `json:"localDate"`
	Note      *string     `json:"note"`
}

func (req expenseRequest) expense() core.Expense {
	var e core.Expense
	if req.Category != nil {
		e.Category.ID = req.Category.ID
	}
	if req.Count != nil {
		e.Count = *req.Count
	}
	if req.UnitPrice != nil {
		e.UnitPrice = *req.UnitPrice
	}
	if req.Date != nil {
		e.Date = *req.Date
	}
	if req.Note != nil {
		e.Note = *req.Note
	}
	return e
}

func (req expenseRequest) patch() core.ExpensePatch {
	p := core.ExpensePatch{
		Date:      req.Date,
		Count:     req.Count,
		UnitPrice: req.UnitPrice,
		Note:      req.Note,
	}
	if req.Category != nil && req.Category.ID > 0 {
		p.CategoryID = &req.Category.ID
	}
	return p
}

func (a *api) listExpenses(w http.ResponseWriter, r *http.Request) {
	items, err := a.expenses.List(r.Context())
	if err != nil {
		a.fail(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (a *api) createExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, log.OpCreate, err)
		return
	}
	e, err := a.expenses.Create(r.Context(), req.expense())
	if err != nil {
		a.fail(w, r, log.OpCreate, err)
		return
	}
	a.events.LogExpenseChanged(r.Context(), log.OpCreate, e.ID, e.Category.ID, e.TotalPrice.Cents)
	writeJSON(w, http.StatusCreated, e)
}

func (a *api) getExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err == nil {
		var e core.Expense
		if e, err = a.expenses.Get(r.Context(), id); err == nil {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}
	a.fail(w, r, log.OpRead, err)
}

func (a *api) updateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, log.OpUpdate, err)
		return
	}
	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, log.OpUpdate, err)
		return
	}
	e, err := a.expenses.Update(r.Context(), id, req.patch())
	if err != nil {
		a.fail(w, r, log.OpUpdate, err)
		return
	}
	a.events.LogExpenseChanged(r.Context(), log.OpUpdate, e.ID, e.Category.ID, e.TotalPrice.Cents)
	writeJSON(w, http.StatusOK, e)
}

func (a *api) deleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err == nil {
		err = a.expenses.Delete(r.Context(), id)
	}
	if err != nil {
		a.fail(w, r, log.OpDelete, err)
		return
	}
	a.events.LogExpenseChanged(r.Context(), log.OpDelete, id, 0, 0)
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) searchExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := parseSearch(r.URL.Query())
	if err != nil {
		a.fail(w, r, log.OpSearch, err)
		return
	}
	items, err := a.expenses.Search(r.Context(), f)
	if err != nil {
		a.fail(w, r, log.OpSearch, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

// barData returns category name to summed total for the period.
func (a *api) barData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := requiredDate(q, "dateFrom")
	if err != nil {
		a.fail(w, r, log.OpSearch, err)
		return
	}
	to, err := requiredDate(q, "dateTo")
	if err != nil {
		a.fail(w, r, log.OpSearch, err)
		return
	}
	categoryID, err := optionalID(q, "categoryId")
	if err != nil {
		a.fail(w, r, log.OpSearch, err)
		return
	}
	data, err := a.expenses.Bar(r.Context(), from, to, categoryID)
	if err != nil {
		a.fail(w, r, log.OpSearch, err)
		return
	}
	sums := make(map[string]core.Money, len(data.Items))
	for _, it := range data.Items {
		sums[it.Name] = it.Amount
	}
	writeJSON(w, http.StatusOK, sums)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
