package pages

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/angelofallars/htmx-go"
	"golang.org/x/sync/errgroup"

	"expense/internal/app"
	"expense/internal/core"
	"expense/internal/log"
	"expense/internal/router"
	"expense/internal/services"
)

const loadTimeout = 5 * time.Second

type ExpenseEditPage struct {
	Expense core.Expense
	Tree    []services.CategoryNode
	// Error replaces the form when the expense cannot be shown.
	Error    string
	TableURL string
}

func (p *Pages) expenseEdit(w http.ResponseWriter, r *http.Request) {
	page := app.Page{Template: TemplateExpenseEdit, Title: "Edit expense"}
	data := ExpenseEditPage{TableURL: p.href("/expense-table")}

	id, err := parseID(router.Param(r, "id"))
	if err != nil {
		page.Status = http.StatusBadRequest
		data.Error = "The expense id must be a positive number."
		page.Data = data
		p.render.Render(w, r, page)
		return
	}

	if r.Method == http.MethodPost {
		patch, err := expensePatch(r)
		if err == nil {
			_, err = p.expenses.Update(r.Context(), id, patch)
		}
		if err == nil {
			if htmx.IsHTMX(r) {
				if err := htmx.NewResponse().
					StatusCode(http.StatusOK).
					AddTrigger(htmx.Trigger(EventExpenseUpdated)).
					Redirect(data.TableURL).
					Write(w); err != nil {
					log.FromContext(r.Context()).ErrorContext(r.Context(), "HTMX redirect failed", log.FieldError, err)
				}
				return
			}
			http.Redirect(w, r, data.TableURL, http.StatusSeeOther)
			return
		}
		status, msg := failureStatus(err)
		if status == http.StatusInternalServerError {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to update expense",
				log.FieldError, err, log.FieldExpenseID, id)
		}
		page.Status = status
		page.Flash = failure(msg)
	}

	ctx, cancel := context.WithTimeout(r.Context(), loadTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e, err := p.expenses.Get(gctx, id)
		data.Expense = e
		return err
	})
	g.Go(func() error {
		tree, err := p.categories.Tree(gctx)
		data.Tree = tree
		return err
	})
	if err := g.Wait(); err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			p.serverError(w, r, err)
			return
		}
		page.Status = http.StatusNotFound
		page.Flash = nil
		data = ExpenseEditPage{Error: "Expense " + strconv.FormatInt(id, 10) + " does not exist.", TableURL: data.TableURL}
	}
	page.Data = data
	p.render.Render(w, r, page)
}

// expensePatch reads the edit form. Empty fields are left unchanged; count
// and unit price are applied together.
func expensePatch(r *http.Request) (core.ExpensePatch, error) {
	var patch core.ExpensePatch
	if v := formValue(r, "category"); v != "" {
		id, err := parseID(v)
		if err != nil {
			return patch, err
		}
		patch.CategoryID = &id
	}
	if v := formValue(r, "date"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return patch, err
		}
		patch.Date = &d
	}
	if v := formValue(r, "count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return patch, core.ErrInvalidCount
		}
		patch.Count = &n
	}
	if v := formValue(r, "unitPrice"); v != "" {
		cents, err := core.ParseDecimalToCents(v)
		if err != nil {
			return patch, err
		}
		patch.UnitPrice = &core.Money{Cents: cents}
	}
	if _, ok := r.Form["note"]; ok {
		note := formValue(r, "note")
		patch.Note = &note
	}
	return patch, nil
}

func (d ExpenseEditPage) Choices() CategoryChoice {
	return CategoryChoice{Tree: d.Tree, Selected: d.Expense.Category.ID}
}
