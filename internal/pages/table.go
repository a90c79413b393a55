package pages

import (
	"net/http"

	"expense/internal/app"
	"expense/internal/core"
	"expense/internal/log"
	"expense/internal/services"
)

// TableFilter echoes the filter form.
type TableFilter struct {
	From       string
	To         string
	CategoryID int64
	Min        string
	Max        string
	Note       string
	OrderBy    string
}

type ExpenseTablePage struct {
	Filter     TableFilter
	Tree       []services.CategoryNode
	OrderBy    []core.OrderBy
	Expenses   []core.Expense
	Total      core.Money
	EditPrefix string
}

func (p *Pages) expenseTable(w http.ResponseWriter, r *http.Request) {
	page := app.Page{Template: TemplateExpenseTable, Title: "Expenses"}

	if r.Method == http.MethodPost {
		if formValue(r, "action") != "delete" {
			page.Status = http.StatusBadRequest
			page.Flash = failure("Unknown action.")
		} else if err := p.deleteExpense(r); err != nil {
			status, msg := failureStatus(err)
			if status == http.StatusInternalServerError {
				log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to delete expense", log.FieldError, err)
			}
			page.Status = status
			page.Flash = failure(msg)
		} else {
			page.Flash = success("Expense deleted.")
			page.Triggers = trigger(EventExpenseDeleted)
		}
	}

	filter, echo, _ := tableFilter(r)
	data := ExpenseTablePage{
		Filter:     echo,
		OrderBy:    core.OrderByOptions,
		EditPrefix: p.href("/expense-edit/"),
	}
	var err error
	if data.Tree, err = p.categories.Tree(r.Context()); err != nil {
		p.serverError(w, r, err)
		return
	}
	if filter == nil {
		page.Status = http.StatusUnprocessableEntity
		page.Flash = failure("Invalid filter: check the price range and the order.")
	} else {
		expenses, err := p.expenses.Search(r.Context(), *filter)
		if err != nil {
			status, msg := failureStatus(err)
			if status == http.StatusInternalServerError {
				p.serverError(w, r, err)
				return
			}
			page.Status = status
			page.Flash = failure(msg)
		}
		data.Expenses = expenses
		for _, e := range expenses {
			data.Total.Cents += e.TotalPrice.Cents
		}
	}
	page.Data = data
	p.render.Render(w, r, page)
}

func (p *Pages) deleteExpense(r *http.Request) error {
	id, err := parseID(formValue(r, "id"))
	if err != nil {
		return err
	}
	return p.expenses.Delete(r.Context(), id)
}

// tableFilter builds the search filter from the request. It returns a nil
// filter when a price bound or the order does not parse; the echo is
// always filled so the form keeps what the user typed.
func tableFilter(r *http.Request) (*core.ExpenseFilter, TableFilter, error) {
	from, to := dateRange(r)
	echo := TableFilter{
		From:       from.String(),
		To:         to.String(),
		CategoryID: optionalID(formValue(r, "category")),
		Min:        formValue(r, "min"),
		Max:        formValue(r, "max"),
		Note:       formValue(r, "note"),
		OrderBy:    formValue(r, "order"),
	}
	f := core.ExpenseFilter{From: from, To: to, CategoryID: echo.CategoryID, Note: echo.Note}

	order, err := core.ParseOrderBy(echo.OrderBy)
	if err != nil {
		return nil, echo, err
	}
	f.OrderBy = order
	if echo.OrderBy == "" {
		echo.OrderBy = string(order)
	}
	if echo.Min != "" {
		cents, err := core.ParseBoundToCents(echo.Min)
		if err != nil {
			return nil, echo, err
		}
		f.MinTotal = &core.Money{Cents: cents}
	}
	if echo.Max != "" {
		cents, err := core.ParseBoundToCents(echo.Max)
		if err != nil {
			return nil, echo, err
		}
		f.MaxTotal = &core.Money{Cents: cents}
	}
	return &f, echo, nil
}

func (d ExpenseTablePage) Choices() CategoryChoice {
	return CategoryChoice{Tree: d.Tree, Selected: d.Filter.CategoryID, Empty: "All categories"}
}
