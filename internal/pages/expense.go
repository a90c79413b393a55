package pages

import (
	"fmt"
	"net/http"
	"strconv"

	"expense/internal/app"
	"expense/internal/core"
	"expense/internal/log"
)

// ExpenseForm is the add-expense form state.
type ExpenseForm struct {
	Categories    []core.Category
	Subcategories []core.Category
	ParentID      int64
	CategoryID    int64
	Count         string
	UnitPrice     string
	Date          string
	Note          string
}

func (p *Pages) blankExpenseForm() ExpenseForm {
	return ExpenseForm{Count: "1", Date: core.Today().String()}
}

func (p *Pages) expense(w http.ResponseWriter, r *http.Request) {
	form := p.blankExpenseForm()
	page := app.Page{Template: TemplateExpense, Title: "Add expense"}

	if r.Method == http.MethodPost {
		form = ExpenseForm{
			ParentID:   optionalID(formValue(r, "parent")),
			CategoryID: optionalID(formValue(r, "category")),
			Count:      formValue(r, "count"),
			UnitPrice:  formValue(r, "unitPrice"),
			Date:       formValue(r, "date"),
			Note:       formValue(r, "note"),
		}
		saved, err := p.createExpense(r, form)
		if err != nil {
			status, msg := failureStatus(err)
			if status == http.StatusInternalServerError {
				log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to save expense",
					log.FieldError, err, log.FieldOperation, log.OpCreate)
			}
			page.Status = status
			page.Flash = failure(msg)
		} else {
			page.Flash = success(fmt.Sprintf("Saved %s: %s €%s", saved.Date, saved.Category.Name, saved.TotalPrice))
			page.Triggers = trigger(EventExpenseCreated)
			form = p.blankExpenseForm()
		}
	}

	var err error
	if form.Categories, err = p.categories.ListTopLevel(r.Context()); err != nil {
		p.serverError(w, r, err)
		return
	}
	if form.ParentID != 0 {
		if form.Subcategories, err = p.categories.ListChildren(r.Context(), form.ParentID); err != nil {
			form.ParentID = 0
		}
	}
	page.Data = form
	p.render.Render(w, r, page)
}

// createExpense books on the subcategory when one is chosen, otherwise on
// the top-level category.
func (p *Pages) createExpense(r *http.Request, form ExpenseForm) (core.Expense, error) {
	categoryID := form.CategoryID
	if categoryID == 0 {
		categoryID = form.ParentID
	}
	if categoryID == 0 {
		return core.Expense{}, core.ErrMissingCategory
	}
	count := 1
	if form.Count != "" {
		n, err := strconv.Atoi(form.Count)
		if err != nil || n < 1 {
			return core.Expense{}, core.ErrInvalidCount
		}
		count = n
	}
	cents, err := core.ParseDecimalToCents(form.UnitPrice)
	if err != nil {
		return core.Expense{}, err
	}
	date, err := core.ParseDate(form.Date)
	if err != nil {
		return core.Expense{}, err
	}
	return p.expenses.Create(r.Context(), core.Expense{
		Category:  core.Category{ID: categoryID},
		Count:     count,
		UnitPrice: core.Money{Cents: cents},
		Date:      date,
		Note:      form.Note,
	})
}

// SubcategoryOptions renders the <option> list for a top-level category.
// It backs the dependent select of the expense forms.
func (p *Pages) SubcategoryOptions(w http.ResponseWriter, r *http.Request) {
	var children []core.Category
	if parent := optionalID(r.URL.Query().Get("parent")); parent != 0 {
		var err error
		if children, err = p.categories.ListChildren(r.Context(), parent); err != nil {
			children = nil
		}
	}
	p.render.RenderBlock(w, r, app.Page{
		Template: TemplateExpense,
		Data:     ExpenseForm{Subcategories: children, CategoryID: optionalID(r.URL.Query().Get("selected"))},
	}, "subcategory_options")
}

func (p *Pages) serverError(w http.ResponseWriter, r *http.Request, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Page failed",
		log.FieldError, err,
		log.FieldPath, r.URL.Path)
	http.Error(w, "Something went wrong. Please try again.", http.StatusInternalServerError)
}
