package pages

import (
	"math"
	"net/http"

	"expense/internal/app"
	"expense/internal/core"
	"expense/internal/services"
)

// minBarWidth keeps small non-zero amounts visible.
const minBarWidth = 2

type Bar struct {
	Name   string
	Amount core.Money
	Width  int
}

type ExpenseBarPage struct {
	From       string
	To         string
	CategoryID int64
	Tree       []services.CategoryNode
	Bars       []Bar
	Total      core.Money
}

func (p *Pages) expenseBar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	page := app.Page{Template: TemplateExpenseBar, Title: "Chart"}
	from, to := dateRange(r)
	data := ExpenseBarPage{
		From:       from.String(),
		To:         to.String(),
		CategoryID: optionalID(formValue(r, "category")),
	}

	var err error
	if data.Tree, err = p.categories.Tree(r.Context()); err != nil {
		p.serverError(w, r, err)
		return
	}
	bar, err := p.expenses.Bar(r.Context(), from, to, data.CategoryID)
	if err != nil {
		status, msg := failureStatus(err)
		if status == http.StatusInternalServerError {
			p.serverError(w, r, err)
			return
		}
		page.Status = status
		page.Flash = failure(msg)
	}
	data.Bars = Bars(bar)
	data.Total = bar.Total
	page.Data = data
	p.render.Render(w, r, page)
}

// Bars scales the amounts to percent widths of the largest one.
func Bars(d core.BarData) []Bar {
	top := d.Max().Cents
	out := make([]Bar, len(d.Items))
	for i, it := range d.Items {
		out[i] = Bar{Name: it.Name, Amount: it.Amount, Width: BarWidth(it.Amount.Cents, top)}
	}
	return out
}

// BarWidth is amount as a rounded percentage of top, at least minBarWidth
// for positive amounts and never above 100.
func BarWidth(amount, top int64) int {
	if amount <= 0 || top <= 0 {
		return 0
	}
	w := int(math.Round(float64(amount) * 100 / float64(top)))
	if w < minBarWidth {
		w = minBarWidth
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (d ExpenseBarPage) Choices() CategoryChoice {
	return CategoryChoice{Tree: d.Tree, Selected: d.CategoryID, Empty: "By top-level category"}
}
