package pages

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expense/internal/app"
	"expense/internal/core"
	"expense/internal/memory"
	"expense/internal/router"
	"expense/internal/services"
)

type rendered struct {
	page  app.Page
	block string
}

type fakeRenderer struct {
	calls []rendered
}

func (f *fakeRenderer) Render(w http.ResponseWriter, r *http.Request, p app.Page) {
	f.RenderBlock(w, r, p, "")
}

func (f *fakeRenderer) RenderBlock(w http.ResponseWriter, _ *http.Request, p app.Page, block string) {
	f.calls = append(f.calls, rendered{page: p, block: block})
	status := p.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func (f *fakeRenderer) last(t *testing.T) app.Page {
	t.Helper()
	require.NotEmpty(t, f.calls, "nothing rendered")
	return f.calls[len(f.calls)-1].page
}

type fixture struct {
	pages      *Pages
	render     *fakeRenderer
	categories *services.CategoryService
	expenses   *services.ExpenseService
	home, rent core.Category
	food       core.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	cats := services.NewCategoryService(store, time.Minute)
	exps := services.NewExpenseService(store, nil)

	home, err := cats.CreateTopLevel(ctx, "Home")
	require.NoError(t, err)
	rent, err := cats.CreateChild(ctx, home.ID, "Rent")
	require.NoError(t, err)
	food, err := cats.CreateTopLevel(ctx, "Food")
	require.NoError(t, err)

	render := &fakeRenderer{}
	return &fixture{
		pages:      New(render, cats, exps, router.DefaultBase),
		render:     render,
		categories: cats,
		expenses:   exps,
		home:       home,
		rent:       rent,
		food:       food,
	}
}

func (f *fixture) addExpense(t *testing.T, categoryID int64, cents int64, date core.Date) core.Expense {
	t.Helper()
	e, err := f.expenses.Create(context.Background(), core.Expense{
		Category:  core.Category{ID: categoryID},
		Count:     1,
		UnitPrice: core.Money{Cents: cents},
		Date:      date,
	})
	require.NoError(t, err)
	return e
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func post(h http.Handler, target string, form url.Values, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// withID serves h as if the router had bound :id.
func withID(h http.Handler, id string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := router.Match{Params: router.Params{"id": id}}
		h.ServeHTTP(w, r.WithContext(router.WithMatch(r.Context(), m)))
	})
}

func TestExpensePage_Get(t *testing.T) {
	f := newFixture(t)

	rec := get(f.pages.Components().Expense, "/expense-backend/")

	assert.Equal(t, http.StatusOK, rec.Code)
	page := f.render.last(t)
	assert.Equal(t, TemplateExpense, page.Template)
	form := page.Data.(ExpenseForm)
	assert.Equal(t, "1", form.Count)
	assert.Equal(t, core.Today().String(), form.Date)
	require.Len(t, form.Categories, 2)
	assert.Equal(t, "Food", form.Categories[0].Name)
	assert.Empty(t, form.Subcategories)
}

func TestExpensePage_Create(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		wantSaved  bool
	}{
		{
			name:       "on subcategory",
			form:       url.Values{"parent": {"HOME"}, "category": {"RENT"}, "count": {"2"}, "unitPrice": {"12,50"}, "date": {"2025-03-04"}, "note": {" rent "}},
			wantStatus: http.StatusOK,
			wantSaved:  true,
		},
		{
			name:       "on top-level category",
			form:       url.Values{"parent": {"HOME"}, "unitPrice": {"3"}, "date": {"2025-03-04"}},
			wantStatus: http.StatusOK,
			wantSaved:  true,
		},
		{
			name:       "missing category",
			form:       url.Values{"unitPrice": {"3"}, "date": {"2025-03-04"}},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "zero price",
			form:       url.Values{"parent": {"HOME"}, "unitPrice": {"0"}, "date": {"2025-03-04"}},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "bad date",
			form:       url.Values{"parent": {"HOME"}, "unitPrice": {"1"}, "date": {"2025-13-01"}},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "bad count",
			form:       url.Values{"parent": {"HOME"}, "count": {"-1"}, "unitPrice": {"1"}, "date": {"2025-03-04"}},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "unknown category",
			form:       url.Values{"parent": {"999"}, "unitPrice": {"1"}, "date": {"2025-03-04"}},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			form := url.Values{}
			for k, vs := range tt.form {
				for _, v := range vs {
					v = strings.ReplaceAll(v, "HOME", strconv.FormatInt(f.home.ID, 10))
					v = strings.ReplaceAll(v, "RENT", strconv.FormatInt(f.rent.ID, 10))
					form.Add(k, v)
				}
			}

			rec := post(f.pages.Components().Expense, "/expense-backend/", form, "HX-Request", "true")

			assert.Equal(t, tt.wantStatus, rec.Code)
			page := f.render.last(t)
			require.NotNil(t, page.Flash)
			list, err := f.expenses.Search(context.Background(), core.ExpenseFilter{
				From: core.NewDate(2025, 1, 1), To: core.NewDate(2025, 12, 31),
			})
			require.NoError(t, err)
			if tt.wantSaved {
				assert.Equal(t, "success", page.Flash.Kind)
				assert.Len(t, page.Triggers, 1)
				assert.Len(t, list, 1)
				assert.Equal(t, "1", page.Data.(ExpenseForm).Count, "form is reset")
			} else {
				assert.Equal(t, "error", page.Flash.Kind)
				assert.Empty(t, page.Triggers)
				assert.Empty(t, list)
			}
		})
	}
}

func TestExpensePage_CreateOnSubcategoryComputesTotal(t *testing.T) {
	f := newFixture(t)
	form := url.Values{
		"parent":    {strconv.FormatInt(f.home.ID, 10)},
		"category":  {strconv.FormatInt(f.rent.ID, 10)},
		"count":     {"2"},
		"unitPrice": {"12,50"},
		"date":      {"2025-03-04"},
	}

	post(f.pages.Components().Expense, "/expense-backend/", form)

	list, err := f.expenses.Search(context.Background(), core.ExpenseFilter{From: core.NewDate(2025, 3, 1), To: core.NewDate(2025, 3, 31)})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, f.rent.ID, list[0].Category.ID)
	assert.Equal(t, int64(2500), list[0].TotalPrice.Cents)
}

func TestPages_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	c := f.pages.Components()

	for name, h := range map[string]http.Handler{
		"expense":  c.Expense,
		"category": c.Category,
		"table":    c.ExpenseTable,
		"bar":      c.ExpenseBar,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/expense-backend/x", nil))
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("Allow"))
		})
	}
}

func TestCategoryPage(t *testing.T) {
	f := newFixture(t)
	h := f.pages.Components().Category
	f.addExpense(t, f.rent.ID, 100, core.NewDate(2025, 1, 1))

	t.Run("lists top-level with free flags", func(t *testing.T) {
		get(h, "/expense-backend/category-action")
		data := f.render.last(t).Data.(CategoryPage)
		require.Len(t, data.Rows, 2)
		assert.Equal(t, "Food", data.Rows[0].Name)
		assert.True(t, data.Rows[0].Free)
		assert.Equal(t, "Home", data.Rows[1].Name)
		assert.False(t, data.Rows[1].Free, "Home has expenses in its tree")
	})

	t.Run("add", func(t *testing.T) {
		rec := post(h, "/expense-backend/category-action", url.Values{"action": {"add"}, "name": {"Leisure"}})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, f.render.last(t).Data.(CategoryPage).Rows, 3)
	})

	t.Run("duplicate name", func(t *testing.T) {
		rec := post(h, "/expense-backend/category-action", url.Values{"action": {"add"}, "name": {"food"}})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "food", f.render.last(t).Data.(CategoryPage).Name, "input is kept")
	})

	t.Run("empty name", func(t *testing.T) {
		rec := post(h, "/expense-backend/category-action", url.Values{"action": {"add"}, "name": {"  "}})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("delete in use", func(t *testing.T) {
		rec := post(h, "/expense-backend/category-action", url.Values{"action": {"delete"}, "id": {strconv.FormatInt(f.home.ID, 10)}})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("delete free", func(t *testing.T) {
		rec := post(h, "/expense-backend/category-action", url.Values{"action": {"delete"}, "id": {strconv.FormatInt(f.food.ID, 10)}})
		assert.Equal(t, http.StatusOK, rec.Code)
		for _, row := range f.render.last(t).Data.(CategoryPage).Rows {
			assert.NotEqual(t, "Food", row.Name)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		rec := post(h, "/expense-backend/category-action", url.Values{"action": {"rename"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSubcategoryPage(t *testing.T) {
	f := newFixture(t)
	h := f.pages.Components().Subcategory
	parent := strconv.FormatInt(f.home.ID, 10)

	t.Run("no parent selected", func(t *testing.T) {
		get(h, "/expense-backend/subcategory-action")
		data := f.render.last(t).Data.(SubcategoryPage)
		assert.Len(t, data.Parents, 2)
		assert.Empty(t, data.Rows)
	})

	t.Run("children of parent", func(t *testing.T) {
		get(h, "/expense-backend/subcategory-action?parent="+parent)
		data := f.render.last(t).Data.(SubcategoryPage)
		require.Len(t, data.Rows, 1)
		assert.Equal(t, "Rent", data.Rows[0].Name)
		assert.True(t, data.Rows[0].Free)
	})

	t.Run("add child", func(t *testing.T) {
		rec := post(h, "/expense-backend/subcategory-action", url.Values{"action": {"add"}, "parent": {parent}, "name": {"Utilities"}})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, f.render.last(t).Data.(SubcategoryPage).Rows, 2)
	})

	t.Run("add without parent", func(t *testing.T) {
		rec := post(h, "/expense-backend/subcategory-action", url.Values{"action": {"add"}, "name": {"Orphan"}})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("add under subcategory", func(t *testing.T) {
		rec := post(h, "/expense-backend/subcategory-action", url.Values{
			"action": {"add"}, "parent": {strconv.FormatInt(f.rent.ID, 10)}, "name": {"Deep"},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestExpenseTablePage(t *testing.T) {
	f := newFixture(t)
	h := f.pages.Components().ExpenseTable
	today := core.Today()
	a := f.addExpense(t, f.rent.ID, 1000, today)
	f.addExpense(t, f.food.ID, 250, today)
	f.addExpense(t, f.food.ID, 999, core.Date{Time: today.AddDate(-1, 0, 0)})

	t.Run("defaults to the current month", func(t *testing.T) {
		rec := get(h, "/expense-backend/expense-table")
		assert.Equal(t, http.StatusOK, rec.Code)
		data := f.render.last(t).Data.(ExpenseTablePage)
		from, to := monthRange(today)
		assert.Equal(t, from.String(), data.Filter.From)
		assert.Equal(t, to.String(), data.Filter.To)
		assert.Len(t, data.Expenses, 2)
		assert.Equal(t, int64(1250), data.Total.Cents)
		assert.Equal(t, "/expense-backend/expense-edit/", data.EditPrefix)
		assert.Equal(t, string(core.OrderByDate), data.Filter.OrderBy)
	})

	t.Run("category filter includes subcategories", func(t *testing.T) {
		get(h, "/expense-backend/expense-table?category="+strconv.FormatInt(f.home.ID, 10))
		data := f.render.last(t).Data.(ExpenseTablePage)
		require.Len(t, data.Expenses, 1)
		assert.Equal(t, a.ID, data.Expenses[0].ID)
	})

	t.Run("invalid order", func(t *testing.T) {
		rec := get(h, "/expense-backend/expense-table?order=color")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "color", f.render.last(t).Data.(ExpenseTablePage).Filter.OrderBy)
	})

	t.Run("inverted price range", func(t *testing.T) {
		rec := get(h, "/expense-backend/expense-table?min=10&max=1")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := post(h, "/expense-backend/expense-table", url.Values{"action": {"delete"}, "id": {strconv.FormatInt(a.ID, 10)}})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, f.render.last(t).Data.(ExpenseTablePage).Expenses, 1)
	})

	t.Run("delete unknown", func(t *testing.T) {
		rec := post(h, "/expense-backend/expense-table", url.Values{"action": {"delete"}, "id": {"12345"}})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestExpenseEditPage(t *testing.T) {
	f := newFixture(t)
	e := f.addExpense(t, f.rent.ID, 1000, core.NewDate(2025, 2, 3))
	h := f.pages.Components().ExpenseEdit
	id := strconv.FormatInt(e.ID, 10)

	t.Run("loads expense and tree", func(t *testing.T) {
		rec := get(withID(h, id), "/expense-backend/expense-edit/"+id)
		assert.Equal(t, http.StatusOK, rec.Code)
		data := f.render.last(t).Data.(ExpenseEditPage)
		assert.Equal(t, e.ID, data.Expense.ID)
		assert.Len(t, data.Tree, 2)
		assert.Empty(t, data.Error)
		assert.Equal(t, f.rent.ID, data.Choices().Selected)
	})

	t.Run("non-numeric id", func(t *testing.T) {
		rec := get(withID(h, "abc"), "/expense-backend/expense-edit/abc")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, f.render.last(t).Data.(ExpenseEditPage).Error)
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := get(withID(h, "999"), "/expense-backend/expense-edit/999")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.NotEmpty(t, f.render.last(t).Data.(ExpenseEditPage).Error)
	})

	t.Run("update redirects to the table", func(t *testing.T) {
		rec := post(withID(h, id), "/expense-backend/expense-edit/"+id, url.Values{
			"count": {"3"}, "unitPrice": {"2"}, "note": {"edited"},
		})
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/expense-backend/expense-table", rec.Header().Get("Location"))

		got, err := f.expenses.Get(context.Background(), e.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(600), got.TotalPrice.Cents)
		assert.Equal(t, "edited", got.Note)
	})

	t.Run("htmx update uses HX-Redirect", func(t *testing.T) {
		rec := post(withID(h, id), "/expense-backend/expense-edit/"+id, url.Values{
			"category": {strconv.FormatInt(f.food.ID, 10)},
		}, "HX-Request", "true")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "/expense-backend/expense-table", rec.Header().Get("HX-Redirect"))
	})

	t.Run("invalid update re-renders the form", func(t *testing.T) {
		rec := post(withID(h, id), "/expense-backend/expense-edit/"+id, url.Values{"date": {"2025-02-30"}})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		page := f.render.last(t)
		require.NotNil(t, page.Flash)
		assert.Equal(t, e.ID, page.Data.(ExpenseEditPage).Expense.ID)
	})
}

func TestExpenseBarPage(t *testing.T) {
	f := newFixture(t)
	today := core.Today()
	f.addExpense(t, f.rent.ID, 1000, today)
	f.addExpense(t, f.home.ID, 500, today)
	f.addExpense(t, f.food.ID, 10, today)
	h := f.pages.Components().ExpenseBar

	t.Run("by top-level category", func(t *testing.T) {
		rec := get(h, "/expense-backend/bar")
		assert.Equal(t, http.StatusOK, rec.Code)
		data := f.render.last(t).Data.(ExpenseBarPage)
		assert.Equal(t, []Bar{
			{Name: "Food", Amount: core.Money{Cents: 10}, Width: 2},
			{Name: "Home", Amount: core.Money{Cents: 1500}, Width: 100},
		}, data.Bars)
		assert.Equal(t, int64(1510), data.Total.Cents)
	})

	t.Run("by subcategory", func(t *testing.T) {
		get(h, "/expense-backend/bar?category="+strconv.FormatInt(f.home.ID, 10))
		data := f.render.last(t).Data.(ExpenseBarPage)
		assert.Equal(t, []Bar{
			{Name: "Rent", Amount: core.Money{Cents: 1000}, Width: 100},
			{Name: core.WithoutSubcategory, Amount: core.Money{Cents: 500}, Width: 50},
		}, data.Bars)
	})
}

func TestBarWidth(t *testing.T) {
	tests := []struct {
		amount, top int64
		want        int
	}{
		{0, 100, 0},
		{100, 0, 0},
		{100, 100, 100},
		{50, 100, 50},
		{1, 1000, 2},
		{15, 1000, 2},
		{25, 1000, 3},
		{333, 1000, 33},
		{335, 1000, 34},
		{2000, 1000, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BarWidth(tt.amount, tt.top), "BarWidth(%d, %d)", tt.amount, tt.top)
	}
}

func TestNotFoundPage(t *testing.T) {
	f := newFixture(t)
	rec := get(f.pages.Components().NotFound, "/expense-backend/missing")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	page := f.render.last(t)
	assert.Equal(t, TemplateNotFound, page.Template)
	assert.Equal(t, NotFoundPage{Path: "/expense-backend/missing", HomeURL: "/expense-backend/"}, page.Data)
}

func TestSubcategoryOptions(t *testing.T) {
	f := newFixture(t)
	rec := get(http.HandlerFunc(f.pages.SubcategoryOptions), "/expense-backend/ui/subcategory-options?parent="+strconv.FormatInt(f.home.ID, 10))

	assert.Equal(t, http.StatusOK, rec.Code)
	call := f.render.calls[len(f.render.calls)-1]
	assert.Equal(t, "subcategory_options", call.block)
	children := call.page.Data.(ExpenseForm).Subcategories
	require.Len(t, children, 1)
	assert.Equal(t, "Rent", children[0].Name)
}
