package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stub writes its own name and the bound params.
type stub string

func (s stub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, string(s))
	if id := Param(r, "id"); id != "" {
		io.WriteString(w, " id="+id)
	}
}

func stubComponents() Components {
	return Components{
		Expense:      stub("Expense"),
		Category:     stub("Category"),
		Subcategory:  stub("Subcategory"),
		ExpenseTable: stub("ExpenseTable"),
		ExpenseEdit:  stub("ExpenseEdit"),
		ExpenseBar:   stub("ExpenseBar"),
		NotFound:     stub("NotFoundComponent"),
	}
}

func newTableRouter(t *testing.T) *Router {
	t.Helper()
	rt, err := New(DefaultBase, Table(stubComponents()))
	require.NoError(t, err)
	return rt
}

func componentOf(m Match) string {
	return string(m.Route.Component.(stub))
}

func TestTableOrderAndNames(t *testing.T) {
	routes := newTableRouter(t).Routes()
	want := []struct{ path, name string }{
		{"/", "Expense"},
		{"/category-action", "Category"},
		{"/subcategory-action", "Subcategory"},
		{"/expense-table", "ExpenseTable"},
		{"/expense-edit/:id", "ExpenseEdit"},
		{"/bar", ""},
		{"*", ""},
	}
	require.Len(t, routes, len(want))
	for i, w := range want {
		assert.Equal(t, w.path, routes[i].Path)
		assert.Equal(t, w.name, routes[i].Name)
	}
}

func TestMatchEachLiteralPath(t *testing.T) {
	rt := newTableRouter(t)
	cases := map[string]string{
		"/expense-backend/":                   "Expense",
		"/expense-backend":                    "Expense",
		"/expense-backend/category-action":    "Category",
		"/expense-backend/subcategory-action": "Subcategory",
		"/expense-backend/expense-table":      "ExpenseTable",
		"/expense-backend/bar":                "ExpenseBar",
		"/expense-backend/expense-table/":     "ExpenseTable",
	}
	for path, want := range cases {
		m, ok := rt.Match(path)
		require.True(t, ok, path)
		assert.Equal(t, want, componentOf(m), path)
	}
}

func TestMatchBindsID(t *testing.T) {
	rt := newTableRouter(t)

	m, ok := rt.Match("/expense-backend/expense-edit/42")
	require.True(t, ok)
	assert.Equal(t, "ExpenseEdit", componentOf(m))
	assert.Equal(t, Params{"id": "42"}, m.Params)

	m, ok = rt.Match("/expense-backend/expense-edit/a%20b")
	require.True(t, ok)
	assert.Equal(t, "a b", m.Params["id"])
}

func TestMatchFallsBackToNotFound(t *testing.T) {
	rt := newTableRouter(t)
	for _, path := range []string{
		"/expense-backend/does-not-exist",
		"/expense-backend/expense-edit",
		"/expense-backend/expense-edit/",
		"/expense-backend/expense-edit/1/2",
		"/expense-backend/Category-Action",
		"/expense-backend/bar/extra",
	} {
		m, ok := rt.Match(path)
		require.True(t, ok, path)
		assert.Equal(t, "NotFoundComponent", componentOf(m), path)
		assert.Empty(t, m.Params, path)
	}
}

func TestMatchOutsideBase(t *testing.T) {
	rt := newTableRouter(t)
	for _, path := range []string{"/", "/other", "/expense-backendx/bar"} {
		_, ok := rt.Match(path)
		assert.False(t, ok, path)
	}
}

func TestFirstMatchWins(t *testing.T) {
	rt, err := New("/", []Route{
		{Path: "/items/new", Component: stub("literal")},
		{Path: "/items/:id", Component: stub("param")},
		{Path: "*", Component: stub("fallback")},
	})
	require.NoError(t, err)

	m, _ := rt.MatchRelative("/items/new")
	assert.Equal(t, "literal", componentOf(m))
	m, _ = rt.MatchRelative("/items/7")
	assert.Equal(t, "param", componentOf(m))
}

func TestNewRejectsInvalidTables(t *testing.T) {
	h := stub("x")
	tests := []struct {
		name   string
		routes []Route
		want   error
	}{
		{"wildcard not last", []Route{{Path: "*", Component: h}, {Path: "/a", Component: h}}, ErrWildcardNotLast},
		{"duplicate literal", []Route{{Path: "/a", Component: h}, {Path: "/a/", Component: h}}, ErrDuplicatePattern},
		{"duplicate param shape", []Route{{Path: "/a/:x", Component: h}, {Path: "/a/:y", Component: h}}, ErrDuplicatePattern},
		{"duplicate name", []Route{{Path: "/a", Name: "A", Component: h}, {Path: "/b", Name: "A", Component: h}}, ErrDuplicateName},
		{"nil component", []Route{{Path: "/a"}}, ErrNilComponent},
		{"relative pattern", []Route{{Path: "a", Component: h}}, ErrInvalidPattern},
		{"unnamed param", []Route{{Path: "/a/:", Component: h}}, ErrInvalidPattern},
		{"inner wildcard", []Route{{Path: "/a/*/b", Component: h}}, ErrInvalidPattern},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("/", tt.routes)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestURLBuilding(t *testing.T) {
	rt := newTableRouter(t)

	u, err := rt.URL(NameExpenseEdit, "id", "42")
	require.NoError(t, err)
	assert.Equal(t, "/expense-backend/expense-edit/42", u)

	u, err = rt.URL(NameExpense)
	require.NoError(t, err)
	assert.Equal(t, "/expense-backend/", u)

	u, err = rt.PathFor(PathExpenseBar)
	require.NoError(t, err)
	assert.Equal(t, "/expense-backend/bar", u)

	_, err = rt.URL(NameExpenseEdit)
	assert.ErrorIs(t, err, ErrMissingParam)
	_, err = rt.URL("Bar")
	assert.ErrorIs(t, err, ErrUnknownRoute)
	_, err = rt.PathFor(Wildcard)
	assert.ErrorIs(t, err, ErrUnknownRoute)
}

func TestServeHTTP(t *testing.T) {
	rt := newTableRouter(t)

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/expense-backend/expense-edit/42", nil))
	assert.Equal(t, "ExpenseEdit id=42", rec.Body.String())

	rec = httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/elsewhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouteLabel(t *testing.T) {
	routes := newTableRouter(t).Routes()
	assert.Equal(t, "Expense", routes[0].Label())
	assert.Equal(t, "/bar", routes[5].Label())
	assert.Equal(t, "*", routes[6].Label())
}

func TestNormalizeBase(t *testing.T) {
	assert.Equal(t, "/expense-backend/", NormalizeBase("expense-backend"))
	assert.Equal(t, "/expense-backend/", NormalizeBase("/expense-backend"))
	assert.Equal(t, "/", NormalizeBase(""))
	assert.Equal(t, "/a/b/", NormalizeBase("/a/b/"))
}
