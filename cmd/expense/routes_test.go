package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintRoutes(t *testing.T) {
	var buf bytes.Buffer
	if err := printRoutes(&buf, "/expense-backend/"); err != nil {
		t.Fatalf("printRoutes: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 8 {
		t.Fatalf("expected header plus 7 routes, got %d:\n%s", len(lines), buf.String())
	}

	want := []struct{ name, path string }{
		{"Expense", "/expense-backend/"},
		{"Category", "/expense-backend/category-action"},
		{"Subcategory", "/expense-backend/subcategory-action"},
		{"ExpenseTable", "/expense-backend/expense-table"},
		{"ExpenseEdit", "/expense-backend/expense-edit/:id"},
		{"-", "/expense-backend/bar"},
		{"-", "/expense-backend/*"},
	}
	for i, w := range want {
		fields := strings.Fields(lines[i+1])
		if len(fields) != 3 || fields[1] != w.name || fields[2] != w.path {
			t.Errorf("line %d = %q, want name %q path %q", i+1, lines[i+1], w.name, w.path)
		}
	}
}
