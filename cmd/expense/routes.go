package main

import (
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"expense/internal/router"
)

func routesCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the page route table in match order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printRoutes(cmd.OutOrStdout(), e.cfg.BasePath)
		},
	}
}

func printRoutes(w io.Writer, base string) error {
	placeholder := http.NotFoundHandler()
	rt, err := router.New(base, router.Table(router.Components{
		Expense:      placeholder,
		Category:     placeholder,
		Subcategory:  placeholder,
		ExpenseTable: placeholder,
		ExpenseEdit:  placeholder,
		ExpenseBar:   placeholder,
		NotFound:     placeholder,
	}))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tPATH")
	for i, r := range rt.Routes() {
		name := r.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, name, rt.Base()+trimSlash(r.Path))
	}
	return tw.Flush()
}

func trimSlash(p string) string {
	if len(p) > 0 && p[0] == '/' {
		return p[1:]
	}
	return p
}
