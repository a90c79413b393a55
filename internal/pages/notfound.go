package pages

import (
	"net/http"

	"expense/internal/app"
)

type NotFoundPage struct {
	Path    string
	HomeURL string
}

func (p *Pages) notFound(w http.ResponseWriter, r *http.Request) {
	p.render.Render(w, r, app.Page{
		Template: TemplateNotFound,
		Title:    "Page not found",
		Status:   http.StatusNotFound,
		Data:     NotFoundPage{Path: r.URL.Path, HomeURL: p.base},
	})
}
