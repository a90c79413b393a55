package pages

import (
	"fmt"
	"net/http"

	"expense/internal/app"
	"expense/internal/core"
	"expense/internal/log"
)

// CategoryRow is a listed category; Free rows can be deleted.
type CategoryRow struct {
	core.Category
	Free bool
}

type CategoryPage struct {
	Rows []CategoryRow
	Name string
}

type SubcategoryPage struct {
	Parents  []core.Category
	ParentID int64
	Rows     []CategoryRow
	Name     string
}

func (p *Pages) category(w http.ResponseWriter, r *http.Request) {
	page := app.Page{Template: TemplateCategory, Title: "Categories"}
	data := CategoryPage{}

	if r.Method == http.MethodPost {
		switch formValue(r, "action") {
		case "add":
			name := formValue(r, "name")
			c, err := p.categories.CreateTopLevel(r.Context(), name)
			if err != nil {
				p.categoryFailure(r, &page, err)
				data.Name = name
				break
			}
			page.Flash = success(fmt.Sprintf("Category %q added.", c.Name))
			page.Triggers = trigger(EventCategoryChanged)
		case "delete":
			if err := p.deleteCategory(r); err != nil {
				p.categoryFailure(r, &page, err)
				break
			}
			page.Flash = success("Category deleted.")
			page.Triggers = trigger(EventCategoryChanged)
		default:
			page.Status = http.StatusBadRequest
			page.Flash = failure("Unknown action.")
		}
	}

	top, err := p.categories.ListTopLevel(r.Context())
	if err != nil {
		p.serverError(w, r, err)
		return
	}
	free, err := p.categories.FreeTopLevel(r.Context())
	if err != nil {
		p.serverError(w, r, err)
		return
	}
	data.Rows = markFree(top, free)
	page.Data = data
	p.render.Render(w, r, page)
}

func (p *Pages) subcategory(w http.ResponseWriter, r *http.Request) {
	page := app.Page{Template: TemplateSubcategory, Title: "Subcategories"}
	data := SubcategoryPage{ParentID: optionalID(formValue(r, "parent"))}

	if r.Method == http.MethodPost {
		switch formValue(r, "action") {
		case "add":
			name := formValue(r, "name")
			if data.ParentID == 0 {
				page.Status = http.StatusUnprocessableEntity
				page.Flash = failure("Choose a category first.")
				data.Name = name
				break
			}
			c, err := p.categories.CreateChild(r.Context(), data.ParentID, name)
			if err != nil {
				p.categoryFailure(r, &page, err)
				data.Name = name
				break
			}
			page.Flash = success(fmt.Sprintf("Subcategory %q added.", c.Name))
			page.Triggers = trigger(EventCategoryChanged)
		case "delete":
			if err := p.deleteCategory(r); err != nil {
				p.categoryFailure(r, &page, err)
				break
			}
			page.Flash = success("Subcategory deleted.")
			page.Triggers = trigger(EventCategoryChanged)
		default:
			page.Status = http.StatusBadRequest
			page.Flash = failure("Unknown action.")
		}
	}

	var err error
	if data.Parents, err = p.categories.ListTopLevel(r.Context()); err != nil {
		p.serverError(w, r, err)
		return
	}
	if data.ParentID != 0 {
		children, err := p.categories.ListChildren(r.Context(), data.ParentID)
		if err != nil {
			data.ParentID = 0
		} else {
			free, err := p.categories.FreeChildren(r.Context(), data.ParentID)
			if err != nil {
				p.serverError(w, r, err)
				return
			}
			data.Rows = markFree(children, free)
		}
	}
	page.Data = data
	p.render.Render(w, r, page)
}

func (p *Pages) deleteCategory(r *http.Request) error {
	id, err := parseID(formValue(r, "id"))
	if err != nil {
		return err
	}
	return p.categories.Delete(r.Context(), id)
}

func (p *Pages) categoryFailure(r *http.Request, page *app.Page, err error) {
	status, msg := failureStatus(err)
	if status == http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Category change failed", log.FieldError, err)
	}
	page.Status = status
	page.Flash = failure(msg)
}

func markFree(all, free []core.Category) []CategoryRow {
	ids := make(map[int64]bool, len(free))
	for _, c := range free {
		ids[c.ID] = true
	}
	rows := make([]CategoryRow, len(all))
	for i, c := range all {
		rows[i] = CategoryRow{Category: c, Free: ids[c.ID]}
	}
	return rows
}
