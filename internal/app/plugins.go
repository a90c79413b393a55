package app

import (
	"fmt"
	"html/template"
	"strings"

	"expense/internal/router"
)

// Plugin names, in the order Bootstrap installs them.
const (
	PluginIcons   = "icons"
	PluginSidebar = "sidebar-menu"
	PluginRouter  = "router"
)

type funcPlugin struct {
	name    string
	install func(*App) error
}

func (p funcPlugin) Name() string { return p.name }
func (p funcPlugin) Install(a *App) error { return p.install(a) }

// icons are 24x24 stroke paths.
var icons = map[string]string{
	"plus":     `<path d="M12 5v14M5 12h14"/>`,
	"list":     `<path d="M8 6h13M8 12h13M8 18h13M3 6h.01M3 12h.01M3 18h.01"/>`,
	"chart":    `<path d="M3 3v18h18"/><path d="M7 16v-5M12 16V8M17 16v-9"/>`,
	"folder":   `<path d="M3 7a2 2 0 0 1 2-2h4l2 2h8a2 2 0 0 1 2 2v8a2 2 0 0 1-2 2H5a2 2 0 0 1-2-2z"/>`,
	"subtree":  `<path d="M6 3v12a3 3 0 0 0 3 3h9"/><path d="M15 15l3 3-3 3"/>`,
	"edit":     `<path d="M12 20h9"/><path d="M16.5 3.5a2.1 2.1 0 0 1 3 3L7 19l-4 1 1-4z"/>`,
	"trash":    `<path d="M3 6h18M8 6V4h8v2M19 6l-1 14H6L5 6"/>`,
	"question": `<circle cx="12" cy="12" r="10"/><path d="M9.1 9a3 3 0 0 1 5.8 1c0 2-3 3-3 3M12 17h.01"/>`,
}

// IconsPlugin provides the "icon" template function, which renders an
// inline SVG by name. Unknown names render the question icon.
func IconsPlugin() Plugin {
	return funcPlugin{name: PluginIcons, install: func(a *App) error {
		return a.AddFuncs(template.FuncMap{"icon": Icon})
	}}
}

// Icon renders the named icon as inline SVG.
func Icon(name string) template.HTML {
	body, ok := icons[name]
	if !ok {
		body = icons["question"]
	}
	return template.HTML(`<svg class="icon icon-` + template.HTMLEscapeString(name) +
		`" viewBox="0 0 24 24" width="20" height="20" fill="none" stroke="currentColor" stroke-width="2" stroke-linecap="round" stroke-linejoin="round" aria-hidden="true">` +
		body + `</svg>`)
}

// MenuItem is a sidebar entry. Route is a route name, or a path pattern
// starting with "/" for unnamed routes.
type MenuItem struct {
	Label string
	Icon  string
	Route string
}

// MenuLink is a resolved sidebar entry.
type MenuLink struct {
	Label  string
	Icon   string
	Href   string
	Active bool
}

// DefaultMenu is the sidebar of the application.
var DefaultMenu = []MenuItem{
	{Label: "Add expense", Icon: "plus", Route: router.NameExpense},
	{Label: "Expenses", Icon: "list", Route: router.NameExpenseTable},
	{Label: "Chart", Icon: "chart", Route: router.PathExpenseBar},
	{Label: "Categories", Icon: "folder", Route: router.NameCategory},
	{Label: "Subcategories", Icon: "subtree", Route: router.NameSubcategory},
}

// SidebarMenuPlugin provides the "sidebar" template function. Entries are
// resolved against the router when the application mounts, so an entry
// pointing at a missing route fails the mount.
func SidebarMenuPlugin(items []MenuItem) Plugin {
	var links []MenuLink
	var keys []string
	return funcPlugin{name: PluginSidebar, install: func(a *App) error {
		a.OnMount(func(_ *App, rt *router.Router) error {
			links = make([]MenuLink, 0, len(items))
			keys = make([]string, 0, len(items))
			for _, it := range items {
				var href string
				var err error
				if strings.HasPrefix(it.Route, "/") {
					href, err = rt.PathFor(it.Route)
				} else {
					href, err = rt.URL(it.Route)
				}
				if err != nil {
					return fmt.Errorf("sidebar entry %q: %w", it.Label, err)
				}
				links = append(links, MenuLink{Label: it.Label, Icon: it.Icon, Href: href})
				keys = append(keys, it.Route)
			}
			return nil
		})
		return a.AddFuncs(template.FuncMap{
			"sidebar": func(active string) []MenuLink {
				out := make([]MenuLink, len(links))
				for i, l := range links {
					l.Active = keys[i] == active
					out[i] = l
				}
				return out
			},
		})
	}}
}

// RouterPlugin installs the route table and the "routeURL", "pathFor"
// and "base" template functions. Parameters are name/value pairs.
func RouterPlugin(rt *router.Router) Plugin {
	return funcPlugin{name: PluginRouter, install: func(a *App) error {
		if err := a.SetRouter(rt); err != nil {
			return err
		}
		return a.AddFuncs(template.FuncMap{
			"routeURL": func(name string, params ...any) (string, error) {
				return rt.URL(name, stringify(params)...)
			},
			"pathFor": func(pattern string, params ...any) (string, error) {
				return rt.PathFor(pattern, stringify(params)...)
			},
			"base": rt.Base,
		})
	}}
}

func stringify(params []any) []string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = fmt.Sprint(p)
	}
	return out
}
