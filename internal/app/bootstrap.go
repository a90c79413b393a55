package app

import (
	"github.com/go-chi/chi/v5"

	"expense/internal/router"
)

// Bootstrap installs the icons, sidebar menu and router plugins in that
// order and mounts the application on mux once.
func Bootstrap(a *App, rt *router.Router, mux chi.Router) error {
	for _, p := range []Plugin{
		IconsPlugin(),
		SidebarMenuPlugin(DefaultMenu),
		RouterPlugin(rt),
	} {
		if err := a.Use(p); err != nil {
			return err
		}
	}
	return a.Mount(mux)
}
