// Package app bootstraps the page application: it installs plugins in
// order, parses the templates, and mounts the root view under the base
// path exactly once.
package app

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/angelofallars/htmx-go"
	"github.com/go-chi/chi/v5"

	"expense/internal/core"
	"expense/internal/log"
	"expense/internal/router"
	"expense/web"
)

var (
	ErrAlreadyMounted    = errors.New("application already mounted")
	ErrMountPointMissing = errors.New("root layout has no mount point")
	ErrNoRouter          = errors.New("no router installed")
	ErrDuplicatePlugin   = errors.New("plugin already installed")
	ErrNotMounted        = errors.New("application not mounted")
	ErrUnknownPage       = errors.New("unknown page template")
)

// Config controls how the application is built.
type Config struct {
	BasePath string
	// MountID is the id of the element the active component renders into.
	MountID string
	Title   string
	// Diagnostics exposes render errors to clients and logs the route
	// table at info level. Off in production.
	Diagnostics bool
	// Templates holds templates/layout.html, templates/partials/*.html and
	// templates/pages/*.html. Defaults to the embedded web templates.
	Templates fs.FS
	Logger    *log.Logger
}

func DefaultConfig() Config {
	return Config{
		BasePath: router.DefaultBase,
		MountID:  "app",
		Title:    "Expenses",
	}
}

// Plugin extends the application before it is mounted.
type Plugin interface {
	Name() string
	Install(a *App) error
}

// Page describes one render of a page component.
type Page struct {
	// Template is the page file name without extension, e.g. "expense_table".
	Template string
	Title    string
	Status   int
	Data     any
	Flash    *Flash
	// Triggers are sent as HX-Trigger events on HTMX requests.
	Triggers []htmx.EventTrigger
}

// Flash is a one-shot message shown above the page content.
type Flash struct {
	Kind    string // "success" or "error"
	Message string
}

// View is the value every template executes with.
type View struct {
	AppTitle    string
	Title       string
	Base        string
	MountID     string
	Component   string
	Page        any
	Flash       *Flash
	Diagnostics bool
}

type App struct {
	cfg    Config
	logger *log.Logger

	mu         sync.Mutex
	plugins    []string
	funcs      template.FuncMap
	mountHooks []func(*App, *router.Router) error
	router     *router.Router
	pages      map[string]*template.Template
	mounted    bool
}

func New(cfg Config) *App {
	def := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = def.BasePath
	}
	cfg.BasePath = router.NormalizeBase(cfg.BasePath)
	if cfg.MountID == "" {
		cfg.MountID = def.MountID
	}
	if cfg.Title == "" {
		cfg.Title = def.Title
	}
	if cfg.Templates == nil {
		cfg.Templates = web.TemplatesFS
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.DefaultConfig())
	}
	return &App{
		cfg:    cfg,
		logger: cfg.Logger.WithComponent(log.ComponentApp),
		funcs: template.FuncMap{
			"money": func(m core.Money) string { return m.String() },
			"date":  func(d core.Date) string { return d.String() },
		},
	}
}

func (a *App) Config() Config { return a.cfg }

// Use installs a plugin immediately. Plugins are installed in call order
// and each name may be installed once.
func (a *App) Use(p Plugin) error {
	a.mu.Lock()
	if a.mounted {
		a.mu.Unlock()
		return fmt.Errorf("install %s: %w", p.Name(), ErrAlreadyMounted)
	}
	for _, name := range a.plugins {
		if name == p.Name() {
			a.mu.Unlock()
			return fmt.Errorf("install %s: %w", p.Name(), ErrDuplicatePlugin)
		}
	}
	a.mu.Unlock()

	if err := p.Install(a); err != nil {
		return fmt.Errorf("install %s: %w", p.Name(), err)
	}

	a.mu.Lock()
	a.plugins = append(a.plugins, p.Name())
	a.mu.Unlock()

	a.diag("Plugin installed", "plugin", p.Name())
	return nil
}

// Plugins returns installed plugin names in installation order.
func (a *App) Plugins() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.plugins...)
}

// AddFuncs registers template functions. Later plugins may not override
// an existing name.
func (a *App) AddFuncs(funcs template.FuncMap) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, fn := range funcs {
		if _, exists := a.funcs[name]; exists {
			return fmt.Errorf("template function %q already registered", name)
		}
		a.funcs[name] = fn
	}
	return nil
}

// OnMount registers a check that runs before the templates are parsed.
// Mount holds the application lock while hooks run, so a hook gets the
// installed router as an argument and must not call back into locking
// methods such as Router or Mounted.
func (a *App) OnMount(hook func(*App, *router.Router) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mountHooks = append(a.mountHooks, hook)
}

// SetRouter installs the route table. Only one router may be installed.
func (a *App) SetRouter(rt *router.Router) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.router != nil {
		return errors.New("router already installed")
	}
	if rt.Base() != a.cfg.BasePath {
		return fmt.Errorf("router base %q does not match application base %q", rt.Base(), a.cfg.BasePath)
	}
	a.router = rt
	return nil
}

// Router returns the installed router, or nil.
func (a *App) Router() *router.Router {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.router
}

// Mounted reports whether Mount succeeded.
func (a *App) Mounted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mounted
}

// Mount parses the templates, checks that the layout renders the mount
// point and attaches the application under the base path of mux. It
// succeeds at most once.
func (a *App) Mount(mux chi.Router) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mounted {
		return ErrAlreadyMounted
	}
	if a.router == nil {
		return ErrNoRouter
	}
	for _, hook := range a.mountHooks {
		if err := hook(a, a.router); err != nil {
			return fmt.Errorf("mount: %w", err)
		}
	}

	pages, shell, err := a.parseTemplates()
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}
	var buf bytes.Buffer
	if err := shell.ExecuteTemplate(&buf, "layout", a.view(nil, Page{}, "")); err != nil {
		return fmt.Errorf("mount: render layout: %w", err)
	}
	if !strings.Contains(buf.String(), `id="`+a.cfg.MountID+`"`) {
		return fmt.Errorf("%w: #%s", ErrMountPointMissing, a.cfg.MountID)
	}
	a.pages = pages

	base := a.cfg.BasePath
	mux.Handle(base+"*", a)
	if base != "/" {
		bare := strings.TrimSuffix(base, "/")
		mux.Get(bare, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, base, http.StatusMovedPermanently)
		})
	}
	a.mounted = true

	a.logger.Info("Application mounted",
		log.FieldOperation, log.OpMount,
		"base_path", base,
		"mount_id", a.cfg.MountID,
		"routes", len(a.router.Routes()),
		"plugins", strings.Join(a.plugins, ","))
	for i, rt := range a.router.Routes() {
		a.diag("Route registered", "order", i, "path", rt.Path, "name", rt.Name)
	}
	return nil
}

// parseTemplates builds one template set per page, each a clone of the
// layout plus partials. It returns the bare shell too.
func (a *App) parseTemplates() (map[string]*template.Template, *template.Template, error) {
	fsys := a.cfg.Templates
	shell, err := template.New("layout.html").Funcs(a.funcs).ParseFS(fsys, "templates/layout.html")
	if err != nil {
		return nil, nil, fmt.Errorf("parse layout: %w", err)
	}
	partials, err := fs.Glob(fsys, "templates/partials/*.html")
	if err != nil {
		return nil, nil, err
	}
	if len(partials) > 0 {
		if shell, err = shell.ParseFS(fsys, partials...); err != nil {
			return nil, nil, fmt.Errorf("parse partials: %w", err)
		}
	}

	files, err := fs.Glob(fsys, "templates/pages/*.html")
	if err != nil {
		return nil, nil, err
	}
	pages := make(map[string]*template.Template, len(files))
	for _, f := range files {
		clone, err := shell.Clone()
		if err != nil {
			return nil, nil, err
		}
		if _, err := clone.ParseFS(fsys, f); err != nil {
			return nil, nil, fmt.Errorf("parse %s: %w", f, err)
		}
		pages[strings.TrimSuffix(path.Base(f), ".html")] = clone
	}
	return pages, shell, nil
}

// ServeHTTP dispatches navigation to the matched component.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	rt, mounted := a.router, a.mounted
	a.mu.Unlock()
	if !mounted {
		http.Error(w, ErrNotMounted.Error(), http.StatusServiceUnavailable)
		return
	}
	rt.ServeHTTP(w, r)
}

// Partial reports whether the request only wants the mount point content:
// an HTMX navigation that targets the mount point and is not a history
// restore.
func (a *App) Partial(r *http.Request) bool {
	return htmx.IsHTMX(r) &&
		r.Header.Get("HX-Target") == a.cfg.MountID &&
		r.Header.Get("HX-History-Restore-Request") != "true"
}

// Render writes a page. Full loads get the layout around the component;
// HTMX navigations targeting the mount point get the component alone.
func (a *App) Render(w http.ResponseWriter, r *http.Request, p Page) {
	a.RenderBlock(w, r, p, "")
}

// RenderBlock renders one named template of a page, or the page itself
// when block is empty.
func (a *App) RenderBlock(w http.ResponseWriter, r *http.Request, p Page, block string) {
	a.mu.Lock()
	tmpl, ok := a.pages[p.Template]
	a.mu.Unlock()

	logger := log.FromContext(r.Context()).WithComponent(log.ComponentPages)
	if !ok {
		a.fail(w, r, fmt.Errorf("%w: %q", ErrUnknownPage, p.Template))
		return
	}

	name := block
	if name == "" {
		name = "layout"
		if a.Partial(r) {
			name = "content"
		}
	}

	m, _ := router.RouteFrom(r.Context())
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, a.view(&m, p, p.Template)); err != nil {
		logger.ErrorContext(r.Context(), "Template execution failed",
			log.FieldOperation, log.OpRender,
			log.FieldError, err,
			"template", p.Template,
			"block", name)
		a.fail(w, r, err)
		return
	}

	status := p.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Add("Vary", "HX-Request")
	w.Header().Add("Vary", "HX-Target")
	res := htmx.NewResponse().StatusCode(status)
	if htmx.IsHTMX(r) {
		for _, t := range p.Triggers {
			res = res.AddTrigger(t)
		}
	}
	if err := res.Write(w); err != nil {
		logger.ErrorContext(r.Context(), "Writing HTMX headers failed", log.FieldError, err)
		return
	}
	_, _ = buf.WriteTo(w)
}

func (a *App) view(m *router.Match, p Page, fallback string) View {
	v := View{
		AppTitle:    a.cfg.Title,
		Title:       p.Title,
		Base:        a.cfg.BasePath,
		MountID:     a.cfg.MountID,
		Component:   fallback,
		Page:        p.Data,
		Flash:       p.Flash,
		Diagnostics: a.cfg.Diagnostics,
	}
	if m != nil && m.Route.Component != nil {
		v.Component = m.Route.Label()
	}
	return v
}

func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	msg := "Something went wrong while rendering this page."
	if a.cfg.Diagnostics {
		msg = err.Error()
	}
	http.Error(w, msg, http.StatusInternalServerError)
}

// diag logs at info with diagnostics on and at debug otherwise.
func (a *App) diag(msg string, args ...any) {
	if a.cfg.Diagnostics {
		a.logger.Info(msg, args...)
		return
	}
	a.logger.Debug(msg, args...)
}
