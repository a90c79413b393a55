// Package http wires the application, JSON API and operational endpoints
// into one chi router and owns the HTTP server lifecycle.
package http

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"expense/internal/app"
	"expense/internal/cache"
	"expense/internal/log"
	"expense/internal/metrics"
	"expense/internal/middleware/ratelimit"
	"expense/internal/middleware/security"
	"expense/internal/middleware/trace"
	"expense/internal/pages"
	"expense/internal/ports"
	"expense/internal/router"
	"expense/internal/services"
	"expense/web"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	cacheSweep        = time.Minute
	staticMaxAge      = 3600
)

// Deps are the collaborators of the server. Pinger and Metrics may be nil.
type Deps struct {
	Addr               string
	BasePath           string
	Categories         *services.CategoryService
	Expenses           *services.ExpenseService
	Pinger             ports.Pinger
	Metrics            *metrics.Metrics
	Logger             *log.Logger
	RateLimitPerMinute int
	Diagnostics        bool
	// Templates overrides the embedded templates.
	Templates fs.FS
}

type Server struct {
	http.Server

	app     *app.App
	routes  *router.Router
	limiter *ratelimit.Limiter
	caches  *cache.Manager
	pinger  ports.Pinger
	logger  *log.Logger
	started time.Time

	shutdownOnce sync.Once
}

// NewServer builds the handler tree and mounts the application. Mount
// failures are returned; nothing is listening yet.
func NewServer(d Deps) (*Server, error) {
	if d.Logger == nil {
		d.Logger = log.New(log.DefaultConfig())
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.BasePath == "" {
		d.BasePath = router.DefaultBase
	}
	base := router.NormalizeBase(d.BasePath)
	logger := d.Logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		pinger:  d.Pinger,
		logger:  logger,
		started: time.Now(),
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: d.RateLimitPerMinute}),
		caches:  cache.NewManager(d.Logger.Logger.With(log.FieldComponent, log.ComponentCache)),
	}

	a := app.New(app.Config{
		BasePath:    base,
		Diagnostics: d.Diagnostics,
		Templates:   d.Templates,
		Logger:      d.Logger,
	})
	p := pages.New(a, d.Categories, d.Expenses, base)
	rt, err := router.New(base, router.Table(p.Components()))
	if err != nil {
		s.limiter.Stop()
		return nil, fmt.Errorf("build route table: %w", err)
	}
	s.app, s.routes = a, rt

	detector := security.NewDetector()
	tracer := trace.NewMiddleware(d.Logger, d.Metrics, detector.ExtractClientIP)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	secLog := d.Logger.WithComponent(log.ComponentSecurity)
	limitLog := d.Logger.WithComponent(log.ComponentRateLimit)

	writes := s.limiter.Middleware(detector.ExtractClientIP, func(r *http.Request) {
		d.Metrics.RateLimited.Inc()
		limitLog.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
	})

	mux := chi.NewRouter()
	mux.Use(
		tracer.Middleware,
		headers.Middleware,
		detector.Middleware(func(r *http.Request, reason string) {
			d.Metrics.SuspiciousRequests.Inc()
			secLog.WarnContext(r.Context(), "Suspicious request",
				"reason", reason,
				log.FieldClientIP, detector.ExtractClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
		}),
	)

	mux.Get("/healthz", s.handleHealth)
	mux.Get("/readyz", s.handleReady)
	mux.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	static, err := fs.Sub(web.StaticFS, "static")
	if err != nil {
		s.limiter.Stop()
		return nil, fmt.Errorf("static assets: %w", err)
	}
	mux.Handle(base+"static/*", http.StripPrefix(base+"static/",
		security.StaticAssetMiddleware(staticMaxAge)(http.FileServer(http.FS(static)))))

	api := newAPI(d.Categories, d.Expenses, d.Logger)
	mux.Route(base+"api", func(r chi.Router) {
		r.Use(writes)
		api.routes(r)
	})
	mux.Get(base+"ui/subcategory-options", p.SubcategoryOptions)

	if err := app.Bootstrap(a, rt, mux.With(writes)); err != nil {
		s.limiter.Stop()
		return nil, fmt.Errorf("bootstrap application: %w", err)
	}

	if d.Categories != nil {
		s.caches.Register(d.Categories.Cache())
		d.Metrics.WatchCache("categories", d.Categories.Cache().Stats)
	}
	s.caches.StartCleanup(cacheSweep)

	s.Server = http.Server{
		Addr:              d.Addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s, nil
}

// Routes returns the mounted route table.
func (s *Server) Routes() *router.Router { return s.routes }

// Shutdown stops accepting connections, waits for in-flight requests and
// stops the background sweepers. Only the first call does any work.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.logger.InfoContext(ctx, "Shutting down HTTP server", log.FieldOperation, log.OpShutdown)
		err = s.Server.Shutdown(ctx)
		s.limiter.Stop()
		s.caches.Stop()
	})
	return err
}
