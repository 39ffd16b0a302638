// Package gallery is a server-rendered photo gallery built with Go, Echo and
// templ. Images live in Cloudinary; the catalog package fetches and caches
// them, and this package serves the grid, the single-photo carousel, a small
// JSON API, RSS and a sitemap.
//
// Pages are rendered through the ViewFuncs struct so a site can swap in its
// own templates while the handlers, middleware and caching stay the same.
package gallery

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eringen/gallery/catalog"
	"github.com/eringen/gallery/cloudinary"
	"github.com/eringen/gallery/metrics"
	"github.com/eringen/gallery/views"
)

// ViewFuncs holds the page components the handlers render.
type ViewFuncs struct {
	Home  func(views.HomePage) templ.Component
	Photo func(views.PhotoPage) templ.Component
	Error func(views.ErrorPage) templ.Component
}

// DefaultViews returns the embedded templates.
func DefaultViews() ViewFuncs {
	return ViewFuncs{
		Home:  views.Home,
		Photo: views.PhotoView,
		Error: views.Error,
	}
}

// ImageURLs builds delivery URLs for catalog entries.
type ImageURLs interface {
	ImageURL(width int, publicID, format string) string
}

// App wires together the catalog cache, handlers, middleware and views.
type App struct {
	Config  Config
	Echo    *echo.Echo
	Catalog *catalog.Cache
	Images  ImageURLs
	Views   ViewFuncs
	Metrics *metrics.Metrics
	Log     *zap.Logger

	site         views.Site
	categories   []catalog.Category
	apiLimiter   *RateLimiter
	customRoutes []func(*App)
}

// New creates an App serving cache. Routes and middleware are installed
// immediately, so a.Echo can be used as an http.Handler in tests.
func New(cfg Config, cache *catalog.Cache, images ImageURLs, opts ...Option) (*App, error) {
	cfg.setDefaults()
	cats, err := catalog.ParseCategories(cfg.Categories)
	if err != nil {
		return nil, err
	}
	limit, window, err := ParseRateLimit(cfg.APIRateLimit)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Echo:    echo.New(),
		Catalog: cache,
		Images:  images,
		Views:   DefaultViews(),
		Log:     zap.NewNop(),
		site: views.Site{
			Name:        cfg.Name,
			URL:         cfg.URL,
			Description: cfg.Description,
			Author:      cfg.Author,
			Intro:       views.SanitizeIntro(cfg.Intro),
		},
		categories: cats,
	}
	if limit > 0 {
		a.apiLimiter = NewRateLimiter(limit, window)
	}

	for _, opt := range opts {
		opt(a)
	}
	if a.Metrics == nil {
		a.Metrics = metrics.New()
	}

	a.Echo.HideBanner = true
	a.Echo.HidePort = true
	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	return a, nil
}

// WithLogger sets the application logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.Log = l
		}
	}
}

// WithMetrics shares a metrics registry, typically the one the catalog cache
// records into.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) {
		a.Metrics = m
	}
}

// NewCatalog builds the Cloudinary-backed catalog cache described by cfg.
func NewCatalog(cfg Config, log *zap.Logger, rec catalog.Recorder) (*catalog.Cache, *cloudinary.Client, error) {
	cfg.setDefaults()
	policy, err := catalog.ParsePreviewPolicy(cfg.Preview.Policy)
	if err != nil {
		return nil, nil, err
	}
	client, err := cloudinary.New(cloudinary.Config{
		CloudName:    cfg.Cloudinary.CloudName,
		APIKey:       cfg.Cloudinary.APIKey,
		APISecret:    cfg.Cloudinary.APISecret,
		APIBase:      cfg.Cloudinary.APIBase,
		DeliveryBase: cfg.Cloudinary.DeliveryBase,
		Timeout:      cfg.Catalog.RequestTimeout(),
		MaxAttempts:  cfg.Catalog.RetryAttempts,
		PreviewRPS:   cfg.Preview.RPS,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	cache := catalog.New(client, client, catalog.Options{
		Query:          catalog.NewQuery(cfg.Cloudinary.Folder, cfg.Catalog.MaxResults),
		Policy:         policy,
		Workers:        cfg.Preview.Workers,
		TTL:            cfg.Catalog.TTL,
		FetchTimeout:   cfg.Catalog.FetchTimeout,
		PreviewTimeout: cfg.Preview.Timeout,
		Logger:         log,
		Recorder:       rec,
	})
	return cache, client, nil
}

// NewFromConfig wires a complete App: Cloudinary client, metrics, catalog
// cache and HTTP server.
func NewFromConfig(cfg Config, log *zap.Logger) (*App, error) {
	m := metrics.New()
	cache, client, err := NewCatalog(cfg, log, m)
	if err != nil {
		return nil, err
	}
	return New(cfg, cache, client, WithLogger(log), WithMetrics(m))
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/public", a.Config.StaticDir)
	e.GET("/favicon.svg", a.handleFavicon)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/healthz", a.handleHealth)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: a.Metrics.Registry,
	}))

	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/", a.handleHome)
	e.GET("/p/:id/", a.handlePhoto)

	api := e.Group("/api")
	if a.apiLimiter != nil {
		api.Use(a.apiLimiter.Middleware)
	}
	api.GET("/catalog", a.handleAPICatalog)
	api.GET("/catalog/status", a.handleAPIStatus)
}

// Warm populates the catalog in the background so the first visitor does
// not pay for the remote fetch.
func (a *App) Warm(ctx context.Context) {
	go func() {
		if _, err := a.Catalog.Catalog(ctx); err != nil {
			a.Log.Warn("catalog warm-up failed", zap.Error(err))
		}
	}()
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("gallery listening", zap.String("addr", a.Config.Addr), zap.String("url", a.Config.URL))
		if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.Log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Echo.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Close releases background resources.
func (a *App) Close() error {
	if a.apiLimiter != nil {
		a.apiLimiter.Close()
	}
	_ = a.Log.Sync()
	return nil
}
