package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gitgrid/gitgrid/internal/auth"
	"github.com/gitgrid/gitgrid/internal/service"
)

// Config controls the HTTP API.
type Config struct {
	Addr string
	// Development exposes store error detail in 500 responses.
	Development bool
	// CORSOrigin is the single browser origin allowed to call the API.
	// Empty disables CORS headers.
	CORSOrigin string
	// RateLimit requests per RateWindow are allowed per client IP.
	// Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
	Auth       auth.Config
}

// HealthChecker is a dependency reported by the health endpoint.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server provides the collection query API.
type Server struct {
	cfg       Config
	svc       *service.Service
	checks    map[string]HealthChecker
	limiter   *ipLimiter
	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(cfg Config, svc *service.Service, checks map[string]HealthChecker) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "0.0.0.0:5000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		svc:       svc,
		checks:    checks,
		limiter:   newIPLimiter(cfg.RateLimit, cfg.RateWindow),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	return s.router()
}

// Start binds the listen address. Requests are accepted by Serve.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.router(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startTime = time.Now()
	return nil
}

// Serve blocks accepting requests. It returns nil after Stop and the
// listener error otherwise.
func (s *Server) Serve() error {
	if s.server == nil || s.listener == nil {
		return errors.New("httpserver: Serve called before Start")
	}
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), s.cors())

	api := r.Group("/api", s.limiter.middleware())
	api.GET("/health", s.handleHealth)

	authed := api.Group("", auth.Middleware(s.cfg.Auth))

	data := authed.Group("/data")
	data.GET("/collections", s.handleCollections)
	data.GET("/collection/:name", s.handleBrowse)
	data.GET("/collection/:name/fields", s.handleFields)
	data.GET("/collection/:name/stats", s.handleStats)
	data.GET("/collection/:name/export", s.handleExport)
	data.POST("/collection/:name/faceted-search", s.handleFacetedSearch)
	data.DELETE("/collection/:name/record/:id", s.handleDeleteRecord)
	data.DELETE("/collection/:name/clear", s.handleClear)
	data.GET("/repository-overview", s.handleRepositoryOverview)

	facets := authed.Group("/facets")
	facets.GET("/:collection", s.handleFacets)
	facets.GET("/:collection/field/:field", s.handleFacetValues)

	filters := authed.Group("/filters")
	filters.GET("", s.handleListFilters)
	filters.POST("", s.handleCreateFilter)
	filters.GET("/collection/:collection", s.handleActiveFilters)
	filters.GET("/:id", s.handleGetFilter)
	filters.PUT("/:id", s.handleUpdateFilter)
	filters.DELETE("/:id", s.handleDeleteFilter)
	filters.PATCH("/:id/toggle", s.handleToggleFilter)

	search := authed.Group("/search")
	search.GET("/global", s.handleGlobalSearch)
	search.POST("/collection/:name/filter", s.handleAdvancedFilter)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Route not found"})
	})
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, hc := range s.checks {
		if err := hc.Health(c.Request.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"uptime":    time.Since(s.startTime).String(),
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}
