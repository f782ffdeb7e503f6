// Package server wires configuration, storage and the fact store into the
// TravelProof HTTP API.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/jaineelmodi11/KingsHacks/internal/circuitbreaker"
	"github.com/jaineelmodi11/KingsHacks/internal/config"
	"github.com/jaineelmodi11/KingsHacks/internal/factstore"
	"github.com/jaineelmodi11/KingsHacks/internal/health"
	"github.com/jaineelmodi11/KingsHacks/internal/idgen"
	"github.com/jaineelmodi11/KingsHacks/internal/logging"
	"github.com/jaineelmodi11/KingsHacks/internal/merchantintel"
	"github.com/jaineelmodi11/KingsHacks/internal/metrics"
	"github.com/jaineelmodi11/KingsHacks/internal/payments"
	"github.com/jaineelmodi11/KingsHacks/internal/ratelimit"
	"github.com/jaineelmodi11/KingsHacks/internal/security"
	"github.com/jaineelmodi11/KingsHacks/internal/traces"
	"github.com/jaineelmodi11/KingsHacks/internal/validation"
)

// Version is reported by /health.
const Version = "0.1.0"

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg         *config.Config
	db          *sql.DB
	store       payments.Store
	facts       factstore.Client
	classifier  merchantintel.Classifier
	service     *payments.Service
	health      *health.Registry
	rateLimiter *ratelimit.Limiter

	router  *gin.Engine
	httpSrv *http.Server
	logger  *slog.Logger

	cancelRunCtx  context.CancelFunc
	drainDelay    time.Duration
	ready         atomic.Bool
	shutdownTrace func(context.Context) error
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithFactstore replaces the fact store client (for testing).
func WithFactstore(c factstore.Client) Option {
	return func(s *Server) {
		s.facts = c
	}
}

// WithStore replaces the payments store (for testing).
func WithStore(st payments.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithClassifier replaces the merchant classifier.
func WithClassifier(c merchantintel.Classifier) Option {
	return func(s *Server) {
		s.classifier = c
	}
}

// New creates a server. Storage is Postgres when DATABASE_URL is set and
// in-memory otherwise; the fact store is remote when an API key is
// configured and in-process otherwise.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		health:     health.NewRegistry(),
		drainDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.setupStore(context.Background()); err != nil {
		return nil, err
	}
	if err := s.setupFactstore(); err != nil {
		return nil, err
	}
	if s.classifier == nil && cfg.OpenAIAPIKey != "" {
		s.classifier = merchantintel.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel).WithLogger(s.logger)
		s.logger.Info("merchant classifier enabled", "model", cfg.OpenAIModel)
	}

	s.service = payments.NewService(s.store, s.facts).
		WithRetrieveTimeout(cfg.FactstoreTimeout).
		WithTopK(cfg.FactstoreTopK).
		WithStrictChallenges(cfg.StrictChallenges).
		WithLogger(s.logger)
	if s.classifier != nil {
		s.service = s.service.WithClassifier(s.classifier)
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupStore(ctx context.Context) error {
	if s.store != nil {
		return nil
	}
	if s.cfg.DatabaseURL == "" {
		s.store = payments.NewMemoryStore()
		s.logger.Info("using in-memory storage")
		return nil
	}

	db, err := sql.Open("postgres", s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	pg := payments.NewPostgresStore(db)
	if err := pg.Migrate(ctx); err != nil {
		s.logger.Warn("failed to migrate payments store", "error", err)
	}
	s.db = db
	s.store = pg
	s.health.Register("database", health.DBChecker(db))
	s.logger.Info("using PostgreSQL storage", "url", maskDSN(s.cfg.DatabaseURL))
	return nil
}

func (s *Server) setupFactstore() error {
	if s.facts != nil {
		return nil
	}
	if !s.cfg.UseRemoteFactstore() {
		s.facts = factstore.NewMemoryClient()
		s.logger.Warn("BACKBOARD_API_KEY not set, using in-process fact store")
		return nil
	}
	if s.cfg.IsProduction() {
		if err := security.ValidateUpstreamURL(s.cfg.APIBaseURL, s.cfg.FactstoreHosts); err != nil {
			return fmt.Errorf("API_BASE_URL rejected: %w", err)
		}
	}

	client := factstore.NewHTTPClient(factstore.Config{
		BaseURL: s.cfg.APIBaseURL,
		APIKey:  s.cfg.BackboardAPIKey,
	}).WithLogger(s.logger)
	s.facts = client
	s.health.Register("factstore", func(_ context.Context) health.Status {
		st := client.BreakerState()
		return health.Status{
			Name:    "factstore",
			Healthy: st != circuitbreaker.StateOpen,
			Detail:  "circuit " + st.String(),
		}
	})
	s.logger.Info("using remote fact store", "base_url", s.cfg.APIBaseURL)
	return nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORS(s.cfg.CORSOrigins()))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	if s.cfg.RateLimitRPM > 0 {
		s.rateLimiter = ratelimit.New(ratelimit.ConfigForRPM(s.cfg.RateLimitRPM))
		s.router.Use(s.rateLimiter.Middleware())
	}

	s.router.Use(metrics.Middleware())
	s.router.Use(traces.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 128 {
			requestID = idgen.WithPrefix("req_")
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		logger := logging.L(c.Request.Context())
		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/health/live", health.LiveHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	h := payments.NewHandler(s.service)
	h.RegisterRoutes(s.router.Group("/v1"))
	// Unversioned aliases kept for the original browser client.
	h.RegisterRoutes(s.router.Group(""))
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, checks := s.health.CheckAll(c.Request.Context())

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	s.health.ReadyHandler(c)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server and blocks until ctx is cancelled, a
// termination signal arrives, or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdownTrace, err := traces.Init(runCtx, traces.Options{
		Endpoint:       s.cfg.OTLPEndpoint,
		ServiceVersion: Version,
		Environment:    s.cfg.Env,
	}, s.logger)
	if err != nil {
		s.logger.Warn("tracing init failed, continuing without", "error", err)
		shutdownTrace = func(context.Context) error { return nil }
	}
	s.shutdownTrace = shutdownTrace

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	s.ready.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		s.ready.Store(false)
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(s.drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.shutdownTrace != nil {
		if err := s.shutdownTrace(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Service exposes the payments service, for tests and in-process tools.
func (s *Server) Service() *payments.Service {
	return s.service
}
