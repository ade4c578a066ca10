// Package api serves the read-only HTTP surface: the dashboard overview,
// single sessions, exports, project state, health and metrics.
package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/Iron-Ham/worklog/internal/logging"
	"github.com/Iron-Ham/worklog/internal/model"
	"github.com/Iron-Ham/worklog/internal/overview"
	"github.com/Iron-Ham/worklog/internal/session"
)

const shutdownTimeout = 5 * time.Second

// Overviews builds the dashboard overview.
type Overviews interface {
	Build(ctx context.Context) (*overview.Overview, error)
}

// Sessions reads session records.
type Sessions interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	GetArchived(ctx context.Context, id string) (*model.Session, error)
	List(ctx context.Context, f session.Filter) ([]*model.Session, error)
}

// States reads project state.
type States interface {
	Get(ctx context.Context, slug string) (*model.ProjectState, error)
}

// Projects resolves project registrations.
type Projects interface {
	Project(ctx context.Context, slug string) (model.ProjectRegistration, error)
}

// Deps are the read paths the server exposes.
type Deps struct {
	Overviews Overviews
	Sessions  Sessions
	States    States
	Projects  Projects
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// Server is the HTTP server.
type Server struct {
	deps    Deps
	engine  *gin.Engine
	logger  *logging.Logger
	now     func() time.Time
	limiter *rate.Limiter
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *logging.Logger) Option { return func(s *Server) { s.logger = l } }

// WithClock overrides the clock used for export timestamps.
func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// WithRateLimit caps API requests at rps per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New builds the server and its routes.
func New(deps Deps, opts ...Option) *Server {
	s := &Server{
		deps:   deps,
		logger: logging.NopLogger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("api")

	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), accessLog(s.logger))
	s.routes(engine)
	s.engine = engine
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	api := r.Group("/api")
	if s.limiter != nil {
		api.Use(rateLimit(s.limiter))
	}
	api.GET("/overview", s.handleOverview)
	api.GET("/session/:id", s.handleSession)
	api.GET("/export/session/:id", s.handleExportSession)
	api.GET("/export/project/:slug", s.handleExportProject)
	api.GET("/projects/:slug/state", s.handleProjectState)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run listens on host:port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
