package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"

	"github.com/existflow/ironsync/internal/feed"
	"github.com/existflow/ironsync/internal/logger"
)

// Server is the ironsync backend
type Server struct {
	db   *sql.DB
	repo Repository
	hub  *Hub
	echo *echo.Echo
	log  *logger.Logger
}

// New connects to Postgres, runs migrations and wires the realtime hub to the
// row_changes channel
func New(dbURL string, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.Global()
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &Server{
		db:   db,
		repo: &pgRepo{db: db},
		hub:  NewHub(feed.NewPostgres(dbURL, log), log),
		log:  log.Component("server"),
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	s.setupEcho()
	return s, nil
}

// NewWithRepository builds a server on an existing repository and hub, with
// no database of its own
func NewWithRepository(repo Repository, hub *Hub, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{repo: repo, hub: hub, log: log.Component("server")}
	s.setupEcho()
	return s
}

func (s *Server) setupEcho() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler

	// Custom logging middleware
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			res := c.Response()
			s.log.Info("HTTP request",
				logger.F("method", req.Method),
				logger.F("uri", req.RequestURI),
				logger.F("status", res.Status),
				logger.F("size", res.Size),
				logger.F("duration", time.Since(start).String()),
				logger.F("request_id", res.Header().Get(echo.HeaderXRequestID)))
			return nil
		}
	})

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORS())

	// Health check
	e.GET("/health", s.handleHealth)

	// API v1, all behind a session token
	api := e.Group("/api/v1")
	api.Use(s.authMiddleware)
	api.GET("/me", s.handleMe)
	api.GET("/projects", s.handleListProjects)
	api.GET("/projects/:id/tasks", s.handleListTasks)
	api.GET("/notifications", s.handleListNotifications)
	api.POST("/rows/:table", s.handleCreateRow)
	api.PATCH("/rows/:table/:id", s.handleUpdateRow)
	api.DELETE("/rows/:table/:id", s.handleDeleteRow)
	api.GET("/realtime", s.handleRealtime)

	s.echo = e
}

// Run starts the realtime hub and, when backed by Postgres, the due-date
// sweep. It blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, sweepEvery time.Duration) {
	if pg, ok := s.repo.(*pgRepo); ok && sweepEvery > 0 {
		go s.sweepLoop(ctx, pg, sweepEvery)
	}
	s.hub.Run(ctx)
}

func (s *Server) sweepLoop(ctx context.Context, pg *pgRepo, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pg.SweepDueTasks(ctx)
			if err != nil {
				s.log.Warn("Due-date sweep failed", logger.F("error", err))
				continue
			}
			if n > 0 {
				s.log.Info("Due-date notifications created", logger.F("count", n))
			}
		}
	}
}

// Close stops the hub and closes the database connection
func (s *Server) Close() error {
	s.hub.Close()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	return s.echo
}

// Start starts the server
func (s *Server) Start(addr string) error {
	s.log.Info("Listening", logger.F("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Admin exposes the bootstrap operations of the Postgres repository
func (s *Server) Admin() (*Admin, bool) {
	pg, ok := s.repo.(*pgRepo)
	if !ok {
		return nil, false
	}
	return &Admin{repo: pg}, true
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
