package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/dashstore/internal/auth"
	"github.com/saltyorg/dashstore/internal/config"
	"github.com/saltyorg/dashstore/internal/database"
	"github.com/saltyorg/dashstore/internal/web/handlers"
	"github.com/saltyorg/dashstore/internal/web/middleware"
	"github.com/saltyorg/dashstore/internal/web/sse"
)

// requestTimeout bounds regular API requests. Event streams are exempt.
const requestTimeout = 60 * time.Second

// Server represents the web server
type Server struct {
	db          *database.DB
	addr        string
	timeouts    config.Timeouts
	router      *chi.Mux
	authService *auth.Service
	sseBroker   *sse.Broker
	handlers    *handlers.Handlers
}

// NewServer creates a new web server
func NewServer(db *database.DB, addr string, timeouts config.Timeouts) *Server {
	s := &Server{
		db:          db,
		addr:        addr,
		timeouts:    timeouts,
		router:      chi.NewRouter(),
		authService: auth.NewService(db),
		sseBroker:   sse.NewBroker(timeouts.Heartbeat),
	}

	s.handlers = handlers.New(db, s.authService, s.sseBroker)
	s.handlers.SetPingInterval(timeouts.WebSocketPing)
	s.handlers.SetRecentLimit(config.NewLoader(db).Int("dashboard.recent_limit", 10))

	s.setupRoutes()
	return s
}

// SSEBroker returns the SSE broker for broadcasting events
func (s *Server) SSEBroker() *sse.Broker {
	return s.sseBroker
}

// Handlers returns the HTTP handlers
func (s *Server) Handlers() *handlers.Handlers {
	return s.handlers
}

// Router returns the root handler
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	r := s.router
	h := s.handlers

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	// Timeout is applied per group so event streams stay open

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		// Live events - no timeout (long-lived connections)
		r.Get("/events", h.EventsSSE)
		r.Get("/ws", h.EventsWebSocket)

		// Public read-only routes
		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(requestTimeout))

			r.Get("/version", h.Version)
			r.Post("/login", h.APILogin)

			r.Get("/summary", h.APISummaries)
			r.Get("/summary/{entity}", h.APISummary)
			r.Get("/breakdown/{entity}", h.APIBreakdown)
			r.Get("/window/{entity}", h.APITimeWindow)
			r.Get("/recent", h.APIRecentOrders)
			r.Get("/top-products", h.APITopProducts)
			r.Get("/totals", h.APITotals)
			r.Get("/metrics", h.APIMetrics)
			r.Get("/reports/{kind}", h.APIReport)

			r.Get("/tables/{table}", h.APIListRows)
			r.Get("/tables/{table}/columns", h.APITableInfo)
			r.Get("/tables/{table}/{id}", h.APIGetRow)
			r.Get("/orders", h.APIListOrders)
		})

		// Authenticated routes (basic auth)
		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(requestTimeout))
			r.Use(middleware.BasicAuth(s.authService))

			r.Get("/me", h.APIMe)
			r.Post("/me/password", h.APIChangePassword)
			r.Post("/orders", h.APIRecordOrder)

			// Managers and admins change records
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(database.RoleAdmin, database.RoleManager))

				r.Patch("/orders/{id}/status", h.APIUpdateOrderStatus)
				r.Post("/tables/{table}", h.APICreateRow)
				r.Put("/tables/{table}", h.APIUpdateRows)
				r.Delete("/tables/{table}", h.APIDeleteRows)
			})

			// Admin only
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(database.RoleAdmin))

				r.Post("/users", h.APICreateUser)
				r.Get("/settings", h.APIGetSettings)
				r.Put("/settings", h.APIUpdateSettings)
				r.Get("/maintenance/tables", h.APITables)
				r.Post("/maintenance/backup", h.APIBackup)
				r.Post("/maintenance/optimize", h.APIOptimize)
			})
		})
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.router,
		// ReadTimeout is for reading request body
		ReadTimeout: s.timeouts.Read,
		// WriteTimeout stays 0 so event streams are not cut off.
		// Chi middleware timeout protects regular requests.
		WriteTimeout: 0,
		// IdleTimeout for keep-alive connections between requests
		IdleTimeout: s.timeouts.Idle,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		// Stop the broker first so streaming handlers return
		s.sseBroker.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeouts.Write)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		s.sseBroker.Stop()
		return err
	}
}
