package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/pitaeeg/sensor-server/internal/acquisition"
	"github.com/pitaeeg/sensor-server/internal/auth"
	"github.com/pitaeeg/sensor-server/internal/config"
	"github.com/pitaeeg/sensor-server/internal/models"
	"github.com/pitaeeg/sensor-server/internal/storage"
	"github.com/pitaeeg/sensor-server/internal/validation"
	"github.com/pitaeeg/sensor-server/pkg/haru"
)

// RESTServer exposes the sensor session and recording history over HTTP
type RESTServer struct {
	config    *config.Config
	store     storage.Store
	session   *haru.Session
	svc       *acquisition.Service
	auth      *auth.JWTManager
	validator *validation.Validator
	router    chi.Router
	server    *http.Server

	// Measurement run state. At most one run is active at a time.
	mu            sync.Mutex
	running       bool
	cancelRun     context.CancelFunc
	lastRecording *models.Recording
	lastRunErr    error
}

// NewRESTServer creates a new REST API server. store may be nil when no
// database is configured; recording and event endpoints then return 503.
func NewRESTServer(cfg *config.Config, store storage.Store, session *haru.Session, svc *acquisition.Service) *RESTServer {
	s := &RESTServer{
		config:    cfg,
		store:     store,
		session:   session,
		svc:       svc,
		auth:      auth.NewJWTManager(&cfg.Auth),
		validator: validation.NewValidator(),
		router:    chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the root HTTP handler, mainly for tests
func (s *RESTServer) Handler() http.Handler {
	return s.router
}

// authMiddleware is the authentication middleware
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.respondError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		claims, err := s.auth.ValidateToken(parts[1])
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type claimsContextKey struct{}
