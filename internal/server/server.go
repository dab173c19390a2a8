package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/devsys-hq/apiserver/config"
	"github.com/devsys-hq/apiserver/internal/db"
	"github.com/devsys-hq/apiserver/internal/handlers"
	"github.com/devsys-hq/apiserver/internal/mailer"
	"github.com/devsys-hq/apiserver/internal/services"
	"github.com/devsys-hq/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	userRepo := store.NewUserRepository(dbConn)
	sessionRepo := store.NewSessionRepository(dbConn)
	activationRepo := store.NewActivationTokenRepository(dbConn)
	statusRepo := store.NewStatusRepository(dbConn, cfg.Database.DBName)

	smtpBackend := mailer.NewSMTPBackend(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.User,
		cfg.SMTP.Password,
		cfg.SMTP.Sender,
	)

	userService := services.NewUserService(userRepo)
	sessionService := services.NewSessionService(sessionRepo)
	activationService := services.NewActivationService(
		activationRepo,
		userService,
		mailer.New(smtpBackend),
		cfg.SiteURL,
	)
	authenticationService := services.NewAuthenticationService(userService)
	migrationService := services.NewMigrationService(cfg.Database.URL(), cfg.Database.MigrationsDir)
	statusService := services.NewStatusService(statusRepo)

	resp := handlers.Responder{
		Log: log,
		Cookies: handlers.Cookies{
			Secure: cfg.Production(),
			MaxAge: int(services.SessionTTL.Seconds()),
		},
	}
	identity := handlers.InjectAnonymousOrUser(sessionService, userService, resp)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.MethodNotAllowed(resp.MethodNotAllowed)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(identity)
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, userService, activationService, resp)
		})
		r.Route("/sessions", func(r chi.Router) {
			handlers.SessionRouter(r, sessionService, authenticationService, resp)
		})
		r.Route("/activations", func(r chi.Router) {
			handlers.ActivationRouter(r, activationService, resp)
		})
		r.Route("/migrations", func(r chi.Router) {
			handlers.MigrationRouter(r, migrationService, resp)
		})
		r.Route("/status", func(r chi.Router) {
			handlers.StatusRouter(r, statusService, resp)
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
