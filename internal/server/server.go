// Package server wires handlers, middleware, and routes, and owns the HTTP
// server lifecycle. It is the composition root: every dependency is
// assembled here and nowhere else, so each layer only sees the interfaces
// it needs.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/lanh/skywatch/internal/auth"
	"github.com/lanh/skywatch/internal/config"
	"github.com/lanh/skywatch/internal/handler"
	"github.com/lanh/skywatch/internal/mail"
	"github.com/lanh/skywatch/internal/middleware"
	sqliteRepo "github.com/lanh/skywatch/internal/repository/sqlite"
	"github.com/lanh/skywatch/internal/service"
	"github.com/lanh/skywatch/internal/weather"
)

// Server holds the router and the resources it must release on shutdown.
// The database connection is owned here: closing it flushes the WAL and
// releases the file lock, so it must outlive every in-flight request.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the full dependency graph and registers all routes.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes builds the service layer and mounts the API.
//
// Middleware order matters: RequestID must precede the logger so request
// ids appear in log lines, and Recoverer sits above everything that can
// panic.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	provider := weather.NewOpenWeatherClient(
		s.cfg.WeatherBaseURL, s.cfg.WeatherAPIKey, s.cfg.WeatherTimeout, s.logger)

	mailer := mail.NewSMTPSender(mail.SMTPConfig{
		Host:    s.cfg.SMTPHost,
		Port:    s.cfg.SMTPPort,
		User:    s.cfg.SMTPUser,
		Pass:    s.cfg.SMTPPass,
		From:    s.cfg.MailFrom,
		SiteURL: s.cfg.SiteURL,
	}, s.logger)

	accounts := service.NewAccountService(
		s.db.Users(),
		auth.NewPasswordService(),
		tokens,
		auth.NewVerifier(s.cfg.VerificationTTL),
		mailer,
		s.cfg.RequireVerification,
		s.cfg.ResendCooldown,
		s.logger,
	)
	weatherSvc := service.NewWeatherService(
		provider, s.db.Cities(), s.db.Weather(), s.db.History(), s.db.Favorites(), s.logger)

	accountHandler := handler.NewAccountHandler(accounts, s.logger)
	weatherHandler := handler.NewWeatherHandler(weatherSvc, s.logger)

	requireAuth := auth.RequireAuth(tokens)
	optionalAuth := auth.OptionalAuth(tokens)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", accountHandler.HandleRegister)
			r.Post("/login", accountHandler.HandleLogin)
			r.Post("/logout", accountHandler.HandleLogout)
			r.Get("/verify-email", accountHandler.HandleVerifyEmail)
			r.Post("/verify-email", accountHandler.HandleVerifyEmail)
			r.Post("/resend-verification", accountHandler.HandleResendVerification)

			r.With(optionalAuth).Get("/check", accountHandler.HandleCheckAuth)
		})

		r.Route("/weather", func(r chi.Router) {
			r.Use(optionalAuth)
			r.Get("/current", weatherHandler.HandleCurrent)
			r.Get("/forecast", weatherHandler.HandleForecast)
		})

		r.With(requireAuth).Get("/search/history", weatherHandler.HandleHistory)

		r.Route("/favorites", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", weatherHandler.HandleAddFavorite)
			r.Get("/", weatherHandler.HandleListFavorites)
			r.Delete("/{cityID}", weatherHandler.HandleRemoveFavorite)
		})
	})

	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, drain in-flight requests for up
// to 30 seconds, close the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
