package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/cvtailor/internal/api"
	"github.com/digkill/cvtailor/internal/config"
	"github.com/digkill/cvtailor/internal/models"
	"github.com/digkill/cvtailor/internal/service"
	"github.com/digkill/cvtailor/internal/session"
)

// Exporter publishes a rendered document and returns a shareable link.
type Exporter interface {
	Upload(ctx context.Context, data []byte, contentType, name string) (string, error)
}

type Server struct {
	cfg            config.Config
	log            *slog.Logger
	api            *api.Client
	accounts       *service.AccountService
	billing        *service.BillingService
	listener       *service.PaymentListener
	state          *session.StateManager
	exporter       Exporter
	defaultGateway models.Gateway
	pages          map[string]*pageTemplate
	router         *chi.Mux
}

type Deps struct {
	API      *api.Client
	Accounts *service.AccountService
	Billing  *service.BillingService
	Listener *service.PaymentListener
	State    *session.StateManager
	// Exporter is nil when S3 is not configured.
	Exporter Exporter
}

func NewServer(cfg config.Config, log *slog.Logger, deps Deps) (*Server, error) {
	pages, err := loadPages()
	if err != nil {
		return nil, err
	}
	gateway, ok := models.ParseGateway(cfg.DefaultGateway)
	if !ok {
		gateway = models.GatewayPaystack
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:            cfg,
		log:            log,
		api:            deps.API,
		accounts:       deps.Accounts,
		billing:        deps.Billing,
		listener:       deps.Listener,
		state:          deps.State,
		exporter:       deps.Exporter,
		defaultGateway: gateway,
		pages:          pages,
		router:         r,
	}
	r.Use(s.logRequests)

	r.Get("/", s.handleLanding)
	r.Get("/login", s.handleLoginForm)
	r.Post("/login", s.handleLogin)
	r.Get("/signup", s.handleSignupForm)
	r.Post("/signup", s.handleSignup)
	r.Post("/logout", s.handleLogout)

	r.Group(func(protected chi.Router) {
		protected.Use(s.requireSession)
		protected.Use(s.listenForPayment)
		protected.Route("/dashboard", func(r chi.Router) {
			r.Get("/", s.handleDashboard)
			r.Get("/billing", s.handleBilling)
			r.Post("/billing/top-up", s.handleTopUp)
			r.Route("/applications/{id}", func(r chi.Router) {
				r.Get("/", s.handleApplication)
				r.Post("/", s.handleSaveApplication)
				r.Post("/status", s.handleApplicationStatus)
				r.Post("/delete", s.handleDeleteApplication)
				r.Get("/download", s.handleDownload)
				r.Post("/export", s.handleExport)
			})
		})
		protected.Get("/generate", s.handleGenerateForm)
		protected.Post("/generate", s.handleGenerate)
		protected.Get("/profile", s.handleProfile)
		protected.Post("/profile", s.handleSaveProfile)
	})
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.cfg.RequestTimeout + 15*time.Second,
	}

	go s.watchAccounts(ctx)
	go s.sweepSessions(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("web shutdown error", "err", err)
		}
	}()

	s.log.Info("web frontend listening", "addr", s.cfg.ListenAddr, "api", s.cfg.APIBaseURL)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web listen: %w", err)
	}
	return nil
}

func (s *Server) watchAccounts(ctx context.Context) {
	events, cancel := s.accounts.Subscribe(64)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			switch evt.Kind {
			case service.AccountRefreshed:
				s.log.Debug("account snapshot refreshed", "session", evt.SessionKey[:12], "credits", evt.Account.Credits)
			case service.AccountInvalidated:
				s.log.Debug("account snapshot invalidated", "session", evt.SessionKey[:12])
			}
		}
	}
}

func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.state.Sweep(s.cfg.SessionTTL); removed > 0 {
				s.log.Info("swept idle sessions", "count", removed)
			}
		}
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
