package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/reqlab/internal/backup"
	"github.com/dukerupert/reqlab/internal/config"
	"github.com/dukerupert/reqlab/internal/email"
	"github.com/dukerupert/reqlab/internal/handler"
	"github.com/dukerupert/reqlab/internal/invitation"
	"github.com/dukerupert/reqlab/internal/metrics"
	"github.com/dukerupert/reqlab/internal/middleware"
	"github.com/dukerupert/reqlab/internal/selection"
	"github.com/dukerupert/reqlab/internal/store"
	"github.com/dukerupert/reqlab/internal/verification"
	ws "github.com/dukerupert/reqlab/internal/websocket"
)

type Server struct {
	hub          *ws.Hub
	metrics      *metrics.Metrics
	authH        *handler.AuthHandler
	invitationH  *handler.InvitationHandler
	applicationH *handler.ApplicationHandler
	selectionH   *handler.SelectionHandler
	sessionStore *store.SessionStore
	orgStore     *store.OrganizationStore
	userStore    *store.UserStore
	invitations  *invitation.Manager
	backups      *backup.Manager
	rateLimiter  *middleware.RateLimiter
	cfg          config.Config
	logger       *slog.Logger
}

func New(db *sql.DB, cfg config.Config, sender email.Sender, logger *slog.Logger) (*Server, error) {
	m := metrics.New()
	hub := ws.NewHub(logger)

	userStore := store.NewUserStore(db)
	orgStore := store.NewOrganizationStore(db)
	sessionStore := store.NewSessionStore(db)
	appStore := store.NewApplicationStore(db)
	envStore := store.NewEnvironmentStore(db)

	codec, err := verification.NewCodec([]byte(cfg.Secret), cfg.VerificationTTL)
	if err != nil {
		return nil, err
	}
	sel := selection.NewManager([]byte(cfg.Secret), !cfg.IsDevelopment())

	dispatcher := email.NewDispatcher(sender, cfg.EmailFrom, cfg.BaseURL, logger,
		email.WithTimeout(cfg.EmailTimeout),
		email.WithRecorder(m),
	)

	invitations := invitation.NewManager(
		store.NewInvitationStore(db), orgStore, userStore, dispatcher, logger,
		invitation.WithTTL(cfg.InvitationTTL),
		invitation.WithBroadcaster(hub),
		invitation.WithRecorder(m),
	)

	b := cfg.Backup
	backups := backup.NewManager(backup.Config{
		Bucket:     b.Bucket,
		Endpoint:   b.Endpoint,
		Region:     b.Region,
		AccessKey:  b.AccessKey,
		SecretKey:  b.SecretKey,
		Prefix:     b.Prefix,
		Passphrase: b.Passphrase,
		Interval:   b.Interval,
		Retention:  b.Retention,
	}, db, store.NewBackupStore(db), logger, backup.WithRecorder(m))

	return &Server{
		hub:          hub,
		metrics:      m,
		authH:        handler.NewAuthHandler(userStore, orgStore, sessionStore, codec, dispatcher, sel, !cfg.IsDevelopment(), logger.With("component", "auth")),
		invitationH:  handler.NewInvitationHandler(invitations, logger.With("component", "invitation_handler")),
		applicationH: handler.NewApplicationHandler(appStore, envStore, logger.With("component", "application")),
		selectionH:   handler.NewSelectionHandler(sel, appStore, envStore, logger.With("component", "selection")),
		sessionStore: sessionStore,
		orgStore:     orgStore,
		userStore:    userStore,
		invitations:  invitations,
		backups:      backups,
		rateLimiter:  middleware.NewRateLimiter(),
		cfg:          cfg,
		logger:       logger,
	}, nil
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// Invitations returns the invitation manager for cleanup tasks.
func (s *Server) Invitations() *invitation.Manager {
	return s.invitations
}

// Backups returns the scheduled database backup manager.
func (s *Server) Backups() *backup.Manager {
	return s.backups
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("POST /auth/register", s.rateLimited(s.authH.Register))
	mux.HandleFunc("POST /auth/login", s.rateLimited(s.authH.Login))
	mux.HandleFunc("GET /auth/verify", s.authH.Verify)
	mux.HandleFunc("POST /auth/verify/resend", s.rateLimited(s.authH.ResendVerification))
	mux.HandleFunc("GET /invitations/accept", s.rateLimited(s.invitationH.Preview))
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Authenticated routes
	mux.Handle("POST /auth/logout", s.protected(s.authH.Logout))
	mux.Handle("GET /organizations", s.protected(s.authH.Organizations))
	mux.Handle("POST /organizations/switch", s.protected(s.authH.SwitchOrganization))
	mux.Handle("POST /invitations/accept", s.protected(s.invitationH.Accept))

	mux.Handle("GET /applications", s.protected(s.applicationH.List))
	mux.Handle("POST /applications", s.protected(s.applicationH.Create))
	mux.Handle("GET /applications/{appId}/environments", s.protected(s.applicationH.ListEnvironments))
	mux.Handle("POST /applications/{appId}/environments", s.protected(s.applicationH.CreateEnvironment))

	mux.Handle("PUT /active-application", s.protected(s.selectionH.SetActiveApplication))
	mux.Handle("GET /active-application", s.protected(s.selectionH.ActiveApplication))
	mux.Handle("PUT /active-environment", s.protected(s.selectionH.SetActiveEnvironment))
	mux.Handle("GET /active-environment", s.protected(s.selectionH.ActiveEnvironment))

	mux.Handle("GET /ws", s.protected(ws.HandleWebSocket(s.hub, s.cfg.WebSocketOrigins, s.logger)))

	// Organization admin routes
	mux.Handle("GET /organizations/{orgId}/invitations", s.orgAdmin(s.invitationH.List))
	mux.Handle("POST /organizations/{orgId}/invitations", s.orgAdmin(s.invitationH.Create))
	mux.Handle("POST /organizations/{orgId}/invitations/{id}/resend", s.orgAdmin(s.invitationH.Resend))
	mux.Handle("DELETE /admin/organizations/{orgId}/invitations/{id}", s.orgAdmin(s.invitationH.Cancel))

	var h http.Handler = mux
	h = middleware.Metrics(s.metrics)(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	return h
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) protected(h http.HandlerFunc) http.Handler {
	return middleware.RequireAuth(s.sessionStore, s.orgStore, s.userStore)(h)
}

func (s *Server) orgAdmin(h http.HandlerFunc) http.Handler {
	return s.protected(middleware.RequireOrganizationAdmin(s.orgStore)(h).ServeHTTP)
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return r.URL.Path + "|" + middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, s.cfg.LoginRateLimit, s.cfg.LoginRateWindow)
	return rl(h).ServeHTTP
}
