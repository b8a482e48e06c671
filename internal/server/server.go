// Package server wires stores, services, and handlers into the HTTP API.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/HasnainAli-max/pixel-proof-2/internal/backup"
	"github.com/HasnainAli-max/pixel-proof-2/internal/billing"
	"github.com/HasnainAli-max/pixel-proof-2/internal/compare"
	"github.com/HasnainAli-max/pixel-proof-2/internal/email"
	"github.com/HasnainAli-max/pixel-proof-2/internal/events"
	"github.com/HasnainAli-max/pixel-proof-2/internal/handler"
	"github.com/HasnainAli-max/pixel-proof-2/internal/middleware"
	"github.com/HasnainAli-max/pixel-proof-2/internal/plan"
	"github.com/HasnainAli-max/pixel-proof-2/internal/quota"
	"github.com/HasnainAli-max/pixel-proof-2/internal/storage"
	"github.com/HasnainAli-max/pixel-proof-2/internal/store"
	"github.com/HasnainAli-max/pixel-proof-2/internal/vision"
)

// Config holds everything the server needs beyond the open database.
type Config struct {
	Stripe          billing.Config
	Prices          *plan.PriceMap
	Storage         storage.Config
	Vision          vision.Config
	Backup          backup.Config
	PortalReturnURL string
	PostmarkToken   string
	FromEmail       string
}

type Server struct {
	db            *sql.DB
	hub           *events.Hub
	billingH      *handler.BillingHandler
	subscriptionH *handler.SubscriptionHandler
	compareH      *handler.CompareHandler
	avatarH       *handler.AvatarHandler
	webhookH      *handler.WebhookHandler
	userStore     *store.UserStore
	rateLimiter   *middleware.RateLimiter
	backupManager *backup.Manager
	verifier      middleware.TokenVerifier
	logger        *slog.Logger
}

func New(db *sql.DB, verifier middleware.TokenVerifier, cfg Config, logger *slog.Logger) *Server {
	hub := events.NewHub(logger.With("component", "events"))

	users := store.NewUserStore(db)
	subscriptions := store.NewSubscriptionStore(db)
	usage := store.NewUsageStore(db)
	comparisons := store.NewComparisonStore(db)

	stripeClient := billing.NewClient(cfg.Stripe)
	resolver := billing.NewResolver(stripeClient, users, logger.With("component", "billing"))
	quotaSvc := quota.NewService(resolver, stripeClient, cfg.Prices, usage, users, subscriptions, logger.With("component", "quota"))

	objects := storage.New(cfg.Storage)
	visionClient := vision.NewClient(cfg.Vision)
	compareSvc := compare.NewService(quotaSvc, objects, visionClient, comparisons, hub, logger.With("component", "compare"))

	emailClient := email.NewClient(cfg.PostmarkToken, cfg.FromEmail)

	backupMgr := backup.NewManager(cfg.Backup, db, nil, logger.With("component", "backup"))
	if objects.Configured() {
		backupMgr = backup.NewManager(cfg.Backup, db, objects, logger.With("component", "backup"))
	}

	return &Server{
		db:            db,
		hub:           hub,
		billingH:      handler.NewBillingHandler(resolver, stripeClient, cfg.Prices, cfg.PortalReturnURL, logger.With("component", "billing_handler")),
		subscriptionH: handler.NewSubscriptionHandler(quotaSvc, subscriptions, logger.With("component", "subscription_handler")),
		compareH:      handler.NewCompareHandler(compareSvc, comparisons, logger.With("component", "compare_handler")),
		avatarH:       handler.NewAvatarHandler(objects, users, logger.With("component", "avatar_handler")),
		webhookH:      handler.NewWebhookHandler(stripeClient, stripeClient, users, subscriptions, cfg.Prices, emailClient, logger.With("component", "webhook_handler")),
		userStore:     users,
		rateLimiter:   middleware.NewRateLimiter(),
		backupManager: backupMgr,
		verifier:      verifier,
		logger:        logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("POST /webhooks/stripe", s.webhookH.Handle)

	// Protected routes, wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.verifier, s.userStore)
	outerMux.Handle("/api/v1/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/checkout", s.billingH.Checkout)
	mux.HandleFunc("POST /api/v1/billing-portal", s.billingH.Portal)
	mux.HandleFunc("GET /api/v1/subscription", s.subscriptionH.Get)

	mux.HandleFunc("POST /api/v1/compare", s.rateLimitedHandler(s.compareH.Create))
	mux.HandleFunc("GET /api/v1/comparisons", s.compareH.List)
	mux.HandleFunc("GET /api/v1/comparisons/{id}", s.compareH.Get)

	mux.HandleFunc("POST /api/v1/avatar", s.avatarH.Upload)
	mux.Handle("GET /api/v1/events", events.HandleWebSocket(s.hub))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 30, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
