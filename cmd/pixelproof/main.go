package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HasnainAli-max/pixel-proof-2/internal/auth"
	"github.com/HasnainAli-max/pixel-proof-2/internal/backup"
	"github.com/HasnainAli-max/pixel-proof-2/internal/billing"
	"github.com/HasnainAli-max/pixel-proof-2/internal/database"
	"github.com/HasnainAli-max/pixel-proof-2/internal/logging"
	"github.com/HasnainAli-max/pixel-proof-2/internal/plan"
	"github.com/HasnainAli-max/pixel-proof-2/internal/server"
	"github.com/HasnainAli-max/pixel-proof-2/internal/storage"
	"github.com/HasnainAli-max/pixel-proof-2/internal/vision"
)

func main() {
	logger := logging.Setup(os.Getenv("PIXELPROOF_LOG_LEVEL"))

	port := os.Getenv("PIXELPROOF_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("PIXELPROOF_DB_PATH")
	if dbPath == "" {
		dbPath = "pixelproof.db"
	}

	baseURL := os.Getenv("PIXELPROOF_BASE_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", port)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	verifier, err := auth.NewVerifier(
		os.Getenv("AUTH_ISSUER"),
		os.Getenv("AUTH_AUDIENCE"),
		os.Getenv("AUTH_JWKS_URL"),
	)
	if err != nil {
		slog.Error("failed to set up token verifier", "error", err)
		os.Exit(1)
	}

	cfg := server.Config{
		Stripe: billing.Config{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			SuccessURL:    baseURL + "/account?session_id={CHECKOUT_SESSION_ID}",
			CancelURL:     baseURL + "/pricing",
		},
		Prices: plan.NewPriceMap(
			os.Getenv("STRIPE_BASIC_PRICE_ID"),
			os.Getenv("STRIPE_PRO_PRICE_ID"),
			os.Getenv("STRIPE_ELITE_PRICE_ID"),
		).WithAnnual(
			os.Getenv("STRIPE_BASIC_ANNUAL_PRICE_ID"),
			os.Getenv("STRIPE_PRO_ANNUAL_PRICE_ID"),
			os.Getenv("STRIPE_ELITE_ANNUAL_PRICE_ID"),
		),
		Storage: storage.Config{
			Endpoint:      os.Getenv("S3_ENDPOINT"),
			Bucket:        os.Getenv("S3_BUCKET"),
			Region:        os.Getenv("S3_REGION"),
			AccessKey:     os.Getenv("S3_ACCESS_KEY"),
			SecretKey:     os.Getenv("S3_SECRET_KEY"),
			PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
		},
		Vision: vision.Config{
			APIKey:  os.Getenv("VISION_API_KEY"),
			BaseURL: os.Getenv("VISION_BASE_URL"),
			Model:   os.Getenv("VISION_MODEL"),
		},
		Backup: backup.Config{
			Passphrase: os.Getenv("PIXELPROOF_BACKUP_PASSPHRASE"),
		},
		PortalReturnURL: baseURL + "/account",
		PostmarkToken:   os.Getenv("PIXELPROOF_POSTMARK_TOKEN"),
		FromEmail:       os.Getenv("PIXELPROOF_FROM_EMAIL"),
	}

	srv := server.New(db, verifier, cfg, logger)

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	srv.BackupManager().Start(backgroundCtx)
	defer srv.BackupManager().Stop()

	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-backgroundCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("pixelproof starting", "addr", ":"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	backgroundCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
