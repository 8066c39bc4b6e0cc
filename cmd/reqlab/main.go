package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/reqlab/internal/config"
	"github.com/dukerupert/reqlab/internal/database"
	"github.com/dukerupert/reqlab/internal/email"
	"github.com/dukerupert/reqlab/internal/logging"
	"github.com/dukerupert/reqlab/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.SecretGenerated {
		logger.Warn("REQLAB_SECRET not set, using a random secret for this process")
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv, err := server.New(db, cfg, newSender(cfg, logger), logger)
	if err != nil {
		slog.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	// No WriteTimeout: /ws connections are long-lived.
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	if srv.Backups().Enabled() {
		srv.Backups().Start(cleanupCtx)
		slog.Info("database backups enabled", "bucket", cfg.Backup.Bucket, "interval", cfg.Backup.Interval)
	}
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(cleanupCtx); err != nil {
					slog.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired sessions", "count", n)
				}
				if n, err := srv.Invitations().PurgeExpired(cleanupCtx); err != nil {
					slog.Error("cleanup expired invitations", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired invitations", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("reqlab starting", "addr", ":"+cfg.Port, "env", cfg.Environment)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	srv.Backups().Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// newSender prefers Postmark, then SMTP, and otherwise logs messages.
func newSender(cfg config.Config, logger *slog.Logger) email.Sender {
	switch {
	case cfg.PostmarkToken != "":
		return email.NewPostmarkClient(cfg.PostmarkToken, email.WithHTTPClient(&http.Client{Timeout: cfg.EmailTimeout}))
	case cfg.SMTPHost != "":
		return email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	default:
		logger.Warn("no email provider configured, messages will only be logged")
		return email.NewNoopSender(logger)
	}
}
