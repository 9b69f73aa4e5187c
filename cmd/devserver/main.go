// Command devserver runs the API as a long-lived HTTP server outside Vercel.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"genalixir-backend/pkg/config"
	"genalixir-backend/pkg/database"
	"genalixir-backend/pkg/handlers"
	"genalixir-backend/pkg/logging"
	"genalixir-backend/pkg/mailer"
)

func main() {
	cfg := config.GetCached()
	logging.Setup(cfg.Environment, cfg.LogLevel)
	log := logging.WithComponent("devserver")

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("❌ Invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	db, err := database.GetDatabase(ctx, database.DatabaseConfig{
		UseLocalDB:   cfg.UseLocalDB,
		LocalDataDir: cfg.LocalDataDir,
		PostgresDSN:  cfg.PostgresDSN,
		SupabaseURL:  cfg.SupabaseURL,
		SupabaseKey:  cfg.SupabaseKey,
		Debug:        cfg.Debug,
	})
	cancel()
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to open database")
	}

	mail := mailer.New(mailer.Config{BaseURL: cfg.MailAPIURL, APIKey: cfg.MailAPIKey, From: cfg.MailFrom})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlers.NewRouter(cfg, db, mail),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("🚀 GEN ALIXIR API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("❌ Server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("🛑 Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("⚠️  Server shutdown error")
	}
	if err := database.CloseDatabase(); err != nil {
		log.WithError(err).Warn("⚠️  Database close error")
	}
	log.Info("👋 Stopped")
}
