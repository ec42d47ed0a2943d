/*
Package main is the entry point for the ITAM Chat server.

It is responsible for loading configuration, initializing the global logging system,
opening the persistence layer, setting up the HTTP server and the realtime Hub,
and gracefully handling operating system interrupt signals (SIGINT, SIGTERM)
to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"itamchat/internal/app/chat"
	"itamchat/internal/app/db"
	"itamchat/internal/app/storage"
	"itamchat/internal/app/store"
	"itamchat/internal/configs"
	"itamchat/internal/handler"
	"itamchat/internal/pkg/auth/jwt"
	"itamchat/internal/pkg/logx"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("database_driver", cfg.DatabaseDriver).
		Bool("storage_enabled", cfg.StorageEnabled()).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open the database")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logx.Error(err, "Failed to close the database")
		}
	}()

	var storageService storage.StorageService
	if cfg.StorageEnabled() {
		storageService, err = storage.NewStorageService(storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:     cfg.S3PublicBaseURL,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize storage service")
		}
	} else {
		logx.Warn("Object storage is not configured; chat image upload is disabled.")
	}

	verifier := jwt.NewVerifier(cfg.JWTSecret, cfg.IsDevelopment())

	// Initialize the realtime Hub
	hub := chat.NewHub(st, verifier)

	// Setup HTTP server and routes
	router := handler.Router(&handler.AppDeps{
		Hub:            hub,
		Config:         cfg,
		Store:          st,
		StorageService: storageService,
		Verifier:       verifier,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("ITAM Chat Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	hubCtx, cancelHub := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelHub()

	if err := hub.Shutdown(hubCtx); err != nil {
		logx.Error(err, "Hub shutdown incomplete")
	}

	logx.Info("Server gracefully stopped.")
}

// openStore opens the store selected by DATABASE_DRIVER and applies pending migrations.
func openStore(cfg *configs.AppConfig) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case configs.DriverSQLite:
		sqliteStore, err := store.OpenSQLite(cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return sqliteStore, nil
	default:
		pool, err := db.NewPool(cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return store.NewPostgres(pool), nil
	}
}
