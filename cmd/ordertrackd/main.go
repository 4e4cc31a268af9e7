package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"ordertrack-backend/config"
	"ordertrack-backend/internal/api"
	"ordertrack-backend/internal/auth"
	"ordertrack-backend/internal/db"
	"ordertrack-backend/internal/model"
	"ordertrack-backend/internal/notification"
	"ordertrack-backend/internal/order"
	"ordertrack-backend/internal/reminder"
	"ordertrack-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "ordertrack-backend ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Auth.JWTSecret == "" {
		logger.Fatalf("auth.jwt_secret must be configured.")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create the store layer instance
	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	if err := seedAdmin(cfg, appStore); err != nil {
		logger.Fatalf("failed to seed admin user: %v", err)
	}

	// Notification worker pool for order status pushes and reminders
	workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions)
	workerPool.Start(ctx)

	// Order fulfillment service
	orderSvc := order.NewService(&cfg.Orders, appStore)

	// Due-date reminder loop in the background
	reminderSvc := reminder.NewService(cfg, appStore, workerPool)
	go reminderSvc.Run(ctx)

	// Initialize router
	router := api.NewRouter(cfg, appStore, orderSvc, workerPool, &webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}

// seedAdmin creates the bootstrap admin account on first run.
func seedAdmin(cfg *config.Config, s store.Store) error {
	if cfg.Auth.AdminUsername == "" || cfg.Auth.AdminPassword == "" {
		log.Println("No bootstrap admin configured, skipping seed")
		return nil
	}

	existing, err := s.GetUserByUsername(context.Background(), cfg.Auth.AdminUsername)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	hash, err := auth.HashPassword(cfg.Auth.AdminPassword)
	if err != nil {
		return err
	}

	log.Printf("Seeding bootstrap admin user %q", cfg.Auth.AdminUsername)
	return s.CreateUser(context.Background(), &model.User{
		Username:     cfg.Auth.AdminUsername,
		PasswordHash: hash,
		IsAdmin:      true,
		CreatedAt:    time.Now().UTC(),
	})
}
