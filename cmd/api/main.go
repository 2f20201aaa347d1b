package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/finance-tracker/internal/config"
	"github.com/Dan9191/finance-tracker/internal/handler"
	"github.com/Dan9191/finance-tracker/internal/integrations/cbr"
	"github.com/Dan9191/finance-tracker/internal/middleware"
	"github.com/Dan9191/finance-tracker/internal/models"
	"github.com/Dan9191/finance-tracker/internal/notify"
	"github.com/Dan9191/finance-tracker/internal/reconcile"
	"github.com/Dan9191/finance-tracker/internal/repository"
	"github.com/Dan9191/finance-tracker/internal/scheduler"
	"github.com/Dan9191/finance-tracker/internal/service"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	now := func() time.Time { return time.Now().In(cfg.Location) }

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	repo := repository.NewRepository(db, models.Settings{
		LeadTimeDays:    cfg.DefaultLeadTimeDays,
		DefaultCurrency: cfg.DefaultCurrency,
	})
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Fatalf("Failed to prepare schema: %v", err)
	}

	// Reminders: dispatcher, reconciler and the queue running it after commits
	dispatcher := notify.NewDispatcher(repo, notify.NewSender(cfg, logger), cfg.ReminderEmail, now, logger)
	reconciler := reconcile.NewReconciler(repo, dispatcher, cfg.ReminderHour, now, logger)
	queue := reconcile.NewQueue(reconciler, logger)
	queue.Start(ctx)
	defer queue.Stop()
	queue.Trigger()

	// Initialize layers
	cbrClient := cbr.NewCBRClient(cfg, logger)
	svc := service.NewService(repo, queue, cbrClient, cfg, now, logger)
	h := handler.NewHandler(svc, cbrClient, logger)
	r := handler.NewRouter(h, middleware.AuthMiddleware(cfg))

	jobs := scheduler.New(cfg, dispatcher, svc, logger)
	if err := jobs.Start(ctx); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}
	defer jobs.Stop()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown failed: %v", err)
		}
	}()

	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("Server failed: %v", err)
	}
	logger.Info("Server stopped")
}
