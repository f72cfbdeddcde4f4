package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lending-engine/internal/api"
	"lending-engine/internal/batch"
	"lending-engine/internal/config"
	"lending-engine/internal/domain/customer"
	"lending-engine/internal/domain/loan"
	"lending-engine/internal/domain/payment"
	"lending-engine/internal/event"
	"lending-engine/internal/infrastructure/cache"
	"lending-engine/internal/infrastructure/database/postgres"
	"lending-engine/internal/infrastructure/logging"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// @title Lending Engine API
// @version 1.0
// @description Loan ledger service: customer credit scores, loan admission and oldest-first payment allocation.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, logger := initializeApp()

	dbPool := initializeDatabase(cfg, logger)
	defer closeDatabase(dbPool, logger)

	publisher, amqpConn := initializePublisher(cfg, logger)
	if amqpConn != nil {
		defer amqpConn.Close()
	}

	balanceCache := initializeBalanceCache(cfg, logger)

	customerService, loanService, paymentService := initializeServices(cfg, dbPool, publisher, balanceCache, logger)

	preapprovalJob := batch.NewPreapprovalJob(customerService, publisher, logger)
	cronScheduler := startBatchJobs(cfg, logger, preapprovalJob)

	router := api.SetupRouter(customerService, loanService, paymentService, cfg, logger)

	srv, serverErrors, shutdownChan := startServer(cfg, router, logger)
	handleShutdown(srv, cronScheduler, shutdownChan, serverErrors, logger)
}

func initializeApp() (*config.Config, *slog.Logger) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logger)
	slog.SetDefault(logger)
	logger.Info("Application starting...", "config_source", viper.ConfigFileUsed())

	return cfg, logger
}

func initializeDatabase(cfg *config.Config, logger *slog.Logger) *pgxpool.Pool {
	logger.Info("Initializing database connection pool...")
	dbPool, err := postgres.NewConnectionPool(context.Background(), cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	return dbPool
}

func closeDatabase(dbPool *pgxpool.Pool, logger *slog.Logger) {
	logger.Info("Closing database connection pool...")
	dbPool.Close()
}

// initializePublisher dials RabbitMQ when messaging is enabled. The
// service stays fully functional without a broker; events are simply
// dropped through the noop publisher.
func initializePublisher(cfg *config.Config, logger *slog.Logger) (event.Publisher, *amqp.Connection) {
	if !cfg.RabbitMQ.Enabled {
		logger.Info("RabbitMQ disabled, events will not be published.")
		return event.NoopPublisher{}, nil
	}

	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ, falling back to noop publisher", "error", err)
		return event.NoopPublisher{}, nil
	}

	publisher, err := event.NewRabbitMQPublisher(conn, cfg.RabbitMQ.ExchangeName, logger)
	if err != nil {
		logger.Error("Failed to set up RabbitMQ publisher, falling back to noop publisher", "error", err)
		conn.Close()
		return event.NoopPublisher{}, nil
	}

	logger.Info("RabbitMQ publisher initialized.", "exchange", cfg.RabbitMQ.ExchangeName)
	return publisher, conn
}

func initializeBalanceCache(cfg *config.Config, logger *slog.Logger) customer.BalanceCache {
	if !cfg.Redis.Enabled {
		logger.Info("Redis disabled, balances will be computed from the ledger on every read.")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to ping Redis, balance caching disabled", "error", err)
		return nil
	}

	logger.Info("Redis balance cache initialized.", "addr", cfg.Redis.Addr)
	return cache.NewRedisBalanceCache(client, cfg.Redis.BalanceTTL, logger)
}

func initializeServices(cfg *config.Config, dbPool *pgxpool.Pool, publisher event.Publisher, balanceCache customer.BalanceCache, logger *slog.Logger) (customer.CustomerService, loan.LoanService, payment.PaymentService) {
	logger.Info("Initializing application components...")

	customerRepo := postgres.NewCustomerRepository(dbPool, logger)
	loanRepo := postgres.NewLoanRepository(dbPool, logger)
	paymentRepo := postgres.NewPaymentRepository(dbPool, logger)

	customerService := customer.NewCustomerService(customerRepo, loanRepo, balanceCache, publisher, logger)

	var invalidator loan.BalanceInvalidator
	if balanceCache != nil {
		invalidator = balanceCache
	}

	loanService := loan.NewLoanService(loanRepo, customerService, publisher, invalidator, loan.ServiceConfig{
		DefaultContractVersion: cfg.Loan.DefaultContractVersion,
		MaxPaymentTermDays:     cfg.Loan.MaxPaymentTermDays,
	}, logger)

	var paymentInvalidator payment.BalanceInvalidator
	if balanceCache != nil {
		paymentInvalidator = balanceCache
	}

	paymentService := payment.NewPaymentService(paymentRepo, loanRepo, customerService, publisher, paymentInvalidator, logger)

	return customerService, loanService, paymentService
}

func startServer(cfg *config.Config, router http.Handler, logger *slog.Logger) (*http.Server, <-chan error, <-chan os.Signal) {
	logger.Info("Setting up HTTP server...", "port", cfg.Server.Port)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("Server listening on port %d", cfg.Server.Port))
		err := srv.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			serverErrors <- err
		} else {
			logger.Info("Server closed gracefully.")
			serverErrors <- nil
		}
	}()
	return srv, serverErrors, shutdownChan
}

func handleShutdown(srv *http.Server, cronScheduler *cron.Cron, shutdownChan <-chan os.Signal, serverErrors <-chan error, logger *slog.Logger) {
	logger.Info("Shutdown handler started. Waiting for signal or server error...")

	var triggerReason string
	select {
	case sig := <-shutdownChan:
		triggerReason = "signal: " + sig.String()
		logger.Info("Shutdown signal received.", "signal", sig.String())
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server exited unexpectedly before signal", "error", err)
			os.Exit(1)
		}
		triggerReason = "server exited"
		logger.Info("Server goroutine finished before signal.", "error", err)
	}

	logger.Info("Starting graceful shutdown...", "trigger", triggerReason)

	logger.Info("Stopping cron scheduler...")
	cronCtx := cronScheduler.Stop()
	select {
	case <-cronCtx.Done():
		logger.Info("Cron scheduler stopped gracefully.")
	case <-time.After(15 * time.Second):
		logger.Warn("Cron scheduler shutdown timed out.")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	logger.Info("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server graceful shutdown failed", "error", err)
		} else {
			logger.Info("HTTP server shutdown initiated.")
		}
		if err := srv.Close(); err != nil {
			logger.Error("HTTP server forced close failed", "error", err)
		}
	} else {
		logger.Info("HTTP server gracefully stopped.")
	}

	logger.Info("Waiting for server goroutine to confirm exit...")
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Server goroutine exited with unexpected error after shutdown", "error", err)
		} else {
			logger.Info("Server goroutine confirmed exit.")
		}
	case <-time.After(5 * time.Second):
		logger.Warn("Timed out waiting for server goroutine confirmation.")
	}

	logger.Info("Application shutdown process complete.")
}

func startBatchJobs(cfg *config.Config, logger *slog.Logger, preapprovalJob *batch.PreapprovalJob) *cron.Cron {
	logger.Info("Initializing batch job scheduler...")
	c := cron.New()

	scheduleSpec := cfg.Batch.PreapprovalSchedule
	if scheduleSpec == "" {
		scheduleSpec = "0 3 * * *"
		logger.Warn("Batch preapproval schedule not configured, using default", "schedule", scheduleSpec)
	}
	jobTimeout := cfg.Batch.PreapprovalTimeout
	if jobTimeout <= 0 {
		jobTimeout = 1 * time.Hour
	}

	jobID, err := c.AddJob(scheduleSpec, cron.FuncJob(func() {
		jobLogger := logger.With("job_name", "Preapproval")
		jobLogger.Info("Cron triggered: Running customer preapproval job.")

		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if runErr := preapprovalJob.Run(ctx); runErr != nil {
			jobLogger.Error("Preapproval job finished with error", slog.Any("error", runErr))
		} else {
			jobLogger.Info("Preapproval job finished successfully.")
		}
	}))

	if err != nil {
		logger.Error("Failed to schedule preapproval job", "schedule", scheduleSpec, slog.Any("error", err))
	} else {
		logger.Info("Scheduled preapproval job", "schedule", scheduleSpec, "job_id", jobID)
	}

	c.Start()
	logger.Info("Cron scheduler started.")
	return c
}
