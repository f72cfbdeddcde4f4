package api

import (
	"log/slog"
	"net/http"
	"time"

	"lending-engine/internal/api/handler"
	mw "lending-engine/internal/api/middleware"
	"lending-engine/internal/config"
	"lending-engine/internal/domain/customer"
	"lending-engine/internal/domain/loan"
	"lending-engine/internal/domain/payment"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/traceid"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

func SetupRouter(customerService customer.CustomerService, loanService loan.LoanService, paymentService payment.PaymentService, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	router := chi.NewRouter()

	setupMiddleware(router, cfg, logger)
	setupMetricsEndpoint(router, cfg, logger)
	setupAuthRoutes(router, cfg, logger)
	setupCustomerRoutes(router, cfg, customerService, loanService, logger)
	setupLoanRoutes(router, cfg, loanService, logger)
	setupPaymentRoutes(router, cfg, paymentService, logger)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	setupSwaggerEndpoint(router, logger)

	return router
}

func setupMiddleware(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(traceid.Middleware)
	router.Use(mw.StructuredLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(mw.NewRateLimiterMiddleware(cfg.Server.RateLimit, logger).Middleware)
	router.Use(mw.MetricsMiddleware())
}

func setupMetricsEndpoint(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	logger.Info("Setting up Prometheus metrics endpoint", "path", metricsPath)
	router.Handle(metricsPath, promhttp.Handler())
}

func setupSwaggerEndpoint(router *chi.Mux, logger *slog.Logger) {
	logger.Info("Setting up Swagger UI endpoint", "path", "/swagger/")
	router.Get("/swagger/*", httpSwagger.WrapHandler)
	router.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/index.html", http.StatusMovedPermanently)
	})
}

func setupAuthRoutes(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	authHandler := handler.NewAuthHandler(*cfg, logger)
	router.Route("/auth", func(r chi.Router) {
		r.Post("/token", authHandler.GenerateBearerToken)
	})
}

func setupCustomerRoutes(router chi.Router, cfg *config.Config, customerService customer.CustomerService, loanService loan.LoanService, logger *slog.Logger) {
	customerHandler := handler.NewCustomerHandler(customerService, logger)
	loanHandler := handler.NewLoanHandler(loanService, logger)

	router.Route("/customers", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Post("/", customerHandler.CreateCustomer)
		r.Get("/", customerHandler.ListCustomers)
		r.Route("/{externalID}", func(r chi.Router) {
			r.Get("/", customerHandler.GetCustomerBalance)
			r.Get("/loans", loanHandler.ListCustomerLoans)
		})
	})
}

func setupLoanRoutes(router chi.Router, cfg *config.Config, loanService loan.LoanService, logger *slog.Logger) {
	loanHandler := handler.NewLoanHandler(loanService, logger)

	router.Route("/loans", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Post("/", loanHandler.CreateLoan)
	})
}

func setupPaymentRoutes(router chi.Router, cfg *config.Config, paymentService payment.PaymentService, logger *slog.Logger) {
	paymentHandler := handler.NewPaymentHandler(paymentService, logger)

	router.Route("/payments", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Post("/", paymentHandler.CreatePayment)
		r.Get("/", paymentHandler.ListPayments)
	})
}
