// internal/api/router.go
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"salon-wallet/internal/api/handler"
)

// NewRouter sets up and returns a new HTTP router.
func NewRouter(walletHandler *handler.WalletHandler, withdrawalHandler *handler.WithdrawalHandler, allowedOrigins []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestID) // Add a request ID to the context
	r.Use(middleware.RealIP)    // Use the real IP address
	r.Use(requestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer) // Recover from panics and return 500
	r.Use(middleware.Timeout(handler.DefaultTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handler.UserIDHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Wallet API routes
	r.Route("/wallets", func(r chi.Router) {
		r.Get("/me", walletHandler.GetMyWallet)
		r.Get("/{walletID}", walletHandler.GetWallet)
		r.Get("/{walletID}/transactions", walletHandler.GetTransactionHistory)
		r.Post("/{walletID}/deposit", walletHandler.Deposit)
		r.Patch("/{walletID}/status", walletHandler.SetWalletStatus)
	})

	r.Get("/transactions/{transactionID}", walletHandler.GetTransaction)

	// Payouts settle asynchronously, so the endpoint answers 202.
	r.Post("/withdrawals", withdrawalHandler.RequestWithdrawal)

	return r
}
