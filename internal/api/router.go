package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/baharkarakas/card-ledger/internal/api/handlers"
	"github.com/baharkarakas/card-ledger/internal/config"
	"github.com/baharkarakas/card-ledger/internal/metrics"
	"github.com/baharkarakas/card-ledger/internal/middleware"
	"github.com/baharkarakas/card-ledger/internal/services"
)

type RouterDeps struct {
	Cfg     config.Config
	Log     *slog.Logger
	UserSvc *services.UserService
	CardSvc *services.CardService
	TxnSvc  *services.TransactionService
}

func NewRouter(d RouterDeps) http.Handler {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	users := handlers.NewUserHandler(d.UserSvc, log)
	cards := handlers.NewCardHandler(d.CardSvc, log)
	txns := handlers.NewTransactionHandler(d.TxnSvc, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover(log), middleware.HTTPMetrics(log), middleware.RateLimit(d.Cfg.RateRPS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
	}))

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// ---------- users ----------
		r.Post("/users", users.Create)
		r.Get("/users/{id}", users.Get)

		// ---------- cards ----------
		r.Post("/cards", cards.Create)
		r.Get("/cards/{cardNo}", cards.Get)
		r.Get("/cards/{cardNo}/transactions", cards.Transactions)
		r.Get("/cards/{cardNo}/reconcile", cards.Reconcile)

		// ---------- transactions ----------
		r.Post("/transactions/topup", txns.TopUp)
		r.Post("/transactions/direct-topup", txns.DirectTopUp)
		r.Post("/transactions/purchase", txns.Purchase)
		r.Post("/transactions/update-balance", txns.UpdateBalance)
	})

	return r
}
