package routes

import (
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/sannidata/settlement-engine/internal/auth"
	"github.com/sannidata/settlement-engine/internal/key"
	"github.com/sannidata/settlement-engine/internal/middleware"
	"github.com/sannidata/settlement-engine/internal/settlement"
	"github.com/sannidata/settlement-engine/internal/user"
	"github.com/sannidata/settlement-engine/internal/wallet"
	"github.com/sannidata/settlement-engine/internal/webhook"
	"github.com/sannidata/settlement-engine/pkg/config"
	"github.com/sannidata/settlement-engine/pkg/database"
	"github.com/sannidata/settlement-engine/pkg/events"
	"github.com/sannidata/settlement-engine/pkg/logger"
	"github.com/sannidata/settlement-engine/pkg/utils"
)

func RegisterRoutes(r *mux.Router, cfg config.Config, redisClient *events.RedisClient, coordinator settlement.Service, walletRepo wallet.Repository) http.Handler {
	userRepo := user.NewRepository(database.DB)
	keyRepo := key.NewRepository(database.DB)

	settlementHandler := settlement.NewHandler(cfg, coordinator)
	webhookHandler := webhook.NewHandler(cfg, redisClient, coordinator)
	walletHandler := wallet.NewHandler(cfg, walletRepo)
	keyHandler := key.NewHandler(cfg, keyRepo)

	r.Use(middleware.LoggingMiddleware)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.BuildSuccessResponse(w, http.StatusOK, "ok", nil)
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/api/webhooks/gateway", webhookHandler.GatewayWebhook).Methods("POST")

	depositLimiter := middleware.NewRateLimiter(rate.Limit(1), 3)

	depositsR := r.PathPrefix("/api/deposits").Subrouter()
	depositsR.Use(auth.JWTMiddleware(cfg, userRepo))
	depositsR.Handle("", depositLimiter.Limit(http.HandlerFunc(settlementHandler.InitiateDeposit))).Methods("POST")
	depositsR.HandleFunc("/{reference}", settlementHandler.GetDepositStatus).Methods("GET")

	walletR := r.PathPrefix("/api/wallet").Subrouter()
	walletR.Use(auth.JWTMiddleware(cfg, userRepo))
	walletR.HandleFunc("", walletHandler.GetWallet).Methods("GET")
	walletR.HandleFunc("/balance", walletHandler.GetBalance).Methods("GET")
	walletR.HandleFunc("/transactions", walletHandler.GetEntries).Methods("GET")

	keysR := r.PathPrefix("/api/keys").Subrouter()
	keysR.Use(auth.JWTMiddleware(cfg, userRepo))
	keysR.HandleFunc("/create", keyHandler.CreateAPIKey).Methods("POST")
	keysR.HandleFunc("/revoke", keyHandler.RevokeAPIKey).Methods("POST")

	adminR := r.PathPrefix("/api/admin").Subrouter()
	adminR.Use(auth.APIKeyMiddleware(keyRepo, userRepo))
	adminR.Use(auth.RequirePermission(string(key.PermissionSettlementReview)))
	adminR.HandleFunc("/settlements/review", settlementHandler.ListReviewQueue).Methods("GET")
	adminR.HandleFunc("/settlements/{reference}/reconcile", settlementHandler.AdminReconcile).Methods("POST")
	adminR.HandleFunc("/wallets/{userId}/audit", walletHandler.AuditWallet).Methods("GET")

	if cfg.Env != "production" {

		r.HandleFunc("/swagger.yaml", func(w http.ResponseWriter, r *http.Request) {
			content, err := os.ReadFile("docs/swagger.yaml")
			if err != nil {
				logger.Error("Failed to read swagger.yaml", logger.Fields{"error": err.Error()})
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "application/yaml")
			w.Write(content)
		})

		r.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
			httpSwagger.URL("/swagger.yaml"),
		))
		logger.Info("Swagger documentation enabled at /swagger/index.html")
	}

	corsObj := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	return corsObj(r)
}
