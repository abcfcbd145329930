package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"

	"github.com/sannidata/settlement-engine/cmd/routes"
	"github.com/sannidata/settlement-engine/internal/gateway"
	"github.com/sannidata/settlement-engine/internal/key"
	"github.com/sannidata/settlement-engine/internal/ledger"
	"github.com/sannidata/settlement-engine/internal/settlement"
	"github.com/sannidata/settlement-engine/internal/user"
	"github.com/sannidata/settlement-engine/internal/wallet"
	"github.com/sannidata/settlement-engine/internal/webhook"
	"github.com/sannidata/settlement-engine/pkg/config"
	"github.com/sannidata/settlement-engine/pkg/database"
	"github.com/sannidata/settlement-engine/pkg/events"
	"github.com/sannidata/settlement-engine/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	database.Connect(cfg.DBUrl)
	if err := database.DB.AutoMigrate(&user.User{}, &key.APIKey{}, &ledger.Transaction{}, &wallet.Wallet{}, &wallet.Entry{}); err != nil {
		logger.Fatal("Failed to run migrations", logger.WithError(err))
	}

	redisClient := events.NewRedisClient(cfg)

	ledgerRepo := ledger.NewRepository(database.DB)
	walletRepo := wallet.NewRepository(database.DB)
	gatewayClient := gateway.NewPaystackClient(cfg)

	coordinator := settlement.NewCoordinator(cfg, ledgerRepo, walletRepo, gatewayClient, redisClient)

	// start background reconcile worker
	worker := webhook.NewWorker(cfg, coordinator, redisClient)
	worker.Start()

	r := mux.NewRouter()
	handler := routes.RegisterRoutes(r, cfg, redisClient, coordinator, walletRepo)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", logger.Fields{"port": cfg.Port, "env": cfg.Env})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Could not listen", logger.Fields{"port": cfg.Port, "error": err.Error()})
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	server.Shutdown(ctx)
	worker.Stop()
	logger.Info("Server gracefully shut down")
}
