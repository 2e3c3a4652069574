package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rezawallet/backend/docs"
	"github.com/rezawallet/backend/internal/config"
	"github.com/rezawallet/backend/internal/database"
	"github.com/rezawallet/backend/internal/gateway"
	"github.com/rezawallet/backend/internal/handlers"
	mW "github.com/rezawallet/backend/internal/middleware"
	"github.com/rezawallet/backend/internal/services"
	"github.com/rezawallet/backend/internal/store"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title ReZA Wallet Backend API
// @version 1.0
// @description Digital wallet ledger with iKhokha gateway integration
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("ikhokha.app_id", "IKHOKHA_APP_ID")
	viper.BindEnv("ikhokha.secret", "IKHOKHA_SECRET")
	viper.BindEnv("ikhokha.base_url", "IKHOKHA_BASE_URL")
	viper.BindEnv("ikhokha.requester_url", "IKHOKHA_REQUESTER_URL")
	viper.BindEnv("ikhokha.callback_url", "IKHOKHA_CALLBACK_URL")
	viper.BindEnv("ikhokha.success_url", "IKHOKHA_SUCCESS_URL")
	viper.BindEnv("ikhokha.failure_url", "IKHOKHA_FAILURE_URL")
	viper.BindEnv("ikhokha.mode", "IKHOKHA_MODE")
	viper.BindEnv("wallet.currency", "WALLET_CURRENCY")
	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Swagger metadata
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"

	// Infrastructure
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	gatewayCfg := config.LoadGatewayConfig()
	gatewayClient := gateway.NewClient(gateway.Config{
		AppID:        gatewayCfg.AppID,
		Secret:       gatewayCfg.Secret,
		BaseURL:      gatewayCfg.BaseURL,
		RequesterURL: gatewayCfg.RequesterURL,
		CallbackURL:  gatewayCfg.CallbackURL,
		SuccessURL:   gatewayCfg.SuccessURL,
		FailureURL:   gatewayCfg.FailureURL,
		Mode:         gatewayCfg.Mode,
	})

	// Core services
	userStore := store.NewPostgresStore(db)
	ledgerService := services.NewLedgerService(userStore)
	guard := services.NewIdempotencyGuard(redisClient, 7*24*time.Hour)
	settlementService := services.NewSettlementService(redisClient, gatewayCfg.Currency)
	reconcilerService := services.NewReconcilerService(ledgerService, guard, settlementService, redisClient)
	walletService := services.NewWalletService(ledgerService, gatewayClient, gatewayCfg.Currency)
	qrService := services.NewQRService(redisClient)

	walletHandler := handlers.NewWalletHandler(walletService, ledgerService, reconcilerService, qrService, gatewayCfg.Currency)
	webhookHandler := handlers.NewWebhookHandler(reconcilerService, gatewayCfg.Secret)

	// Settlement drain loop
	settlementCtx, stopSettlement := context.WithCancel(context.Background())
	defer stopSettlement()
	go settlementService.Run(settlementCtx, config.LoadSettlementConfig().Interval)

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Gateway callbacks are authenticated by signature, not by session.
		r.Post("/webhooks/ikhokha", webhookHandler.HandleCallback)

		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/wallet/balance", walletHandler.GetBalance)
			r.Get("/wallet/transactions", walletHandler.ListTransactions)
			r.Post("/wallet/deposits", walletHandler.InitiateDeposit)
			r.Get("/wallet/deposits/{entryId}/qr", walletHandler.DepositQR)
			r.Post("/wallet/withdrawals", walletHandler.InitiateWithdrawal)
			r.Post("/wallet/entries/{entryId}/force-fail", walletHandler.ForceFail)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
