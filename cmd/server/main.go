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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"

	"github.com/peedutronix/credit-keeper/internal/database"
	"github.com/peedutronix/credit-keeper/internal/events"
	"github.com/peedutronix/credit-keeper/internal/events/kafka"
	mW "github.com/peedutronix/credit-keeper/internal/middleware"
	"github.com/peedutronix/credit-keeper/internal/models"
	"github.com/peedutronix/credit-keeper/internal/services"
	"github.com/peedutronix/credit-keeper/internal/ws"
)

// @title Credit Keeper API
// @version 1.0
// @description Shop credit ledger with order lifecycle and real-time notifications
// @host localhost:8080
// @BasePath /api
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

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

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")
	viper.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	viper.BindEnv("admin.password", "ADMIN_PASSWORD")

	viper.SetDefault("jwt.expiry_hours", 168)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)
	viper.SetDefault("admin.password", "admin123")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize infrastructure
	db := database.InitDatabase()
	defer db.Close()

	adminPassword, err := services.HashPassword(viper.GetString("admin.password"))
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}
	if err := database.Migrate(db, adminPassword); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if brokers := viper.GetStringSlice("kafka.brokers"); len(brokers) > 0 {
		kafkaPublisher := kafka.NewPublisher(brokers)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		log.Printf("Kafka event publishing enabled (brokers: %v)", brokers)
	}

	// Initialize services
	registry := ws.NewRegistry()
	wsHandler := ws.NewHandler(registry)
	ledgerService := services.NewLedgerService(db)
	notificationService := services.NewNotificationService(db, registry)
	orderService := services.NewOrderService(db, ledgerService, notificationService, publisher)
	authService := services.NewAuthService(db, redisClient)
	customerService := services.NewCustomerService(db)
	adminService := services.NewAdminService(db)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API routes. The request timeout lives here rather than on the root
	// router so it never applies to the websocket upgrade below.
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/me", authService.Me)

			// Orders
			r.With(mW.RequireRole(models.RoleCustomer)).Post("/orders", orderService.CreateOrder)
			r.With(mW.RequireRole(models.RoleCustomer)).Get("/orders/customer", orderService.ListCustomerOrders)
			r.With(mW.RequireRole(models.RoleShopkeeper)).Get("/orders/shopkeeper", orderService.ListShopkeeperOrders)
			r.With(mW.RequireRole(models.RoleShopkeeper)).Patch("/orders/{id}/status", orderService.UpdateStatus)
			r.Get("/orders/{id}", orderService.GetOrder)

			// Credits
			r.With(mW.RequireRole(models.RoleCustomer)).Get("/credits/customer", ledgerService.GetCustomerRecords)
			r.With(mW.RequireRole(models.RoleCustomer)).Get("/credits/customer/summary", ledgerService.GetCreditSummary)
			r.With(mW.RequireRole(models.RoleShopkeeper, models.RoleAdmin)).Get("/credits/all", ledgerService.ListCustomerCredits)
			r.With(mW.RequireRole(models.RoleShopkeeper, models.RoleAdmin)).Post("/credits/payment", ledgerService.RecordPayment)

			// Customers
			r.With(mW.RequireRole(models.RoleShopkeeper, models.RoleAdmin)).Get("/customers", customerService.ListCustomers)
			r.With(mW.RequireRole(models.RoleShopkeeper, models.RoleAdmin)).Get("/customers/{id}", customerService.GetCustomer)
			r.With(mW.RequireRole(models.RoleShopkeeper, models.RoleAdmin)).Patch("/customers/{id}/credit-limit", customerService.UpdateCreditLimit)

			// Admin
			r.With(mW.RequireRole(models.RoleAdmin)).Get("/admin/dashboard", adminService.Dashboard)
			r.With(mW.RequireRole(models.RoleAdmin)).Get("/admin/users", adminService.ListUsers)

			// Notifications
			r.Get("/notifications", notificationService.ListNotifications)
			r.Patch("/notifications/{id}/read", notificationService.MarkRead)
			r.Patch("/notifications/read-all", notificationService.MarkAllRead)
			r.Get("/notifications/unread-count", notificationService.UnreadCount)
		})
	})

	// WebSocket push channel (token passed as query parameter)
	r.With(mW.AuthMiddleware).Get("/ws", wsHandler.Serve)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:        ":" + port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
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
