package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keycraft-api/cache"
	"keycraft-api/database"
	"keycraft-api/handlers"
	"keycraft-api/kafka"
	"keycraft-api/middleware"
	"keycraft-api/orders"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database
	db, err := database.InitDB(logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis (optional; the product cache degrades to DB-only)
	redisClient, err := cache.InitRedis(logger)
	if err != nil {
		logger.Warn("Redis unavailable, product cache disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	// Initialize OpenTelemetry
	shutdown, err := middleware.InitTracing("keycraft-api")
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown()

	// Initialize Kafka producer (optional; order events are best-effort)
	producer, err := kafka.InitProducer(logger)
	if err != nil {
		logger.Warn("Kafka unavailable, order events disabled", zap.Error(err))
		producer = nil
	} else {
		defer producer.Close()
	}

	// Start the notification consumer in the background
	if producer != nil {
		consumer, err := kafka.InitConsumer(logger)
		if err != nil {
			logger.Warn("Failed to initialize Kafka consumer", zap.Error(err))
		} else {
			defer consumer.Close()
			go func() {
				if err := kafka.StartConsumer(consumer, logger); err != nil {
					logger.Error("Kafka consumer error", zap.Error(err))
				}
			}()
		}
	}

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("keycraft-api"))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	authHandler := handlers.NewAuthHandler(db, logger)
	adminHandler := handlers.NewAdminHandler(db, logger)
	cartHandler := handlers.NewCartHandler(db, producer, redisClient, orders.NewSQLTotalsCalculator(), logger)
	productHandler := handlers.NewProductHandler(db, redisClient, logger)
	sellerHandler := handlers.NewSellerHandler(db, redisClient, logger)
	userHandler := handlers.NewUserHandler(db, logger)

	api := router.Group("/api")
	{
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)

		api.GET("/products/search", productHandler.SearchProducts)
		api.GET("/products/:id", productHandler.GetProduct)

		auth := api.Group("/")
		auth.Use(middleware.AuthMiddleware())
		{
			auth.POST("/products/review", productHandler.SubmitReview)

			auth.GET("/cart", cartHandler.GetCart)
			auth.POST("/cart/add", cartHandler.AddToCart)
			auth.DELETE("/cart/remove/:productId", cartHandler.RemoveFromCart)
			auth.POST("/cart/checkout", cartHandler.Checkout)

			auth.GET("/user/profile", userHandler.GetProfile)
			auth.PUT("/user/profile", userHandler.UpdateProfile)
			auth.POST("/user/become-seller", userHandler.BecomeSeller)
			auth.GET("/user/membership-status", userHandler.GetMembershipStatus)
			auth.GET("/user/orders", userHandler.GetOrders)

			seller := auth.Group("/seller")
			seller.Use(middleware.RequireSeller())
			{
				seller.GET("/products", sellerHandler.GetMyProducts)
				seller.POST("/products", sellerHandler.CreateProduct)
				seller.PUT("/products/:id", sellerHandler.UpdateProduct)
				seller.DELETE("/products/:id", sellerHandler.DeleteProduct)
				seller.GET("/analytics", sellerHandler.GetAnalytics)
				seller.GET("/monthly-revenue", sellerHandler.GetMonthlyRevenue)
			}

			admin := auth.Group("/admin")
			admin.Use(middleware.RequireAdmin())
			{
				admin.PUT("/users/status", adminHandler.UpdateUserStatus)
			}
		}
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + getEnv("PORT", "8080"),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("KeyCraft API started", zap.String("addr", srv.Addr))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
