package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shopsphere/shopsphere-api/internal/config"
	"github.com/shopsphere/shopsphere-api/internal/events"
	"github.com/shopsphere/shopsphere-api/internal/handler"
	"github.com/shopsphere/shopsphere-api/internal/logger"
	"github.com/shopsphere/shopsphere-api/internal/mailer"
	"github.com/shopsphere/shopsphere-api/internal/middleware"
	"github.com/shopsphere/shopsphere-api/internal/payment"
	"github.com/shopsphere/shopsphere-api/internal/repository"
	"github.com/shopsphere/shopsphere-api/internal/service"
	"github.com/shopsphere/shopsphere-api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MongoDB
	mongoClient, err := repository.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.ConnectTimeout)
	if err != nil {
		log.Fatal("connect to MongoDB", zap.Error(err))
	}
	defer mongoClient.Disconnect(context.Background())

	db := mongoClient.Database(cfg.Mongo.Database)
	if err := repository.EnsureIndexes(ctx, db); err != nil {
		log.Fatal("ensure indexes", zap.Error(err))
	}
	log.Info("connected to MongoDB", zap.String("database", cfg.Mongo.Database))

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Fatal("parse db config", zap.Error(err))
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatal("connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("ping database", zap.Error(err))
	}
	paymentRepo := repository.NewPaymentRepository(dbPool)
	if err := paymentRepo.EnsureSchema(ctx); err != nil {
		log.Fatal("ensure payment schema", zap.Error(err))
	}
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("connect to Redis", zap.Error(err))
	}
	log.Info("connected to Redis")

	// RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		log.Fatal("connect to RabbitMQ", zap.Error(err))
	}
	defer amqpConn.Close()

	publishCh, err := amqpConn.Channel()
	if err != nil {
		log.Fatal("open RabbitMQ channel", zap.Error(err))
	}
	defer publishCh.Close()

	if err := worker.SetupRabbitMQ(publishCh); err != nil {
		log.Fatal("setup RabbitMQ", zap.Error(err))
	}

	consumeCh, err := amqpConn.Channel()
	if err != nil {
		log.Fatal("open RabbitMQ channel", zap.Error(err))
	}
	defer consumeCh.Close()
	if err := consumeCh.Qos(1, 0, false); err != nil {
		log.Fatal("set QoS", zap.Error(err))
	}
	log.Info("connected to RabbitMQ")

	// Kafka
	var eventPublisher service.EventPublisher
	if cfg.Kafka.Enabled {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, log)
		defer kp.Close()
		eventPublisher = kp
		log.Info("publishing order events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", events.TopicOrderEvents))
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	cartRepo := repository.NewCartRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	reportRepo := repository.NewReportRepository(db)

	// Services
	notifier := worker.NewPublisher(publishCh)
	gateway := payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
	if cfg.Stripe.SecretKey == "" {
		log.Warn("STRIPE_SECRET_KEY not set, checkout sessions will fail")
	}

	authSvc := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	productSvc := service.NewProductService(productRepo, redisClient, log)
	cartSvc := service.NewCartService(cartRepo, productRepo)
	orderSvc := service.NewOrderService(orderRepo, cartRepo, productSvc, notifier, eventPublisher, log)
	paymentSvc := service.NewPaymentService(orderSvc, orderRepo, userRepo, paymentRepo, gateway, redisClient,
		service.CheckoutConfig{
			Currency:   cfg.Stripe.Currency,
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
		}, log)
	adminSvc := service.NewAdminService(reportRepo, userRepo, orderRepo, log)

	// Handlers
	authH := handler.NewAuthHandler(authSvc, log)
	productH := handler.NewProductHandler(productSvc, log)
	cartH := handler.NewCartHandler(cartSvc, log)
	orderH := handler.NewOrderHandler(orderSvc, log)
	paymentH := handler.NewPaymentHandler(paymentSvc, log)
	adminH := handler.NewAdminHandler(adminSvc, log)
	healthH := handler.NewHealthHandler(mongoClient, dbPool, redisClient, amqpConn)

	// Worker
	notificationWorker := worker.NewNotificationWorker(consumeCh, userRepo, orderRepo,
		mailer.New(cfg.SMTP, log), redisClient, log)

	// Router
	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AddAllowHeaders("Authorization")
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)

	authMW := middleware.AuthMiddleware(cfg.JWT.Secret)
	adminMW := middleware.AdminOnly()

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/register", authH.Register)
		auth.POST("/login", authH.Login)
		auth.GET("/me", authMW, authH.Me)
		auth.PUT("/updatedetails", authMW, authH.UpdateDetails)
		auth.PUT("/updatepassword", authMW, authH.UpdatePassword)

		products := api.Group("/products")
		products.GET("", productH.List)
		products.GET("/vendor/my-products", authMW, productH.VendorProducts)
		products.GET("/:id", productH.GetByID)
		products.POST("", authMW, productH.Create)
		products.PUT("/:id", authMW, productH.Update)
		products.DELETE("/:id", authMW, productH.Delete)
		products.POST("/:id/reviews", authMW, productH.AddReview)

		cart := api.Group("/cart", authMW)
		cart.GET("", cartH.GetCart)
		cart.POST("/items", cartH.AddItem)
		cart.PUT("/items/:itemId", cartH.UpdateItem)
		cart.DELETE("/items/:itemId", cartH.DeleteItem)
		cart.DELETE("", cartH.Clear)

		orders := api.Group("/orders", authMW)
		orders.POST("", orderH.CreateOrder)
		orders.GET("/my-orders", orderH.MyOrders)
		orders.GET("", adminMW, orderH.ListOrders)
		orders.GET("/:id", orderH.GetOrder)
		orders.PUT("/:id/pay", orderH.PayOrder)
		orders.PUT("/:id/cancel", orderH.CancelOrder)
		orders.PUT("/:id/status", adminMW, orderH.UpdateStatus)

		payments := api.Group("/payments")
		payments.POST("/webhook", paymentH.Webhook)
		payments.POST("/create-checkout-session", authMW, paymentH.CreateCheckoutSession)
		payments.GET("/verify/:orderId", authMW, paymentH.VerifyPayment)

		admin := api.Group("/admin", authMW, adminMW)
		admin.GET("/dashboard", adminH.Dashboard)
		admin.GET("/users", adminH.ListUsers)
		admin.PUT("/users/:id/role", adminH.UpdateUserRole)
		admin.GET("/sales-report", adminH.SalesReport)
	}

	if err := notificationWorker.Start(ctx); err != nil {
		log.Fatal("start notification worker", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}

	notificationWorker.Stop()
	time.Sleep(500 * time.Millisecond)
	cancel()
	log.Info("server stopped")
}
