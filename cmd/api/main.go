package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"checkout/internal/config"
	"checkout/internal/consumer"
	"checkout/internal/database"
	"checkout/internal/event"
	"checkout/internal/gateway"
	"checkout/internal/handler"
	"checkout/internal/idempotency"
	"checkout/internal/middleware"
	"checkout/internal/monitor"
	"checkout/internal/redis"
	"checkout/internal/repository"
	"checkout/internal/service"
	"checkout/pkg/log"
	"checkout/pkg/queue"
	"checkout/pkg/snowflake"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to load config")
	}

	logConfig := log.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	}
	if err := log.Init(logConfig); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize logger")
	}

	if err := database.Init(cfg); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize database")
	}
	defer database.Close()

	db := database.GetDB()
	if err := database.AutoMigrate(db); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to migrate database")
	}
	if err := database.CreateIndexes(db); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Warn("Failed to create indexes")
	}

	if err := redis.Init(cfg); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize redis")
	}
	defer redis.Close()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	redisClient := redis.GetClient()

	tracer, err := monitor.NewTracer(&monitor.TracerConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: "1.0.0",
		Environment:    cfg.Server.Mode,
		JaegerEndpoint: cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize tracer")
	}

	metrics := monitor.NewMetricsCollector()

	bus, err := newBus(cfg)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error":  err.Error(),
			"driver": cfg.Bus.Driver,
		}).Fatal("Failed to create event bus")
	}

	idemStore, err := idempotency.NewStore(redisClient, cfg.Saga.IdempotencyTTL)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to create idempotency store")
	}

	idGenerator, err := snowflake.NewIDGenerator(1)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to create ID generator")
	}

	// Repositories
	cartRepo := repository.NewCartRepository(db)
	stockRepo := repository.NewStockRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	eventLogRepo := repository.NewEventLogRepository(db)

	// Payment gateway with timeout, retry and breaker around the sandbox
	paymentGateway := gateway.NewResilientGateway(
		gateway.NewSandboxGateway(0),
		gateway.ResilientConfig{
			CaptureTimeout: cfg.Gateway.CaptureTimeout,
			RefundRetries:  cfg.Gateway.RefundRetries,
			RefundBackoff:  cfg.Gateway.RefundBackoff,
			BreakerWindow:  cfg.Gateway.BreakerWindow,
			BreakerCooloff: cfg.Gateway.BreakerCooloff,
		},
	)

	catalog := gateway.NewCatalog(db)
	topic := cfg.Bus.Topic

	// Each participant publishes under its own producer name so the
	// envelope records which service emitted every event.
	cartService := service.NewCartService(
		cartRepo, catalog,
		event.NewPublisher(bus, topic, consumer.CartGroup),
		idGenerator, metrics,
	)
	stockService := service.NewStockService(
		stockRepo, redisClient,
		event.NewPublisher(bus, topic, consumer.StockGroup),
		metrics,
		cfg.Saga.ReservationTTL, cfg.Saga.LockTTL,
		consumer.StockGroup,
	)
	orderService := service.NewOrderService(
		orderRepo,
		event.NewPublisher(bus, topic, consumer.OrderGroup),
		metrics,
	)
	paymentService := service.NewPaymentService(
		paymentRepo, paymentGateway, orderService,
		event.NewPublisher(bus, topic, consumer.PaymentGroup),
		metrics,
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Consumers
	consumers := []interface {
		Start(ctx context.Context, bus queue.Bus, topic string) error
	}{
		consumer.NewCartConsumer(consumer.NewDispatcher(consumer.CartGroup, idemStore, eventLogRepo, metrics), cartService),
		consumer.NewStockConsumer(consumer.NewDispatcher(consumer.StockGroup, idemStore, eventLogRepo, metrics), stockService),
		consumer.NewOrderConsumer(consumer.NewDispatcher(consumer.OrderGroup, idemStore, eventLogRepo, metrics), orderService),
		consumer.NewPaymentConsumer(consumer.NewDispatcher(consumer.PaymentGroup, idemStore, eventLogRepo, metrics), paymentService),
	}
	for _, c := range consumers {
		if err := c.Start(rootCtx, bus, topic); err != nil {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Fatal("Failed to start consumer")
		}
	}

	// Background loops: expired hold sweeper and payment reconciler
	go stockService.RunSweeper(rootCtx, cfg.Saga.SweepInterval)
	go paymentService.RunReconciler(rootCtx, cfg.Saga.ReconcileInterval, cfg.Saga.ReconcileAfter)

	if cfg.Metrics.Enabled {
		metrics.StartSystemMetricsCollection(rootCtx)
	}

	router := setupRouter(cfg, metrics, tracer, cartService, orderService, paymentService)

	server := &http.Server{
		Addr:           cfg.Server.GetAddr(),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		log.WithFields(map[string]interface{}{
			"addr": server.Addr,
			"mode": cfg.Server.Mode,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Fatal("Failed to start server")
		}
	}()

	<-rootCtx.Done()
	stop()

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Error("Server forced to shutdown")
	}

	if err := bus.Close(); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Error("Failed to close event bus")
	}

	if err := tracer.Shutdown(ctx); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Error("Failed to shut down tracer")
	}

	log.Info("Server exited")
}

// newBus builds the event bus named by the configuration. The memory driver
// keeps the same ordering contract as kafka, so single-process deployments
// run the full saga without a broker.
func newBus(cfg *config.Config) (queue.Bus, error) {
	switch cfg.Bus.Driver {
	case "kafka":
		return queue.NewKafkaBus(queue.KafkaBusConfig{
			Brokers:    cfg.Bus.Brokers,
			RetryDelay: cfg.Bus.RetryDelay,
		})
	default:
		return queue.NewMemoryBus(&queue.MemoryBusConfig{
			Partitions: cfg.Bus.Partitions,
			BufferSize: cfg.Bus.BufferSize,
		})
	}
}

func setupRouter(
	cfg *config.Config,
	metrics *monitor.MetricsCollector,
	tracer *monitor.Tracer,
	cartService service.CartService,
	orderService service.OrderService,
	paymentService service.PaymentService,
) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Metrics(metrics))

	router.GET("/health", healthCheck)
	router.GET("/ping", ping)

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	cartHandler := handler.NewCartHandler(cartService, tracer)
	orderHandler := handler.NewOrderHandler(orderService, paymentService)

	api := router.Group("/api")
	{
		v1 := api.Group("/v1")
		v1.Use(middleware.APITimeout())
		{
			v1.GET("/health", healthCheck)
			v1.GET("/ping", ping)

			cartGroup := v1.Group("/cart")
			{
				cartGroup.GET("/items", cartHandler.ListItems)
				cartGroup.POST("/items", cartHandler.AddItem)
				cartGroup.PUT("/items", cartHandler.UpdateItem)
				cartGroup.DELETE("/items/:product_id/:variant_id", cartHandler.RemoveItem)

				checkout := cartGroup.Group("")
				if cfg.RateLimit.Enabled {
					checkout.Use(middleware.CheckoutRateLimit(cfg.RateLimit.Checkout.RPS, cfg.RateLimit.Checkout.Burst))
				}
				checkout.POST("/checkout", cartHandler.Checkout)
			}

			orderGroup := v1.Group("/orders")
			{
				orderGroup.GET("", orderHandler.ListOrders)
				orderGroup.GET("/:order_id", orderHandler.GetOrder)
				orderGroup.POST("/:order_id/refund", orderHandler.RefundOrder)
			}
		}
	}

	return router
}

func healthCheck(c *gin.Context) {
	dbHealth := checkDatabase()
	redisHealth := checkRedis()

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"version":   "1.0.0",
		"services": map[string]interface{}{
			"database": dbHealth,
			"redis":    redisHealth,
		},
	}

	if !dbHealth["healthy"].(bool) || !redisHealth["healthy"].(bool) {
		health["status"] = "error"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	c.JSON(http.StatusOK, health)
}

func ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "pong",
		"timestamp": time.Now().Unix(),
	})
}

func checkDatabase() map[string]interface{} {
	if err := database.Health(); err != nil {
		return map[string]interface{}{
			"healthy": false,
			"error":   err.Error(),
		}
	}
	return map[string]interface{}{
		"healthy": true,
		"status":  "connected",
	}
}

func checkRedis() map[string]interface{} {
	if err := redis.Health(); err != nil {
		return map[string]interface{}{
			"healthy": false,
			"error":   err.Error(),
		}
	}
	return map[string]interface{}{
		"healthy": true,
		"status":  "connected",
	}
}
