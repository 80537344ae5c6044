package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order-tracker/internal/core/auth"
	"order-tracker/internal/core/cache"
	"order-tracker/internal/core/config"
	"order-tracker/internal/core/database"
	"order-tracker/internal/core/logger"
	"order-tracker/internal/core/outbox"
	"order-tracker/internal/core/proxy"
	"order-tracker/internal/core/server"
	carrieradapters "order-tracker/internal/features/carriers/adapters"
	carrierports "order-tracker/internal/features/carriers/ports"
	carrierservice "order-tracker/internal/features/carriers/service"
	orderadapters "order-tracker/internal/features/orders/adapters"
	orderhandler "order-tracker/internal/features/orders/handler"
	orderservice "order-tracker/internal/features/orders/service"
	"order-tracker/internal/features/realtime/handler"
	"order-tracker/internal/features/realtime/hub"
	trackingadapters "order-tracker/internal/features/tracking/adapters"
	trackinghandler "order-tracker/internal/features/tracking/handler"
	trackingservice "order-tracker/internal/features/tracking/service"

	"go.uber.org/zap"
)

// @title Order Tracker API
// @version 1.0
// @description Real-time order tracking for the storefront: order lifecycle, shipment tracking and websocket notifications.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Environment, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	l := logger.Get()
	l.Info("Application starting",
		zap.String("environment", cfg.Environment),
		zap.String("log_level", cfg.LogLevel),
	)

	ctx := context.Background()

	// Storage
	mongo, err := database.Connect(ctx, cfg.Mongo)
	if err != nil {
		l.Fatal("MongoDB connection failed", zap.Error(err))
	}
	defer mongo.Close(ctx)

	redisCache, err := cache.NewRedisAdapter(cfg.Redis.URL)
	if err != nil {
		l.Fatal("Redis connection failed", zap.Error(err))
	}
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		l.Fatal("Redis ping failed", zap.Error(err))
	}

	// Auth
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)

	// Repositories
	orderRepo := orderadapters.NewMongoOrderRepository(mongo.DB)
	cancellationRepo := orderadapters.NewMongoCancellationRepository(mongo.DB)
	outboxRepo := outbox.NewMongoRepository(mongo.DB)
	snapshotRepo := trackingadapters.NewRedisSnapshotRepository(redisCache, time.Duration(cfg.Redis.SnapshotTTLSeconds)*time.Second)

	// Notification hub and outbox dispatcher
	notificationHub := hub.New(logger.Named("hub"))
	dispatcher := outbox.NewDispatcher(outboxRepo, notificationHub, outbox.DispatcherConfig{
		PollInterval: time.Duration(cfg.Outbox.PollIntervalMillis) * time.Millisecond,
		BatchSize:    cfg.Outbox.BatchSize,
		Retention:    time.Duration(cfg.Outbox.RetentionHours) * time.Hour,
	}, logger.Named("outbox"))
	dispatcher.Start(ctx)

	// Services
	orderSvc := orderservice.NewOrderService(orderRepo, cancellationRepo, outboxRepo, mongo, snapshotRepo)
	trackingSvc := trackingservice.NewTrackingService(orderRepo, snapshotRepo, outboxRepo, mongo)

	// Background carrier refresh
	var refresher *carrierservice.Refresher
	if cfg.Carriers.RefreshEnabled {
		interAdapter := carrieradapters.NewInterrapidisimoAdapter(
			cfg.Carriers.InterrapidisimoURL,
			cfg.Carriers.InterrapidisimoAPIURL,
			proxy.Settings{
				Enabled:  cfg.Proxy.Enabled,
				Hostname: cfg.Proxy.Hostname,
				Port:     cfg.Proxy.Port,
				Username: cfg.Proxy.Username,
				Password: cfg.Proxy.Password,
			},
		)
		refresher = carrierservice.NewRefresher(
			orderRepo,
			[]carrierports.CarrierProvider{interAdapter},
			trackingSvc,
			time.Duration(cfg.Carriers.RefreshIntervalMinutes)*time.Minute,
		)
		refresher.Start(ctx)
	}

	// Handlers
	orderHdl := orderhandler.NewOrderHandler(orderSvc)
	trackingHdl := trackinghandler.NewTrackingHandler(trackingSvc)
	wsHdl := handler.NewWSHandler(
		notificationHub,
		orderSvc,
		tokens,
		time.Duration(cfg.Hub.PingIntervalSeconds)*time.Second,
		time.Duration(cfg.Hub.WriteTimeoutSeconds)*time.Second,
	)

	srv := server.New(cfg)

	authMW := auth.Middleware(tokens)
	api := srv.App.Group("/api")

	api.Get("/pedidos/:id", authMW, orderHdl.GetOrder)
	api.Put("/pedidos/:id/estado", authMW, auth.RequireStaff(), orderHdl.UpdateStatus)
	api.Post("/pedidos/:id/solicitudes-cancelacion", authMW, auth.RequireStaff(), orderHdl.RequestCancellation)
	api.Put("/solicitudes-cancelacion/:id", authMW, auth.RequireAdmin(), orderHdl.ResolveCancellation)

	api.Get("/pedidos/:id/seguimiento", authMW, trackingHdl.GetTracking)
	api.Put("/pedidos/:id/seguimiento", authMW, auth.RequireStaff(), trackingHdl.UpdateTracking)
	api.Post("/pedidos/:id/seguimiento/evento", authMW, auth.RequireStaff(), trackingHdl.AppendEvent)

	srv.App.Use("/ws", wsHdl.Upgrade)
	srv.App.Get("/ws", wsHdl.Handler())

	// Run until interrupted, then drain background loops before exiting.
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			l.Error("Server stopped", zap.Error(err))
		}
	case sig := <-quit:
		l.Info("Shutdown signal received", zap.String("signal", sig.String()))
		if err := srv.Shutdown(); err != nil {
			l.Error("Server shutdown failed", zap.Error(err))
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if refresher != nil {
		if err := refresher.Stop(stopCtx); err != nil {
			l.Error("Carrier refresher shutdown failed", zap.Error(err))
		}
	}
	if err := dispatcher.Stop(stopCtx); err != nil {
		l.Error("Outbox dispatcher shutdown failed", zap.Error(err))
	}

	l.Info("Application stopped")
}
