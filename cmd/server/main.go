package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"chat_rooms/internal/config"
	"chat_rooms/internal/handler"
	"chat_rooms/internal/middleware"
	"chat_rooms/internal/repository"
	"chat_rooms/internal/service"
	"chat_rooms/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var logOpts []logger.Option
	if !cfg.IsProduction() {
		logOpts = append(logOpts, logger.WithConsole())
	}
	appLogger := logger.New(cfg.Log.Level, logOpts...)

	// PostgreSQL
	dbPool, err := newPool(context.Background(), cfg.Database)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		appLogger.Fatal("Failed to ping database", "error", err)
	}
	appLogger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(context.Background(), dbPool); err != nil {
			appLogger.Fatal("Failed to apply schema", "error", err)
		}
		appLogger.Info("Database schema is up to date")
	}

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", "error", err)
	}
	appLogger.Info("Redis connection established")

	repos := repository.NewRepositories(dbPool, rdb, appLogger)

	services, err := service.NewServices(repos, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize services", "error", err)
	}

	lobby, err := services.RoomAccess.EnsurePublicRoom(context.Background(), cfg.Rooms.PublicRoomName)
	if err != nil {
		appLogger.Fatal("Failed to ensure public room", "error", err)
	}
	appLogger.Info("Public room ready", "room_id", lobby.ID, "name", lobby.Name)

	authMiddleware := middleware.NewAuthMiddleware(services.Auth, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, appLogger)

	checks := map[string]handler.HealthCheck{
		"postgres": dbPool.Ping,
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	}
	handlers := handler.NewHandlers(services, checks, cfg, appLogger)

	router := setupRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, appLogger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("Starting server", "addr", srv.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MaxConnIdleTime = cfg.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Metrics())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", handlers.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiLimit := rateLimitMiddleware.Limit("api", cfg.RateLimit.Requests, cfg.RateLimit.Window)
	authLimit := rateLimitMiddleware.Limit("auth", cfg.RateLimit.Requests/10+1, cfg.RateLimit.Window)

	v1 := router.Group("/api/v1")
	v1.Use(apiLimit)
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/sign-up", authLimit, handlers.Auth.SignUp)
			auth.POST("/sign-in", authLimit, handlers.Auth.SignIn)
			auth.POST("/refresh", handlers.Auth.Refresh)
			auth.POST("/sign-out", authMiddleware.RequireAuth(), handlers.Auth.SignOut)
		}

		accounts := v1.Group("/accounts")
		accounts.Use(authMiddleware.RequireAuth())
		{
			accounts.GET("/me", handlers.Account.GetMe)
			accounts.PUT("/me", handlers.Account.UpdateMe)
		}

		// Публичная комната допускает анонимов, поэтому здесь OptionalAuth,
		// а операции, требующие аккаунта, добавляют RequireAuth
		rooms := v1.Group("/rooms")
		rooms.Use(authMiddleware.OptionalAuth())
		{
			rooms.GET("", handlers.Room.List)
			rooms.POST("", authMiddleware.RequireAuth(), handlers.Room.Create)
			rooms.GET("/:id", handlers.Room.Get)
			rooms.POST("/:id/join", authMiddleware.RequireAuth(), handlers.Room.Join)
			rooms.GET("/:id/membership", handlers.Room.Membership)
			rooms.GET("/:id/messages", handlers.Room.ListMessages)
			rooms.POST("/:id/messages", handlers.Room.SendMessage)
			rooms.DELETE("/:id/messages", authMiddleware.RequireAuth(), handlers.Room.ClearHistory)
		}
	}

	router.GET("/ws/rooms/:id", authMiddleware.OptionalAuth(), handlers.Feed.Subscribe)

	return router
}
