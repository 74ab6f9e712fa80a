package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"messenger/internal/config"
	"messenger/internal/handler"
	"messenger/internal/middleware"
	"messenger/internal/realtime"
	"messenger/internal/repository"
	"messenger/internal/service"
	"messenger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	var appLogger logger.Logger
	if cfg.IsProduction() {
		appLogger = logger.NewJSON(cfg.Log.Level)
	} else {
		appLogger = logger.New(cfg.Log.Level)
	}

	// Хранилище документов
	backend, err := openBackend(cfg.Store, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open document store", "driver", cfg.Store.Driver, "error", err)
	}
	appLogger.Info("Document store ready", "driver", cfg.Store.Driver)

	// Подключение к Redis (необязательно)
	rdb := openRedis(cfg.Redis, appLogger)

	// Инициализация репозиториев
	repos := repository.NewRepositories(backend, rdb, appLogger)

	// Realtime слой и сервисы
	presence := realtime.NewPresence()
	rooms := realtime.NewRooms(appLogger.With("component", "rooms"))
	services := service.NewServices(repos, cfg, rooms, presence.Directory(), appLogger)
	hub := realtime.NewHub(presence, rooms, services, cfg.Realtime, appLogger.With("component", "hub"))
	go hub.Run()

	// Инициализация middleware
	authMiddleware := middleware.NewAuthMiddleware(services.Auth, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, appLogger)

	// Инициализация handlers
	handlers := handler.NewHandlers(services, hub, cfg, appLogger)

	// Настройка роутера
	router := setupRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, appLogger)

	// Запуск HTTP сервера
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLogger.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Ожидание сигнала для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}
	if err := hub.Shutdown(ctx); err != nil {
		appLogger.Error("WebSocket hub did not stop in time", "error", err)
	}
	// Отложенные delivered должны успеть записаться до закрытия хранилища
	if err := services.Message.Close(ctx); err != nil {
		appLogger.Error("Pending deliveries were dropped", "error", err)
	}
	services.Call.Close()

	if err := backend.Close(); err != nil {
		appLogger.Error("Failed to close document store", "error", err)
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			appLogger.Error("Failed to close Redis client", "error", err)
		}
	}

	appLogger.Info("Server exited")
}

func openBackend(cfg config.StoreConfig, log logger.Logger) (repository.Backend, error) {
	switch cfg.Driver {
	case config.StoreDriverPostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse database DSN: %w", err)
		}
		if cfg.MaxConns > 0 {
			poolCfg.MaxConns = int32(cfg.MaxConns)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		// Проверка подключения к БД
		if err := dbPool.Ping(ctx); err != nil {
			dbPool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		log.Info("Database connection established")
		return repository.NewPostgresBackend(ctx, dbPool, log)

	case config.StoreDriverSQLite:
		return repository.NewSQLiteBackend(cfg.SQLitePath, log)

	default:
		return repository.NewMemoryBackend(cfg.DataDir, log)
	}
}

// openRedis возвращает nil, если Redis не настроен или недоступен
func openRedis(cfg config.RedisConfig, log logger.Logger) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Проверка подключения к Redis
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Redis is unavailable, continuing without it", "addr", cfg.Addr, "error", err)
		rdb.Close()
		return nil
	}
	log.Info("Redis connection established")
	return rdb
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
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))

	handlers.Register(router, authMiddleware, rateLimitMiddleware)

	return router
}
