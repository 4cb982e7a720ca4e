package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"chatTracker/internal/config"
	"chatTracker/internal/handlers"
	"chatTracker/internal/hub"
	"chatTracker/internal/logger"
	chatmcp "chatTracker/internal/mcp"
	"chatTracker/internal/middleware"
	"chatTracker/internal/repository/inmemory"
	"chatTracker/internal/repository/postgres"
	"chatTracker/internal/repository/sqlite"
	"chatTracker/internal/service"
	"chatTracker/internal/worker"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Store - хранилище с освобождением ресурсов
type Store interface {
	service.Repository
	Close()
}

type App struct {
	config    *config.Config
	server    *http.Server
	store     Store
	service   *service.ChatService
	hub       *hub.Hub
	worker    *worker.ResyncWorker
	shutdowns []func(context.Context) error // выполняются в обратном порядке
}

func New(cfg *config.Config) *App {
	return &App{
		config:    cfg,
		shutdowns: make([]func(context.Context) error, 0),
	}
}

func (a *App) Init(ctx context.Context) error {
	if err := logger.Init(a.config.Logging.Development); err != nil {
		return fmt.Errorf("инициализация логгера: %w", err)
	}
	a.onShutdown(func(context.Context) error {
		logger.Info("Завершение работы логгирования...")
		logger.Sync()
		return nil
	})

	store, err := OpenStore(ctx, a.config.Database)
	if err != nil {
		return fmt.Errorf("инициализация хранилища: %w", err)
	}
	a.store = store
	a.onShutdown(func(context.Context) error {
		logger.Info("Закрытие хранилища...")
		store.Close()
		return nil
	})

	a.hub = hub.New(a.config.Hub)
	a.onShutdown(func(context.Context) error {
		logger.Info("Закрытие websocket-сессий...", zap.Int("sessions", a.hub.SessionCount()))
		a.hub.Close()
		return nil
	})

	a.service = service.NewChatService(a.store, a.hub)
	a.worker = worker.NewResyncWorker(a.service, a.hub, &a.config.Worker.ResyncInterval)

	a.server = &http.Server{
		Addr:    a.config.GetServerAddr(),
		Handler: NewRouter(a.config, a.service, a.hub),
	}
	a.onShutdown(func(ctx context.Context) error {
		logger.Info("Остановка HTTP-сервера...")
		return a.server.Shutdown(ctx)
	})

	logger.Info("Приложение инициализировано",
		zap.String("database", a.config.Database.Type),
		zap.String("addr", a.server.Addr))
	return nil
}

// OpenStore выбирает хранилище по конфигурации и применяет схему
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Type {
	case "postgres":
		storage, err := postgres.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := storage.Migrate(ctx); err != nil {
				storage.Close()
				return nil, err
			}
		}
		return storage, nil
	case "sqlite":
		storage, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := storage.Migrate(ctx); err != nil {
			storage.Close()
			return nil, err
		}
		return storage, nil
	case "inmemory":
		return inmemory.New(), nil
	default:
		return nil, fmt.Errorf("неизвестный тип хранилища %q", cfg.Type)
	}
}

// NewRouter собирает REST, websocket и MCP на одном роутере.
// Таймаут запроса действует только на REST, иначе он оборвал бы websocket.
func NewRouter(cfg *config.Config, svc *service.ChatService, h *hub.Hub) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "Mcp-Session-Id"},
		ExposedHeaders:   []string{"X-Request-ID", "Mcp-Session-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.HTTP.RateLimit))
		if cfg.HTTP.RequestTimeout > 0 {
			r.Use(chimw.Timeout(cfg.HTTP.RequestTimeout))
		}
		handlers.NewHandler(svc).Register(r)
	})

	r.Handle(hub.Path, h.Handler(svc))

	if cfg.HTTP.EnableMCP {
		r.Handle("/mcp", chatmcp.Handler(chatmcp.NewServer(svc)))
	}

	return r
}

func (a *App) onShutdown(fn func(context.Context) error) {
	a.shutdowns = append(a.shutdowns, fn)
}

// Run обслуживает запросы до SIGINT/SIGTERM или отмены ctx
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)

	var wg conc.WaitGroup
	wg.Go(func() {
		logger.Info("Сервер запущен", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			stop()
		}
	})
	wg.Go(func() {
		a.worker.Start(ctx)
	})

	<-ctx.Done()
	logger.Info("Получен сигнал остановки")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()
	err := a.Shutdown(shutdownCtx)

	wg.Wait()

	select {
	case runErr := <-serverErr:
		err = multierr.Append(fmt.Errorf("HTTP-сервер: %w", runErr), err)
	default:
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var err error
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.shutdowns[i](ctx))
	}
	return err
}
