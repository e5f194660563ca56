package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"blogCPT/internal/cache"
	"blogCPT/internal/clock"
	"blogCPT/internal/config"
	"blogCPT/internal/database"
	"blogCPT/internal/docstore"
	handlers "blogCPT/internal/handler"
	"blogCPT/internal/identity"
	"blogCPT/internal/repository"
	"blogCPT/internal/service"
	"blogCPT/internal/session"
	"blogCPT/internal/storage"
)

// App is the assembled application: its handlers plus whatever must be
// released on shutdown.
type App struct {
	Handlers *handlers.Handlers
	Service  *service.Service
	Cache    *cache.Cache
	closers  []func(context.Context) error
}

// Close releases every connection opened by New.
func (a *App) Close(ctx context.Context) error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	clk := clock.System()
	a := &App{}

	// document store
	store, healthCheck, err := a.openStore(ctx, cfg, clk, log)
	if err != nil {
		return nil, err
	}

	a.Cache = cache.New(cache.Options{
		Clock:           clk,
		Logger:          log,
		RevalidateAfter: cfg.Cache.RevalidateAfter,
		KeepUnusedFor:   cfg.Cache.KeepUnusedFor,
		MaxEntries:      cfg.Cache.MaxEntries,
	})
	repo := repository.NewRepository(store, a.Cache)

	sessions := session.NewManager(session.ManagerOptions{
		Secret: cfg.JWTSecretKey,
		TTL:    cfg.SessionDuration,
		Secure: cfg.CookieSecure,
		Clock:  clk,
		NewProvider: func() identity.Provider {
			return identity.NewGoogleClient(cfg.OAuth)
		},
	})

	// image storage is optional
	var images storage.Storage
	minioClient, err := storage.NewMinIOClient(ctx, cfg.MinIO, log)
	if err != nil {
		log.WithError(err).Warn("MinIO недоступен, загрузка изображений отключена")
	} else {
		images = minioClient
	}

	a.Service = service.NewService(repo, sessions, images, cfg.Cache.PageSize, log)

	a.Handlers = handlers.NewHandlers(a.Service, cfg, log)
	a.Handlers.HealthCheck = healthCheck
	a.Handlers.Cache = a.Cache

	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, clk clock.Clock, log logrus.FieldLogger) (docstore.Store, func() error, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Warn("используется хранилище в памяти, данные не сохраняются")
		return docstore.NewMemoryStore(clk), nil, nil

	case config.BackendPostgres:
		db, err := database.ConnectDB(cfg.DB, log)
		if err != nil {
			return nil, nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.CloseDB() })
		return docstore.NewPostgresStore(db.DB, clk), db.HealthCheck, nil

	case config.BackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		m, err := database.ConnectMongo(connectCtx, cfg.Mongo, log)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, m.Close)
		return docstore.NewMongoStore(m.Database, clk), m.HealthCheck, nil
	}

	return nil, nil, fmt.Errorf("неизвестное хранилище: %q", cfg.StoreBackend)
}
