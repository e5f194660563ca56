package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"blogCPT/cmd/app"
	"blogCPT/internal/config"
	"blogCPT/internal/database"
	"blogCPT/internal/logger"
	"blogCPT/internal/middleware"
)

func main() {
	root := &cobra.Command{
		Use:           "blog",
		Short:         "Blog API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newMigrateCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if cfg.JWTSecretKey == "" {
				return errors.New("JWT_SECRET_KEY не установлен в .env файле")
			}
			if port != 0 {
				cfg.ServerPort = port
			}

			log := logger.New(cfg.Logger)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(context.Background()); err != nil {
					log.WithError(err).Warn("ошибка при закрытии соединений")
				}
			}()

			return serve(ctx, cfg, a, log)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "override SERVER_PORT")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, a *app.App, log *logrus.Logger) error {
	handlerChain := middleware.Chain(
		a.Handlers.Routes(),
		middleware.SessionMiddleware(a.Service.Auth, log),
		middleware.CORSMiddleware,
		middleware.LoggingMiddleware(log),
		middleware.RequestID,
		middleware.Recover(log),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           handlerChain,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":    srv.Addr,
			"backend": cfg.StoreBackend,
		}).Info("сервер запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка запуска сервера: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("остановка сервера")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return drain(shutdownCtx, srv, a.Cache)
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

type waiter interface {
	Wait()
}

// drain shuts srv down, then waits for the background refetches its requests
// scheduled.
func drain(ctx context.Context, srv shutdowner, refetches waiter) error {
	err := srv.Shutdown(ctx)
	refetches.Wait()
	return err
}

func newMigrateCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQL migrations to the postgres store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			log := logger.New(cfg.Logger)
			if path == "" {
				path = cfg.MigrationsPath
			}

			db, err := database.ConnectDB(cfg.DB, log)
			if err != nil {
				return err
			}
			defer db.CloseDB()

			if err := db.RunMigrations(path); err != nil {
				return err
			}
			log.WithField("path", path).Info("миграции применены")
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "migration file (defaults to MIGRATIONS_PATH)")
	return cmd
}
