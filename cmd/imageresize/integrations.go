package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"imageresize/cache"
	"imageresize/config"
	"imageresize/database"
	"imageresize/kafka"
	"imageresize/metrics"
	"imageresize/repository"
	"imageresize/service"
)

type integrations struct {
	deps    service.Dependencies
	repo    repository.Repository
	closers []func() error
}

// openIntegrations connects every side channel that has an address
// configured. A configured but unreachable service is an error.
func openIntegrations(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*integrations, error) {
	in := &integrations{}
	in.deps.Metrics = metrics.New()

	if cfg.RedisAddr != "" {
		conn, err := database.ConnectCache(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, in.closeWith(err)
		}
		in.closers = append(in.closers, conn.Close)
		in.deps.Tracker = cache.NewStatusCache(conn)
		logger.Info("Status cache enabled", zap.String("redis_addr", cfg.RedisAddr))
	}

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		producer, err := kafka.NewProducer(brokers, cfg.KafkaTopic)
		if err != nil {
			return nil, in.closeWith(fmt.Errorf("create kafka producer: %w", err))
		}
		in.closers = append(in.closers, producer.Close)
		in.deps.Publisher = producer
		logger.Info("Event publishing enabled",
			zap.Strings("brokers", brokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}

	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, in.closeWith(err)
		}
		in.closers = append(in.closers, func() error { db.Close(); return nil })

		repo := repository.NewPostgresRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, in.closeWith(fmt.Errorf("ensure schema: %w", err))
		}
		in.repo = repo
		logger.Info("Benchmark run storage enabled")
	}

	return in, nil
}

func (in *integrations) Close() error {
	var result *multierror.Error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	in.closers = nil
	return result.ErrorOrNil()
}

func (in *integrations) closeWith(err error) error {
	if cerr := in.Close(); cerr != nil {
		return multierror.Append(err, cerr)
	}
	return err
}

// serveMetrics runs work while exposing /metrics and /health on addr. With
// an empty addr it just runs work.
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *zap.Logger, work func(context.Context) error) error {
	if addr == "" {
		return work(ctx)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Metrics server started", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		return work(gctx)
	})
	return g.Wait()
}
