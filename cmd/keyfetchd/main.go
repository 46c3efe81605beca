package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/keyfetch/pkg/client"
	"github.com/Sternrassler/keyfetch/pkg/config"
	"github.com/Sternrassler/keyfetch/pkg/keys"
	"github.com/Sternrassler/keyfetch/pkg/logging"
	"github.com/Sternrassler/keyfetch/pkg/scheduler"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	purge := flag.Bool("purge", false, "delete every cached key and exit")
	flag.Parse()

	if err := run(*purge); err != nil {
		log.Fatal().Err(err).Msg("keyfetchd failed")
	}
}

func run(purge bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.LoggingConfig())
	logger := logging.NewLogger("keyfetchd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close store")
		}
	}()
	logger.Info().Str("driver", cfg.StoreDriver).Msg("Key store opened")

	if purge {
		deleted, err := store.DeleteAllKeys(ctx)
		if err != nil {
			return fmt.Errorf("purge keys: %w", err)
		}
		logger.Info().Int("deleted", deleted).Msg("Purged key store")
		return nil
	}

	httpClient, err := client.New(cfg.ClientConfig())
	if err != nil {
		return fmt.Errorf("create http client: %w", err)
	}

	manager, err := keys.NewManager(keys.ManagerConfig{
		Fetcher:            keys.NewFetcher(httpClient, cfg.FetcherConfig()),
		Store:              store,
		Executor:           keys.NewExecutor(cfg.MaxConcurrency),
		ForcedFetchTimeout: cfg.ForcedFetchTimeout,
	})
	if err != nil {
		return fmt.Errorf("create key manager: %w", err)
	}
	defer manager.Wait()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newMux(manager, store, cfg.KeyCount),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.Periodic{
			Name:       "fetch-encryption-keys",
			Interval:   cfg.FetchInterval,
			RunOnStart: true,
			Job:        scheduledFetch(manager, keys.KeyTypeEncryption),
		}.Run(gctx)
	})

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info().Msg("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// scheduledFetch returns a job that fetches, persists and evicts keys.
func scheduledFetch(manager *keys.Manager, keyType keys.KeyType) scheduler.Job {
	return func(ctx context.Context) error {
		select {
		case res := <-manager.FetchAndPersistActiveKeys(ctx, keyType, true):
			return res.Err
		case <-ctx.Done():
			return nil
		}
	}
}
