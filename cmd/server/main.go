package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/greenpoint/recycling-ledger/internal/api"
	"github.com/greenpoint/recycling-ledger/internal/api/metrics"
	"github.com/greenpoint/recycling-ledger/internal/core/service"
	"github.com/greenpoint/recycling-ledger/internal/infrastructure/config"
	"github.com/greenpoint/recycling-ledger/internal/infrastructure/queue"
	"github.com/greenpoint/recycling-ledger/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

// @title        Recycling Ledger API
// @version      1.0
// @description  Registers recyclers, records recycling scans and awards points per material.
// @BasePath     /
func main() {
	cfg := config.Load(zerolog.New(os.Stderr).With().Timestamp().Logger())

	logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "recycling-ledger",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log := logger.Get()
		log.Fatal().Err(err).Msg("server stopped with error")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	locker, err := openLocker(ctx, cfg, store, log)
	if err != nil {
		return err
	}
	defer locker.close()

	rawRates, err := cfg.Ledger.Rates()
	if err != nil {
		return err
	}
	rates, err := service.NewRateTable(rawRates)
	if err != nil {
		return err
	}

	ledger := metrics.NewInstrumentedLedger(service.NewLedgerService(
		store.ledger,
		locker.locker,
		rates,
		service.NewDuplicateGuard(cfg.Ledger.DuplicateWindow()),
		log,
		service.WithOperationTimeout(cfg.Ledger.OperationTimeout),
	))
	users := metrics.NewInstrumentedUsers(service.NewUserService(store.users, cfg.Ledger.PhoneLength, log))

	// Workers outlive ctx so that queued scans are drained on shutdown.
	dispatcher := queue.NewDispatcher(cfg.Ledger.IngestWorkers, ledger, log, queue.WithDepthGauge(metrics.IngestQueueDepth))
	dispatcher.Start(context.Background())

	e := api.NewRouter(api.Dependencies{
		Users:      users,
		Ledger:     ledger,
		Dispatcher: dispatcher,
		Readiness:  store.readiness,
		Log:        log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("store", cfg.StoreDriver).
			Str("lock", cfg.LockDriver).
			Strs("materials", materialNames(rates)).
			Msg("starting HTTP server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			dispatcher.Close()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	dispatcher.Close()
	log.Info().Msg("server stopped")
	return nil
}

func materialNames(rates *service.RateTable) []string {
	ms := rates.Materials()
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.String()
	}
	return names
}
