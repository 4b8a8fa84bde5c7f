package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"golang.org/x/sync/errgroup"

	"github.com/platewatch/speeding-violation-ledger/internal/api"
	"github.com/platewatch/speeding-violation-ledger/internal/config"
	"github.com/platewatch/speeding-violation-ledger/internal/detector"
	kafkaevents "github.com/platewatch/speeding-violation-ledger/internal/events/kafka"
	interfaces "github.com/platewatch/speeding-violation-ledger/internal/interfaces"
	"github.com/platewatch/speeding-violation-ledger/internal/ledger"
	"github.com/platewatch/speeding-violation-ledger/internal/poller"
	"github.com/platewatch/speeding-violation-ledger/internal/storage/memory"
	"github.com/platewatch/speeding-violation-ledger/internal/storage/postgres"
	"github.com/platewatch/speeding-violation-ledger/internal/storage/sqlite"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open store", "backend", cfg.StoreBackend, "err", err)
		os.Exit(1)
	}
	defer closeStore()
	logger.Info("store ready", "backend", cfg.StoreBackend)

	var publisher interfaces.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafkaevents.NewPublisher(cfg.KafkaBrokers)
		defer kp.Close()
		publisher = kp
		logger.Info("kafka publisher ready", "brokers", cfg.KafkaBrokers)
	}

	eng := ledger.NewLedger(store, ledger.Config{
		Buffer:         cfg.DebounceBuffer,
		DefaultFine:    cfg.DefaultFine,
		PlatePattern:   cfg.PlatePattern,
		Publisher:      publisher,
		Logger:         logger.With("component", "ledger"),
		ViolationTopic: cfg.ViolationTopic,
		PaymentTopic:   cfg.PaymentTopic,
	})
	det := detector.NewChain(logger.With("component", "detector"), cfg.PlatePattern)

	router := api.NewRouter(eng, det, logger.With("component", "api"))
	// the HTML frontend is served from elsewhere; allow it to call the API
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.LoggingHandler(os.Stdout, cors(router)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.PollerEnabled() {
		p, err := poller.New(poller.Config{
			URL:      cfg.CameraURL,
			Interval: cfg.CameraInterval,
		}, det, eng, logger)
		if err != nil {
			logger.Error("failed to start poller", "err", err)
			os.Exit(1)
		}
		g.Go(func() error { return p.Run(ctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func openStore(cfg config.Config) (interfaces.LedgerStore, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return memory.NewMemoryLedgerStore(), func() {}, nil
	case config.BackendPostgres:
		st, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	default:
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	}
}
