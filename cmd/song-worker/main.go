// main package for the song-worker
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

	"github.com/book-expert/logger"
	"github.com/book-expert/songgen/internal/cli"
	"github.com/book-expert/songgen/internal/config"
	"github.com/book-expert/songgen/internal/core"
	"github.com/book-expert/songgen/internal/download"
	"github.com/book-expert/songgen/internal/objectstore"
	"github.com/book-expert/songgen/internal/playlist"
	"github.com/book-expert/songgen/internal/suno"
	"github.com/book-expert/songgen/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	logFileName       = "song-worker"
	metricsPath       = "/metrics"
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

var errNATSNotConfigured = errors.New("nats.url and nats.song_requested_subject must be set")

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	bootstrap, err := cli.Bootstrap(logFileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)

		return err
	}
	defer bootstrap.Close()

	cfg, log := bootstrap.Config, bootstrap.Log

	if cfg.NATS.URL == "" || cfg.NATS.SongRequestedSubject == "" {
		return errNATSNotConfigured
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return err
	}

	songs, closeSongs, err := openSongStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSongs()

	stopMetrics := serveMetrics(cfg.Metrics.ListenAddr, log)
	defer stopMetrics()

	settings := worker.Settings{
		Subject:          cfg.NATS.SongRequestedSubject,
		ClipReadySubject: cfg.NATS.ClipReadySubject,
		Poll:             suno.PollPolicy{Interval: cfg.Suno.PollInterval(), Attempts: cfg.Suno.PollAttempts},
	}

	songWorker, err := worker.NewNatsWorker(
		natsConnection,
		settings,
		suno.NewClient(cfg.Suno.BaseURL, cfg.Suno.Timeout()),
		download.New(cfg, nil, log),
		store,
		songs,
		log,
	)
	if err != nil {
		return err
	}

	log.System("Song-Worker initialized. Bucket: %s, proxy: %s", store.Bucket(), cfg.Suno.BaseURL)

	return songWorker.Run(ctx)
}

// openSongStore connects to Postgres and migrates the schema. An empty DSN
// disables the ledger and yields a nil store.
func openSongStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (core.SongStore, func(), error) {
	if cfg.Database.DSN == "" {
		log.Warn("No database configured, songs will not be recorded")

		return nil, func() {}, nil
	}

	store, err := playlist.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}

	err = store.Migrate(ctx)
	if err != nil {
		_ = store.Close()

		return nil, nil, err
	}

	log.Info("Song ledger ready")

	return store, func() {
		closeErr := store.Close()
		if closeErr != nil {
			log.Error("Failed to close database: %v", closeErr)
		}
	}, nil
}

// serveMetrics exposes Prometheus metrics on addr until the returned
// function is called. An empty addr disables the endpoint.
func serveMetrics(addr string, log *logger.Logger) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info("Serving metrics on %s%s", addr, metricsPath)

		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = server.Shutdown(ctx)
	}
}
