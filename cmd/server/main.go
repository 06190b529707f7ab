package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/chess-relay/internal/archive"
	"github.com/DoyleJ11/chess-relay/internal/config"
	"github.com/DoyleJ11/chess-relay/internal/gateway"
	"github.com/DoyleJ11/chess-relay/internal/httpapi"
	"github.com/DoyleJ11/chess-relay/internal/hub"
	"github.com/DoyleJ11/chess-relay/internal/logging"
	"github.com/DoyleJ11/chess-relay/internal/session"
	"github.com/DoyleJ11/chess-relay/internal/supervisor"
	"github.com/DoyleJ11/chess-relay/internal/ws"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const archiveSaveTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) (err error) {
	recorder, closeArchive, err := openArchive(cfg, log.Named("archive"))
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeArchive()) }()

	store := session.NewStore(log.Named("store"))
	h := hub.NewHub(context.Background(), store, log.Named("hub"), cfg.HubInboxSize)
	sup := supervisor.New(store, h, recorder, cfg.GracePeriod, log.Named("supervisor"))
	gw := gateway.New(store, sup, h, log.Named("gateway"))

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Gateway:        gw,
			Hub:            h,
			AllowedOrigins: cfg.AllowedOrigins,
			WS: ws.Options{
				OriginPatterns:  originPatterns(cfg.AllowedOrigins),
				OutboxSize:      cfg.OutboxSize,
				PingInterval:    cfg.PingInterval,
				WriteTimeout:    cfg.WriteTimeout,
				MaxMessageBytes: cfg.MaxMessageBytes,
			},
			Log: log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr), zap.Duration("grace_period", cfg.GracePeriod))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		serr := srv.Shutdown(shutdownCtx)

		// No grace timer may fire once shutdown has begun.
		sup.Stop()
		h.Shutdown()
		return serr
	})

	return g.Wait()
}

// openArchive returns the recorder for finished matches and its closer.
// Without a database the recorder discards everything.
func openArchive(cfg config.Config, log *zap.Logger) (archive.Recorder, func() error, error) {
	if cfg.DatabaseURL == "" {
		log.Info("results archive disabled")
		return archive.Nop{}, func() error { return nil }, nil
	}

	db, err := archive.Open(cfg.DatabaseURL, log)
	if err != nil {
		return nil, nil, err
	}
	w := archive.NewWriter(archive.GormSaver(db), log, cfg.ArchiveQueueSize, archiveSaveTimeout)
	return w, closeAll(w, db), nil
}

func closeAll(w *archive.Writer, db *gorm.DB) func() error {
	return func() error {
		return multierr.Combine(w.Close(), archive.CloseDB(db))
	}
}

// originPatterns turns allowed origins into the host patterns the websocket
// accept check expects.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		patterns = append(patterns, o)
	}
	return patterns
}
