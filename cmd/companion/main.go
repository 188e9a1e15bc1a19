package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/term"

	"github.com/vango-go/vai-companion/internal/dotenv"
	"github.com/vango-go/vai-companion/pkg/companion/config"
)

type companionDeps struct {
	loadConfig   func() (config.Config, error)
	newApp       func(context.Context, config.Config, *slog.Logger) (*app, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
	stdin        *os.File
	stdout       io.Writer
}

func defaultCompanionDeps() companionDeps {
	return companionDeps{
		loadConfig: config.LoadFromEnv,
		newApp:     newApp,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func initSentry(dsn string, logger *slog.Logger) func() {
	if dsn == "" {
		return func() {}
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: envOrDefault("COMPANION_ENV", "development"),
	})
	if err != nil {
		logger.Warn("sentry init failed", "error", err)
		return func() {}
	}
	logger.Info("sentry initialized")
	return func() { sentry.Flush(2 * time.Second) }
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func runCompanion(ctx context.Context, stderr io.Writer, deps companionDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.newApp == nil {
		return errors.New("missing newApp dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg, stderr)

	flush := initSentry(cfg.SentryDSN, logger)
	defer flush()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := deps.newApp(ctx, cfg, logger)
	if err != nil {
		sentry.CaptureException(err)
		return fmt.Errorf("init: %w", err)
	}
	defer a.Close()

	interactive := deps.stdin != nil && term.IsTerminal(int(deps.stdin.Fd()))
	var console io.Writer
	if interactive {
		console = deps.stdout
	}
	a.run(ctx, console)

	listenErrCh := make(chan error, 1)
	var httpSrv *http.Server
	if cfg.Addr != "" {
		httpSrv = buildHTTPServer(cfg, a.routes())
		logger.Info("serving event feed", "addr", cfg.Addr)
		go func() {
			err := httpSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				listenErrCh <- err
				return
			}
			listenErrCh <- nil
		}()
	}

	consoleDone := make(chan struct{})
	if interactive {
		go func() {
			defer close(consoleDone)
			runConsole(ctx, deps.stdin, deps.stdout, a.ctrl, a.asker)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	case <-consoleDone:
		logger.Info("console closed")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	a.ctrl.Stop()

	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		if err := <-listenErrCh; err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	logger.Info("companion stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps companionDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}

	if _, err := dotenv.LoadFiles(".env.local", ".env"); err != nil {
		fmt.Fprintf(stderr, "companion: %v\n", err)
		return 1
	}

	if err := runCompanion(ctx, stderr, deps); err != nil {
		fmt.Fprintf(stderr, "companion: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultCompanionDeps()))
}
