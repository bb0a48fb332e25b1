// ABOUTME: Entry point for fake-planner, a local stand-in for the dialogue service
// ABOUTME: Serves the chat API with canned replies and mints client tokens

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-planner/internal/auth"
	"github.com/2389/coven-planner/internal/config"
	"github.com/2389/coven-planner/internal/dedupe"
	"github.com/2389/coven-planner/internal/observe"
	"github.com/2389/coven-planner/internal/planner"
)

// version is set at build time.
var version = "dev"

const banner = `
  __       _                    _
 / _| __ _| | _____       _ __ | | __ _ _ __  _ __   ___ _ __
| |_ / _' | |/ / _ \_____| '_ \| |/ _' | '_ \| '_ \ / _ \ '__|
|  _| (_| |   <  __/_____| |_) | | (_| | | | | | | |  __/ |
|_|  \__,_|_|\_\___|     | .__/|_|\__,_|_| |_|_| |_|\___|_|
                         |_|
`

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: fake-planner <command> [flags]")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                  Start the fake dialogue service")
		fmt.Println("  token --user ID [--ttl] Mint a client token (requires planner.jwt_secret)")
		fmt.Println("  health                 Check service health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	case "health":
		err = runHealth(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig parses fs against args and loads the config it names.
func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, string, error) {
	configPath := fs.String("config", "", "Config file (default $XDG_CONFIG_HOME/coven-planner/config.yaml)")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	cfg, path, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func runServe(ctx context.Context, args []string) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig(flag.NewFlagSet("serve", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "fake-planner",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := shutdownOTel(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	sessions := planner.NewSessions(cfg.Planner.SessionTTL, logger)
	defer sessions.Close()

	idem := dedupe.New(cfg.Planner.IdempotencyTTL, cfg.Planner.IdempotencyMax)
	defer idem.Close()

	opts := planner.Options{
		Sessions:    sessions,
		Idempotency: idem,
		Metrics:     metrics,
		MetricsPath: cfg.Metrics.Path,
		ReplyDelay:  cfg.Planner.ReplyDelay,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsHandler = promhttp.Handler()
	}
	if cfg.Planner.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.Planner.JWTSecret))
		if err != nil {
			return fmt.Errorf("planner.jwt_secret: %w", err)
		}
		opts.Verifier = verifier
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	green.Print("    ▶ ")
	if configPath == "" {
		fmt.Println("Config:    (defaults)")
	} else {
		fmt.Printf("Config:    %s\n", configPath)
	}
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      http://%s%s\n", cfg.Planner.Addr, planner.APIPrefix)
	green.Print("    ▶ ")
	fmt.Printf("Sessions:  ttl %s\n", cfg.Planner.SessionTTL)
	green.Print("    ▶ ")
	fmt.Print("Auth:      ")
	if opts.Verifier != nil {
		fmt.Println("jwt")
	} else {
		yellow.Println("disabled")
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}
	fmt.Println()

	srv := &http.Server{
		Addr:              cfg.Planner.Addr,
		Handler:           planner.NewServer(opts, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting fake-planner", "addr", cfg.Planner.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sessions.RunJanitor(gctx, time.Minute)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	user := fs.String("user", "", "User id the token is valid for (\"*\" for any)")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "Token lifetime, 0 for no expiry")
	cfg, _, err := loadConfig(fs, args)
	if err != nil {
		return err
	}

	if *user == "" {
		return errors.New("--user is required")
	}
	if cfg.Planner.JWTSecret == "" {
		return errors.New("planner.jwt_secret is not configured")
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Planner.JWTSecret))
	if err != nil {
		return err
	}
	token, err := verifier.Generate(*user, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func runHealth(ctx context.Context, args []string) error {
	cfg, _, err := loadConfig(flag.NewFlagSet("health", flag.ContinueOnError), args)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/health", cfg.Planner.Addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	return observe.NewLogger(os.Stdout, cfg.Level, cfg.Format)
}
