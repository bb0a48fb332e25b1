// ABOUTME: Terminal client for chatting with the dialogue service
// ABOUTME: Wires config, auth, transport and the mutation coordinator into a readline loop

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-planner/internal/auth"
	"github.com/2389/coven-planner/internal/config"
	"github.com/2389/coven-planner/internal/conversation"
	"github.com/2389/coven-planner/internal/observe"
	"github.com/2389/coven-planner/internal/render"
	"github.com/2389/coven-planner/internal/store"
	"github.com/2389/coven-planner/internal/transport"
)

// version is set at build time.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Config file (default $XDG_CONFIG_HOME/coven-planner/config.yaml)")
	user := flag.String("user", "", "User id for the conversation (overrides session.user_id)")
	server := flag.String("server", "", "Dialogue service base URL (overrides service.base_url)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *user, *server); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, configPath, user, server string) error {
	cfg, _, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if server != "" {
		cfg.Service.BaseURL = server
	}
	if user != "" {
		cfg.Session.UserID = user
	}

	logger := setupLogger(cfg.Logging)

	token, err := auth.ResolveToken(auth.TokenSource{
		Token:     cfg.Auth.Token,
		TokenFile: cfg.Auth.TokenFile,
	})
	if err != nil {
		return fmt.Errorf("resolving token: %w", err)
	}

	client := transport.NewHTTPClient(transport.HTTPConfig{
		BaseURL: cfg.Service.BaseURL,
		Token:   token,
		Timeout: cfg.Service.Timeout,
	}, logger)

	tel, err := startTelemetry(ctx, cfg.Metrics, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()
	client.SetMetrics(tel.metrics)

	st := store.New(logger)
	defer st.Close()

	coord := conversation.New(st, client, logger)
	coord.SetMetrics(tel.metrics)

	r := newREPL(os.Stdin, os.Stdout, st, coord, render.New(render.Options{Color: !color.NoColor}))
	coord.SetFailureHandler(r.rememberFailure)

	bold := color.New(color.Bold)
	gray := color.New(color.FgHiBlack)
	bold.Print("coven-planner")
	fmt.Printf(" connected to %s\n", cfg.Service.BaseURL)
	if token != "" {
		gray.Println("Auth: JWT token configured")
	} else {
		gray.Printf("Auth: none (set %s for authentication)\n", auth.EnvToken)
	}
	if tel.addr != "" {
		gray.Printf("Metrics: http://%s%s\n", tel.addr, cfg.Metrics.Path)
	}
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	return r.run(ctx, cfg.Session.UserID)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	// Logs go to stderr so they never interleave with the transcript.
	logger := observe.NewLogger(os.Stderr, cfg.Level, cfg.Format)
	slog.SetDefault(logger)
	return logger
}
