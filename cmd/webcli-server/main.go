// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// webcli-server serves the webcli event protocol: a WebSocket endpoint
// that runs a fixed set of file-system commands on behalf of
// authenticated browser and terminal clients, plus the Google login
// routes that mint their credentials.
//
// Configuration comes from an optional YAML or JSONC file (--config or
// $WEBCLI_CONFIG) overridden by environment variables; see lib/config.
// When a file is given it is watched, and changes to the allowed
// origins and the session idle timeout apply without a restart.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/bureau-foundation/webcli/dispatch"
	"github.com/bureau-foundation/webcli/gateway"
	"github.com/bureau-foundation/webcli/lib/clock"
	"github.com/bureau-foundation/webcli/lib/config"
	"github.com/bureau-foundation/webcli/lib/credential"
	"github.com/bureau-foundation/webcli/lib/idp"
	"github.com/bureau-foundation/webcli/lib/process"
	"github.com/bureau-foundation/webcli/lib/service"
	"github.com/bureau-foundation/webcli/lib/version"
	"github.com/bureau-foundation/webcli/session"
)

// blacklistCleanupInterval is how often expired revocations are
// dropped.
const blacklistCleanupInterval = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("webcli-server", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "configuration file, YAML or JSONC (default: $WEBCLI_CONFIG)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("webcli-server %s\n", version.Info())
		return nil
	}
	if configPath == "" {
		configPath = os.Getenv("WEBCLI_CONFIG")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if cfg.UsesInsecureSecret() {
		logger.Warn("signing credentials with the built-in default secret; set CREDENTIAL_SECRET or auth.secret_file")
	}
	if cfg.PermissiveOrigins() {
		logger.Warn("accepting WebSocket handshakes from any origin")
	}

	keys, err := deriveKeys(cfg)
	if err != nil {
		return err
	}

	clk := clock.Real()
	blacklist := credential.NewBlacklist()
	validator := credential.NewValidator(credential.ValidatorConfig{
		VerifyingKey: keys.VerifyingKey,
		Blacklist:    blacklist,
		Clock:        clk,
		Logger:       logger.With("component", "credential"),
	})
	issuer := credential.NewIssuer(keys.SigningKey, cfg.CredentialTTL(), clk)

	var provider *idp.Provider
	if cfg.OAuthEnabled() {
		provider, err = idp.New(idp.Config{
			ClientID:     cfg.Auth.GoogleClientID,
			ClientSecret: cfg.Auth.GoogleClientSecret,
			RedirectURL:  cfg.CallbackURL(),
			StateKey:     keys.StateKey,
			Clock:        clk,
		})
		if err != nil {
			return fmt.Errorf("configuring google login: %w", err)
		}
	} else {
		logger.Info("google login disabled: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are not both set")
	}

	registry := session.NewRegistry(session.RegistryConfig{
		DefaultWorkingDirectory: cfg.Session.DefaultWorkingDirectory,
		Clock:                   clk,
		Logger:                  logger.With("component", "session"),
	})
	reaper := session.NewReaper(session.ReaperConfig{
		Registry:    registry,
		IdleTimeout: cfg.IdleTimeout(),
		Interval:    cfg.ReapInterval(),
		Clock:       clk,
		Logger:      logger.With("component", "reaper"),
	})
	dispatcher := dispatch.New(dispatch.Config{
		Clock:  clk,
		Logger: logger.With("component", "dispatch"),
	})

	gatewayServer := gateway.NewServer(gateway.Config{
		Validator:      validator,
		Registry:       registry,
		Dispatcher:     dispatcher,
		Issuer:         issuer,
		Provider:       provider,
		Blacklist:      blacklist,
		FrontendURL:    cfg.Server.FrontendURL,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger.With("component", "gateway"),
	})
	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address:    cfg.ListenAddress(),
		Handler:    gatewayServer.Handler(),
		OnShutdown: gatewayServer.Close,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return httpServer.Serve(ctx) })
	group.Go(func() error { return reaper.Run(ctx) })
	group.Go(func() error { return cleanBlacklist(ctx, blacklist, clk, logger) })

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, logger.With("component", "config"), func(next *config.Config) {
			gatewayServer.SetAllowedOrigins(next.Server.AllowedOrigins)
			reaper.SetIdleTimeout(next.IdleTimeout())
		})
		if err != nil {
			stop()
			group.Wait()
			return err
		}
		group.Go(func() error { return watcher.Run(ctx) })
	}

	logger.Info("webcli server starting",
		"version", version.Short(),
		"environment", cfg.Environment,
		"address", cfg.ListenAddress(),
		"default_working_directory", registry.DefaultWorkingDirectory(),
		"idle_timeout", cfg.IdleTimeout(),
	)

	err = group.Wait()
	gatewayServer.Close()
	logger.Info("webcli server stopped")
	return err
}

// newLogger builds the process logger: text on a terminal, JSON
// otherwise, unless the config forces a format.
func newLogger(logConfig config.LogConfig) (*slog.Logger, error) {
	level, err := config.ParseLevel(logConfig.Level)
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}

	text := term.IsTerminal(int(os.Stderr.Fd()))
	switch logConfig.Format {
	case "text":
		text = true
	case "json":
		text = false
	}

	var handler slog.Handler
	if text {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler), nil
}

// deriveKeys reads the signing secret into locked memory, derives the
// key set, and releases the secret.
func deriveKeys(cfg *config.Config) (*credential.KeySet, error) {
	buffer, err := cfg.LoadSecret()
	if err != nil {
		return nil, fmt.Errorf("loading credential secret: %w", err)
	}
	defer buffer.Close()

	keys, err := credential.DeriveKeySet(buffer.Bytes())
	if err != nil {
		return nil, fmt.Errorf("deriving credential keys: %w", err)
	}
	return keys, nil
}

func cleanBlacklist(ctx context.Context, blacklist *credential.Blacklist, clk clock.Clock, logger *slog.Logger) error {
	ticker := clk.NewTicker(blacklistCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if removed := blacklist.Cleanup(now); removed > 0 {
				logger.Debug("expired revocations dropped", "count", removed)
			}
		}
	}
}
