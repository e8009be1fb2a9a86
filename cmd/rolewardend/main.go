// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/roleward/roleward/bot"
	"github.com/roleward/roleward/config"
	"github.com/roleward/roleward/lib/clock"
	"github.com/roleward/roleward/platform"
	"github.com/roleward/roleward/store"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rolewardend: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "/etc/roleward/roleward.yaml", "path to the configuration file")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("rolewardend %s\n", version)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	token, err := config.ReadSecretFile(cfg.Platform.TokenFile)
	if err != nil {
		return fmt.Errorf("platform token: %w", err)
	}
	webhookSecret, err := config.ReadSecretFile(cfg.WebhookSecretFile)
	if err != nil {
		return fmt.Errorf("webhook secret: %w", err)
	}

	realClock := clock.Real()

	policyStore, err := store.OpenStore(store.StoreConfig{
		Path:   cfg.DatabasePath,
		Clock:  realClock,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := policyStore.Close(); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	client, err := platform.NewClient(platform.ClientConfig{
		BaseURL:   cfg.Platform.BaseURL,
		Token:     token,
		BotUserID: cfg.Platform.BotUserID,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	roleward, err := bot.New(bot.Options{
		API:           client,
		Store:         policyStore,
		Clock:         realClock,
		Logger:        logger,
		Operators:     cfg.Operators,
		BlacklistPath: cfg.BlacklistPath,
		Sweeps:        cfg.Sweeps,
	})
	if err != nil {
		return err
	}

	receiver, err := platform.NewReceiver(platform.ReceiverConfig{
		Secret:  []byte(webhookSecret),
		Handler: roleward,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	startedAt := realClock.Now()
	mux := http.NewServeMux()
	mux.Handle("/gateway", receiver)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "roleward is alive, uptime %s\n",
			realClock.Now().Sub(startedAt).Round(time.Second))
	})

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.ListenAndServe()
	}()

	var sweeps sync.WaitGroup
	for _, runner := range roleward.Runners() {
		runner := runner
		sweeps.Add(1)
		go func() {
			defer sweeps.Done()
			// Run returns ctx.Err() on shutdown; anything else is a
			// programming error worth surfacing.
			if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("sweep runner exited", "error", err)
			}
		}()
	}

	logger.Info("rolewardend running",
		"version", version,
		"listen", cfg.ListenAddress,
		"database", cfg.DatabasePath,
	)

	select {
	case <-ctx.Done():
	case err := <-serverDone:
		stop()
		sweeps.Wait()
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutting down")

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		logger.Error("draining http server", "error", err)
	}
	sweeps.Wait()
	return nil
}
