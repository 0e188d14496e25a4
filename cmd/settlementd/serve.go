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

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/shelfmarket/purchase-settlement-go/checkout"
	"github.com/shelfmarket/purchase-settlement-go/config"
	"github.com/shelfmarket/purchase-settlement-go/reconcile"
	"github.com/shelfmarket/purchase-settlement-go/reconcile/dedup"
	"github.com/shelfmarket/purchase-settlement-go/settlement"
	"github.com/shelfmarket/purchase-settlement-go/settlement/oteladapters"
	"github.com/shelfmarket/purchase-settlement-go/settlement/postgresengine"
	"github.com/shelfmarket/purchase-settlement-go/stripegateway"
)

const (
	instrumentationName = "purchase-settlement"
	shutdownTimeout     = 10 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the settlement HTTP service",
		Long: `Run the settlement HTTP service.

Exposes POST /purchases to start a checkout and POST /webhooks/stripe for
payment provider events. Configuration is read from the environment.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := oteladapters.NewSlogBridgeLogger(instrumentationName)

	var metrics settlement.MetricsCollector
	var tracing settlement.TracingCollector

	if cfg.OTLPEndpoint != "" {
		providers, providerErr := config.NewObservabilityProviders(ctx, cfg.OTLPEndpoint, Version)
		if providerErr != nil {
			return fmt.Errorf("observability setup: %w", providerErr)
		}
		defer func() { _ = providers.Shutdown() }()

		metrics = oteladapters.NewMetricsCollector(otel.Meter(instrumentationName))
		tracing = oteladapters.NewTracingCollector(otel.Tracer(instrumentationName))
	}

	pool, err := config.NewPGXPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	feeCalculator, err := settlement.NewFeeCalculator(cfg.FeePercentage)
	if err != nil {
		return err
	}

	storeOptions := []postgresengine.Option{postgresengine.WithContextualLogger(logger)}
	if metrics != nil {
		storeOptions = append(storeOptions, postgresengine.WithMetrics(metrics))
	}
	if tracing != nil {
		storeOptions = append(storeOptions, postgresengine.WithTracing(tracing))
	}

	store, err := postgresengine.NewPurchaseStoreFromPGXPool(pool, feeCalculator, storeOptions...)
	if err != nil {
		return err
	}

	dedupStore, err := dedup.NewBoltStore(cfg.DedupPath)
	if err != nil {
		return fmt.Errorf("open dedup store: %w", err)
	}
	defer func() { _ = dedupStore.Close() }()

	reconcilerOptions := []reconcile.Option{reconcile.WithContextualLogger(logger)}
	if metrics != nil {
		reconcilerOptions = append(reconcilerOptions, reconcile.WithMetrics(metrics))
	}
	reconciler := reconcile.NewHandler(store, reconcilerOptions...)

	webhookHandler := stripegateway.NewWebhookHandler(
		cfg.StripeWebhookSecret,
		reconciler,
		stripegateway.WithDedupStore(dedupStore),
		stripegateway.WithTolerance(cfg.WebhookTolerance),
		stripegateway.WithWebhookContextualLogger(logger),
	)

	checkoutHandler := checkout.NewCommandHandler(
		store,
		stripegateway.NewCheckoutClient(cfg.StripeAPIKey),
		cfg.CheckoutSuccessURL,
		cfg.CheckoutCancelURL,
		checkout.WithSessionTimeout(cfg.SessionCreateTimeout),
	)

	mux := http.NewServeMux()
	mux.Handle("/purchases", checkout.NewHTTPHandler(checkoutHandler))
	mux.Handle("/webhooks/stripe", webhookHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return serveUntilSignalled(ctx, server, logger)
}

func serveUntilSignalled(ctx context.Context, server *http.Server, logger *oteladapters.SlogBridgeLogger) error {
	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)

	go func() {
		logger.Info("settlement service listening", "addr", server.Addr)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-signalCtx.Done():
	}

	logger.Info("shutting down settlement service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return <-errCh
}
