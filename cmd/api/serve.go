package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fitstack/fitstack-enrollments/config"
	"github.com/fitstack/fitstack-enrollments/internal/adapters/coreapi"
	"github.com/fitstack/fitstack-enrollments/internal/adapters/mercadopago"
	"github.com/fitstack/fitstack-enrollments/internal/adapters/postgres"
	"github.com/fitstack/fitstack-enrollments/internal/core/service"
	"github.com/fitstack/fitstack-enrollments/internal/handlers"
	"github.com/fitstack/fitstack-enrollments/internal/retry"
)

func runServe(ctx context.Context, configPath string) error {
	log.Println("Starting FitStack Enrollments Service...")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	log.Printf("Configuration loaded: Port=%s, CoreURL=%s", cfg.Server.Port, cfg.Core.BaseURL)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Wire up dependencies (manual dependency injection)
	//
	// Infrastructure Layer
	pool, err := postgres.NewPool(ctx, postgres.Config{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	store := postgres.NewStore(pool)
	ledger := postgres.NewLedger(pool)
	coreClient := coreapi.NewClient(cfg.Core.BaseURL, cfg.Core.APIKey, cfg.Core.Timeout)
	gateway, err := mercadopago.NewAdapter(mercadopago.Options{
		AccessToken:     cfg.MercadoPago.AccessToken,
		NotificationURL: cfg.MercadoPago.NotificationURL,
		SuccessURL:      cfg.MercadoPago.SuccessURL,
		FailureURL:      cfg.MercadoPago.FailureURL,
		PendingURL:      cfg.MercadoPago.PendingURL,
		UseSandbox:      cfg.MercadoPago.UseSandbox,
	})
	if err != nil {
		return err
	}
	signatures := mercadopago.NewWebhookValidator(cfg.MercadoPago.WebhookSecret, cfg.MercadoPago.SignatureTolerance)

	// Service Layer
	enrollments := service.NewEnrollmentService(store, gateway, service.NewRequestValidator(), service.EnrollmentOptions{
		MembershipFeeCents: cfg.Membership.FeeCents,
		MembershipCurrency: cfg.Membership.Currency,
		SessionTimeout:     cfg.MercadoPago.Timeout,
	})
	notifier := service.NewBestEffortNotifier(coreClient, store, cfg.Core.Timeout)
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.Reconcile.MaxAttempts
	policy.Delay = cfg.Reconcile.Delay
	policy.MaxDelay = cfg.Reconcile.MaxDelay
	reconciler := service.NewReconciler(store, notifier, service.ReconcilerOptions{
		Retry:            policy,
		Timeout:          cfg.Reconcile.Timeout,
		MembershipMonths: cfg.Membership.Months,
	})
	webhooks := service.NewWebhookService(gateway, signatures, ledger, reconciler)

	// API Layer
	handler := handlers.NewEnrollmentHandler(enrollments, webhooks, store)
	router := handlers.SetupRouter(handler, cfg.Server.GinMode, cfg.Security.ServiceAPIKey)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
