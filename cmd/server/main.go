package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/consultbridge/ConsultBridge-Backend/internal/config"
	"github.com/consultbridge/ConsultBridge-Backend/internal/handlers"
	"github.com/consultbridge/ConsultBridge-Backend/internal/providers"
	"github.com/consultbridge/ConsultBridge-Backend/internal/repositories"
	"github.com/consultbridge/ConsultBridge-Backend/internal/routes"
	"github.com/consultbridge/ConsultBridge-Backend/internal/services"
	"github.com/consultbridge/ConsultBridge-Backend/internal/token"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("database unreachable")
	}

	issuer, err := token.NewIssuer(cfg.TokenSigningKey, cfg.TokenKeyID, cfg.TokenLifetime, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("token issuer setup failed")
	}

	roomClient, err := providers.NewRoomClient(cfg.RoomProviderBaseURL, cfg.RoomProviderAPIKey, cfg.ProviderTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("room provider setup failed")
	}

	var bookingClient providers.BookingProvider
	if cfg.BookingProviderBaseURL != "" && cfg.BookingRefreshToken != "" {
		bookingClient, err = providers.NewBookingClient(cfg.BookingProviderBaseURL, cfg.BookingRefreshToken, cfg.ProviderTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("booking provider setup failed")
		}
	}

	sessionRepo := repositories.NewSessionRepository(db)
	creditRepo := repositories.NewCreditRepository(db)

	orchestrator := services.NewSessionOrchestrator(sessionRepo, creditRepo, roomClient, bookingClient, issuer, log, nil)
	finalizer := services.NewSessionFinalizer(sessionRepo, roomClient, log, nil)
	reconciler := services.NewRecordingReconciler(sessionRepo, roomClient, cfg.ReconcileWindow, log, nil)
	access := services.NewSessionAccess(sessionRepo, issuer, log)

	sessionHandler := handlers.NewSessionHandler(orchestrator, finalizer, access, log)
	recordingHandler := handlers.NewRecordingHandler(reconciler, log)
	paymentHandler := handlers.NewPaymentHandler(creditRepo, cfg.RazorpayWebhookSecret, log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	routes.RegisterPublicEndpoints(router, paymentHandler)
	routes.RegisterProtectedEndpoints(router, sessionHandler, recordingHandler, cfg.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runReconcileLoop(ctx, reconciler, cfg.ReconcileInterval, log)
	go runNoShowSweep(ctx, finalizer, cfg.NoShowInterval, log)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// runReconcileLoop runs periodic recording reconciliation until the
// process context is cancelled.
func runReconcileLoop(ctx context.Context, reconciler *services.RecordingReconciler, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, interval)
			if _, err := reconciler.Sync(runCtx); err != nil {
				log.Error().Err(err).Msg("periodic recording sync failed")
			}
			cancel()
		}
	}
}

// runNoShowSweep periodically moves stale scheduled sessions to
// no_show so nothing lingers in a pre-join state forever.
func runNoShowSweep(ctx context.Context, finalizer *services.SessionFinalizer, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if _, err := finalizer.SweepNoShows(runCtx); err != nil {
				log.Error().Err(err).Msg("no-show sweep failed")
			}
			cancel()
		}
	}
}
