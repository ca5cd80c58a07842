package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/age-assertion-service/internal/config"
	"github.com/age-assertion-service/internal/handler"
	"github.com/age-assertion-service/internal/metrics"
	"github.com/age-assertion-service/internal/middleware"
	"github.com/age-assertion-service/internal/model"
	"github.com/age-assertion-service/internal/service"
	"github.com/age-assertion-service/internal/store"
	"github.com/age-assertion-service/internal/token"
	"github.com/age-assertion-service/migrations"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	if cfg.SigningSecretWeak() {
		log.Warn().
			Int("min_bytes", config.MinSigningSecretBytes).
			Msg("ASSERTION_SIGNING_SECRET is shorter than the recommended entropy")
	}

	if err := runMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	pg := store.NewPostgres(pool)

	if cfg.BootstrapMerchantName != "" {
		if err := bootstrapMerchant(ctx, pg, cfg.BootstrapMerchantName); err != nil {
			return fmt.Errorf("bootstrap merchant: %w", err)
		}
	}

	m := metrics.New()
	minter := token.NewMinter(cfg.AssertionSigningSecret, cfg.AssertionTTL())

	apiKeySvc := service.NewAPIKeyService(pg)
	proofSvc := service.NewProofService(pg, m)
	assertionSvc := service.NewAssertionService(pg, pg, minter, m)

	merchantLimiter := middleware.NewAuthAttemptLimiter(0, 0, 0)
	verifierLimiter := middleware.NewAuthAttemptLimiter(0, 0, 0)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireJSON)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", middleware.VerifierSecretHeader},
		}))
	}

	r.Method(http.MethodGet, "/healthz", handler.NewHealthHandler(pg, pg))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Method(http.MethodGet, "/info", handler.NewInfoHandler(cfg.AssertionTTLSeconds))

		// Merchant-authenticated surface.
		r.Group(func(r chi.Router) {
			r.Use(middleware.APIKeyAuth(pg, merchantLimiter))
			r.Use(middleware.RateLimitMiddleware(rateLimiter))

			r.Method(http.MethodPost, "/proof-requests", handler.NewCreateProofRequestHandler(proofSvc))
			r.Method(http.MethodGet, "/proof-requests/{id}", handler.NewGetProofRequestHandler(proofSvc))
			r.Method(http.MethodPost, "/assertions", handler.NewIssueAssertionHandler(assertionSvc))
			r.Method(http.MethodPost, "/assertions/verify", handler.NewVerifyAssertionHandler(assertionSvc))
			r.Method(http.MethodPost, "/api-keys", handler.NewIssueAPIKeyHandler(apiKeySvc))
			r.Method(http.MethodGet, "/api-keys", handler.NewListAPIKeysHandler(apiKeySvc))
			r.Method(http.MethodDelete, "/api-keys/{id}", handler.NewRevokeAPIKeyHandler(apiKeySvc))
		})

		// System-to-system verifier channel.
		r.Group(func(r chi.Router) {
			r.Use(middleware.VerifierSecretAuth(cfg.VerifierCallbackSecret, verifierLimiter))
			r.Method(http.MethodPost, "/verifier/callback", handler.NewVerifierCallbackHandler(proofSvc))
		})
	})

	go pruneLoop(ctx, pg, cfg.UseRetention)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMigrations(databaseURL string) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// bootstrapMerchant creates the first merchant and its initial API key when
// the merchants table is empty. The plaintext key is printed to stdout once
// and nowhere else.
func bootstrapMerchant(ctx context.Context, pg *store.Postgres, name string) error {
	count, err := pg.CountMerchants(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	ref, err := randomExternalRef()
	if err != nil {
		return err
	}
	merchant := &model.Merchant{ExternalRef: ref, Name: name}
	if err := pg.CreateMerchant(ctx, merchant); err != nil {
		return err
	}

	result, err := service.NewAPIKeyService(pg).Issue(ctx, merchant.ID, "bootstrap")
	if err != nil {
		return err
	}

	log.Info().
		Str("merchant_id", merchant.ID.String()).
		Str("external_ref", merchant.ExternalRef).
		Msg("bootstrapped first merchant")
	fmt.Fprintf(os.Stdout, "bootstrap API key (shown once): %s\n", result.RawKey)
	return nil
}

func randomExternalRef() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "mch_" + hex.EncodeToString(b), nil
}

// pruneLoop periodically removes replay-ledger rows that expired before the
// retention window. Rows inside the window are kept for audit.
func pruneLoop(ctx context.Context, pg *store.Postgres, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			pruned, err := pg.PruneAssertionUses(ctx, cutoff)
			if err != nil {
				log.Error().Err(err).Msg("failed to prune assertion uses")
				continue
			}
			if pruned > 0 {
				log.Info().Int64("pruned", pruned).Msg("pruned expired assertion uses")
			}
		}
	}
}
