// Package main is the entry point for the delegation API server.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/errgroup"

	"scrumdeck/internal/api"
	"scrumdeck/internal/config"
	internaldb "scrumdeck/internal/db"
	"scrumdeck/internal/db/repository"
	"scrumdeck/internal/domain"
	"scrumdeck/internal/middleware"
	"scrumdeck/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = config.LoadDotEnv(".env")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.DBPath, 4)
	if err != nil {
		return err
	}
	defer writeDB.Close() //nolint:errcheck
	defer readDB.Close()  //nolint:errcheck

	if err := internaldb.RunMigrations(writeDB); err != nil {
		return err
	}

	store := repository.NewDelegationRepo(writeDB)
	sprintRepo := repository.NewSprintRepo(writeDB)
	auditRepo := repository.NewAuditRepo(writeDB)
	apiKeyRepo := repository.NewAPIKeyRepo(writeDB)

	audit := service.NewAuditTrail(auditRepo, logger)
	engine := service.NewAuthorizationEngine(store, domain.DefaultCatalog(), service.NewScopeResolver(sprintRepo), audit, logger)
	engine.SetRetention(cfg.Retention)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bootstrapAPIKey(ctx, apiKeyRepo, logger); err != nil {
		return err
	}

	sweeper := service.NewExpirySweeper(store, audit, logger)
	if cfg.SweepSchedule != "" {
		if err := sweeper.Start(cfg.SweepSchedule); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	handler := api.NewHandler(engine, sprintRepo, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", cfg.Auth.APIKeyHeader, "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.RateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(middleware.AuthConfig{
			JWTSecret:    []byte(cfg.Auth.JWTSecret),
			NameClaim:    cfg.Auth.NameClaim,
			APIKeys:      apiKeyLookup(cfg, apiKeyRepo),
			APIKeyHeader: cfg.Auth.APIKeyHeader,
		}))
		r.Mount("/", handler.Routes())
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http api listening", "addr", cfg.ListenAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// apiKeyLookup returns nil when API key auth is disabled, which the auth
// middleware treats as "JWT only".
func apiKeyLookup(cfg *config.Config, repo *repository.APIKeyRepo) middleware.APIKeyLookup {
	if !cfg.Auth.APIKeyEnabled {
		return nil
	}
	return repo
}

// bootstrapAPIKey registers an admin API key from BOOTSTRAP_API_KEY so a
// fresh deployment has a way in. Idempotent; the key material itself is
// never stored, only its hash.
func bootstrapAPIKey(ctx context.Context, repo *repository.APIKeyRepo, logger *slog.Logger) error {
	key := os.Getenv("BOOTSTRAP_API_KEY")
	if key == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(key))
	hash := hex.EncodeToString(sum[:])

	if _, err := repo.LookupPrincipalByAPIKeyHash(ctx, hash); err == nil {
		return nil
	}
	if err := repo.InsertKey(ctx, hash, "bootstrap-admin", true); err != nil {
		return err
	}
	logger.Info("bootstrap admin api key registered")
	return nil
}
