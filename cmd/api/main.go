package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/The-Simomatic/Sportisimo/internal/api"
	"github.com/The-Simomatic/Sportisimo/internal/auth"
	"github.com/The-Simomatic/Sportisimo/internal/config"
	"github.com/The-Simomatic/Sportisimo/internal/dashboard"
	"github.com/The-Simomatic/Sportisimo/internal/domain"
	"github.com/The-Simomatic/Sportisimo/internal/logging"
	"github.com/The-Simomatic/Sportisimo/internal/observability"
	"github.com/The-Simomatic/Sportisimo/internal/outbox"
	persistence "github.com/The-Simomatic/Sportisimo/internal/persistence/postgres"
	"github.com/The-Simomatic/Sportisimo/internal/session"
	"github.com/The-Simomatic/Sportisimo/internal/strava"
	httptransport "github.com/The-Simomatic/Sportisimo/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger("sportisimo-api", cfg.LogLevel)

	if err := observability.InitSentry(observability.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		ServerName:  "sportisimo-api",
	}, logger); err != nil {
		logger.Error("continuing without error tracking", "error", err)
	}
	defer observability.FlushSentry(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	profiles := persistence.NewProfileRepository(pool)
	identities := persistence.NewIdentityRepository(pool)

	syncer := domain.NewSynchronizer(profiles,
		domain.WithLogger(logger.With("component", "profiles")),
		domain.WithDefaults(cfg.ProfileDefaults),
	)

	providerOpts := []auth.Option{
		auth.WithLogger(logger.With("component", "auth")),
		auth.WithCodeTTL(cfg.CodeTTL),
	}
	oauthCfg := auth.OAuthConfig{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		AuthURL:      cfg.OAuthAuthURL,
		TokenURL:     cfg.OAuthTokenURL,
		UserInfoURL:  cfg.OAuthUserInfoURL,
		RedirectURL:  cfg.BaseURL() + "/",
	}
	if oauthCfg.Enabled() {
		providerOpts = append(providerOpts, auth.WithOAuth(auth.NewOAuthClient(oauthCfg, &http.Client{Timeout: 10 * time.Second})))
	} else {
		logger.Info("oauth sign-in disabled")
	}
	provider := auth.NewProvider(identities, auth.TokenConfig{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.SessionTTL,
	}, providerOpts...)

	reconciler := session.NewReconciler(provider, session.WithLogger(logger.With("component", "session")))

	var activities dashboard.ActivityProvider
	if cfg.StravaClientID != "" {
		activities = strava.NewClient(strava.Config{
			ClientID:     cfg.StravaClientID,
			ClientSecret: cfg.StravaClientSecret,
			TokenURL:     cfg.StravaTokenURL,
			APIURL:       cfg.StravaAPIURL,
		}, &http.Client{Timeout: 15 * time.Second})
	} else {
		logger.Info("strava client not configured - activity sections disabled")
	}
	dashCfg := dashboard.DefaultConfig()
	dashCfg.Window = cfg.ActivityWindow
	dashCfg.Limit = cfg.ActivityFetchLimit
	dashCfg.FallbackRefreshToken = cfg.StravaRefreshToken
	dashboards := dashboard.NewService(syncer, activities, dashCfg, dashboard.WithLogger(logger.With("component", "dashboard")))

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
		outbox.WithLogger(logger.With("component", "outbox")))

	go dispatcher.Start(ctx)

	handler := api.NewHandler(provider, reconciler, syncer, dashboards,
		api.WithLogger(logger),
		api.WithSecureCookies(cfg.SecureCookies()),
	)
	router := api.NewRouter(handler, session.NewMiddleware(reconciler, cfg.SecureCookies()))

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), router)
	httptransport.Serve(server, "api", logger)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownCh
	logger.Info("shutdown requested")
	cancel()

	httptransport.Shutdown(server, 15*time.Second, logger)
	dispatcher.Wait()
}
