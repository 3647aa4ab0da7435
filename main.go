package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/elmam/edge-gateway/internal/api"
	"github.com/elmam/edge-gateway/internal/api/handlers"
	"github.com/elmam/edge-gateway/internal/authz"
	"github.com/elmam/edge-gateway/internal/config"
	"github.com/elmam/edge-gateway/internal/downstream"
	"github.com/elmam/edge-gateway/internal/logger"
	"github.com/elmam/edge-gateway/internal/provision"
	"github.com/elmam/edge-gateway/internal/tracing"
	"github.com/elmam/edge-gateway/middleware"
)

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("configuration invalid")
	}

	if cfg.TracingOn {
		tp, err := tracing.InitTracing(context.Background(), tracing.Config{
			ServiceName:    "edge-gateway",
			ServiceVersion: "1.0.0",
			OTLPEndpoint:   cfg.OTLPEndpoint,
			Enabled:        true,
		})
		if err != nil {
			zlog.Warn().Err(err).Msg("tracing disabled, exporter init failed")
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	identity := downstream.NewIdentityClient(cfg.AuthURL, cfg.AdminSecret)
	graphql := downstream.NewGraphQLClient(cfg.GraphQLURL, cfg.AdminSecret)
	storage := downstream.NewStorageClient(cfg.StorageURL, cfg.AdminSecret)

	coordinator := provision.NewCoordinator(identity, graphql,
		provision.RetryPolicy{Attempts: cfg.LookupPollAttempts, Interval: cfg.LookupPollInterval},
		provision.RetryPolicy{Attempts: 1, Interval: cfg.DomainRetryDelay},
	)
	resolver := authz.NewResolver(graphql)

	var limiter *middleware.RedisRateLimiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter = middleware.NewRedisRateLimiter(rdb)
	}

	router := api.NewRouter(api.Dependencies{
		Config:    cfg,
		Provision: handlers.NewProvisionHandler(coordinator, resolver),
		Admin:     handlers.NewAdminHandler(graphql, identity, resolver),
		Storage:   handlers.NewStorageHandler(storage, resolver, cfg.ProofBucket, cfg.MaxUploadMB<<20),
		Readiness: handlers.NewReadinessHandler(
			handlers.NewHTTPReadinessChecker("auth", cfg.AuthURL+"/healthz"),
			handlers.NewHTTPReadinessChecker("graphql", strings.TrimSuffix(cfg.GraphQLURL, "/v1/graphql")+"/healthz"),
		),
		RateLimiter: limiter,
	})

	zlog.Info().Str("port", cfg.Port).Msg("edge gateway starting")
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		zlog.Fatal().Err(err).Msg("server failed")
	}
}
