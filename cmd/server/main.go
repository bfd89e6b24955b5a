package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	jwttoken "nftregistry/internal/jwt_token"
	nfthandler "nftregistry/internal/nft/handler"
	nftmetrics "nftregistry/internal/nft/metrics"
	nftservice "nftregistry/internal/nft/service"
	"nftregistry/internal/nft/store/backend"
	"nftregistry/internal/platform/config"
	"nftregistry/internal/platform/httpserver"
	"nftregistry/internal/platform/logger"
	httpmetrics "nftregistry/internal/platform/metrics"
	"nftregistry/pkg/platform/middleware/idempotency"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	if cfg.JWT.UsesDevSigningKey() {
		log.Warn("using development JWT signing key; set NFTREGISTRY_JWT_SIGNING_KEY in production")
	}

	g, ctx := errgroup.WithContext(ctx)

	store, err := backend.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	sink, err := openAudit(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer sink.close()

	reg := prometheus.DefaultRegisterer
	svc := nftservice.New(newTxTimeoutStore(store.Store, defaultTxTimeout),
		nftservice.WithLogger(log),
		nftservice.WithAuditPublisher(sink.publisher),
		nftservice.WithMetrics(nftmetrics.New(reg)),
		nftservice.WithMaxDataSize(cfg.MaxDataSize),
	)

	jwtService := jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience)
	router := newRouter(routerDeps{
		handler:     nfthandler.New(svc, log),
		validator:   jwttoken.NewJWTServiceAdapter(jwtService),
		idempotency: idempotency.New(cfg.IdempotencyTTL, log),
		metrics:     httpmetrics.New(reg),
		audit:       sink.publisher,
		health:      store.Health,
		logger:      log,
	})

	for _, bg := range append(store.Background, sink.background...) {
		g.Go(func() error { return bg(ctx) })
	}

	srv := httpserver.New(cfg.Addr, router)
	g.Go(func() error {
		log.Info("starting nftregistry",
			"addr", cfg.Addr,
			"store", cfg.Store.Backend,
			"audit_sink", cfg.Audit.Sink,
		)
		return httpserver.Serve(ctx, srv, cfg.ShutdownTimeout)
	})

	return g.Wait()
}
