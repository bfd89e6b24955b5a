package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	nfthandler "nftregistry/internal/nft/handler"
	httpmetrics "nftregistry/internal/platform/metrics"
	dErrors "nftregistry/pkg/domain-errors"
	audit "nftregistry/pkg/platform/audit"
	"nftregistry/pkg/platform/httputil"
	authmw "nftregistry/pkg/platform/middleware/auth"
	"nftregistry/pkg/platform/middleware/idempotency"
	"nftregistry/pkg/platform/middleware/metadata"
	request "nftregistry/pkg/platform/middleware/request"
	"nftregistry/pkg/platform/middleware/requesttime"
)

type auditLister interface {
	List(ctx context.Context, subject string) ([]audit.Event, error)
}

type routerDeps struct {
	handler     *nfthandler.Handler
	validator   authmw.JWTValidator
	idempotency *idempotency.Cache
	metrics     *httpmetrics.Metrics
	audit       auditLister
	health      func(ctx context.Context) error
	logger      *slog.Logger
}

func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(deps.logger))
	r.Use(request.Recovery(deps.logger))
	r.Use(deps.metrics.Middleware)

	r.Get("/healthz", healthz(deps.health))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(requesttime.Middleware)
		r.Use(authmw.Authenticate(deps.validator, deps.logger))
		r.Use(deps.idempotency.Middleware)
		deps.handler.Register(r)
		r.Get("/audit", auditEvents(deps.audit))
	})
	return r
}

func healthz(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := check(ctx); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// auditEvents handles GET /audit?subject=nft:3.
func auditEvents(lister auditLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := r.URL.Query().Get("subject")
		if subject == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "subject is required"))
			return
		}
		events, err := lister.List(r.Context(), subject)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
	}
}
