package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nftregistry/internal/nft/metrics"
	"nftregistry/internal/nft/models"
	id "nftregistry/pkg/domain"
	dErrors "nftregistry/pkg/domain-errors"
	"nftregistry/pkg/platform/audit"
	"nftregistry/pkg/platform/sentinel"
	"nftregistry/pkg/requestcontext"
)

// DefaultMaxDataSize bounds the opaque payload accepted by Create.
const DefaultMaxDataSize = 64 << 10

const tracerName = "nftregistry/internal/nft/service"

// Store is the registry persistence port. Absent records are reported as
// sentinel.ErrNotFound. Reads and writes issued with the ctx handed to a
// RunInTx callback join that transaction.
type Store interface {
	GetNFT(ctx context.Context, nftID id.NFTID) (*models.NFT, error)
	PutNFT(ctx context.Context, nft *models.NFT) error
	GetSeries(ctx context.Context, seriesID id.SeriesID) (*models.Series, error)
	PutSeries(ctx context.Context, series *models.Series) error
	// NextNFTID allocates the next id. An id is never committed to two
	// NFTs; backends may leave gaps or re-offer an id whose transaction
	// rolled back.
	NextNFTID(ctx context.Context) (id.NFTID, error)
	ListSeriesNFTs(ctx context.Context, seriesID id.SeriesID) ([]id.NFTID, error)
	// RunInTx runs fn atomically. Calls sharing a non-empty key are
	// serialized. fn may be invoked more than once by optimistic backends.
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// MintGate decides whether an account may create a new NFT. It stands in
// for the host's fee or capability check.
type MintGate interface {
	AllowMint(ctx context.Context, owner id.AccountID) (bool, error)
}

// Service applies the registry state transitions.
type Service struct {
	store          Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	mintGate       MintGate
	tracer         trace.Tracer
	clock          func() time.Time
	maxDataSize    int
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithMintGate(gate MintGate) Option {
	return func(s *Service) {
		s.mintGate = gate
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// WithClock overrides the timestamp source. Without it the request-scoped
// time from requestcontext is used.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.clock = now
	}
}

func WithMaxDataSize(n int) Option {
	return func(s *Service) {
		s.maxDataSize = n
	}
}

// New constructs a Service.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		logger:      slog.New(slog.DiscardHandler),
		tracer:      otel.Tracer(tracerName),
		maxDataSize: DefaultMaxDataSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func nftKey(nftID id.NFTID) string {
	return "nft:" + nftID.String()
}

func seriesKey(seriesID id.SeriesID) string {
	return "series:" + string(seriesID)
}

func (s *Service) now(ctx context.Context) time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return requestcontext.Now(ctx)
}

// run wraps one operation with a span, metrics and failure logging.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := s.tracer.Start(ctx, "nft."+op, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, start, err)
	}
	if err == nil {
		return nil
	}

	code := dErrors.CodeOf(err)
	span.SetAttributes(attribute.String("error.code", string(code)))
	if code == dErrors.CodeInternal || code == dErrors.CodeTimeout {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.ErrorContext(ctx, "registry operation failed",
			"operation", op,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return err
}

// translate maps store failures onto coded errors. Coded errors raised inside
// a transaction callback pass through unchanged.
func translate(err error, notFound error, msg string) error {
	if err == nil {
		return nil
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	switch {
	case notFound != nil && errors.Is(err, sentinel.ErrNotFound):
		return notFound
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, subject string, owner id.AccountID, series id.SeriesID) {
	requestID := requestcontext.RequestID(ctx)
	actor := requestcontext.Account(ctx)
	s.logger.InfoContext(ctx, string(action),
		"subject", subject,
		"owner", owner,
		"series_id", series,
		"actor_id", actor,
		"request_id", requestID,
		"log_type", "audit",
	)
	if s.auditPublisher == nil {
		return
	}
	// The mutation has committed; a caller going away must not drop its event.
	err := s.auditPublisher.Emit(context.WithoutCancel(ctx), audit.Event{
		Action:    string(action),
		Subject:   subject,
		ActorID:   string(actor),
		Owner:     string(owner),
		SeriesID:  string(series),
		RequestID: requestID,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to publish audit event",
			"action", action,
			"subject", subject,
			"error", err,
		)
	}
}

func validateOwner(owner id.AccountID) error {
	if _, err := id.ParseAccountID(string(owner)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid owner")
	}
	return nil
}
