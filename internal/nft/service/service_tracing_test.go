package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"nftregistry/internal/nft/models"
	"nftregistry/internal/nft/store/memory"
	id "nftregistry/pkg/domain"
	dErrors "nftregistry/pkg/domain-errors"
	"nftregistry/pkg/platform/sentinel"
)

func newTracedService(t *testing.T, store Store) (*Service, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return New(store, WithTracerProvider(tp)), recorder
}

func attr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_SpanPerOperation(t *testing.T) {
	svc, recorder := newTracedService(t, memory.New())
	ctx := context.Background()

	nftID, err := svc.Create(ctx, "alice", nil, "")
	require.NoError(t, err)
	require.NoError(t, svc.Lock(ctx, nftID))
	require.ErrorIs(t, svc.Lock(ctx, nftID), models.ErrLocked)

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "nft.create", spans[0].Name())
	assert.Equal(t, "nft.lock", spans[1].Name())

	rejected := spans[2]
	assert.Equal(t, codes.Unset, rejected.Status().Code, "domain rejections are not span errors")
	code, ok := attr(rejected, "error.code")
	require.True(t, ok)
	assert.Equal(t, string(dErrors.CodeLocked), code.AsString())

	nftAttr, ok := attr(rejected, "nft.id")
	require.True(t, ok)
	assert.Equal(t, int64(nftID), nftAttr.AsInt64())
}

// brokenStore fails every call with err.
type brokenStore struct {
	*memory.InMemoryStore
	err error
}

func (b brokenStore) GetNFT(context.Context, id.NFTID) (*models.NFT, error) {
	return nil, b.err
}

func (b brokenStore) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestStoreFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("io failure is internal and recorded on the span", func(t *testing.T) {
		svc, recorder := newTracedService(t, brokenStore{InMemoryStore: memory.New(), err: errors.New("disk gone")})

		err := svc.Lock(ctx, 1)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
		assert.NotErrorIs(t, err, models.ErrInvalidNFTID)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
	})

	t.Run("unavailable backend is a timeout", func(t *testing.T) {
		svc := New(brokenStore{InMemoryStore: memory.New(), err: sentinel.ErrUnavailable})

		_, _, err := svc.Locked(ctx, 1)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))

		ok, err := svc.Unlock(ctx, 1)
		assert.False(t, ok)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	t.Run("deadline is a timeout", func(t *testing.T) {
		svc := New(brokenStore{InMemoryStore: memory.New(), err: context.DeadlineExceeded})

		err := svc.SetOwner(ctx, 1, "bob")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}
