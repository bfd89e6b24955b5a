package main

import (
	"context"
	"time"

	nftservice "nftregistry/internal/nft/service"
)

const defaultTxTimeout = 5 * time.Second

// txTimeoutStore bounds every registry transaction that arrives without a
// deadline of its own.
type txTimeoutStore struct {
	nftservice.Store
	timeout time.Duration
}

func newTxTimeoutStore(store nftservice.Store, timeout time.Duration) *txTimeoutStore {
	return &txTimeoutStore{Store: store, timeout: timeout}
}

func (t *txTimeoutStore) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return t.Store.RunInTx(ctx, key, fn)
}
