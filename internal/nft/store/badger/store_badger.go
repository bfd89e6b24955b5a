package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v4"

	"nftregistry/internal/nft/models"
	id "nftregistry/pkg/domain"
	"nftregistry/pkg/platform/sentinel"
)

const (
	prefixNFTRecord    = "NFT:RECORD:"
	prefixSeriesRecord = "NFT:SERIES:"
	prefixSeriesMember = "NFT:MEMBER:"
	keyNFTCounter      = "NFT:COUNTER"

	maxTxAttempts = 64
)

// BadgerStore persists the registry in an embedded badger database.
// Values are msgpack encoded; member index keys carry no value.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

type Option func(*options)

type options struct {
	inMemory bool
	logger   *slog.Logger
}

// WithInMemory keeps all data in memory. Intended for tests.
func WithInMemory() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func Open(path string, opts ...Option) (*BadgerStore, error) {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	bopts := badger.DefaultOptions(path).WithLogger(&slogAdapter{logger: o.logger})
	if o.inMemory {
		bopts = bopts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, logger: o.logger}, nil
}

func (bs *BadgerStore) Close() error {
	return bs.db.Close()
}

// RunGC reclaims value log space every interval until ctx is done.
func (bs *BadgerStore) RunGC(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			lsm, vlog := bs.db.Size()
			bs.logger.DebugContext(ctx, "badger size", "lsm", lsm, "vlog", vlog)
			for {
				if err := bs.db.RunValueLogGC(0.5); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						bs.logger.WarnContext(ctx, "badger value log gc failed", "error", err)
					}
					break
				}
			}
		}
	}
}

type txnKey struct{}

func txnFrom(ctx context.Context) *badger.Txn {
	txn, _ := ctx.Value(txnKey{}).(*badger.Txn)
	return txn
}

// RunInTx runs fn in a read-write transaction, retrying when a concurrent
// transaction touched the same keys. The key is unused; badger detects
// conflicts on the keys actually read.
func (bs *BadgerStore) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if txnFrom(ctx) != nil {
		return fn(ctx)
	}
	for range maxTxAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}
		txn := bs.db.NewTransaction(true)
		if err := fn(context.WithValue(ctx, txnKey{}, txn)); err != nil {
			txn.Discard()
			return err
		}
		err := txn.Commit()
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	}
	return fmt.Errorf("transaction retries exhausted: %w", sentinel.ErrConflict)
}

// view runs fn against the caller's transaction or a fresh read-only one.
func (bs *BadgerStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn := txnFrom(ctx); txn != nil {
		return fn(txn)
	}
	return bs.db.View(fn)
}

// update runs fn against the caller's transaction or its own.
func (bs *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return bs.RunInTx(ctx, "", func(ctx context.Context) error {
		return fn(txnFrom(ctx))
	})
}

func nftRecordKey(nftID id.NFTID) []byte {
	return binary.BigEndian.AppendUint32([]byte(prefixNFTRecord), uint32(nftID))
}

func seriesRecordKey(seriesID id.SeriesID) []byte {
	return append([]byte(prefixSeriesRecord), seriesID...)
}

func seriesMemberPrefix(seriesID id.SeriesID) []byte {
	key := append([]byte(prefixSeriesMember), seriesID...)
	return append(key, 0)
}

func seriesMemberKey(seriesID id.SeriesID, nftID id.NFTID) []byte {
	return binary.BigEndian.AppendUint32(seriesMemberPrefix(seriesID), uint32(nftID))
}

type nftRecord struct {
	Owner     string    `msgpack:"o"`
	Locked    bool      `msgpack:"l"`
	Data      []byte    `msgpack:"d"`
	Series    string    `msgpack:"s"`
	CreatedAt time.Time `msgpack:"c"`
}

type seriesRecord struct {
	Owner     string    `msgpack:"o"`
	Completed bool      `msgpack:"f"`
	CreatedAt time.Time `msgpack:"c"`
}

func readValue(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, v)
	})
}

func (bs *BadgerStore) GetNFT(ctx context.Context, nftID id.NFTID) (*models.NFT, error) {
	var rec nftRecord
	err := bs.view(ctx, func(txn *badger.Txn) error {
		return readValue(txn, nftRecordKey(nftID), &rec)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("read nft %d: %w", nftID, err)
	}
	return &models.NFT{
		ID:        nftID,
		Owner:     id.AccountID(rec.Owner),
		Locked:    rec.Locked,
		Data:      rec.Data,
		Series:    id.SeriesID(rec.Series),
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (bs *BadgerStore) PutNFT(ctx context.Context, nft *models.NFT) error {
	val, err := msgpack.Marshal(nftRecord{
		Owner:     string(nft.Owner),
		Locked:    nft.Locked,
		Data:      nft.Data,
		Series:    string(nft.Series),
		CreatedAt: nft.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode nft: %w", err)
	}
	return bs.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(nftRecordKey(nft.ID), val); err != nil {
			return fmt.Errorf("write nft %d: %w", nft.ID, err)
		}
		if nft.HasSeries() {
			if err := txn.Set(seriesMemberKey(nft.Series, nft.ID), nil); err != nil {
				return fmt.Errorf("write series member: %w", err)
			}
		}
		return nil
	})
}

func (bs *BadgerStore) GetSeries(ctx context.Context, seriesID id.SeriesID) (*models.Series, error) {
	var rec seriesRecord
	err := bs.view(ctx, func(txn *badger.Txn) error {
		return readValue(txn, seriesRecordKey(seriesID), &rec)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("read series %q: %w", seriesID, err)
	}
	return &models.Series{
		ID:        seriesID,
		Owner:     id.AccountID(rec.Owner),
		Completed: rec.Completed,
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (bs *BadgerStore) PutSeries(ctx context.Context, series *models.Series) error {
	val, err := msgpack.Marshal(seriesRecord{
		Owner:     string(series.Owner),
		Completed: series.Completed,
		CreatedAt: series.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode series: %w", err)
	}
	return bs.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(seriesRecordKey(series.ID), val); err != nil {
			return fmt.Errorf("write series %q: %w", series.ID, err)
		}
		return nil
	})
}

// NextNFTID bumps a big-endian counter. Inside a transaction the bump rolls
// back with it.
func (bs *BadgerStore) NextNFTID(ctx context.Context) (id.NFTID, error) {
	var next uint64
	err := bs.update(ctx, func(txn *badger.Txn) error {
		next = 0
		item, err := txn.Get([]byte(keyNFTCounter))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return fmt.Errorf("read nft counter: %w", err)
		default:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read nft counter: %w", err)
			}
			next = binary.BigEndian.Uint64(raw)
		}
		if next > math.MaxUint32 {
			return sentinel.ErrIDSpaceExhausted
		}
		return txn.Set([]byte(keyNFTCounter), binary.BigEndian.AppendUint64(nil, next+1))
	})
	if err != nil {
		return 0, err
	}
	return id.NFTID(next), nil
}

// ListSeriesNFTs scans the member index; big-endian ids sort ascending.
func (bs *BadgerStore) ListSeriesNFTs(ctx context.Context, seriesID id.SeriesID) ([]id.NFTID, error) {
	prefix := seriesMemberPrefix(seriesID)
	var members []id.NFTID
	err := bs.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			members = append(members, id.NFTID(binary.BigEndian.Uint32(key[len(prefix):])))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list series members: %w", err)
	}
	return members, nil
}

// slogAdapter routes badger's printf logging into slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Errorf(format string, args ...any) {
	a.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (a *slogAdapter) Warningf(format string, args ...any) {
	a.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (a *slogAdapter) Infof(format string, args ...any) {
	a.logger.Info(fmt.Sprintf(format, args...), "component", "badger")
}

func (a *slogAdapter) Debugf(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
