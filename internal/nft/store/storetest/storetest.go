// Package storetest holds the behaviour every registry store backend must
// share. Backend packages embed Suite in their own tests.
package storetest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"nftregistry/internal/nft/models"
	"nftregistry/internal/nft/service"
	id "nftregistry/pkg/domain"
	"nftregistry/pkg/platform/sentinel"
)

// Suite runs the store contract. NewStore must return an empty store with
// a fresh id allocator; it is called before every test.
type Suite struct {
	suite.Suite
	NewStore func() service.Store

	store service.Store
}

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.NewStore, "NewStore must be set")
	s.store = s.NewStore()
}

var createdAt = time.UnixMilli(1_700_000_000_123).UTC()

func (s *Suite) mustPutNFT(nft *models.NFT) {
	s.Require().NoError(s.store.PutNFT(context.Background(), nft))
}

func (s *Suite) mustPutSeries(series *models.Series) {
	s.Require().NoError(s.store.PutSeries(context.Background(), series))
}

func (s *Suite) TestNFTRecords() {
	ctx := context.Background()

	s.Run("missing nft is not found", func() {
		_, err := s.store.GetNFT(ctx, 424242)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("round trips every field", func() {
		s.mustPutSeries(models.NewSeries("drop", "alice", createdAt))
		nft := models.NewNFT(7, "alice", []byte{0x00, 0xff, 0x10}, "drop", createdAt)
		nft.Locked = true
		s.mustPutNFT(nft)

		got, err := s.store.GetNFT(ctx, 7)
		s.Require().NoError(err)
		s.Equal(id.NFTID(7), got.ID)
		s.Equal(id.AccountID("alice"), got.Owner)
		s.True(got.Locked)
		s.Equal([]byte{0x00, 0xff, 0x10}, got.Data)
		s.Equal(id.SeriesID("drop"), got.Series)
		s.True(createdAt.Equal(got.CreatedAt), "created_at %v != %v", got.CreatedAt, createdAt)
	})

	s.Run("standalone nft keeps empty series", func() {
		s.mustPutNFT(models.NewNFT(8, "bob", nil, "", createdAt))

		got, err := s.store.GetNFT(ctx, 8)
		s.Require().NoError(err)
		s.False(got.HasSeries())
		s.Empty(got.Data)
	})

	s.Run("put overwrites mutable fields", func() {
		nft := models.NewNFT(9, "alice", []byte("payload"), "", createdAt)
		s.mustPutNFT(nft)
		nft.ApplySetOwner("carol")
		nft.ApplyLock()
		s.mustPutNFT(nft)

		got, err := s.store.GetNFT(ctx, 9)
		s.Require().NoError(err)
		s.Equal(id.AccountID("carol"), got.Owner)
		s.True(got.Locked)
		s.Equal([]byte("payload"), got.Data)
	})

	s.Run("returned records do not alias store state", func() {
		s.mustPutNFT(models.NewNFT(10, "alice", []byte("abc"), "", createdAt))

		got, err := s.store.GetNFT(ctx, 10)
		s.Require().NoError(err)
		got.Owner = "mallory"
		got.Data[0] = 'z'

		again, err := s.store.GetNFT(ctx, 10)
		s.Require().NoError(err)
		s.Equal(id.AccountID("alice"), again.Owner)
		s.Equal([]byte("abc"), again.Data)
	})
}

func (s *Suite) TestSeriesRecords() {
	ctx := context.Background()

	s.Run("missing series is not found", func() {
		_, err := s.store.GetSeries(ctx, "nope")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("round trips and updates completed", func() {
		series := models.NewSeries("genesis", "alice", createdAt)
		s.mustPutSeries(series)

		got, err := s.store.GetSeries(ctx, "genesis")
		s.Require().NoError(err)
		s.Equal(id.SeriesID("genesis"), got.ID)
		s.Equal(id.AccountID("alice"), got.Owner)
		s.False(got.Completed)
		s.True(createdAt.Equal(got.CreatedAt))

		series.ApplyFinish()
		s.mustPutSeries(series)

		got, err = s.store.GetSeries(ctx, "genesis")
		s.Require().NoError(err)
		s.True(got.Completed)
	})
}

func (s *Suite) TestNextNFTID() {
	ctx := context.Background()

	s.Run("starts at zero and increments", func() {
		for want := range 5 {
			got, err := s.store.NextNFTID(ctx)
			s.Require().NoError(err)
			s.Equal(id.NFTID(want), got)
		}
	})

	s.Run("concurrent allocation never repeats", func() {
		const workers = 32
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			seen = make(map[id.NFTID]struct{}, workers)
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := s.store.NextNFTID(ctx)
				if !s.NoError(err) {
					return
				}
				mu.Lock()
				seen[got] = struct{}{}
				mu.Unlock()
			}()
		}
		wg.Wait()
		s.Len(seen, workers)
	})

	s.Run("rolled back allocation is never committed", func() {
		var burned id.NFTID
		err := s.store.RunInTx(ctx, "", func(ctx context.Context) error {
			var err error
			burned, err = s.store.NextNFTID(ctx)
			s.Require().NoError(err)
			return errors.New("abort")
		})
		s.Require().Error(err)

		_, err = s.store.GetNFT(ctx, burned)
		s.ErrorIs(err, sentinel.ErrNotFound)

		next, err := s.store.NextNFTID(ctx)
		s.Require().NoError(err)
		s.GreaterOrEqual(next, burned)
	})
}

func (s *Suite) TestListSeriesNFTs() {
	ctx := context.Background()
	s.mustPutSeries(models.NewSeries("drop", "alice", createdAt))
	s.mustPutSeries(models.NewSeries("other", "alice", createdAt))

	for _, nftID := range []id.NFTID{3, 1, 2} {
		s.mustPutNFT(models.NewNFT(nftID, "alice", nil, "drop", createdAt))
	}
	s.mustPutNFT(models.NewNFT(4, "alice", nil, "other", createdAt))
	s.mustPutNFT(models.NewNFT(5, "alice", nil, "", createdAt))

	// Rewriting a member must not duplicate it in the index.
	nft := models.NewNFT(2, "bob", nil, "drop", createdAt)
	nft.ApplyLock()
	s.mustPutNFT(nft)

	members, err := s.store.ListSeriesNFTs(ctx, "drop")
	s.Require().NoError(err)
	s.Equal([]id.NFTID{1, 2, 3}, members)

	members, err = s.store.ListSeriesNFTs(ctx, "unknown")
	s.Require().NoError(err)
	s.Empty(members)
}

func (s *Suite) TestRunInTx() {
	ctx := context.Background()

	s.Run("commits writes", func() {
		err := s.store.RunInTx(ctx, "series:tx-commit", func(ctx context.Context) error {
			if err := s.store.PutSeries(ctx, models.NewSeries("tx-commit", "alice", createdAt)); err != nil {
				return err
			}
			return s.store.PutNFT(ctx, models.NewNFT(100, "alice", nil, "tx-commit", createdAt))
		})
		s.Require().NoError(err)

		_, err = s.store.GetSeries(ctx, "tx-commit")
		s.NoError(err)
		_, err = s.store.GetNFT(ctx, 100)
		s.NoError(err)
	})

	s.Run("reads own writes", func() {
		err := s.store.RunInTx(ctx, "nft:101", func(ctx context.Context) error {
			if err := s.store.PutNFT(ctx, models.NewNFT(101, "alice", nil, "", createdAt)); err != nil {
				return err
			}
			got, err := s.store.GetNFT(ctx, 101)
			if err != nil {
				return err
			}
			s.Equal(id.AccountID("alice"), got.Owner)
			return nil
		})
		s.Require().NoError(err)
	})

	s.Run("rolls back on error", func() {
		boom := errors.New("boom")
		err := s.store.RunInTx(ctx, "series:tx-rollback", func(ctx context.Context) error {
			if err := s.store.PutSeries(ctx, models.NewSeries("tx-rollback", "alice", createdAt)); err != nil {
				return err
			}
			if err := s.store.PutNFT(ctx, models.NewNFT(102, "alice", nil, "tx-rollback", createdAt)); err != nil {
				return err
			}
			return boom
		})
		s.ErrorIs(err, boom)

		_, err = s.store.GetSeries(ctx, "tx-rollback")
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.GetNFT(ctx, 102)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("serializes read-modify-write on one key", func() {
		s.mustPutNFT(models.NewNFT(103, "0", nil, "", createdAt))

		const workers = 16
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.store.RunInTx(ctx, "nft:103", func(ctx context.Context) error {
					nft, err := s.store.GetNFT(ctx, 103)
					if err != nil {
						return err
					}
					n, err := strconv.Atoi(string(nft.Owner))
					if err != nil {
						return err
					}
					nft.ApplySetOwner(id.AccountID(strconv.Itoa(n + 1)))
					return s.store.PutNFT(ctx, nft)
				})
				s.NoError(err)
			}()
		}
		wg.Wait()

		got, err := s.store.GetNFT(ctx, 103)
		s.Require().NoError(err)
		s.Equal(id.AccountID(strconv.Itoa(workers)), got.Owner)
	})

	s.Run("honours cancelled context", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		called := false
		err := s.store.RunInTx(cctx, "nft:104", func(context.Context) error {
			called = true
			return nil
		})
		s.Error(err)
		s.False(called)
	})
}
