//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"nftregistry/internal/nft/models"
	"nftregistry/internal/nft/service"
	"nftregistry/internal/nft/store/postgres"
	"nftregistry/internal/nft/store/storetest"
	"nftregistry/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	storetest.Suite
	postgres *containers.PostgresContainer
	store    *postgres.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.Require().NoError(postgres.Migrate(s.postgres.DSN))
	s.store = postgres.New(s.postgres.DB)
	s.NewStore = func() service.Store { return s.store }
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "nfts", "nft_series"))
	_, err := s.postgres.DB.ExecContext(ctx, `ALTER SEQUENCE nft_id_seq RESTART`)
	s.Require().NoError(err)
	s.Suite.SetupTest()
}

// TestAdvisoryLockSerializesCreateSeries verifies that concurrent creators of
// one series id observe each other: exactly one finds it absent.
func (s *PostgresStoreSuite) TestAdvisoryLockSerializesCreateSeries() {
	ctx := context.Background()
	const goroutines = 20

	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.RunInTx(ctx, "series:race", func(ctx context.Context) error {
				if _, err := s.store.GetSeries(ctx, "race"); err == nil {
					return nil
				}
				created.Add(1)
				return s.store.PutSeries(ctx, models.NewSeries("race", "alice", time.Now()))
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
}
