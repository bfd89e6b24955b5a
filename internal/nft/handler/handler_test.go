package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"nftregistry/internal/nft/handler/mocks"
	"nftregistry/internal/nft/models"
	id "nftregistry/pkg/domain"
	dErrors "nftregistry/pkg/domain-errors"
	"nftregistry/pkg/requestcontext"
	"nftregistry/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/nft-mocks.go -package=mocks Service

type HandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	now     time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.router = chi.NewRouter()
	New(s.service, nil).Register(s.router)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

// =============================================================================
// Create
// =============================================================================

func (s *HandlerSuite) TestCreate() {
	s.Run("creates nft owned by caller", func() {
		s.service.EXPECT().
			Create(gomock.Any(), id.AccountID("alice"), []byte("payload"), id.SeriesID("genesis")).
			Return(id.NFTID(7), nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/nfts", map[string]any{
			"data":      []byte("payload"),
			"series_id": "genesis",
		})
		rr := testutil.DoRequest(s.router, testutil.WithAccount(req, "alice"))

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[CreateNFTResponse](s.T(), rr)
		s.Equal(uint32(7), resp.ID)
	})

	s.Run("standalone nft has no series", func() {
		s.service.EXPECT().
			Create(gomock.Any(), id.AccountID("alice"), gomock.Any(), id.SeriesID("")).
			Return(id.NFTID(0), nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/nfts", map[string]any{"data": []byte{}})
		rr := testutil.DoRequest(s.router, testutil.WithAccount(req, "alice"))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	})

	s.Run("requires authentication", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/nfts", map[string]any{"data": []byte("x")})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("completed series conflicts", func() {
		s.service.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(id.NFTID(0), models.ErrSeriesCompleted)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/nfts", map[string]any{"series_id": "done"})
		rr := testutil.DoRequest(s.router, testutil.WithAccount(req, "alice"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "series_completed")
	})

	s.Run("malformed body", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/nfts", `{"data":`)
		rr := testutil.DoRequest(s.router, testutil.WithAccount(req, "alice"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

// =============================================================================
// Queries
// =============================================================================

func (s *HandlerSuite) TestGet() {
	s.Run("returns record", func() {
		s.service.EXPECT().Get(gomock.Any(), id.NFTID(3)).Return(&models.NFT{
			ID:        3,
			Owner:     "alice",
			Locked:    true,
			Data:      []byte("abc"),
			Series:    "genesis",
			CreatedAt: s.now,
		}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/nfts/3"))
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[NFTResponse](s.T(), rr)
		s.Equal("alice", resp.Owner)
		s.True(resp.Locked)
		s.Equal([]byte("abc"), resp.Data)
		s.Equal("genesis", resp.SeriesID)
	})

	s.Run("unknown id is not found", func() {
		s.service.EXPECT().Get(gomock.Any(), id.NFTID(99)).Return(nil, models.ErrInvalidNFTID)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/nfts/99"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "invalid_nft_id")
	})

	s.Run("non numeric id", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/nfts/abc"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("id beyond uint32", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/nfts/4294967296"))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *HandlerSuite) TestOwnerAndLockedQueries() {
	s.Run("owner found", func() {
		s.service.EXPECT().Owner(gomock.Any(), id.NFTID(1)).Return(id.AccountID("bob"), true, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/nfts/1/owner"))
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "owner", "bob")
	})

	s.Run("owner absent", func() {
		s.service.EXPECT().Owner(gomock.Any(), id.NFTID(2)).Return(id.AccountID(""), false, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/nfts/2/owner"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "invalid_nft_id")
	})

	s.Run("locked flag", func() {
		s.service.EXPECT().Locked(gomock.Any(), id.NFTID(1)).Return(true, true, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/nfts/1/locked"))
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "locked", true)
	})

	s.Run("series completed for standalone nft", func() {
		s.service.EXPECT().IsSeriesCompleted(gomock.Any(), id.NFTID(4)).Return(false, true, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/nfts/4/series-completed"))
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "completed", false)
	})

	s.Run("store failure is internal", func() {
		s.service.EXPECT().Locked(gomock.Any(), id.NFTID(5)).
			Return(false, false, dErrors.Wrap(errors.New("disk"), dErrors.CodeInternal, "failed to read nft"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/nfts/5/locked"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "internal_error")
	})
}

// =============================================================================
// Mutations
// =============================================================================

func (s *HandlerSuite) TestLockUnlock() {
	s.Run("lock", func() {
		s.service.EXPECT().Lock(gomock.Any(), id.NFTID(1)).Return(nil)

		req := testutil.WithAccount(testutil.NewRequest(s.T(), http.MethodPost, "/nfts/1/lock"), "alice")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
	})

	s.Run("lock twice conflicts", func() {
		s.service.EXPECT().Lock(gomock.Any(), id.NFTID(1)).Return(models.ErrLocked)

		req := testutil.WithAccount(testutil.NewRequest(s.T(), http.MethodPost, "/nfts/1/lock"), "alice")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "locked")
	})

	s.Run("unlock unknown reports found false", func() {
		s.service.EXPECT().Unlock(gomock.Any(), id.NFTID(42)).Return(false, nil)

		req := testutil.WithAccount(testutil.NewRequest(s.T(), http.MethodPost, "/nfts/42/unlock"), "alice")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "found", false)
	})

	s.Run("lock requires authentication", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/nfts/1/lock"))
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})
}

func (s *HandlerSuite) TestSetOwner() {
	s.Run("transfers", func() {
		s.service.EXPECT().SetOwner(gomock.Any(), id.NFTID(1), id.AccountID("bob")).Return(nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/nfts/1/owner", map[string]string{"owner": " bob "})
		rr := testutil.DoRequest(s.router, testutil.WithAccount(req, "alice"))
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "owner", "bob")
	})

	s.Run("empty owner rejected", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/nfts/1/owner", map[string]string{"owner": ""})
		rr := testutil.DoRequest(s.router, testutil.WithAccount(req, "alice"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("locked nft conflicts", func() {
		s.service.EXPECT().SetOwner(gomock.Any(), id.NFTID(1), id.AccountID("bob")).Return(models.ErrLocked)

		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/nfts/1/owner", map[string]string{"owner": "bob"})
		rr := testutil.DoRequest(s.router, testutil.WithAccount(req, "alice"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "locked")
	})
}

// =============================================================================
// Series
// =============================================================================

func (s *HandlerSuite) TestSeries() {
	s.Run("create", func() {
		s.service.EXPECT().CreateSeries(gomock.Any(), id.AccountID("alice"), id.SeriesID("genesis")).
			Return(&models.Series{ID: "genesis", Owner: "alice", CreatedAt: s.now}, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/series", map[string]string{"series_id": "genesis"})
		rr := testutil.DoRequest(s.router, testutil.WithAccount(req, "alice"))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[SeriesResponse](s.T(), rr)
		s.Equal("genesis", resp.ID)
		s.Empty(resp.NFTs)
	})

	s.Run("create duplicate", func() {
		s.service.EXPECT().CreateSeries(gomock.Any(), gomock.Any(), id.SeriesID("genesis")).
			Return(nil, models.ErrSeriesExists)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/series", map[string]string{"series_id": "genesis"})
		rr := testutil.DoRequest(s.router, testutil.WithAccount(req, "alice"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "series_exists")
	})

	s.Run("create requires series id", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/series", map[string]string{})
		rr := testutil.DoRequest(s.router, testutil.WithAccount(req, "alice"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("get lists members", func() {
		s.service.EXPECT().Series(gomock.Any(), id.SeriesID("genesis")).Return(&models.SeriesDetails{
			Series: &models.Series{ID: "genesis", Owner: "alice", Completed: true, CreatedAt: s.now},
			NFTs:   []id.NFTID{0, 2, 5},
		}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/series/genesis"))
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[SeriesResponse](s.T(), rr)
		s.True(resp.Completed)
		s.Equal([]uint32{0, 2, 5}, resp.NFTs)
	})

	s.Run("finish", func() {
		s.service.EXPECT().FinishSeries(gomock.Any(), id.AccountID("alice"), id.SeriesID("genesis")).Return(nil)

		req := testutil.WithAccount(testutil.NewRequest(s.T(), http.MethodPost, "/series/genesis/finish"), "alice")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	})

	s.Run("finish unknown", func() {
		s.service.EXPECT().FinishSeries(gomock.Any(), gomock.Any(), id.SeriesID("nope")).
			Return(models.ErrInvalidSeriesID)

		req := testutil.WithAccount(testutil.NewRequest(s.T(), http.MethodPost, "/series/nope/finish"), "alice")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "invalid_series_id")
	})
}

func (s *HandlerSuite) TestRequestContextFlowsToService() {
	s.service.EXPECT().Lock(gomock.Any(), id.NFTID(1)).DoAndReturn(func(ctx context.Context, _ id.NFTID) error {
		s.Equal("req-9", requestcontext.RequestID(ctx))
		return nil
	})

	req := testutil.NewRequest(s.T(), http.MethodPost, "/nfts/1/lock")
	req = testutil.WithRequestID(testutil.WithAccount(req, "alice"), "req-9")
	testutil.AssertStatusOK(s.T(), testutil.DoRequest(s.router, req))
}
