package models

import (
	"time"

	id "nftregistry/pkg/domain"
)

// Series groups NFTs created under a creator-chosen identifier.
//
// Completed moves from false to true exactly once and never back.
// Membership is not stored on the record; stores keep a back-index from
// series to NFT ids.
type Series struct {
	ID        id.SeriesID  `json:"id"`
	Owner     id.AccountID `json:"owner"`
	Completed bool         `json:"completed"`
	CreatedAt time.Time    `json:"created_at"`
}

func NewSeries(seriesID id.SeriesID, owner id.AccountID, now time.Time) *Series {
	return &Series{
		ID:        seriesID,
		Owner:     owner,
		CreatedAt: now,
	}
}

// CanAddMember rejects new NFTs once the series is finished.
func (s *Series) CanAddMember() error {
	if s.Completed {
		return ErrSeriesCompleted
	}
	return nil
}

// ApplyFinish marks the series completed. Finishing twice is a no-op.
func (s *Series) ApplyFinish() {
	s.Completed = true
}

func (s *Series) Clone() *Series {
	c := *s
	return &c
}

// SeriesDetails is a series with its derived membership.
type SeriesDetails struct {
	*Series
	NFTs []id.NFTID `json:"nfts"`
}
