package models

import (
	"bytes"
	"time"

	id "nftregistry/pkg/domain"
)

// NFT is the registry record for one token.
//
// Invariants:
//   - ID is assigned by the store allocator and never changes
//   - Data is fixed at creation
//   - Series, when set, names an existing series and never changes
//   - Owner may only change while Locked is false
type NFT struct {
	ID        id.NFTID     `json:"id"`
	Owner     id.AccountID `json:"owner"`
	Locked    bool         `json:"locked"`
	Data      []byte       `json:"data"`
	Series    id.SeriesID  `json:"series_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewNFT builds an unlocked record. The payload is copied so later changes to
// the caller's slice cannot reach the registry.
func NewNFT(nftID id.NFTID, owner id.AccountID, data []byte, series id.SeriesID, now time.Time) *NFT {
	return &NFT{
		ID:        nftID,
		Owner:     owner,
		Data:      bytes.Clone(data),
		Series:    series,
		CreatedAt: now,
	}
}

func (n *NFT) HasSeries() bool {
	return !n.Series.IsZero()
}

// CanLock reports whether the lock flag may be raised.
func (n *NFT) CanLock() error {
	if n.Locked {
		return ErrLocked
	}
	return nil
}

// ApplyLock raises the lock flag. Call CanLock first.
func (n *NFT) ApplyLock() {
	n.Locked = true
}

// ApplyUnlock clears the lock flag. Unlocking is idempotent and has no
// precondition.
func (n *NFT) ApplyUnlock() {
	n.Locked = false
}

// CanSetOwner reports whether ownership may change.
func (n *NFT) CanSetOwner() error {
	if n.Locked {
		return ErrLocked
	}
	return nil
}

// ApplySetOwner replaces the owner. Call CanSetOwner first.
func (n *NFT) ApplySetOwner(owner id.AccountID) {
	n.Owner = owner
}

// Clone returns a deep copy so stores never hand out aliases of their state.
func (n *NFT) Clone() *NFT {
	c := *n
	c.Data = bytes.Clone(n.Data)
	return &c
}
