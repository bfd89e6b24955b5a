package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"nftregistry/internal/nft/models"
	id "nftregistry/pkg/domain"
	dErrors "nftregistry/pkg/domain-errors"
	"nftregistry/pkg/platform/audit"
	"nftregistry/pkg/platform/sentinel"
)

// Create mints a new unlocked NFT. A non-empty series is created on first
// use with the caller as its owner; a completed series is rejected.
func (s *Service) Create(ctx context.Context, owner id.AccountID, data []byte, series id.SeriesID) (id.NFTID, error) {
	var nftID id.NFTID
	err := s.run(ctx, "create", func(ctx context.Context) error {
		var err error
		nftID, err = s.create(ctx, owner, data, series)
		return err
	}, attribute.String("nft.series_id", string(series)))
	if err != nil {
		return 0, err
	}
	return nftID, nil
}

func (s *Service) create(ctx context.Context, owner id.AccountID, data []byte, series id.SeriesID) (id.NFTID, error) {
	if err := validateOwner(owner); err != nil {
		return 0, err
	}
	if len(data) > s.maxDataSize {
		return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("data must be at most %d bytes", s.maxDataSize))
	}
	txKey := ""
	if !series.IsZero() {
		if _, err := id.ParseSeriesID(string(series)); err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeValidation, "invalid series id")
		}
		txKey = seriesKey(series)
	}
	if s.mintGate != nil {
		allowed, err := s.mintGate.AllowMint(ctx, owner)
		if err != nil {
			return 0, translate(err, nil, "failed to check mint gate")
		}
		if !allowed {
			return 0, dErrors.New(dErrors.CodeForbidden, "account may not mint")
		}
	}

	now := s.now(ctx)
	var (
		created       *models.NFT
		seriesCreated bool
	)
	err := s.store.RunInTx(ctx, txKey, func(ctx context.Context) error {
		// Optimistic stores may replay this callback.
		created, seriesCreated = nil, false

		if !series.IsZero() {
			existing, err := s.store.GetSeries(ctx, series)
			switch {
			case err == nil:
				if err := existing.CanAddMember(); err != nil {
					return err
				}
			case errors.Is(err, sentinel.ErrNotFound):
				if err := s.store.PutSeries(ctx, models.NewSeries(series, owner, now)); err != nil {
					return fmt.Errorf("persist series: %w", err)
				}
				seriesCreated = true
			default:
				return fmt.Errorf("load series: %w", err)
			}
		}

		nftID, err := s.store.NextNFTID(ctx)
		if err != nil {
			return fmt.Errorf("allocate nft id: %w", err)
		}
		nft := models.NewNFT(nftID, owner, data, series, now)
		if err := s.store.PutNFT(ctx, nft); err != nil {
			return fmt.Errorf("persist nft: %w", err)
		}
		created = nft
		return nil
	})
	if err != nil {
		return 0, translate(err, nil, "failed to create nft")
	}

	if seriesCreated {
		s.emit(ctx, audit.EventSeriesCreated, seriesKey(series), owner, series)
		if s.metrics != nil {
			s.metrics.IncrementSeriesCreated()
		}
	}
	s.emit(ctx, audit.EventNFTCreated, nftKey(created.ID), owner, series)
	if s.metrics != nil {
		s.metrics.IncrementNFTsCreated()
	}
	return created.ID, nil
}

// Lock raises the lock flag. Existence is checked before lock state.
func (s *Service) Lock(ctx context.Context, nftID id.NFTID) error {
	return s.run(ctx, "lock", func(ctx context.Context) error {
		var locked *models.NFT
		err := s.store.RunInTx(ctx, nftKey(nftID), func(ctx context.Context) error {
			locked = nil
			nft, err := s.store.GetNFT(ctx, nftID)
			if err != nil {
				return translate(err, models.ErrInvalidNFTID, "failed to load nft")
			}
			if err := nft.CanLock(); err != nil {
				return err
			}
			nft.ApplyLock()
			if err := s.store.PutNFT(ctx, nft); err != nil {
				return fmt.Errorf("persist nft: %w", err)
			}
			locked = nft
			return nil
		})
		if err != nil {
			return translate(err, models.ErrInvalidNFTID, "failed to lock nft")
		}
		s.emit(ctx, audit.EventNFTLocked, nftKey(nftID), locked.Owner, locked.Series)
		return nil
	}, attribute.Int64("nft.id", int64(nftID)))
}

// Unlock clears the lock flag. It reports false, with no error, when the NFT
// does not exist; errors are reserved for store failures.
func (s *Service) Unlock(ctx context.Context, nftID id.NFTID) (bool, error) {
	var found bool
	err := s.run(ctx, "unlock", func(ctx context.Context) error {
		var (
			unlocked *models.NFT
			changed  bool
		)
		err := s.store.RunInTx(ctx, nftKey(nftID), func(ctx context.Context) error {
			unlocked, changed = nil, false
			nft, err := s.store.GetNFT(ctx, nftID)
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("load nft: %w", err)
			}
			unlocked = nft
			if !nft.Locked {
				return nil
			}
			nft.ApplyUnlock()
			if err := s.store.PutNFT(ctx, nft); err != nil {
				return fmt.Errorf("persist nft: %w", err)
			}
			changed = true
			return nil
		})
		if err != nil {
			return translate(err, nil, "failed to unlock nft")
		}
		found = unlocked != nil
		if changed {
			s.emit(ctx, audit.EventNFTUnlocked, nftKey(nftID), unlocked.Owner, unlocked.Series)
		}
		return nil
	}, attribute.Int64("nft.id", int64(nftID)))
	if err != nil {
		return false, err
	}
	return found, nil
}

// SetOwner transfers an unlocked NFT to owner.
func (s *Service) SetOwner(ctx context.Context, nftID id.NFTID, owner id.AccountID) error {
	return s.run(ctx, "set_owner", func(ctx context.Context) error {
		if err := validateOwner(owner); err != nil {
			return err
		}
		var updated *models.NFT
		err := s.store.RunInTx(ctx, nftKey(nftID), func(ctx context.Context) error {
			updated = nil
			nft, err := s.store.GetNFT(ctx, nftID)
			if err != nil {
				return translate(err, models.ErrInvalidNFTID, "failed to load nft")
			}
			if err := nft.CanSetOwner(); err != nil {
				return err
			}
			nft.ApplySetOwner(owner)
			if err := s.store.PutNFT(ctx, nft); err != nil {
				return fmt.Errorf("persist nft: %w", err)
			}
			updated = nft
			return nil
		})
		if err != nil {
			return translate(err, models.ErrInvalidNFTID, "failed to set owner")
		}
		s.emit(ctx, audit.EventNFTOwnerChanged, nftKey(nftID), owner, updated.Series)
		return nil
	}, attribute.Int64("nft.id", int64(nftID)))
}

// Get returns a copy of the NFT record.
func (s *Service) Get(ctx context.Context, nftID id.NFTID) (*models.NFT, error) {
	var nft *models.NFT
	err := s.run(ctx, "get", func(ctx context.Context) error {
		var err error
		nft, err = s.store.GetNFT(ctx, nftID)
		return translate(err, models.ErrInvalidNFTID, "failed to load nft")
	}, attribute.Int64("nft.id", int64(nftID)))
	if err != nil {
		return nil, err
	}
	return nft, nil
}

// lookup loads an NFT for the boolean queries, folding absence into found.
func (s *Service) lookup(ctx context.Context, op string, nftID id.NFTID) (*models.NFT, error) {
	var nft *models.NFT
	err := s.run(ctx, op, func(ctx context.Context) error {
		var err error
		nft, err = s.store.GetNFT(ctx, nftID)
		if errors.Is(err, sentinel.ErrNotFound) {
			nft = nil
			return nil
		}
		return translate(err, nil, "failed to load nft")
	}, attribute.Int64("nft.id", int64(nftID)))
	return nft, err
}

// Locked reports the lock flag and whether the NFT exists.
func (s *Service) Locked(ctx context.Context, nftID id.NFTID) (locked bool, found bool, err error) {
	nft, err := s.lookup(ctx, "locked", nftID)
	if err != nil || nft == nil {
		return false, false, err
	}
	return nft.Locked, true, nil
}

// Owner reports the owner and whether the NFT exists.
func (s *Service) Owner(ctx context.Context, nftID id.NFTID) (owner id.AccountID, found bool, err error) {
	nft, err := s.lookup(ctx, "owner", nftID)
	if err != nil || nft == nil {
		return "", false, err
	}
	return nft.Owner, true, nil
}

// IsSeriesCompleted reports whether the NFT's series is finished. An NFT
// without a series reports (false, true).
func (s *Service) IsSeriesCompleted(ctx context.Context, nftID id.NFTID) (completed bool, found bool, err error) {
	err = s.run(ctx, "is_series_completed", func(ctx context.Context) error {
		nft, err := s.store.GetNFT(ctx, nftID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return translate(err, nil, "failed to load nft")
		}
		found = true
		if !nft.HasSeries() {
			return nil
		}
		series, err := s.store.GetSeries(ctx, nft.Series)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeInternal, "nft references a missing series")
		}
		if err != nil {
			return translate(err, nil, "failed to load series")
		}
		completed = series.Completed
		return nil
	}, attribute.Int64("nft.id", int64(nftID)))
	if err != nil {
		return false, false, err
	}
	return completed, found, nil
}
