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
	"nftregistry/pkg/requestcontext"
)

// CreateSeries registers an empty, active series owned by owner.
func (s *Service) CreateSeries(ctx context.Context, owner id.AccountID, seriesID id.SeriesID) (*models.Series, error) {
	var created *models.Series
	err := s.run(ctx, "create_series", func(ctx context.Context) error {
		if err := validateOwner(owner); err != nil {
			return err
		}
		if _, err := id.ParseSeriesID(string(seriesID)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "invalid series id")
		}
		now := s.now(ctx)
		err := s.store.RunInTx(ctx, seriesKey(seriesID), func(ctx context.Context) error {
			created = nil
			_, err := s.store.GetSeries(ctx, seriesID)
			switch {
			case err == nil:
				return models.ErrSeriesExists
			case !errors.Is(err, sentinel.ErrNotFound):
				return fmt.Errorf("load series: %w", err)
			}
			series := models.NewSeries(seriesID, owner, now)
			if err := s.store.PutSeries(ctx, series); err != nil {
				return fmt.Errorf("persist series: %w", err)
			}
			created = series
			return nil
		})
		if err != nil {
			return translate(err, nil, "failed to create series")
		}
		s.emit(ctx, audit.EventSeriesCreated, seriesKey(seriesID), owner, seriesID)
		if s.metrics != nil {
			s.metrics.IncrementSeriesCreated()
		}
		return nil
	}, attribute.String("nft.series_id", string(seriesID)))
	if err != nil {
		return nil, err
	}
	return created, nil
}

// FinishSeries marks a series completed. Finishing an already completed
// series succeeds without change. Whether caller may finish the series is
// decided by the host before this call; caller is recorded as the actor.
func (s *Service) FinishSeries(ctx context.Context, caller id.AccountID, seriesID id.SeriesID) error {
	return s.run(ctx, "finish_series", func(ctx context.Context) error {
		if seriesID.IsZero() {
			return models.ErrInvalidSeriesID
		}
		var (
			finished *models.Series
			changed  bool
		)
		err := s.store.RunInTx(ctx, seriesKey(seriesID), func(ctx context.Context) error {
			finished, changed = nil, false
			series, err := s.store.GetSeries(ctx, seriesID)
			if err != nil {
				return translate(err, models.ErrInvalidSeriesID, "failed to load series")
			}
			finished = series
			if series.Completed {
				return nil
			}
			series.ApplyFinish()
			if err := s.store.PutSeries(ctx, series); err != nil {
				return fmt.Errorf("persist series: %w", err)
			}
			changed = true
			return nil
		})
		if err != nil {
			return translate(err, models.ErrInvalidSeriesID, "failed to finish series")
		}
		if changed {
			if !caller.IsZero() && requestcontext.Account(ctx).IsZero() {
				ctx = requestcontext.WithAccount(ctx, caller)
			}
			s.emit(ctx, audit.EventSeriesFinished, seriesKey(seriesID), finished.Owner, seriesID)
			if s.metrics != nil {
				s.metrics.IncrementSeriesFinished()
			}
		}
		return nil
	}, attribute.String("nft.series_id", string(seriesID)))
}

// Series returns a series record with the ids of its members in ascending
// order.
func (s *Service) Series(ctx context.Context, seriesID id.SeriesID) (*models.SeriesDetails, error) {
	var details *models.SeriesDetails
	err := s.run(ctx, "series", func(ctx context.Context) error {
		if seriesID.IsZero() {
			return models.ErrInvalidSeriesID
		}
		series, err := s.store.GetSeries(ctx, seriesID)
		if err != nil {
			return translate(err, models.ErrInvalidSeriesID, "failed to load series")
		}
		members, err := s.store.ListSeriesNFTs(ctx, seriesID)
		if err != nil {
			return translate(err, nil, "failed to list series members")
		}
		if members == nil {
			members = []id.NFTID{}
		}
		details = &models.SeriesDetails{Series: series, NFTs: members}
		return nil
	}, attribute.String("nft.series_id", string(seriesID)))
	if err != nil {
		return nil, err
	}
	return details, nil
}
