package service

import (
	"context"
	"errors"
	"testing"

	"pgregory.net/rapid"

	"nftregistry/internal/nft/models"
	"nftregistry/internal/nft/store/memory"
	id "nftregistry/pkg/domain"
)

// registryModel mirrors the registry with plain maps.
type registryModel struct {
	owners    map[id.NFTID]id.AccountID
	locked    map[id.NFTID]bool
	series    map[id.NFTID]id.SeriesID
	completed map[id.SeriesID]bool
	next      id.NFTID
}

// TestService_StateMachine drives random operation sequences and checks the
// service against the model after every step.
func TestService_StateMachine(t *testing.T) {
	accounts := []id.AccountID{"alice", "bob", "carol"}
	seriesIDs := []id.SeriesID{"", "red", "blue"}

	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		svc := New(memory.New())
		m := &registryModel{
			owners:    map[id.NFTID]id.AccountID{},
			locked:    map[id.NFTID]bool{},
			series:    map[id.NFTID]id.SeriesID{},
			completed: map[id.SeriesID]bool{},
		}
		// Ids one past the allocator exercise the not-found paths.
		pickID := func(rt *rapid.T) id.NFTID {
			return id.NFTID(rapid.IntRange(0, int(m.next)).Draw(rt, "nft"))
		}

		rt.Repeat(map[string]func(*rapid.T){
			"create": func(rt *rapid.T) {
				owner := rapid.SampledFrom(accounts).Draw(rt, "owner")
				series := rapid.SampledFrom(seriesIDs).Draw(rt, "series")
				nftID, err := svc.Create(ctx, owner, nil, series)
				if !series.IsZero() && m.completed[series] {
					if !errors.Is(err, models.ErrSeriesCompleted) {
						rt.Fatalf("create in completed series: got %v", err)
					}
					return
				}
				if err != nil {
					rt.Fatalf("create: %v", err)
				}
				if nftID != m.next {
					rt.Fatalf("create allocated %d, want %d", nftID, m.next)
				}
				m.owners[nftID] = owner
				m.series[nftID] = series
				if _, ok := m.completed[series]; !ok && !series.IsZero() {
					m.completed[series] = false
				}
				m.next++
			},
			"lock": func(rt *rapid.T) {
				nftID := pickID(rt)
				err := svc.Lock(ctx, nftID)
				_, exists := m.owners[nftID]
				switch {
				case !exists:
					if !errors.Is(err, models.ErrInvalidNFTID) {
						rt.Fatalf("lock missing: got %v", err)
					}
				case m.locked[nftID]:
					if !errors.Is(err, models.ErrLocked) {
						rt.Fatalf("lock locked: got %v", err)
					}
				default:
					if err != nil {
						rt.Fatalf("lock: %v", err)
					}
					m.locked[nftID] = true
				}
			},
			"unlock": func(rt *rapid.T) {
				nftID := pickID(rt)
				ok, err := svc.Unlock(ctx, nftID)
				if err != nil {
					rt.Fatalf("unlock: %v", err)
				}
				_, exists := m.owners[nftID]
				if ok != exists {
					rt.Fatalf("unlock returned %v for exists=%v", ok, exists)
				}
				if exists {
					m.locked[nftID] = false
				}
			},
			"set_owner": func(rt *rapid.T) {
				nftID := pickID(rt)
				owner := rapid.SampledFrom(accounts).Draw(rt, "new_owner")
				err := svc.SetOwner(ctx, nftID, owner)
				_, exists := m.owners[nftID]
				switch {
				case !exists:
					if !errors.Is(err, models.ErrInvalidNFTID) {
						rt.Fatalf("set_owner missing: got %v", err)
					}
				case m.locked[nftID]:
					if !errors.Is(err, models.ErrLocked) {
						rt.Fatalf("set_owner locked: got %v", err)
					}
				default:
					if err != nil {
						rt.Fatalf("set_owner: %v", err)
					}
					m.owners[nftID] = owner
				}
			},
			"finish_series": func(rt *rapid.T) {
				series := rapid.SampledFrom(seriesIDs[1:]).Draw(rt, "finish")
				err := svc.FinishSeries(ctx, "alice", series)
				if _, exists := m.completed[series]; !exists {
					if !errors.Is(err, models.ErrInvalidSeriesID) {
						rt.Fatalf("finish missing series: got %v", err)
					}
					return
				}
				if err != nil {
					rt.Fatalf("finish: %v", err)
				}
				m.completed[series] = true
			},
			"": func(rt *rapid.T) {
				for nftID := id.NFTID(0); nftID <= m.next; nftID++ {
					wantOwner, exists := m.owners[nftID]

					owner, found, err := svc.Owner(ctx, nftID)
					if err != nil || found != exists || owner != wantOwner {
						rt.Fatalf("owner(%d) = %q,%v,%v want %q,%v", nftID, owner, found, err, wantOwner, exists)
					}
					locked, found, err := svc.Locked(ctx, nftID)
					if err != nil || found != exists || locked != m.locked[nftID] {
						rt.Fatalf("locked(%d) = %v,%v,%v want %v,%v", nftID, locked, found, err, m.locked[nftID], exists)
					}
					completed, found, err := svc.IsSeriesCompleted(ctx, nftID)
					wantCompleted := exists && m.completed[m.series[nftID]]
					if err != nil || found != exists || completed != wantCompleted {
						rt.Fatalf("is_series_completed(%d) = %v,%v,%v want %v,%v", nftID, completed, found, err, wantCompleted, exists)
					}
				}
			},
		})
	})
}
