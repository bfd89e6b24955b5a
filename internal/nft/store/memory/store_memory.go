package memory

import (
	"context"
	"hash/fnv"
	"math"
	"slices"
	"sync"

	"nftregistry/internal/nft/models"
	id "nftregistry/pkg/domain"
	"nftregistry/pkg/platform/sentinel"
)

// numShards spreads transaction keys over independent mutexes so calls on
// different NFTs or series do not contend.
const numShards = 128

// InMemoryStore keeps registry state in maps. Writes made inside RunInTx are
// buffered and applied together when the callback returns nil.
type InMemoryStore struct {
	shards [numShards]sync.Mutex

	mu      sync.RWMutex
	nfts    map[id.NFTID]*models.NFT
	series  map[id.SeriesID]*models.Series
	members map[id.SeriesID][]id.NFTID
	nextID  uint64
}

func New() *InMemoryStore {
	return &InMemoryStore{
		nfts:    make(map[id.NFTID]*models.NFT),
		series:  make(map[id.SeriesID]*models.Series),
		members: make(map[id.SeriesID][]id.NFTID),
	}
}

type txKey struct{}

type pending struct {
	nfts   map[id.NFTID]*models.NFT
	series map[id.SeriesID]*models.Series
}

func pendingFrom(ctx context.Context) *pending {
	p, _ := ctx.Value(txKey{}).(*pending)
	return p
}

func (s *InMemoryStore) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if pendingFrom(ctx) != nil {
		return fn(ctx)
	}

	if key != "" {
		shard := &s.shards[shardFor(key)]
		shard.Lock()
		defer shard.Unlock()
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	p := &pending{
		nfts:   make(map[id.NFTID]*models.NFT),
		series: make(map[id.SeriesID]*models.Series),
	}
	if err := fn(context.WithValue(ctx, txKey{}, p)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for seriesID, series := range p.series {
		s.series[seriesID] = series
	}
	for _, nft := range p.nfts {
		s.putNFTLocked(nft)
	}
	return nil
}

func shardFor(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % numShards
}

func (s *InMemoryStore) GetNFT(ctx context.Context, nftID id.NFTID) (*models.NFT, error) {
	if p := pendingFrom(ctx); p != nil {
		if nft, ok := p.nfts[nftID]; ok {
			return nft.Clone(), nil
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	nft, ok := s.nfts[nftID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return nft.Clone(), nil
}

func (s *InMemoryStore) PutNFT(ctx context.Context, nft *models.NFT) error {
	if p := pendingFrom(ctx); p != nil {
		p.nfts[nft.ID] = nft.Clone()
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putNFTLocked(nft.Clone())
	return nil
}

func (s *InMemoryStore) putNFTLocked(nft *models.NFT) {
	if _, exists := s.nfts[nft.ID]; !exists && nft.HasSeries() {
		s.members[nft.Series] = append(s.members[nft.Series], nft.ID)
	}
	s.nfts[nft.ID] = nft
}

func (s *InMemoryStore) GetSeries(ctx context.Context, seriesID id.SeriesID) (*models.Series, error) {
	if p := pendingFrom(ctx); p != nil {
		if series, ok := p.series[seriesID]; ok {
			return series.Clone(), nil
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	series, ok := s.series[seriesID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return series.Clone(), nil
}

func (s *InMemoryStore) PutSeries(ctx context.Context, series *models.Series) error {
	if p := pendingFrom(ctx); p != nil {
		p.series[series.ID] = series.Clone()
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[series.ID] = series.Clone()
	return nil
}

// NextNFTID allocates outside any pending transaction, so a rolled back
// call leaves a gap.
func (s *InMemoryStore) NextNFTID(_ context.Context) (id.NFTID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextID > math.MaxUint32 {
		return 0, sentinel.ErrIDSpaceExhausted
	}
	next := id.NFTID(s.nextID)
	s.nextID++
	return next, nil
}

// ListSeriesNFTs returns committed members in ascending id order.
func (s *InMemoryStore) ListSeriesNFTs(_ context.Context, seriesID id.SeriesID) ([]id.NFTID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := slices.Clone(s.members[seriesID])
	slices.Sort(members)
	return members, nil
}

// Len returns the number of committed NFTs.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nfts)
}
