package redis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"nftregistry/internal/nft/models"
	id "nftregistry/pkg/domain"
	"nftregistry/pkg/platform/sentinel"
)

const (
	nftKeyPrefix     = "nft:record:"
	seriesKeyPrefix  = "nft:series:"
	membersKeyPrefix = "nft:members:"
	lockKeyPrefix    = "nft:lock:"
	counterKey       = "nft:counter"

	defaultLockTTL   = 30 * time.Second
	defaultLockWait  = 5 * time.Second
	lockPollInterval = 10 * time.Millisecond
)

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps registry records in hashes with a sorted-set member
// index per series. RunInTx takes a per-key lease (SET NX PX), buffers
// writes and applies them in one MULTI/EXEC.
type RedisStore struct {
	client   *redis.Client
	lockTTL  time.Duration
	lockWait time.Duration
	logger   *slog.Logger
}

type Option func(*RedisStore)

// WithLockTTL bounds how long a lease lives if its holder dies. A callback
// that outlives the TTL loses exclusivity.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *RedisStore) {
		s.lockTTL = ttl
	}
}

// WithLockWait bounds how long RunInTx waits for a busy key before
// reporting sentinel.ErrUnavailable.
func WithLockWait(wait time.Duration) Option {
	return func(s *RedisStore) {
		s.lockWait = wait
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *RedisStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(client *redis.Client, opts ...Option) *RedisStore {
	s := &RedisStore{
		client:   client,
		lockTTL:  defaultLockTTL,
		lockWait: defaultLockWait,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type pendingKey struct{}

type pending struct {
	nfts   map[id.NFTID]*models.NFT
	series map[id.SeriesID]*models.Series
}

func pendingFrom(ctx context.Context) *pending {
	p, _ := ctx.Value(pendingKey{}).(*pending)
	return p
}

func (s *RedisStore) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if pendingFrom(ctx) != nil {
		return fn(ctx)
	}
	if key != "" {
		release, err := s.acquire(ctx, key)
		if err != nil {
			return err
		}
		defer release()
	}

	p := &pending{
		nfts:   make(map[id.NFTID]*models.NFT),
		series: make(map[id.SeriesID]*models.Series),
	}
	if err := fn(context.WithValue(ctx, pendingKey{}, p)); err != nil {
		return err
	}
	return s.commit(ctx, p)
}

// release frees the lease if this holder still owns it. A failed release
// leaves the key busy until the lease TTL runs out.
func (s *RedisStore) release(ctx context.Context, key, lockKey, token string) {
	deleted, err := releaseScript.Run(ctx, s.client, []string{lockKey}, token).Int64()
	switch {
	case err != nil:
		s.logger.WarnContext(ctx, "failed to release redis lock",
			"key", key,
			"lock_ttl", s.lockTTL,
			"error", err,
		)
	case deleted == 0:
		s.logger.WarnContext(ctx, "redis lock lease expired before release",
			"key", key,
			"lock_ttl", s.lockTTL,
		)
	}
}

func (s *RedisStore) acquire(ctx context.Context, key string) (func(), error) {
	lockKey := lockKeyPrefix + key
	token := uuid.NewString()
	waitCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		ok, err := s.client.SetNX(waitCtx, lockKey, token, s.lockTTL).Result()
		if err != nil && waitCtx.Err() == nil {
			return nil, fmt.Errorf("acquire lock %q: %w", key, err)
		}
		if ok {
			return func() { s.release(context.WithoutCancel(ctx), key, lockKey, token) }, nil
		}
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("lock %q busy: %w", key, sentinel.ErrUnavailable)
		case <-ticker.C:
		}
	}
}

func (s *RedisStore) commit(ctx context.Context, p *pending) error {
	if len(p.nfts) == 0 && len(p.series) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, series := range p.series {
			pipe.HSet(ctx, seriesKeyPrefix+string(series.ID), seriesFields(series))
		}
		for _, nft := range p.nfts {
			s.queueNFT(ctx, pipe, nft)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit registry writes: %w", err)
	}
	return nil
}

func nftKey(nftID id.NFTID) string {
	return nftKeyPrefix + nftID.String()
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func seriesFields(series *models.Series) map[string]any {
	return map[string]any{
		"owner":      string(series.Owner),
		"completed":  boolField(series.Completed),
		"created_at": series.CreatedAt.UnixMilli(),
	}
}

func (s *RedisStore) queueNFT(ctx context.Context, pipe redis.Pipeliner, nft *models.NFT) {
	pipe.HSet(ctx, nftKey(nft.ID), map[string]any{
		"owner":      string(nft.Owner),
		"locked":     boolField(nft.Locked),
		"data":       nft.Data,
		"series":     string(nft.Series),
		"created_at": nft.CreatedAt.UnixMilli(),
	})
	if nft.HasSeries() {
		pipe.ZAdd(ctx, membersKeyPrefix+string(nft.Series), redis.Z{
			Score:  float64(nft.ID),
			Member: nft.ID.String(),
		})
	}
}

func (s *RedisStore) GetNFT(ctx context.Context, nftID id.NFTID) (*models.NFT, error) {
	if p := pendingFrom(ctx); p != nil {
		if nft, ok := p.nfts[nftID]; ok {
			return nft.Clone(), nil
		}
	}
	fields, err := s.client.HGetAll(ctx, nftKey(nftID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read nft %d: %w", nftID, err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode nft %d created_at: %w", nftID, err)
	}
	return &models.NFT{
		ID:        nftID,
		Owner:     id.AccountID(fields["owner"]),
		Locked:    fields["locked"] == "1",
		Data:      []byte(fields["data"]),
		Series:    id.SeriesID(fields["series"]),
		CreatedAt: time.UnixMilli(createdAt).UTC(),
	}, nil
}

func (s *RedisStore) PutNFT(ctx context.Context, nft *models.NFT) error {
	if p := pendingFrom(ctx); p != nil {
		p.nfts[nft.ID] = nft.Clone()
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queueNFT(ctx, pipe, nft)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write nft %d: %w", nft.ID, err)
	}
	return nil
}

func (s *RedisStore) GetSeries(ctx context.Context, seriesID id.SeriesID) (*models.Series, error) {
	if p := pendingFrom(ctx); p != nil {
		if series, ok := p.series[seriesID]; ok {
			return series.Clone(), nil
		}
	}
	fields, err := s.client.HGetAll(ctx, seriesKeyPrefix+string(seriesID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read series %q: %w", seriesID, err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode series %q created_at: %w", seriesID, err)
	}
	return &models.Series{
		ID:        seriesID,
		Owner:     id.AccountID(fields["owner"]),
		Completed: fields["completed"] == "1",
		CreatedAt: time.UnixMilli(createdAt).UTC(),
	}, nil
}

func (s *RedisStore) PutSeries(ctx context.Context, series *models.Series) error {
	if p := pendingFrom(ctx); p != nil {
		p.series[series.ID] = series.Clone()
		return nil
	}
	if err := s.client.HSet(ctx, seriesKeyPrefix+string(series.ID), seriesFields(series)).Err(); err != nil {
		return fmt.Errorf("write series %q: %w", series.ID, err)
	}
	return nil
}

// NextNFTID uses INCR, which is not undone by a failed RunInTx.
func (s *RedisStore) NextNFTID(ctx context.Context) (id.NFTID, error) {
	n, err := s.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate nft id: %w", err)
	}
	next := n - 1
	if next > math.MaxUint32 {
		return 0, sentinel.ErrIDSpaceExhausted
	}
	return id.NFTID(next), nil
}

func (s *RedisStore) ListSeriesNFTs(ctx context.Context, seriesID id.SeriesID) ([]id.NFTID, error) {
	raw, err := s.client.ZRange(ctx, membersKeyPrefix+string(seriesID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list series members: %w", err)
	}
	members := make([]id.NFTID, 0, len(raw))
	for _, member := range raw {
		nftID, err := id.ParseNFTID(member)
		if err != nil {
			return nil, fmt.Errorf("decode series member %q: %w", member, err)
		}
		members = append(members, nftID)
	}
	return members, nil
}
