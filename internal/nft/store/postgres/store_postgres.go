package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"nftregistry/internal/nft/models"
	"nftregistry/internal/nft/store/postgres/migrations"
	"nftregistry/internal/platform/migrate"
	id "nftregistry/pkg/domain"
	"nftregistry/pkg/platform/sentinel"
	"nftregistry/pkg/platform/tx"
)

// PostgresStore persists registry state in PostgreSQL. RunInTx takes a
// transaction-scoped advisory lock on its key, so calls on the same NFT or
// series queue behind each other.
type PostgresStore struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed registry store on an open pool.
func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// PoolConfig tunes the connection pool opened by Open.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open migrates the schema at dsn and returns a store on a fresh pool.
func Open(ctx context.Context, dsn string, pool PoolConfig) (*PostgresStore, error) {
	if err := Migrate(dsn); err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// Migrate applies the embedded schema migrations.
func Migrate(dsn string) error {
	return migrate.Up(migrations.FS, dsn)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.Run(ctx, s.db, nil, func(ctx context.Context) error {
		if key != "" {
			if _, err := tx.Conn(ctx, s.db).ExecContext(ctx,
				`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
		}
		return fn(ctx)
	})
}

// forUpdate locks the selected row when running inside a transaction.
func forUpdate(ctx context.Context) string {
	if _, ok := tx.From(ctx); ok {
		return " FOR UPDATE"
	}
	return ""
}

func (s *PostgresStore) GetNFT(ctx context.Context, nftID id.NFTID) (*models.NFT, error) {
	var (
		owner     string
		locked    bool
		data      []byte
		seriesID  sql.NullString
		createdAt time.Time
	)
	err := tx.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT owner, locked, data, series_id, created_at
		FROM nfts WHERE id = $1`+forUpdate(ctx), int64(nftID),
	).Scan(&owner, &locked, &data, &seriesID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find nft %d: %w", nftID, err)
	}
	return &models.NFT{
		ID:        nftID,
		Owner:     id.AccountID(owner),
		Locked:    locked,
		Data:      data,
		Series:    id.SeriesID(seriesID.String),
		CreatedAt: createdAt.UTC(),
	}, nil
}

func (s *PostgresStore) PutNFT(ctx context.Context, nft *models.NFT) error {
	data := nft.Data
	if data == nil {
		data = []byte{}
	}
	seriesID := sql.NullString{String: string(nft.Series), Valid: nft.HasSeries()}
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO nfts (id, owner, locked, data, series_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET owner = EXCLUDED.owner, locked = EXCLUDED.locked`,
		int64(nft.ID), string(nft.Owner), nft.Locked, data, seriesID, nft.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save nft %d: %w", nft.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetSeries(ctx context.Context, seriesID id.SeriesID) (*models.Series, error) {
	var (
		owner     string
		completed bool
		createdAt time.Time
	)
	err := tx.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT owner, completed, created_at FROM nft_series WHERE id = $1`+forUpdate(ctx), string(seriesID),
	).Scan(&owner, &completed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find series %q: %w", seriesID, err)
	}
	return &models.Series{
		ID:        seriesID,
		Owner:     id.AccountID(owner),
		Completed: completed,
		CreatedAt: createdAt.UTC(),
	}, nil
}

func (s *PostgresStore) PutSeries(ctx context.Context, series *models.Series) error {
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO nft_series (id, owner, completed, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET completed = EXCLUDED.completed`,
		string(series.ID), string(series.Owner), series.Completed, series.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save series %q: %w", series.ID, err)
	}
	return nil
}

// sequenceLimitExceeded is SQLSTATE 2200H, raised once nextval passes MAXVALUE.
const sequenceLimitExceeded = pq.ErrorCode("2200H")

// NextNFTID draws from a sequence capped at the uint32 range.
func (s *PostgresStore) NextNFTID(ctx context.Context) (id.NFTID, error) {
	var next int64
	if err := tx.Conn(ctx, s.db).QueryRowContext(ctx, `SELECT nextval('nft_id_seq')`).Scan(&next); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == sequenceLimitExceeded {
			return 0, sentinel.ErrIDSpaceExhausted
		}
		return 0, fmt.Errorf("allocate nft id: %w", err)
	}
	return id.NFTID(next), nil
}

func (s *PostgresStore) ListSeriesNFTs(ctx context.Context, seriesID id.SeriesID) ([]id.NFTID, error) {
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT id FROM nfts WHERE series_id = $1 ORDER BY id`, string(seriesID))
	if err != nil {
		return nil, fmt.Errorf("list series members: %w", err)
	}
	defer rows.Close()

	var members []id.NFTID
	for rows.Next() {
		var nftID int64
		if err := rows.Scan(&nftID); err != nil {
			return nil, fmt.Errorf("scan series member: %w", err)
		}
		members = append(members, id.NFTID(nftID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list series members: %w", err)
	}
	return members, nil
}
