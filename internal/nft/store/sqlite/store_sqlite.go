// Package sqlite provides a SQLite-backed registry store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"nftregistry/internal/nft/models"
	"nftregistry/internal/nft/store/sqlite/migrations"
	"nftregistry/internal/platform/migrate"
	id "nftregistry/pkg/domain"
	"nftregistry/pkg/platform/sentinel"
	"nftregistry/pkg/platform/tx"
)

// Store persists registry state in SQLite. A single connection is used so
// every transaction begins IMMEDIATE and writers never interleave.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite registry store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := migrate.Up(migrations.FS, "sqlite://"+cleanPath); err != nil {
		return nil, err
	}

	dsn := cleanPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// DB exposes the handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.sqlDB
}

func (s *Store) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.Run(ctx, s.sqlDB, nil, fn)
}

func (s *Store) GetNFT(ctx context.Context, nftID id.NFTID) (*models.NFT, error) {
	var (
		owner     string
		locked    bool
		data      []byte
		seriesID  sql.NullString
		createdAt int64
	)
	err := tx.Conn(ctx, s.sqlDB).QueryRowContext(ctx, `
		SELECT owner, locked, data, series_id, created_at
		FROM nfts WHERE id = ?`, int64(nftID),
	).Scan(&owner, &locked, &data, &seriesID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read nft %d: %w", nftID, err)
	}
	return &models.NFT{
		ID:        nftID,
		Owner:     id.AccountID(owner),
		Locked:    locked,
		Data:      data,
		Series:    id.SeriesID(seriesID.String),
		CreatedAt: fromMillis(createdAt),
	}, nil
}

// PutNFT inserts or updates the record. Data, series and created_at are
// fixed at insert.
func (s *Store) PutNFT(ctx context.Context, nft *models.NFT) error {
	data := nft.Data
	if data == nil {
		data = []byte{}
	}
	seriesID := sql.NullString{String: string(nft.Series), Valid: nft.HasSeries()}
	_, err := tx.Conn(ctx, s.sqlDB).ExecContext(ctx, `
		INSERT INTO nfts (id, owner, locked, data, series_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET owner = excluded.owner, locked = excluded.locked`,
		int64(nft.ID), string(nft.Owner), nft.Locked, data, seriesID, toMillis(nft.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("write nft %d: %w", nft.ID, err)
	}
	return nil
}

func (s *Store) GetSeries(ctx context.Context, seriesID id.SeriesID) (*models.Series, error) {
	var (
		owner     string
		completed bool
		createdAt int64
	)
	err := tx.Conn(ctx, s.sqlDB).QueryRowContext(ctx, `
		SELECT owner, completed, created_at FROM nft_series WHERE id = ?`, string(seriesID),
	).Scan(&owner, &completed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read series %q: %w", seriesID, err)
	}
	return &models.Series{
		ID:        seriesID,
		Owner:     id.AccountID(owner),
		Completed: completed,
		CreatedAt: fromMillis(createdAt),
	}, nil
}

func (s *Store) PutSeries(ctx context.Context, series *models.Series) error {
	_, err := tx.Conn(ctx, s.sqlDB).ExecContext(ctx, `
		INSERT INTO nft_series (id, owner, completed, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET completed = excluded.completed`,
		string(series.ID), string(series.Owner), series.Completed, toMillis(series.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("write series %q: %w", series.ID, err)
	}
	return nil
}

func (s *Store) NextNFTID(ctx context.Context) (id.NFTID, error) {
	var next int64
	err := tx.Conn(ctx, s.sqlDB).QueryRowContext(ctx, `
		UPDATE nft_counter SET next_id = next_id + 1
		WHERE singleton = 0 AND next_id <= ?
		RETURNING next_id - 1`, int64(math.MaxUint32),
	).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sentinel.ErrIDSpaceExhausted
	}
	if err != nil {
		return 0, fmt.Errorf("allocate nft id: %w", err)
	}
	return id.NFTID(next), nil
}

func (s *Store) ListSeriesNFTs(ctx context.Context, seriesID id.SeriesID) ([]id.NFTID, error) {
	rows, err := tx.Conn(ctx, s.sqlDB).QueryContext(ctx, `
		SELECT id FROM nfts WHERE series_id = ? ORDER BY id`, string(seriesID))
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
