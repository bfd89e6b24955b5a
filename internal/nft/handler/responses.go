package handler

import (
	"time"

	"nftregistry/internal/nft/models"
)

type CreateNFTResponse struct {
	ID uint32 `json:"id"`
}

type NFTResponse struct {
	ID        uint32    `json:"id"`
	Owner     string    `json:"owner"`
	Locked    bool      `json:"locked"`
	Data      []byte    `json:"data"`
	SeriesID  string    `json:"series_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func FromNFT(nft *models.NFT) NFTResponse {
	data := nft.Data
	if data == nil {
		data = []byte{}
	}
	return NFTResponse{
		ID:        uint32(nft.ID),
		Owner:     string(nft.Owner),
		Locked:    nft.Locked,
		Data:      data,
		SeriesID:  string(nft.Series),
		CreatedAt: nft.CreatedAt,
	}
}

type OwnerResponse struct {
	ID    uint32 `json:"id"`
	Owner string `json:"owner"`
}

type LockedResponse struct {
	ID     uint32 `json:"id"`
	Locked bool   `json:"locked"`
}

type UnlockResponse struct {
	ID    uint32 `json:"id"`
	Found bool   `json:"found"`
}

type SeriesCompletedResponse struct {
	ID        uint32 `json:"id"`
	Completed bool   `json:"completed"`
}

type SeriesResponse struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
	NFTs      []uint32  `json:"nfts"`
}

func FromSeries(details *models.SeriesDetails) SeriesResponse {
	members := make([]uint32, 0, len(details.NFTs))
	for _, nftID := range details.NFTs {
		members = append(members, uint32(nftID))
	}
	return SeriesResponse{
		ID:        string(details.ID),
		Owner:     string(details.Owner),
		Completed: details.Completed,
		CreatedAt: details.CreatedAt,
		NFTs:      members,
	}
}
