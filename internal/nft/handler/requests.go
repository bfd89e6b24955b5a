package handler

import (
	"strings"

	id "nftregistry/pkg/domain"
	dErrors "nftregistry/pkg/domain-errors"
)

// CreateNFTRequest is the body of POST /nfts. Data is base64 in JSON.
type CreateNFTRequest struct {
	Data     []byte `json:"data"`
	SeriesID string `json:"series_id,omitempty"`

	parsedSeriesID id.SeriesID
}

func (r *CreateNFTRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.SeriesID == "" {
		return nil
	}
	seriesID, err := id.ParseSeriesID(r.SeriesID)
	if err != nil {
		return err
	}
	r.parsedSeriesID = seriesID
	return nil
}

// ParsedSeriesID is empty for a standalone NFT.
func (r *CreateNFTRequest) ParsedSeriesID() id.SeriesID {
	return r.parsedSeriesID
}

// SetOwnerRequest is the body of PUT /nfts/{id}/owner.
type SetOwnerRequest struct {
	Owner string `json:"owner"`

	parsedOwner id.AccountID
}

func (r *SetOwnerRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Owner = strings.TrimSpace(r.Owner)
	if r.Owner == "" {
		return dErrors.New(dErrors.CodeValidation, "owner is required")
	}
	owner, err := id.ParseAccountID(r.Owner)
	if err != nil {
		return err
	}
	r.parsedOwner = owner
	return nil
}

func (r *SetOwnerRequest) ParsedOwner() id.AccountID {
	return r.parsedOwner
}

// CreateSeriesRequest is the body of POST /series.
type CreateSeriesRequest struct {
	SeriesID string `json:"series_id"`

	parsedSeriesID id.SeriesID
}

func (r *CreateSeriesRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.SeriesID == "" {
		return dErrors.New(dErrors.CodeValidation, "series_id is required")
	}
	seriesID, err := id.ParseSeriesID(r.SeriesID)
	if err != nil {
		return err
	}
	r.parsedSeriesID = seriesID
	return nil
}

func (r *CreateSeriesRequest) ParsedSeriesID() id.SeriesID {
	return r.parsedSeriesID
}
