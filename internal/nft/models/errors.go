package models

import dErrors "nftregistry/pkg/domain-errors"

// Registry failures. Compare with errors.Is; matching is by code so wrapped
// or re-messaged errors still match.
var (
	// ErrInvalidNFTID: the referenced NFT does not exist.
	ErrInvalidNFTID = dErrors.New(dErrors.CodeInvalidNFTID, "nft does not exist")
	// ErrLocked: the NFT exists but its lock flag forbids the mutation.
	ErrLocked = dErrors.New(dErrors.CodeLocked, "nft is locked")
	// ErrInvalidSeriesID: the referenced series does not exist.
	ErrInvalidSeriesID = dErrors.New(dErrors.CodeInvalidSeriesID, "series does not exist")
	// ErrSeriesCompleted: a finished series does not accept new members.
	ErrSeriesCompleted = dErrors.New(dErrors.CodeSeriesCompleted, "series is completed")
	// ErrSeriesExists: explicit series creation collided with an existing id.
	ErrSeriesExists = dErrors.New(dErrors.CodeSeriesExists, "series already exists")
)
