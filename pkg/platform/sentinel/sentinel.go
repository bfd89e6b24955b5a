package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so the registry service can translate them into domain errors.
//
//   - ErrNotFound: record does not exist in the store
//   - ErrConflict: a concurrent writer won; the caller may retry
//   - ErrUnavailable: backend temporarily unreachable or lock not acquired in time
//   - ErrIDSpaceExhausted: the id counter has passed the largest NFT id
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrUnavailable      = errors.New("unavailable")
	ErrIDSpaceExhausted = errors.New("nft id space exhausted")
)
