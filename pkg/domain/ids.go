package domain

import (
	"strconv"
	"strings"
	"unicode/utf8"

	dErrors "nftregistry/pkg/domain-errors"
)

// NFTID identifies an NFT. Ids are allocated sequentially by the registry
// store and never reused.
type NFTID uint32

// AccountID is an opaque account identifier resolved by the host before it
// reaches the registry. Only equality is meaningful.
type AccountID string

// SeriesID is chosen by the creator of a series. The empty value means
// "no series".
type SeriesID string

const (
	MaxAccountIDLength = 256
	MaxSeriesIDLength  = 128
)

func (id NFTID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

func (id AccountID) String() string { return string(id) }

func (id AccountID) IsZero() bool { return id == "" }

func (id SeriesID) String() string { return string(id) }

func (id SeriesID) IsZero() bool { return id == "" }

// ParseNFTID parses a decimal NFT id.
func ParseNFTID(s string) (NFTID, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "nft id is required")
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "nft id must be an unsigned 32-bit integer")
	}
	return NFTID(v), nil
}

// ParseAccountID validates an account identifier at a trust boundary.
func ParseAccountID(s string) (AccountID, error) {
	if err := validateOpaque("account id", s, MaxAccountIDLength); err != nil {
		return "", err
	}
	return AccountID(s), nil
}

// ParseSeriesID validates a series identifier at a trust boundary.
func ParseSeriesID(s string) (SeriesID, error) {
	if err := validateOpaque("series id", s, MaxSeriesIDLength); err != nil {
		return "", err
	}
	return SeriesID(s), nil
}

func validateOpaque(name, s string, maxLen int) error {
	if s == "" {
		return dErrors.New(dErrors.CodeInvalidInput, name+" is required")
	}
	if len(s) > maxLen {
		return dErrors.New(dErrors.CodeInvalidInput, name+" must be at most "+strconv.Itoa(maxLen)+" bytes")
	}
	if !utf8.ValidString(s) {
		return dErrors.New(dErrors.CodeInvalidInput, name+" must be valid UTF-8")
	}
	if strings.IndexFunc(s, isControl) >= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, name+" must not contain control characters")
	}
	return nil
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}
