package lshforest

import "errors"

var (
	// ErrBandsExceedDims is returned by the constructors when the band
	// count is zero or larger than the signature width.
	ErrBandsExceedDims = errors.New("lshforest: band count must be in [1, dims]")

	// ErrStoreDisabled is returned by operations that need raw signatures
	// when the forest was constructed without a signature store.
	ErrStoreDisabled = errors.New("lshforest: forest was not constructed with a signature store")

	// ErrStaleIndex is returned by queries when signatures were inserted
	// after the last Index call.
	ErrStaleIndex = errors.New("lshforest: index is stale, call Index before querying")

	// ErrOddDims is returned by weighted refinement when the signature
	// width is odd; weighted distance pairs adjacent positions.
	ErrOddDims = errors.New("lshforest: weighted distance requires an even signature width")

	// ErrWidthMismatch is returned when a signature does not have exactly
	// Dims words.
	ErrWidthMismatch = errors.New("lshforest: signature width does not match the forest dimensions")
)
