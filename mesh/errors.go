package mesh

import (
	"errors"
	"fmt"
)

// ErrLoadSuperseded is returned by AssetLoader.Load when a newer load started
// before this one finished. The caller should drop the result silently.
var ErrLoadSuperseded = errors.New("asset load superseded by a newer request")

// ErrMissingResolution means the metadata has no usable resolution.
var ErrMissingResolution = errors.New("map metadata has no positive resolution")

// ErrMissingOrigin means the metadata has no origin and no affine.
var ErrMissingOrigin = errors.New("map metadata has no origin")

// AssetNotFoundError reports a required asset that the source does not have.
type AssetNotFoundError struct {
	Name string
}

func (e *AssetNotFoundError) Error() string {
	return fmt.Sprintf("asset not found: %s", e.Name)
}

// FormatError reports a raster whose header cannot be parsed.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "raster format: " + e.Reason
}

// SizeMismatchError reports a raster payload whose length disagrees with its
// header dimensions.
type SizeMismatchError struct {
	Expected int
	Actual   int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("raster payload size mismatch: expected %d bytes, got %d", e.Expected, e.Actual)
}

// ProfileResolutionError means no profile could be chosen.
type ProfileResolutionError struct {
	Requested string
	Reason    string
}

func (e *ProfileResolutionError) Error() string {
	if e.Requested != "" {
		return fmt.Sprintf("cannot resolve map profile %q: %s", e.Requested, e.Reason)
	}
	return "cannot resolve map profile: " + e.Reason
}

// MapAssetError wraps a failure to load or decode one asset of a profile.
type MapAssetError struct {
	Asset string
	Err   error
}

func (e *MapAssetError) Error() string {
	return fmt.Sprintf("map asset %s: %v", e.Asset, e.Err)
}

func (e *MapAssetError) Unwrap() error {
	return e.Err
}
