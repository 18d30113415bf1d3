package resolver

import "errors"

// Error kinds returned by Service.ResolveMedia. Every kind aborts the attempt
// before anything is written to the store.
var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrNoSuitableFormat  = errors.New("no suitable audio format found")
	ErrMetadataNotFound  = errors.New("song metadata not found")
	ErrThumbnailFailed   = errors.New("thumbnail processing failed")
	ErrResolutionFailed  = errors.New("media resolution failed")
	ErrStore             = errors.New("resolution cache unavailable")
)

// errorKind names the taxonomy entry err belongs to, for logs and metrics.
func errorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidIdentifier):
		return "invalid_identifier"
	case errors.Is(err, ErrNoSuitableFormat):
		return "no_suitable_format"
	case errors.Is(err, ErrMetadataNotFound):
		return "metadata_not_found"
	case errors.Is(err, ErrThumbnailFailed):
		return "thumbnail_failed"
	case errors.Is(err, ErrResolutionFailed):
		return "resolution_failed"
	case errors.Is(err, ErrStore):
		return "store_unavailable"
	default:
		return "internal"
	}
}
