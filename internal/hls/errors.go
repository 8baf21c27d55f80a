package hls

import (
	"errors"
	"fmt"

	"github.com/basshelal/hls2vod/internal/httpclient"
)

var (
	// ErrInvalidManifest is returned when a playlist cannot be parsed or
	// carries neither media segments nor variant streams.
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrMissingBandwidthPolicy is returned when a master playlist offers
	// several variants and no bandwidth policy was given to choose one.
	ErrMissingBandwidthPolicy = errors.New("bandwidth policy required to choose between variants")

	// ErrInvalidBandwidthPolicy is returned for a policy that is neither
	// best, worst nor a positive number.
	ErrInvalidBandwidthPolicy = errors.New("invalid bandwidth policy")

	// ErrStallTimeout is returned by Downloader.Start when no new segment
	// appeared within the stall timeout.
	ErrStallTimeout = errors.New("no new segments before stall timeout")
)

// FetchError wraps a network or HTTP status failure for a playlist or segment.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", httpclient.ObfuscateString(e.URL), e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
