package hls

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"

	"github.com/basshelal/hls2vod/internal/httpclient"
	"github.com/basshelal/hls2vod/internal/observability"
)

// Resolver turns a source URL, which may point at a master playlist, into
// the URL of a concrete media playlist.
type Resolver struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(fetcher Fetcher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = observability.Discard()
	}
	return &Resolver{
		fetcher: fetcher,
		logger:  observability.WithComponent(logger, "resolver"),
	}
}

// Resolve fetches sourceURL. A media playlist is returned unchanged; for a
// master playlist one variant is chosen by policy and its URI resolved
// against the manifest's location.
func (r *Resolver) Resolve(ctx context.Context, sourceURL string, policy BandwidthPolicy) (string, error) {
	body, base, err := r.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return "", &FetchError{URL: sourceURL, Err: err}
	}

	pl, err := parseManifest(body)
	if err != nil {
		return "", err
	}

	switch p := pl.(type) {
	case *playlist.Media:
		if len(p.Segments) == 0 {
			return "", fmt.Errorf("%w: media playlist has no segments", ErrInvalidManifest)
		}
		r.logger.DebugContext(ctx, "source is a media playlist",
			slog.String("url", httpclient.ObfuscateString(sourceURL)),
			slog.Int("segments", len(p.Segments)),
		)
		return sourceURL, nil

	case *playlist.Multivariant:
		variant, err := SelectVariant(p.Variants, policy)
		if err != nil {
			return "", err
		}
		resolved, err := resolveReference(base, variant.URI)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
		r.logger.InfoContext(ctx, "selected variant",
			slog.String("source", httpclient.ObfuscateString(sourceURL)),
			slog.String("playlist", httpclient.ObfuscateString(resolved)),
			slog.Int("bandwidth", variant.Bandwidth),
			slog.Int("variants", len(p.Variants)),
			slog.String("policy", policy.String()),
		)
		return resolved, nil

	default:
		return "", fmt.Errorf("%w: unsupported playlist type %T", ErrInvalidManifest, pl)
	}
}
