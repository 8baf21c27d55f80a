package hls

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

// Fetcher retrieves a URL and reports the final URL after redirects.
// *httpclient.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, *url.URL, error)
}

// parseManifest decodes an HLS playlist, mapping decoder failures to
// ErrInvalidManifest.
func parseManifest(data []byte) (playlist.Playlist, error) {
	pl, err := playlist.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	return pl, nil
}

// parseMediaPlaylist decodes data and requires a media playlist with at
// least one segment.
func parseMediaPlaylist(data []byte) (*playlist.Media, error) {
	pl, err := parseManifest(data)
	if err != nil {
		return nil, err
	}
	media, ok := pl.(*playlist.Media)
	if !ok {
		return nil, fmt.Errorf("%w: expected a media playlist, got %T", ErrInvalidManifest, pl)
	}
	if len(media.Segments) == 0 {
		return nil, fmt.Errorf("%w: media playlist has no segments", ErrInvalidManifest)
	}
	return media, nil
}

// resolveReference resolves ref against base using RFC 3986 rules.
func resolveReference(base *url.URL, ref string) (string, error) {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parsing uri %q: %w", ref, err)
	}
	if base == nil {
		return r.String(), nil
	}
	return base.ResolveReference(r).String(), nil
}

// SegmentFilename derives a local file name from a segment URL: the query
// string and fragment are dropped and the final path element is kept.
func SegmentFilename(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	name := path.Base(p)
	if name == "." || name == "/" || name == "" {
		return "segment"
	}
	return name
}
