package hls

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/basshelal/hls2vod/internal/httpclient"
)

// fakeFetcher serves in-memory bodies keyed by URL.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	delays map[string]time.Duration
	calls  map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		bodies: make(map[string][]byte),
		delays: make(map[string]time.Duration),
		calls:  make(map[string]int),
	}
}

func (f *fakeFetcher) set(rawURL string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[rawURL] = body
}

func (f *fakeFetcher) delay(rawURL string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays[rawURL] = d
}

func (f *fakeFetcher) count(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rawURL]
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, *url.URL, error) {
	f.mu.Lock()
	f.calls[rawURL]++
	body, ok := f.bodies[rawURL]
	d := f.delays[rawURL]
	f.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if !ok {
		return nil, nil, &httpclient.StatusError{URL: rawURL, StatusCode: 404}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, err
	}
	return body, u, nil
}

func mediaPlaylist(targetDuration int, uris ...string) []byte {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n#EXT-X-MEDIA-SEQUENCE:0\n", targetDuration)
	for _, u := range uris {
		fmt.Fprintf(&b, "#EXTINF:%d.0,\n%s\n", targetDuration, u)
	}
	return []byte(b.String())
}

type variantDef struct {
	bandwidth int
	uri       string
}

func masterPlaylist(variants ...variantDef) []byte {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	for _, v := range variants {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d\n%s\n", v.bandwidth, v.uri)
	}
	return []byte(b.String())
}
