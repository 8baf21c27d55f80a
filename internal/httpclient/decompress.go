package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// wrapDecompression replaces resp.Body with a decoding reader matching its
// Content-Encoding. Unknown encodings are passed through untouched.
func (c *Client) wrapDecompression(resp *http.Response) io.ReadCloser {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get(HeaderContentEncoding)))

	var reader io.Reader
	switch encoding {
	case "":
		return resp.Body
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			c.logger.Warn("invalid gzip body, returning raw bytes",
				slog.String("error", err.Error()),
			)
			return resp.Body
		}
		reader = gz
	case "deflate":
		reader = flate.NewReader(resp.Body)
	case "br":
		reader = brotli.NewReader(resp.Body)
	default:
		c.logger.Debug("unknown content encoding, returning raw body",
			slog.String("encoding", encoding),
		)
		return resp.Body
	}

	resp.Header.Del(HeaderContentEncoding)
	resp.ContentLength = -1
	return &decodingBody{Reader: reader, body: resp.Body}
}

// decodingBody closes both the decoder (when it has a Close) and the wire body.
type decodingBody struct {
	io.Reader
	body io.Closer
}

func (d *decodingBody) Close() error {
	if closer, ok := d.Reader.(io.Closer); ok {
		_ = closer.Close()
	}
	return d.body.Close()
}
