package media

import (
	"context"
	"io"
	"net/http"
	"strings"
)

// maxThumbnailBytes is the upper size bound Telegram accepts for audio covers.
const maxThumbnailBytes = 200 * 1024

// HTTPThumbnailValidator checks that a thumbnail is reachable, is a JPEG,
// and stays under the size limit.
type HTTPThumbnailValidator struct {
	client *http.Client
}

// NewThumbnailValidator builds a validator around the given HTTP client.
func NewThumbnailValidator(client *http.Client) *HTTPThumbnailValidator {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPThumbnailValidator{client: client}
}

// Valid reports whether the URL serves an acceptable cover image.
func (v *HTTPThumbnailValidator) Valid(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "image/jpeg") {
		return false
	}
	return resp.ContentLength >= 0 && resp.ContentLength < maxThumbnailBytes
}
