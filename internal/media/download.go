package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Downloader fetches media payloads over HTTP with a size cap.
type Downloader struct {
	client   *http.Client
	maxBytes int64
}

// NewDownloader builds a downloader. maxBytes caps a single payload.
func NewDownloader(client *http.Client, maxBytes int64) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{client: client, maxBytes: maxBytes}
}

// Fetch downloads the payload at url, passing through resolver-provided
// request headers.
func (d *Downloader) Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: unexpected status %s", resp.Status)
	}

	body := io.Reader(resp.Body)
	if d.maxBytes > 0 {
		body = io.LimitReader(resp.Body, d.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("download read: %w", err)
	}
	if d.maxBytes > 0 && int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("download: payload exceeds %d bytes", d.maxBytes)
	}
	return data, nil
}
