package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/m3rciful/soundloader/core/logger"
)

const extractTimeout = 2 * time.Minute

// YTDLPResolver extracts media metadata by running a yt-dlp compatible binary.
type YTDLPResolver struct {
	path string
}

// NewYTDLPResolver builds a resolver around the given binary path.
func NewYTDLPResolver(path string) *YTDLPResolver {
	return &YTDLPResolver{path: path}
}

type rawFormat struct {
	ABR *float64 `json:"abr"`
	Ext string   `json:"ext"`
	URL string   `json:"url"`
}

type rawThumbnail struct {
	Width  *int   `json:"width"`
	Height *int   `json:"height"`
	URL    string `json:"url"`
}

type rawInfo struct {
	Type        string            `json:"_type"`
	Title       string            `json:"title"`
	URL         string            `json:"url"`
	WebpageURL  string            `json:"webpage_url"`
	Uploader    string            `json:"uploader"`
	Entries     []rawInfo         `json:"entries"`
	Formats     []rawFormat       `json:"formats"`
	Thumbnails  []rawThumbnail    `json:"thumbnails"`
	HTTPHeaders map[string]string `json:"http_headers"`
}

// Extract runs one metadata-only extraction.
func (r *YTDLPResolver) Extract(ctx context.Context, url string, flat bool) (*Resolved, error) {
	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	args := []string{"--dump-single-json", "--no-download", "--no-warnings"}
	if flat {
		args = append(args, "--flat-playlist")
	}
	args = append(args, url)

	start := time.Now()
	cmd := exec.CommandContext(ctx, r.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		logger.EXT.LogAttrs(ctx, slog.LevelWarn, "resolver.failed",
			slog.String("url", url),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		if detail != "" {
			return nil, fmt.Errorf("resolver: %s: %w", firstLine(detail), err)
		}
		return nil, fmt.Errorf("resolver: %w", err)
	}

	var info rawInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("resolver: decode output: %w", err)
	}

	logger.EXT.LogAttrs(ctx, slog.LevelDebug, "resolver.done",
		slog.String("url", url),
		slog.String("type", info.Type),
		slog.Duration("duration", logger.Took(start)),
	)
	return convertInfo(info), nil
}

func convertInfo(info rawInfo) *Resolved {
	switch info.Type {
	case "playlist":
		entries := make([]Entry, 0, len(info.Entries))
		for _, e := range info.Entries {
			entries = append(entries, Entry{URL: e.URL, Title: e.Title})
		}
		return &Resolved{
			Kind:      KindPlaylist,
			Title:     info.Title,
			SourceURL: info.WebpageURL,
			Entries:   entries,
		}
	case "url":
		return &Resolved{Kind: KindRedirect, Target: info.URL}
	}

	item := &Item{
		Title:       info.Title,
		SourceURL:   info.WebpageURL,
		Uploader:    info.Uploader,
		HTTPHeaders: info.HTTPHeaders,
	}
	for _, f := range info.Formats {
		if f.URL == "" {
			continue
		}
		var bitrate float64
		if f.ABR != nil {
			bitrate = *f.ABR
		}
		item.Formats = append(item.Formats, Format{Bitrate: bitrate, Container: f.Ext, URL: f.URL})
	}
	for _, t := range info.Thumbnails {
		if t.URL == "" {
			continue
		}
		thumb := Thumbnail{URL: t.URL}
		if t.Width != nil {
			thumb.Width = *t.Width
		}
		if t.Height != nil {
			thumb.Height = *t.Height
		}
		item.Thumbnails = append(item.Thumbnails, thumb)
	}
	return &Resolved{Kind: KindSingle, Item: item}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
