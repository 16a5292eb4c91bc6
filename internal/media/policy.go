package media

import (
	"context"
	"fmt"
	"strings"
)

// minBitrateKbps excludes low-quality renditions from the download menu.
const minBitrateKbps = 64

// DedupFormats returns downloadable formats deduplicated by bitrate and
// container. Formats at or below the bitrate floor and streaming manifests
// are excluded; order of first appearance is preserved.
func DedupFormats(formats []Format) []Format {
	seen := make(map[string]struct{}, len(formats))
	var out []Format
	for _, f := range formats {
		if f.Bitrate <= minBitrateKbps {
			continue
		}
		if strings.Contains(f.URL, ".m3u8") {
			continue
		}
		key := fmt.Sprintf("%g|%s", f.Bitrate, strings.ToLower(f.Container))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}

// ThumbnailValidator reports whether a thumbnail URL is servable as a cover.
type ThumbnailValidator interface {
	Valid(ctx context.Context, url string) bool
}

// BestThumbnail picks the widest thumbnail that carries resolution metadata
// and passes validation. Returns nil when no thumbnail qualifies.
func BestThumbnail(ctx context.Context, thumbs []Thumbnail, v ThumbnailValidator) *Thumbnail {
	var best *Thumbnail
	for i := range thumbs {
		t := thumbs[i]
		if t.Width <= 0 {
			continue
		}
		if best != nil && t.Width <= best.Width {
			continue
		}
		if v != nil && !v.Valid(ctx, t.URL) {
			continue
		}
		best = &t
	}
	return best
}
