// Package media models resolved media records and orchestrates the
// extraction pipeline over an external resolver.
package media

import (
	"fmt"
	"strings"
)

// Format is one downloadable rendition of an item.
type Format struct {
	// Bitrate is the average audio bitrate in kbps.
	Bitrate float64
	// Container is the file extension reported by the resolver.
	Container string
	URL       string
}

// Label returns the user-facing format key, e.g. "320 kbps MP3".
func (f Format) Label() string {
	return fmt.Sprintf("%g kbps %s", f.Bitrate, strings.ToUpper(f.Container))
}

// Thumbnail is one cover image variant.
type Thumbnail struct {
	Width  int
	Height int
	URL    string
}

// Item is a normalized resolved-media record.
type Item struct {
	Title       string
	SourceURL   string
	Uploader    string
	Formats     []Format
	Thumbnails  []Thumbnail
	HTTPHeaders map[string]string
}
