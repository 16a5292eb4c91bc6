package media

import "context"

// Kind tags the outcome of a resolver extraction.
type Kind int

const (
	// KindSingle is a directly downloadable item.
	KindSingle Kind = iota
	// KindPlaylist is an ordered collection of entries to resolve.
	KindPlaylist
	// KindRedirect points at another URL that must be extracted again.
	KindRedirect
)

// Entry is one unresolved playlist member.
type Entry struct {
	URL   string
	Title string
}

// Resolved is the tagged result of a single extraction.
type Resolved struct {
	Kind Kind

	// Item is set for KindSingle.
	Item *Item

	// Title, SourceURL and Entries are set for KindPlaylist.
	Title     string
	SourceURL string
	Entries   []Entry

	// Target is set for KindRedirect.
	Target string
}

// Resolver turns a URL into media metadata. Flat extraction keeps playlist
// entries unresolved so they can be fetched one by one.
type Resolver interface {
	Extract(ctx context.Context, url string, flat bool) (*Resolved, error)
}
