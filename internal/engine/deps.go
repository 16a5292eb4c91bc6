package engine

import (
	"context"
	"time"

	"github.com/m3rciful/soundloader/core/telegram"
	"github.com/m3rciful/soundloader/internal/media"
	"github.com/m3rciful/soundloader/internal/storage"
)

// StoreSession is the exclusive per-worker view of user storage.
type StoreSession interface {
	GetUser(ctx context.Context, userID int64) (*storage.User, error)
	CreateUser(ctx context.Context, u *storage.User) error
	GetAdmin(ctx context.Context, userID int64) (*storage.Admin, error)
	HasAdmins(ctx context.Context) (bool, error)
	ListAdmins(ctx context.Context) ([]storage.Admin, error)
	CountUsers(ctx context.Context) (int, error)
	PromoteAdmin(ctx context.Context, userID int64, isOwner bool) error
	Close() error
}

// Store hands out storage sessions; each worker owns exactly one.
type Store interface {
	Session(ctx context.Context) (StoreSession, error)
}

// Pipeline resolves user links into media items.
type Pipeline interface {
	Resolve(ctx context.Context, url string) (*media.Resolved, error)
	ResolveEntries(ctx context.Context, entries []media.Entry, progress media.Progress) ([]media.Item, error)
}

// Fetcher downloads media payloads.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// Payments configures the donation flow. A zero ProviderToken disables it.
type Payments struct {
	ProviderToken string
	Currency      string
	Amounts       []int
}

// Enabled reports whether the donate menu entry should be offered.
func (p Payments) Enabled() bool {
	return p.ProviderToken != ""
}

// Deps bundles the collaborators shared by every worker.
type Deps struct {
	Bot      telegram.BotAPI
	Outbox   *telegram.Outbox
	Store    Store
	Pipeline Pipeline
	Download Fetcher
	Thumbs   media.ThumbnailValidator
	Payments Payments

	// DefaultLanguage and FallbackLanguage select localizer tables when a
	// user carries no usable language code.
	DefaultLanguage  string
	FallbackLanguage string

	// ConversationTimeout bounds every mailbox receive; it resets after each
	// delivered event.
	ConversationTimeout time.Duration
}
