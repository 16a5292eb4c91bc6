package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/soundloader/core/logger"
)

// ErrRedirectChain is returned when a redirect resolves into another redirect.
// The external resolver is expected to flatten deeper chains.
var ErrRedirectChain = errors.New("media: redirect chain too deep")

// Progress reports sequential playlist resolution; it is invoked with the
// 1-based index of the entry about to be resolved.
type Progress func(current, total int)

// Pipeline orchestrates resolver calls and normalizes their results.
// It performs no user-interaction side effects.
type Pipeline struct {
	resolver Resolver
	limiter  *rate.Limiter
}

// NewPipeline builds a pipeline. A positive interval spaces out sequential
// playlist-entry resolutions to stay under resolver rate limits.
func NewPipeline(resolver Resolver, interval time.Duration) *Pipeline {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &Pipeline{resolver: resolver, limiter: limiter}
}

// Resolve maps a URL to a single item or a playlist, following at most one
// redirect hop.
func (p *Pipeline) Resolve(ctx context.Context, url string) (*Resolved, error) {
	res, err := p.resolver.Extract(ctx, url, true)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", url, err)
	}
	if res.Kind != KindRedirect {
		return res, nil
	}

	logger.EXT.LogAttrs(ctx, slog.LevelDebug, "resolve.redirect",
		slog.String("from", url),
		slog.String("to", res.Target),
	)
	res, err = p.resolver.Extract(ctx, res.Target, true)
	if err != nil {
		return nil, fmt.Errorf("resolve redirect target %s: %w", res.Target, err)
	}
	if res.Kind == KindRedirect {
		return nil, ErrRedirectChain
	}
	return res, nil
}

// ResolveEntries resolves playlist entries one by one, preserving order.
// Progress is reported before each entry resolution; entries that do not
// resolve into a single item fail the whole playlist.
func (p *Pipeline) ResolveEntries(ctx context.Context, entries []Entry, progress Progress) ([]Item, error) {
	items := make([]Item, 0, len(entries))
	for i, entry := range entries {
		if progress != nil {
			progress(i+1, len(entries))
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("resolver pacing: %w", err)
		}
		res, err := p.resolver.Extract(ctx, entry.URL, true)
		if err != nil {
			return nil, fmt.Errorf("resolve entry %d of %d: %w", i+1, len(entries), err)
		}
		if res.Kind != KindSingle || res.Item == nil {
			return nil, fmt.Errorf("resolve entry %d of %d: unexpected result kind %d", i+1, len(entries), res.Kind)
		}
		items = append(items, *res.Item)
	}
	return items, nil
}
