// Package policy guards outbound fetches with a host blocklist and per-host
// rate limits.
package policy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/rcarls/ghast/internal/indieweb"
)

// ErrBlocked reports a fetch to a blocked host.
var ErrBlocked = errors.New("host is blocked")

// Waiter blocks until a fetch of rawURL may proceed.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Blocklist stores exact hosts and suffix wildcards ("*.example" or
// ".example").
type Blocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewBlocklist parses patterns. It returns nil when no pattern is usable; a
// nil Blocklist blocks nothing.
func NewBlocklist(patterns []string) *Blocklist {
	matcher := &Blocklist{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

func (b *Blocklist) addSuffix(suffix string) {
	if suffix == "" || slices.Contains(b.suffixes, suffix) {
		return
	}
	b.suffixes = append(b.suffixes, suffix)
}

// IsBlocked reports whether host matches an exact entry or a suffix.
func (b *Blocklist) IsBlocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, exact := b.exact[host]; exact {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// Fetcher applies the blocklist and rate limits before delegating.
type Fetcher struct {
	next      indieweb.Fetcher
	limiter   Waiter
	blocklist *Blocklist
}

// NewFetcher wraps next. limiter and blocklist may be nil.
func NewFetcher(next indieweb.Fetcher, limiter Waiter, blocklist *Blocklist) *Fetcher {
	return &Fetcher{next: next, limiter: limiter, blocklist: blocklist}
}

// Fetch implements indieweb.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, request indieweb.FetchRequest) (indieweb.FetchResponse, error) {
	u, err := url.Parse(request.URL)
	if err != nil {
		return indieweb.FetchResponse{}, fmt.Errorf("parse url: %w", err)
	}
	if f.blocklist.IsBlocked(u.Hostname()) {
		return indieweb.FetchResponse{}, fmt.Errorf("%w: %s", ErrBlocked, u.Hostname())
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, request.URL); err != nil {
			return indieweb.FetchResponse{}, err
		}
	}
	resp, err := f.next.Fetch(ctx, request)
	if err != nil {
		return resp, fmt.Errorf("fetch %s: %w", request.URL, err)
	}
	return resp, nil
}
