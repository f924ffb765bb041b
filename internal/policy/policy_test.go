package policy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rcarls/ghast/internal/indieweb"
)

func TestBlocklist(t *testing.T) {
	t.Parallel()

	t.Run("exact match", func(t *testing.T) {
		t.Parallel()
		bl := NewBlocklist([]string{"Example.org"})
		require.NotNil(t, bl)
		require.True(t, bl.IsBlocked("example.org"))
		require.False(t, bl.IsBlocked("sub.example.org"))
	})

	t.Run("wildcard suffix", func(t *testing.T) {
		t.Parallel()
		bl := NewBlocklist([]string{"*.internal", ".local"})
		cases := []struct {
			host    string
			blocked bool
		}{
			{"db.internal", true},
			{"a.b.internal", true},
			{"internal", true},
			{"printer.local", true},
			{"example.com", false},
		}
		for _, tc := range cases {
			require.Equal(t, tc.blocked, bl.IsBlocked(tc.host), tc.host)
		}
	})

	t.Run("empty patterns", func(t *testing.T) {
		t.Parallel()
		bl := NewBlocklist([]string{" ", "*."})
		require.Nil(t, bl)
		require.False(t, bl.IsBlocked("anything"))
	})
}

func TestFetcherBlocksHosts(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	limiter := &countingWaiter{}
	f := NewFetcher(next, limiter, NewBlocklist([]string{"*.internal"}))

	_, err := f.Fetch(context.Background(), indieweb.FetchRequest{URL: "http://db.internal/admin"})
	require.ErrorIs(t, err, ErrBlocked)
	require.Zero(t, next.count())
	require.Zero(t, limiter.count())

	resp, err := f.Fetch(context.Background(), indieweb.FetchRequest{URL: "https://them.example/1"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, 1, next.count())
	require.Equal(t, 1, limiter.count())
}

func TestFetcherStopsWhenLimiterFails(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	limiter := &countingWaiter{err: context.DeadlineExceeded}
	f := NewFetcher(next, limiter, nil)

	_, err := f.Fetch(context.Background(), indieweb.FetchRequest{URL: "https://them.example/1"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, next.count())
}

func TestFetcherWrapsFetchErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	f := NewFetcher(&countingFetcher{err: boom}, nil, nil)
	_, err := f.Fetch(context.Background(), indieweb.FetchRequest{URL: "https://them.example/1"})
	require.ErrorIs(t, err, boom)
}

type countingFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *countingFetcher) Fetch(_ context.Context, request indieweb.FetchRequest) (indieweb.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return indieweb.FetchResponse{}, f.err
	}
	return indieweb.FetchResponse{URL: request.URL, StatusCode: 200}, nil
}

func (f *countingFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type countingWaiter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (w *countingWaiter) Wait(context.Context, string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.calls++
	return nil
}

func (w *countingWaiter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}
