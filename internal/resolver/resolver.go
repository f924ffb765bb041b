// Package resolver turns URLs into normalized reference documents. It reads
// through the reference cache, fetches misses concurrently, upserts each
// freshly fetched reference into durable storage once and archives the raw
// body when an archive is configured.
package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	hashsha256 "github.com/rcarls/ghast/internal/hash/sha256"
	"github.com/rcarls/ghast/internal/indieweb"
	"github.com/rcarls/ghast/internal/jf2"
	"github.com/rcarls/ghast/internal/logging"
	"github.com/rcarls/ghast/internal/metrics"
)

// Defaults applied by New.
const (
	DefaultFetchTimeout  = 5 * time.Second
	DefaultMaxParallel   = 8
	DefaultArchivePrefix = "snapshots"
)

// Config tunes fetching and normalization.
type Config struct {
	FetchTimeout  time.Duration
	MaxParallel   int
	ArchivePrefix string
	// ReferenceOptions shapes cached and stored references.
	ReferenceOptions jf2.Options
	// SourceOptions shapes documents returned by LoadSource.
	SourceOptions jf2.Options
}

// Dependencies are the collaborators a Resolver needs. Archive and Hasher
// are optional together.
type Dependencies struct {
	Fetcher   indieweb.Fetcher
	Cache     indieweb.ReferenceCache
	Citations indieweb.CitationStore
	People    indieweb.PersonStore
	Clock     indieweb.Clock
	Archive   indieweb.BlobStore
	Hasher    indieweb.Hasher
}

// Resolver resolves references with cache-aside reads.
type Resolver struct {
	cfg    Config
	deps   Dependencies
	logger *zap.Logger
	flight singleflight.Group
}

// Result is the outcome of one batch. References and Failures are keyed by
// the URL as the caller spelled it; a URL appears in at most one of them.
type Result struct {
	References map[string]indieweb.Properties
	Failures   map[string]error
	Mismatches []*indieweb.ReferenceIdentityMismatch
}

// Err returns the identity mismatches of the batch joined together, or nil.
func (r Result) Err() error {
	if len(r.Mismatches) == 0 {
		return nil
	}
	errs := make([]error, len(r.Mismatches))
	for i, m := range r.Mismatches {
		errs[i] = m
	}
	return errors.Join(errs...)
}

// New validates dependencies and applies defaults.
func New(cfg Config, deps Dependencies, logger *zap.Logger) (*Resolver, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("resolver requires a fetcher")
	case deps.Cache == nil:
		return nil, errors.New("resolver requires a reference cache")
	case deps.Citations == nil || deps.People == nil:
		return nil, errors.New("resolver requires citation and person stores")
	case deps.Clock == nil:
		return nil, errors.New("resolver requires a clock")
	case deps.Archive != nil && deps.Hasher == nil:
		return nil, errors.New("resolver archive requires a hasher")
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = DefaultArchivePrefix
	}
	return &Resolver{cfg: cfg, deps: deps, logger: logging.Named(logger, "resolver")}, nil
}

// Resolve resolves every distinct URL in urls as kind. Individual failures
// never fail the batch; they are recorded in Result.Failures.
func (r *Resolver) Resolve(ctx context.Context, urls []string, kind indieweb.ReferenceKind) Result {
	unique := indieweb.DedupeURLs(urls)
	result := Result{
		References: make(map[string]indieweb.Properties, len(unique)),
		Failures:   make(map[string]error),
	}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.cfg.MaxParallel)
	for _, raw := range unique {
		g.Go(func() error {
			doc, err := r.resolveOne(ctx, raw, kind)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures[raw] = err
				var mismatch *indieweb.ReferenceIdentityMismatch
				if errors.As(err, &mismatch) {
					result.Mismatches = append(result.Mismatches, mismatch)
				}
				r.logger.Warn("reference not resolved",
					zap.String("url", raw), zap.String("kind", string(kind)), zap.Error(err))
				return nil
			}
			result.References[raw] = doc
			return nil
		})
	}
	_ = g.Wait()
	return result
}

func (r *Resolver) resolveOne(ctx context.Context, raw string, kind indieweb.ReferenceKind) (indieweb.Properties, error) {
	key, err := indieweb.CanonicalURL(raw)
	if err != nil {
		return nil, &indieweb.ReferenceFetchError{URL: raw, Err: err}
	}

	doc, hit, err := r.deps.Cache.Get(ctx, kind, key)
	if err != nil {
		r.logger.Warn("reference cache read failed", zap.String("url", key), zap.Error(err))
	}
	metrics.ObserveCacheLookup(hit)
	if hit {
		return doc, nil
	}

	ch := r.flight.DoChan(string(kind)+" "+key, func() (any, error) {
		// Shared by every waiter, so it must not die with the first caller.
		return r.fetchAndStore(context.WithoutCancel(ctx), raw, key, kind)
	})
	select {
	case <-ctx.Done():
		return nil, &indieweb.ReferenceFetchError{URL: raw, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(indieweb.Properties).Clone(), nil
	}
}

// fetchAndStore runs once per cache miss: fetch, extract, upsert, harvest
// embedded people, cache.
func (r *Resolver) fetchAndStore(
	ctx context.Context,
	raw, key string,
	kind indieweb.ReferenceKind,
) (indieweb.Properties, error) {
	resp, err := r.fetch(ctx, raw, string(kind))
	if err != nil {
		return nil, err
	}

	doc, err := r.extract(resp, raw, kind)
	if err != nil {
		return nil, &indieweb.ReferenceFetchError{URL: raw, Err: err}
	}

	refs, _ := doc.Map("references")
	delete(doc, "references")

	if err := r.Upsert(ctx, raw, doc, kind); err != nil {
		return nil, err
	}
	r.harvestPeople(ctx, refs)
	if err := r.deps.Cache.Put(ctx, kind, key, doc); err != nil {
		r.logger.Warn("reference cache write failed", zap.String("url", key), zap.Error(err))
	}
	return doc, nil
}

func (r *Resolver) fetch(ctx context.Context, raw, kind string) (indieweb.FetchResponse, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	resp, err := r.deps.Fetcher.Fetch(fetchCtx, indieweb.FetchRequest{
		URL:     raw,
		Headers: http.Header{"Accept": {"text/html"}},
	})
	if err != nil {
		metrics.ObserveFetch(kind, "error", time.Since(start))
		return indieweb.FetchResponse{}, &indieweb.ReferenceFetchError{URL: raw, Err: err}
	}
	metrics.ObserveFetch(kind, "ok", time.Since(start))
	r.archive(ctx, raw, resp)
	return resp, nil
}

func (r *Resolver) extract(resp indieweb.FetchResponse, raw string, kind indieweb.ReferenceKind) (indieweb.Properties, error) {
	pageURL := resp.URL
	if pageURL == "" {
		pageURL = raw
	}
	data, err := jf2.Parse(resp.Body, pageURL)
	if err != nil {
		return nil, err
	}

	switch kind {
	case indieweb.KindPerson:
		card := jf2.FindCard(data, pageURL)
		if card == nil {
			return nil, errors.New("page has no h-card")
		}
		props := jf2.FromMicroformat(card)
		props["type"] = string(indieweb.KindPerson)
		return jf2.Normalize(props, r.referenceOptions()), nil
	case indieweb.KindCitation:
		entry := jf2.FindEntry(data)
		if entry == nil {
			return nil, errors.New("page has no h-entry")
		}
		props := jf2.FromMicroformat(entry)
		props["type"] = string(indieweb.KindCitation)
		return jf2.Normalize(props, r.referenceOptions()), nil
	default:
		return nil, fmt.Errorf("unknown reference kind %q", kind)
	}
}

func (r *Resolver) referenceOptions() jf2.Options {
	opts := r.cfg.ReferenceOptions
	opts.EmbedReferences = true
	return opts
}

// Upsert stores a normalized reference durably unless a record with the same
// identity exists. Citations must declare the identity they were requested
// under; a citation that declares none is assigned requested. A citation's
// accessed time is set to now.
func (r *Resolver) Upsert(ctx context.Context, requested string, doc indieweb.Properties, kind indieweb.ReferenceKind) error {
	switch kind {
	case indieweb.KindPerson:
		if !doc.Has("url") && !doc.Has("uid") {
			doc["url"] = r.shape(requested)
		}
		return r.UpsertPerson(ctx, doc)
	case indieweb.KindCitation:
		declared := doc.String("uid")
		if declared == "" {
			declared = doc.String("url")
		}
		if declared == "" {
			doc["url"] = r.shape(requested)
		} else if !indieweb.SameURL(declared, requested) {
			return &indieweb.ReferenceIdentityMismatch{Requested: requested, Declared: declared}
		}
		doc["accessed"] = r.shape(r.deps.Clock.Now().UTC().Format(jf2.TimeLayout))

		citation := jf2.CitationFromProperties(doc)
		if created, err := r.deps.Citations.CreateCitationIfAbsent(ctx, citation); err != nil {
			return err
		} else if created {
			r.logger.Info("stored citation", zap.String("url", citation.URL))
		}
		return nil
	default:
		return fmt.Errorf("unknown reference kind %q", kind)
	}
}

// UpsertPerson stores a card as a Person at most once. The card needs a url
// (or uid) and a name.
func (r *Resolver) UpsertPerson(ctx context.Context, card indieweb.Properties) error {
	person := jf2.PersonFromProperties(card)
	if person.URL == "" {
		return &indieweb.ValidationError{Field: "author url", Reason: "is required"}
	}
	if person.Name == "" {
		return &indieweb.ValidationError{Field: "author name", Reason: "is required"}
	}
	created, err := r.deps.People.CreatePersonIfAbsent(ctx, person)
	if err != nil {
		return err
	}
	if created {
		r.logger.Info("stored person", zap.String("url", person.URL))
	}
	return nil
}

// harvestPeople upserts the embedded cards of a fetched reference. One hop
// only: the cards' own references are not followed.
func (r *Resolver) harvestPeople(ctx context.Context, refs indieweb.Properties) {
	for url := range refs {
		card, ok := refs.Map(url)
		if !ok || card.Type() != string(indieweb.KindPerson) {
			continue
		}
		if !card.Has("url") && !card.Has("uid") {
			card["url"] = url
		}
		if err := r.UpsertPerson(ctx, card); err != nil {
			r.logger.Warn("embedded person not stored", zap.String("url", url), zap.Error(err))
		}
	}
}

func (r *Resolver) archive(ctx context.Context, raw string, resp indieweb.FetchResponse) {
	if r.deps.Archive == nil || len(resp.Body) == 0 {
		return
	}
	digest, err := r.deps.Hasher.Hash(resp.Body)
	if err != nil {
		r.logger.Warn("snapshot hash failed", zap.String("url", raw), zap.Error(err))
		return
	}
	contentType := resp.Headers.Get("Content-Type")
	if contentType == "" {
		contentType = "text/html"
	}
	path := hashsha256.ObjectPath(r.cfg.ArchivePrefix, digest, ".html")
	uri, err := r.deps.Archive.PutObject(ctx, path, contentType, bytes.NewReader(resp.Body))
	if err != nil {
		r.logger.Warn("snapshot archive failed", zap.String("url", raw), zap.Error(err))
		return
	}
	r.logger.Debug("archived snapshot", zap.String("url", raw), zap.String("uri", uri))
}

func (r *Resolver) shape(value string) any {
	if r.cfg.ReferenceOptions.Compact {
		return value
	}
	return []any{value}
}
