// Package pipeline orchestrates ingestion of the author's own posts and of
// inbound reactions. Each ingestion moves strictly forward through its
// stages: normalize, classify, resolve references, persist, notify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rcarls/ghast/internal/indieweb"
	"github.com/rcarls/ghast/internal/jf2"
	"github.com/rcarls/ghast/internal/logging"
	"github.com/rcarls/ghast/internal/metrics"
	"github.com/rcarls/ghast/internal/resolver"
)

// Stage names a step of an ingestion.
type Stage string

// Ingestion stages in order.
const (
	StageReceived            Stage = "received"
	StageNormalized          Stage = "normalized"
	StageClassified          Stage = "classified"
	StageReferencesResolving Stage = "references_resolving"
	StageReferencesResolved  Stage = "references_resolved"
	StagePersisting          Stage = "persisting"
	StagePersisted           Stage = "persisted"
	StageNotificationsSent   Stage = "notifications_sent"
)

// Terminal is the failure state an ingestion stopped in.
type Terminal string

// Terminal failure states.
const (
	Rejected      Terminal = "rejected"
	PersistFailed Terminal = "persist_failed"
)

// Failure reports where an ingestion stopped. errors.As on a Failure still
// reaches the underlying indieweb error.
type Failure struct {
	Stage    Stage
	Terminal Terminal
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s during %s: %v", f.Terminal, f.Stage, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// References is the subset of the resolver used by the pipeline.
type References interface {
	Resolve(ctx context.Context, urls []string, kind indieweb.ReferenceKind) resolver.Result
	UpsertPerson(ctx context.Context, card indieweb.Properties) error
}

// Config describes the site the pipeline publishes for.
type Config struct {
	SiteURL   string
	OwnerURL  string
	OwnerName string
	// CreateOptions shapes the author's own posts before persistence.
	CreateOptions jf2.Options
	// ReactionOptions shapes inbound reaction documents.
	ReactionOptions jf2.Options
}

// Dependencies are the collaborators a Pipeline needs.
type Dependencies struct {
	Store      indieweb.Gateway
	References References
	Notifier   indieweb.Notifier
	Clock      indieweb.Clock
}

// Pipeline ingests posts and reactions.
type Pipeline struct {
	cfg    Config
	deps   Dependencies
	logger *zap.Logger
}

// New validates configuration and dependencies.
func New(cfg Config, deps Dependencies, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("pipeline requires a store")
	case deps.References == nil:
		return nil, errors.New("pipeline requires a reference resolver")
	case deps.Notifier == nil:
		return nil, errors.New("pipeline requires a notifier")
	case deps.Clock == nil:
		return nil, errors.New("pipeline requires a clock")
	}
	site, err := indieweb.CanonicalURL(cfg.SiteURL)
	if err != nil {
		return nil, fmt.Errorf("site url: %w", err)
	}
	cfg.SiteURL = strings.TrimSuffix(site, "/")
	if cfg.OwnerURL == "" {
		cfg.OwnerURL = site
	}
	return &Pipeline{cfg: cfg, deps: deps, logger: logging.Named(logger, "pipeline")}, nil
}

// Permalink returns the public URL of the note with slug.
func (p *Pipeline) Permalink(slug string) string {
	return p.cfg.SiteURL + "/notes/" + slug
}

// SlugFromPermalink extracts the slug from one of this site's note
// permalinks. It reports false for any other URL.
func (p *Pipeline) SlugFromPermalink(permalink string) (string, bool) {
	canonical, err := indieweb.CanonicalURL(permalink)
	if err != nil {
		return "", false
	}
	if i := strings.IndexByte(canonical, '?'); i >= 0 {
		canonical = canonical[:i]
	}
	rest, ok := strings.CutPrefix(canonical, p.cfg.SiteURL+"/notes/")
	if !ok {
		return "", false
	}
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// FindByPermalink loads the note a permalink points at.
func (p *Pipeline) FindByPermalink(ctx context.Context, permalink string) (indieweb.Note, error) {
	slug, ok := p.SlugFromPermalink(permalink)
	if !ok {
		return indieweb.Note{}, &indieweb.NotFoundError{Resource: "note", Key: permalink}
	}
	return p.deps.Store.FindNote(ctx, slug)
}

// reject wraps err as a Rejected failure and counts it.
func (p *Pipeline) reject(flow string, stage Stage, err error) error {
	metrics.ObserveIngestion(flow, string(Rejected))
	p.logger.Info("ingestion rejected", zap.String("flow", flow), zap.String("stage", string(stage)), zap.Error(err))
	return &Failure{Stage: stage, Terminal: Rejected, Err: err}
}

// fail classifies a persistence error. Client-side errors surfacing from the
// store stay rejections.
func (p *Pipeline) fail(flow string, stage Stage, err error) error {
	if indieweb.ReasonFor(err).ClientError() {
		return p.reject(flow, stage, err)
	}
	metrics.ObserveIngestion(flow, string(PersistFailed))
	p.logger.Error("ingestion persist failed", zap.String("flow", flow), zap.String("stage", string(stage)), zap.Error(err))
	return &Failure{Stage: stage, Terminal: PersistFailed, Err: err}
}

func (p *Pipeline) now() string {
	return p.deps.Clock.Now().UTC().Format(jf2.TimeLayout)
}

func shape(value any, compact bool) any {
	if compact {
		return value
	}
	return []any{value}
}

func stringsAny[T ~string](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
