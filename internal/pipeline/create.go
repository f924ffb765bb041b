package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/rcarls/ghast/internal/indieweb"
	"github.com/rcarls/ghast/internal/jf2"
	"github.com/rcarls/ghast/internal/metrics"
	"github.com/rcarls/ghast/internal/posttype"
	"github.com/rcarls/ghast/internal/telemetry"
)

const flowCreate = "create"

// IngestCreate publishes a new note from a property bag. Reply contexts are
// resolved before anything is written; once the note is stored every mention
// target is notified without waiting for delivery.
func (p *Pipeline) IngestCreate(ctx context.Context, raw indieweb.Properties) (indieweb.Note, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.IngestCreate")
	defer span.End()

	opts := p.cfg.CreateOptions
	opts.EmbedReferences = false
	props := jf2.Normalize(raw, opts)
	delete(props, "comment")
	if !props.Has("author") {
		props["author"] = shape(p.cfg.OwnerURL, opts.Compact)
	}
	if _, err := indieweb.CanonicalURL(props.String("author")); err != nil {
		return indieweb.Note{}, p.reject(flowCreate, StageNormalized,
			&indieweb.ValidationError{Field: "author", Reason: "must be an absolute URL"})
	}

	types := posttype.Classify(props)
	targets := posttype.MentionTargets(props)
	logger := p.logger.With(zap.String("post_type", string(types[0])), zap.Int("targets", len(targets)))

	if len(targets) > 0 {
		result := p.deps.References.Resolve(ctx, targets, indieweb.KindCitation)
		if err := result.Err(); err != nil {
			return indieweb.Note{}, p.reject(flowCreate, StageReferencesResolving, err)
		}
		if len(result.Failures) > 0 {
			logger.Warn("some reply contexts were not resolved",
				zap.Int("resolved", len(result.References)), zap.Int("failed", len(result.Failures)))
		}
	}

	if !props.Has("published") {
		props["published"] = shape(p.now(), opts.Compact)
	}
	slug, err := p.deriveSlug(ctx, props)
	if err != nil {
		return indieweb.Note{}, p.fail(flowCreate, StagePersisting, err)
	}
	note := jf2.NoteFromProperties(props)
	note.Slug = slug
	if note.Published.IsZero() {
		return indieweb.Note{}, p.reject(flowCreate, StagePersisting,
			&indieweb.ValidationError{Field: "published", Reason: "is not a valid date"})
	}
	if err := p.deps.Store.SaveNote(ctx, note); err != nil {
		return indieweb.Note{}, p.fail(flowCreate, StagePersisting, err)
	}
	permalink := p.Permalink(slug)
	logger.Info("note published", zap.String("url", permalink))

	p.notifyTargets(ctx, permalink, targets)
	metrics.ObserveIngestion(flowCreate, "ok")
	return note, nil
}

// notifyTargets queues one notification per target. Failures are logged only.
func (p *Pipeline) notifyTargets(ctx context.Context, source string, targets []string) {
	for _, target := range targets {
		if err := p.deps.Notifier.Notify(ctx, source, target); err != nil {
			p.logger.Warn("mention not queued", zap.String("target", target), zap.Error(err))
		}
	}
}
