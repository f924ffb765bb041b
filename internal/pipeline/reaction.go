package pipeline

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/rcarls/ghast/internal/indieweb"
	"github.com/rcarls/ghast/internal/jf2"
	"github.com/rcarls/ghast/internal/metrics"
	"github.com/rcarls/ghast/internal/posttype"
	"github.com/rcarls/ghast/internal/telemetry"
)

const flowReaction = "reaction"

// IngestReaction records a remote page reacting to one of our notes. The
// target note is looked up before anything is written. The source becomes a
// citation, its author a person, and its URL is appended to the target's
// comments.
func (p *Pipeline) IngestReaction(ctx context.Context, source, target string, raw indieweb.Properties) error {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.IngestReaction")
	defer span.End()

	canonicalSource, err := indieweb.CanonicalURL(source)
	if err != nil {
		return p.reject(flowReaction, StageReceived,
			&indieweb.ValidationError{Field: "source", Reason: "must be an absolute URL"})
	}
	if _, err := indieweb.CanonicalURL(target); err != nil {
		return p.reject(flowReaction, StageReceived,
			&indieweb.ValidationError{Field: "target", Reason: "must be an absolute URL"})
	}
	note, err := p.FindByPermalink(ctx, target)
	if err != nil {
		return p.fail(flowReaction, StageReceived, err)
	}

	opts := p.cfg.ReactionOptions
	opts.EmbedReferences = true
	props := jf2.Normalize(raw, opts)
	if !props.Has("url") {
		props["url"] = shape(source, opts.Compact)
	}
	props["accessed"] = shape(p.now(), opts.Compact)

	postTypes := posttype.Classify(props)
	responseTypes := posttype.ResponseTypes(props, target)
	if !slices.Contains(postTypes, indieweb.PostTypeArticle) {
		delete(props, "name")
	}
	props["_postTypes"] = stringsAny(postTypes)
	props["_responseTypes"] = stringsAny(responseTypes)

	refs, _ := props.Map("references")
	delete(props, "references")
	author, err := p.resolveAuthor(ctx, props, refs)
	if err != nil {
		return p.fail(flowReaction, StageReferencesResolving, err)
	}
	props["author"] = shape(author, opts.Compact)

	citation := jf2.CitationFromProperties(props)
	created, err := p.deps.Store.CreateCitationIfAbsent(ctx, citation)
	if err != nil {
		return p.fail(flowReaction, StagePersisting, err)
	}
	if _, err := p.deps.Store.AppendComment(ctx, note.Slug, canonicalSource); err != nil {
		return p.fail(flowReaction, StagePersisting, err)
	}

	p.logger.Info("reaction recorded",
		zap.String("source", source),
		zap.String("target", target),
		zap.String("post_type", string(postTypes[0])),
		zap.Bool("new_citation", created),
	)
	metrics.ObserveIngestion(flowReaction, "ok")
	return nil
}

// resolveAuthor makes sure the source's author exists as a Person and
// returns its URL. An embedded card is stored directly when complete; an
// incomplete or missing card is resolved from the author's URL.
func (p *Pipeline) resolveAuthor(ctx context.Context, props, refs indieweb.Properties) (string, error) {
	var card indieweb.Properties
	if inline, ok := props.Map("author"); ok {
		card = inline
	} else if url := props.String("author"); url != "" {
		card = indieweb.Properties{"url": url}
		if embedded, ok := refs.Map(url); ok && embedded.Type() == string(indieweb.KindPerson) {
			card = embedded
			if !card.Has("url") && !card.Has("uid") {
				card["url"] = url
			}
		}
	} else {
		return "", &indieweb.ValidationError{Field: "author", Reason: "is required"}
	}

	person := jf2.PersonFromProperties(card)
	if person.URL == "" {
		return "", &indieweb.ValidationError{Field: "author url", Reason: "is required"}
	}
	if _, err := indieweb.CanonicalURL(person.URL); err != nil {
		return "", &indieweb.ValidationError{Field: "author url", Reason: "must be an absolute URL"}
	}
	if person.Name != "" {
		if err := p.deps.References.UpsertPerson(ctx, card); err != nil {
			return "", err
		}
		return person.URL, nil
	}

	if _, err := p.deps.Store.FindPerson(ctx, person.URL); err == nil {
		return person.URL, nil
	} else if !indieweb.IsNotFound(err) {
		return "", err
	}
	result := p.deps.References.Resolve(ctx, []string{person.URL}, indieweb.KindPerson)
	if cause, failed := result.Failures[person.URL]; failed {
		return "", &indieweb.ValidationError{
			Field:  "author name",
			Reason: fmt.Sprintf("is required and could not be resolved: %v", cause),
		}
	}
	return person.URL, nil
}
