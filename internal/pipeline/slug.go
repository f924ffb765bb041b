package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gosimple/slug"

	"github.com/rcarls/ghast/internal/indieweb"
	"github.com/rcarls/ghast/internal/jf2"
)

// slugWords is how much content text a content-derived slug uses.
const slugWords = 8

// deriveSlug picks the note slug. An explicit slug is used as given (after
// slugifying) and may replace an existing note; otherwise the slug comes
// from the name, then the content, then the untitled counter. A derived slug
// that is taken gets a counter suffix.
func (p *Pipeline) deriveSlug(ctx context.Context, props indieweb.Properties) (string, error) {
	for _, key := range []string{"mp-slug", "slug"} {
		if !props.Has(key) {
			continue
		}
		s := slug.Make(props.String(key))
		if s == "" {
			return "", &indieweb.ValidationError{Field: key, Reason: "has no URL-safe characters"}
		}
		return s, nil
	}

	base := slug.Make(props.String("name"))
	if base == "" {
		base = slug.Make(firstWords(contentText(props), slugWords))
	}
	if base == "" {
		n, err := p.deps.Store.NextSequence(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("untitled-%d", n), nil
	}

	_, err := p.deps.Store.FindNote(ctx, base)
	switch {
	case indieweb.IsNotFound(err):
		return base, nil
	case err != nil:
		return "", err
	}
	n, err := p.deps.Store.NextSequence(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d", base, n), nil
}

// contentText returns the plain text of normalized content. HTML is reduced
// to its text nodes.
func contentText(props indieweb.Properties) string {
	content, ok := props.Map("content")
	if !ok {
		return props.String("content")
	}
	value := content.String("value")
	if content.String("content-type") != jf2.ContentTypeHTML {
		return value
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(value))
	if err != nil {
		return value
	}
	return doc.Text()
}

func firstWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
