package resolver

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/rcarls/ghast/internal/indieweb"
	"github.com/rcarls/ghast/internal/jf2"
)

var linkSelectors = map[string]string{
	"a[href]":     "href",
	"link[href]":  "href",
	"img[src]":    "src",
	"video[src]":  "src",
	"audio[src]":  "src",
	"source[src]": "src",
}

// LoadSource fetches a mention source without consulting the cache and
// returns its entry as JF2 with embedded references. The page must link to
// target. A page without an entry is treated as a bare mention.
func (r *Resolver) LoadSource(ctx context.Context, source, target string) (indieweb.Properties, error) {
	if _, err := indieweb.CanonicalURL(source); err != nil {
		return nil, &indieweb.ValidationError{Field: "source", Reason: "must be an absolute URL"}
	}
	resp, err := r.fetch(ctx, source, "source")
	if err != nil {
		return nil, err
	}
	pageURL := resp.URL
	if pageURL == "" {
		pageURL = source
	}

	linked, err := linksTo(resp.Body, pageURL, target)
	if err != nil {
		return nil, &indieweb.ReferenceFetchError{URL: source, Err: err}
	}
	if !linked {
		return nil, &indieweb.ValidationError{Field: "source", Reason: "does not link to target"}
	}

	data, err := jf2.Parse(resp.Body, pageURL)
	if err != nil {
		return nil, &indieweb.ReferenceFetchError{URL: source, Err: err}
	}
	props := indieweb.Properties{"type": "entry", "url": source}
	if entry := jf2.FindEntry(data); entry != nil {
		props = jf2.FromMicroformat(entry)
	} else {
		r.logger.Debug("source has no entry, treating as mention", zap.String("source", source))
	}

	opts := r.cfg.SourceOptions
	opts.EmbedReferences = true
	return jf2.Normalize(props, opts), nil
}

func linksTo(body []byte, pageURL, target string) (bool, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return false, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("parse html: %w", err)
	}

	found := false
	for selector, attr := range linkSelectors {
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			ref, err := base.Parse(s.AttrOr(attr, ""))
			if err == nil && indieweb.SameURL(ref.String(), target) {
				found = true
			}
			return !found
		})
		if found {
			return true, nil
		}
	}
	return false, nil
}
