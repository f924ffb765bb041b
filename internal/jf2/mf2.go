package jf2

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"willnorris.com/go/microformats"

	"github.com/rcarls/ghast/internal/indieweb"
)

// Parse extracts microformats2 items from an HTML body. Relative URLs are
// resolved against pageURL.
func Parse(body []byte, pageURL string) (*microformats.Data, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	return microformats.Parse(bytes.NewReader(body), base), nil
}

// FromMicroformat converts one parsed item into a JF2 property bag. Nested
// items that carry a url are replaced by that url and collected under
// "references"; nested items without a url stay inline.
func FromMicroformat(mf *microformats.Microformat) indieweb.Properties {
	if mf == nil {
		return indieweb.Properties{}
	}
	refs := make(indieweb.Properties)
	props := convert(mf, refs)
	if len(refs) > 0 {
		props["references"] = refs
	}
	return props
}

func convert(mf *microformats.Microformat, refs indieweb.Properties) indieweb.Properties {
	props := make(indieweb.Properties, len(mf.Properties)+1)
	if len(mf.Type) > 0 {
		props["type"] = strings.TrimPrefix(mf.Type[0], "h-")
	}
	for key, values := range mf.Properties {
		converted := make([]any, 0, len(values))
		for _, value := range values {
			if v := convertValue(value, refs); v != nil {
				converted = append(converted, v)
			}
		}
		if len(converted) > 0 {
			props[key] = converted
		}
	}
	if len(mf.Children) > 0 {
		children := make([]any, 0, len(mf.Children))
		for _, child := range mf.Children {
			children = append(children, convert(child, refs))
		}
		props["children"] = children
	}
	return props
}

func convertValue(value any, refs indieweb.Properties) any {
	switch v := value.(type) {
	case string:
		return v
	case map[string]string:
		bag := make(indieweb.Properties, len(v))
		for k, s := range v {
			bag[k] = s
		}
		return bag
	case map[string]any:
		return indieweb.Properties(v).Clone()
	case *microformats.Microformat:
		nested := convert(v, refs)
		u := nested.String("url")
		if u == "" {
			return nested
		}
		if _, seen := refs[u]; !seen {
			refs[u] = nested
		}
		return u
	default:
		return value
	}
}

var entryTypes = map[string]struct{}{
	"h-entry": {},
	"h-cite":  {},
	"h-event": {},
}

// FindEntry returns the first entry-like item in document order, searching
// children depth first. It returns nil when the page has none.
func FindEntry(data *microformats.Data) *microformats.Microformat {
	if data == nil {
		return nil
	}
	return findFirst(data.Items, func(mf *microformats.Microformat) bool {
		return hasAnyType(mf, entryTypes)
	})
}

// FindCard returns the representative h-card of a page: one whose uid and
// url both match pageURL, else one whose url matches, else the first top
// level card, else the author card of the page's entry.
func FindCard(data *microformats.Data, pageURL string) *microformats.Microformat {
	if data == nil {
		return nil
	}
	cards := collectCards(data.Items)

	for _, card := range cards {
		if matchesPage(card, "uid", pageURL) && matchesPage(card, "url", pageURL) {
			return card
		}
	}
	for _, card := range cards {
		if matchesPage(card, "url", pageURL) {
			return card
		}
	}
	for _, item := range data.Items {
		if isCard(item) {
			return item
		}
	}
	if entry := FindEntry(data); entry != nil {
		for _, value := range entry.Properties["author"] {
			if nested, ok := value.(*microformats.Microformat); ok && isCard(nested) {
				return nested
			}
		}
	}
	return nil
}

func findFirst(items []*microformats.Microformat, match func(*microformats.Microformat) bool) *microformats.Microformat {
	for _, item := range items {
		if match(item) {
			return item
		}
		if found := findFirst(item.Children, match); found != nil {
			return found
		}
	}
	return nil
}

func collectCards(items []*microformats.Microformat) []*microformats.Microformat {
	var cards []*microformats.Microformat
	for _, item := range items {
		if isCard(item) {
			cards = append(cards, item)
		}
		cards = append(cards, collectCards(item.Children)...)
	}
	return cards
}

func isCard(mf *microformats.Microformat) bool {
	return hasAnyType(mf, map[string]struct{}{"h-card": {}})
}

func hasAnyType(mf *microformats.Microformat, types map[string]struct{}) bool {
	for _, t := range mf.Type {
		if _, ok := types[t]; ok {
			return true
		}
	}
	return false
}

func matchesPage(mf *microformats.Microformat, prop, pageURL string) bool {
	for _, value := range mf.Properties[prop] {
		if s, ok := value.(string); ok && indieweb.SameURL(s, pageURL) {
			return true
		}
	}
	return false
}
