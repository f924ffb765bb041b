// Package jf2 normalizes JF2 property bags, converts parsed microformats2
// into JF2 and maps JF2 onto the typed Note, Citation and Person records.
package jf2

import (
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/rcarls/ghast/internal/indieweb"
)

// TimeLayout is the canonical timestamp form of every date property.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Default content types.
const (
	ContentTypePlain = "text/plain"
	ContentTypeHTML  = "text/html"
)

// Options controls the shape of a normalized document.
type Options struct {
	// PreferredContentType selects the content variant to keep when several
	// are available.
	PreferredContentType string
	// ImplicitContentType labels bare string content.
	ImplicitContentType string
	// Compact collapses single-element lists into scalars. When false every
	// scalar is wrapped in a list.
	Compact bool
	// EmbedReferences keeps the references map (normalized one level deep).
	// When false it is dropped.
	EmbedReferences bool
}

var dateKeys = map[string]struct{}{
	"published": {},
	"updated":   {},
	"accessed":  {},
	"start":     {},
	"end":       {},
}

// Normalize returns a canonical copy of props. It never fails: values it
// cannot interpret are carried through unchanged. Normalizing an already
// normalized document with the same options returns an equal document.
func Normalize(props indieweb.Properties, opts Options) indieweb.Properties {
	out := make(indieweb.Properties, len(props))
	for key, value := range props {
		switch key {
		case "type":
			if t := props.String("type"); t != "" {
				out[key] = strings.TrimPrefix(t, "h-")
			}
		case "content":
			if content, ok := normalizeContent(value, opts); ok {
				out[key] = content
			}
		case "references":
			if !opts.EmbedReferences {
				continue
			}
			if refs := normalizeReferences(value, opts); len(refs) > 0 {
				out[key] = refs
			}
		default:
			v := normalizeValue(value, opts)
			if _, ok := dateKeys[key]; ok {
				v = normalizeDates(v)
			}
			out[key] = shape(v, opts.Compact)
		}
	}
	return out
}

// normalizeValue converts loose Go shapes into the canonical ones used by
// Properties: []any for lists, Properties for bags. Embedded microformats
// (bags with a type) are normalized recursively without references.
func normalizeValue(v any, opts Options) any {
	switch t := v.(type) {
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeValue(item, opts)
		}
		return out
	case map[string]any:
		return normalizeBag(indieweb.Properties(t), opts)
	case map[string]string:
		bag := make(indieweb.Properties, len(t))
		for k, s := range t {
			bag[k] = s
		}
		return bag
	case indieweb.Properties:
		return normalizeBag(t, opts)
	case time.Time:
		return t.UTC().Format(TimeLayout)
	default:
		return v
	}
}

func normalizeBag(bag indieweb.Properties, opts Options) indieweb.Properties {
	if bag.Type() == "" {
		return bag.Clone()
	}
	nested := opts
	nested.EmbedReferences = false
	return Normalize(bag, nested)
}

func normalizeDates(v any) any {
	switch t := v.(type) {
	case string:
		parsed, err := cast.ToTimeE(t)
		if err != nil {
			return t
		}
		return parsed.UTC().Format(TimeLayout)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeDates(item)
		}
		return out
	default:
		return v
	}
}

func shape(v any, compact bool) any {
	list, isList := v.([]any)
	switch {
	case compact && isList && len(list) == 1:
		return list[0]
	case !compact && !isList && v != nil:
		return []any{v}
	default:
		return v
	}
}

type contentVariant struct {
	contentType string
	value       string
}

// normalizeContent picks one variant of the content value and returns it as
// {"content-type": t, "value": v}.
func normalizeContent(v any, opts Options) (indieweb.Properties, bool) {
	variants := contentVariants(v, opts)
	if len(variants) == 0 {
		return nil, false
	}
	chosen := variants[0]
	if opts.PreferredContentType != "" {
		for _, variant := range variants {
			if variant.contentType == opts.PreferredContentType {
				chosen = variant
				break
			}
		}
	}
	return indieweb.Properties{
		"content-type": chosen.contentType,
		"value":        chosen.value,
	}, true
}

func contentVariants(v any, opts Options) []contentVariant {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		implicit := opts.ImplicitContentType
		if implicit == "" {
			implicit = ContentTypePlain
		}
		return []contentVariant{{contentType: implicit, value: t}}
	case []string:
		var out []contentVariant
		for _, item := range t {
			out = append(out, contentVariants(item, opts)...)
		}
		return out
	case []any:
		var out []contentVariant
		for _, item := range t {
			out = append(out, contentVariants(item, opts)...)
		}
		return out
	case map[string]string:
		bag := make(indieweb.Properties, len(t))
		for k, s := range t {
			bag[k] = s
		}
		return bagVariants(bag)
	case map[string]any:
		return bagVariants(indieweb.Properties(t))
	case indieweb.Properties:
		return bagVariants(t)
	default:
		return nil
	}
}

func bagVariants(bag indieweb.Properties) []contentVariant {
	var out []contentVariant
	if ct := bag.String("content-type"); ct != "" {
		out = append(out, contentVariant{contentType: ct, value: bag.String("value")})
		return out
	}
	if html := bag.String("html"); html != "" {
		out = append(out, contentVariant{contentType: ContentTypeHTML, value: html})
	}
	for _, key := range []string{"text", "value"} {
		if text := bag.String(key); text != "" {
			out = append(out, contentVariant{contentType: ContentTypePlain, value: text})
			break
		}
	}
	return out
}

func normalizeReferences(v any, opts Options) indieweb.Properties {
	var refs indieweb.Properties
	switch t := v.(type) {
	case indieweb.Properties:
		refs = t
	case map[string]any:
		refs = indieweb.Properties(t)
	default:
		return nil
	}

	nested := opts
	nested.EmbedReferences = false
	out := make(indieweb.Properties, len(refs))
	for url, ref := range refs {
		bag, ok := (indieweb.Properties{"ref": ref}).Map("ref")
		if !ok {
			continue
		}
		out[url] = Normalize(bag, nested)
	}
	return out
}
