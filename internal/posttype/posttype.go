// Package posttype classifies JF2 property bags into ordered post types and
// derives the URLs a post implicitly notifies.
package posttype

import (
	"strings"

	"github.com/rcarls/ghast/internal/indieweb"
)

var rsvpValues = map[string]struct{}{
	"yes":        {},
	"no":         {},
	"maybe":      {},
	"interested": {},
	"invited":    {},
}

// responseRules pairs each response post type with its marker property, in
// priority order.
var responseRules = []struct {
	postType indieweb.PostType
	response indieweb.ResponseType
	property string
}{
	{indieweb.PostTypeReply, indieweb.ResponseReply, indieweb.PropInReplyTo},
	{indieweb.PostTypeRepost, indieweb.ResponseRepost, indieweb.PropRepostOf},
	{indieweb.PostTypeLike, indieweb.ResponseLike, indieweb.PropLikeOf},
	{indieweb.PostTypeBookmark, indieweb.ResponseBookmark, indieweb.PropBookmarkOf},
	{indieweb.PostTypeTag, indieweb.ResponseTag, indieweb.PropTagOf},
}

var contextMap = map[indieweb.PostType]string{
	indieweb.PostTypeReply:    indieweb.PropInReplyTo,
	indieweb.PostTypeRepost:   indieweb.PropRepostOf,
	indieweb.PostTypeLike:     indieweb.PropLikeOf,
	indieweb.PostTypeBookmark: indieweb.PropBookmarkOf,
	indieweb.PostTypeTag:      indieweb.PropTagOf,
}

// Classify returns the ordered post types of props. The first element is the
// representative type. The result is never empty.
func Classify(props indieweb.Properties) []indieweb.PostType {
	types := make([]indieweb.PostType, 0, 3)
	if isRSVP(props) {
		types = append(types, indieweb.PostTypeRSVP)
	}
	for _, rule := range responseRules {
		if props.Has(rule.property) {
			types = append(types, rule.postType)
		}
	}

	text := contentText(props)
	switch {
	case isArticle(props.String("name"), text):
		types = append(types, indieweb.PostTypeArticle)
	case text != "" || len(types) == 0:
		types = append(types, indieweb.PostTypeNote)
	}
	return types
}

// MentionTargets returns every URL found in the response-triggering
// properties, deduplicated, in property priority order.
func MentionTargets(props indieweb.Properties) []string {
	var all []string
	for _, prop := range indieweb.TargetProperties {
		all = append(all, props.Strings(prop)...)
	}
	return indieweb.DedupeURLs(all)
}

// TargetProperty returns the property that holds the reply context of the
// representative post type, or "" when that type has none.
func TargetProperty(types []indieweb.PostType) string {
	if len(types) == 0 {
		return ""
	}
	if types[0] == indieweb.PostTypeRSVP {
		return indieweb.PropInReplyTo
	}
	return contextMap[types[0]]
}

// ReplyContext returns the URLs of the representative target property.
func ReplyContext(props indieweb.Properties) []string {
	prop := TargetProperty(Classify(props))
	if prop == "" {
		return nil
	}
	return props.Strings(prop)
}

// ResponseTypes describes how a source post responds to target. A source that
// names target in none of its response properties is a mention.
func ResponseTypes(props indieweb.Properties, target string) []indieweb.ResponseType {
	var types []indieweb.ResponseType
	if isRSVP(props) && containsURL(props.Strings(indieweb.PropInReplyTo), target) {
		types = append(types, indieweb.ResponseRSVP)
	}
	for _, rule := range responseRules {
		if containsURL(props.Strings(rule.property), target) {
			types = append(types, rule.response)
		}
	}
	if len(types) == 0 {
		return []indieweb.ResponseType{indieweb.ResponseMention}
	}
	return types
}

func isRSVP(props indieweb.Properties) bool {
	value := strings.ToLower(strings.TrimSpace(props.String("rsvp")))
	_, ok := rsvpValues[value]
	return ok
}

// isArticle applies the post type discovery rule: a name that is not merely a
// prefix of the content text marks a titled article.
func isArticle(name, text string) bool {
	name = collapseSpace(name)
	text = collapseSpace(text)
	if name == "" || text == "" {
		return false
	}
	return !strings.HasPrefix(text, name)
}

func contentText(props indieweb.Properties) string {
	switch v := props["content"].(type) {
	case string:
		return v
	case []any:
		if len(v) == 0 {
			return ""
		}
		return contentText(indieweb.Properties{"content": v[0]})
	}
	content, ok := props.Map("content")
	if !ok {
		return props.String("summary")
	}
	for _, key := range []string{"text", "value", "html"} {
		if s := content.String(key); s != "" {
			return s
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func containsURL(values []string, target string) bool {
	for _, v := range values {
		if v == target || indieweb.SameURL(v, target) {
			return true
		}
	}
	return false
}
