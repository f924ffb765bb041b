package indieweb

import (
	"net/http"
	"strings"
	"time"
)

// Properties is a JF2 property bag. Values are strings, numbers, nested
// property bags, or lists of those.
type Properties map[string]any

// PostType labels a post by the kind of response it represents.
type PostType string

// Post types in classification priority order.
const (
	PostTypeRSVP     PostType = "rsvp"
	PostTypeReply    PostType = "reply"
	PostTypeRepost   PostType = "repost"
	PostTypeLike     PostType = "like"
	PostTypeBookmark PostType = "bookmark"
	PostTypeTag      PostType = "tag"
	PostTypeArticle  PostType = "article"
	PostTypeNote     PostType = "note"
)

// ResponseType describes how a reacting page relates to one of our notes.
type ResponseType string

// Response types recorded on inbound citations.
const (
	ResponseRSVP     ResponseType = "rsvp"
	ResponseReply    ResponseType = "reply"
	ResponseRepost   ResponseType = "repost"
	ResponseLike     ResponseType = "like"
	ResponseBookmark ResponseType = "bookmark"
	ResponseTag      ResponseType = "tag"
	ResponseMention  ResponseType = "mention"
)

// ReferenceKind discriminates the normalized document expected from a URL.
type ReferenceKind string

// Reference kinds, spelled as the JF2 type they normalize to.
const (
	KindCitation ReferenceKind = "cite"
	KindPerson   ReferenceKind = "card"
)

// Response-triggering properties in priority order.
const (
	PropInReplyTo  = "in-reply-to"
	PropRepostOf   = "repost-of"
	PropLikeOf     = "like-of"
	PropBookmarkOf = "bookmark-of"
	PropTagOf      = "tag-of"
)

// TargetProperties lists the response-triggering properties.
var TargetProperties = []string{
	PropInReplyTo,
	PropRepostOf,
	PropLikeOf,
	PropBookmarkOf,
	PropTagOf,
}

// Content is a content-type tagged value.
type Content struct {
	Type  string `json:"content-type"`
	Value string `json:"value"`
}

// Note is the author's own post.
type Note struct {
	Slug       string    `json:"slug"`
	Name       string    `json:"name,omitempty"`
	Content    *Content  `json:"content,omitempty"`
	Author     string    `json:"author"`
	Published  time.Time `json:"published"`
	Updated    time.Time `json:"updated,omitempty"`
	InReplyTo  []string  `json:"in-reply-to,omitempty"`
	RepostOf   []string  `json:"repost-of,omitempty"`
	LikeOf     []string  `json:"like-of,omitempty"`
	BookmarkOf []string  `json:"bookmark-of,omitempty"`
	TagOf      []string  `json:"tag-of,omitempty"`
	Category   []string  `json:"category,omitempty"`
	Photo      []string  `json:"photo,omitempty"`
	Comments   []string  `json:"comment,omitempty"`
}

// Targets returns the values of one response-triggering property.
func (n Note) Targets(prop string) []string {
	switch prop {
	case PropInReplyTo:
		return n.InReplyTo
	case PropRepostOf:
		return n.RepostOf
	case PropLikeOf:
		return n.LikeOf
	case PropBookmarkOf:
		return n.BookmarkOf
	case PropTagOf:
		return n.TagOf
	default:
		return nil
	}
}

// Citation is a normalized external reference (a NoteContext). URL is the
// canonical identity.
type Citation struct {
	URL           string         `json:"url"`
	URLs          []string       `json:"urls,omitempty"`
	Name          string         `json:"name,omitempty"`
	Content       string         `json:"content,omitempty"`
	Author        string         `json:"author"`
	Published     time.Time      `json:"published"`
	Accessed      time.Time      `json:"accessed"`
	Photo         []string       `json:"photo,omitempty"`
	PostTypes     []PostType     `json:"_postTypes,omitempty"`
	ResponseTypes []ResponseType `json:"_responseTypes,omitempty"`
}

// Person is a normalized identity. URL is the canonical identity.
type Person struct {
	URL   string   `json:"url"`
	Name  string   `json:"name"`
	Photo []string `json:"photo,omitempty"`
	URLs  []string `json:"urls,omitempty"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Has reports whether key is present with a non-empty value.
func (p Properties) Has(key string) bool {
	v, ok := p[key]
	if !ok {
		return false
	}
	return !isEmpty(v)
}

// String returns the first non-empty string value of key.
func (p Properties) String(key string) string {
	values := p.Strings(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Strings flattens the value of key into its non-empty string members.
// Nested bags contribute their url (or value) member.
func (p Properties) Strings(key string) []string {
	return toStrings(p[key])
}

// Map returns the nested property bag stored at key, if any.
func (p Properties) Map(key string) (Properties, bool) {
	switch v := p[key].(type) {
	case Properties:
		return v, true
	case map[string]any:
		return Properties(v), true
	case []any:
		if len(v) == 0 {
			return nil, false
		}
		return Properties{key: v[0]}.Map(key)
	default:
		return nil, false
	}
}

// Type returns the JF2 type of the bag.
func (p Properties) Type() string {
	return p.String("type")
}

// Clone returns a deep copy of the bag.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Properties:
		return t.Clone()
	case map[string]any:
		return Properties(t).Clone()
	case map[string]string:
		out := make(Properties, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = item
		}
		return out
	default:
		return v
	}
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{t}
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			out = append(out, toStrings(s)...)
		}
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, toStrings(item)...)
		}
		return out
	case Properties:
		return bagString(t)
	case map[string]any:
		return bagString(Properties(t))
	default:
		return nil
	}
}

func bagString(p Properties) []string {
	if u := p.String("url"); u != "" {
		return []string{u}
	}
	if v := p.String("value"); v != "" {
		return []string{v}
	}
	return nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		for _, item := range t {
			if !isEmpty(item) {
				return false
			}
		}
		return true
	case []string:
		for _, item := range t {
			if !isEmpty(item) {
				return false
			}
		}
		return true
	case Properties:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
