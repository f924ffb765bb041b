package jf2

import (
	"time"

	"github.com/spf13/cast"

	"github.com/rcarls/ghast/internal/indieweb"
)

// NoteFromProperties maps a JF2 entry onto a Note. The slug is read from the
// "slug" property when present.
func NoteFromProperties(props indieweb.Properties) indieweb.Note {
	return indieweb.Note{
		Slug:       props.String("slug"),
		Name:       props.String("name"),
		Content:    contentOf(props),
		Author:     props.String("author"),
		Published:  timeOf(props, "published"),
		Updated:    timeOf(props, "updated"),
		InReplyTo:  props.Strings(indieweb.PropInReplyTo),
		RepostOf:   props.Strings(indieweb.PropRepostOf),
		LikeOf:     props.Strings(indieweb.PropLikeOf),
		BookmarkOf: props.Strings(indieweb.PropBookmarkOf),
		TagOf:      props.Strings(indieweb.PropTagOf),
		Category:   props.Strings("category"),
		Photo:      props.Strings("photo"),
		Comments:   props.Strings("comment"),
	}
}

// NoteProperties renders a Note as a compact JF2 entry.
func NoteProperties(note indieweb.Note) indieweb.Properties {
	props := indieweb.Properties{
		"type":   "entry",
		"slug":   note.Slug,
		"author": note.Author,
	}
	setString(props, "name", note.Name)
	if note.Content != nil {
		props["content"] = indieweb.Properties{"content-type": note.Content.Type, "value": note.Content.Value}
	}
	setTime(props, "published", note.Published)
	setTime(props, "updated", note.Updated)
	for _, prop := range indieweb.TargetProperties {
		setList(props, prop, note.Targets(prop))
	}
	setList(props, "category", note.Category)
	setList(props, "photo", note.Photo)
	setList(props, "comment", note.Comments)
	return props
}

// CitationFromProperties maps a JF2 cite onto a Citation. The identity is uid,
// falling back to the first url; every url is kept in URLs.
func CitationFromProperties(props indieweb.Properties) indieweb.Citation {
	urls := props.Strings("url")
	citation := indieweb.Citation{
		URL:       props.String("uid"),
		URLs:      urls,
		Name:      props.String("name"),
		Author:    props.String("author"),
		Published: timeOf(props, "published"),
		Accessed:  timeOf(props, "accessed"),
		Photo:     props.Strings("photo"),
	}
	if citation.URL == "" && len(urls) > 0 {
		citation.URL = urls[0]
	}
	if content := contentOf(props); content != nil {
		citation.Content = content.Value
	}
	for _, t := range props.Strings("_postTypes") {
		citation.PostTypes = append(citation.PostTypes, indieweb.PostType(t))
	}
	for _, t := range props.Strings("_responseTypes") {
		citation.ResponseTypes = append(citation.ResponseTypes, indieweb.ResponseType(t))
	}
	return citation
}

// CitationProperties renders a Citation as a compact JF2 cite.
func CitationProperties(citation indieweb.Citation) indieweb.Properties {
	props := indieweb.Properties{
		"type": "cite",
		"url":  citation.URL,
	}
	setString(props, "name", citation.Name)
	setString(props, "author", citation.Author)
	if citation.Content != "" {
		props["content"] = indieweb.Properties{"content-type": ContentTypePlain, "value": citation.Content}
	}
	setTime(props, "published", citation.Published)
	setTime(props, "accessed", citation.Accessed)
	setList(props, "photo", citation.Photo)
	if len(citation.PostTypes) > 0 {
		types := make([]any, len(citation.PostTypes))
		for i, t := range citation.PostTypes {
			types[i] = string(t)
		}
		props["_postTypes"] = types
	}
	if len(citation.ResponseTypes) > 0 {
		types := make([]any, len(citation.ResponseTypes))
		for i, t := range citation.ResponseTypes {
			types[i] = string(t)
		}
		props["_responseTypes"] = types
	}
	return props
}

// PersonFromProperties maps a JF2 card onto a Person. The uid, when set, is
// the identity; otherwise the first url is.
func PersonFromProperties(props indieweb.Properties) indieweb.Person {
	urls := props.Strings("url")
	person := indieweb.Person{
		URL:   props.String("uid"),
		Name:  props.String("name"),
		Photo: props.Strings("photo"),
		URLs:  urls,
	}
	if person.URL == "" && len(urls) > 0 {
		person.URL = urls[0]
	}
	return person
}

// PersonProperties renders a Person as a compact JF2 card.
func PersonProperties(person indieweb.Person) indieweb.Properties {
	props := indieweb.Properties{
		"type": "card",
		"url":  person.URL,
		"name": person.Name,
	}
	setList(props, "photo", person.Photo)
	return props
}

func contentOf(props indieweb.Properties) *indieweb.Content {
	content, ok := normalizeContent(props["content"], Options{})
	if !ok {
		return nil
	}
	return &indieweb.Content{Type: content.String("content-type"), Value: content.String("value")}
}

func timeOf(props indieweb.Properties, key string) time.Time {
	raw := props.String(key)
	if raw == "" {
		return time.Time{}
	}
	t, err := cast.ToTimeE(raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func setString(props indieweb.Properties, key, value string) {
	if value != "" {
		props[key] = value
	}
}

func setTime(props indieweb.Properties, key string, value time.Time) {
	if !value.IsZero() {
		props[key] = value.UTC().Format(TimeLayout)
	}
}

func setList(props indieweb.Properties, key string, values []string) {
	if len(values) == 0 {
		return
	}
	list := make([]any, len(values))
	for i, v := range values {
		list[i] = v
	}
	props[key] = list
}
