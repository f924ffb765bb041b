package jf2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"willnorris.com/go/microformats"

	"github.com/rcarls/ghast/internal/indieweb"
)

const replyPage = `<!doctype html>
<html><body>
<div class="h-entry">
  <a class="p-author h-card" href="https://alice.example/">Alice</a>
  <h1 class="p-name">Hello</h1>
  <div class="e-content"><p>Hi <b>there</b></p></div>
  <a class="u-url" href="/posts/1">permalink</a>
  <a class="u-in-reply-to" href="https://bob.example/notes/x">in reply to</a>
</div>
</body></html>`

func TestParseAndConvertEntry(t *testing.T) {
	t.Parallel()

	data, err := Parse([]byte(replyPage), "https://alice.example/posts/1")
	require.NoError(t, err)

	entry := FindEntry(data)
	require.NotNil(t, entry)

	props := FromMicroformat(entry)
	require.Equal(t, "entry", props["type"])
	require.Equal(t, "https://alice.example/posts/1", props.String("url"))
	require.Equal(t, []string{"https://bob.example/notes/x"}, props.Strings("in-reply-to"))
	require.Equal(t, "https://alice.example/", props.String("author"))

	refs, ok := props.Map("references")
	require.True(t, ok)
	card, ok := refs.Map("https://alice.example/")
	require.True(t, ok)
	require.Equal(t, "card", card.Type())
	require.Equal(t, "Alice", card.String("name"))

	normalized := Normalize(props, Options{PreferredContentType: ContentTypeHTML, Compact: true})
	content, ok := normalized.Map("content")
	require.True(t, ok)
	require.Equal(t, ContentTypeHTML, content.String("content-type"))
	require.Contains(t, content.String("value"), "<b>there</b>")
}

func TestFromMicroformatKeepsAnonymousNestedItemsInline(t *testing.T) {
	t.Parallel()

	mf := &microformats.Microformat{
		Type: []string{"h-entry"},
		Properties: map[string][]any{
			"author": {&microformats.Microformat{
				Type:       []string{"h-card"},
				Properties: map[string][]any{"name": {"Anonymous"}},
			}},
		},
	}

	props := FromMicroformat(mf)
	require.NotContains(t, props, "references")
	author, ok := props.Map("author")
	require.True(t, ok)
	require.Equal(t, "Anonymous", author.String("name"))
}

func TestFindEntrySearchesChildren(t *testing.T) {
	t.Parallel()

	cite := &microformats.Microformat{Type: []string{"h-cite"}}
	data := &microformats.Data{Items: []*microformats.Microformat{
		{Type: []string{"h-feed"}, Children: []*microformats.Microformat{cite}},
	}}
	require.Same(t, cite, FindEntry(data))
	require.Nil(t, FindEntry(&microformats.Data{}))
	require.Nil(t, FindEntry(nil))
}

func TestFindCardSelectsRepresentativeCard(t *testing.T) {
	t.Parallel()

	page := "https://alice.example/"
	other := card("https://elsewhere.example/", "")
	byURL := card(page, "")
	byUID := card(page, page)

	require.Same(t, byUID, FindCard(&microformats.Data{Items: []*microformats.Microformat{other, byURL, byUID}}, page))
	require.Same(t, byURL, FindCard(&microformats.Data{Items: []*microformats.Microformat{other, byURL}}, page))
	require.Same(t, other, FindCard(&microformats.Data{Items: []*microformats.Microformat{other}}, page))

	author := card("https://bob.example/", "")
	entryOnly := &microformats.Data{Items: []*microformats.Microformat{{
		Type:       []string{"h-entry"},
		Properties: map[string][]any{"author": {author}},
	}}}
	require.Same(t, author, FindCard(entryOnly, page))
	require.Nil(t, FindCard(&microformats.Data{}, page))
}

func TestCitationMapping(t *testing.T) {
	t.Parallel()

	props := indieweb.Properties{
		"type":           "cite",
		"url":            []any{"https://bob.example/notes/x", "https://bob.example/x"},
		"name":           "Bob's note",
		"author":         "https://bob.example/",
		"content":        indieweb.Properties{"content-type": "text/plain", "value": "Nice"},
		"published":      "2019-05-06T07:08:09.000Z",
		"accessed":       "2019-05-07T00:00:00.000Z",
		"_postTypes":     []any{"reply", "note"},
		"_responseTypes": []any{"reply"},
	}

	citation := CitationFromProperties(props)
	require.Equal(t, "https://bob.example/notes/x", citation.URL)
	require.Len(t, citation.URLs, 2)
	require.Equal(t, "Nice", citation.Content)
	require.Equal(t, time.Date(2019, 5, 6, 7, 8, 9, 0, time.UTC), citation.Published)
	require.Equal(t, []indieweb.PostType{indieweb.PostTypeReply, indieweb.PostTypeNote}, citation.PostTypes)
	require.NotEqual(t, citation.Published, citation.Accessed)

	rendered := CitationProperties(citation)
	require.Equal(t, "2019-05-07T00:00:00.000Z", rendered["accessed"])
	require.Equal(t, []any{"reply"}, rendered["_responseTypes"])
}

func TestCitationIdentityPrefersUID(t *testing.T) {
	t.Parallel()

	citation := CitationFromProperties(indieweb.Properties{
		"type": "cite",
		"uid":  "https://bob.example/notes/x",
		"url":  []any{"https://short.example/x", "https://bob.example/notes/x"},
	})
	require.Equal(t, "https://bob.example/notes/x", citation.URL)
	require.Equal(t, []string{"https://short.example/x", "https://bob.example/notes/x"}, citation.URLs)
}

func TestPersonAndNoteMapping(t *testing.T) {
	t.Parallel()

	person := PersonFromProperties(indieweb.Properties{
		"type": "card",
		"name": "Alice",
		"url":  []any{"https://alice.example/", "https://social.example/@alice"},
	})
	require.Equal(t, "https://alice.example/", person.URL)
	require.Equal(t, "Alice", PersonProperties(person)["name"])

	note := NoteFromProperties(indieweb.Properties{
		"slug":        "hello-world",
		"name":        "Hello world",
		"content":     "Hi",
		"in-reply-to": []any{"https://bob.example/x"},
		"published":   "2020-01-01T00:00:00Z",
	})
	require.Equal(t, "hello-world", note.Slug)
	require.Equal(t, &indieweb.Content{Type: ContentTypePlain, Value: "Hi"}, note.Content)
	require.Equal(t, []string{"https://bob.example/x"}, note.InReplyTo)

	props := NoteProperties(note)
	require.Equal(t, []any{"https://bob.example/x"}, props["in-reply-to"])
	require.Equal(t, "2020-01-01T00:00:00.000Z", props["published"])
}

func card(url, uid string) *microformats.Microformat {
	props := map[string][]any{"url": {url}, "name": {"someone"}}
	if uid != "" {
		props["uid"] = []any{uid}
	}
	return &microformats.Microformat{Type: []string{"h-card"}, Properties: props}
}
