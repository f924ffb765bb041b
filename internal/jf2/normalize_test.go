package jf2

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rcarls/ghast/internal/indieweb"
)

func TestNormalizeContentVariants(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		content  any
		opts     Options
		expected indieweb.Properties
	}{
		{
			name:     "bare string defaults to plain text",
			content:  "Hello",
			expected: indieweb.Properties{"content-type": "text/plain", "value": "Hello"},
		},
		{
			name:     "bare string uses implicit type",
			content:  "<p>Hello</p>",
			opts:     Options{ImplicitContentType: "text/html"},
			expected: indieweb.Properties{"content-type": "text/html", "value": "<p>Hello</p>"},
		},
		{
			name:     "preferred variant wins",
			content:  map[string]any{"html": "<b>Hi</b>", "value": "Hi"},
			opts:     Options{PreferredContentType: "text/plain"},
			expected: indieweb.Properties{"content-type": "text/plain", "value": "Hi"},
		},
		{
			name:     "first variant without preference",
			content:  []any{map[string]string{"html": "<b>Hi</b>", "value": "Hi"}},
			expected: indieweb.Properties{"content-type": "text/html", "value": "<b>Hi</b>"},
		},
		{
			name:     "canonical form kept",
			content:  indieweb.Properties{"content-type": "text/markdown", "value": "*Hi*"},
			opts:     Options{PreferredContentType: "text/plain"},
			expected: indieweb.Properties{"content-type": "text/markdown", "value": "*Hi*"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Normalize(indieweb.Properties{"content": tc.content}, tc.opts)
			require.Equal(t, tc.expected, got["content"])
		})
	}
}

func TestNormalizeCompactness(t *testing.T) {
	t.Parallel()

	props := indieweb.Properties{
		"type":     []any{"h-entry"},
		"name":     []any{"Hello"},
		"category": []any{"go", "indieweb"},
		"url":      "https://example.org/a",
	}

	compact := Normalize(props, Options{Compact: true})
	require.Equal(t, "entry", compact["type"])
	require.Equal(t, "Hello", compact["name"])
	require.Equal(t, []any{"go", "indieweb"}, compact["category"])
	require.Equal(t, "https://example.org/a", compact["url"])

	expanded := Normalize(props, Options{})
	require.Equal(t, "entry", expanded["type"])
	require.Equal(t, []any{"Hello"}, expanded["name"])
	require.Equal(t, []any{"https://example.org/a"}, expanded["url"])
}

func TestNormalizeDates(t *testing.T) {
	t.Parallel()

	got := Normalize(indieweb.Properties{
		"published": "2017-03-01T10:20:30+02:00",
		"updated":   []any{"2017-03-02"},
		"accessed":  "last tuesday",
		"name":      "2017-03-01",
	}, Options{Compact: true})

	require.Equal(t, "2017-03-01T08:20:30.000Z", got["published"])
	require.Equal(t, "2017-03-02T00:00:00.000Z", got["updated"])
	require.Equal(t, "last tuesday", got["accessed"])
	require.Equal(t, "2017-03-01", got["name"])
}

func TestNormalizeReferences(t *testing.T) {
	t.Parallel()

	props := indieweb.Properties{
		"type":   "entry",
		"author": "https://alice.example/",
		"references": map[string]any{
			"https://alice.example/": map[string]any{
				"type": "card",
				"name": []any{"Alice"},
				"url":  []any{"https://alice.example/"},
			},
		},
	}

	dropped := Normalize(props, Options{Compact: true})
	require.NotContains(t, dropped, "references")

	embedded := Normalize(props, Options{Compact: true, EmbedReferences: true})
	refs, ok := embedded.Map("references")
	require.True(t, ok)
	card, ok := refs.Map("https://alice.example/")
	require.True(t, ok)
	require.Equal(t, "Alice", card["name"])
	require.Equal(t, "card", card["type"])
}

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	docs := []indieweb.Properties{
		{},
		{
			"type":        []any{"h-entry"},
			"name":        []any{"Title"},
			"content":     []any{map[string]any{"html": "<p>Body</p>", "value": "Body"}},
			"published":   []any{"2020-01-02T03:04:05-05:00"},
			"in-reply-to": []any{"https://a.example/1"},
			"photo":       []any{map[string]string{"value": "https://a.example/p.jpg", "alt": "pic"}},
			"author": []any{map[string]any{
				"type": []any{"h-card"},
				"name": []any{"Bob"},
				"url":  []any{"https://bob.example/"},
			}},
			"references": map[string]any{
				"https://a.example/1": map[string]any{"type": "cite", "content": "hi", "published": "2020-01-01"},
			},
		},
	}

	optionSets := []Options{
		{},
		{Compact: true},
		{Compact: true, EmbedReferences: true, PreferredContentType: "text/plain"},
		{ImplicitContentType: "text/html", EmbedReferences: true},
	}

	for _, doc := range docs {
		for _, opts := range optionSets {
			once := Normalize(doc, opts)
			twice := Normalize(once, opts)
			require.Equal(t, once, twice, "options %+v", opts)
		}
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	input := indieweb.Properties{"name": []any{"x"}, "content": "y"}
	_ = Normalize(input, Options{Compact: true})
	require.Equal(t, indieweb.Properties{"name": []any{"x"}, "content": "y"}, input)
}
