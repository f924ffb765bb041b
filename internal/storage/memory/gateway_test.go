package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rcarls/ghast/internal/indieweb"
)

func TestGatewayNoteLifecycle(t *testing.T) {
	t.Parallel()

	gw := NewGateway()
	ctx := context.Background()

	_, err := gw.FindNote(ctx, "hello-world")
	require.True(t, indieweb.IsNotFound(err))

	note := indieweb.Note{
		Slug:      "hello-world",
		Name:      "Hello world",
		Author:    "https://me.example/",
		Published: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Content:   &indieweb.Content{Type: "text/plain", Value: "Hi"},
	}
	require.NoError(t, gw.SaveNote(ctx, note))

	got, err := gw.FindNote(ctx, "hello-world")
	require.NoError(t, err)
	require.Equal(t, "Hello world", got.Name)

	got.Content.Value = "mutated"
	again, err := gw.FindNote(ctx, "hello-world")
	require.NoError(t, err)
	require.Equal(t, "Hi", again.Content.Value)

	require.Error(t, gw.SaveNote(ctx, indieweb.Note{}))
}

func TestSaveNoteKeepsExistingComments(t *testing.T) {
	t.Parallel()

	gw := NewGateway()
	ctx := context.Background()
	require.NoError(t, gw.SaveNote(ctx, indieweb.Note{Slug: "hello", Comments: []string{"https://a.example/1"}}))
	_, err := gw.AppendComment(ctx, "hello", "https://bob.example/reply")
	require.NoError(t, err)

	require.NoError(t, gw.SaveNote(ctx, indieweb.Note{
		Slug:     "hello",
		Content:  &indieweb.Content{Type: "text/plain", Value: "second"},
		Comments: []string{"https://ignored.example/"},
	}))

	got, err := gw.FindNote(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, "second", got.Content.Value)
	require.Equal(t, []string{"https://a.example/1", "https://bob.example/reply"}, got.Comments)
}

func TestGatewayListNotesNewestFirst(t *testing.T) {
	t.Parallel()

	gw := NewGateway()
	ctx := context.Background()
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 3 {
		require.NoError(t, gw.SaveNote(ctx, indieweb.Note{
			Slug:      fmt.Sprintf("n%d", i),
			Published: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	notes, err := gw.ListNotes(ctx, 2)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	require.Equal(t, "n2", notes[0].Slug)
	require.Equal(t, "n1", notes[1].Slug)
}

func TestAppendCommentIsSetLike(t *testing.T) {
	t.Parallel()

	gw := NewGateway()
	ctx := context.Background()

	_, err := gw.AppendComment(ctx, "missing", "https://bob.example/r/1")
	require.True(t, indieweb.IsNotFound(err))

	require.NoError(t, gw.SaveNote(ctx, indieweb.Note{Slug: "hello-world"}))
	_, err = gw.AppendComment(ctx, "hello-world", "https://bob.example/r/1")
	require.NoError(t, err)
	note, err := gw.AppendComment(ctx, "hello-world", "https://bob.example/r/1")
	require.NoError(t, err)
	require.Equal(t, []string{"https://bob.example/r/1"}, note.Comments)
}

func TestAppendCommentConcurrentCallersLoseNothing(t *testing.T) {
	t.Parallel()

	gw := NewGateway()
	ctx := context.Background()
	require.NoError(t, gw.SaveNote(ctx, indieweb.Note{Slug: "popular"}))

	const writers = 50
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := gw.AppendComment(ctx, "popular", fmt.Sprintf("https://fan%d.example/reply", i))
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	note, err := gw.FindNote(ctx, "popular")
	require.NoError(t, err)
	require.Len(t, note.Comments, writers)
}

func TestCreateIfAbsentWritesOnce(t *testing.T) {
	t.Parallel()

	gw := NewGateway()
	ctx := context.Background()

	created, err := gw.CreatePersonIfAbsent(ctx, indieweb.Person{URL: "https://alice.example/", Name: "Alice"})
	require.NoError(t, err)
	require.True(t, created)
	created, err = gw.CreatePersonIfAbsent(ctx, indieweb.Person{URL: "https://ALICE.example", Name: "Impostor"})
	require.NoError(t, err)
	require.False(t, created)

	person, err := gw.FindPerson(ctx, "https://alice.example/")
	require.NoError(t, err)
	require.Equal(t, "Alice", person.Name)

	created, err = gw.CreateCitationIfAbsent(ctx, indieweb.Citation{URL: "https://bob.example/x", Name: "first"})
	require.NoError(t, err)
	require.True(t, created)
	created, err = gw.CreateCitationIfAbsent(ctx, indieweb.Citation{URL: "https://bob.example/x#frag", Name: "second"})
	require.NoError(t, err)
	require.False(t, created)

	citation, err := gw.FindCitation(ctx, "https://bob.example/x")
	require.NoError(t, err)
	require.Equal(t, "first", citation.Name)

	_, err = gw.CreateCitationIfAbsent(ctx, indieweb.Citation{URL: "relative"})
	require.Error(t, err)

	notes, citations, people := gw.Counts()
	require.Equal(t, 0, notes)
	require.Equal(t, 1, citations)
	require.Equal(t, 1, people)
}

func TestNextSequenceIncrements(t *testing.T) {
	t.Parallel()

	gw := NewGateway()
	first, err := gw.NextSequence(context.Background())
	require.NoError(t, err)
	second, err := gw.NextSequence(context.Background())
	require.NoError(t, err)
	require.Equal(t, first+1, second)
}
