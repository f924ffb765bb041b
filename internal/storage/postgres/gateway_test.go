package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/rcarls/ghast/internal/indieweb"
)

var noteColumnNames = []string{
	"slug", "name", "content_type", "content", "author", "published", "updated",
	"in_reply_to", "repost_of", "like_of", "bookmark_of", "tag_of", "category", "photo", "comments",
}

func newMockGateway(t *testing.T) (*Gateway, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	gw, err := NewWithPool(mock)
	require.NoError(t, err)
	return gw, mock
}

func noteRows(published time.Time, comments []string) *pgxmock.Rows {
	return pgxmock.NewRows(noteColumnNames).AddRow(
		"hello-world", "Hello world", "text/plain", "Hi", "https://me.example/",
		published, (*time.Time)(nil),
		[]string{"https://bob.example/x"}, []string{}, []string{}, []string{}, []string{},
		[]string{"go"}, []string{}, comments,
	)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	gw, mock := newMockGateway(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS notes").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS notes_published_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS note_contexts").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS people").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE SEQUENCE IF NOT EXISTS untitled_seq").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, gw.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveNoteUpserts(t *testing.T) {
	t.Parallel()

	gw, mock := newMockGateway(t)
	published := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	note := indieweb.Note{
		Slug:      "hello-world",
		Name:      "Hello world",
		Content:   &indieweb.Content{Type: "text/plain", Value: "Hi"},
		Author:    "https://me.example/",
		Published: published,
		InReplyTo: []string{"https://bob.example/x"},
	}

	mock.ExpectExec("INSERT INTO notes").
		WithArgs(
			"hello-world", "Hello world", "text/plain", "Hi", "https://me.example/",
			published, pgxmock.AnyArg(),
			[]string{"https://bob.example/x"}, []string{}, []string{}, []string{}, []string{},
			[]string{}, []string{}, []string{},
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, gw.SaveNote(context.Background(), note))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveNoteWrapsStorageErrors(t *testing.T) {
	t.Parallel()

	gw, mock := newMockGateway(t)
	mock.ExpectExec("INSERT INTO notes").WillReturnError(errors.New("conn reset"))

	err := gw.SaveNote(context.Background(), indieweb.Note{Slug: "x", Author: "https://me.example/"})
	var storageErr *indieweb.StorageError
	require.ErrorAs(t, err, &storageErr)
	require.Equal(t, "save note", storageErr.Op)
}

func TestFindNote(t *testing.T) {
	t.Parallel()

	gw, mock := newMockGateway(t)
	published := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT .+ FROM notes WHERE slug").
		WithArgs("hello-world").
		WillReturnRows(noteRows(published, []string{}))
	mock.ExpectQuery("SELECT .+ FROM notes WHERE slug").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	note, err := gw.FindNote(context.Background(), "hello-world")
	require.NoError(t, err)
	require.Equal(t, "Hello world", note.Name)
	require.Equal(t, &indieweb.Content{Type: "text/plain", Value: "Hi"}, note.Content)
	require.Equal(t, []string{"https://bob.example/x"}, note.InReplyTo)
	require.True(t, note.Updated.IsZero())

	_, err = gw.FindNote(context.Background(), "missing")
	require.True(t, indieweb.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendComment(t *testing.T) {
	t.Parallel()

	published := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	source := "https://bob.example/replies/1"

	t.Run("appends", func(t *testing.T) {
		t.Parallel()
		gw, mock := newMockGateway(t)
		mock.ExpectQuery("UPDATE notes SET comments = array_append").
			WithArgs("hello-world", source).
			WillReturnRows(noteRows(published, []string{source}))

		note, err := gw.AppendComment(context.Background(), "hello-world", source)
		require.NoError(t, err)
		require.Equal(t, []string{source}, note.Comments)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already present", func(t *testing.T) {
		t.Parallel()
		gw, mock := newMockGateway(t)
		mock.ExpectQuery("UPDATE notes SET comments = array_append").
			WithArgs("hello-world", source).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery("SELECT .+ FROM notes WHERE slug").
			WithArgs("hello-world").
			WillReturnRows(noteRows(published, []string{source}))

		note, err := gw.AppendComment(context.Background(), "hello-world", source)
		require.NoError(t, err)
		require.Equal(t, []string{source}, note.Comments)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing note", func(t *testing.T) {
		t.Parallel()
		gw, mock := newMockGateway(t)
		mock.ExpectQuery("UPDATE notes SET comments = array_append").
			WithArgs("gone", source).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery("SELECT .+ FROM notes WHERE slug").
			WithArgs("gone").
			WillReturnError(pgx.ErrNoRows)

		_, err := gw.AppendComment(context.Background(), "gone", source)
		require.True(t, indieweb.IsNotFound(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateCitationIfAbsent(t *testing.T) {
	t.Parallel()

	gw, mock := newMockGateway(t)
	accessed := time.Date(2021, 2, 3, 4, 5, 6, 0, time.UTC)
	citation := indieweb.Citation{
		URL:           "https://Bob.example/x#top",
		Name:          "Bob's post",
		Author:        "https://bob.example/",
		Accessed:      accessed,
		PostTypes:     []indieweb.PostType{indieweb.PostTypeReply},
		ResponseTypes: []indieweb.ResponseType{indieweb.ResponseReply},
	}

	mock.ExpectExec("INSERT INTO note_contexts").
		WithArgs(
			"https://bob.example/x", []string{"https://Bob.example/x#top"}, "Bob's post", "", "https://bob.example/",
			pgxmock.AnyArg(), accessed, []string{}, []string{"reply"}, []string{"reply"},
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO note_contexts").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	created, err := gw.CreateCitationIfAbsent(context.Background(), citation)
	require.NoError(t, err)
	require.True(t, created)

	created, err = gw.CreateCitationIfAbsent(context.Background(), citation)
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = gw.CreateCitationIfAbsent(context.Background(), indieweb.Citation{URL: "not a url"})
	var validation *indieweb.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestFindCitation(t *testing.T) {
	t.Parallel()

	gw, mock := newMockGateway(t)
	accessed := time.Date(2021, 2, 3, 4, 5, 6, 0, time.UTC)
	mock.ExpectQuery("SELECT .+ FROM note_contexts WHERE url").
		WithArgs("https://bob.example/x").
		WillReturnRows(pgxmock.NewRows([]string{
			"url", "urls", "name", "content", "author", "published", "accessed", "photo", "post_types", "response_types",
		}).AddRow(
			"https://bob.example/x", []string{"https://bob.example/x"}, "Bob's post", "Hi", "https://bob.example/",
			(*time.Time)(nil), accessed, []string{}, []string{"reply"}, []string{"reply"},
		))

	citation, err := gw.FindCitation(context.Background(), "https://bob.example/x")
	require.NoError(t, err)
	require.Equal(t, []indieweb.PostType{indieweb.PostTypeReply}, citation.PostTypes)
	require.True(t, citation.Published.IsZero())
	require.Equal(t, accessed, citation.Accessed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPeople(t *testing.T) {
	t.Parallel()

	gw, mock := newMockGateway(t)
	mock.ExpectExec("INSERT INTO people").
		WithArgs("https://alice.example/", "Alice", []string{}, []string{"https://alice.example/"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT url, name, photo, urls FROM people").
		WithArgs("https://alice.example/").
		WillReturnRows(pgxmock.NewRows([]string{"url", "name", "photo", "urls"}).
			AddRow("https://alice.example/", "Alice", []string{}, []string{"https://alice.example/"}))
	mock.ExpectQuery("SELECT url, name, photo, urls FROM people").
		WithArgs("https://nobody.example/").
		WillReturnError(pgx.ErrNoRows)

	created, err := gw.CreatePersonIfAbsent(context.Background(), indieweb.Person{
		URL:  "https://ALICE.example",
		Name: "Alice",
		URLs: []string{"https://alice.example/"},
	})
	require.NoError(t, err)
	require.True(t, created)

	person, err := gw.FindPerson(context.Background(), "https://alice.example/")
	require.NoError(t, err)
	require.Equal(t, "Alice", person.Name)

	_, err = gw.FindPerson(context.Background(), "https://nobody.example/")
	require.True(t, indieweb.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextSequence(t *testing.T) {
	t.Parallel()

	gw, mock := newMockGateway(t)
	mock.ExpectQuery("SELECT nextval").WillReturnRows(pgxmock.NewRows([]string{"nextval"}).AddRow(int64(7)))

	n, err := gw.NextSequence(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil)
	require.Error(t, err)
}
