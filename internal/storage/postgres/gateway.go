// Package postgres provides the Postgres-backed storage gateway.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcarls/ghast/internal/indieweb"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Gateway implements indieweb.Gateway on Postgres.
type Gateway struct {
	pool querier
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Gateway{pool: pool}, nil
}

// NewWithPool constructs a gateway from an existing pool (primarily for testing).
func NewWithPool(pool querier) (*Gateway, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Gateway{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (g *Gateway) Close() {
	if g == nil || g.pool == nil {
		return
	}
	g.pool.Close()
}

// Ping checks the database is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.pool.Ping(ctx)
}

// EnsureSchema creates the tables and sequence when missing.
func (g *Gateway) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := g.pool.Exec(ctx, stmt); err != nil {
			return &indieweb.StorageError{Op: "ensure schema", Err: err}
		}
	}
	return nil
}

// SaveNote inserts the note or replaces it by slug. Comments are only
// written on insert; later changes go through AppendComment.
func (g *Gateway) SaveNote(ctx context.Context, note indieweb.Note) error {
	if note.Slug == "" {
		return &indieweb.ValidationError{Field: "slug", Reason: "is required"}
	}
	contentType, content := "", ""
	if note.Content != nil {
		contentType, content = note.Content.Type, note.Content.Value
	}
	query := `
INSERT INTO notes (` + noteColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (slug) DO UPDATE SET
	name = EXCLUDED.name,
	content_type = EXCLUDED.content_type,
	content = EXCLUDED.content,
	author = EXCLUDED.author,
	published = EXCLUDED.published,
	updated = EXCLUDED.updated,
	in_reply_to = EXCLUDED.in_reply_to,
	repost_of = EXCLUDED.repost_of,
	like_of = EXCLUDED.like_of,
	bookmark_of = EXCLUDED.bookmark_of,
	tag_of = EXCLUDED.tag_of,
	category = EXCLUDED.category,
	photo = EXCLUDED.photo`

	args := []any{
		note.Slug,
		note.Name,
		contentType,
		content,
		note.Author,
		note.Published.UTC(),
		nullTime(note.Updated),
		nonNil(note.InReplyTo),
		nonNil(note.RepostOf),
		nonNil(note.LikeOf),
		nonNil(note.BookmarkOf),
		nonNil(note.TagOf),
		nonNil(note.Category),
		nonNil(note.Photo),
		nonNil(note.Comments),
	}
	if _, err := g.pool.Exec(ctx, query, args...); err != nil {
		return &indieweb.StorageError{Op: "save note", Err: err}
	}
	return nil
}

// FindNote fetches a note by slug.
func (g *Gateway) FindNote(ctx context.Context, slug string) (indieweb.Note, error) {
	row := g.pool.QueryRow(ctx, `SELECT `+noteColumns+` FROM notes WHERE slug = $1`, slug)
	note, err := scanNote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return indieweb.Note{}, &indieweb.NotFoundError{Resource: "note", Key: slug}
	}
	if err != nil {
		return indieweb.Note{}, &indieweb.StorageError{Op: "find note", Err: err}
	}
	return note, nil
}

// ListNotes returns up to limit notes, newest first. A non-positive limit
// returns every note.
func (g *Gateway) ListNotes(ctx context.Context, limit int) ([]indieweb.Note, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := g.pool.Query(ctx,
		`SELECT `+noteColumns+` FROM notes ORDER BY published DESC, slug LIMIT $1`, limitArg)
	if err != nil {
		return nil, &indieweb.StorageError{Op: "list notes", Err: err}
	}
	defer rows.Close()

	var notes []indieweb.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, &indieweb.StorageError{Op: "list notes", Err: err}
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, &indieweb.StorageError{Op: "list notes", Err: err}
	}
	return notes, nil
}

// AppendComment adds url to the note's comments in a single guarded UPDATE,
// so concurrent callers never overwrite each other.
func (g *Gateway) AppendComment(ctx context.Context, slug, url string) (indieweb.Note, error) {
	row := g.pool.QueryRow(ctx, `
UPDATE notes SET comments = array_append(comments, $2)
WHERE slug = $1 AND NOT ($2 = ANY(comments))
RETURNING `+noteColumns, slug, url)
	note, err := scanNote(row)
	switch {
	case err == nil:
		return note, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Either the note is missing or the url is already present.
		return g.FindNote(ctx, slug)
	default:
		return indieweb.Note{}, &indieweb.StorageError{Op: "append comment", Err: err}
	}
}

// CreateCitationIfAbsent inserts the citation keyed by its canonical URL.
func (g *Gateway) CreateCitationIfAbsent(ctx context.Context, citation indieweb.Citation) (bool, error) {
	key, err := identity(citation.URL, "citation")
	if err != nil {
		return false, err
	}
	urls := citation.URLs
	if len(urls) == 0 {
		urls = []string{citation.URL}
	}
	postTypes := make([]string, len(citation.PostTypes))
	for i, t := range citation.PostTypes {
		postTypes[i] = string(t)
	}
	responseTypes := make([]string, len(citation.ResponseTypes))
	for i, t := range citation.ResponseTypes {
		responseTypes[i] = string(t)
	}

	tag, err := g.pool.Exec(ctx, `
INSERT INTO note_contexts (`+citationColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (url) DO NOTHING`,
		key,
		urls,
		citation.Name,
		citation.Content,
		citation.Author,
		nullTime(citation.Published),
		citation.Accessed.UTC(),
		nonNil(citation.Photo),
		postTypes,
		responseTypes,
	)
	if err != nil {
		return false, &indieweb.StorageError{Op: "create citation", Err: err}
	}
	return tag.RowsAffected() == 1, nil
}

// FindCitation fetches a citation by URL.
func (g *Gateway) FindCitation(ctx context.Context, url string) (indieweb.Citation, error) {
	key, err := identity(url, "citation")
	if err != nil {
		return indieweb.Citation{}, err
	}
	var (
		citation      indieweb.Citation
		published     *time.Time
		postTypes     []string
		responseTypes []string
	)
	err = g.pool.QueryRow(ctx, `SELECT `+citationColumns+` FROM note_contexts WHERE url = $1`, key).Scan(
		&citation.URL,
		&citation.URLs,
		&citation.Name,
		&citation.Content,
		&citation.Author,
		&published,
		&citation.Accessed,
		&citation.Photo,
		&postTypes,
		&responseTypes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return indieweb.Citation{}, &indieweb.NotFoundError{Resource: "citation", Key: url}
	}
	if err != nil {
		return indieweb.Citation{}, &indieweb.StorageError{Op: "find citation", Err: err}
	}
	if published != nil {
		citation.Published = published.UTC()
	}
	citation.Accessed = citation.Accessed.UTC()
	for _, t := range postTypes {
		citation.PostTypes = append(citation.PostTypes, indieweb.PostType(t))
	}
	for _, t := range responseTypes {
		citation.ResponseTypes = append(citation.ResponseTypes, indieweb.ResponseType(t))
	}
	return citation, nil
}

// CreatePersonIfAbsent inserts the person keyed by canonical URL.
func (g *Gateway) CreatePersonIfAbsent(ctx context.Context, person indieweb.Person) (bool, error) {
	key, err := identity(person.URL, "person")
	if err != nil {
		return false, err
	}
	tag, err := g.pool.Exec(ctx, `
INSERT INTO people (url, name, photo, urls)
VALUES ($1,$2,$3,$4)
ON CONFLICT (url) DO NOTHING`,
		key, person.Name, nonNil(person.Photo), nonNil(person.URLs))
	if err != nil {
		return false, &indieweb.StorageError{Op: "create person", Err: err}
	}
	return tag.RowsAffected() == 1, nil
}

// FindPerson fetches a person by URL.
func (g *Gateway) FindPerson(ctx context.Context, url string) (indieweb.Person, error) {
	key, err := identity(url, "person")
	if err != nil {
		return indieweb.Person{}, err
	}
	var person indieweb.Person
	err = g.pool.QueryRow(ctx, `SELECT url, name, photo, urls FROM people WHERE url = $1`, key).
		Scan(&person.URL, &person.Name, &person.Photo, &person.URLs)
	if errors.Is(err, pgx.ErrNoRows) {
		return indieweb.Person{}, &indieweb.NotFoundError{Resource: "person", Key: url}
	}
	if err != nil {
		return indieweb.Person{}, &indieweb.StorageError{Op: "find person", Err: err}
	}
	return person, nil
}

// NextSequence draws from untitled_seq.
func (g *Gateway) NextSequence(ctx context.Context) (int64, error) {
	var n int64
	if err := g.pool.QueryRow(ctx, `SELECT nextval('untitled_seq')`).Scan(&n); err != nil {
		return 0, &indieweb.StorageError{Op: "next sequence", Err: err}
	}
	return n, nil
}

func scanNote(row pgx.Row) (indieweb.Note, error) {
	var (
		note        indieweb.Note
		contentType string
		content     string
		updated     *time.Time
	)
	err := row.Scan(
		&note.Slug,
		&note.Name,
		&contentType,
		&content,
		&note.Author,
		&note.Published,
		&updated,
		&note.InReplyTo,
		&note.RepostOf,
		&note.LikeOf,
		&note.BookmarkOf,
		&note.TagOf,
		&note.Category,
		&note.Photo,
		&note.Comments,
	)
	if err != nil {
		return indieweb.Note{}, err
	}
	note.Published = note.Published.UTC()
	if updated != nil {
		note.Updated = updated.UTC()
	}
	if contentType != "" || content != "" {
		note.Content = &indieweb.Content{Type: contentType, Value: content}
	}
	return note, nil
}

func identity(url, resource string) (string, error) {
	key, err := indieweb.CanonicalURL(url)
	if err != nil {
		return "", &indieweb.ValidationError{Field: resource + " url", Reason: err.Error()}
	}
	return key, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
