package indieweb

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// ReferenceCache stores normalized reference documents keyed by kind and
// canonical URL. Entries never expire; they are replaced by fresher fetches
// or dropped by Clear.
type ReferenceCache interface {
	Get(ctx context.Context, kind ReferenceKind, url string) (Properties, bool, error)
	Put(ctx context.Context, kind ReferenceKind, url string, doc Properties) error
	Clear(ctx context.Context) error
}

// NoteStore persists the author's notes keyed by slug.
type NoteStore interface {
	SaveNote(ctx context.Context, note Note) error
	FindNote(ctx context.Context, slug string) (Note, error)
	ListNotes(ctx context.Context, limit int) ([]Note, error)
	// AppendComment adds url to the note's comments unless already present.
	// It must not lose updates under concurrent callers.
	AppendComment(ctx context.Context, slug, url string) (Note, error)
}

// CitationStore persists citations keyed by canonical URL.
type CitationStore interface {
	// CreateCitationIfAbsent writes the citation only when no record with the
	// same URL exists. It reports whether a write happened.
	CreateCitationIfAbsent(ctx context.Context, citation Citation) (bool, error)
	FindCitation(ctx context.Context, url string) (Citation, error)
}

// PersonStore persists people keyed by canonical URL.
type PersonStore interface {
	// CreatePersonIfAbsent writes the person only when no record with the same
	// URL exists. It reports whether a write happened.
	CreatePersonIfAbsent(ctx context.Context, person Person) (bool, error)
	FindPerson(ctx context.Context, url string) (Person, error)
}

// Gateway is the durable store used by the ingestion pipeline.
type Gateway interface {
	NoteStore
	CitationStore
	PersonStore
	// NextSequence returns a monotonically increasing counter value.
	NextSequence(ctx context.Context) (int64, error)
}

// Notifier dispatches an outbound mention notification. Implementations must
// not block the caller on delivery.
type Notifier interface {
	Notify(ctx context.Context, source, target string) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher computes digests for content addressing.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
