// Package memory provides in-memory storage for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/rcarls/ghast/internal/indieweb"
)

// Gateway implements indieweb.Gateway with maps guarded by one mutex.
type Gateway struct {
	mu        sync.RWMutex
	notes     map[string]indieweb.Note
	citations map[string]indieweb.Citation
	people    map[string]indieweb.Person
	sequence  int64
}

// NewGateway constructs an empty Gateway.
func NewGateway() *Gateway {
	return &Gateway{
		notes:     make(map[string]indieweb.Note),
		citations: make(map[string]indieweb.Citation),
		people:    make(map[string]indieweb.Person),
	}
}

// SaveNote inserts or replaces the note with the same slug. Comments are
// written on insert only; a replaced note keeps the comments it had.
func (g *Gateway) SaveNote(_ context.Context, note indieweb.Note) error {
	if note.Slug == "" {
		return &indieweb.ValidationError{Field: "slug", Reason: "is required"}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	stored := cloneNote(note)
	if existing, ok := g.notes[note.Slug]; ok {
		stored.Comments = append([]string(nil), existing.Comments...)
	}
	g.notes[note.Slug] = stored
	return nil
}

// FindNote fetches a note by slug.
func (g *Gateway) FindNote(_ context.Context, slug string) (indieweb.Note, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	note, ok := g.notes[slug]
	if !ok {
		return indieweb.Note{}, &indieweb.NotFoundError{Resource: "note", Key: slug}
	}
	return cloneNote(note), nil
}

// ListNotes returns up to limit notes, newest first. A non-positive limit
// returns every note.
func (g *Gateway) ListNotes(_ context.Context, limit int) ([]indieweb.Note, error) {
	g.mu.RLock()
	notes := make([]indieweb.Note, 0, len(g.notes))
	for _, note := range g.notes {
		notes = append(notes, cloneNote(note))
	}
	g.mu.RUnlock()

	sort.Slice(notes, func(i, j int) bool {
		if notes[i].Published.Equal(notes[j].Published) {
			return notes[i].Slug < notes[j].Slug
		}
		return notes[i].Published.After(notes[j].Published)
	})
	if limit > 0 && len(notes) > limit {
		notes = notes[:limit]
	}
	return notes, nil
}

// AppendComment adds url to the note's comments unless already present.
// URLs are compared exactly; callers canonicalize.
func (g *Gateway) AppendComment(_ context.Context, slug, url string) (indieweb.Note, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	note, ok := g.notes[slug]
	if !ok {
		return indieweb.Note{}, &indieweb.NotFoundError{Resource: "note", Key: slug}
	}
	for _, existing := range note.Comments {
		if existing == url {
			return cloneNote(note), nil
		}
	}
	note.Comments = append(note.Comments, url)
	g.notes[slug] = note
	return cloneNote(note), nil
}

// CreateCitationIfAbsent stores citation unless its URL is already known.
func (g *Gateway) CreateCitationIfAbsent(_ context.Context, citation indieweb.Citation) (bool, error) {
	key, err := identity(citation.URL, "citation")
	if err != nil {
		return false, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.citations[key]; exists {
		return false, nil
	}
	g.citations[key] = cloneCitation(citation)
	return true, nil
}

// FindCitation fetches a citation by URL.
func (g *Gateway) FindCitation(_ context.Context, url string) (indieweb.Citation, error) {
	key, err := identity(url, "citation")
	if err != nil {
		return indieweb.Citation{}, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	citation, ok := g.citations[key]
	if !ok {
		return indieweb.Citation{}, &indieweb.NotFoundError{Resource: "citation", Key: url}
	}
	return cloneCitation(citation), nil
}

// CreatePersonIfAbsent stores person unless its URL is already known.
func (g *Gateway) CreatePersonIfAbsent(_ context.Context, person indieweb.Person) (bool, error) {
	key, err := identity(person.URL, "person")
	if err != nil {
		return false, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.people[key]; exists {
		return false, nil
	}
	person.Photo = append([]string(nil), person.Photo...)
	person.URLs = append([]string(nil), person.URLs...)
	g.people[key] = person
	return true, nil
}

// FindPerson fetches a person by URL.
func (g *Gateway) FindPerson(_ context.Context, url string) (indieweb.Person, error) {
	key, err := identity(url, "person")
	if err != nil {
		return indieweb.Person{}, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	person, ok := g.people[key]
	if !ok {
		return indieweb.Person{}, &indieweb.NotFoundError{Resource: "person", Key: url}
	}
	return person, nil
}

// NextSequence returns 1, 2, 3, ...
func (g *Gateway) NextSequence(context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sequence++
	return g.sequence, nil
}

// Counts reports how many records of each kind are stored.
func (g *Gateway) Counts() (notes, citations, people int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.notes), len(g.citations), len(g.people)
}

func identity(url, resource string) (string, error) {
	key, err := indieweb.CanonicalURL(url)
	if err != nil {
		return "", &indieweb.ValidationError{Field: resource + " url", Reason: err.Error()}
	}
	return key, nil
}

func cloneNote(note indieweb.Note) indieweb.Note {
	if note.Content != nil {
		content := *note.Content
		note.Content = &content
	}
	note.InReplyTo = append([]string(nil), note.InReplyTo...)
	note.RepostOf = append([]string(nil), note.RepostOf...)
	note.LikeOf = append([]string(nil), note.LikeOf...)
	note.BookmarkOf = append([]string(nil), note.BookmarkOf...)
	note.TagOf = append([]string(nil), note.TagOf...)
	note.Category = append([]string(nil), note.Category...)
	note.Photo = append([]string(nil), note.Photo...)
	note.Comments = append([]string(nil), note.Comments...)
	return note
}

func cloneCitation(citation indieweb.Citation) indieweb.Citation {
	citation.URLs = append([]string(nil), citation.URLs...)
	citation.Photo = append([]string(nil), citation.Photo...)
	citation.PostTypes = append([]indieweb.PostType(nil), citation.PostTypes...)
	citation.ResponseTypes = append([]indieweb.ResponseType(nil), citation.ResponseTypes...)
	return citation
}
