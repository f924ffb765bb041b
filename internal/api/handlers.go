package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rcarls/ghast/internal/indieweb"
	"github.com/rcarls/ghast/internal/jf2"
)

const (
	maxBodyBytes     = 1 << 20
	defaultListLimit = 20
	maxListLimit     = 100
)

// micropubRequest is the JSON Micropub create syntax.
type micropubRequest struct {
	Type       []string       `json:"type"`
	Action     string         `json:"action"`
	Properties map[string]any `json:"properties"`
}

func (s *Server) micropub(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	props, err := parseMicropub(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_request",
			"error_description": err.Error(),
		})
		return
	}

	note, err := s.ingester.IngestCreate(r.Context(), props)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	location := s.ingester.Permalink(note.Slug)
	w.Header().Set("Location", location)
	s.writeJSON(w, http.StatusCreated, map[string]string{"url": location})
}

// parseMicropub decodes a create request into a property bag. Form keys
// ending in "[]" and repeated keys become lists.
func parseMicropub(r *http.Request) (indieweb.Properties, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req micropubRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}
		if req.Action != "" && req.Action != "create" {
			return nil, fmt.Errorf("action %q is not supported", req.Action)
		}
		entryType := "h-entry"
		if len(req.Type) > 0 {
			entryType = req.Type[0]
		}
		if entryType != "h-entry" {
			return nil, fmt.Errorf("type %q is not supported", entryType)
		}
		props := indieweb.Properties(req.Properties)
		if props == nil {
			props = indieweb.Properties{}
		}
		props["type"] = entryType
		return props, nil
	}

	var err error
	if mediaType == "multipart/form-data" {
		err = r.ParseMultipartForm(maxBodyBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	if action := r.PostForm.Get("action"); action != "" && action != "create" {
		return nil, fmt.Errorf("action %q is not supported", action)
	}
	entryType := "h-" + r.PostForm.Get("h")
	if entryType == "h-" {
		entryType = "h-entry"
	}
	if entryType != "h-entry" {
		return nil, fmt.Errorf("type %q is not supported", entryType)
	}

	props := indieweb.Properties{"type": entryType}
	for key, values := range r.PostForm {
		switch key {
		case "h", "action", "access_token":
			continue
		}
		name, list := strings.CutSuffix(key, "[]")
		if list || len(values) > 1 {
			items := make([]any, 0, len(values))
			for _, v := range values {
				items = append(items, v)
			}
			props[name] = items
			continue
		}
		props[name] = values[0]
	}
	return props, nil
}

func (s *Server) webmention(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	source := r.PostForm.Get("source")
	target := r.PostForm.Get("target")
	switch {
	case source == "" || target == "":
		s.writeError(w, http.StatusBadRequest, "source and target are required")
		return
	case indieweb.SameURL(source, target):
		s.writeError(w, http.StatusBadRequest, "source and target must differ")
		return
	}

	props, err := s.sources.LoadSource(r.Context(), source, target)
	if err != nil {
		var fetchErr *indieweb.ReferenceFetchError
		if errors.As(err, &fetchErr) {
			s.logger.Info("webmention source unavailable",
				zap.String("source", source), zap.Error(err))
			s.writeError(w, http.StatusBadRequest, "source could not be fetched")
			return
		}
		s.writeFailure(w, err)
		return
	}
	if err := s.ingester.IngestReaction(r.Context(), source, target, props); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"status": "accepted"})
}

func (s *Server) getNote(w http.ResponseWriter, r *http.Request) {
	note, err := s.notes.FindNote(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.notePayload(note))
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}
	notes, err := s.notes.ListNotes(r.Context(), limit)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	items := make([]indieweb.Properties, 0, len(notes))
	for _, note := range notes {
		items = append(items, s.notePayload(note))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) notePayload(note indieweb.Note) indieweb.Properties {
	props := jf2.NoteProperties(note)
	props["url"] = s.ingester.Permalink(note.Slug)
	return props
}
