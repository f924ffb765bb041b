// Package indieweb defines the domain types shared by the publishing core:
// the JF2 property bag, the Note, Citation and Person records, the
// capabilities the core consumes (fetch, cache, storage, notification), and
// the error taxonomy surfaced to the HTTP boundary.
package indieweb
