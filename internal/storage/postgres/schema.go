package postgres

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS notes (
	slug         TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	author       TEXT NOT NULL,
	published    TIMESTAMPTZ NOT NULL,
	updated      TIMESTAMPTZ,
	in_reply_to  TEXT[] NOT NULL DEFAULT '{}',
	repost_of    TEXT[] NOT NULL DEFAULT '{}',
	like_of      TEXT[] NOT NULL DEFAULT '{}',
	bookmark_of  TEXT[] NOT NULL DEFAULT '{}',
	tag_of       TEXT[] NOT NULL DEFAULT '{}',
	category     TEXT[] NOT NULL DEFAULT '{}',
	photo        TEXT[] NOT NULL DEFAULT '{}',
	comments     TEXT[] NOT NULL DEFAULT '{}'
)`,
	`CREATE INDEX IF NOT EXISTS notes_published_idx ON notes (published DESC)`,
	`CREATE TABLE IF NOT EXISTS note_contexts (
	url            TEXT PRIMARY KEY,
	urls           TEXT[] NOT NULL DEFAULT '{}',
	name           TEXT NOT NULL DEFAULT '',
	content        TEXT NOT NULL DEFAULT '',
	author         TEXT NOT NULL DEFAULT '',
	published      TIMESTAMPTZ,
	accessed       TIMESTAMPTZ NOT NULL,
	photo          TEXT[] NOT NULL DEFAULT '{}',
	post_types     TEXT[] NOT NULL DEFAULT '{}',
	response_types TEXT[] NOT NULL DEFAULT '{}'
)`,
	`CREATE TABLE IF NOT EXISTS people (
	url   TEXT PRIMARY KEY,
	name  TEXT NOT NULL,
	photo TEXT[] NOT NULL DEFAULT '{}',
	urls  TEXT[] NOT NULL DEFAULT '{}'
)`,
	`CREATE SEQUENCE IF NOT EXISTS untitled_seq`,
}

const noteColumns = `slug, name, content_type, content, author, published, updated,
	in_reply_to, repost_of, like_of, bookmark_of, tag_of, category, photo, comments`

const citationColumns = `url, urls, name, content, author, published, accessed,
	photo, post_types, response_types`
