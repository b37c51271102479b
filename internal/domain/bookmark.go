package domain

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxTitleLen is the longest accepted title, in runes.
	MaxTitleLen = 500
	// MaxURLLen is the longest accepted URL, in bytes.
	MaxURLLen = 2048
	// MaxTags caps the tag list of a bookmark.
	MaxTags = 5
)

// Bookmark is a saved URL owned by exactly one user.
// Rows are never updated in place: they are created enriched and deleted by id.
type Bookmark struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is generated at insert time.
	ID uuid.UUID `json:"id"`

	// OwnerID is the session identity that created the row. It never changes.
	OwnerID uuid.UUID `json:"user_id"`

	// ─────────────────────────────
	// User input
	// ─────────────────────────────

	Title string `json:"title"`
	URL   string `json:"url"`

	// ─────────────────────────────
	// Enrichment
	// ─────────────────────────────

	// Summary is nullable in storage; enriched rows always carry one.
	Summary *string `json:"summary"`

	// Tags is never nil once a row leaves the store.
	Tags []string `json:"tags"`

	CreatedAt time.Time `json:"created_at"`
}

// NewBookmark is the caller input of an add.
type NewBookmark struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Normalize trims surrounding whitespace.
func (n NewBookmark) Normalize() NewBookmark {
	return NewBookmark{
		Title: strings.TrimSpace(n.Title),
		URL:   strings.TrimSpace(n.URL),
	}
}

// Validate checks a normalized input.
func (n NewBookmark) Validate() error {
	if n.Title == "" {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	if utf8.RuneCountInString(n.Title) > MaxTitleLen {
		return &ValidationError{Field: "title", Reason: "is too long"}
	}
	if n.URL == "" {
		return &ValidationError{Field: "url", Reason: "is required"}
	}
	if len(n.URL) > MaxURLLen {
		return &ValidationError{Field: "url", Reason: "is too long"}
	}
	u, err := url.Parse(n.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "url", Reason: "must be an absolute http(s) URL"}
	}
	return nil
}

// WithDefaults returns b with a non-nil tag list.
func (b Bookmark) WithDefaults() Bookmark {
	if b.Tags == nil {
		b.Tags = []string{}
	}
	return b
}

// SummaryText returns the summary or "" when absent.
func (b Bookmark) SummaryText() string {
	if b.Summary == nil {
		return ""
	}
	return *b.Summary
}

// ListFilter narrows a list query. Zero value lists everything.
type ListFilter struct {
	// Search is a case-insensitive substring of title or URL.
	Search string
	// Tag must be contained in the row's tag list.
	Tag string
	// Limit caps the result size, 0 means no cap.
	Limit int
}

// Normalize trims the text inputs.
func (f ListFilter) Normalize() ListFilter {
	f.Search = strings.TrimSpace(f.Search)
	f.Tag = strings.TrimSpace(f.Tag)
	if f.Limit < 0 {
		f.Limit = 0
	}
	return f
}
