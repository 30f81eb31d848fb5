package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// BookID is the catalog identifier of a book. The bundled JSON has a mix of
// numeric and string ids, so both decode into the same string form.
type BookID string

// UnmarshalJSON accepts `"b-12"` as well as `12`.
func (id *BookID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("book id: %w", err)
		}
		*id = BookID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("book id: %w", err)
	}
	*id = BookID(n.String())
	return nil
}

// BookLinks are optional external links shown on the book page.
type BookLinks struct {
	Publisher string `json:"publisher,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Book is a read-only catalog entry loaded from the bundled books.json.
//
// Title and Summary are in the book's original language (usually Chinese);
// TitleEn and SummaryEn are optional English variants.
type Book struct {
	ID        BookID    `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	TitleEn   string    `json:"titleEn,omitempty"`
	Author    string    `json:"author"`
	CoverURL  string    `json:"coverUrl,omitempty"`
	ReadDate  string    `json:"readDate,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	SummaryEn string    `json:"summaryEn,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Links     BookLinks `json:"links,omitzero"`
}

// PlaceholderCover is served when a book has no cover image.
const PlaceholderCover = "/static/images/placeholder-cover.svg"

// DisplayTitle picks the English title for English readers when one exists.
func (b Book) DisplayTitle(english bool) string {
	if english && b.TitleEn != "" {
		return b.TitleEn
	}
	return b.Title
}

// DisplaySummary works like DisplayTitle for the summary text.
func (b Book) DisplaySummary(english bool) string {
	if english && b.SummaryEn != "" {
		return b.SummaryEn
	}
	return b.Summary
}

// Cover returns the cover URL or the placeholder.
func (b Book) Cover() string {
	if b.CoverURL == "" {
		return PlaceholderCover
	}
	return b.CoverURL
}

// ReadTime parses ReadDate. Both "2024-03-15" and "2024-03" appear in the
// catalog; ok is false when the date is missing or unparseable.
func (b Book) ReadTime() (t time.Time, ok bool) {
	if b.ReadDate == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.DateOnly, "2006-01", time.RFC3339} {
		if t, err := time.Parse(layout, b.ReadDate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Stats are the counters shown on the events page.
type Stats struct {
	ReadingDays   int `json:"readingDays"`
	ClubsHeld     int `json:"clubsHeld"`
	ReadersJoined int `json:"readersJoined"`
}

