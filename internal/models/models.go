// Package models defines the domain types for lectern.
package models

import "time"

// HighlightKind classifies a saved highlight.
type HighlightKind string

const (
	KindFactCheck  HighlightKind = "fact_check"
	KindDiscussion HighlightKind = "discussion"
	KindComment    HighlightKind = "comment"
)

// Valid reports whether k is one of the known highlight kinds.
func (k HighlightKind) Valid() bool {
	switch k {
	case KindFactCheck, KindDiscussion, KindComment:
		return true
	}
	return false
}

// AnalysisType selects which AI prompt the gateway builds. Unlike
// HighlightKind it excludes "comment": comments are user-authored.
type AnalysisType string

const (
	AnalyzeFactCheck  AnalysisType = "fact_check"
	AnalyzeDiscussion AnalysisType = "discussion"
)

// Valid reports whether t is a supported analysis type.
func (t AnalysisType) Valid() bool {
	return t == AnalyzeFactCheck || t == AnalyzeDiscussion
}

// Book is an imported EPUB. The ID is a slug derived from the source
// filename, so re-importing the same file replaces the same record.
type Book struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	SourceFile string    `json:"source_file"`
	SourceHash string    `json:"-"`
	CoverImage string    `json:"cover_image,omitempty"`
	Chapters   int       `json:"chapters"`
	CreatedAt  time.Time `json:"created_at"`
}

// Chapter is one spine entry of a book. OrderIndex values are contiguous
// and zero-based within a book.
type Chapter struct {
	ID         int64  `json:"id"`
	BookID     string `json:"book_id"`
	OrderIndex int    `json:"order_index"`
	Href       string `json:"href"`
	Title      string `json:"title"`
	BodyHTML   string `json:"body_html"`
	BodyText   string `json:"body_text"`
}

// ChapterRef is a lightweight chapter listing entry used for tables of
// contents.
type ChapterRef struct {
	OrderIndex int    `json:"order_index"`
	Href       string `json:"href"`
	Title      string `json:"title"`
}

// Highlight is a user annotation anchored to a text span within a chapter.
// Response holds the AI answer for fact_check/discussion kinds and the
// user's own text for comments. ContextBefore/ContextAfter are the
// surrounding text windows used to re-locate the span in the chapter body.
type Highlight struct {
	ID            int64         `json:"id"`
	ChapterID     int64         `json:"chapter_id"`
	Kind          HighlightKind `json:"kind"`
	SelectedText  string        `json:"selected_text"`
	ContextBefore string        `json:"context_before,omitempty"`
	ContextAfter  string        `json:"context_after,omitempty"`
	Response      string        `json:"response,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// BookHighlight joins a highlight with the chapter it belongs to, for
// book-scoped listings and the review page.
type BookHighlight struct {
	Highlight
	BookID       string `json:"book_id"`
	ChapterIndex int    `json:"chapter_index"`
	ChapterTitle string `json:"chapter_title"`
}

// Progress records the last reading position within a book. ScrollPosition
// is a fraction of the chapter height in [0, 1], so it survives viewport
// changes.
type Progress struct {
	BookID         string    `json:"book_id"`
	ChapterIndex   int       `json:"chapter_index"`
	ScrollPosition float64   `json:"scroll_position"`
	UpdatedAt      time.Time `json:"updated_at"`
}
