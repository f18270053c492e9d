package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/haldvard/lectern/internal/library"
	"github.com/haldvard/lectern/internal/models"
)

// AnalyzeRequest asks the AI gateway to examine a selected passage. When
// HighlightID is set, the response is also persisted onto that highlight.
type AnalyzeRequest struct {
	AnalysisType models.AnalysisType `json:"analysis_type" example:"fact_check" validate:"required"`
	SelectedText string              `json:"selected_text" example:"The moon landing took place in 1969." validate:"required"`
	Context      string              `json:"context,omitempty" example:"...surrounding paragraph..."`
	HighlightID  int64               `json:"highlight_id,omitempty" example:"7"`
}

// Validate checks the analyze request.
func (r *AnalyzeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.AnalysisType, validation.Required, validation.In(models.AnalyzeFactCheck, models.AnalyzeDiscussion)),
		validation.Field(&r.SelectedText, validation.Required),
		validation.Field(&r.HighlightID, validation.Min(int64(0))),
	)
}

// AnalyzeResponse carries the AI answer back to the caller.
type AnalyzeResponse struct {
	Response string `json:"response" example:"The claim is accurate..." validate:"required"`
}

// CreateHighlightRequest is the request body for saving a highlight.
type CreateHighlightRequest struct {
	BookID        string               `json:"book_id" example:"moby-dick" validate:"required"`
	ChapterIndex  int                  `json:"chapter_index" example:"3"`
	Kind          models.HighlightKind `json:"kind" example:"fact_check" validate:"required"`
	SelectedText  string               `json:"selected_text" example:"Call me Ishmael." validate:"required"`
	ContextBefore string               `json:"context_before,omitempty"`
	ContextAfter  string               `json:"context_after,omitempty"`
	Response      string               `json:"response,omitempty"`
}

// Validate checks the highlight creation request. ChapterIndex zero means
// the first chapter, so it is range-checked rather than required.
func (r *CreateHighlightRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.BookID, validation.Required),
		validation.Field(&r.ChapterIndex, validation.Min(0)),
		validation.Field(&r.Kind, validation.Required, validation.In(models.KindFactCheck, models.KindDiscussion, models.KindComment)),
		validation.Field(&r.SelectedText, validation.Required),
	)
}

// UpdateHighlightRequest is the request body for replacing a highlight's
// response text.
type UpdateHighlightRequest struct {
	Response string `json:"response" example:"Revised note" validate:"required"`
}

// Validate checks the highlight update request.
func (r *UpdateHighlightRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Response, validation.Required),
	)
}

// ProgressRequest is the request body for saving a reading position.
type ProgressRequest struct {
	BookID         string  `json:"book_id" example:"moby-dick" validate:"required"`
	ChapterIndex   int     `json:"chapter_index" example:"3"`
	ScrollPosition float64 `json:"scroll_position" example:"0.42"`
}

// Validate checks the progress request.
func (r *ProgressRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.BookID, validation.Required),
		validation.Field(&r.ChapterIndex, validation.Min(0)),
		validation.Field(&r.ScrollPosition, validation.Min(0.0), validation.Max(1.0)),
	)
}

// ImportResponse is returned after a successful EPUB upload.
type ImportResponse struct {
	BookID   string `json:"book_id" example:"moby-dick" validate:"required"`
	Title    string `json:"title" example:"Moby Dick" validate:"required"`
	Chapters int    `json:"chapters" example:"12" validate:"required"`
}

// BookSummary is a library listing entry: the book plus the last reading
// position when the book has been opened.
type BookSummary struct {
	models.Book
	Progress *models.Progress `json:"progress,omitempty"`
}

// BookListResponse wraps the library listing.
type BookListResponse struct {
	Books []BookSummary `json:"books" validate:"required"`
}

// ChapterDetail is the full chapter response type (aliased from the domain layer).
type ChapterDetail = library.ChapterView

// HighlightListResponse wraps chapter-scoped highlight listings.
type HighlightListResponse struct {
	Highlights []models.Highlight `json:"highlights" validate:"required"`
}

// BookHighlightListResponse wraps book-scoped highlight listings.
type BookHighlightListResponse struct {
	Highlights []models.BookHighlight `json:"highlights" validate:"required"`
}
