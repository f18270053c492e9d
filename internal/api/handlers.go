package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/haldvard/lectern/internal/apperr"
	"github.com/haldvard/lectern/internal/library"
	"github.com/haldvard/lectern/internal/models"
)

const (
	maxUploadBytes = 50 << 20 // 50 MB
	maxBodyBytes   = 1 << 20
)

// Analyzer produces the AI response for a selected passage.
type Analyzer interface {
	Analyze(ctx context.Context, typ models.AnalysisType, text, contextText string) (string, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc *library.Service
	ai  Analyzer
}

// NewHandler creates a new Handler.
func NewHandler(svc *library.Service, ai Analyzer) *Handler {
	return &Handler{svc: svc, ai: ai}
}

// chapterRef extracts the chapter reference from the URL (everything after
// .../chapters/). Supports encoded slashes from OpenAPI clients
// (e.g. text%2Fpart0008.html).
func chapterRef(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// highlightID parses the {id} URL parameter.
func highlightID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// ListBooks handles GET /api/books.
//
//	@Summary		List imported books with reading progress
//	@Tags			books
//	@Produce		json
//	@Success		200	{object}	BookListResponse
//	@Security		BearerAuth
//	@Router			/books [get]
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.svc.Books(r.Context())
	if err != nil {
		slog.Error("list books failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	items := make([]BookSummary, len(books))
	for i, b := range books {
		items[i] = BookSummary{Book: b}
		if p, err := h.svc.ReadingPosition(r.Context(), b.ID); err == nil && !p.UpdatedAt.IsZero() {
			items[i].Progress = &p
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"books": items,
	})
}

// GetBook handles GET /api/books/{bookID}.
//
//	@Summary		Get a single book
//	@Tags			books
//	@Produce		json
//	@Param			bookID	path		string	true	"Book ID"
//	@Success		200		{object}	models.Book
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/books/{bookID} [get]
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookID")
	book, err := h.svc.Book(r.Context(), bookID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get book failed", slog.String("book", bookID), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// UploadBook handles POST /api/books (multipart/form-data, field "file").
//
//	@Summary		Upload an EPUB and import it into the library
//	@Tags			books
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"EPUB file"
//	@Success		201		{object}	ImportResponse
//	@Success		200		{object}	ImportResponse	"source already imported, nothing changed"
//	@Failure		400		{object}	errResponse
//	@Failure		413		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/books [post]
func (h *Handler) UploadBook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("upload exceeds the 50 MB limit"))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read upload"))
		return
	}

	book, imported, err := h.svc.ImportEPUB(r.Context(), header.Filename, data)
	if err != nil {
		if apperr.IsImportError(err) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		slog.Error("import failed", slog.String("file", header.Filename), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	status := http.StatusCreated
	if !imported {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"book_id":  book.ID,
		"title":    book.Title,
		"chapters": book.Chapters,
	})
}

// DeleteBook handles DELETE /api/books/{bookID}.
//
//	@Summary		Delete a book, its chapters, highlights, and assets
//	@Tags			books
//	@Param			bookID	path	string	true	"Book ID"
//	@Success		204		"Book deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/books/{bookID} [delete]
func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookID")
	if err := h.svc.DeleteBook(r.Context(), bookID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("delete book failed", slog.String("book", bookID), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetChapter handles GET /api/books/{bookID}/chapters/*.
//
//	@Summary		Get a chapter by spine index or filename
//	@Tags			chapters
//	@Produce		json
//	@Param			bookID	path		string	true	"Book ID"
//	@Param			ref		path		string	true	"Spine index or chapter filename"
//	@Success		200		{object}	ChapterDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/books/{bookID}/chapters/{ref} [get]
func (h *Handler) GetChapter(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookID")
	ref := chapterRef(r)
	if ref == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("chapter reference is required"))
		return
	}
	view, err := h.svc.Chapter(r.Context(), bookID, ref)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get chapter failed", slog.String("book", bookID), slog.String("ref", ref), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Analyze handles POST /api/ai/analyze. The path is a compatibility
// contract with the browser extension.
//
//	@Summary		Run AI analysis over a selected passage
//	@Tags			ai
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AnalyzeRequest	true	"Passage to analyze"
//	@Success		200		{object}	AnalyzeResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ai/analyze [post]
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	text, err := h.ai.Analyze(r.Context(), req.AnalysisType, req.SelectedText, req.Context)
	if err != nil {
		switch {
		case apperr.IsAIServiceError(err):
			slog.Error("analysis failed", slog.String("type", string(req.AnalysisType)), slog.String("error", err.Error()))
			writeJSON(w, http.StatusBadGateway, errorBody("ai service unavailable"))
		case errors.Is(err, apperr.ErrInvalid):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		default:
			slog.Error("analysis failed", slog.String("type", string(req.AnalysisType)), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	if req.HighlightID != 0 {
		if err := h.svc.UpdateHighlight(r.Context(), req.HighlightID, text); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, errorBody("highlight not found"))
			} else {
				slog.Error("store analysis failed", slog.Int64("highlight", req.HighlightID), slog.String("error", err.Error()))
				writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			}
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"response": text,
	})
}

// CreateHighlight handles POST /api/highlights.
//
//	@Summary		Save a highlight against a chapter
//	@Tags			highlights
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateHighlightRequest	true	"Highlight to save"
//	@Success		201		{object}	models.Highlight
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/highlights [post]
func (h *Handler) CreateHighlight(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateHighlightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	hl := &models.Highlight{
		Kind:          req.Kind,
		SelectedText:  req.SelectedText,
		ContextBefore: req.ContextBefore,
		ContextAfter:  req.ContextAfter,
		Response:      req.Response,
	}
	if err := h.svc.AddHighlight(r.Context(), req.BookID, req.ChapterIndex, hl); err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrInvalid):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		default:
			slog.Error("create highlight failed", slog.String("book", req.BookID), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, hl)
}

// BookHighlights handles GET /api/highlights/{bookID}.
//
//	@Summary		List all highlights of a book in spine order
//	@Tags			highlights
//	@Produce		json
//	@Param			bookID	path		string	true	"Book ID"
//	@Param			kind	query		string	false	"Filter by kind"	Enums(fact_check, discussion, comment)
//	@Success		200		{object}	BookHighlightListResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/highlights/{bookID} [get]
func (h *Handler) BookHighlights(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookID")
	kind := models.HighlightKind(r.URL.Query().Get("kind"))
	items, err := h.svc.BookHighlights(r.Context(), bookID, kind)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrInvalid):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		default:
			slog.Error("list highlights failed", slog.String("book", bookID), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"highlights": items,
	})
}

// ChapterHighlights handles GET /api/highlights/{bookID}/{chapterIndex}.
//
//	@Summary		List the highlights of one chapter
//	@Tags			highlights
//	@Produce		json
//	@Param			bookID			path		string	true	"Book ID"
//	@Param			chapterIndex	path		int		true	"Spine index"
//	@Success		200				{object}	HighlightListResponse
//	@Failure		400				{object}	errResponse
//	@Failure		404				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/highlights/{bookID}/{chapterIndex} [get]
func (h *Handler) ChapterHighlights(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookID")
	idx, err := strconv.Atoi(chi.URLParam(r, "chapterIndex"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("chapter index must be numeric"))
		return
	}
	items, err := h.svc.ChapterHighlights(r.Context(), bookID, idx)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("list chapter highlights failed", slog.String("book", bookID), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"highlights": items,
	})
}

// UpdateHighlight handles PUT /api/highlights/{id}.
//
//	@Summary		Replace a highlight's response text
//	@Tags			highlights
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int						true	"Highlight ID"
//	@Param			body	body		UpdateHighlightRequest	true	"New response text"
//	@Success		200		{object}	models.Highlight
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/highlights/{id} [put]
func (h *Handler) UpdateHighlight(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	id, err := highlightID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("highlight id must be numeric"))
		return
	}
	var req UpdateHighlightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	if err := h.svc.UpdateHighlight(r.Context(), id, req.Response); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("update highlight failed", slog.Int64("highlight", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	hl, err := h.svc.Highlight(r.Context(), id)
	if err != nil {
		slog.Error("reload highlight failed", slog.Int64("highlight", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, hl)
}

// DeleteHighlight handles DELETE /api/highlights/{id}.
//
//	@Summary		Delete a highlight
//	@Tags			highlights
//	@Param			id	path	int	true	"Highlight ID"
//	@Success		204	"Highlight deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/highlights/{id} [delete]
func (h *Handler) DeleteHighlight(w http.ResponseWriter, r *http.Request) {
	id, err := highlightID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("highlight id must be numeric"))
		return
	}
	if err := h.svc.DeleteHighlight(r.Context(), id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("delete highlight failed", slog.Int64("highlight", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveProgress handles POST /api/progress.
//
//	@Summary		Save the last reading position of a book
//	@Tags			progress
//	@Accept			json
//	@Param			body	body	ProgressRequest	true	"Reading position"
//	@Success		204		"Position saved"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/progress [post]
func (h *Handler) SaveProgress(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req ProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	err := h.svc.SaveProgress(r.Context(), models.Progress{
		BookID:         req.BookID,
		ChapterIndex:   req.ChapterIndex,
		ScrollPosition: req.ScrollPosition,
	})
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrInvalid):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		default:
			slog.Error("save progress failed", slog.String("book", req.BookID), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
