// Package web serves the server-rendered reading UI: the library grid, the
// three-pane reader, and the highlights review page.
package web

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/haldvard/lectern/internal/apperr"
	"github.com/haldvard/lectern/internal/library"
	"github.com/haldvard/lectern/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// Handler serves the HTML pages.
type Handler struct {
	svc       *library.Service
	render    *Renderer
	tmpl      *template.Template
	aiEnabled bool
}

// NewHandler parses the embedded templates and builds the page handler.
// aiEnabled controls whether the reader offers the AI analysis actions.
func NewHandler(svc *library.Service, aiEnabled bool) (*Handler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("web: parse templates: %w", err)
	}
	return &Handler{svc: svc, render: NewRenderer(), tmpl: tmpl, aiEnabled: aiEnabled}, nil
}

// Routes returns the chi router for the HTML pages.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Library)
	r.Get("/read/{bookID}", h.Resume)
	r.Get("/read/{bookID}/images/{name}", h.Image)
	r.Get("/read/{bookID}/*", h.Reader)
	r.Get("/highlights/{bookID}", h.Highlights)
	return r
}

func (h *Handler) page(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("template render failed", slog.String("template", name), slog.String("error", err.Error()))
	}
}

type bookCard struct {
	models.Book
	Percent     int
	HasProgress bool
}

type libraryPage struct {
	Books     []bookCard
	AIEnabled bool
}

// Library handles GET /, the book grid with upload box.
func (h *Handler) Library(w http.ResponseWriter, r *http.Request) {
	books, err := h.svc.Books(r.Context())
	if err != nil {
		slog.Error("library page failed", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	page := libraryPage{AIEnabled: h.aiEnabled}
	for _, b := range books {
		card := bookCard{Book: b}
		if p, err := h.svc.ReadingPosition(r.Context(), b.ID); err == nil && !p.UpdatedAt.IsZero() && b.Chapters > 0 {
			card.HasProgress = true
			card.Percent = progressPercent(p, b.Chapters)
		}
		page.Books = append(page.Books, card)
	}
	h.page(w, "library.html", page)
}

// progressPercent treats each chapter as an equal share of the book and the
// scroll position as the fraction of the current chapter.
func progressPercent(p models.Progress, chapters int) int {
	pct := int(100 * (float64(p.ChapterIndex) + p.ScrollPosition) / float64(chapters))
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}

// Resume handles GET /read/{bookID}: redirect to the last-read chapter, or
// the first chapter for a book that has never been opened.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookID")
	pos, err := h.svc.ReadingPosition(r.Context(), bookID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			http.NotFound(w, r)
		} else {
			slog.Error("resume failed", slog.String("book", bookID), slog.String("error", err.Error()))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	http.Redirect(w, r, "/read/"+bookID+"/"+strconv.Itoa(pos.ChapterIndex), http.StatusFound)
}

// Image handles GET /read/{bookID}/images/{name}, serving an extracted
// chapter image or cover.
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookID")
	name := chi.URLParam(r, "name")
	data, err := h.svc.Image(r.Context(), bookID, name)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			http.NotFound(w, r)
		} else {
			// Traversal attempts are rejected by the asset layer.
			http.Error(w, "bad request", http.StatusBadRequest)
		}
		return
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	_, _ = w.Write(data)
}

type readerPage struct {
	View       *library.ChapterView
	Body       template.HTML
	Highlights []models.Highlight
	AIEnabled  bool
}

// Reader handles GET /read/{bookID}/*, rendering one chapter with the table
// of contents and the saved highlights of that chapter.
func (h *Handler) Reader(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookID")
	ref := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if ref == "" {
		http.Redirect(w, r, "/read/"+bookID, http.StatusFound)
		return
	}
	view, err := h.svc.Chapter(r.Context(), bookID, ref)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			http.NotFound(w, r)
		} else {
			slog.Error("reader page failed", slog.String("book", bookID), slog.String("ref", ref), slog.String("error", err.Error()))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	hls, err := h.svc.ChapterHighlights(r.Context(), bookID, view.Chapter.OrderIndex)
	if err != nil {
		slog.Error("chapter highlights failed", slog.String("book", bookID), slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.page(w, "reader.html", readerPage{
		View:       view,
		Body:       h.render.Chapter(view.Chapter.BodyHTML),
		Highlights: hls,
		AIEnabled:  h.aiEnabled,
	})
}

type kindStats struct {
	Total      int
	FactCheck  int
	Discussion int
	Comment    int
}

type highlightCard struct {
	models.BookHighlight
	ResponseHTML template.HTML
}

type highlightsPage struct {
	Book  models.Book
	Kind  string
	Stats kindStats
	Cards []highlightCard
}

// Highlights handles GET /highlights/{bookID}, the review page. Stats cover
// the whole book; the card list honors the optional ?kind= filter.
func (h *Handler) Highlights(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookID")
	kind := models.HighlightKind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		http.Error(w, "unknown highlight kind", http.StatusBadRequest)
		return
	}
	book, err := h.svc.Book(r.Context(), bookID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			http.NotFound(w, r)
		} else {
			slog.Error("highlights page failed", slog.String("book", bookID), slog.String("error", err.Error()))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	all, err := h.svc.BookHighlights(r.Context(), bookID, "")
	if err != nil {
		slog.Error("highlights page failed", slog.String("book", bookID), slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	page := highlightsPage{Book: *book, Kind: string(kind)}
	for _, bh := range all {
		page.Stats.Total++
		switch bh.Kind {
		case models.KindFactCheck:
			page.Stats.FactCheck++
		case models.KindDiscussion:
			page.Stats.Discussion++
		case models.KindComment:
			page.Stats.Comment++
		}
		if kind != "" && bh.Kind != kind {
			continue
		}
		page.Cards = append(page.Cards, highlightCard{
			BookHighlight: bh,
			ResponseHTML:  h.render.Markdown(bh.Response),
		})
	}
	h.page(w, "highlights.html", page)
}
