package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/haldvard/lectern/internal/library"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *library.Service, ai Analyzer, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, ai)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Books.
	r.Get("/books", h.ListBooks)
	r.Post("/books", h.UploadBook)
	r.Get("/books/{bookID}", h.GetBook)
	r.Delete("/books/{bookID}", h.DeleteBook)
	r.Get("/books/{bookID}/chapters/*", h.GetChapter)

	// AI analysis. The exact path is relied on by the browser extension.
	r.Post("/ai/analyze", h.Analyze)

	// Highlights.
	r.Post("/highlights", h.CreateHighlight)
	r.Get("/highlights/{bookID}", h.BookHighlights)
	r.Get("/highlights/{bookID}/{chapterIndex}", h.ChapterHighlights)
	r.Put("/highlights/{id}", h.UpdateHighlight)
	r.Delete("/highlights/{id}", h.DeleteHighlight)

	// Reading progress.
	r.Post("/progress", h.SaveProgress)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
