// Package library coordinates EPUB imports, the catalog, and extracted
// assets. It is the single write path for books: uploads, the inbox
// watcher, and MCP imports all funnel through ImportEPUB.
package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/haldvard/lectern/internal/apperr"
	"github.com/haldvard/lectern/internal/assets"
	"github.com/haldvard/lectern/internal/checksum"
	"github.com/haldvard/lectern/internal/epub"
	"github.com/haldvard/lectern/internal/models"
	"github.com/haldvard/lectern/internal/store"
)

// EventCallback is called after a library mutation.
// kind is one of "imported", "deleted".
type EventCallback func(kind string, bookID string)

// Service coordinates catalog and asset operations.
type Service struct {
	db     *store.DB
	assets assets.Provider
	inbox  string // drop directory for EPUB files, may be empty

	// OnEvent, when set, is called after imports and deletions.
	OnEvent EventCallback
}

// NewService creates a new library service.
func NewService(db *store.DB, assets assets.Provider, inbox string) *Service {
	return &Service{db: db, assets: assets, inbox: inbox}
}

func (s *Service) emit(kind, bookID string) {
	if s.OnEvent != nil {
		s.OnEvent(kind, bookID)
	}
}

// ImportEPUB parses an EPUB and stores it under an ID derived from the
// filename, so importing the same file again replaces the same book. The
// returned bool is false when the source is byte-identical to what is
// already imported and nothing was done.
func (s *Service) ImportEPUB(_ context.Context, filename string, data []byte) (*models.Book, bool, error) {
	base := filepath.Base(filename)
	id := Slug(strings.TrimSuffix(base, filepath.Ext(base)))
	if id == "" {
		return nil, false, apperr.NewImportError(base, "filename yields no usable book id", nil)
	}

	sum := checksum.Sum(data)
	if prev, _ := s.db.SourceHash(id); prev == sum {
		b, err := s.db.GetBook(id)
		if err != nil {
			return nil, false, err
		}
		return b, false, nil
	}

	doc, err := epub.Parse(data, base)
	if err != nil {
		return nil, false, err
	}

	// Clear assets from any previous version before writing the new set.
	if err := s.assets.Remove(id); err != nil {
		return nil, false, err
	}
	for _, img := range doc.Images {
		if err := s.assets.Write(id, "images/"+img.Name, img.Data); err != nil {
			return nil, false, err
		}
	}

	book := models.Book{
		ID:         id,
		Title:      doc.Title,
		Author:     strings.Join(doc.Authors, ", "),
		SourceFile: base,
		SourceHash: sum,
		CoverImage: doc.CoverImage,
	}
	chapters := make([]models.Chapter, len(doc.Chapters))
	for i, ch := range doc.Chapters {
		chapters[i] = models.Chapter{
			OrderIndex: i,
			Href:       ch.Href,
			Title:      ch.Title,
			BodyHTML:   ch.HTML,
			BodyText:   ch.Text,
		}
	}
	if err := s.db.UpsertBook(book, chapters); err != nil {
		return nil, false, err
	}

	stored, err := s.db.GetBook(id)
	if err != nil {
		return nil, false, err
	}
	s.emit("imported", id)
	return stored, true, nil
}

// Books lists every imported book.
func (s *Service) Books(_ context.Context) ([]models.Book, error) {
	return s.db.ListBooks()
}

// Book returns one book by id.
func (s *Service) Book(_ context.Context, id string) (*models.Book, error) {
	return s.db.GetBook(id)
}

// DeleteBook removes a book from the catalog and its extracted assets.
// The source file in the inbox, if still present, is removed too so the
// book does not reappear on the next scan.
func (s *Service) DeleteBook(_ context.Context, id string) error {
	b, err := s.db.GetBook(id)
	if err != nil {
		return err
	}
	if err := s.db.DeleteBook(id); err != nil {
		return err
	}
	if err := s.assets.Remove(id); err != nil {
		return err
	}
	if s.inbox != "" && b.SourceFile != "" {
		_ = os.Remove(filepath.Join(s.inbox, b.SourceFile))
	}
	s.emit("deleted", id)
	return nil
}

// ChapterView bundles a chapter with its book and navigation context.
type ChapterView struct {
	Book     models.Book         `json:"book"`
	Chapter  models.Chapter      `json:"chapter"`
	Prev     *models.ChapterRef  `json:"prev,omitempty"`
	Next     *models.ChapterRef  `json:"next,omitempty"`
	Contents []models.ChapterRef `json:"contents"`
	Scroll   float64             `json:"scroll"`
}

// Chapter resolves ref to a chapter of the book. A numeric ref is a spine
// position; anything else is matched against chapter hrefs, falling back
// to a basename match so relative links between chapters resolve from
// index-based URLs as well.
func (s *Service) Chapter(_ context.Context, bookID, ref string) (*ChapterView, error) {
	b, err := s.db.GetBook(bookID)
	if err != nil {
		return nil, err
	}

	var ch *models.Chapter
	if idx, convErr := strconv.Atoi(ref); convErr == nil {
		ch, err = s.db.ChapterByIndex(bookID, idx)
	} else {
		ch, err = s.db.ChapterByHref(bookID, ref)
		if errors.Is(err, apperr.ErrNotFound) {
			ch, err = s.chapterByBasename(bookID, ref)
		}
	}
	if err != nil {
		return nil, err
	}

	refs, err := s.db.ChapterRefs(bookID)
	if err != nil {
		return nil, err
	}

	view := &ChapterView{Book: *b, Chapter: *ch, Contents: refs}
	if ch.OrderIndex > 0 {
		view.Prev = &refs[ch.OrderIndex-1]
	}
	if ch.OrderIndex < len(refs)-1 {
		view.Next = &refs[ch.OrderIndex+1]
	}
	if p, err := s.db.GetProgress(bookID); err == nil && p.ChapterIndex == ch.OrderIndex {
		view.Scroll = p.ScrollPosition
	}
	return view, nil
}

func (s *Service) chapterByBasename(bookID, ref string) (*models.Chapter, error) {
	refs, err := s.db.ChapterRefs(bookID)
	if err != nil {
		return nil, err
	}
	base := path.Base(ref)
	for _, r := range refs {
		if path.Base(r.Href) == base {
			return s.db.ChapterByIndex(bookID, r.OrderIndex)
		}
	}
	return nil, apperr.ErrNotFound
}

// Contents returns the book's table of contents.
func (s *Service) Contents(_ context.Context, bookID string) ([]models.ChapterRef, error) {
	if _, err := s.db.GetBook(bookID); err != nil {
		return nil, err
	}
	return s.db.ChapterRefs(bookID)
}

// Image returns an extracted image asset of a book.
func (s *Service) Image(_ context.Context, bookID, name string) ([]byte, error) {
	data, err := s.assets.Read(bookID, "images/"+name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// ReadingPosition returns where the reader left off in a book.
func (s *Service) ReadingPosition(_ context.Context, bookID string) (models.Progress, error) {
	if _, err := s.db.GetBook(bookID); err != nil {
		return models.Progress{}, err
	}
	return s.db.GetProgress(bookID)
}

// SaveProgress records the reading position. The chapter index must refer
// to an existing chapter.
func (s *Service) SaveProgress(_ context.Context, p models.Progress) error {
	b, err := s.db.GetBook(p.BookID)
	if err != nil {
		return err
	}
	if p.ChapterIndex < 0 || p.ChapterIndex >= b.Chapters {
		return fmt.Errorf("%w: chapter index %d out of range", apperr.ErrInvalid, p.ChapterIndex)
	}
	return s.db.SaveProgress(p)
}

// AddHighlight stores a highlight against the chapter at the given spine
// position and fills in its ID and timestamps.
func (s *Service) AddHighlight(_ context.Context, bookID string, chapterIndex int, h *models.Highlight) error {
	if !h.Kind.Valid() {
		return fmt.Errorf("%w: highlight kind %q", apperr.ErrInvalid, h.Kind)
	}
	ch, err := s.db.ChapterByIndex(bookID, chapterIndex)
	if err != nil {
		return err
	}
	h.ChapterID = ch.ID
	return s.db.InsertHighlight(h)
}

// Highlight returns one highlight by id.
func (s *Service) Highlight(_ context.Context, id int64) (*models.Highlight, error) {
	return s.db.GetHighlight(id)
}

// ChapterHighlights lists the highlights anchored in one chapter.
func (s *Service) ChapterHighlights(_ context.Context, bookID string, chapterIndex int) ([]models.Highlight, error) {
	if _, err := s.db.GetBook(bookID); err != nil {
		return nil, err
	}
	return s.db.ChapterHighlights(bookID, chapterIndex)
}

// BookHighlights lists all highlights of a book, optionally filtered by
// kind, in spine order.
func (s *Service) BookHighlights(_ context.Context, bookID string, kind models.HighlightKind) ([]models.BookHighlight, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("%w: highlight kind %q", apperr.ErrInvalid, kind)
	}
	if _, err := s.db.GetBook(bookID); err != nil {
		return nil, err
	}
	return s.db.BookHighlights(bookID, kind)
}

// UpdateHighlight replaces the response text of a highlight.
func (s *Service) UpdateHighlight(_ context.Context, id int64, response string) error {
	return s.db.UpdateHighlightResponse(id, response)
}

// DeleteHighlight removes a highlight.
func (s *Service) DeleteHighlight(_ context.Context, id int64) error {
	return s.db.DeleteHighlight(id)
}

// Slug normalizes a filename stem into a book id: lowercase letters,
// digits, and hyphens, with runs of anything else collapsed to one hyphen.
func Slug(stem string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(stem) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}
