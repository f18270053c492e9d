// Package store provides the SQLite-backed catalog of books, chapters,
// highlights, and reading progress.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/haldvard/lectern/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS books (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	author      TEXT NOT NULL DEFAULT '',
	source_file TEXT NOT NULL DEFAULT '',
	source_hash TEXT NOT NULL DEFAULT '',
	cover_image TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chapters (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	book_id    TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	order_idx  INTEGER NOT NULL,
	href       TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	body_html  TEXT NOT NULL DEFAULT '',
	body_text  TEXT NOT NULL DEFAULT '',
	UNIQUE(book_id, order_idx)
);

CREATE TABLE IF NOT EXISTS highlights (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	chapter_id     INTEGER NOT NULL REFERENCES chapters(id) ON DELETE CASCADE,
	kind           TEXT NOT NULL,
	selected_text  TEXT NOT NULL,
	context_before TEXT NOT NULL DEFAULT '',
	context_after  TEXT NOT NULL DEFAULT '',
	response       TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS progress (
	book_id         TEXT PRIMARY KEY REFERENCES books(id) ON DELETE CASCADE,
	chapter_index   INTEGER NOT NULL DEFAULT 0,
	scroll_position REAL NOT NULL DEFAULT 0,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_chapters_book ON chapters(book_id, order_idx);
CREATE INDEX IF NOT EXISTS idx_highlights_chapter ON highlights(chapter_id);
`

// DB wraps a sql.DB with catalog-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// Foreign keys are enabled so that deleting a book cascades to its
// chapters, highlights, and progress.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Catalog defines the interface for catalog operations. Consumers should
// depend on this interface rather than the concrete *DB type to facilitate
// testing with mocks.
type Catalog interface {
	UpsertBook(b models.Book, chapters []models.Chapter) error
	ListBooks() ([]models.Book, error)
	GetBook(id string) (*models.Book, error)
	DeleteBook(id string) error
	SourceHash(id string) (string, error)
	ChapterByIndex(bookID string, idx int) (*models.Chapter, error)
	ChapterByHref(bookID, href string) (*models.Chapter, error)
	ChapterRefs(bookID string) ([]models.ChapterRef, error)
	InsertHighlight(h *models.Highlight) error
	GetHighlight(id int64) (*models.Highlight, error)
	UpdateHighlightResponse(id int64, response string) error
	DeleteHighlight(id int64) error
	ChapterHighlights(bookID string, chapterIndex int) ([]models.Highlight, error)
	BookHighlights(bookID string, kind models.HighlightKind) ([]models.BookHighlight, error)
	SaveProgress(p models.Progress) error
	GetProgress(bookID string) (models.Progress, error)
	Close() error
}

// Verify *DB satisfies Catalog at compile time.
var _ Catalog = (*DB)(nil)
