package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/haldvard/lectern/internal/apperr"
	"github.com/haldvard/lectern/internal/models"
)

// UpsertBook inserts or replaces a book and its chapters within a
// transaction. Replacing deletes the previous chapter rows, which cascades
// to their highlights; the original created_at is kept.
func (db *DB) UpsertBook(b models.Book, chapters []models.Chapter) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO books (id, title, author, source_file, source_hash, cover_image, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title       = excluded.title,
			author      = excluded.author,
			source_file = excluded.source_file,
			source_hash = excluded.source_hash,
			cover_image = excluded.cover_image
	`, b.ID, b.Title, b.Author, b.SourceFile, b.SourceHash, b.CoverImage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: upsert book: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM chapters WHERE book_id = ?`, b.ID); err != nil {
		return fmt.Errorf("store: clear chapters: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO chapters (book_id, order_idx, href, title, body_html, body_text)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("store: prepare chapter insert: %w", err)
	}
	defer stmt.Close()
	for _, c := range chapters {
		if _, err := stmt.Exec(b.ID, c.OrderIndex, c.Href, c.Title, c.BodyHTML, c.BodyText); err != nil {
			return fmt.Errorf("store: insert chapter %d: %w", c.OrderIndex, err)
		}
	}

	return tx.Commit()
}

// ListBooks returns all books, newest first, with chapter counts.
func (db *DB) ListBooks() ([]models.Book, error) {
	rows, err := db.conn.Query(`
		SELECT b.id, b.title, b.author, b.source_file, b.source_hash, b.cover_image, b.created_at,
			(SELECT COUNT(*) FROM chapters c WHERE c.book_id = b.id)
		FROM books b
		ORDER BY b.created_at DESC, b.id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list books: %w", err)
	}
	defer rows.Close()

	var out []models.Book
	for rows.Next() {
		var b models.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.SourceFile, &b.SourceHash, &b.CoverImage, &b.CreatedAt, &b.Chapters); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBook returns a single book by id, or apperr.ErrNotFound.
func (db *DB) GetBook(id string) (*models.Book, error) {
	var b models.Book
	err := db.conn.QueryRow(`
		SELECT b.id, b.title, b.author, b.source_file, b.source_hash, b.cover_image, b.created_at,
			(SELECT COUNT(*) FROM chapters c WHERE c.book_id = b.id)
		FROM books b
		WHERE b.id = ?
	`, id).Scan(&b.ID, &b.Title, &b.Author, &b.SourceFile, &b.SourceHash, &b.CoverImage, &b.CreatedAt, &b.Chapters)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get book: %w", err)
	}
	return &b, nil
}

// DeleteBook removes a book; chapters, highlights, and progress cascade.
func (db *DB) DeleteBook(id string) error {
	res, err := db.conn.Exec(`DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete book: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete book: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// SourceHash returns the stored source hash for a book, or empty string
// if the book is not in the catalog.
func (db *DB) SourceHash(id string) (string, error) {
	var h string
	err := db.conn.QueryRow(`SELECT source_hash FROM books WHERE id = ?`, id).Scan(&h)
	if err != nil {
		return "", nil // not found is fine
	}
	return h, nil
}

const chapterColumns = `id, book_id, order_idx, href, title, body_html, body_text`

func scanChapter(row *sql.Row) (*models.Chapter, error) {
	var c models.Chapter
	err := row.Scan(&c.ID, &c.BookID, &c.OrderIndex, &c.Href, &c.Title, &c.BodyHTML, &c.BodyText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan chapter: %w", err)
	}
	return &c, nil
}

// ChapterByIndex returns the chapter at a spine position within a book.
func (db *DB) ChapterByIndex(bookID string, idx int) (*models.Chapter, error) {
	row := db.conn.QueryRow(`SELECT `+chapterColumns+` FROM chapters WHERE book_id = ? AND order_idx = ?`, bookID, idx)
	return scanChapter(row)
}

// ChapterByHref returns the chapter whose spine href matches. Readers link
// between chapters by the original file name inside the EPUB, so href
// lookup keeps those links working.
func (db *DB) ChapterByHref(bookID, href string) (*models.Chapter, error) {
	row := db.conn.QueryRow(`SELECT `+chapterColumns+` FROM chapters WHERE book_id = ? AND href = ?`, bookID, href)
	return scanChapter(row)
}

// ChapterRefs returns the book's table of contents in spine order.
func (db *DB) ChapterRefs(bookID string) ([]models.ChapterRef, error) {
	rows, err := db.conn.Query(`SELECT order_idx, href, title FROM chapters WHERE book_id = ? ORDER BY order_idx`, bookID)
	if err != nil {
		return nil, fmt.Errorf("store: chapter refs: %w", err)
	}
	defer rows.Close()

	var out []models.ChapterRef
	for rows.Next() {
		var r models.ChapterRef
		if err := rows.Scan(&r.OrderIndex, &r.Href, &r.Title); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
