package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/haldvard/lectern/internal/models"
)

// SaveProgress upserts the reading position for a book.
func (db *DB) SaveProgress(p models.Progress) error {
	_, err := db.conn.Exec(`
		INSERT INTO progress (book_id, chapter_index, scroll_position, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(book_id) DO UPDATE SET
			chapter_index   = excluded.chapter_index,
			scroll_position = excluded.scroll_position,
			updated_at      = excluded.updated_at
	`, p.BookID, p.ChapterIndex, p.ScrollPosition, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: save progress: %w", err)
	}
	return nil
}

// GetProgress returns the reading position for a book. A book that was
// never opened reports position zero, the start of the book.
func (db *DB) GetProgress(bookID string) (models.Progress, error) {
	p := models.Progress{BookID: bookID}
	err := db.conn.QueryRow(`
		SELECT chapter_index, scroll_position, updated_at FROM progress WHERE book_id = ?
	`, bookID).Scan(&p.ChapterIndex, &p.ScrollPosition, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Progress{BookID: bookID}, nil
	}
	if err != nil {
		return models.Progress{}, fmt.Errorf("store: get progress: %w", err)
	}
	return p, nil
}
