package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/haldvard/lectern/internal/apperr"
	"github.com/haldvard/lectern/internal/models"
)

// InsertHighlight stores a new highlight and fills in its ID and timestamps.
func (db *DB) InsertHighlight(h *models.Highlight) error {
	now := time.Now().UTC()
	res, err := db.conn.Exec(`
		INSERT INTO highlights (chapter_id, kind, selected_text, context_before, context_after, response, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ChapterID, string(h.Kind), h.SelectedText, h.ContextBefore, h.ContextAfter, h.Response, now, now)
	if err != nil {
		return fmt.Errorf("store: insert highlight: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: insert highlight: %w", err)
	}
	h.ID = id
	h.CreatedAt = now
	h.UpdatedAt = now
	return nil
}

const highlightColumns = `id, chapter_id, kind, selected_text, context_before, context_after, response, created_at, updated_at`

func scanHighlight(scan func(dest ...any) error) (models.Highlight, error) {
	var h models.Highlight
	var kind string
	err := scan(&h.ID, &h.ChapterID, &kind, &h.SelectedText, &h.ContextBefore, &h.ContextAfter, &h.Response, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return models.Highlight{}, err
	}
	h.Kind = models.HighlightKind(kind)
	return h, nil
}

// GetHighlight returns a single highlight by id, or apperr.ErrNotFound.
func (db *DB) GetHighlight(id int64) (*models.Highlight, error) {
	row := db.conn.QueryRow(`SELECT `+highlightColumns+` FROM highlights WHERE id = ?`, id)
	h, err := scanHighlight(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get highlight: %w", err)
	}
	return &h, nil
}

// UpdateHighlightResponse replaces the stored AI response or comment text
// and touches updated_at.
func (db *DB) UpdateHighlightResponse(id int64, response string) error {
	res, err := db.conn.Exec(`UPDATE highlights SET response = ?, updated_at = ? WHERE id = ?`,
		response, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update highlight: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update highlight: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteHighlight removes a single highlight.
func (db *DB) DeleteHighlight(id int64) error {
	res, err := db.conn.Exec(`DELETE FROM highlights WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete highlight: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete highlight: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// ChapterHighlights returns all highlights for one chapter of a book,
// oldest first, so the reader can re-anchor them in document order.
func (db *DB) ChapterHighlights(bookID string, chapterIndex int) ([]models.Highlight, error) {
	rows, err := db.conn.Query(`
		SELECT h.id, h.chapter_id, h.kind, h.selected_text, h.context_before, h.context_after, h.response, h.created_at, h.updated_at
		FROM highlights h
		JOIN chapters c ON c.id = h.chapter_id
		WHERE c.book_id = ? AND c.order_idx = ?
		ORDER BY h.created_at, h.id
	`, bookID, chapterIndex)
	if err != nil {
		return nil, fmt.Errorf("store: chapter highlights: %w", err)
	}
	defer rows.Close()

	var out []models.Highlight
	for rows.Next() {
		h, err := scanHighlight(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// BookHighlights returns all highlights across a book joined with their
// chapter position, ordered by spine position then creation time. An empty
// kind returns every highlight.
func (db *DB) BookHighlights(bookID string, kind models.HighlightKind) ([]models.BookHighlight, error) {
	query := `
		SELECT h.id, h.chapter_id, h.kind, h.selected_text, h.context_before, h.context_after, h.response, h.created_at, h.updated_at,
			c.book_id, c.order_idx, c.title
		FROM highlights h
		JOIN chapters c ON c.id = h.chapter_id
		WHERE c.book_id = ?`
	args := []any{bookID}
	if kind != "" {
		query += ` AND h.kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY c.order_idx, h.created_at, h.id`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: book highlights: %w", err)
	}
	defer rows.Close()

	var out []models.BookHighlight
	for rows.Next() {
		var bh models.BookHighlight
		var k string
		err := rows.Scan(&bh.ID, &bh.ChapterID, &k, &bh.SelectedText, &bh.ContextBefore, &bh.ContextAfter, &bh.Response, &bh.CreatedAt, &bh.UpdatedAt,
			&bh.BookID, &bh.ChapterIndex, &bh.ChapterTitle)
		if err != nil {
			return nil, err
		}
		bh.Kind = models.HighlightKind(k)
		out = append(out, bh)
	}
	return out, rows.Err()
}
