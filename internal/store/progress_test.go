package store

import (
	"testing"

	"github.com/haldvard/lectern/internal/models"
)

func TestProgressDefaultsToStart(t *testing.T) {
	db := testDB(t)
	seedBook(t, db, "b", 3)

	p, err := db.GetProgress("b")
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if p.ChapterIndex != 0 || p.ScrollPosition != 0 {
		t.Errorf("fresh progress = %+v, want zero position", p)
	}
}

func TestProgressUpsert(t *testing.T) {
	db := testDB(t)
	seedBook(t, db, "b", 3)

	if err := db.SaveProgress(models.Progress{BookID: "b", ChapterIndex: 1, ScrollPosition: 0.25}); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}
	if err := db.SaveProgress(models.Progress{BookID: "b", ChapterIndex: 2, ScrollPosition: 0.8}); err != nil {
		t.Fatalf("SaveProgress update: %v", err)
	}

	p, err := db.GetProgress("b")
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if p.ChapterIndex != 2 {
		t.Errorf("ChapterIndex = %d, want 2", p.ChapterIndex)
	}
	if p.ScrollPosition != 0.8 {
		t.Errorf("ScrollPosition = %v, want 0.8", p.ScrollPosition)
	}
	if p.UpdatedAt.IsZero() {
		t.Error("UpdatedAt is zero")
	}

	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM progress WHERE book_id = 'b'`).Scan(&n); err != nil {
		t.Fatalf("count progress: %v", err)
	}
	if n != 1 {
		t.Errorf("progress rows = %d, want 1", n)
	}
}

func TestProgressRequiresBook(t *testing.T) {
	db := testDB(t)

	// Foreign key enforcement: progress for an unknown book is rejected.
	if err := db.SaveProgress(models.Progress{BookID: "ghost", ChapterIndex: 1}); err == nil {
		t.Fatal("SaveProgress for missing book: expected error, got nil")
	}
}
