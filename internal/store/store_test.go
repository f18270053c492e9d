package store

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/haldvard/lectern/internal/apperr"
	"github.com/haldvard/lectern/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "lectern-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedBook(t *testing.T, db *DB, id string, nChapters int) {
	t.Helper()
	chapters := make([]models.Chapter, nChapters)
	for i := range chapters {
		chapters[i] = models.Chapter{
			OrderIndex: i,
			Href:       fmt.Sprintf("ch%02d.xhtml", i),
			Title:      fmt.Sprintf("Chapter %d", i+1),
			BodyHTML:   fmt.Sprintf("<p>body %d</p>", i),
			BodyText:   fmt.Sprintf("body %d", i),
		}
	}
	err := db.UpsertBook(models.Book{
		ID:         id,
		Title:      "Test Book " + id,
		Author:     "Anon",
		SourceFile: id + ".epub",
		SourceHash: "hash-" + id,
	}, chapters)
	if err != nil {
		t.Fatalf("UpsertBook(%s): %v", id, err)
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	for _, table := range []string{"books", "chapters", "highlights", "progress"} {
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestUpsertAndGetBook(t *testing.T) {
	db := testDB(t)
	seedBook(t, db, "moby-dick", 3)

	b, err := db.GetBook("moby-dick")
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if b.Title != "Test Book moby-dick" {
		t.Errorf("Title = %q, want %q", b.Title, "Test Book moby-dick")
	}
	if b.Chapters != 3 {
		t.Errorf("Chapters = %d, want 3", b.Chapters)
	}
	if b.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
}

func TestGetBook_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetBook("ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("GetBook(ghost) = %v, want ErrNotFound", err)
	}
}

func TestListBooks(t *testing.T) {
	db := testDB(t)
	seedBook(t, db, "alpha", 2)
	seedBook(t, db, "beta", 5)

	books, err := db.ListBooks()
	if err != nil {
		t.Fatalf("ListBooks: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("len(books) = %d, want 2", len(books))
	}
	for _, b := range books {
		want := 2
		if b.ID == "beta" {
			want = 5
		}
		if b.Chapters != want {
			t.Errorf("book %s chapters = %d, want %d", b.ID, b.Chapters, want)
		}
	}
}

func TestUpsertReplacesChapters(t *testing.T) {
	db := testDB(t)
	seedBook(t, db, "b", 4)

	// Attach a highlight to the old chapter set.
	c, err := db.ChapterByIndex("b", 1)
	if err != nil {
		t.Fatalf("ChapterByIndex: %v", err)
	}
	h := &models.Highlight{ChapterID: c.ID, Kind: models.KindComment, SelectedText: "old", Response: "note"}
	if err := db.InsertHighlight(h); err != nil {
		t.Fatalf("InsertHighlight: %v", err)
	}

	first, err := db.GetBook("b")
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}

	// Re-import with fewer chapters.
	seedBook(t, db, "b", 2)

	b, err := db.GetBook("b")
	if err != nil {
		t.Fatalf("GetBook after replace: %v", err)
	}
	if b.Chapters != 2 {
		t.Errorf("Chapters after replace = %d, want 2", b.Chapters)
	}
	if !b.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on replace: %v -> %v", first.CreatedAt, b.CreatedAt)
	}
	// Old chapter rows cascaded away, taking the highlight with them.
	if _, err := db.GetHighlight(h.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetHighlight after replace = %v, want ErrNotFound", err)
	}
}

func TestDeleteBookCascades(t *testing.T) {
	db := testDB(t)
	seedBook(t, db, "b", 2)

	c, _ := db.ChapterByIndex("b", 0)
	h := &models.Highlight{ChapterID: c.ID, Kind: models.KindFactCheck, SelectedText: "claim"}
	if err := db.InsertHighlight(h); err != nil {
		t.Fatalf("InsertHighlight: %v", err)
	}
	if err := db.SaveProgress(models.Progress{BookID: "b", ChapterIndex: 1, ScrollPosition: 0.5}); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	if err := db.DeleteBook("b"); err != nil {
		t.Fatalf("DeleteBook: %v", err)
	}

	if _, err := db.ChapterByIndex("b", 0); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("chapter survives book delete: %v", err)
	}
	if _, err := db.GetHighlight(h.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("highlight survives book delete: %v", err)
	}
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM progress WHERE book_id = 'b'`).Scan(&n); err != nil {
		t.Fatalf("count progress: %v", err)
	}
	if n != 0 {
		t.Errorf("progress rows after delete = %d, want 0", n)
	}
}

func TestDeleteBook_NotFound(t *testing.T) {
	db := testDB(t)
	if err := db.DeleteBook("ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("DeleteBook(ghost) = %v, want ErrNotFound", err)
	}
}

func TestSourceHash(t *testing.T) {
	db := testDB(t)
	seedBook(t, db, "b", 1)

	h, err := db.SourceHash("b")
	if err != nil {
		t.Fatalf("SourceHash: %v", err)
	}
	if h != "hash-b" {
		t.Errorf("SourceHash = %q, want %q", h, "hash-b")
	}

	h, err = db.SourceHash("ghost")
	if err != nil {
		t.Fatalf("SourceHash(ghost): %v", err)
	}
	if h != "" {
		t.Errorf("SourceHash(ghost) = %q, want empty", h)
	}
}

func TestChapterLookups(t *testing.T) {
	db := testDB(t)
	seedBook(t, db, "b", 3)

	c, err := db.ChapterByIndex("b", 2)
	if err != nil {
		t.Fatalf("ChapterByIndex: %v", err)
	}
	if c.Href != "ch02.xhtml" || c.Title != "Chapter 3" {
		t.Errorf("chapter = %+v, want href ch02.xhtml title Chapter 3", c)
	}

	c, err = db.ChapterByHref("b", "ch01.xhtml")
	if err != nil {
		t.Fatalf("ChapterByHref: %v", err)
	}
	if c.OrderIndex != 1 {
		t.Errorf("OrderIndex = %d, want 1", c.OrderIndex)
	}

	if _, err := db.ChapterByIndex("b", 99); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("ChapterByIndex(99) = %v, want ErrNotFound", err)
	}
	if _, err := db.ChapterByHref("b", "nope.xhtml"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("ChapterByHref(nope) = %v, want ErrNotFound", err)
	}
}

func TestChapterRefsOrdered(t *testing.T) {
	db := testDB(t)
	seedBook(t, db, "b", 5)

	refs, err := db.ChapterRefs("b")
	if err != nil {
		t.Fatalf("ChapterRefs: %v", err)
	}
	if len(refs) != 5 {
		t.Fatalf("len(refs) = %d, want 5", len(refs))
	}
	for i, r := range refs {
		if r.OrderIndex != i {
			t.Errorf("refs[%d].OrderIndex = %d, want %d", i, r.OrderIndex, i)
		}
	}
}
