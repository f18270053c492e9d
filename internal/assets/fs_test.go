package assets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testFS(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestNewFSMissingRoot(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("NewFS with missing root: expected error, got nil")
	}
}

func TestWriteAndRead(t *testing.T) {
	fs := testFS(t)

	want := []byte("<html><body>ch1</body></html>")
	if err := fs.Write("moby-dick", "chapter_000.html", want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := fs.Read("moby-dick", "chapter_000.html")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("Read = %q, want %q", got, want)
	}
}

func TestWriteNestedName(t *testing.T) {
	fs := testFS(t)

	if err := fs.Write("moby-dick", "images/cover.jpg", []byte{0xff, 0xd8}); err != nil {
		t.Fatalf("Write nested: %v", err)
	}
	got, err := fs.Read("moby-dick", "images/cover.jpg")
	if err != nil {
		t.Fatalf("Read nested: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Read nested length = %d, want 2", len(got))
	}
}

func TestWriteOverwrites(t *testing.T) {
	fs := testFS(t)

	if err := fs.Write("b", "a.html", []byte("one")); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	if err := fs.Write("b", "a.html", []byte("two")); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	got, err := fs.Read("b", "a.html")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "two" {
		t.Fatalf("Read after overwrite = %q, want %q", got, "two")
	}
}

func TestReadMissing(t *testing.T) {
	fs := testFS(t)

	_, err := fs.Read("b", "missing.html")
	if err == nil {
		t.Fatal("Read missing: expected error, got nil")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Read missing: expected ErrNotExist, got %v", err)
	}
}

func TestTraversalRejected(t *testing.T) {
	fs := testFS(t)

	cases := []struct {
		bookID string
		name   string
	}{
		{"..", "x.html"},
		{"a/../b", "x.html"},
		{"b", "../escape.html"},
		{"b", "../../etc/passwd"},
		{"b", "/abs/path.html"},
		{"", "x.html"},
	}
	for _, tc := range cases {
		if err := fs.Write(tc.bookID, tc.name, []byte("x")); err == nil {
			t.Errorf("Write(%q, %q): expected error, got nil", tc.bookID, tc.name)
		}
		if _, err := fs.Read(tc.bookID, tc.name); err == nil {
			t.Errorf("Read(%q, %q): expected error, got nil", tc.bookID, tc.name)
		}
	}
}

func TestRemove(t *testing.T) {
	fs := testFS(t)

	if err := fs.Write("b", "a.html", []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.Write("b", "images/i.png", []byte("y")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.Remove("b"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := fs.Read("b", "a.html"); err == nil {
		t.Fatal("Read after Remove: expected error, got nil")
	}
}

func TestRemoveMissingIsNoop(t *testing.T) {
	fs := testFS(t)

	if err := fs.Remove("never-imported"); err != nil {
		t.Fatalf("Remove missing: %v", err)
	}
}

func TestNoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if err := fs.Write("b", "a.html", []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "b"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "a.html" {
			t.Errorf("unexpected entry %q in book dir", e.Name())
		}
	}
}
