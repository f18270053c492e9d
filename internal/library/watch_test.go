package library

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestScanImportsInbox(t *testing.T) {
	svc, inbox := testEnv(t)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(inbox, "dropped.epub"), sampleEPUB(t, "Dropped"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Junk files are ignored, broken EPUBs are logged but not fatal.
	if err := os.WriteFile(filepath.Join(inbox, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(inbox, "broken.epub"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Scan(ctx, svc, inbox, quietLogger()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	books, err := svc.Books(ctx)
	if err != nil {
		t.Fatalf("Books: %v", err)
	}
	if len(books) != 1 || books[0].ID != "dropped" {
		t.Fatalf("books after scan = %+v, want just dropped", books)
	}
}

func TestScanRepeatIsCheapNoop(t *testing.T) {
	svc, inbox := testEnv(t)
	ctx := context.Background()

	var events int
	svc.OnEvent = func(string, string) { events++ }

	if err := os.WriteFile(filepath.Join(inbox, "b.epub"), sampleEPUB(t, "B"), 0o644); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := Scan(ctx, svc, inbox, quietLogger()); err != nil {
			t.Fatalf("Scan %d: %v", i, err)
		}
	}
	if events != 1 {
		t.Errorf("events after repeated scans = %d, want 1", events)
	}
}

func TestWatcher_DroppedFileImported(t *testing.T) {
	svc, inbox := testEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, svc, inbox, quietLogger())
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(inbox, "new.epub"), sampleEPUB(t, "New Arrival"), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		b, err := svc.Book(ctx, "new")
		return err == nil && b.Title == "New Arrival"
	}, "dropped EPUB not imported by watcher")
}

func TestWatcher_ChangedFileReimported(t *testing.T) {
	svc, inbox := testEnv(t)

	file := filepath.Join(inbox, "b.epub")
	if err := os.WriteFile(file, sampleEPUB(t, "First Title"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Scan(context.Background(), svc, inbox, quietLogger()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, svc, inbox, quietLogger())
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(file, sampleEPUB(t, "Second Title"), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		b, err := svc.Book(ctx, "b")
		return err == nil && b.Title == "Second Title"
	}, "changed EPUB not re-imported by watcher")
}
