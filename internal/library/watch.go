package library

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Scan imports every EPUB file in the inbox directory. Files whose bytes
// are unchanged since the last import are skipped via the source hash, so
// scanning is cheap to repeat. Books removed from the inbox are not
// deleted: the catalog, not the drop folder, owns the library.
func Scan(ctx context.Context, svc *Service, inbox string, logger *slog.Logger) error {
	entries, err := os.ReadDir(inbox)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !isEPUB(e.Name()) {
			continue
		}
		full := filepath.Join(inbox, e.Name())
		data, err := os.ReadFile(full)
		if err != nil {
			logger.Warn("scan: read failed", slog.String("file", e.Name()), slog.String("error", err.Error()))
			continue
		}
		book, imported, err := svc.ImportEPUB(ctx, e.Name(), data)
		if err != nil {
			logger.Warn("scan: import failed", slog.String("file", e.Name()), slog.String("error", err.Error()))
			continue
		}
		if imported {
			logger.Info("scan: imported", slog.String("book", book.ID), slog.Int("chapters", book.Chapters))
		} else {
			logger.Debug("scan: unchanged", slog.String("book", book.ID))
		}
	}
	return nil
}

// Watch starts an fsnotify watcher on the inbox directory and imports
// dropped EPUB files until ctx is cancelled.
//
// EPUBs arrive in multiple write chunks, so events only schedule a
// debounced full scan instead of importing the file immediately; the scan
// runs once writes have settled and the hash check makes rescans of
// untouched files free.
func Watch(ctx context.Context, svc *Service, inbox string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(inbox); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("inbox", inbox))

	var scanTimer *time.Timer
	var scanCh <-chan time.Time

	scheduleScan := func() {
		if scanTimer == nil {
			scanTimer = time.NewTimer(500 * time.Millisecond)
			scanCh = scanTimer.C
		} else {
			scanTimer.Reset(500 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if scanTimer != nil {
				scanTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-scanCh:
			if err := Scan(ctx, svc, inbox, logger); err != nil {
				logger.Warn("watcher: scan failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isEPUB(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				logger.Debug("watcher: change", slog.String("file", filepath.Base(ev.Name)), slog.String("op", ev.Op.String()))
				scheduleScan()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func isEPUB(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".epub")
}
