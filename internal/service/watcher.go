package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// settleDelay gives editors and copy tools time to finish writing a
// file before it is read.
const settleDelay = 500 * time.Millisecond

// Watcher ingests text files dropped into a watched directory
type Watcher struct {
	ingest  *IngestService
	logger  *zap.Logger
	dir     string
	ownerID string
}

// NewWatcher creates a watcher over dir that ingests on behalf of
// ownerID. An empty dir disables watching.
func NewWatcher(ingest *IngestService, logger *zap.Logger, dir, ownerID string) *Watcher {
	return &Watcher{
		ingest:  ingest,
		logger:  logger,
		dir:     dir,
		ownerID: ownerID,
	}
}

// Enabled reports whether a watch directory is configured
func (w *Watcher) Enabled() bool {
	return w.dir != ""
}

// Run watches the directory until ctx is cancelled. Existing files are
// ingested on startup, then create and write events trigger ingestion
// of new files.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.Enabled() {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}

	w.ingestExisting()
	w.logger.Info("watching drop directory", zap.String("dir", w.dir))

	// files seen this session, to avoid double ingestion when a single
	// save produces multiple events
	seen := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !ingestable(event.Name) || seen[event.Name] {
				continue
			}
			seen[event.Name] = true
			time.Sleep(settleDelay)
			w.ingestFile(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) ingestExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("failed to scan drop directory", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if ingestable(path) {
			w.ingestFile(path)
		}
	}
}

func (w *Watcher) ingestFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("failed to read dropped file", zap.String("path", path), zap.Error(err))
		return
	}
	if _, err := w.ingest.UploadText(w.ownerID, filepath.Base(path), string(data)); err != nil {
		w.logger.Warn("failed to ingest dropped file", zap.String("path", path), zap.Error(err))
	}
}

func ingestable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}
