package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"

	"github.com/bassista/go_lmsync/internal/logger"
)

const watchDebounce = 200 * time.Millisecond

// snapshotEvents are the file operations that may leave a new snapshot behind.
const snapshotEvents = fsnotify.Write | fsnotify.Create | fsnotify.Chmod | fsnotify.Remove | fsnotify.Rename

// JSONRepository stores the local store snapshot as one JSON file and
// reloads it when another process replaces the file.
type JSONRepository struct {
	path      string
	dir       string
	base      string
	validator *validator.Validate
	mu        sync.Mutex
}

// NewJSONRepository creates a repository for the given JSON file path.
// It returns the repository interface to avoid leaking implementation details.
func NewJSONRepository(path string) (Repository, error) {
	if path == "" {
		return nil, errors.New("data file path is required")
	}
	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	return &JSONRepository{path: path, dir: dir, base: filepath.Base(path), validator: validator.New()}, nil
}

// Load reads and validates the snapshot. A missing file yields an empty
// document so first runs start clean.
func (r *JSONRepository) Load(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		doc := &Document{}
		doc.ApplyDefaults()
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode data file: %w", err)
	}
	doc.ApplyDefaults()
	if err := r.validator.Struct(&doc); err != nil {
		return nil, fmt.Errorf("validate data file: %w", err)
	}
	return &doc, nil
}

// Save validates the document and replaces the snapshot atomically. Records
// are written sorted by type and id so snapshots diff cleanly.
func (r *JSONRepository) Save(ctx context.Context, doc *Document) error {
	if doc == nil {
		return errors.New("document is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.validator.Struct(doc); err != nil {
		return fmt.Errorf("validate before save: %w", err)
	}

	sorted := *doc
	sorted.Records = slices.Clone(doc.Records)
	sorted.SortRecords()
	payload, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return writeFileAtomic(r.dir, r.base, payload)
}

// writeFileAtomic writes payload to a temp file in dir and renames it over
// base, so readers never observe a partial snapshot.
func writeFileAtomic(dir, base string, payload []byte) (err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, base+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(payload); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, base)); err != nil {
		return fmt.Errorf("replace data file: %w", err)
	}
	return nil
}

// StartWatcher reloads local after another process writes a newer snapshot.
// The parent directory is watched so temp+rename replacements are seen;
// bursts of events are debounced into one reload. Cancel ctx to stop.
func (r *JSONRepository) StartWatcher(ctx context.Context, local Reloadable) error {
	if local == nil {
		return errors.New("local store is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		watcher.Close()
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch dir: %w", err)
	}

	go r.watch(ctx, watcher, r.ReloadFunc(local))
	return nil
}

func (r *JSONRepository) watch(ctx context.Context, watcher *fsnotify.Watcher, reload func()) {
	defer watcher.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != r.base || event.Op&snapshotEvents == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.WithComponent("repo").Warnf("watcher error: %v", err)
		}
	}
}

// ReloadFunc returns the watcher callback: it loads the snapshot from disk
// and replaces local when the disk copy is newer, or equally new but different.
// A dirty store is never replaced; its own flush will win.
func (r *JSONRepository) ReloadFunc(local Reloadable) func() {
	log := logger.WithComponent("repo")
	return func() {
		disk, err := r.Load(context.Background())
		if err != nil {
			log.Errorf("watch reload failed: %v", err)
			return
		}
		if reason, ok := shouldReload(local, disk); !ok {
			log.Debugf("snapshot not reloaded: %s", reason)
			return
		}
		if err := local.Replace(*disk); err != nil {
			log.Errorf("store reload error: %v", err)
			return
		}
		log.Infof("local store reloaded from newer snapshot (%d records)", len(disk.Records))
	}
}

func shouldReload(local Reloadable, disk *Document) (string, bool) {
	localUpdate, diskUpdate := local.GetLastUpdate(), disk.Metadata.LastUpdate
	switch {
	case diskUpdate < localUpdate:
		return fmt.Sprintf("disk=%d older than store=%d", diskUpdate, localUpdate), false
	case local.IsDirty():
		return "store has unsaved writes", false
	case diskUpdate > localUpdate:
		return "", true
	}
	current, err := local.Snapshot()
	if err != nil {
		return fmt.Sprintf("snapshot failed: %v", err), false
	}
	if AreDocumentsEqual(&current, disk) {
		return "same content", false
	}
	return "", true
}
