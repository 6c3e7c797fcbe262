// Package watcher emits debounced change events for proposal input files.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/proposals/proposal"
	"github.com/fsnotify/fsnotify"
)

const (
	// eventChannelBuffer is the size of the change event channel.
	eventChannelBuffer = 100

	// DefaultDebounce is used when Config.Debounce is zero.
	DefaultDebounce = 500 * time.Millisecond
)

// Config configures an input directory watcher.
type Config struct {
	// Dir is the directory watched recursively.
	Dir string

	// Exclude lists directories under Dir that are never watched, such as
	// the Proposals root when it lives inside the input directory.
	Exclude []string

	// Debounce is how long changes are collected before they are emitted.
	Debounce time.Duration

	// Extensions lists the file extensions that count as record files.
	// Empty means every extension proposal.IsRecordFile accepts.
	Extensions []string
}

// Event reports a created or modified record file.
type Event struct {
	// Path is relative to the watched directory.
	Path string

	// AbsPath is the absolute path handed to the recorder.
	AbsPath string
}

// Watcher watches an input directory for record files.
type Watcher struct {
	config     Config
	watcher    *fsnotify.Watcher
	logger     *slog.Logger
	extensions map[string]bool

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	hashMu sync.Mutex
	hashes map[string]string

	events chan Event

	droppedEvents atomic.Int64
}

// New creates a watcher. Start must be called before events flow.
func New(config Config, logger *slog.Logger) (*Watcher, error) {
	dir, err := filepath.Abs(config.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve watch dir: %w", err)
	}
	config.Dir = dir

	exclude := make([]string, 0, len(config.Exclude))
	for _, ex := range config.Exclude {
		if ex == "" {
			continue
		}
		abs, err := filepath.Abs(ex)
		if err != nil {
			return nil, fmt.Errorf("resolve excluded dir %q: %w", ex, err)
		}
		exclude = append(exclude, abs)
	}
	config.Exclude = exclude

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}

	var extensions map[string]bool
	if len(config.Extensions) > 0 {
		extensions = make(map[string]bool, len(config.Extensions))
		for _, ext := range config.Extensions {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			extensions[strings.ToLower(ext)] = true
		}
	}

	return &Watcher{
		config:     config,
		watcher:    fsw,
		logger:     logger,
		extensions: extensions,
		pending:    make(map[string]fsnotify.Op),
		hashes:     make(map[string]string),
		events:     make(chan Event, eventChannelBuffer),
	}, nil
}

// Events returns the channel of change events. It is closed when the
// watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start creates the directory if needed and begins watching it.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.config.Dir, 0755); err != nil {
		return err
	}
	if err := w.addWatchesRecursive(w.config.Dir); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Watching for proposals",
		"dir", w.config.Dir,
		"debounce", w.config.Debounce)
	return nil
}

// Stop closes the underlying watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// DroppedEvents returns the number of events dropped on a full channel.
func (w *Watcher) DroppedEvents() int64 {
	return w.droppedEvents.Load()
}

func (w *Watcher) accepts(path string) bool {
	if w.extensions == nil {
		return proposal.IsRecordFile(path)
	}
	return w.extensions[strings.ToLower(filepath.Ext(path))]
}

func hidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "."
}

// excluded reports whether path is an excluded directory or lies below one.
func (w *Watcher) excluded(path string) bool {
	for _, ex := range w.config.Exclude {
		rel, err := filepath.Rel(ex, path)
		if err != nil {
			continue
		}
		if rel == "." || filepath.IsLocal(rel) {
			return true
		}
	}
	return false
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && hidden(path) {
			return filepath.SkipDir
		}
		if w.excluded(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(w.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !hidden(path) && !w.excluded(path) {
				if err := w.addWatchesRecursive(path); err != nil {
					w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
				}
			}
			return
		}
	}

	// Deletions and renames never trigger a record.
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if hidden(path) || !w.accepts(path) || w.excluded(path) {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] |= event.Op
	w.pendingMu.Unlock()
}

func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for path := range toProcess {
		if ctx.Err() != nil {
			return
		}

		content, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				w.logger.Warn("Failed to read changed file", "path", path, "error", err)
			}
			continue
		}
		if !w.changed(path, content) {
			continue
		}

		relPath, err := filepath.Rel(w.config.Dir, path)
		if err != nil {
			relPath = path
		}
		w.sendEvent(Event{Path: relPath, AbsPath: path})
	}
}

// changed reports whether content differs from the last emitted version.
func (w *Watcher) changed(path string, content []byte) bool {
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	if w.hashes[path] == hash {
		return false
	}
	w.hashes[path] = hash
	return true
}

func (w *Watcher) sendEvent(event Event) {
	select {
	case w.events <- event:
	default:
		dropped := w.droppedEvents.Add(1)
		w.logger.Warn("Event channel full, dropping event",
			"path", event.Path,
			"total_dropped", dropped)
	}
}
