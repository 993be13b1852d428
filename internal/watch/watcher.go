package watch

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// expectWindow is how long an announced write suppresses warnings for a
// document. Atomic renames can surface as several events.
const expectWindow = 2 * time.Second

// watchedFiles are the planning documents, by base name.
var watchedFiles = map[string]bool{
	"requirements.md": true,
	"design.md":       true,
	"tasks.md":        true,
}

// Watcher observes the spec directory for edits to the planning documents.
type Watcher struct {
	specDir string
	fs      *fsnotify.Watcher
	logger  *zap.Logger

	mu       sync.Mutex
	expected map[string]time.Time

	// Changes receives the paths of unexpected edits. Buffered; consumers
	// that lag lose notifications but the warning is always logged.
	changes chan string

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher creates a watcher over the given spec directory.
func NewWatcher(specDir string, logger *zap.Logger) (*Watcher, error) {
	if specDir == "" {
		return nil, errors.New("spec directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	if err := fs.Add(specDir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", specDir, err)
	}

	w := &Watcher{
		specDir:  specDir,
		fs:       fs,
		logger:   logger,
		expected: make(map[string]time.Time),
		changes:  make(chan string, 16),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Changes returns the channel of unexpected document paths.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// ExpectWrite announces a legitimate upcoming write, suppressing the
// out-of-band warning for that document briefly. The mutator calls this
// right before committing.
func (w *Watcher) ExpectWrite(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expected[filepath.Base(path)] = time.Now().Add(expectWindow)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	err := w.fs.Close()
	w.wg.Wait()
	close(w.changes)
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	base := filepath.Base(ev.Name)
	if !watchedFiles[base] {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return
	}
	if w.isExpected(base) {
		return
	}

	w.logger.Warn("document modified outside the mutator",
		zap.String("path", ev.Name),
		zap.String("op", ev.Op.String()),
	)
	select {
	case w.changes <- ev.Name:
	default:
	}
}

func (w *Watcher) isExpected(base string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	deadline, ok := w.expected[base]
	if !ok {
		return false
	}
	if time.Now().After(deadline) {
		delete(w.expected, base)
		return false
	}
	return true
}
