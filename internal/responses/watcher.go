package responses

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// FileProvider serves the table loaded from a YAML file and swaps in a new
// one whenever the file changes. A file that fails to parse is logged and
// the previous table stays in effect.
type FileProvider struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[Table]

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

var _ Provider = (*FileProvider)(nil)

// NewFileProvider loads path. A nil logger uses slog.Default().
func NewFileProvider(path string, logger *slog.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	table, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	fp := &FileProvider{path: path, logger: logger, done: make(chan struct{})}
	fp.current.Store(table)
	return fp, nil
}

// Replies implements Provider.
func (fp *FileProvider) Replies(symbol string) []string {
	return fp.current.Load().Replies(symbol)
}

// Actions implements Provider.
func (fp *FileProvider) Actions() []string {
	return fp.current.Load().Actions()
}

// Reload re-reads the file now.
func (fp *FileProvider) Reload() error {
	table, err := LoadFile(fp.path)
	if err != nil {
		return err
	}
	fp.current.Store(table)
	return nil
}

// Watch begins reloading on file changes. The parent directory is watched
// rather than the file so editors that save by rename are picked up.
// Call Stop() to clean up.
func (fp *FileProvider) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("responses: failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(fp.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("responses: failed to watch %s: %w", fp.path, err)
	}
	fp.watcher = w

	go fp.loop()
	fp.logger.Info("watching response file", "path", fp.path)
	return nil
}

// Stop shuts down the watcher. Safe to call without Watch and more than once.
func (fp *FileProvider) Stop() {
	fp.stopOnce.Do(func() {
		if fp.watcher == nil {
			return
		}
		_ = fp.watcher.Close()
		<-fp.done
	})
}

func (fp *FileProvider) loop() {
	defer close(fp.done)
	target := filepath.Clean(fp.path)
	for {
		select {
		case evt, ok := <-fp.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != target {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}
			if err := fp.Reload(); err != nil {
				fp.logger.Warn("response file reload failed, keeping previous table", "path", fp.path, "error", err)
				continue
			}
			fp.logger.Info("response file reloaded", "path", fp.path)
		case err, ok := <-fp.watcher.Errors:
			if !ok {
				return
			}
			fp.logger.Warn("response watcher error", "error", err)
		}
	}
}
