package rules

import (
	"fmt"
	"path/filepath"
	"sync"

	"golang-redflag-service/internal/models"
	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// Loader reads a rule book file and optionally watches it for changes.
// Readers always see a complete book: a reload that fails to parse keeps
// the previous one.
type Loader struct {
	fs       afero.Fs
	path     string
	logger   logger.Logger
	mu       sync.RWMutex
	current  *Book
	onChange []func(*Book)
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(fs afero.Fs, path string) (*Loader, error) {
	l := &Loader{
		fs:     fs,
		path:   filepath.Clean(path),
		logger: logger.GetGlobalLogger().WithComponent("rules").WithField("path", path),
	}
	book, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = book
	return l, nil
}

// Book returns the latest successfully loaded rule book.
func (l *Loader) Book() *Book {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// RulesFor returns the effective rules for caseID from the current book.
func (l *Loader) RulesFor(caseID string) []models.Rule {
	return l.Book().RulesFor(caseID)
}

// OnChange registers a callback invoked after every successful reload.
func (l *Loader) OnChange(fn func(*Book)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Reload forces an immediate re-read of the rule book.
func (l *Loader) Reload() (*Book, error) {
	book, err := l.load()
	if err != nil {
		return nil, err
	}
	l.swap(book)
	return book, nil
}

// Watch hot-reloads the book when its file is written or replaced. The
// parent directory is watched so editors that rename over the file are
// picked up. Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "rules.watch", l.path, err)
	}
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		w.Close()
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "rules.watch", l.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != l.path {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if _, err := l.Reload(); err != nil {
					l.logger.WithError(err).Warn("Rule book reload failed, keeping previous rules")
					continue
				}
				l.logger.Info("Rule book reloaded")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.WithError(err).Warn("Rule book watcher error")
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

func (l *Loader) swap(book *Book) {
	l.mu.Lock()
	l.current = book
	callbacks := make([]func(*Book), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(book)
	}
}

func (l *Loader) load() (*Book, error) {
	data, err := afero.ReadFile(l.fs, l.path)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "rules.file", l.path,
			fmt.Errorf("read rule book: %w", err))
	}
	book, err := Parse(data)
	if err != nil {
		if rf, ok := errors.AsRedflagError(err); ok {
			rf.WithContext("path", l.path)
		}
		return nil, err
	}
	return book, nil
}
