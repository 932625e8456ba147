package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML configuration file and overlays it onto the
// documented defaults. A missing file is not an error: New() defaults are
// returned as-is, matching the engine's "sensible defaults, explicit file
// optional" convention.
func LoadFile(path string) (*Config, error) {
	c := New()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Watcher reloads a Config from disk whenever its backing file changes,
// delivering each successfully validated reload on Changes(). Invalid
// reloads are delivered on Errors() and the previous configuration keeps
// being used.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu       sync.Mutex
	watching bool

	changes chan *Config
	errs    chan error
}

// NewWatcher creates a Watcher for path. Start must be called to begin
// delivering reloads.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create file watcher: %w", err)
	}
	return &Watcher{path: path, watcher: fw, changes: make(chan *Config, 4), errs: make(chan error, 4)}, nil
}

// Changes returns the channel of successfully reloaded configurations.
func (w *Watcher) Changes() <-chan *Config { return w.changes }

// Errors returns the channel of reload failures (parse or validation
// errors); the watcher keeps running after delivering one.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Start begins watching the configuration file's directory for writes. It
// runs until ctx is cancelled, then closes both channels.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return fmt.Errorf("config: watcher already started")
	}
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("config: watch dir %s: %w", dir, err)
	}
	w.watching = true
	w.mu.Unlock()

	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.changes)
	defer close(w.errs)
	defer w.watcher.Close()
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadFile(w.path)
			if err != nil {
				select {
				case w.errs <- err:
				case <-ctx.Done():
					return
				}
				continue
			}
			select {
			case w.changes <- cfg:
			case <-ctx.Done():
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
