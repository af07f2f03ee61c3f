package fields

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// WatcherConfig holds configuration for a rules Watcher.
type WatcherConfig struct {
	// Path is the YAML rules file to follow.
	Path string

	// DebounceInterval is how long the file must stay quiet before it is
	// reloaded. Editors often write a file in several steps.
	DebounceInterval time.Duration

	// Logger for reload activity. Nil disables logging.
	Logger *zerolog.Logger

	// OnReload, if set, is called after every reload attempt.
	OnReload func(Rules, error)
}

// Watcher reloads a Sanitizer's rules whenever the rules file changes.
// A file that fails to parse leaves the previous rules in place.
type Watcher struct {
	config    WatcherConfig
	sanitizer *Sanitizer
	logger    zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher for cfg.Path feeding s.
// The watcher must be started with Start() before it reacts to changes.
func NewWatcher(s *Sanitizer, cfg WatcherConfig) (*Watcher, error) {
	if s == nil {
		return nil, fmt.Errorf("sanitizer cannot be nil")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("rules path cannot be empty")
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 100 * time.Millisecond
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "rules-watcher").Logger()
	}

	return &Watcher{
		config:    cfg,
		sanitizer: s,
		logger:    logger,
		watcher:   fw,
		done:      make(chan struct{}),
	}, nil
}

// Start loads the rules file once and begins watching it.
// The parent directory is watched so that atomic renames are seen.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if err := w.reload(); err != nil {
		return err
	}

	dir := filepath.Dir(w.config.Path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch rules directory %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	w.logger.Info().Str("path", w.config.Path).Msg("watching field rules")
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	target := filepath.Clean(w.config.Path)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.config.DebounceInterval)
			} else {
				timer.Reset(w.config.DebounceInterval)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := w.reload(); err != nil {
				w.logger.Error().Err(err).Msg("keeping previous field rules")
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) reload() error {
	r, err := LoadRules(w.config.Path)
	if err == nil {
		w.sanitizer.SetRules(r)
		w.logger.Info().Int("excluded", len(r.Excluded)).Int("dates", len(r.Dates)).Msg("field rules loaded")
	}
	if w.config.OnReload != nil {
		w.config.OnReload(r, err)
	}
	return err
}
