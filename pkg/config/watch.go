package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultWatchDelay is how long the watcher waits for a burst of events to
// settle before reporting a change.
const DefaultWatchDelay = 500 * time.Millisecond

// Watcher reports changes to configuration files and directories.
type Watcher struct {
	logger zerolog.Logger
	paths  []string
	delay  time.Duration
}

// NewWatcher creates a watcher over paths. Files and directories may be
// mixed; directories are watched recursively.
func NewWatcher(logger zerolog.Logger, paths ...string) *Watcher {
	return &Watcher{
		logger: logger.With().Str("component", "config-watcher").Logger(),
		paths:  paths,
		delay:  DefaultWatchDelay,
	}
}

// Watch calls onChange after each settled burst of changes until ctx is
// done. It blocks and returns nil when ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace files, so files are watched via their directory.
	files := make(map[string]bool)
	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}

		if info.IsDir() {
			if err := w.watchDirectory(watcher, path); err != nil {
				w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
			}
			continue
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		files[abs] = true
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch file")
		}
	}

	w.logger.Info().Int("paths", len(w.paths)).Msg("Watching configuration")

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event, files) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.watchDirectory(watcher, event.Name)
				}
			}

			w.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Configuration changed")

			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.delay)
			fire = timer.C

		case <-fire:
			fire = nil
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// relevant filters events in watched file directories down to the watched
// files themselves.
func (w *Watcher) relevant(event fsnotify.Event, files map[string]bool) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	if len(files) == 0 {
		return true
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	if files[abs] {
		return true
	}
	// Events from watched directories (not file parents) always count.
	for f := range files {
		if filepath.Dir(f) == filepath.Dir(abs) {
			return false
		}
	}
	return true
}

func (w *Watcher) watchDirectory(watcher *fsnotify.Watcher, dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
