package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the config file whenever it changes on disk
type Watcher struct {
	path    string
	fs      *fsnotify.Watcher
	log     zerolog.Logger
	changes chan *Config
	done    chan struct{}
}

// NewWatcher watches path. The directory is watched rather than the file so
// editors that replace the file on save are still seen.
func NewWatcher(path string, log zerolog.Logger) (*Watcher, error) {
	if path == "" {
		path = getConfigPath()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:    filepath.Clean(path),
		fs:      fw,
		log:     log.With().Str("component", "config").Logger(),
		changes: make(chan *Config, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Changes delivers each successfully reloaded config
func (w *Watcher) Changes() <-chan *Config {
	return w.changes
}

// Path returns the watched file
func (w *Watcher) Path() string {
	return w.path
}

// Close stops watching
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	return w.fs.Close()
}

func (w *Watcher) run() {
	defer close(w.changes)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.log.Warn().Err(err).Str("path", w.path).Msg("Config reload failed, keeping previous")
				continue
			}
			w.log.Info().Str("path", w.path).Msg("Config reloaded")
			w.deliver(cfg)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("Config watcher error")
		}
	}
}

// deliver replaces any config the consumer has not picked up yet
func (w *Watcher) deliver(cfg *Config) {
	for {
		select {
		case w.changes <- cfg:
			return
		case <-w.done:
			return
		default:
		}
		select {
		case <-w.changes:
		default:
		}
	}
}
