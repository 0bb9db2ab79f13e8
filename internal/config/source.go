package config

import (
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Source yields the configuration in effect. Consumers call Current once per
// tick or sequence and use that value throughout, so a reload never changes
// parameters mid-sequence.
type Source interface {
	Current() *Config
}

// Static is a Source that never changes.
type Static struct {
	cfg *Config
}

// NewStatic wraps cfg in a Source.
func NewStatic(cfg Config) *Static {
	return &Static{cfg: &cfg}
}

// Current returns the wrapped configuration.
func (s *Static) Current() *Config {
	return s.cfg
}

// Watcher is a Source backed by a configuration file that is reloaded when it
// changes on disk.
//
// Invariant: Current always returns a configuration that passed Validate.
type Watcher struct {
	v       *viper.Viper
	logger  *zap.Logger
	current atomic.Pointer[Config]

	mu        sync.Mutex
	listeners []func(*Config)
}

// NewWatcher reads and validates the file at path.
//
// Precondition: path must name a readable YAML configuration file.
// Postcondition: Returns a Watcher holding the validated configuration or a non-nil error.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	v := NewViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	cfg, err := LoadFromViper(v)
	if err != nil {
		return nil, err
	}
	w := &Watcher{v: v, logger: logger}
	w.current.Store(&cfg)
	return w, nil
}

// Current returns the most recently validated configuration.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// OnChange registers fn to be called with every successfully reloaded configuration.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Watch starts watching the configuration file for changes.
func (w *Watcher) Watch() {
	w.v.OnConfigChange(w.handle)
	w.v.WatchConfig()
	w.logger.Info("watching configuration", zap.String("path", w.v.ConfigFileUsed()))
}

// handle is invoked after viper has re-read the file. An invalid file leaves the
// previous configuration in place.
func (w *Watcher) handle(e fsnotify.Event) {
	cfg, err := LoadFromViper(w.v)
	if err != nil {
		w.logger.Warn("ignoring invalid configuration reload",
			zap.String("path", e.Name),
			zap.Error(err),
		)
		return
	}
	w.current.Store(&cfg)
	w.logger.Info("configuration reloaded",
		zap.String("path", e.Name),
		zap.String("op", e.Op.String()),
	)

	w.mu.Lock()
	listeners := make([]func(*Config), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	for _, fn := range listeners {
		fn(&cfg)
	}
}
