package tokensource

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the fallback reload cadence when the file cannot be
// watched.
const DefaultPollInterval = 30 * time.Second

// FileOption configures a file-backed source.
type FileOption func(*fileConfig)

type fileConfig struct {
	logger       *slog.Logger
	pollInterval time.Duration
}

// WithLogger sets the logger for reload diagnostics. If not provided, logs
// are discarded.
func WithLogger(log *slog.Logger) FileOption {
	return func(c *fileConfig) { c.logger = log }
}

// WithPollInterval sets the fallback polling cadence used when the watcher
// is unavailable.
func WithPollInterval(d time.Duration) FileOption {
	return func(c *fileConfig) { c.pollInterval = d }
}

// FileSource reads an SSO token from a file and reloads it when the file
// changes, so rotated tokens are picked up without a restart.
type FileSource struct {
	path string
	log  *slog.Logger

	mu    sync.RWMutex
	token string

	done      chan struct{}
	closeOnce sync.Once
}

var _ Source = (*FileSource)(nil)

// FromFile creates a file-backed source. The file must exist and hold the
// token, surrounding whitespace ignored. The file's directory is watched so
// reloads survive the rename-then-replace pattern token writers use.
func FromFile(path string, opts ...FileOption) (*FileSource, error) {
	cfg := &fileConfig{pollInterval: DefaultPollInterval}
	for _, opt := range opts {
		opt(cfg)
	}
	log := cfg.logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	s := &FileSource{path: path, log: log, done: make(chan struct{})}
	if err := s.reload(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err == nil {
		err = w.Add(filepath.Dir(path))
	}
	if err != nil {
		log.Debug("tokensource.watch.unavailable", slog.String("err", err.Error()))
		go s.runPoll(cfg.pollInterval)
		return s, nil
	}
	go s.runWatch(w)
	return s, nil
}

// Token returns the most recently loaded token.
func (s *FileSource) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", fmt.Errorf("tokensource: no token loaded from %s", s.path)
	}
	return s.token, nil
}

// Close stops watching the file. Idempotent.
func (s *FileSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *FileSource) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("tokensource: read %s: %w", s.path, err)
	}
	token := strings.TrimSpace(string(data))
	s.mu.Lock()
	changed := token != s.token
	s.token = token
	s.mu.Unlock()
	if changed {
		s.log.Debug("tokensource.reloaded", slog.String("path", s.path))
	}
	return nil
}

func (s *FileSource) runWatch(w *fsnotify.Watcher) {
	defer func() {
		// Best-effort watcher close; no actionable error handling path.
		_ = w.Close()
	}()
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.reload(); err != nil {
				// Keep serving the last good token through a rotation gap.
				s.log.Debug("tokensource.reload.fail", slog.String("err", err.Error()))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.log.Debug("tokensource.watch.error", slog.String("err", err.Error()))
		}
	}
}

func (s *FileSource) runPoll(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.reload(); err != nil {
				s.log.Debug("tokensource.reload.fail", slog.String("err", err.Error()))
			}
		}
	}
}
