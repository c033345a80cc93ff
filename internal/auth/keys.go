package auth

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// ErrNoKeysFile is returned by Reload and Watch when the store has no keys file.
var ErrNoKeysFile = errors.New("no keys file configured")

// KeyStore is the set of accepted API keys. Static keys come from the
// environment; file keys are read from a keys file (one key per line, '#'
// starts a comment) and can be reloaded while the server runs. An empty store
// accepts nothing.
type KeyStore struct {
	fs   afero.Fs
	path string

	mu       sync.RWMutex
	static   map[string]struct{}
	fileKeys map[string]struct{}

	watcher       *fsnotify.Watcher
	watcherActive bool
}

// NewKeyStore builds a store from static keys and an optional keys file.
// A configured file that cannot be read is an error.
func NewKeyStore(fs afero.Fs, static []string, path string) (*KeyStore, error) {
	s := &KeyStore{
		fs:       fs,
		path:     path,
		static:   toSet(static),
		fileKeys: map[string]struct{}{},
	}
	if path != "" {
		if err := s.Reload(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

// Contains reports whether token is an accepted key.
func (s *KeyStore) Contains(token string) bool {
	if token == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.static[token]; ok {
		return true
	}
	_, ok := s.fileKeys[token]
	return ok
}

// Len returns the number of distinct accepted keys.
func (s *KeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.static)
	for k := range s.fileKeys {
		if _, dup := s.static[k]; !dup {
			n++
		}
	}
	return n
}

// Reload re-reads the keys file. On error the previous file keys stay in effect.
func (s *KeyStore) Reload() error {
	if s.path == "" {
		return ErrNoKeysFile
	}
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return fmt.Errorf("read keys file: %w", err)
	}
	keys, err := ParseKeys(data)
	if err != nil {
		return fmt.Errorf("parse keys file %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.fileKeys = toSet(keys)
	s.mu.Unlock()
	slog.Debug("Loaded API keys file", "path", s.path, "keys", len(keys))
	return nil
}

// ParseKeys reads one key per line, skipping blank lines and '#' comments.
func ParseKeys(data []byte) ([]string, error) {
	var keys []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	return keys, sc.Err()
}

// Watch reloads the keys file whenever it changes on disk, until ctx is canceled.
// The parent directory is watched so editors that replace the file are seen.
func (s *KeyStore) Watch(ctx context.Context) error {
	if s.path == "" {
		return ErrNoKeysFile
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcherActive {
		slog.Debug("Keys file watcher already active")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file system watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch keys directory: %w", err)
	}
	s.watcher = watcher
	s.watcherActive = true

	go s.watchFile(ctx, watcher)
	slog.Debug("Started keys file watcher", "path", s.path)
	return nil
}

func (s *KeyStore) watchFile(ctx context.Context, watcher *fsnotify.Watcher) {
	defer func() {
		watcher.Close()
		s.mu.Lock()
		s.watcher = nil
		s.watcherActive = false
		s.mu.Unlock()
		slog.Info("Keys file watcher stopped")
	}()

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			s.handleFileEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Keys file watcher error", "error", err)
		}
	}
}

func (s *KeyStore) handleFileEvent(event fsnotify.Event) {
	switch {
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		if err := s.Reload(); err != nil {
			slog.Error("Failed to reload API keys file", "path", s.path, "error", err)
			return
		}
		slog.Info("Reloaded API keys file", "path", s.path)

	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// Keep serving the last good keys until the file reappears.
		slog.Warn("API keys file removed, keeping previous keys", "path", s.path)
	}
}
