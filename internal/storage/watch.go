package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watchable is implemented by backends whose keys live as files in a directory.
type Watchable interface {
	Dir() string
}

// Watch reports keys modified in dir by other processes until ctx is done.
// Temp files written during atomic replacement are ignored.
func Watch(ctx context.Context, dir string, log *zap.Logger, onChange func(key string)) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("storage: create dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("storage: new watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("storage: watch %s: %w", dir, err)
	}
	log.Debug("watching storage", zap.String("dir", dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if key, ok := keyFromEvent(ev); ok {
				log.Debug("storage changed", zap.String("key", key), zap.String("op", ev.Op.String()))
				onChange(key)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("storage watcher error", zap.Error(err))
		}
	}
}

func keyFromEvent(ev fsnotify.Event) (string, bool) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return "", false
	}
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".tmp-") || name == SQLiteFile {
		return "", false
	}
	name = strings.TrimSuffix(name, encSuffix)
	if validKey(name) != nil {
		return "", false
	}
	return name, true
}
