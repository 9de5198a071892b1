package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fitremind/internal/fsutil"
	"fitremind/internal/models"

	"github.com/fsnotify/fsnotify"
)

const (
	dataDirPerm  os.FileMode = 0700
	dataFilePerm os.FileMode = 0600
)

// FileStore keeps the record as a JSON file. Writes go through an atomic
// rename and read-modify-write cycles hold an flock, so the server and a
// cron-driven wake process can share the file.
type FileStore struct {
	path string
	mu   sync.Mutex // serializes goroutines; lock serializes processes
	lock *fsutil.FileLock
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), dataDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}
	return &FileStore{
		path: path,
		lock: fsutil.NewFileLock(path + ".lock"),
	}, nil
}

// Path returns the JSON file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (models.Settings, error) {
	return s.read()
}

func (s *FileStore) SaveConfig(ctx context.Context, cfg models.ReminderConfig) error {
	if err := validate(cfg); err != nil {
		return err
	}
	return s.update(func(cur models.Settings) (models.Settings, bool) {
		return models.NewSettings(cfg, cur.Checkpoint), true
	})
}

func (s *FileStore) CompareAndSwapCheckpoint(ctx context.Context, old, next *time.Time) (bool, error) {
	swapped := false
	err := s.update(func(cur models.Settings) (models.Settings, bool) {
		if !sameCheckpoint(cur.Checkpoint, old) {
			return cur, false
		}
		cur.Checkpoint = next
		swapped = true
		return cur, true
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}

func (s *FileStore) update(fn func(models.Settings) (models.Settings, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return unavailable("lock settings", err)
	}
	defer s.lock.Unlock()

	cur, err := s.read()
	if err != nil {
		return err
	}
	next, write := fn(cur)
	if !write {
		return nil
	}

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, dataFilePerm); err != nil {
		return unavailable("write settings", err)
	}
	return nil
}

func (s *FileStore) read() (models.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.DefaultSettings(), nil
		}
		return models.Settings{}, unavailable("read settings", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return models.DefaultSettings(), nil
	}

	var st models.Settings
	if err := json.Unmarshal(data, &st); err != nil {
		return models.Settings{}, unavailable("decode settings", err)
	}
	return st, nil
}

// Watch calls onChange whenever the settings file is replaced or written,
// until ctx is done. The directory is watched because atomic writes swap
// the file's inode.
func (s *FileStore) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					onChange()
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}
