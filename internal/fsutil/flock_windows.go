//go:build windows

package fsutil

import "sync"

// FileLock falls back to an in-process mutex on Windows, which has no flock.
type FileLock struct {
	path string
	mu   sync.Mutex
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

func (fl *FileLock) Lock() error {
	fl.mu.Lock()
	return nil
}

func (fl *FileLock) Unlock() error {
	fl.mu.Unlock()
	return nil
}
