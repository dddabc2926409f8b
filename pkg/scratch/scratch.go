package scratch

import (
	"errors"
	"os"
	"sync"

	"github.com/spf13/afero"

	"github.com/proxyforge/certgen/pkg/logging"
)

var (
	ErrClosed = errors.New("scratch: file set already closed")
)

// Set tracks ephemeral files created during a provisioning run. Every
// file placed in the set is removed when the set is closed, whether the
// run completed or aborted. Releasing a file twice, or releasing a file
// that has already been removed from the file system, is a no-op.
type Set struct {
	logger *logging.Logger
	fs     afero.Fs
	dir    string
	mutex  sync.Mutex
	paths  map[string]bool
	closed bool
}

// Creates a new scratch file set rooted at the provided directory. The
// directory is created if it doesn't exist.
func New(logger *logging.Logger, fs afero.Fs, dir string) (*Set, error) {
	if err := fs.MkdirAll(dir, os.ModePerm); err != nil {
		logger.Error(err)
		return nil, err
	}
	return &Set{
		logger: logger,
		fs:     fs,
		dir:    dir,
		paths:  make(map[string]bool),
	}, nil
}

// Writes content to a new tracked file and returns its path
func (set *Set) Put(content []byte) (string, error) {
	set.mutex.Lock()
	defer set.mutex.Unlock()
	if set.closed {
		return "", ErrClosed
	}
	f, err := afero.TempFile(set.fs, set.dir, "certgen-*.cnf")
	if err != nil {
		set.logger.Error(err)
		return "", err
	}
	path := f.Name()
	if _, err := f.Write(content); err != nil {
		f.Close()
		set.fs.Remove(path)
		set.logger.Error(err)
		return "", err
	}
	if err := f.Close(); err != nil {
		set.fs.Remove(path)
		set.logger.Error(err)
		return "", err
	}
	set.paths[path] = true
	return path, nil
}

// Removes a tracked file. Unknown paths and files already removed
// from the file system are ignored.
func (set *Set) Release(path string) {
	set.mutex.Lock()
	defer set.mutex.Unlock()
	set.release(path)
}

// Removes all tracked files. Safe to call more than once.
func (set *Set) Close() {
	set.mutex.Lock()
	defer set.mutex.Unlock()
	for path := range set.paths {
		set.release(path)
	}
	set.closed = true
}

func (set *Set) release(path string) {
	if !set.paths[path] {
		return
	}
	delete(set.paths, path)
	if err := set.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		// Cleanup never aborts the run
		set.logger.Warnf("scratch: %s", err)
	}
}
