// Package pid guards against two daemons sharing one reports directory.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/hostpulse/internal/errors"
	"golang.org/x/sys/unix"
)

const (
	FileName = "hostpulse.pid"
	filePerm = 0o600
	dirPerm  = 0o755
)

type File struct {
	path string
}

func New(dir string) *File {
	return &File{path: filepath.Join(dir, FileName)}
}

func (f *File) Path() string { return f.path }

// Acquire writes the current process ID. It fails with ErrAlreadyRunning
// when the file names another live process; stale or unreadable files
// are replaced.
func (f *File) Acquire() error {
	errFactory := errors.New()
	self := os.Getpid()

	if other, ok := f.read(); ok && other != self && alive(other) {
		return errFactory.WithData(errors.ErrAlreadyRunning, other)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), dirPerm); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.WriteFile(f.path, []byte(strconv.Itoa(self)), filePerm); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Release removes the file if it still holds this process ID.
func (f *File) Release() error {
	if other, ok := f.read(); ok && other != os.Getpid() {
		return nil
	}

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

func (f *File) read() (int, bool) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	return pid, true
}

// alive checks pid with signal 0. EPERM means the process exists but
// belongs to someone else.
func alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
