package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"codeberg.org/mutker/hostpulse/internal/errors"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// readJSON decodes path into v. A missing file leaves v untouched and
// reports ok=false without error.
func readJSON(path string, v any) (bool, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errFactory.Wrap(ErrReadFailed, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, errFactory.Wrap(ErrCorrupt, err)
	}

	return true, nil
}

// writeJSON replaces path atomically: readers see the old or the new
// document, never a partial one.
func writeJSON(path string, v any) error {
	errFactory := errors.New()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	return nil
}
