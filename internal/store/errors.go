package store

import "codeberg.org/mutker/hostpulse/internal/errors"

const (
	ErrReadFailed  = errors.ErrorCode("store_read_failed")
	ErrWriteFailed = errors.ErrorCode("store_write_failed")
	ErrCorrupt     = errors.ErrorCode("store_corrupt")
	ErrInvalidDate = errors.ErrorCode("store_invalid_date")
)
