package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record id is absent from its collection.
var ErrNotFound = errors.New("record not found")

// StorageReadError reports a document that is missing, unreadable or not
// valid JSON.
type StorageReadError struct {
	Source string
	Err    error
}

func (e *StorageReadError) Error() string {
	return fmt.Sprintf("read store %s: %v", e.Source, e.Err)
}

func (e *StorageReadError) Unwrap() error { return e.Err }

// StorageWriteError reports a failed write of the document.
type StorageWriteError struct {
	Source string
	Err    error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("write store %s: %v", e.Source, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// IsStorageError reports whether err came from reading or writing the store.
func IsStorageError(err error) bool {
	var re *StorageReadError
	var we *StorageWriteError
	return errors.As(err, &re) || errors.As(err, &we)
}
