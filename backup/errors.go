package backup

import (
	"errors"
	"fmt"
)

// ErrInvalidName is returned for filenames that are not plain backup file
// names inside the backup directory.
var ErrInvalidName = errors.New("invalid backup filename")

// NotFoundError reports a backup file that does not exist.
type NotFoundError struct {
	Filename string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("backup %s not found", e.Filename)
}

// CorruptError reports a backup whose content cannot be restored as is.
type CorruptError struct {
	Filename string
	Table    string
	Reason   string
	Err      error
}

func (e *CorruptError) Error() string {
	msg := "corrupt backup"
	if e.Filename != "" {
		msg += " " + e.Filename
	}
	if e.Table != "" {
		msg += fmt.Sprintf(" (table %s)", e.Table)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptError) Unwrap() error { return e.Err }
