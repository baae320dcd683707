package mailbox

import (
	"errors"
	"fmt"
)

// ErrNotFound marks an absent mailbox file. Read translates it into a nil
// document; it only escapes from lower-level helpers.
var ErrNotFound = errors.New("mailbox: no document")

// ErrNoBackup is returned by Restore when there is nothing to restore
var ErrNoBackup = errors.New("mailbox: no backup to restore")

// ReadError reports a mailbox file that exists but cannot be decoded
type ReadError struct {
	Path   string
	Offset int64 // byte offset of the syntax error, -1 when unknown
	Err    error
}

func (e *ReadError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("mailbox: malformed document %s at offset %d: %v", e.Path, e.Offset, e.Err)
	}
	return fmt.Sprintf("mailbox: malformed document %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
