package container

import (
	"errors"
	"fmt"
)

// ErrStop can be returned from a Walk callback to end the walk early without error.
var ErrStop = errors.New("container: stop walk")

// ErrEntryTooLarge is the cause of a FormatError for an entry that decompresses
// past the configured limit.
var ErrEntryTooLarge = errors.New("entry exceeds size limit")

// FormatError reports a stream that is not a readable ZIP package: wrong
// signature, truncated header or data, unsupported method, or a checksum mismatch.
type FormatError struct {
	Offset int64  // byte offset in the input where the problem was detected
	Entry  string // entry name, empty when the failure is outside an entry
	Reason string
	Err    error // underlying cause, may be nil
}

func (e *FormatError) Error() string {
	msg := "container: " + e.Reason
	if e.Entry != "" {
		msg = fmt.Sprintf("container: %s: %s", e.Entry, e.Reason)
	}
	msg = fmt.Sprintf("%s (offset %d)", msg, e.Offset)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// IsFormatError reports whether err is or wraps a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
