// Package headers compiles raw "name=value" strings into default request headers.
package headers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"
)

var (
	ErrMissingSeparator = errors.New("missing '=' separator")
	ErrInvalidName      = errors.New("invalid header name")
	ErrInvalidValue     = errors.New("invalid header value")
)

// EntryError reports the first raw entry that failed to compile.
type EntryError struct {
	Index int
	Entry string
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("header #%d %q: %v", e.Index, e.Entry, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// Compile validates every entry and returns the resulting header set.
// Entries are split on the first '='. Nothing is returned unless all entries are valid.
func Compile(raw []string) (http.Header, error) {
	compiled := make(http.Header, len(raw))
	for i, entry := range raw {
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, &EntryError{Index: i, Entry: entry, Err: ErrMissingSeparator}
		}
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, &EntryError{Index: i, Entry: entry, Err: ErrInvalidName}
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return nil, &EntryError{Index: i, Entry: entry, Err: ErrInvalidValue}
		}
		compiled.Add(name, value)
	}
	return compiled, nil
}
