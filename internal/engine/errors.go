package engine

import (
	"errors"
	"fmt"
)

// ErrNoURLs is wrapped in a ConfigurationError when requests are asked of an engine without targets.
var ErrNoURLs = errors.New("no target urls configured")

// ConfigurationError reports invalid engine configuration found before any request was sent.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ClientBuildError reports a client that could not be constructed.
type ClientBuildError struct {
	Err error
}

func (e *ClientBuildError) Error() string {
	return fmt.Sprintf("build client: %v", e.Err)
}

func (e *ClientBuildError) Unwrap() error { return e.Err }

// InvalidURLError reports a target that could not be turned into a request.
type InvalidURLError struct {
	Index int
	URL   string
	Err   error
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("request %d: invalid url %q: %v", e.Index, e.URL, e.Err)
}

func (e *InvalidURLError) Unwrap() error { return e.Err }

// TransportError reports a request that got no response at all.
type TransportError struct {
	Index int
	URL   string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request %d to %s: %v", e.Index, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
