package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Options tune the client built for a run.
type Options struct {
	// Proxy routes every request through the given URL when set.
	Proxy string
	// Transport replaces the cloned default transport; mostly for tests.
	Transport http.RoundTripper
}

// NewClient builds the client reused for every request of a run. Each request it sends
// carries the given default headers unless the request already sets that name.
func NewClient(defaults http.Header, opts Options) (*http.Client, error) {
	base := opts.Transport
	if base == nil {
		dt, ok := http.DefaultTransport.(*http.Transport)
		if !ok {
			return nil, errors.New("default transport is not *http.Transport")
		}
		transport := dt.Clone()
		if proxy := strings.TrimSpace(opts.Proxy); proxy != "" {
			proxyURL, err := parseProxy(proxy)
			if err != nil {
				return nil, err
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
		base = transport
	} else if strings.TrimSpace(opts.Proxy) != "" {
		return nil, errors.New("proxy cannot be combined with a custom transport")
	}

	return &http.Client{
		Transport: &defaultHeaders{headers: defaults.Clone(), next: base},
	}, nil
}

func parseProxy(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("invalid proxy %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy %q: missing host", raw)
	}
	return u, nil
}

// defaultHeaders is an http.RoundTripper attaching a fixed header set to outgoing requests.
type defaultHeaders struct {
	headers http.Header
	next    http.RoundTripper
}

func (d *defaultHeaders) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(d.headers) == 0 {
		return d.next.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request.
	out := req.Clone(req.Context())
	crossHost := redirectedAway(req)
	for name, values := range d.headers {
		if _, ok := out.Header[name]; ok {
			continue
		}
		if crossHost && sensitiveHeaders[name] {
			continue
		}
		out.Header[name] = append([]string(nil), values...)
	}
	return d.next.RoundTrip(out)
}

// sensitiveHeaders are withheld from redirect hops that leave the original host.
var sensitiveHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Www-Authenticate":    true,
	"Cookie":              true,
	"Cookie2":             true,
}

// redirectedAway reports whether req is a redirect hop whose host:port differs
// from the request that started the chain.
func redirectedAway(req *http.Request) bool {
	if req.Response == nil {
		return false
	}
	first := req
	for first.Response != nil && first.Response.Request != nil {
		first = first.Response.Request
	}
	return !strings.EqualFold(first.URL.Host, req.URL.Host)
}

// CloseIdleConnections forwards to the wrapped transport so http.Client.CloseIdleConnections reaches it.
func (d *defaultHeaders) CloseIdleConnections() {
	type closeIdler interface {
		CloseIdleConnections()
	}
	if c, ok := d.next.(closeIdler); ok {
		c.CloseIdleConnections()
	}
}
