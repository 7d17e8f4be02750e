package engine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/torosent/httpsample/internal/headers"
	"github.com/torosent/httpsample/internal/sample"
)

// recordingServer remembers every request it receives, in arrival order.
type recordingServer struct {
	*httptest.Server
	mu       sync.Mutex
	paths    []string
	methods  []string
	requests []http.Header
}

func newRecordingServer(t *testing.T, body string) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.paths = append(rs.paths, r.URL.Path)
		rs.methods = append(rs.methods, r.Method)
		rs.requests = append(rs.requests, r.Header.Clone())
		rs.mu.Unlock()
		io.WriteString(w, body)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) hits() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.paths)
}

func (rs *recordingServer) seenPaths() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.paths...)
}

// sliceCollector appends samples in the order they arrive.
type sliceCollector struct {
	samples []sample.Sample
}

func (c *sliceCollector) Collect(s sample.Sample) {
	c.samples = append(c.samples, s)
}

func TestRunSingleURL(t *testing.T) {
	server := newRecordingServer(t, "hello")
	var got sliceCollector

	err := New([]string{server.URL + "/a"}).Run(context.Background(), 5, &got)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got.samples) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(got.samples))
	}
	if server.hits() != 5 {
		t.Fatalf("expected 5 requests, got %d", server.hits())
	}
	for i, p := range server.seenPaths() {
		if p != "/a" {
			t.Fatalf("request %d went to %q, want /a", i, p)
		}
	}
	for i, s := range got.samples {
		if s.Status() != http.StatusOK {
			t.Fatalf("sample %d status = %d, want 200", i, s.Status())
		}
		if s.Length().Bytes() != uint64(len("hello")) {
			t.Fatalf("sample %d length = %d, want 5", i, s.Length().Bytes())
		}
		if s.Duration() <= 0 {
			t.Fatalf("sample %d duration = %s, want > 0", i, s.Duration())
		}
	}
}

func TestRunRoundRobin(t *testing.T) {
	server := newRecordingServer(t, "")
	urls := []string{server.URL + "/A", server.URL + "/B", server.URL + "/C"}

	if err := New(urls).Run(context.Background(), 7, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"/A", "/B", "/C", "/A", "/B", "/C", "/A"}
	got := server.seenPaths()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("dispatch order = %v, want %v", got, want)
	}
}

func TestRunZeroRequests(t *testing.T) {
	server := newRecordingServer(t, "")
	calls := 0
	collect := CollectorFunc(func(sample.Sample) { calls++ })

	tests := []struct {
		name string
		e    Engine
	}{
		{"with urls", New([]string{server.URL}).WithHeaders([]string{"X-Test=1"})},
		{"without urls", New(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.e.Run(context.Background(), 0, collect); err != nil {
				t.Fatalf("Run(0) error = %v", err)
			}
		})
	}
	if calls != 0 {
		t.Fatalf("collector called %d times, want 0", calls)
	}
	if server.hits() != 0 {
		t.Fatalf("server saw %d requests, want 0", server.hits())
	}
}

func TestRunAttachesHeaders(t *testing.T) {
	server := newRecordingServer(t, "")
	e := New([]string{server.URL}).WithHeaders([]string{"X-Test=value1", "x-token=a=b"})

	if err := e.Run(context.Background(), 3, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	server.mu.Lock()
	defer server.mu.Unlock()
	if len(server.requests) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(server.requests))
	}
	for i, h := range server.requests {
		if h.Get("X-Test") != "value1" {
			t.Fatalf("request %d X-Test = %q, want value1", i, h.Get("X-Test"))
		}
		if h.Get("X-Token") != "a=b" {
			t.Fatalf("request %d X-Token = %q, want a=b", i, h.Get("X-Token"))
		}
	}
}

func TestRunRedirectToOtherHostDropsCredentials(t *testing.T) {
	var got http.Header
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte("moved"))
	}))
	defer other.Close()
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, other.URL+"/landing", http.StatusFound)
	}))
	defer origin.Close()

	e := New([]string{origin.URL}).WithHeaders([]string{
		"Authorization=Bearer secret",
		"Cookie=session=1",
		"X-Test=value1",
	})
	var samples []sample.Sample
	if err := e.Run(context.Background(), 1, CollectorFunc(func(s sample.Sample) { samples = append(samples, s) })); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(samples) != 1 || samples[0].Status() != http.StatusOK {
		t.Fatalf("samples = %v, want one 200 from the redirect target", samples)
	}
	if v := got.Get("Authorization"); v != "" {
		t.Errorf("Authorization seen by redirect target on another host: %q", v)
	}
	if v := got.Get("Cookie"); v != "" {
		t.Errorf("Cookie seen by redirect target on another host: %q", v)
	}
	if got.Get("X-Test") != "value1" {
		t.Errorf("X-Test = %q, want non-sensitive default kept across redirect", got.Get("X-Test"))
	}
}

func TestRunInvalidHeaderSendsNothing(t *testing.T) {
	tests := []struct {
		name    string
		raw     []string
		wantErr error
	}{
		{"missing separator", []string{"badheader"}, headers.ErrMissingSeparator},
		{"bad name after good entry", []string{"X-Ok=1", "Bad Name=2"}, headers.ErrInvalidName},
		{"bad value", []string{"X-Test=a\nb"}, headers.ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newRecordingServer(t, "")
			var got sliceCollector

			err := New([]string{server.URL}).WithHeaders(tt.raw).Run(context.Background(), 3, &got)

			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Run() error = %v, want *ConfigurationError", err)
			}
			if cfgErr.Field != "headers" {
				t.Fatalf("ConfigurationError.Field = %q, want headers", cfgErr.Field)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if server.hits() != 0 {
				t.Fatalf("server saw %d requests, want 0", server.hits())
			}
			if len(got.samples) != 0 {
				t.Fatalf("got %d samples, want 0", len(got.samples))
			}
		})
	}
}

func TestRunCountsDrainedBytes(t *testing.T) {
	body := strings.Repeat("x", 1234)

	t.Run("chunked response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, body[:600])
			w.(http.Flusher).Flush()
			io.WriteString(w, body[600:])
		}))
		defer server.Close()

		var got sliceCollector
		if err := New([]string{server.URL}).Run(context.Background(), 1, &got); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if n := got.samples[0].Length().Bytes(); n != 1234 {
			t.Fatalf("length = %d, want 1234", n)
		}
	})

	t.Run("declared length ignored", func(t *testing.T) {
		rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
			h := http.Header{}
			h.Set("Content-Length", "99999")
			return &http.Response{
				StatusCode:    http.StatusOK,
				Header:        h,
				ContentLength: 99999,
				Body:          io.NopCloser(strings.NewReader(body)),
				Request:       r,
			}, nil
		})

		var got sliceCollector
		err := New([]string{"http://sampled.test/"}).WithTransport(rt).Run(context.Background(), 1, &got)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if n := got.samples[0].Length().Bytes(); n != 1234 {
			t.Fatalf("length = %d, want 1234", n)
		}
	})
}

func TestRunUnreachableAborts(t *testing.T) {
	live := newRecordingServer(t, "ok")
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	var got sliceCollector
	urls := []string{live.URL, deadURL, live.URL}
	err := New(urls).Run(context.Background(), 6, &got)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Run() error = %v, want *TransportError", err)
	}
	if transportErr.Index != 1 || transportErr.URL != deadURL {
		t.Fatalf("TransportError = %+v, want index 1 url %s", transportErr, deadURL)
	}
	if len(got.samples) != 1 {
		t.Fatalf("expected 1 sample before abort, got %d", len(got.samples))
	}
	if live.hits() != 1 {
		t.Fatalf("expected no requests after abort, live server saw %d", live.hits())
	}
}

func TestRunEmptyURLs(t *testing.T) {
	var got sliceCollector
	err := New(nil).Run(context.Background(), 3, &got)

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Run() error = %v, want *ConfigurationError", err)
	}
	if !errors.Is(err, ErrNoURLs) {
		t.Fatalf("Run() error = %v, want ErrNoURLs", err)
	}
	if len(got.samples) != 0 {
		t.Fatalf("got %d samples, want 0", len(got.samples))
	}
}

func TestRunInvalidURLAbortsAtIndex(t *testing.T) {
	server := newRecordingServer(t, "ok")
	tests := []struct {
		name string
		bad  string
	}{
		{"unparsable", "http://[::1"},
		{"relative", "/just/a/path"},
		{"unsupported scheme", "ftp://example.com/file"},
		{"missing host", "http:///nohost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got sliceCollector
			err := New([]string{server.URL, tt.bad}).Run(context.Background(), 4, &got)

			var urlErr *InvalidURLError
			if !errors.As(err, &urlErr) {
				t.Fatalf("Run() error = %v, want *InvalidURLError", err)
			}
			if urlErr.Index != 1 || urlErr.URL != tt.bad {
				t.Fatalf("InvalidURLError = %+v, want index 1 url %q", urlErr, tt.bad)
			}
			if len(got.samples) != 1 {
				t.Fatalf("expected the first sample to stand, got %d samples", len(got.samples))
			}
		})
	}
}

func TestRunUndecodableBodyRecordsZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/binary":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write([]byte{0xff, 0xfe, 0x00, 0xc3})
		case "/unknown-charset":
			w.Header().Set("Content-Type", "text/plain; charset=x-made-up")
			io.WriteString(w, "hello")
		case "/latin1":
			w.Header().Set("Content-Type", "text/plain; charset=iso-8859-1")
			w.Write([]byte{'c', 'a', 'f', 0xe9})
		default:
			io.WriteString(w, "fine")
		}
	}))
	defer server.Close()

	urls := []string{
		server.URL + "/binary",
		server.URL + "/unknown-charset",
		server.URL + "/latin1",
		server.URL + "/text",
	}
	var got sliceCollector
	if err := New(urls).Run(context.Background(), 4, &got); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got.samples) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(got.samples))
	}
	want := []uint64{0, 0, 4, 4}
	for i, s := range got.samples {
		if s.Status() != http.StatusOK {
			t.Fatalf("sample %d status = %d, want 200", i, s.Status())
		}
		if s.Length().Bytes() != want[i] {
			t.Fatalf("sample %d length = %d, want %d", i, s.Length().Bytes(), want[i])
		}
	}
}

func TestRunBodyReadFailureIsSoft(t *testing.T) {
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       io.NopCloser(&failingReader{data: "partial"}),
			Request:    r,
		}, nil
	})

	var got sliceCollector
	err := New([]string{"http://sampled.test/"}).WithTransport(rt).Run(context.Background(), 2, &got)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got.samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got.samples))
	}
	for i, s := range got.samples {
		if s.Length().Bytes() != 0 {
			t.Fatalf("sample %d length = %d, want 0", i, s.Length().Bytes())
		}
	}
}

func TestRunKeepsErrorStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "down")
	}))
	defer server.Close()

	var got sliceCollector
	if err := New([]string{server.URL}).Run(context.Background(), 2, &got); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i, s := range got.samples {
		if s.Status() != http.StatusServiceUnavailable {
			t.Fatalf("sample %d status = %d, want 503", i, s.Status())
		}
	}
}

func TestRunCollectorIsSynchronous(t *testing.T) {
	var mu sync.Mutex
	var events []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		events = append(events, "request")
		mu.Unlock()
	}))
	defer server.Close()

	collect := CollectorFunc(func(sample.Sample) {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		events = append(events, "collect")
		mu.Unlock()
	})
	if err := New([]string{server.URL}).Run(context.Background(), 3, collect); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := "request,collect,request,collect,request,collect"
	if got := strings.Join(events, ","); got != want {
		t.Fatalf("events = %s, want %s", got, want)
	}
}

func TestRunMethod(t *testing.T) {
	server := newRecordingServer(t, "body")

	var got sliceCollector
	e := New([]string{server.URL})
	if e.Method() != MethodGet {
		t.Fatalf("default method = %s, want GET", e.Method())
	}
	e.method = MethodHead
	if err := e.Run(context.Background(), 2, &got); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	server.mu.Lock()
	methods := append([]string(nil), server.methods...)
	server.mu.Unlock()
	for i, m := range methods {
		if m != http.MethodHead {
			t.Fatalf("request %d method = %s, want HEAD", i, m)
		}
	}
	for i, s := range got.samples {
		if s.Length().Bytes() != 0 {
			t.Fatalf("HEAD sample %d length = %d, want 0", i, s.Length().Bytes())
		}
	}

	e.method = Method(42)
	err := e.Run(context.Background(), 1, nil)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "method" {
		t.Fatalf("Run() with unknown method error = %v, want method ConfigurationError", err)
	}
}

func TestRunNegativeRequests(t *testing.T) {
	err := New([]string{"http://example.com"}).Run(context.Background(), -1, nil)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "requests" {
		t.Fatalf("Run(-1) error = %v, want requests ConfigurationError", err)
	}
}

func TestRunClientBuildFailure(t *testing.T) {
	server := newRecordingServer(t, "")
	err := New([]string{server.URL}).WithProxy("ftp://nope").Run(context.Background(), 2, nil)

	var buildErr *ClientBuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("Run() error = %v, want *ClientBuildError", err)
	}
	if server.hits() != 0 {
		t.Fatalf("server saw %d requests, want 0", server.hits())
	}
}

func TestWithMethodsDoNotAlias(t *testing.T) {
	urls := []string{"http://a.test", "http://b.test"}
	base := New(urls)
	urls[0] = "http://mutated.test"

	if got := base.URLs()[0]; got != "http://a.test" {
		t.Fatalf("New() aliased caller slice: %s", got)
	}

	raw := []string{"X-A=1"}
	withHeaders := base.WithHeaders(raw)
	raw[0] = "X-B=2"

	if len(base.Headers()) != 0 {
		t.Fatalf("WithHeaders() mutated receiver: %v", base.Headers())
	}
	if got := withHeaders.Headers(); len(got) != 1 || got[0] != "X-A=1" {
		t.Fatalf("WithHeaders() headers = %v, want [X-A=1]", got)
	}

	paced := withHeaders.WithRate(10)
	if withHeaders.rps != 0 || paced.rps != 10 {
		t.Fatalf("WithRate() mutated receiver: %v/%v", withHeaders.rps, paced.rps)
	}
}

func TestRunRatePacing(t *testing.T) {
	server := newRecordingServer(t, "")

	start := time.Now()
	if err := New([]string{server.URL}).WithRate(50).Run(context.Background(), 3, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// Burst of one: the 2nd and 3rd requests wait ~20ms each.
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Fatalf("paced run finished in %s, want >= 35ms", elapsed)
	}
	if server.hits() != 3 {
		t.Fatalf("expected 3 requests, got %d", server.hits())
	}
}

func TestRunCanceledContext(t *testing.T) {
	server := newRecordingServer(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New([]string{server.URL}).Run(ctx, 2, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Run() error = %T, want *TransportError", err)
	}
}

func TestRunTracing(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	server := newRecordingServer(t, "traced")
	e := New([]string{server.URL}).WithTracer(tp.Tracer("test"), true)
	if err := e.Run(context.Background(), 2, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "GET sample" {
		t.Fatalf("span name = %q, want GET sample", spans[0].Name())
	}

	server.mu.Lock()
	defer server.mu.Unlock()
	for i, h := range server.requests {
		if h.Get("Traceparent") == "" {
			t.Fatalf("request %d missing traceparent header", i)
		}
	}
}

func TestTee(t *testing.T) {
	var order []string
	first := CollectorFunc(func(sample.Sample) { order = append(order, "first") })
	second := CollectorFunc(func(sample.Sample) { order = append(order, "second") })

	Tee(first, nil, second).Collect(sample.Record(200, time.Millisecond, 1))

	if got := strings.Join(order, ","); got != "first,second" {
		t.Fatalf("Tee order = %s, want first,second", got)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// failingReader yields its data once and then fails.
type failingReader struct {
	data string
	done bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.done {
		return 0, errors.New("connection reset")
	}
	f.done = true
	return copy(p, f.data), nil
}
