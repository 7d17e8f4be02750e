package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/torosent/httpsample/internal/headers"
	"github.com/torosent/httpsample/internal/httpclient"
	"github.com/torosent/httpsample/internal/sample"
)

// Method is the HTTP verb used for every request of a run.
type Method int

const (
	// MethodGet issues GET requests; it is the default for every Engine.
	MethodGet Method = iota
	// MethodHead issues HEAD requests, so every sample drains an empty body.
	MethodHead
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return http.MethodGet
	case MethodHead:
		return http.MethodHead
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

func (m Method) valid() bool {
	return m == MethodGet || m == MethodHead
}

// Engine is an immutable sampling configuration. The With methods return
// modified copies and never touch the receiver.
type Engine struct {
	urls    []string
	headers []string
	method  Method

	logger    *slog.Logger
	tracer    trace.Tracer
	propagate bool
	rps       float64
	proxy     string
	transport http.RoundTripper
}

// New returns an engine targeting urls with no extra headers, issuing GET requests.
func New(urls []string) Engine {
	return Engine{
		urls:   append([]string(nil), urls...),
		method: MethodGet,
	}
}

// URLs returns a copy of the configured targets.
func (e Engine) URLs() []string {
	return append([]string(nil), e.urls...)
}

// Headers returns a copy of the raw header entries.
func (e Engine) Headers() []string {
	return append([]string(nil), e.headers...)
}

// Method returns the configured verb.
func (e Engine) Method() Method {
	return e.method
}

// WithHeaders replaces the raw "name=value" header entries. They are validated by Run.
func (e Engine) WithHeaders(raw []string) Engine {
	e.headers = append([]string(nil), raw...)
	return e
}

// WithLogger sets the logger used for run progress. A nil logger discards output.
func (e Engine) WithLogger(logger *slog.Logger) Engine {
	e.logger = logger
	return e
}

// WithTracer records one client span per request. With propagate set, W3C
// trace context headers are added to each request.
func (e Engine) WithTracer(tracer trace.Tracer, propagate bool) Engine {
	e.tracer = tracer
	e.propagate = propagate
	return e
}

// WithRate paces dispatch to at most rps requests per second. Zero or less disables pacing.
func (e Engine) WithRate(rps float64) Engine {
	e.rps = rps
	return e
}

// WithProxy routes requests through the given proxy URL.
func (e Engine) WithProxy(proxy string) Engine {
	e.proxy = proxy
	return e
}

// WithTransport replaces the network transport of the per-run client.
func (e Engine) WithTransport(rt http.RoundTripper) Engine {
	e.transport = rt
	return e
}

func (e Engine) log() *slog.Logger {
	if e.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.logger
}

func (e Engine) spanTracer() trace.Tracer {
	if e.tracer == nil {
		return noop.NewTracerProvider().Tracer("")
	}
	return e.tracer
}

func (e Engine) limiter() *rate.Limiter {
	if e.rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(e.rps), 1)
}

// Run issues requests sequentially and passes one sample per completed request to collect.
//
// Headers are compiled and the client is built before anything is sent, so a
// configuration problem yields zero requests. A nil collect discards samples.
// ctx is attached to every request; Run never adds a deadline of its own.
func (e Engine) Run(ctx context.Context, requests int, collect Collector) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if collect == nil {
		collect = CollectorFunc(func(sample.Sample) {})
	}
	log := e.log()

	if requests < 0 {
		return &ConfigurationError{Field: "requests", Err: fmt.Errorf("must be non-negative, got %d", requests)}
	}
	if !e.method.valid() {
		return &ConfigurationError{Field: "method", Err: fmt.Errorf("unsupported method %s", e.method)}
	}

	defaults, err := headers.Compile(e.headers)
	if err != nil {
		return &ConfigurationError{Field: "headers", Err: err}
	}

	client, err := httpclient.NewClient(defaults, httpclient.Options{
		Proxy:     e.proxy,
		Transport: e.transport,
	})
	if err != nil {
		return &ClientBuildError{Err: err}
	}
	defer client.CloseIdleConnections()

	if requests > 0 && len(e.urls) == 0 {
		return &ConfigurationError{Field: "urls", Err: ErrNoURLs}
	}

	log.Info("run started",
		slog.Int("requests", requests),
		slog.Int("urls", len(e.urls)),
		slog.String("method", e.method.String()),
		slog.Int("headers", len(e.headers)),
	)

	d := dispatcher{
		urls:      e.urls,
		method:    e.method.String(),
		client:    client,
		tracer:    e.spanTracer(),
		propagate: e.propagate,
		log:       log,
	}
	pace := e.limiter()

	for i := 0; i < requests; i++ {
		if pace != nil {
			if err := pace.Wait(ctx); err != nil {
				log.Error("run aborted", slog.Int("seq", i), slog.Any("error", err))
				return fmt.Errorf("request %d: pacing: %w", i, err)
			}
		}
		s, err := d.dispatch(ctx, i)
		if err != nil {
			log.Error("run aborted", slog.Int("seq", i), slog.Any("error", err))
			return err
		}
		collect.Collect(s)
	}

	log.Info("run finished", slog.Int("samples", requests))
	return nil
}
