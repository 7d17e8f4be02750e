package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/httpsample/internal/sample"
	"github.com/torosent/httpsample/internal/timing"
	"github.com/torosent/httpsample/internal/tracing"
)

// dispatcher holds the per-run state shared by every iteration.
type dispatcher struct {
	urls      []string
	method    string
	client    *http.Client
	tracer    trace.Tracer
	propagate bool
	log       *slog.Logger
}

// exchange is the outcome of one timed request.
type exchange struct {
	status    int
	length    uint64
	err       error
	decodeErr error
}

func (d dispatcher) dispatch(ctx context.Context, i int) (sample.Sample, error) {
	target := d.urls[i%len(d.urls)]

	ctx, span := tracing.StartSampleSpan(ctx, d.tracer, d.method, target, i)

	req, err := d.newRequest(ctx, target)
	if err != nil {
		tracing.EndSpan(span, err)
		return sample.Sample{}, &InvalidURLError{Index: i, URL: target, Err: err}
	}
	if d.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	res, elapsed := timing.Measure(func() exchange {
		resp, err := d.client.Do(req)
		if err != nil {
			return exchange{err: err}
		}
		defer resp.Body.Close()

		n, decodeErr := drainText(resp)
		return exchange{status: resp.StatusCode, length: n, decodeErr: decodeErr}
	})
	if res.err != nil {
		tracing.EndSpan(span, res.err)
		return sample.Sample{}, &TransportError{Index: i, URL: target, Err: res.err}
	}
	if res.decodeErr != nil {
		d.log.Debug("body not readable as text, recording zero length",
			slog.Int("seq", i),
			slog.String("url", target),
			slog.Any("error", res.decodeErr),
		)
	}

	s := sample.Record(uint16(res.status), elapsed, sample.NewContentLength(res.length))
	tracing.EndSpan(span, nil,
		attribute.Int("http.response.status_code", res.status),
		attribute.Int64("http.response.body.size", int64(res.length)),
	)
	d.log.Debug("sample",
		slog.Int("seq", i),
		slog.String("url", target),
		slog.Int("status", res.status),
		slog.Duration("duration", elapsed),
		slog.Uint64("bytes", res.length),
	)
	return s, nil
}

// newRequest parses target lazily so a bad entry only fails when its turn comes.
func (d dispatcher) newRequest(ctx context.Context, target string) (*http.Request, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return http.NewRequestWithContext(ctx, d.method, target, nil)
}
