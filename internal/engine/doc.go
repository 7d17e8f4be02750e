// Package engine issues a fixed number of timed HTTP requests and hands one
// [sample.Sample] per request to a caller-supplied [Collector].
//
// # Basic Usage
//
//	e := engine.New([]string{"https://a.example", "https://b.example"}).
//		WithHeaders([]string{"X-Test=value1"})
//	err := e.Run(ctx, 100, engine.CollectorFunc(func(s sample.Sample) {
//		fmt.Println(s)
//	}))
//
// # Run Semantics
//
// A run compiles the raw headers, builds one client, then dispatches the
// requests one after another on the calling goroutine. URL i is
// urls[i % len(urls)]. Each sample's duration covers the exchange and the full
// body drain. The collector is called synchronously, in dispatch order, before
// the next request starts.
//
// Header, client and URL-list problems are reported before any request is sent.
// An invalid URL or a transport failure aborts the run at that iteration;
// samples already delivered stand. There are no retries. A body that cannot be
// read or decoded as text is recorded with length zero and the run continues.
//
// # Errors
//
// Fatal failures are returned as [*ConfigurationError], [*ClientBuildError],
// [*InvalidURLError] or [*TransportError]; all of them unwrap to their cause.
package engine
