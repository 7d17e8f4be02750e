// Package httpclient builds the HTTP client used by the sampling engine.
//
// [NewClient] returns an [net/http.Client] whose transport attaches a compiled
// set of default headers to every request, so the dispatch loop never has to
// re-specify them:
//
//	hdrs, err := headers.Compile([]string{"X-Test=value1"})
//	if err != nil {
//		return err
//	}
//	client, err := httpclient.NewClient(hdrs, httpclient.Options{})
//
// The client carries no timeout; a stalled server blocks the caller until the
// request context ends.
package httpclient
