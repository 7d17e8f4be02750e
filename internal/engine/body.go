package engine

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
)

var errNotText = errors.New("body is not valid text")

// drainText reads the whole body and reports its byte count. The length is zero,
// with a non-nil error, when the body cannot be read or is not valid text in the
// charset named by Content-Type (UTF-8 when none is given).
func drainText(resp *http.Response) (uint64, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read body: %w", err)
	}
	if err := checkText(body, resp.Header.Get("Content-Type")); err != nil {
		return 0, err
	}
	return uint64(len(body)), nil
}

func checkText(body []byte, contentType string) error {
	label := charset(contentType)
	enc, err := htmlindex.Get(label)
	if err != nil {
		return fmt.Errorf("charset %q: %w", label, err)
	}
	name, _ := htmlindex.Name(enc)
	if name == "utf-8" {
		if !utf8.Valid(body) {
			return errNotText
		}
		return nil
	}
	if _, err := enc.NewDecoder().Bytes(body); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func charset(contentType string) string {
	if contentType == "" {
		return "utf-8"
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "utf-8"
	}
	if cs := strings.TrimSpace(params["charset"]); cs != "" {
		return cs
	}
	return "utf-8"
}
