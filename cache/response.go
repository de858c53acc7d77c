package cache

import (
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// hop-by-hop headers are never captured or replayed
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// NewResponse captures status, headers and the full body of an HTTP response.
// The body of resp is consumed but not closed.
func NewResponse(resp *http.Response) (*Response, error) {
	if resp == nil {
		return nil, errors.New("no response to capture")
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	header := resp.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	StripHopHeaders(header)
	// length is recomputed when the body is written out again
	header.Del("Content-Length")

	return &Response{
		Status: resp.StatusCode,
		Header: header,
		Body:   body,
	}, nil
}

// Write replays the captured response onto w
func (r *Response) Write(w http.ResponseWriter) error {
	for name, values := range r.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(r.Status)
	if _, err := w.Write(r.Body); err != nil {
		return errors.Wrap(err, "failed to write response body")
	}

	return nil
}

// StripHopHeaders removes hop-by-hop headers, including the ones named in
// the Connection header
func StripHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
