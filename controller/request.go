package controller

import (
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request describes an intercepted fetch
type Request struct {
	Method string
	// URL is always absolute
	URL *url.URL
	// Navigate is set when the client is loading a new top-level document
	Navigate bool
	Header   http.Header
	// Body is only forwarded, never inspected
	Body io.Reader
}

// NewRequest builds the fetch descriptor for an incoming HTTP request.
// Requests in origin-form are resolved against origin; requests carrying an
// absolute URL keep it, which is how cross-origin fetches reach the controller.
func NewRequest(r *http.Request, origin *url.URL) *Request {
	u := *r.URL
	if !u.IsAbs() {
		u.Scheme = origin.Scheme
		u.Host = origin.Host
	}
	u.Fragment = ""

	return &Request{
		Method:   r.Method,
		URL:      &u,
		Navigate: isNavigation(r),
		Header:   r.Header.Clone(),
		Body:     r.Body,
	}
}

// isNavigation uses fetch metadata when the client sends it and falls back
// to the Accept header otherwise
func isNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if strings.EqualFold(mt, "text/html") {
			return true
		}
	}
	return false
}

// GetRequest returns a plain GET descriptor for url, as used for precaching
func GetRequest(u *url.URL) *Request {
	return &Request{
		Method: http.MethodGet,
		URL:    u,
		Header: http.Header{},
	}
}
