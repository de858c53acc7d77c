package controller

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/chrisvdg/offlinecache/cache"
	"github.com/pkg/errors"
)

// ErrCrossOrigin is returned by HTTPNetwork for requests outside its origin
var ErrCrossOrigin = errors.New("cross-origin fetch refused")

// Network performs fetches on behalf of the controller
type Network interface {
	Fetch(ctx context.Context, req *Request) (*cache.Response, error)
}

// NetworkFunc adapts a function to the Network interface
type NetworkFunc func(ctx context.Context, req *Request) (*cache.Response, error)

// Fetch calls f
func (f NetworkFunc) Fetch(ctx context.Context, req *Request) (*cache.Response, error) {
	return f(ctx, req)
}

// NewHTTPNetwork returns a Network backed by an http.Client.
// Same-origin requests are sent to upstream. Other origins are refused with
// ErrCrossOrigin, the server must not reach arbitrary hosts for its clients.
// A zero timeout leaves fetches unbounded.
func NewHTTPNetwork(origin, upstream *url.URL, timeout time.Duration) (*HTTPNetwork, error) {
	if origin == nil || origin.Host == "" {
		return nil, errors.New("no origin provided")
	}
	if upstream == nil || upstream.Host == "" {
		return nil, errors.New("no upstream provided")
	}

	return &HTTPNetwork{
		origin:   origin,
		upstream: upstream,
		http: &http.Client{
			Timeout: timeout,
			// redirects are handed back to the client untouched
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// HTTPNetwork fetches over HTTP
type HTTPNetwork struct {
	origin   *url.URL
	upstream *url.URL
	http     *http.Client
}

// Fetch sends req and captures the full response
func (n *HTTPNetwork) Fetch(ctx context.Context, req *Request) (*cache.Response, error) {
	if !SameOrigin(req.URL, n.origin) {
		return nil, errors.Wrapf(ErrCrossOrigin, "%s://%s", req.URL.Scheme, req.URL.Host)
	}
	target := n.targetURL(req.URL)

	targetReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), req.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create network request")
	}
	for name, values := range req.Header {
		// the transport negotiates compression itself and decodes the
		// body, so every captured response is stored in identity encoding
		if strings.EqualFold(name, "Host") || strings.EqualFold(name, "Accept-Encoding") {
			continue
		}
		for _, v := range values {
			targetReq.Header.Add(name, v)
		}
	}
	cache.StripHopHeaders(targetReq.Header)

	resp, err := n.http.Do(targetReq)
	if err != nil {
		return nil, errors.Wrapf(err, "network request to %s failed", target)
	}
	defer resp.Body.Close()

	return cache.NewResponse(resp)
}

func (n *HTTPNetwork) targetURL(u *url.URL) *url.URL {
	t := *u
	t.Scheme = n.upstream.Scheme
	t.Host = n.upstream.Host
	if n.upstream.Path != "" && n.upstream.Path != "/" {
		t.Path = path.Join(n.upstream.Path, u.Path)
		if strings.HasSuffix(u.Path, "/") && !strings.HasSuffix(t.Path, "/") {
			t.Path += "/"
		}
		t.RawPath = ""
	}
	return &t
}

// SameOrigin reports whether u has the scheme and host of origin
func SameOrigin(u, origin *url.URL) bool {
	return strings.EqualFold(u.Scheme, origin.Scheme) && strings.EqualFold(u.Host, origin.Host)
}
