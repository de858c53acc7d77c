package controller

import (
	"net/http"
	"path"
	"strings"

	"github.com/chrisvdg/offlinecache/cache"
)

// Policy is the caching strategy applied to a class of requests
type Policy string

const (
	// PolicyPassthrough lets the network handle the request, no cache involved
	PolicyPassthrough Policy = "passthrough"
	// PolicyNetworkFirst fetches and falls back to the cached document index
	PolicyNetworkFirst Policy = "network-first"
	// PolicyCacheFirst serves cached copies and fills the cache on a miss
	PolicyCacheFirst Policy = "cache-first"
	// PolicyNetworkOnly fetches from the network without consulting the cache
	PolicyNetworkOnly Policy = "network-only"
	// PolicyStaleWhileRevalidate serves cached copies and refreshes them in
	// the background. Only used by routes that opt in to it.
	PolicyStaleWhileRevalidate Policy = "stale-while-revalidate"
)

// Predicate reports whether a request belongs to a route
type Predicate func(req *Request) bool

// Route binds a request class to a policy
type Route struct {
	Name   string
	Match  Predicate
	Policy Policy
}

// Routes is an ordered route table, the first matching route wins
type Routes []Route

// DefaultRoute is used when no route in a table matches
var DefaultRoute = Route{
	Name:   "default",
	Match:  func(*Request) bool { return true },
	Policy: PolicyNetworkOnly,
}

// Classify returns the first route matching req
func (rs Routes) Classify(req *Request) Route {
	for _, r := range rs {
		if r.Match(req) {
			return r
		}
	}
	return DefaultRoute
}

// DefaultRoutes returns the route table for cfg.
// cfg is expected to have passed through Config.withDefaults.
func DefaultRoutes(cfg Config) Routes {
	routes := Routes{
		{Name: "non-get", Match: NotGet(), Policy: PolicyPassthrough},
		{Name: "cross-origin", Match: CrossOrigin(cfg.Origin.Scheme, cfg.Origin.Host), Policy: PolicyPassthrough},
		{Name: "query", Match: HasQuery(), Policy: PolicyPassthrough},
		{Name: "sensitive", Match: AnySegment(cfg.SensitiveSegments...), Policy: PolicyPassthrough},
		{Name: "live-config", Match: PathIs(cfg.ConfigPath), Policy: PolicyPassthrough},
		{Name: "navigation", Match: Navigation(), Policy: PolicyNetworkFirst},
	}
	if len(cfg.StaleWhileRevalidate) > 0 {
		routes = append(routes, Route{
			Name:   "revalidate",
			Match:  Extension(cfg.StaleWhileRevalidate...),
			Policy: PolicyStaleWhileRevalidate,
		})
	}
	routes = append(routes,
		Route{Name: "static", Match: InManifest(cfg.Manifest), Policy: PolicyCacheFirst},
		DefaultRoute,
	)

	return routes
}

// NotGet matches every non-GET request
func NotGet() Predicate {
	return func(req *Request) bool {
		return req.Method != http.MethodGet
	}
}

// CrossOrigin matches requests whose scheme or host differ from the given origin
func CrossOrigin(scheme, host string) Predicate {
	return func(req *Request) bool {
		return !strings.EqualFold(req.URL.Scheme, scheme) || !strings.EqualFold(req.URL.Host, host)
	}
}

// HasQuery matches any request carrying a query string, even an empty one
func HasQuery() Predicate {
	return func(req *Request) bool {
		return req.URL.RawQuery != "" || req.URL.ForceQuery
	}
}

// AnySegment matches requests with a path segment equal to one of segments,
// ignoring case
func AnySegment(segments ...string) Predicate {
	want := make(map[string]struct{}, len(segments))
	for _, s := range segments {
		want[strings.ToLower(strings.Trim(s, "/"))] = struct{}{}
	}
	return func(req *Request) bool {
		for _, seg := range strings.Split(req.URL.Path, "/") {
			if _, ok := want[strings.ToLower(seg)]; ok && seg != "" {
				return true
			}
		}
		return false
	}
}

// PathIs matches requests for exactly p
func PathIs(p string) Predicate {
	key := cache.KeyPath(p)
	return func(req *Request) bool {
		return cache.Key(req.URL) == key
	}
}

// Navigation matches top-level document loads
func Navigation() Predicate {
	return func(req *Request) bool {
		return req.Navigate
	}
}

// InManifest matches requests for a manifest path, either exactly or by
// ending in a manifest path. The root path only ever matches exactly.
func InManifest(manifest []string) Predicate {
	exact := make(map[string]struct{}, len(manifest))
	suffixes := []string{}
	for _, p := range manifest {
		key := cache.KeyPath(p)
		exact[key] = struct{}{}
		if key != "/" {
			suffixes = append(suffixes, key)
		}
	}
	return func(req *Request) bool {
		key := cache.Key(req.URL)
		if _, ok := exact[key]; ok {
			return true
		}
		for _, s := range suffixes {
			if strings.HasSuffix(key, s) {
				return true
			}
		}
		return false
	}
}

// Extension matches requests whose file extension is one of exts
func Extension(exts ...string) Predicate {
	want := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		want[e] = struct{}{}
	}
	return func(req *Request) bool {
		_, ok := want[strings.ToLower(path.Ext(req.URL.Path))]
		return ok
	}
}
