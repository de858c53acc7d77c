package cache

import (
	"net/url"
	"path"
	"sort"
)

// Key returns the cache key for a request URL.
// Only the cleaned path identifies an entry; scheme, host and headers do not.
func Key(u *url.URL) string {
	if u == nil {
		return "/"
	}
	return KeyPath(u.Path)
}

// KeyPath normalises a URL path into a cache key
func KeyPath(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean("/" + p)
	// keep the trailing slash of directory style paths
	if p[len(p)-1] == '/' && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

func sortedKeys(m map[string]*Response) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func inStringSlice(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
