package server

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chrisvdg/offlinecache/controller"
	"github.com/chrisvdg/offlinecache/rank"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrigin = "https://halal-rating.example"

// upstream serves the application shell. Requests for /app.js fail while
// broken is set.
type upstream struct {
	*httptest.Server
	broken int32
	hits   int32
}

func newUpstream(t *testing.T) *upstream {
	u := &upstream{}
	files := map[string]string{
		"/":                     "<html>shell</html>",
		"/index.html":           "<html>index</html>",
		"/styles.css":           "body{}",
		"/app.js":               "init()",
		"/manifest.webmanifest": "{}",
		"/fotos/logo.png":       "logo",
		"/fotos/unrankt.png":    "unrankt",
		"/sw.js":                "self.addEventListener('fetch', () => {})",
		"/profiles":             "[]",
		"/theme/styles.css":     "body{color:green}",
	}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.hits, 1)
		if r.URL.Path == "/app.js" && atomic.LoadInt32(&u.broken) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			w.Header().Set("Content-Encoding", "gzip")
			zw := gzip.NewWriter(w)
			zw.Write([]byte(body))
			zw.Close()
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(u.Close)
	return u
}

func newTestServer(t *testing.T, up *upstream) *Server {
	cfg := NewConfig()
	cfg.Server.Origin = testOrigin
	cfg.Server.Upstream = up.URL
	cfg.Server.InstallRetry = "10ms"

	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func serve(h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var navigate = http.Header{"Sec-Fetch-Mode": []string{"navigate"}}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(NewConfig())
	assert.Error(t, err)
}

func TestServerServesOffline(t *testing.T) {
	assert := assert.New(t)
	up := newUpstream(t)
	s := newTestServer(t, up)

	s.Start(context.Background())
	require.Equal(t, controller.StateActive, s.Controller().State())
	h := s.Router()

	rec := serve(h, http.MethodGet, "/styles.css", nil)
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("body{}", rec.Body.String())
	assert.Equal("cache-first; hit", rec.Header().Get(cacheHeader))

	rec = serve(h, http.MethodGet, "/", navigate)
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("<html>shell</html>", rec.Body.String())
	assert.Equal("network-first", rec.Header().Get(cacheHeader))

	up.Close()

	rec = serve(h, http.MethodGet, "/fotos/logo.png", nil)
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("logo", rec.Body.String())

	rec = serve(h, http.MethodGet, "/ranking", navigate)
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("<html>shell</html>", rec.Body.String())
	assert.Equal("network-first; fallback", rec.Header().Get(cacheHeader))

	rec = serve(h, http.MethodGet, "/profiles", nil)
	assert.Equal(http.StatusBadGateway, rec.Code)
}

func TestServerPassesThroughLiveRequests(t *testing.T) {
	assert := assert.New(t)
	up := newUpstream(t)
	s := newTestServer(t, up)
	s.Start(context.Background())
	h := s.Router()

	rec := serve(h, http.MethodGet, "/styles.css?v=2", nil)
	assert.Equal("passthrough", rec.Header().Get(cacheHeader))
	assert.Equal("body{}", rec.Body.String())

	rec = serve(h, http.MethodGet, "/profiles", nil)
	assert.Equal("network-only", rec.Header().Get(cacheHeader))
	assert.Equal("[]", rec.Body.String())

	rec = serve(h, http.MethodGet, "/missing.css", nil)
	assert.Equal(http.StatusNotFound, rec.Code)
}

func TestServerRefusesForeignHosts(t *testing.T) {
	assert := assert.New(t)
	var internalHits int32
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&internalHits, 1)
		w.Write([]byte("internal secret"))
	}))
	defer internal.Close()

	up := newUpstream(t)
	s := newTestServer(t, up)
	s.Start(context.Background())
	h := s.Router()

	for _, target := range []string{internal.URL + "/admin", "http://halal-rating.example/styles.css"} {
		rec := serve(h, http.MethodGet, target, nil)
		assert.Equal(http.StatusMisdirectedRequest, rec.Code, target)
		assert.NotContains(rec.Body.String(), "internal secret")
	}
	assert.Zero(atomic.LoadInt32(&internalHits))

	rec := serve(h, http.MethodGet, testOrigin+"/styles.css", nil)
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("cache-first; hit", rec.Header().Get(cacheHeader))
}

func TestServerStoresDecodedBodies(t *testing.T) {
	assert := assert.New(t)
	up := newUpstream(t)
	s := newTestServer(t, up)
	s.Start(context.Background())
	h := s.Router()

	rec := serve(h, http.MethodGet, "/theme/styles.css", http.Header{"Accept-Encoding": []string{"gzip"}})
	assert.Equal("cache-first; miss", rec.Header().Get(cacheHeader))
	assert.Equal("body{color:green}", rec.Body.String())
	assert.Empty(rec.Header().Get("Content-Encoding"))

	rec = serve(h, http.MethodGet, "/theme/styles.css", nil)
	assert.Equal("cache-first; hit", rec.Header().Get(cacheHeader))
	assert.Equal("body{color:green}", rec.Body.String())
	assert.Empty(rec.Header().Get("Content-Encoding"))
}

func TestServiceWorkerScope(t *testing.T) {
	up := newUpstream(t)
	s := newTestServer(t, up)
	s.Start(context.Background())

	rec := serve(s.Router(), http.MethodGet, "/sw.js", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/", rec.Header().Get(swAllowedHeader))

	rec = serve(s.Router(), http.MethodGet, "/app.js", nil)
	assert.Empty(t, rec.Header().Get(swAllowedHeader))
}

func TestStatusHandler(t *testing.T) {
	assert := assert.New(t)
	up := newUpstream(t)
	s := newTestServer(t, up)
	s.Start(context.Background())

	rec := serve(s.Router(), http.MethodGet, "/-/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal("application/json", rec.Header().Get("Content-Type"))

	var st status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal("halal-rating-v6", st.Version)
	assert.Equal(controller.StateActive, st.State)
	assert.Equal(DefaultManifest, st.Manifest)
	assert.Equal([]string{"halal-rating-v6"}, st.Stores)
}

func TestRankHandler(t *testing.T) {
	assert := assert.New(t)
	up := newUpstream(t)
	s := newTestServer(t, up)
	h := s.Router()

	rec := serve(h, http.MethodGet, "/-/rank/875", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info rank.Info
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(rank.Compute(875), info)

	rec = serve(h, http.MethodGet, "/-/rank/99999999999999999999999", nil)
	assert.Equal(http.StatusBadRequest, rec.Code)
}

func TestMetricsHandler(t *testing.T) {
	up := newUpstream(t)
	s := newTestServer(t, up)
	s.Start(context.Background())
	h := s.Router()

	serve(h, http.MethodGet, "/styles.css", nil)

	rec := serve(h, http.MethodGet, "/-/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `offlinecache_requests_total{policy="cache-first",route="static"} 1`), body)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestStartRetriesFailedInstall(t *testing.T) {
	assert := assert.New(t)
	up := newUpstream(t)
	atomic.StoreInt32(&up.broken, 1)
	s := newTestServer(t, up)

	s.Start(context.Background())
	assert.Equal(controller.StateNew, s.Controller().State())

	rec := serve(s.Router(), http.MethodGet, "/styles.css", nil)
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("passthrough", rec.Header().Get(cacheHeader))

	atomic.StoreInt32(&up.broken, 0)
	assert.Eventually(func() bool {
		return s.Controller().State() == controller.StateActive
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCloseStopsRetries(t *testing.T) {
	up := newUpstream(t)
	atomic.StoreInt32(&up.broken, 1)
	s := newTestServer(t, up)

	s.Start(context.Background())
	require.NoError(t, s.Close())
	assert.Equal(t, controller.StateRedundant, s.Controller().State())

	hits := atomic.LoadInt32(&up.hits)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, hits, atomic.LoadInt32(&up.hits))
	assert.NoError(t, s.Close())
}

func TestCacheStatus(t *testing.T) {
	tests := []struct {
		result controller.Result
		want   string
	}{
		{controller.Result{Policy: controller.PolicyPassthrough}, "passthrough"},
		{controller.Result{Policy: controller.PolicyNetworkOnly}, "network-only"},
		{controller.Result{Policy: controller.PolicyNetworkFirst}, "network-first"},
		{controller.Result{Policy: controller.PolicyNetworkFirst, FromCache: true}, "network-first; fallback"},
		{controller.Result{Policy: controller.PolicyCacheFirst}, "cache-first; miss"},
		{controller.Result{Policy: controller.PolicyCacheFirst, FromCache: true}, "cache-first; hit"},
		{controller.Result{Policy: controller.PolicyStaleWhileRevalidate, FromCache: true}, "stale-while-revalidate; hit"},
	}

	for _, tt := range tests {
		r := tt.result
		assert.Equal(t, tt.want, cacheStatus(&r))
	}
}

func TestGetAddrString(t *testing.T) {
	assert.Equal(t, "0.0.0.0:8080", getAddrString(":8080"))
	assert.Equal(t, "127.0.0.1:8080", getAddrString("127.0.0.1:8080"))
}
