package controller

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/chrisvdg/offlinecache/cache"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var errOffline = errors.New("network unreachable")

// fakeNetwork answers by path and records every fetched URL
type fakeNetwork struct {
	m         sync.Mutex
	responses map[string]*cache.Response
	offline   bool
	calls     []string
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{responses: map[string]*cache.Response{}}
}

func (n *fakeNetwork) serve(urlStr string, status int, body string) {
	n.m.Lock()
	defer n.m.Unlock()
	n.responses[urlStr] = &cache.Response{
		Status: status,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte(body),
	}
}

func (n *fakeNetwork) setOffline(offline bool) {
	n.m.Lock()
	n.offline = offline
	n.m.Unlock()
}

func (n *fakeNetwork) callCount() int {
	n.m.Lock()
	defer n.m.Unlock()
	return len(n.calls)
}

func (n *fakeNetwork) Fetch(ctx context.Context, req *Request) (*cache.Response, error) {
	n.m.Lock()
	defer n.m.Unlock()
	u := *req.URL
	u.RawQuery = ""
	n.calls = append(n.calls, req.URL.String())
	if n.offline {
		return nil, errOffline
	}
	resp, ok := n.responses[u.String()]
	if !ok {
		return &cache.Response{Status: http.StatusNotFound, Header: http.Header{}, Body: []byte("not found")}, nil
	}
	return resp.Clone(), nil
}

// countingStorage counts every call into the cache API
type countingStorage struct {
	cache.Storage
	m     sync.Mutex
	calls int
	// failPuts makes every store write fail
	failPuts bool
}

func (s *countingStorage) count() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.calls
}

func (s *countingStorage) inc() {
	s.m.Lock()
	s.calls++
	s.m.Unlock()
}

func (s *countingStorage) Open(ctx context.Context, name string) (cache.Store, error) {
	st, err := s.Storage.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingStore{Store: st, s: s}, nil
}

type countingStore struct {
	cache.Store
	s *countingStorage
}

func (st *countingStore) Get(ctx context.Context, key string) (*cache.Response, error) {
	st.s.inc()
	return st.Store.Get(ctx, key)
}

func (st *countingStore) Put(ctx context.Context, key string, resp *cache.Response) error {
	st.s.inc()
	if st.s.failPuts {
		return errors.New("quota exceeded")
	}
	return st.Store.Put(ctx, key, resp)
}

const (
	testOrigin  = "https://halal-rating.example"
	testVersion = "halal-rating-v6"
)

func mustURL(t *testing.T, s string) *url.URL {
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u
}

func testConfig(t *testing.T, manifest ...string) Config {
	return Config{
		Version:  testVersion,
		Origin:   mustURL(t, testOrigin),
		Manifest: manifest,
	}
}

func getRequest(t *testing.T, rawURL string) *Request {
	return GetRequest(mustURL(t, rawURL))
}

func navigationRequest(t *testing.T, rawURL string) *Request {
	req := getRequest(t, rawURL)
	req.Navigate = true
	return req
}

// newActiveController returns an installed and activated controller whose
// network serves every manifest path
func newActiveController(t *testing.T, manifest ...string) (*Controller, *fakeNetwork, *countingStorage) {
	net := newFakeNetwork()
	for _, p := range manifest {
		net.serve(testOrigin+p, http.StatusOK, "asset "+p)
	}
	storage := &countingStorage{Storage: cache.NewMemory()}
	t.Cleanup(func() { storage.Close() })

	c, err := New(testConfig(t, manifest...), storage, net)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	ctx := context.Background()
	require.NoError(t, c.Install(ctx))
	require.NoError(t, c.Activate(ctx))

	return c, net, storage
}

func storeKeys(t *testing.T, s cache.Storage, name string) []string {
	st, err := s.Open(context.Background(), name)
	require.NoError(t, err)
	keys, err := st.Keys(context.Background())
	require.NoError(t, err)
	return keys
}
