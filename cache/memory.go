package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

// NewMemory returns a Storage that keeps every store in process memory.
// Entries never expire; stores live until deleted or the storage is closed.
func NewMemory() Storage {
	return &memoryStorage{
		stores: make(map[string]*memoryStore),
		m:      &sync.Mutex{},
	}
}

type memoryStorage struct {
	stores map[string]*memoryStore
	closed bool
	m      *sync.Mutex
}

func (s *memoryStorage) Open(ctx context.Context, name string) (Store, error) {
	if name == "" {
		return nil, errors.New("store name is empty")
	}
	s.m.Lock()
	defer s.m.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	st, ok := s.stores[name]
	if !ok {
		st = &memoryStore{
			name:  name,
			items: gocache.New(gocache.NoExpiration, 0),
			m:     &sync.RWMutex{},
		}
		s.stores[name] = st
	}

	return st, nil
}

func (s *memoryStorage) Names(ctx context.Context) ([]string, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	names := make([]string, 0, len(s.stores))
	for name := range s.stores {
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

func (s *memoryStorage) Delete(ctx context.Context, name string) (bool, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	st, ok := s.stores[name]
	if !ok {
		return false, nil
	}
	delete(s.stores, name)
	st.drop()

	return true, nil
}

func (s *memoryStorage) Close() error {
	s.m.Lock()
	defer s.m.Unlock()
	for name, st := range s.stores {
		st.drop()
		delete(s.stores, name)
	}
	s.closed = true

	return nil
}

type memoryStore struct {
	name    string
	items   *gocache.Cache
	deleted bool
	m       *sync.RWMutex
}

func (st *memoryStore) Name() string {
	return st.name
}

func (st *memoryStore) Get(ctx context.Context, key string) (*Response, error) {
	st.m.RLock()
	defer st.m.RUnlock()
	if st.deleted {
		return nil, ErrStoreNotFound
	}

	v, ok := st.items.Get(key)
	if !ok {
		return nil, ErrEntryNotFound
	}
	resp, ok := v.(*Response)
	if !ok {
		return nil, errors.Errorf("unexpected value type %T for key %s", v, key)
	}

	return resp.Clone(), nil
}

func (st *memoryStore) Put(ctx context.Context, key string, resp *Response) error {
	if resp == nil {
		return errors.Errorf("no response to store for key %s", key)
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "failed to store cache entry")
	}
	st.m.Lock()
	defer st.m.Unlock()
	if st.deleted {
		return ErrStoreNotFound
	}
	st.items.Set(key, stamp(resp), gocache.NoExpiration)

	return nil
}

func (st *memoryStore) PutAll(ctx context.Context, entries map[string]*Response) error {
	for key, resp := range entries {
		if resp == nil {
			return errors.Errorf("no response to store for key %s", key)
		}
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "failed to store cache entries")
	}
	st.m.Lock()
	defer st.m.Unlock()
	if st.deleted {
		return ErrStoreNotFound
	}
	for key, resp := range entries {
		st.items.Set(key, stamp(resp), gocache.NoExpiration)
	}

	return nil
}

func (st *memoryStore) Keys(ctx context.Context) ([]string, error) {
	st.m.RLock()
	defer st.m.RUnlock()
	if st.deleted {
		return nil, ErrStoreNotFound
	}

	items := st.items.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys, nil
}

func (st *memoryStore) drop() {
	st.m.Lock()
	st.deleted = true
	st.items.Flush()
	st.m.Unlock()
}

// stamp returns a private copy of resp with its stored time set
func stamp(resp *Response) *Response {
	c := resp.Clone()
	if c.Stored.Time().IsZero() {
		c.Stored = JSONTime(time.Now())
	}
	return c
}
