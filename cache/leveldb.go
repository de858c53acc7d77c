package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	dirPerm os.FileMode = 0700

	storePrefix = "s:"
	entryPrefix = "e:"
	keySep      = "\x00"
)

// NewLevelDB returns a Storage persisted in a leveldb database at dir.
//
// Layout: "s:<store>" marks an existing store, "e:<store>\x00<key>" holds the
// JSON encoded response for key in that store.
func NewLevelDB(dir string) (Storage, error) {
	if dir == "" {
		return nil, errors.New("cache dir not provided")
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, errors.Wrap(err, "failed to create cache dir")
		}
	}
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open leveldb cache")
	}

	return newLevelDBStorage(db), nil
}

func newLevelDBStorage(db *leveldb.DB) *levelStorage {
	return &levelStorage{
		db: db,
		m:  &sync.RWMutex{},
	}
}

type levelStorage struct {
	db *leveldb.DB
	// write lock is held while a store is deleted so puts never resurrect
	// entries of a store that is going away
	m *sync.RWMutex
}

type storeMeta struct {
	Created JSONTime `json:"created"`
}

func storeKey(name string) []byte {
	return []byte(storePrefix + name)
}

func entryKeyPrefix(name string) []byte {
	return []byte(entryPrefix + name + keySep)
}

func entryKey(name, key string) []byte {
	return append(entryKeyPrefix(name), key...)
}

func (s *levelStorage) Open(ctx context.Context, name string) (Store, error) {
	if name == "" {
		return nil, errors.New("store name is empty")
	}
	s.m.Lock()
	defer s.m.Unlock()

	ok, err := s.db.Has(storeKey(name), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to look up store %s", name)
	}
	if !ok {
		meta, err := json.Marshal(storeMeta{Created: JSONTime(time.Now())})
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal store metadata")
		}
		if err := s.db.Put(storeKey(name), meta, nil); err != nil {
			return nil, errors.Wrapf(err, "failed to create store %s", name)
		}
	}

	return &levelStore{name: name, s: s}, nil
}

func (s *levelStorage) Names(ctx context.Context) ([]string, error) {
	s.m.RLock()
	defer s.m.RUnlock()

	it := s.db.NewIterator(util.BytesPrefix([]byte(storePrefix)), nil)
	defer it.Release()

	names := []string{}
	for it.Next() {
		names = append(names, string(bytes.TrimPrefix(it.Key(), []byte(storePrefix))))
	}
	if err := it.Error(); err != nil {
		return nil, errors.Wrap(err, "failed to list stores")
	}

	return names, nil
}

func (s *levelStorage) Delete(ctx context.Context, name string) (bool, error) {
	s.m.Lock()
	defer s.m.Unlock()

	ok, err := s.db.Has(storeKey(name), nil)
	if err != nil {
		return false, errors.Wrapf(err, "failed to look up store %s", name)
	}
	if !ok {
		return false, nil
	}

	batch := new(leveldb.Batch)
	it := s.db.NewIterator(util.BytesPrefix(entryKeyPrefix(name)), nil)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return false, errors.Wrapf(err, "failed to list entries of store %s", name)
	}
	batch.Delete(storeKey(name))

	if err := s.db.Write(batch, nil); err != nil {
		return false, errors.Wrapf(err, "failed to delete store %s", name)
	}

	return true, nil
}

func (s *levelStorage) Close() error {
	return s.db.Close()
}

type levelStore struct {
	name string
	s    *levelStorage
}

func (st *levelStore) Name() string {
	return st.name
}

// exists must be called with the storage lock held
func (st *levelStore) exists() error {
	ok, err := st.s.db.Has(storeKey(st.name), nil)
	if err != nil {
		return errors.Wrapf(err, "failed to look up store %s", st.name)
	}
	if !ok {
		return ErrStoreNotFound
	}
	return nil
}

func (st *levelStore) Get(ctx context.Context, key string) (*Response, error) {
	st.s.m.RLock()
	defer st.s.m.RUnlock()

	data, err := st.s.db.Get(entryKey(st.name, key), nil)
	if err == leveldb.ErrNotFound {
		if err := st.exists(); err != nil {
			return nil, err
		}
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read cache entry %s", key)
	}

	resp := &Response{}
	if err := json.Unmarshal(data, resp); err != nil {
		return nil, errors.Wrapf(err, "failed to parse cache entry %s", key)
	}

	return resp, nil
}

func (st *levelStore) Put(ctx context.Context, key string, resp *Response) error {
	return st.PutAll(ctx, map[string]*Response{key: resp})
}

// PutAll writes all entries in a single leveldb batch
func (st *levelStore) PutAll(ctx context.Context, entries map[string]*Response) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "failed to store cache entries")
	}

	batch := new(leveldb.Batch)
	for _, key := range sortedKeys(entries) {
		resp := entries[key]
		if resp == nil {
			return errors.Errorf("no response to store for key %s", key)
		}
		data, err := json.Marshal(stamp(resp))
		if err != nil {
			return errors.Wrapf(err, "failed to marshal cache entry %s", key)
		}
		batch.Put(entryKey(st.name, key), data)
	}

	st.s.m.RLock()
	defer st.s.m.RUnlock()
	if err := st.exists(); err != nil {
		return err
	}
	if err := st.s.db.Write(batch, nil); err != nil {
		return errors.Wrap(err, "failed to write cache entries")
	}

	return nil
}

func (st *levelStore) Keys(ctx context.Context) ([]string, error) {
	st.s.m.RLock()
	defer st.s.m.RUnlock()
	if err := st.exists(); err != nil {
		return nil, err
	}

	prefix := entryKeyPrefix(st.name)
	it := st.s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	keys := []string{}
	for it.Next() {
		keys = append(keys, string(bytes.TrimPrefix(it.Key(), prefix)))
	}
	if err := it.Error(); err != nil {
		return nil, errors.Wrapf(err, "failed to list entries of store %s", st.name)
	}

	return keys, nil
}
