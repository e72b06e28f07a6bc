package lstore

import (
	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/store"
	"sync/atomic"
	"time"
)

type storeImpl struct {
	db    db.KVDB
	index atomic.Uint64
	now   func() time.Time
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// This works by using a db engine (e.g. maple) from the db package directly.
func NewLocalStore(factory store.DBFactory) store.IStore {
	return &storeImpl{
		db:    factory(),
		index: atomic.Uint64{},
		now:   time.Now,
	}
}

// incAndGetIndex increments the index and returns the new value.
// It is used to ensure that each write operation has a unique index.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *storeImpl) incAndGetIndex() uint64 {
	return s.index.Add(1)
}

func (s *storeImpl) unsupported(op string) error {
	return store.Errorf(store.RetCUnsupportedOperation, "%s operation is not supported", op)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Write(key string, value []byte) error {
	if !s.db.SupportsFeature(db.FeatureSet) {
		return s.unsupported("Write")
	}
	s.db.Set(key, value, s.incAndGetIndex(), s.now().UnixNano())
	return nil
}

func (s *storeImpl) WriteMany(pairs []store.KeyValue) error {
	if !s.db.SupportsFeature(db.FeatureSet) {
		return s.unsupported("WriteMany")
	}

	// all pairs share one index, so a later pair for the same key wins
	idx := s.incAndGetIndex()
	ts := s.now().UnixNano()
	for _, p := range pairs {
		s.db.Set(p.Key, p.Value, idx, ts)
	}
	return nil
}

func (s *storeImpl) Read(key string) ([]byte, bool) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return nil, false
	}
	return s.db.Get(key)
}

func (s *storeImpl) ReadMany(keys []string) [][]byte {
	values := make([][]byte, 0, len(keys))
	for _, key := range keys {
		if val, ok := s.Read(key); ok {
			values = append(values, val)
		}
	}
	return values
}

func (s *storeImpl) ReadManyWithKeys(keys []string) []store.KeyValue {
	pairs := make([]store.KeyValue, 0, len(keys))
	for _, key := range keys {
		if val, ok := s.Read(key); ok {
			pairs = append(pairs, store.KeyValue{Key: key, Value: val})
		}
	}
	return pairs
}

func (s *storeImpl) ReadAll() [][]byte {
	if !s.db.SupportsFeature(db.FeatureRange) {
		return [][]byte{}
	}
	values := make([][]byte, 0, s.db.Count())
	s.db.Range(func(_ string, value []byte) bool {
		values = append(values, value)
		return true
	})
	return values
}

func (s *storeImpl) ReadAllWithKeys() []store.KeyValue {
	if !s.db.SupportsFeature(db.FeatureRange) {
		return []store.KeyValue{}
	}
	pairs := make([]store.KeyValue, 0, s.db.Count())
	s.db.Range(func(key string, value []byte) bool {
		pairs = append(pairs, store.KeyValue{Key: key, Value: value})
		return true
	})
	return pairs
}

func (s *storeImpl) Remove(key string) error {
	if !s.db.SupportsFeature(db.FeatureDelete) {
		return s.unsupported("Remove")
	}
	s.db.Delete(key, s.incAndGetIndex())
	return nil
}

func (s *storeImpl) RemoveMany(keys []string) error {
	if !s.db.SupportsFeature(db.FeatureDelete) {
		return s.unsupported("RemoveMany")
	}
	idx := s.incAndGetIndex()
	for _, key := range keys {
		s.db.Delete(key, idx)
	}
	return nil
}

func (s *storeImpl) RemoveAll() error {
	if !s.db.SupportsFeature(db.FeatureDeleteAll) {
		return s.unsupported("RemoveAll")
	}
	s.db.DeleteAll(s.incAndGetIndex())
	return nil
}

func (s *storeImpl) Has(key string) bool {
	if !s.db.SupportsFeature(db.FeatureHas) {
		return false
	}
	return s.db.Has(key)
}

func (s *storeImpl) Count() int {
	if !s.db.SupportsFeature(db.FeatureRange) {
		return 0
	}
	return s.db.Count()
}

func (s *storeImpl) Keys() []string {
	if !s.db.SupportsFeature(db.FeatureRange) {
		return []string{}
	}
	keys := make([]string, 0, s.db.Count())
	s.db.Range(func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

func (s *storeImpl) CreatedAt(key string) (time.Time, bool) {
	if !s.db.SupportsFeature(db.FeatureTimestamps) {
		return time.Time{}, false
	}
	created, _, ok := s.db.Timestamps(key)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, created), true
}

func (s *storeImpl) UpdatedAt(key string) (time.Time, bool) {
	if !s.db.SupportsFeature(db.FeatureTimestamps) {
		return time.Time{}, false
	}
	_, updated, ok := s.db.Timestamps(key)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, updated), true
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}
