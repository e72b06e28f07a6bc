package testing

import (
	"sync"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/db/engines/maple"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/lstore"
)

// Call is a mutating call observed by a FakeStore.
type Call struct {
	Method string
	Keys   []string
}

// FailFunc decides whether a mutating call of a FakeStore fails.
// Returning nil lets the call through.
type FailFunc func(method string, keys []string) error

// FakeStore is an in-memory store.IStore that records every mutating call and can be told
// to fail them. Reads are served by the backing local store.
type FakeStore struct {
	store.IStore

	mu    sync.Mutex
	calls []Call
	fail  FailFunc
}

// NewFakeStore creates an empty FakeStore backed by a maple local store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		IStore: lstore.NewLocalStore(func() db.KVDB {
			return maple.NewMapleDB(&maple.DBOptions{NumShards: 4})
		}),
	}
}

// SetFailure installs fn as failure decision for all following mutating calls (nil = never fail).
func (f *FakeStore) SetFailure(fn FailFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fn
}

// Calls returns a copy of all successful mutating calls in the order they were applied.
func (f *FakeStore) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]Call, len(f.calls))
	copy(calls, f.calls)
	return calls
}

// record checks the failure decision and records the call if it succeeds
func (f *FakeStore) record(method string, keys []string, apply func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(method, keys); err != nil {
			return err
		}
	}
	if err := apply(); err != nil {
		return err
	}
	f.calls = append(f.calls, Call{Method: method, Keys: append([]string(nil), keys...)})
	return nil
}

func (f *FakeStore) Write(key string, value []byte) error {
	return f.record("Write", []string{key}, func() error {
		return f.IStore.Write(key, value)
	})
}

func (f *FakeStore) WriteMany(pairs []store.KeyValue) error {
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key
	}
	return f.record("WriteMany", keys, func() error {
		return f.IStore.WriteMany(pairs)
	})
}

func (f *FakeStore) Remove(key string) error {
	return f.record("Remove", []string{key}, func() error {
		return f.IStore.Remove(key)
	})
}

func (f *FakeStore) RemoveMany(keys []string) error {
	return f.record("RemoveMany", keys, func() error {
		return f.IStore.RemoveMany(keys)
	})
}

func (f *FakeStore) RemoveAll() error {
	return f.record("RemoveAll", nil, func() error {
		return f.IStore.RemoveAll()
	})
}
