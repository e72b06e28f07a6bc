package lstore_test

import (
	"testing"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/db/engines/maple"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/lstore"
	storetesting "github.com/ValentinKolb/sKV/lib/store/testing"
)

func newStore(*testing.T) store.IStore {
	return lstore.NewLocalStore(func() db.KVDB {
		return maple.NewMapleDB(nil)
	})
}

func TestLocalStore(t *testing.T) {
	storetesting.RunIStoreTests(t, "LocalStore", newStore)
}

func TestWriteManyLastPairWins(t *testing.T) {
	s := newStore(t)

	err := s.WriteMany([]store.KeyValue{
		{Key: "dup", Value: []byte("first")},
		{Key: "dup", Value: []byte("second")},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if value, _ := s.Read("dup"); string(value) != "second" {
		t.Errorf("Expected the later pair to win, got %q", value)
	}
}

func TestDBInfoKeyCount(t *testing.T) {
	s := newStore(t)
	_ = s.Write("a", []byte("1"))
	_ = s.Write("b", []byte("2"))

	info, err := s.GetDBInfo()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if info.KeyCount != 2 || info.DbType != db.ImplMaple {
		t.Errorf("Unexpected info: %+v", info)
	}
}
