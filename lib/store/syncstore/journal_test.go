package syncstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/store/oplog"
	storetesting "github.com/ValentinKolb/sKV/lib/store/testing"
)

func openJournal(t *testing.T, path string) *FileJournal {
	t.Helper()
	j, err := OpenFileJournal(path, false)
	if err != nil {
		t.Fatalf("Unexpected error opening journal: %v", err)
	}
	return j
}

func TestFileJournalLoadPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync", "journal")

	j := openJournal(t, path)
	if ops, err := j.Load(); err != nil || len(ops) != 0 {
		t.Fatalf("Expected an empty journal, got %v (err=%v)", ops, err)
	}

	ops := []oplog.Op{
		oplog.NewWrite("a", []byte("1")),
		oplog.NewRemove("b"),
		oplog.NewRemoveAll(),
	}
	for _, op := range ops {
		if err := j.Append(op); err != nil {
			t.Fatalf("Unexpected error during Append: %v", err)
		}
	}
	if err := j.Ack(); err != nil {
		t.Fatalf("Unexpected error during Ack: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Unexpected error during Close: %v", err)
	}

	j = openJournal(t, path)
	defer j.Close()

	pending, err := j.Load()
	if err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending ops, got %d", len(pending))
	}
	if pending[0].ID != ops[1].ID || pending[1].ID != ops[2].ID {
		t.Errorf("Pending ops out of order: %v", pending)
	}

	// acks after a load refer to the compacted file
	if err := j.Ack(); err != nil {
		t.Fatalf("Unexpected error during Ack: %v", err)
	}
	if err := j.Append(oplog.NewWrite("c", nil)); err != nil {
		t.Fatalf("Unexpected error during Append: %v", err)
	}
	j.Close()

	j = openJournal(t, path)
	defer j.Close()
	pending, _ = j.Load()
	if len(pending) != 2 || pending[0].ID != ops[2].ID || pending[1].Key != "c" {
		t.Errorf("Unexpected pending ops after second load: %v", pending)
	}
}

func TestFileJournalTruncatesWhenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")
	j := openJournal(t, path)
	defer j.Close()

	_ = j.Append(oplog.NewWrite("a", []byte("1")))
	_ = j.Append(oplog.NewWrite("b", []byte("2")))
	_ = j.Ack()
	_ = j.Ack()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("Expected an empty file once every op is acked, size is %d", info.Size())
	}

	if err := j.Ack(); err == nil {
		t.Errorf("Expected an error for an ack without pending op")
	}
}

func TestFileJournalTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")
	j := openJournal(t, path)

	first := oplog.NewWrite("a", []byte("1"))
	_ = j.Append(first)
	_ = j.Append(oplog.NewWrite("b", []byte("2")))
	j.Close()

	// cut the last record in half
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second := encodeRecord(recordKindOp, oplog.NewWrite("b", []byte("2")).Serialize())
	if err := os.WriteFile(path, data[:len(data)-len(second)/2], 0o644); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	j = openJournal(t, path)
	defer j.Close()
	pending, err := j.Load()
	if err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Errorf("Expected only the intact op, got %v", pending)
	}
}

func TestFileJournalChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")
	j := openJournal(t, path)

	first := oplog.NewWrite("a", []byte("1"))
	_ = j.Append(first)
	_ = j.Append(oplog.NewWrite("b", []byte("2")))
	j.Close()

	data, _ := os.ReadFile(path)
	data[len(data)-1] ^= 0xFF
	_ = os.WriteFile(path, data, 0o644)

	j = openJournal(t, path)
	defer j.Close()
	pending, err := j.Load()
	if err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Errorf("Expected the corrupt record to be dropped, got %v", pending)
	}
}

func TestSyncStoreRecoversFromJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")

	// first run: remote is down, ops stay pending
	down := storetesting.NewFakeStore()
	down.SetFailure(func(string, []string) error { return errRemoteDown })

	s, err := New(storetesting.NewFakeStore(), down, &Options{Name: "journal-1", Interval: time.Hour, Journal: openJournal(t, path)})
	if err != nil {
		t.Fatalf("Unexpected error during New: %v", err)
	}
	_ = s.Write("a", []byte("1"))
	_ = s.Write("b", []byte("2"))
	_ = s.Remove("a")
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Unexpected error during Close: %v", err)
	}

	// second run: remote is reachable, recovered ops are replicated in order
	remote := storetesting.NewFakeStore()
	s = newTestStore(t, storetesting.NewFakeStore(), remote, &Options{Journal: openJournal(t, path)})

	if err := flush(t, s); err != nil {
		t.Fatalf("Unexpected error during Flush: %v", err)
	}

	if remote.Has("a") || !remote.Has("b") {
		t.Errorf("Unexpected remote state: %v", remote.Keys())
	}
	want := []string{"Write", "Write", "Remove"}
	if got := methods(remote.Calls()); len(got) != 3 || got[0] != want[0] || got[2] != want[2] {
		t.Errorf("Expected calls %v, got %v", want, got)
	}

	info, _ := os.Stat(path)
	if info.Size() != 0 {
		t.Errorf("Expected the journal to be empty after replication, size is %d", info.Size())
	}
}

func TestSyncStoreJournalDeferKeepsOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")

	remote := storetesting.NewFakeStore()
	remote.SetFailure(func(_ string, keys []string) error {
		if len(keys) > 0 && keys[0] == "poison" {
			return errRemoteDown
		}
		return nil
	})

	s, err := New(storetesting.NewFakeStore(), remote, &Options{
		Name:        "journal-defer",
		Interval:    time.Hour,
		Journal:     openJournal(t, path),
		RetryPolicy: deferPolicy{},
	})
	if err != nil {
		t.Fatalf("Unexpected error during New: %v", err)
	}
	_ = s.Write("poison", []byte("x"))
	_ = s.Write("ok", []byte("y"))
	_ = flush(t, s)
	_ = s.Close(context.Background())

	j := openJournal(t, path)
	defer j.Close()
	pending, _ := j.Load()
	if len(pending) != 1 || pending[0].Key != "poison" {
		t.Errorf("Expected only the deferred op in the journal, got %v", pending)
	}
}
