package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/syncstore"
	storetesting "github.com/ValentinKolb/sKV/lib/store/testing"
	"github.com/ValentinKolb/sKV/rpc/client"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/serializer"
	"github.com/ValentinKolb/sKV/rpc/transport"
	rpchttp "github.com/ValentinKolb/sKV/rpc/transport/http"
)

// memTransport connects a client directly to the handler of a server, without network
type memTransport struct {
	handler transport.ServerHandleFunc
	down    bool
}

func (m *memTransport) RegisterHandler(handler transport.ServerHandleFunc) { m.handler = handler }
func (m *memTransport) Listen(common.ServerConfig) error                 { return nil }
func (m *memTransport) Shutdown(context.Context) error                   { return nil }
func (m *memTransport) Connect(common.ClientConfig) error                { return nil }
func (m *memTransport) Close() error                                     { return nil }

func (m *memTransport) Send(shardId uint64, req []byte) ([]byte, error) {
	if m.down {
		return nil, errors.New("connection refused")
	}
	return m.handler(shardId, req), nil
}

// newTestServer starts a server with the given shards on an in memory transport
func newTestServer(t *testing.T, s serializer.IRPCSerializer, shards ...common.ServerShard) (*RPCServer, *memTransport) {
	t.Helper()
	tr := &memTransport{}
	srv := NewRPCServer(common.ServerConfig{
		Shards:        shards,
		TimeoutSecond: 5,
		LogLevel:      "error",
		Sync: common.SyncConfig{
			Remote:       common.SyncRemoteRPC,
			Interval:     time.Hour,
			Retry:        common.SyncRetryFixed,
			RPCEndpoints: []string{"localhost:1"},
		},
	}, tr, s)
	if err := srv.Serve(); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, tr
}

func newTestClient(t *testing.T, tr *memTransport, s serializer.IRPCSerializer, shardId uint64) *client.RPCStore {
	t.Helper()
	c, err := client.NewRPCStore(shardId, common.ClientConfig{}, tr, s)
	if err != nil {
		t.Fatalf("NewRPCStore: %v", err)
	}
	return c
}

func TestRPCStoreConformance(t *testing.T) {
	for _, name := range []string{"json", "gob", "binary", "msgpack", "cbor"} {
		s, err := serializer.ByName(name)
		if err != nil {
			t.Fatal(err)
		}
		storetesting.RunIStoreTests(t, "RPCStore/"+name, func(t *testing.T) store.IStore {
			_, tr := newTestServer(t, s, common.ServerShard{ShardID: 1, Type: common.ShardTypeLocalIStore})
			return newTestClient(t, tr, s, 1)
		})
	}
}

func TestUnknownShard(t *testing.T) {
	s := serializer.NewBinarySerializer()
	_, tr := newTestServer(t, s, common.ServerShard{ShardID: 1, Type: common.ShardTypeLocalIStore})
	c := newTestClient(t, tr, s, 2)

	if err := c.Write("k", []byte("v")); err == nil {
		t.Fatal("expected an error for an unknown shard")
	}
	if _, ok := c.Read("k"); ok {
		t.Error("expected absence for a read on an unknown shard")
	}
	if c.LastError() == nil {
		t.Error("expected the failed read to be recorded")
	}
}

func TestClientDegradesWhenServerIsDown(t *testing.T) {
	s := serializer.NewBinarySerializer()
	_, tr := newTestServer(t, s, common.ServerShard{ShardID: 1, Type: common.ShardTypeLocalIStore})
	c := newTestClient(t, tr, s, 1)

	if err := c.Write("k", []byte("v")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	tr.down = true

	err := c.Write("k", []byte("v2"))
	var storeErr *store.Error
	if !errors.As(err, &storeErr) || storeErr.Code != store.RetCUnavailable {
		t.Fatalf("expected an unavailable error, got %v", err)
	}

	if _, ok := c.Read("k"); ok {
		t.Error("Read should report absence")
	}
	if c.Has("k") || c.Count() != 0 {
		t.Error("Has and Count should report absence")
	}
	if keys := c.Keys(); keys == nil || len(keys) != 0 {
		t.Errorf("Keys should be an empty slice, got %v", keys)
	}
	if pairs := c.ReadAllWithKeys(); pairs == nil || len(pairs) != 0 {
		t.Errorf("ReadAllWithKeys should be an empty slice, got %v", pairs)
	}
	if _, ok := c.CreatedAt("k"); ok {
		t.Error("CreatedAt should report absence")
	}
	if c.LastError() == nil {
		t.Error("expected LastError to be set")
	}
}

// TestSyncShardMirrorsToRPCRemote runs two servers: the sync shard of the first one
// is mirrored over http to the local shard of the second one.
func TestSyncShardMirrorsToRPCRemote(t *testing.T) {
	s := serializer.NewBinarySerializer()
	remoteSrv, remoteTr := newTestServer(t, s, common.ServerShard{ShardID: 7, Type: common.ShardTypeLocalIStore})

	// serve the handler of the remote server with the http transport
	httpTr := rpchttp.NewHttpServerTransport()
	httpTr.RegisterHandler(remoteTr.handler)
	httpSrv := httptest.NewServer(httpTr.(interface{ Handler() http.Handler }).Handler())
	t.Cleanup(httpSrv.Close)

	tr := &memTransport{}
	srv := NewRPCServer(common.ServerConfig{
		Shards:        []common.ServerShard{{ShardID: 1, Type: common.ShardTypeSyncIStore}},
		TimeoutSecond: 5,
		LogLevel:      "error",
		Sync: common.SyncConfig{
			Remote:       common.SyncRemoteRPC,
			Interval:     time.Hour,
			Retry:        common.SyncRetryFixed,
			RPCEndpoints: []string{httpSrv.URL},
			RPCShard:     7,
			JournalDir:   t.TempDir(),
		},
	}, tr, s)
	if err := srv.Serve(); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	c := newTestClient(t, tr, s, 1)
	if err := c.WriteMany([]store.KeyValue{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte("2")}}); err != nil {
		t.Fatal(err)
	}
	if err := c.Remove("a"); err != nil {
		t.Fatal(err)
	}

	shardStore, ok := srv.Store(1)
	if !ok {
		t.Fatal("shard 1 missing")
	}
	syncStore, ok := shardStore.(*syncstore.SyncStore)
	if !ok {
		t.Fatalf("expected a sync store, got %T", shardStore)
	}
	if err := syncStore.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	remoteStore, _ := remoteSrv.Store(7)
	keys := remoteStore.Keys()
	sort.Strings(keys)
	if len(keys) != 1 || keys[0] != "b" {
		t.Errorf("expected remote keys [b], got %v", keys)
	}
	if syncStore.Pending() != 0 {
		t.Errorf("expected an empty queue, %d ops pending", syncStore.Pending())
	}
}

func TestInvalidSyncConfig(t *testing.T) {
	srv := NewRPCServer(common.ServerConfig{
		Shards:   []common.ServerShard{{ShardID: 1, Type: common.ShardTypeSyncIStore}},
		LogLevel: "error",
		Sync:     common.SyncConfig{Remote: "s3", Interval: time.Second, Retry: common.SyncRetryFixed},
	}, &memTransport{}, serializer.NewBinarySerializer())

	if err := srv.Serve(); err == nil {
		t.Fatal("expected Serve to fail for an invalid sync remote")
	}
}

func TestNewSyncOptions(t *testing.T) {
	opts, err := NewSyncOptions(common.SyncConfig{
		Interval:    time.Second,
		Retry:       common.SyncRetryBackoff,
		MaxAttempts: 3,
	}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Name != "shard-5" || opts.Journal != nil {
		t.Errorf("unexpected options %+v", opts)
	}
	backoff, ok := opts.RetryPolicy.(*syncstore.ExponentialBackoff)
	if !ok || backoff.MaxAttempts != 3 {
		t.Errorf("expected a backoff policy with 3 attempts, got %#v", opts.RetryPolicy)
	}

	opts, err = NewSyncOptions(common.SyncConfig{Interval: time.Second, Retry: common.SyncRetryFixed, JournalDir: t.TempDir()}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Journal == nil {
		t.Fatal("expected a journal")
	}
	_ = opts.Journal.Close()
	if _, ok := opts.RetryPolicy.(syncstore.FixedInterval); !ok {
		t.Errorf("expected a fixed interval policy, got %#v", opts.RetryPolicy)
	}
}
