package serve

import (
	"testing"

	"github.com/ValentinKolb/sKV/lib/db/util"
	"github.com/ValentinKolb/sKV/rpc/common"
)

func TestParseShards(t *testing.T) {
	shards, err := parseShards("100=lstore, 200=dstore,300=SSTORE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []common.ServerShard{
		{ShardID: 100, Type: common.ShardTypeLocalIStore},
		{ShardID: 200, Type: common.ShardTypeRaftIStore},
		{ShardID: 300, Type: common.ShardTypeSyncIStore},
	}
	if len(shards) != len(want) {
		t.Fatalf("expected %d shards, got %d", len(want), len(shards))
	}
	for i := range want {
		if shards[i] != want[i] {
			t.Errorf("shard %d: expected %+v, got %+v", i, want[i], shards[i])
		}
	}
}

func TestParseShardsInvalid(t *testing.T) {
	for _, in := range []string{
		"",
		"100",
		"abc=lstore",
		"100=memcache",
		"100=lstore,100=sstore",
	} {
		if _, err := parseShards(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestParseClusterMembers(t *testing.T) {
	members, err := parseClusterMembers("node-1=localhost:63001,node-2=localhost:63002")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := members[util.HashString("node-2", 0)]; got != "localhost:63002" {
		t.Errorf("expected address of node-2, got %q", got)
	}
	if _, err := parseClusterMembers("node-1"); err == nil {
		t.Error("expected error for member without address")
	}
}
