package internal

import (
	"strings"
	"testing"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/oplog"
)

func TestRequiredFeature(t *testing.T) {
	tests := []struct {
		name    string
		opType  oplog.OpType
		want    db.Feature
		wantErr bool
	}{
		{"Write", oplog.OpTWrite, db.FeatureSet, false},
		{"WriteMany", oplog.OpTWriteMany, db.FeatureSet, false},
		{"Remove", oplog.OpTRemove, db.FeatureDelete, false},
		{"RemoveMany", oplog.OpTRemoveMany, db.FeatureDelete, false},
		{"RemoveAll", oplog.OpTRemoveAll, db.FeatureDeleteAll, false},
		{"Unknown", oplog.OpType(0), 0, true},
		{"OutOfRange", oplog.OpType(99), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RequiredFeature(tt.opType)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RequiredFeature() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RequiredFeature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResultData(t *testing.T) {
	tests := []struct {
		op   oplog.Op
		want string
	}{
		{oplog.NewWrite("k", []byte("v")), "write: key=k"},
		{oplog.NewWriteMany([]store.KeyValue{{Key: "a"}, {Key: "b"}}), "writeMany: n=2"},
		{oplog.NewRemove("k"), "removed: key=k"},
		{oplog.NewRemoveMany([]string{"a", "b", "c"}), "removeMany: n=3"},
		{oplog.NewRemoveAll(), "removeAll"},
	}

	for _, tt := range tests {
		if got := string(ResultData(tt.op)); got != tt.want {
			t.Errorf("ResultData(%s) = %q, want %q", tt.op, got, tt.want)
		}
	}

	if got := string(ResultData(oplog.Op{Type: 42})); !strings.HasPrefix(got, "unknown") {
		t.Errorf("Expected an unknown message, got %q", got)
	}
}

func TestQueryTypeString(t *testing.T) {
	for q := QueryTGet; q <= QueryTGetDBInfo; q++ {
		if q.String() == "Unknown" {
			t.Errorf("Query type %d has no name", q)
		}
	}
	if QueryType(200).String() != "Unknown" {
		t.Errorf("Expected Unknown for an invalid query type")
	}
}
