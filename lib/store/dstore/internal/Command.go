package internal

import (
	"fmt"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/store/oplog"
)

// Commands proposed to the raft log are serialized oplog.Op values (see oplog.Op.Serialize).
// This file maps them to the database features they need and builds the result data.

// RequiredFeature returns the db.Feature a database needs to apply an op of the given type.
// This can be used for checking if the database supports a certain operation.
func RequiredFeature(t oplog.OpType) (db.Feature, error) {
	switch t {
	case oplog.OpTWrite, oplog.OpTWriteMany:
		return db.FeatureSet, nil
	case oplog.OpTRemove, oplog.OpTRemoveMany:
		return db.FeatureDelete, nil
	case oplog.OpTRemoveAll:
		return db.FeatureDeleteAll, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", t)
	}
}

// ResultData returns the human readable result message stored in the raft entry result
func ResultData(op oplog.Op) []byte {
	switch op.Type {
	case oplog.OpTWrite:
		return []byte(fmt.Sprintf("write: key=%s", op.Key))
	case oplog.OpTWriteMany:
		return []byte(fmt.Sprintf("writeMany: n=%d", len(op.Pairs)))
	case oplog.OpTRemove:
		return []byte(fmt.Sprintf("removed: key=%s", op.Key))
	case oplog.OpTRemoveMany:
		return []byte(fmt.Sprintf("removeMany: n=%d", len(op.Keys)))
	case oplog.OpTRemoveAll:
		return []byte("removeAll")
	default:
		return []byte(fmt.Sprintf("unknown Command operation: %s", op.Type))
	}
}
