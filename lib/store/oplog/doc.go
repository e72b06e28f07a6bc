// Package oplog implements the operation log of sKV.
//
// An Op records one mutation of a store (write, batch write, remove, batch remove or
// remove all) as a self-contained value that can be replayed against any store.IStore
// with Op.Apply. Ops are created by the sync store for every successful local mutation
// and replayed in submission order against the remote store. The same binary encoding
// (Op.Serialize / Op.Deserialize) is used by the sync store journal and as the raft log
// entry of the dstore package.
package oplog
