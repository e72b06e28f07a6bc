// Package rstore implements store.IStore on top of redis (github.com/redis/go-redis/v9).
// It is meant as remote store of a sync store (see the syncstore package).
//
// Every mutation is executed in a single MULTI/EXEC transaction, so a batch write or removal
// is atomic on the redis side. Reads report failures as absence and record them, the last
// one is available through LastError (store.IDiagnostics).
//
// The tests run against a real redis server and are skipped unless SKV_TEST_REDIS_ADDR is set.
package rstore
