// Package pgstore implements store.IStore on a single postgres table using GORM
// (gorm.io/gorm with the gorm.io/driver/postgres driver).
//
// Every key is one row of Record. Writes are upserts (INSERT ... ON CONFLICT (key) DO UPDATE)
// that replace the data and the updated_at column and keep created_at, so the last write
// wins. A batch write is a single statement. Migrate creates the table with GORM's AutoMigrate.
//
// Reads report failures as absence and record them (store.IDiagnostics).
//
// The tests run against a real postgres server and are skipped unless SKV_TEST_POSTGRES_DSN is set.
package pgstore
