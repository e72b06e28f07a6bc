package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var log = logger.GetLogger("store")

// DefaultTable is the table used if no table is configured.
const DefaultTable = "skv_records"

// Record is a single key-value pair as stored in postgres.
type Record struct {
	Key       string    `gorm:"primaryKey;type:text" json:"key"`
	Data      []byte    `gorm:"type:bytea" json:"data"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

// Config configures a postgres store.
type Config struct {
	DSN     string
	Table   string        // default DefaultTable
	Timeout time.Duration // timeout of a single call (default 5s)
}

// Store is a store.IStore on top of a single postgres table, accessed with GORM.
type Store struct {
	db      *gorm.DB
	table   string
	timeout time.Duration
	now     func() time.Time
	lastErr store.ErrorRecorder
}

// New opens a connection to postgres. Call Migrate to create the table.
func New(cfg Config) (*Store, error) {
	gdb, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewWithDB(gdb, cfg.Table, cfg.Timeout), nil
}

// NewWithDB creates a store on an existing GORM connection.
func NewWithDB(gdb *gorm.DB, table string, timeout time.Duration) *Store {
	if table == "" {
		table = DefaultTable
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{
		db:      gdb,
		table:   table,
		timeout: timeout,
		now:     time.Now,
	}
}

// Migrate creates the table and its indexes if they don't exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).Table(s.table).AutoMigrate(&Record{})
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// tx runs fn with a table scoped session bounded by the store timeout
func (s *Store) tx(fn func(tx *gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return fn(s.db.WithContext(ctx).Table(s.table))
}

func unavailable(op string, err error) error {
	return store.Errorf(store.RetCUnavailable, "postgres %s: %v", op, err)
}

// failed records a failed read and logs it
func (s *Store) failed(op string, err error) {
	log.Warningf("postgres %s failed: %v", op, err)
	s.lastErr.Record(unavailable(op, err))
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *Store) Write(key string, value []byte) error {
	return s.WriteMany([]store.KeyValue{{Key: key, Value: value}})
}

// WriteMany upserts all pairs in one statement (last write wins, created_at is kept).
func (s *Store) WriteMany(pairs []store.KeyValue) error {
	if len(pairs) == 0 {
		return nil
	}

	now := s.now().UTC()
	pairs = store.DedupeLast(pairs)
	records := make([]Record, len(pairs))
	for i, p := range pairs {
		data := p.Value
		if data == nil {
			data = []byte{}
		}
		records[i] = Record{Key: p.Key, Data: data, CreatedAt: now, UpdatedAt: now}
	}

	err := s.tx(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).Create(&records).Error
	})
	if err != nil {
		return unavailable("write", err)
	}
	return nil
}

func (s *Store) record(key string) (Record, bool) {
	var rec Record
	err := s.tx(func(tx *gorm.DB) error {
		return tx.Where("key = ?", key).First(&rec).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, false
	}
	if err != nil {
		s.failed("read", err)
		return Record{}, false
	}
	return rec, true
}

func (s *Store) Read(key string) ([]byte, bool) {
	rec, ok := s.record(key)
	return rec.Data, ok
}

func (s *Store) ReadMany(keys []string) [][]byte {
	pairs := s.ReadManyWithKeys(keys)
	values := make([][]byte, len(pairs))
	for i, p := range pairs {
		values[i] = p.Value
	}
	return values
}

// ReadManyWithKeys returns the found pairs in the order of keys.
func (s *Store) ReadManyWithKeys(keys []string) []store.KeyValue {
	if len(keys) == 0 {
		return []store.KeyValue{}
	}

	var records []Record
	err := s.tx(func(tx *gorm.DB) error {
		return tx.Select("key", "data").Where("key IN ?", keys).Find(&records).Error
	})
	if err != nil {
		s.failed("readMany", err)
		return []store.KeyValue{}
	}

	byKey := make(map[string][]byte, len(records))
	for _, r := range records {
		byKey[r.Key] = r.Data
	}

	pairs := make([]store.KeyValue, 0, len(records))
	for _, key := range keys {
		if data, ok := byKey[key]; ok {
			pairs = append(pairs, store.KeyValue{Key: key, Value: data})
		}
	}
	return pairs
}

func (s *Store) ReadAll() [][]byte {
	pairs := s.ReadAllWithKeys()
	values := make([][]byte, len(pairs))
	for i, p := range pairs {
		values[i] = p.Value
	}
	return values
}

func (s *Store) ReadAllWithKeys() []store.KeyValue {
	var records []Record
	err := s.tx(func(tx *gorm.DB) error {
		return tx.Select("key", "data").Find(&records).Error
	})
	if err != nil {
		s.failed("readAll", err)
		return []store.KeyValue{}
	}

	pairs := make([]store.KeyValue, len(records))
	for i, r := range records {
		pairs[i] = store.KeyValue{Key: r.Key, Value: r.Data}
	}
	return pairs
}

func (s *Store) Remove(key string) error {
	return s.RemoveMany([]string{key})
}

func (s *Store) RemoveMany(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	err := s.tx(func(tx *gorm.DB) error {
		return tx.Where("key IN ?", keys).Delete(&Record{}).Error
	})
	if err != nil {
		return unavailable("remove", err)
	}
	return nil
}

func (s *Store) RemoveAll() error {
	err := s.tx(func(tx *gorm.DB) error {
		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Record{}).Error
	})
	if err != nil {
		return unavailable("removeAll", err)
	}
	return nil
}

func (s *Store) Has(key string) bool {
	var n int64
	err := s.tx(func(tx *gorm.DB) error {
		return tx.Where("key = ?", key).Limit(1).Count(&n).Error
	})
	if err != nil {
		s.failed("has", err)
		return false
	}
	return n > 0
}

func (s *Store) Count() int {
	var n int64
	err := s.tx(func(tx *gorm.DB) error {
		return tx.Count(&n).Error
	})
	if err != nil {
		s.failed("count", err)
		return 0
	}
	return int(n)
}

func (s *Store) Keys() []string {
	var keys []string
	err := s.tx(func(tx *gorm.DB) error {
		return tx.Pluck("key", &keys).Error
	})
	if err != nil {
		s.failed("keys", err)
		return []string{}
	}
	return keys
}

func (s *Store) CreatedAt(key string) (time.Time, bool) {
	rec, ok := s.record(key)
	return rec.CreatedAt, ok
}

func (s *Store) UpdatedAt(key string) (time.Time, bool) {
	rec, ok := s.record(key)
	return rec.UpdatedAt, ok
}

func (s *Store) GetDBInfo() (db.DatabaseInfo, error) {
	var (
		n    int64
		size int64
	)
	err := s.tx(func(tx *gorm.DB) error {
		if err := tx.Count(&n).Error; err != nil {
			return err
		}
		return s.db.Raw("SELECT pg_total_relation_size(?::regclass)", s.table).Scan(&size).Error
	})
	if err != nil {
		return db.DatabaseInfo{}, unavailable("info", err)
	}

	return db.DatabaseInfo{
		SizeBytes: int(size),
		KeyCount:  int(n),
		DbType:    db.ImplPostgres,
		Metadata:  map[string]string{"table": s.table},
	}, nil
}

// LastError returns the error of the last failed read or query.
func (s *Store) LastError() error {
	return s.lastErr.LastError()
}
