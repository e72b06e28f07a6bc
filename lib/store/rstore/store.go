package rstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/redis/go-redis/v9"
)

var log = logger.GetLogger("store")

// ErrNilClient is returned by New if no redis client is configured.
var ErrNilClient = errors.New("redis store: nil client")

const (
	fieldCreated = "c"
	fieldUpdated = "u"
)

// Config configures a redis store.
type Config struct {
	Client      redis.UniversalClient
	Prefix      string        // namespace of all redis keys (default "skv")
	Timeout     time.Duration // timeout of a single call (default 5s)
	CloseClient bool          // set true only if the store exclusively owns the client
}

// Store is a store.IStore on top of redis.
//
// For a key K with prefix P the store uses the redis keys
//
//	P:v:K     string with the value
//	P:meta:K  hash with the created-at (c) and updated-at (u) time in unix nanoseconds
//	P:keys    set of all keys
//
// Every mutation runs in a single MULTI/EXEC transaction.
type Store struct {
	rdb         redis.UniversalClient
	prefix      string
	timeout     time.Duration
	closeClient bool
	now         func() time.Time
	lastErr     store.ErrorRecorder
}

// New creates a redis store.
func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "skv"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Store{
		rdb:         cfg.Client,
		prefix:      cfg.Prefix,
		timeout:     cfg.Timeout,
		closeClient: cfg.CloseClient,
		now:         time.Now,
	}, nil
}

// NewFromAddr creates a redis store that owns a new client for the given addresses.
func NewFromAddr(addrs []string, prefix string) (*Store, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: addrs})
	return New(Config{Client: client, Prefix: prefix, CloseClient: true})
}

func (s *Store) valueKey(key string) string { return s.prefix + ":v:" + key }
func (s *Store) metaKey(key string) string  { return s.prefix + ":meta:" + key }
func (s *Store) keysKey() string            { return s.prefix + ":keys" }

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// unavailable wraps a redis error
func unavailable(op string, err error) error {
	return store.Errorf(store.RetCUnavailable, "redis %s: %v", op, err)
}

// failed records a failed read and logs it
func (s *Store) failed(op string, err error) {
	log.Warningf("redis %s failed: %v", op, err)
	s.lastErr.Record(unavailable(op, err))
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *Store) Write(key string, value []byte) error {
	return s.WriteMany([]store.KeyValue{{Key: key, Value: value}})
}

func (s *Store) WriteMany(pairs []store.KeyValue) error {
	if len(pairs) == 0 {
		return nil
	}

	ctx, cancel := s.ctx()
	defer cancel()

	ts := s.now().UnixNano()
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range pairs {
			value := p.Value
			if value == nil {
				value = []byte{}
			}
			pipe.Set(ctx, s.valueKey(p.Key), value, 0)
			pipe.HSetNX(ctx, s.metaKey(p.Key), fieldCreated, ts)
			pipe.HSet(ctx, s.metaKey(p.Key), fieldUpdated, ts)
			pipe.SAdd(ctx, s.keysKey(), p.Key)
		}
		return nil
	})
	if err != nil {
		return unavailable("write", err)
	}
	return nil
}

func (s *Store) Read(key string) ([]byte, bool) {
	ctx, cancel := s.ctx()
	defer cancel()

	value, err := s.rdb.Get(ctx, s.valueKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		s.failed("get", err)
		return nil, false
	}
	return value, true
}

func (s *Store) ReadMany(keys []string) [][]byte {
	pairs := s.ReadManyWithKeys(keys)
	values := make([][]byte, len(pairs))
	for i, p := range pairs {
		values[i] = p.Value
	}
	return values
}

func (s *Store) ReadManyWithKeys(keys []string) []store.KeyValue {
	if len(keys) == 0 {
		return []store.KeyValue{}
	}

	ctx, cancel := s.ctx()
	defer cancel()

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = s.valueKey(k)
	}

	values, err := s.rdb.MGet(ctx, redisKeys...).Result()
	if err != nil {
		s.failed("mget", err)
		return []store.KeyValue{}
	}

	pairs := make([]store.KeyValue, 0, len(keys))
	for i, v := range values {
		switch vv := v.(type) {
		case nil:
			// missing
		case string:
			pairs = append(pairs, store.KeyValue{Key: keys[i], Value: []byte(vv)})
		case []byte:
			pairs = append(pairs, store.KeyValue{Key: keys[i], Value: vv})
		default:
			pairs = append(pairs, store.KeyValue{Key: keys[i], Value: []byte(fmt.Sprint(vv))})
		}
	}
	return pairs
}

func (s *Store) ReadAll() [][]byte {
	return s.ReadMany(s.Keys())
}

func (s *Store) ReadAllWithKeys() []store.KeyValue {
	return s.ReadManyWithKeys(s.Keys())
}

func (s *Store) Remove(key string) error {
	return s.RemoveMany([]string{key})
}

func (s *Store) RemoveMany(keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.removeKeys(ctx, pipe, keys)
		return nil
	})
	if err != nil {
		return unavailable("remove", err)
	}
	return nil
}

func (s *Store) removeKeys(ctx context.Context, pipe redis.Pipeliner, keys []string) {
	members := make([]interface{}, len(keys))
	for i, key := range keys {
		pipe.Del(ctx, s.valueKey(key), s.metaKey(key))
		members[i] = key
	}
	pipe.SRem(ctx, s.keysKey(), members...)
}

// RemoveAll deletes every key that is in the key set when the call starts.
func (s *Store) RemoveAll() error {
	ctx, cancel := s.ctx()
	defer cancel()

	keys, err := s.rdb.SMembers(ctx, s.keysKey()).Result()
	if err != nil {
		return unavailable("removeAll", err)
	}
	if len(keys) == 0 {
		return nil
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.removeKeys(ctx, pipe, keys)
		return nil
	})
	if err != nil {
		return unavailable("removeAll", err)
	}
	return nil
}

func (s *Store) Has(key string) bool {
	ctx, cancel := s.ctx()
	defer cancel()

	n, err := s.rdb.Exists(ctx, s.valueKey(key)).Result()
	if err != nil {
		s.failed("exists", err)
		return false
	}
	return n > 0
}

func (s *Store) Count() int {
	ctx, cancel := s.ctx()
	defer cancel()

	n, err := s.rdb.SCard(ctx, s.keysKey()).Result()
	if err != nil {
		s.failed("scard", err)
		return 0
	}
	return int(n)
}

func (s *Store) Keys() []string {
	ctx, cancel := s.ctx()
	defer cancel()

	keys, err := s.rdb.SMembers(ctx, s.keysKey()).Result()
	if err != nil {
		s.failed("smembers", err)
		return []string{}
	}
	return keys
}

func (s *Store) timestamp(key, field string) (time.Time, bool) {
	ctx, cancel := s.ctx()
	defer cancel()

	raw, err := s.rdb.HGet(ctx, s.metaKey(key), field).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false
	}
	if err != nil {
		s.failed("hget", err)
		return time.Time{}, false
	}

	ns, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.failed("hget", fmt.Errorf("parse timestamp of %s: %w", key, err))
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

func (s *Store) CreatedAt(key string) (time.Time, bool) {
	return s.timestamp(key, fieldCreated)
}

func (s *Store) UpdatedAt(key string) (time.Time, bool) {
	return s.timestamp(key, fieldUpdated)
}

func (s *Store) GetDBInfo() (db.DatabaseInfo, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	n, err := s.rdb.SCard(ctx, s.keysKey()).Result()
	if err != nil {
		return db.DatabaseInfo{}, unavailable("scard", err)
	}

	return db.DatabaseInfo{
		KeyCount: int(n),
		DbType:   db.ImplRedis,
		Metadata: map[string]string{"prefix": s.prefix},
	}, nil
}

// LastError returns the error of the last failed read or query.
func (s *Store) LastError() error {
	return s.lastErr.LastError()
}

// Ping checks the connection to redis.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying redis client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (s *Store) Close() error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			return err
		}
	}
	return nil
}
