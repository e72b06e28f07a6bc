package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/oplog"
	"github.com/ValentinKolb/sKV/lib/store/pgstore"
	"github.com/ValentinKolb/sKV/lib/store/reststore"
	"github.com/ValentinKolb/sKV/lib/store/rstore"
	"github.com/ValentinKolb/sKV/lib/store/syncstore"
	"github.com/ValentinKolb/sKV/rpc/client"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/serializer"
	"github.com/ValentinKolb/sKV/rpc/transport/http"
)

// remoteStore is a store that is mirrored to and owns a connection
type remoteStore interface {
	store.IStore
	io.Closer
}

// NewSyncRemote creates the remote store a sync shard is mirrored to.
// Every shard gets its own namespace on the remote: its own redis prefix, postgres table,
// REST table or remote shard (unless SyncConfig.RPCShard is set).
// The rpc remote talks to the remote server with s, both servers must use the same serializer.
func NewSyncRemote(cfg common.SyncConfig, shardID uint64, timeout time.Duration, s serializer.IRPCSerializer) (remoteStore, error) {
	switch cfg.Remote {
	case common.SyncRemoteRPC:
		remoteShard := cfg.RPCShard
		if remoteShard == 0 {
			remoteShard = shardID
		}
		rpcStore, err := client.NewRPCStore(
			remoteShard,
			common.ClientConfig{
				Endpoints:     cfg.RPCEndpoints,
				TimeoutSecond: max(int(timeout/time.Second), 1),
				RetryCount:    1,
			},
			http.NewHttpClientTransport(),
			s,
		)
		if err != nil {
			return nil, err
		}
		return rpcStore, nil

	case common.SyncRemoteRedis:
		prefix := cfg.RedisPrefix
		if prefix == "" {
			prefix = "skv"
		}
		redisStore, err := rstore.NewFromAddr(strings.Split(cfg.RedisAddr, ","), fmt.Sprintf("%s:%d", prefix, shardID))
		if err != nil {
			return nil, err
		}
		return redisStore, nil

	case common.SyncRemotePostgres:
		pgStore, err := pgstore.New(pgstore.Config{
			DSN:     cfg.PostgresDSN,
			Table:   fmt.Sprintf("%s_%d", pgstore.DefaultTable, shardID),
			Timeout: timeout,
		})
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := pgStore.Migrate(ctx); err != nil {
			_ = pgStore.Close()
			return nil, fmt.Errorf("failed to migrate postgres table: %w", err)
		}
		return pgStore, nil

	case common.SyncRemoteREST:
		table := cfg.RestTable
		if table == "" {
			table = fmt.Sprintf("%d", shardID)
		}
		restStore, err := reststore.New(reststore.Config{
			BaseURL: cfg.RestURL,
			Table:   table,
			APIKey:  cfg.RestAPIKey,
			Timeout: timeout,
		})
		if err != nil {
			return nil, err
		}
		return nopCloser{restStore}, nil

	default:
		return nil, fmt.Errorf("invalid sync remote %q", cfg.Remote)
	}
}

// nopCloser adds a Close method to stores without connections of their own
type nopCloser struct {
	store.IStore
}

func (nopCloser) Close() error { return nil }

// LastError forwards to the wrapped store (see store.IDiagnostics)
func (n nopCloser) LastError() error {
	if d, ok := n.IStore.(store.IDiagnostics); ok {
		return d.LastError()
	}
	return nil
}

// NewSyncOptions creates the sync store options of a shard from the sync configuration.
// If a journal directory is configured, the journal of the shard is opened in it.
func NewSyncOptions(cfg common.SyncConfig, shardID uint64) (*syncstore.Options, error) {
	opts := &syncstore.Options{
		Name:         fmt.Sprintf("shard-%d", shardID),
		Interval:     cfg.Interval,
		FlushOnClose: true,
		DeadLetter: func(op oplog.Op, err error) {
			Logger.Errorf("shard %d: gave up replicating %s: %v", shardID, op, err)
		},
	}

	if cfg.Retry == common.SyncRetryBackoff {
		opts.RetryPolicy = syncstore.NewExponentialBackoff(cfg.Interval, cfg.MaxAttempts)
	} else {
		opts.RetryPolicy = syncstore.FixedInterval{Interval: cfg.Interval}
	}

	if cfg.JournalDir != "" {
		if err := os.MkdirAll(cfg.JournalDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
		path := filepath.Join(cfg.JournalDir, fmt.Sprintf("shard-%d.journal", shardID))
		journal, err := syncstore.OpenFileJournal(path, true)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
		}
		opts.Journal = journal
	}

	return opts, nil
}
