package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/db/engines/maple"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/dstore"
	"github.com/ValentinKolb/sKV/lib/store/lstore"
	"github.com/ValentinKolb/sKV/lib/store/reststore"
	"github.com/ValentinKolb/sKV/lib/store/syncstore"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/serializer"
	"github.com/ValentinKolb/sKV/rpc/transport"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the store it encapsulates and the adapter that handles requests for the store
type serverShard struct {
	Store   store.IStore
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

// RPCServer serves the configured shards over the transport and, if configured,
// as REST tables.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]

	nodeHost   *dragonboat.NodeHost
	syncStores []*syncstore.SyncStore
	remotes    []remoteStore
	restServer *http.Server

	shutdownOnce sync.Once
}

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(shardId uint64, req []byte) []byte {
		var msg common.Message
		var respMsg common.Message

		// Get appropriate shard
		shard, ok := s.shards.Load(shardId)

		if !ok {
			respMsg = *common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
		} else if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = *common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
		} else {
			// Let the adapter handle the request
			respMsg = *shard.Adapter.Handle(&msg, shard.Store)
		}

		val, err := s.serializer.Serialize(respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response for shard %d: %v", shardId, err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
		}
		return val
	})
}

// Store returns the store of a shard
func (s *RPCServer) Store(shardId uint64) (store.IStore, bool) {
	shard, ok := s.shards.Load(shardId)
	if !ok {
		return nil, false
	}
	return shard.Store, true
}

func (s *RPCServer) init() error {

	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	// Function to create a new database instance
	dbFactory := func() db.KVDB { return maple.NewMapleDB(nil) }

	// Only create the NodeHost if we have raft shards
	if s.config.HasRaftShard() {
		nodeHost, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
		s.nodeHost = nodeHost
	}

	if s.config.HasSyncShard() {
		if err := s.config.Sync.Validate(); err != nil {
			return err
		}
	}

	// Configure the timeout for the distributed and remote stores
	timeout := time.Duration(s.config.TimeoutSecond) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	// CREATE SHARDS

	/*
		Note: A single RPC Server can have any number of shards of every type.
		The following loop creates all the shards and stores them for the RPC server.
	*/

	for _, shardConfig := range s.config.Shards {
		var shardStore store.IStore

		switch shardConfig.Type {

		case common.ShardTypeLocalIStore:
			shardStore = lstore.NewLocalStore(dbFactory)

		case common.ShardTypeRaftIStore:
			if err := s.nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, dstore.CreateStateMaschineFactory(dbFactory), s.config.ToDragonboatConfig(shardConfig.ShardID)); err != nil {
				return fmt.Errorf("failed to start shard %d: %w", shardConfig.ShardID, err)
			}
			shardStore = dstore.NewDistributedStore(s.nodeHost, shardConfig.ShardID, timeout)

		case common.ShardTypeSyncIStore:
			syncStore, err := s.newSyncShard(shardConfig.ShardID, dbFactory, timeout)
			if err != nil {
				return fmt.Errorf("failed to create sync store for shard %d: %w", shardConfig.ShardID, err)
			}
			shardStore = syncStore

		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}

		s.shards.Store(shardConfig.ShardID, serverShard{
			Store:   shardStore,
			Adapter: NewIStoreServerAdapter(),
		})
		Logger.Infof("created %s for shard %d", shardConfig.Type, shardConfig.ShardID)
	}

	Logger.Infof("sKV setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()

	return nil
}

// newSyncShard creates a local store that is mirrored to the configured remote
func (s *RPCServer) newSyncShard(shardID uint64, dbFactory store.DBFactory, timeout time.Duration) (*syncstore.SyncStore, error) {
	remote, err := NewSyncRemote(s.config.Sync, shardID, timeout, s.serializer)
	if err != nil {
		return nil, err
	}

	opts, err := NewSyncOptions(s.config.Sync, shardID)
	if err != nil {
		_ = remote.Close()
		return nil, err
	}

	syncStore, err := syncstore.New(lstore.NewLocalStore(dbFactory), remote, opts)
	if err != nil {
		_ = remote.Close()
		if opts.Journal != nil {
			_ = opts.Journal.Close()
		}
		return nil, err
	}

	s.remotes = append(s.remotes, remote)
	s.syncStores = append(s.syncStores, syncStore)
	return syncStore, nil
}

// restLookup resolves a REST table name (the shard id) to the store of the shard
func (s *RPCServer) restLookup(table string) (store.IStore, bool) {
	shardId, err := strconv.ParseUint(table, 10, 64)
	if err != nil {
		return nil, false
	}
	return s.Store(shardId)
}

// Serve starts the RPC server
// This function will also initialize the server plus the shards and start the transport layer.
// It blocks until Shutdown is called or the transport fails.
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}

	if s.config.RestEndpoint != "" {
		s.restServer = &http.Server{
			Addr:              s.config.RestEndpoint,
			Handler:           reststore.NewHandler(s.restLookup),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			Logger.Infof("Starting REST server on %s", s.config.RestEndpoint)
			if err := s.restServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				Logger.Errorf("REST server failed: %v", err)
			}
		}()
	}

	return s.transport.Listen(s.config)
}

// Shutdown stops the transport, flushes and closes all sync stores and stops the raft node host.
func (s *RPCServer) Shutdown(ctx context.Context) error {
	var errs []error
	s.shutdownOnce.Do(func() {
		if err := s.transport.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("transport: %w", err))
		}
		if s.restServer != nil {
			if err := s.restServer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("rest server: %w", err))
			}
		}

		// a remote is only closed once its sync store stopped using it
		for i, syncStore := range s.syncStores {
			if err := syncStore.Close(ctx); err != nil {
				errs = append(errs, err)
				Logger.Warningf("sync store %d is still replaying, leaving its remote open", i)
				continue
			}
			if err := s.remotes[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}

		if s.nodeHost != nil {
			s.nodeHost.Close()
		}
		Logger.Infof("sKV server stopped")
	})
	return errors.Join(errs...)
}
