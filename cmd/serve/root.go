package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/db/util"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/serializer"
	"github.com/ValentinKolb/sKV/rpc/server"
	"github.com/ValentinKolb/sKV/rpc/transport/http"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// shutdownTimeout bounds the final flush of the sync shards
const shutdownTimeout = 30 * time.Second

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the sKV server",
		Long:    `Start the sKV server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is SKV_<flag> (e.g. SKV_SYNC_INTERVAL=30s)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	flags := ServeCmd.PersistentFlags()

	key := "shards"
	flags.String(key, "100=lstore", cmdUtil.WrapString("Comma-separated list of shards to serve. Format: ID=TYPE where TYPE is one of: lstore, dstore, sstore"))

	key = "rtt-millisecond"
	flags.Int(key, 100, cmdUtil.WrapString("(dstore) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. \nOther raft configuration parameters (ElectionRTT=value/10, HeartbeatRTT=value/100) are derived from this value"))

	key = "snapshot-entries"
	flags.Int(key, 10, cmdUtil.WrapString("(dstore) SnapshotEntries defines how often the state machine should be snapshotted automatically. It is defined in terms of the number of applied Raft log entries. SnapshotEntries can be set to 0 to disable such automatic snapshotting (not recommended)"))

	key = "compaction-overhead"
	flags.Int(key, 5, cmdUtil.WrapString("(dstore) CompactionOverhead defines the number of snapshots that should be retained in the system. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	flags.String(key, "data", cmdUtil.WrapString("(dstore) DataDir is the directory used for storing the snapshots"))

	key = "replica-id"
	flags.String(key, "", cmdUtil.WrapString("(dstore) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	flags.String(key, "", cmdUtil.WrapString("(dstore) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	flags.Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for raft proposals and remote calls of sstore shards"))

	key = "endpoint"
	flags.String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the RPC API will listen (e.g. localhost:8080)"))

	key = "rest-endpoint"
	flags.String(key, "", cmdUtil.WrapString("The address of the REST table API (e.g. localhost:8081). Every shard is served as the table /tables/<shard id>. Empty disables the REST API"))

	key = "log-level"
	flags.String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	// mirroring of sstore shards
	key = "sync-remote"
	flags.String(key, "rpc", cmdUtil.WrapString("(sstore) The remote the shards are mirrored to. One of: rpc, redis, postgres, rest"))

	key = "sync-interval"
	flags.Duration(key, 10*time.Second, cmdUtil.WrapString("(sstore) How often pending writes are pushed to the remote"))

	key = "sync-journal-dir"
	flags.String(key, "", cmdUtil.WrapString("(sstore) Directory for the journals of pending writes. Empty keeps pending writes in memory only, they are lost on a crash"))

	key = "sync-retry"
	flags.String(key, "fixed", cmdUtil.WrapString("(sstore) Retry policy for failed pushes. One of: fixed (retry every interval), backoff (exponential backoff)"))

	key = "sync-max-attempts"
	flags.Int(key, 0, cmdUtil.WrapString("(sstore) With the backoff policy, drop an operation after this many failed attempts. 0 retries forever"))

	key = "sync-rpc-endpoints"
	flags.String(key, "", cmdUtil.WrapString("(sstore, rpc) Comma-separated endpoints of the remote sKV server"))

	key = "sync-rpc-shard"
	flags.Uint64(key, 0, cmdUtil.WrapString("(sstore, rpc) Shard on the remote server. 0 uses the id of the local shard"))

	key = "sync-redis-addr"
	flags.String(key, "", cmdUtil.WrapString("(sstore, redis) Comma-separated redis addresses"))

	key = "sync-redis-prefix"
	flags.String(key, "skv", cmdUtil.WrapString("(sstore, redis) Key prefix, the shard id is appended"))

	key = "sync-postgres-dsn"
	flags.String(key, "", cmdUtil.WrapString("(sstore, postgres) Connection string of the postgres database"))

	key = "sync-rest-url"
	flags.String(key, "", cmdUtil.WrapString("(sstore, rest) Base url of the REST table API"))

	key = "sync-rest-table"
	flags.String(key, "", cmdUtil.WrapString("(sstore, rest) Table name. Empty uses the id of the local shard"))

	key = "sync-rest-apikey"
	flags.String(key, "", cmdUtil.WrapString("(sstore, rest) API key sent with every request"))
}

// parseShards parses the ID=TYPE list of the shards flag
func parseShards(shardsConfig string) ([]common.ServerShard, error) {
	shards := []common.ServerShard{}
	seen := make(map[uint64]bool)
	for _, shardConfig := range cmdUtil.SplitList(shardsConfig) {
		parts := strings.Split(shardConfig, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid shard format: %s (expected ID=TYPE)", shardConfig)
		}

		shardID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %v", parts[0], err)
		}
		if seen[shardID] {
			return nil, fmt.Errorf("shard %d is configured twice", shardID)
		}
		seen[shardID] = true

		shardType, err := common.ParseShardType(parts[1])
		if err != nil {
			return nil, err
		}

		shards = append(shards, common.ServerShard{ShardID: shardID, Type: shardType})
	}
	if len(shards) == 0 {
		return nil, fmt.Errorf("at least one shard is required")
	}
	return shards, nil
}

// parseClusterMembers parses the name=address list of the cluster-members flag
func parseClusterMembers(clusterMembers string) (map[uint64]string, error) {
	members := make(map[uint64]string)
	for _, member := range cmdUtil.SplitList(clusterMembers) {
		parts := strings.Split(member, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		members[util.HashString(parts[0], 0)] = parts[1]
	}
	return members, nil
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	shards, err := parseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.RestEndpoint = viper.GetString("rest-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.HasSyncShard() {
		serveCmdConfig.Sync = readSyncConfig()
		if err := serveCmdConfig.Sync.Validate(); err != nil {
			return err
		}
	}

	// the replica settings only matter for raft shards
	if !serveCmdConfig.HasRaftShard() {
		return nil
	}

	id := viper.GetString("replica-id")
	if id == "" {
		return fmt.Errorf("ReplicaId is required for dstore shards")
	}
	serveCmdConfig.ReplicaID = util.HashString(id, 0)

	members := viper.GetString("cluster-members")
	if members == "" {
		return fmt.Errorf("ClusterMembers is required for dstore shards")
	}
	if serveCmdConfig.ClusterMembers, err = parseClusterMembers(members); err != nil {
		return err
	}

	if _, ok := serveCmdConfig.ClusterMembers[serveCmdConfig.ReplicaID]; !ok {
		return fmt.Errorf("no address found for replica ID %s in cluster members", id)
	}

	return nil
}

func readSyncConfig() common.SyncConfig {
	cfg := common.SyncConfig{
		Remote:       common.SyncRemoteType(strings.ToLower(viper.GetString("sync-remote"))),
		Interval:     viper.GetDuration("sync-interval"),
		JournalDir:   viper.GetString("sync-journal-dir"),
		Retry:        common.SyncRetryType(strings.ToLower(viper.GetString("sync-retry"))),
		MaxAttempts:  viper.GetInt("sync-max-attempts"),
		RPCEndpoints: cmdUtil.SplitList(viper.GetString("sync-rpc-endpoints")),
		RPCShard:     viper.GetUint64("sync-rpc-shard"),
		RedisAddr:    viper.GetString("sync-redis-addr"),
		RedisPrefix:  viper.GetString("sync-redis-prefix"),
		PostgresDSN:  viper.GetString("sync-postgres-dsn"),
		RestURL:      viper.GetString("sync-rest-url"),
		RestTable:    viper.GetString("sync-rest-table"),
		RestAPIKey:   viper.GetString("sync-rest-apikey"),
	}
	if cfg.JournalDir != "" {
		cfg.JournalDir = filepath.Clean(cfg.JournalDir)
	}
	return cfg
}

// run starts the sKV server and shuts it down gracefully on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := serializer.ByName(viper.GetString("serializer"))
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		http.NewHttpServerTransport(),
		s,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- serv.Serve()
	}()

	select {
	case err := <-errCh:
		// the transport failed on its own, still flush what is pending
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := serv.Shutdown(shutdownCtx); shutdownErr != nil {
			server.Logger.Errorf("shutdown: %v", shutdownErr)
		}
		return err
	case <-ctx.Done():
	}

	server.Logger.Infof("received signal, shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := serv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
