package common

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the dstore shards)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig(shardId uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardId,
		ElectionRTT:        electionRTTFactor,  // = c.RTTMillisecond * 10
		HeartbeatRTT:       heartbeatRTTFactor, // = c.RTTMillisecond * 1
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

type ServerShardType string

const (
	// ShardTypeLocalIStore is a store only held in memory of this node
	ShardTypeLocalIStore ServerShardType = "lstore"
	// ShardTypeRaftIStore is a store replicated with RAFT across the cluster
	ShardTypeRaftIStore ServerShardType = "dstore"
	// ShardTypeSyncIStore is a local store that is mirrored asynchronously to the configured remote
	ShardTypeSyncIStore ServerShardType = "sstore"
)

// ParseShardType converts a string to a ServerShardType
func ParseShardType(s string) (ServerShardType, error) {
	switch t := ServerShardType(strings.ToLower(strings.TrimSpace(s))); t {
	case ShardTypeLocalIStore, ShardTypeRaftIStore, ShardTypeSyncIStore:
		return t, nil
	default:
		return "", fmt.Errorf("invalid shard type %q: must be one of lstore, dstore, sstore", s)
	}
}

type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Type is the kind of store backing the shard
	Type ServerShardType
}

// ServerConfig holds all configuration parameters for the server.
type ServerConfig struct {
	// the shards served by this node
	Shards []ServerShard

	// Dragonboat parameters
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string

	// remote kvStore parameters
	TimeoutSecond int64

	// HTTP api settings
	Endpoint     string
	RestEndpoint string // empty disables the REST table endpoint

	// Mirroring of sstore shards
	Sync SyncConfig

	// Logging configuration
	LogLevel string
}

// HasRaftShard checks if the configuration contains any raft replicated shards
func (c *ServerConfig) HasRaftShard() bool {
	for _, shard := range c.Shards {
		if shard.Type == ShardTypeRaftIStore {
			return true
		}
	}
	return false
}

// HasSyncShard checks if the configuration contains any mirrored shards
func (c *ServerConfig) HasSyncShard() bool {
	for _, shard := range c.Shards {
		if shard.Type == ShardTypeSyncIStore {
			return true
		}
	}
	return false
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	if c.RestEndpoint != "" {
		addField("REST Endpoint", c.RestEndpoint)
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Shards
	addSection("Shards")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), string(shard.Type))
	}

	if c.HasSyncShard() {
		sb.WriteString(c.Sync.String())
	}

	if c.HasRaftShard() {
		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))

		// Storage
		addSection("Storage")
		addField("Data Directory", c.DataDir)

		addSection("Cluster")
		sb.WriteString("  Initial Cluster Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Sync (mirroring) configuration struct
// --------------------------------------------------------------------------

type SyncRemoteType string

const (
	SyncRemoteRPC      SyncRemoteType = "rpc"
	SyncRemoteRedis    SyncRemoteType = "redis"
	SyncRemotePostgres SyncRemoteType = "postgres"
	SyncRemoteREST     SyncRemoteType = "rest"
)

type SyncRetryType string

const (
	SyncRetryFixed   SyncRetryType = "fixed"
	SyncRetryBackoff SyncRetryType = "backoff"
)

// SyncConfig describes the remote that sstore shards are mirrored to.
type SyncConfig struct {
	Remote     SyncRemoteType
	Interval   time.Duration
	JournalDir string // empty keeps the pending queue in memory only

	Retry       SyncRetryType
	MaxAttempts int // only used by the backoff retry, 0 retries forever

	// rpc remote
	RPCEndpoints []string
	RPCShard     uint64 // 0 mirrors every shard to the shard with the same id

	// redis remote
	RedisAddr   string
	RedisPrefix string

	// postgres remote
	PostgresDSN string

	// rest remote
	RestURL    string
	RestTable  string
	RestAPIKey string
}

// Validate checks that the options required by the selected remote are set
func (c *SyncConfig) Validate() error {
	switch c.Remote {
	case SyncRemoteRPC:
		if len(c.RPCEndpoints) == 0 {
			return fmt.Errorf("sync remote %s requires at least one endpoint", c.Remote)
		}
	case SyncRemoteRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("sync remote %s requires an address", c.Remote)
		}
	case SyncRemotePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("sync remote %s requires a dsn", c.Remote)
		}
	case SyncRemoteREST:
		if c.RestURL == "" {
			return fmt.Errorf("sync remote %s requires a base url", c.Remote)
		}
	default:
		return fmt.Errorf("invalid sync remote %q: must be one of rpc, redis, postgres, rest", c.Remote)
	}

	switch c.Retry {
	case SyncRetryFixed, SyncRetryBackoff:
	default:
		return fmt.Errorf("invalid sync retry %q: must be one of fixed, backoff", c.Retry)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", c.Interval)
	}
	return nil
}

// String returns a formatted string representation of the sync configuration
func (c *SyncConfig) String() string {
	var sb strings.Builder

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	sb.WriteString("\nSYNC\n")
	addField("Remote", string(c.Remote))
	addField("Interval", c.Interval.String())
	addField("Retry", string(c.Retry))
	if c.Retry == SyncRetryBackoff {
		addField("Max Attempts", strconv.Itoa(c.MaxAttempts))
	}
	if c.JournalDir != "" {
		addField("Journal Directory", c.JournalDir)
	} else {
		addField("Journal Directory", "(in memory)")
	}

	switch c.Remote {
	case SyncRemoteRPC:
		addField("Endpoints", strings.Join(c.RPCEndpoints, ", "))
		if c.RPCShard != 0 {
			addField("Remote Shard", strconv.FormatUint(c.RPCShard, 10))
		}
	case SyncRemoteRedis:
		addField("Address", c.RedisAddr)
		addField("Prefix", c.RedisPrefix)
	case SyncRemotePostgres:
		// the dsn may contain a password
		addField("DSN", "(set)")
	case SyncRemoteREST:
		addField("Base URL", c.RestURL)
		addField("Table", c.RestTable)
		if c.RestAPIKey != "" {
			addField("API Key", "(set)")
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints              []string
	TimeoutSecond          int
	RetryCount             int
	ConnectionsPerEndpoint int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
