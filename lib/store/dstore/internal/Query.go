package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet        QueryType = iota // Retrieve an entry by key.
	QueryTGetMany                     // Retrieve all found entries of a list of keys.
	QueryTHas                         // Check if a key exists.
	QueryTRange                       // Retrieve all entries.
	QueryTKeys                        // Retrieve all keys.
	QueryTCount                       // Count the entries.
	QueryTTimestamps                  // Retrieve the created-at and updated-at time of a key.
	QueryTGetDBInfo                   // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTGetMany:
		return "GetMany"
	case QueryTHas:
		return "Has"
	case QueryTRange:
		return "Range"
	case QueryTKeys:
		return "Keys"
	case QueryTCount:
		return "Count"
	case QueryTTimestamps:
		return "Timestamps"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or ReadStale
type Query struct {
	Type QueryType // The type of Query to perform.
	Key  string    // The key for the Query (emtpy for some queries).
	Keys []string  // The keys for QueryTGetMany.
}

// QueryResult is the result of a QueryTGet or QueryTTimestamps operation.
// All other query results are primitive types or predefined structs
// (bool, int, []string, []store.KeyValue, db.DatabaseInfo).
type QueryResult struct {
	Ok        bool
	Value     []byte
	CreatedAt int64
	UpdatedAt int64
}
