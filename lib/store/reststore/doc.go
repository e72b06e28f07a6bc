// Package reststore implements store.IStore against a PostgREST compatible REST table
// (e.g. a Supabase table) and provides the matching server side.
//
// Table Layout:
//
//	key text primary key, data bytea, created_at timestamptz default now(), updated_at timestamptz
//
// Wire Format:
//
//	Rows are JSON objects. The data column is base64 encoded, timestamps are RFC3339.
//
//	- Write/WriteMany: POST /<table> with a JSON array and "Prefer: resolution=merge-duplicates"
//	  (upsert, last write wins). A batch is a single request.
//	- Read/ReadMany/ReadAll: GET /<table>?select=key,data&key=eq.<key> (or key=in.(...), or no filter)
//	- Remove/RemoveMany/RemoveAll: DELETE /<table>?key=eq.<key> (or key=in.(...), or key=not.is.null)
//	- Count: GET with "Prefer: count=exact", the total is read from the Content-Range header
//
//	If an API key is configured it is sent as apikey header and as bearer token. Every status
//	code outside 200..299 is returned as UnacceptableStatusCodeError.
//
// Server Side:
//
//	NewHandler serves the same subset of the protocol on top of store.IStore instances using a
//	chi router, so that one skv node can be the remote store of another node's sync store.
package reststore
