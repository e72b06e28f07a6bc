// Package client implements the RPC client of sKV. RPCStore implements store.IStore
// and store.IDiagnostics and forwards every call to one shard of a server.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints:     []string{"localhost:8080"},
//	  TimeoutSecond: 5,
//	  RetryCount:    3,
//	}
//
//	s, err := client.NewRPCStore(100, config, http.NewHttpClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer s.Close()
//
//	_ = s.Write("mykey", []byte("myvalue"))
//	value, ok := s.Read("mykey")
//
// Error Handling:
//
//	Mutating calls return the error of the server. A *store.Error raised on the server
//	arrives as *store.Error with the same code, transport failures are reported with
//	store.RetCUnavailable. Reads never return errors: a failed read is reported as
//	absence and the cause is kept for LastError.
//
// Thread Safety:
//
//	RPCStore is safe for concurrent use from multiple goroutines.
package client
