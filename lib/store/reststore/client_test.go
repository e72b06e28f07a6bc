package reststore

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ValentinKolb/sKV/lib/store"
	storetesting "github.com/ValentinKolb/sKV/lib/store/testing"
)

// newTestServer serves a single table "items" backed by backend
func newTestServer(t *testing.T, backend store.IStore) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(func(table string) (store.IStore, bool) {
		if table != "items" {
			return nil, false
		}
		return backend, true
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestStore(t *testing.T, backend store.IStore) *Store {
	t.Helper()
	srv := newTestServer(t, backend)
	s, err := New(Config{BaseURL: srv.URL, Table: "items"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return s
}

func TestRESTStore(t *testing.T) {
	storetesting.RunIStoreTests(t, "RESTStore", func(t *testing.T) store.IStore {
		return newTestStore(t, storetesting.NewFakeStore())
	})
}

func TestBatchIsOneRequest(t *testing.T) {
	backend := storetesting.NewFakeStore()
	s := newTestStore(t, backend)

	err := s.WriteMany([]store.KeyValue{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
		{Key: "a", Value: []byte("3")},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	calls := backend.Calls()
	if len(calls) != 1 || calls[0].Method != "WriteMany" {
		t.Fatalf("Expected one WriteMany call on the backend, got %v", calls)
	}
	if value, _ := s.Read("a"); string(value) != "3" {
		t.Errorf("Expected the last pair to win, got %q", value)
	}

	if err := s.RemoveMany([]string{"a", "b"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if calls := backend.Calls(); len(calls) != 2 || calls[1].Method != "RemoveMany" {
		t.Errorf("Expected one RemoveMany call on the backend, got %v", calls)
	}
}

func TestUnacceptableStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, _ := New(Config{BaseURL: srv.URL, Table: "items"})

	var statusErr *UnacceptableStatusCodeError
	if err := s.Write("k", []byte("v")); !errors.As(err, &statusErr) || statusErr.Code != http.StatusInternalServerError {
		t.Fatalf("Expected an UnacceptableStatusCodeError with code 500, got %v", err)
	}

	if _, ok := s.Read("k"); ok {
		t.Errorf("Expected a failed read to report absence")
	}
	if !errors.As(s.LastError(), &statusErr) {
		t.Errorf("Expected the failed read to be recorded, got %v", s.LastError())
	}
}

func TestUnknownTable(t *testing.T) {
	srv := newTestServer(t, storetesting.NewFakeStore())
	s, _ := New(Config{BaseURL: srv.URL, Table: "missing"})

	var statusErr *UnacceptableStatusCodeError
	if err := s.Write("k", nil); !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		t.Errorf("Expected a 404, got %v", err)
	}
}

func TestRequestHeaders(t *testing.T) {
	var (
		mu      sync.Mutex
		headers []http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s, _ := New(Config{BaseURL: srv.URL, Table: "items", APIKey: "secret"})
	if err := s.Write("k", []byte("v")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	h := headers[0]
	if h.Get("apikey") != "secret" || h.Get("Authorization") != "Bearer secret" {
		t.Errorf("Expected api key headers, got %v", h)
	}
	if h.Get("Prefer") != "resolution=merge-duplicates" {
		t.Errorf("Expected merge-duplicates, got %q", h.Get("Prefer"))
	}
}

func TestDeleteWithoutFilterIsRejected(t *testing.T) {
	backend := storetesting.NewFakeStore()
	_ = backend.Write("k", []byte("v"))
	srv := newTestServer(t, backend)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/items", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
	if !backend.Has("k") {
		t.Errorf("A delete without filter must not remove anything")
	}
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"0-0/42", 42, false},
		{"*/0", 0, false},
		{"0-9/10", 10, false},
		{"", 0, true},
		{"0-0/*", 0, true},
	}
	for _, tt := range tests {
		got, err := parseContentRange(tt.raw)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseContentRange(%q) = %d, %v", tt.raw, got, err)
		}
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Table: "items"}); err == nil {
		t.Errorf("Expected an error without base url")
	}
	if _, err := New(Config{BaseURL: "http://localhost"}); err == nil {
		t.Errorf("Expected an error without table")
	}
}
