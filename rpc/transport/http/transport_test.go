package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ValentinKolb/sKV/rpc/common"
)

// newTestServer starts a server transport that echoes the shard id and the request
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := &httpServerTransport{}
	st.RegisterHandler(func(shardId uint64, req []byte) []byte {
		return append([]byte{byte(shardId)}, req...)
	})
	srv := httptest.NewServer(st.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func connect(t *testing.T, retries int, endpoints ...string) *httpClientTransport {
	t.Helper()
	ct := &httpClientTransport{}
	if err := ct.Connect(common.ClientConfig{Endpoints: endpoints, TimeoutSecond: 5, RetryCount: retries}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = ct.Close() })
	return ct
}

func TestSendAndReceive(t *testing.T) {
	srv := newTestServer(t)
	ct := connect(t, 0, srv.URL)

	resp, err := ct.Send(7, []byte("ping"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !bytes.Equal(resp, []byte("\x07ping")) {
		t.Errorf("unexpected response %q", resp)
	}
}

func TestEndpointWithoutScheme(t *testing.T) {
	srv := newTestServer(t)
	ct := connect(t, 0, strings.TrimPrefix(srv.URL, "http://"))

	if _, err := ct.Send(1, []byte("x")); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestRetryOnNextEndpoint(t *testing.T) {
	srv := newTestServer(t)

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	ct := connect(t, 1, deadURL, srv.URL)

	// with one retry every request reaches the live server, whichever endpoint is tried first
	for i := 0; i < 4; i++ {
		if _, err := ct.Send(1, []byte("x")); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
}

func TestSendErrors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer failing.Close()

	ct := connect(t, 2, failing.URL)
	if _, err := ct.Send(1, nil); err == nil || !strings.Contains(err.Error(), "broken") {
		t.Errorf("expected an http error with the body, got %v", err)
	}

	if err := (&httpClientTransport{}).Connect(common.ClientConfig{}); err == nil {
		t.Error("expected Connect without endpoints to fail")
	}
	if _, err := (&httpClientTransport{}).Send(1, nil); err == nil {
		t.Error("expected Send on an unconnected transport to fail")
	}
}

func TestInvalidShardId(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/abc", "application/octet-stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	ct := connect(t, 0, srv.URL)
	if _, err := ct.Send(3, []byte("x")); err != nil {
		t.Fatal(err)
	}

	get := func(path string) string {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: %d", path, resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}

	if body := get("/health"); !strings.Contains(body, "ok") {
		t.Errorf("unexpected health response %q", body)
	}
	if body := get("/metrics"); !strings.Contains(body, `skv_rpc_requests_total{shard="3"}`) {
		t.Errorf("request counter missing in metrics:\n%s", body)
	}
}

func TestShutdownWithoutListen(t *testing.T) {
	if err := NewHttpServerTransport().Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
