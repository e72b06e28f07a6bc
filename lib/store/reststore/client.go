package reststore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

// UnacceptableStatusCodeError is returned if the server answers with a non 2xx status code.
type UnacceptableStatusCodeError struct {
	Code int
	Body string
}

func (e *UnacceptableStatusCodeError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unacceptable status code %d", e.Code)
	}
	return fmt.Sprintf("unacceptable status code %d: %s", e.Code, e.Body)
}

// row is a table row on the wire. Data is base64 encoded by encoding/json, timestamps are RFC3339.
type row struct {
	Key       string     `json:"key"`
	Data      []byte     `json:"data"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Config configures a REST store.
type Config struct {
	BaseURL    string        // e.g. http://localhost:5435/v1/rest
	Table      string        // table (path segment after BaseURL)
	APIKey     string        // sent as apikey and bearer token if set
	Timeout    time.Duration // timeout of a single request (default 5s)
	HTTPClient *http.Client  // default http.DefaultClient
}

// Store is a store.IStore backed by a PostgREST compatible table with the columns
// key (primary key), data, created_at and updated_at.
type Store struct {
	url     string
	table   string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	now     func() time.Time
	lastErr store.ErrorRecorder
}

// New creates a REST store.
func New(cfg Config) (*Store, error) {
	if cfg.BaseURL == "" || cfg.Table == "" {
		return nil, store.NewError(store.RetCInvalidOperation, "rest store needs a base url and a table")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/" + url.PathEscape(cfg.Table))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	return &Store{
		url:     base.String(),
		table:   cfg.Table,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		client:  cfg.HTTPClient,
		now:     time.Now,
	}, nil
}

// request describes a call against the table
type request struct {
	method  string
	query   url.Values
	body    interface{}
	headers map[string]string
}

// do sends req and decodes a JSON response into out (if not nil).
// It returns the response headers on success.
func (s *Store) do(req request, out interface{}) (http.Header, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	target := s.url
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		httpReq.Header.Set("apikey", s.apiKey)
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, store.Errorf(store.RetCUnavailable, "rest %s %s: %v", req.method, s.table, err)
	}
	defer resp.Body.Close()

	if err := validate(resp); err != nil {
		return nil, err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.Header, nil
}

// validate returns an UnacceptableStatusCodeError for every status outside 200..299
func validate(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &UnacceptableStatusCodeError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// selectRows runs a GET with the given columns and key filter (empty = all rows)
func (s *Store) selectRows(columns, filter string) ([]row, error) {
	query := url.Values{"select": {columns}}
	if filter != "" {
		query.Set("key", filter)
	}
	var rows []row
	_, err := s.do(request{method: http.MethodGet, query: query}, &rows)
	return rows, err
}

// failed records a failed read and logs it
func (s *Store) failed(op string, err error) {
	log.Warningf("rest %s on %s failed: %v", op, s.table, err)
	s.lastErr.Record(err)
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *Store) Write(key string, value []byte) error {
	return s.WriteMany([]store.KeyValue{{Key: key, Value: value}})
}

// WriteMany upserts all pairs with a single POST (Prefer: resolution=merge-duplicates).
func (s *Store) WriteMany(pairs []store.KeyValue) error {
	if len(pairs) == 0 {
		return nil
	}

	now := s.now().UTC()
	pairs = store.DedupeLast(pairs)
	rows := make([]row, len(pairs))
	for i, p := range pairs {
		data := p.Value
		if data == nil {
			data = []byte{}
		}
		rows[i] = row{Key: p.Key, Data: data, UpdatedAt: &now}
	}

	_, err := s.do(request{
		method:  http.MethodPost,
		body:    rows,
		headers: map[string]string{"Prefer": "resolution=merge-duplicates"},
	}, nil)
	return err
}

func (s *Store) Read(key string) ([]byte, bool) {
	rows, err := s.selectRows("key,data", eqFilter(key))
	if err != nil {
		s.failed("read", err)
		return nil, false
	}
	if len(rows) == 0 {
		return nil, false
	}
	return dataOf(rows[0]), true
}

func (s *Store) ReadMany(keys []string) [][]byte {
	pairs := s.ReadManyWithKeys(keys)
	values := make([][]byte, len(pairs))
	for i, p := range pairs {
		values[i] = p.Value
	}
	return values
}

// ReadManyWithKeys returns the found pairs in the order of keys.
func (s *Store) ReadManyWithKeys(keys []string) []store.KeyValue {
	if len(keys) == 0 {
		return []store.KeyValue{}
	}

	rows, err := s.selectRows("key,data", inFilter(keys))
	if err != nil {
		s.failed("readMany", err)
		return []store.KeyValue{}
	}

	byKey := make(map[string][]byte, len(rows))
	for _, r := range rows {
		byKey[r.Key] = dataOf(r)
	}
	pairs := make([]store.KeyValue, 0, len(rows))
	for _, key := range keys {
		if data, ok := byKey[key]; ok {
			pairs = append(pairs, store.KeyValue{Key: key, Value: data})
		}
	}
	return pairs
}

func (s *Store) ReadAll() [][]byte {
	pairs := s.ReadAllWithKeys()
	values := make([][]byte, len(pairs))
	for i, p := range pairs {
		values[i] = p.Value
	}
	return values
}

func (s *Store) ReadAllWithKeys() []store.KeyValue {
	rows, err := s.selectRows("key,data", "")
	if err != nil {
		s.failed("readAll", err)
		return []store.KeyValue{}
	}
	pairs := make([]store.KeyValue, len(rows))
	for i, r := range rows {
		pairs[i] = store.KeyValue{Key: r.Key, Value: dataOf(r)}
	}
	return pairs
}

func (s *Store) remove(filter string) error {
	_, err := s.do(request{
		method: http.MethodDelete,
		query:  url.Values{"key": {filter}},
	}, nil)
	return err
}

func (s *Store) Remove(key string) error {
	return s.remove(eqFilter(key))
}

func (s *Store) RemoveMany(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.remove(inFilter(keys))
}

func (s *Store) RemoveAll() error {
	return s.remove(filterAll)
}

func (s *Store) Has(key string) bool {
	rows, err := s.selectRows("key", eqFilter(key))
	if err != nil {
		s.failed("has", err)
		return false
	}
	return len(rows) > 0
}

// count asks for an exact count and reads it from the Content-Range header (e.g. 0-0/42 or */0)
func (s *Store) count() (int, error) {
	header, err := s.do(request{
		method: http.MethodGet,
		query:  url.Values{"select": {"key"}, "limit": {"1"}},
		headers: map[string]string{
			"Prefer": "count=exact",
		},
	}, nil)
	if err != nil {
		return 0, err
	}
	return parseContentRange(header.Get("Content-Range"))
}

func parseContentRange(raw string) (int, error) {
	idx := strings.LastIndexByte(raw, '/')
	if idx < 0 {
		return 0, fmt.Errorf("invalid content range %q", raw)
	}
	n, err := strconv.Atoi(raw[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("invalid content range %q: %w", raw, err)
	}
	return n, nil
}

func (s *Store) Count() int {
	n, err := s.count()
	if err != nil {
		s.failed("count", err)
		return 0
	}
	return n
}

func (s *Store) Keys() []string {
	rows, err := s.selectRows("key", "")
	if err != nil {
		s.failed("keys", err)
		return []string{}
	}
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
	}
	return keys
}

func (s *Store) timestamps(key string) (row, bool) {
	rows, err := s.selectRows("key,created_at,updated_at", eqFilter(key))
	if err != nil {
		s.failed("timestamps", err)
		return row{}, false
	}
	if len(rows) == 0 {
		return row{}, false
	}
	return rows[0], true
}

func (s *Store) CreatedAt(key string) (time.Time, bool) {
	r, ok := s.timestamps(key)
	if !ok || r.CreatedAt == nil {
		return time.Time{}, false
	}
	return *r.CreatedAt, true
}

func (s *Store) UpdatedAt(key string) (time.Time, bool) {
	r, ok := s.timestamps(key)
	if !ok || r.UpdatedAt == nil {
		return time.Time{}, false
	}
	return *r.UpdatedAt, true
}

func (s *Store) GetDBInfo() (db.DatabaseInfo, error) {
	n, err := s.count()
	if err != nil {
		return db.DatabaseInfo{}, err
	}
	return db.DatabaseInfo{
		KeyCount: n,
		DbType:   db.ImplREST,
		Metadata: map[string]string{"url": s.url},
	}, nil
}

// LastError returns the error of the last failed read or query.
func (s *Store) LastError() error {
	return s.lastErr.LastError()
}

// dataOf returns the data of a row, an absent data column is an empty value
func dataOf(r row) []byte {
	if r.Data == nil {
		return []byte{}
	}
	return r.Data
}
