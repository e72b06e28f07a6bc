package reststore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/go-chi/chi/v5"
	"github.com/lni/dragonboat/v4/logger"
)

var handlerLog = logger.GetLogger("rest")

// TableLookup returns the store that backs a table.
type TableLookup func(table string) (store.IStore, bool)

// columns that can be selected
const (
	colKey       = "key"
	colData      = "data"
	colCreatedAt = "created_at"
	colUpdatedAt = "updated_at"
)

// NewHandler returns the server side of the REST store: a PostgREST compatible subset
// (GET, POST with merge-duplicates upsert, DELETE on /{table}) on top of IStore instances.
// This lets a node serve as remote store of another node's sync store.
func NewHandler(lookup TableLookup) http.Handler {
	h := &handler{lookup: lookup}

	r := chi.NewRouter()
	r.Get("/{table}", h.get)
	r.Head("/{table}", h.get)
	r.Post("/{table}", h.post)
	r.Delete("/{table}", h.delete)
	return r
}

type handler struct {
	lookup TableLookup
}

type errorBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Message: err.Error()})
}

// storeFailed maps a store error to a response
func storeFailed(w http.ResponseWriter, r *http.Request, err error) {
	handlerLog.Warningf("%s %s failed: %v", r.Method, r.URL.Path, err)

	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		switch storeErr.Code {
		case store.RetCUnavailable:
			writeError(w, http.StatusServiceUnavailable, err)
			return
		case store.RetCUnsupportedOperation, store.RetCInvalidOperation:
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	writeError(w, http.StatusInternalServerError, err)
}

func (h *handler) table(w http.ResponseWriter, r *http.Request) (store.IStore, bool) {
	name := chi.URLParam(r, "table")
	s, ok := h.lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("table %q does not exist", name))
	}
	return s, ok
}

// parseSelect returns the selected columns, * selects all of them
func parseSelect(raw string) (map[string]bool, error) {
	if raw == "" || raw == "*" {
		return map[string]bool{colKey: true, colData: true, colCreatedAt: true, colUpdatedAt: true}, nil
	}
	cols := make(map[string]bool)
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		switch c {
		case colKey, colData, colCreatedAt, colUpdatedAt:
			cols[c] = true
		default:
			return nil, fmt.Errorf("unknown column %q", c)
		}
	}
	return cols, nil
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.table(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	cols, err := parseSelect(query.Get("select"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	filter := keyFilter{all: true}
	if raw := query.Get("key"); raw != "" {
		if filter, err = parseKeyFilter(raw); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	// key and data of the matching rows
	var pairs []store.KeyValue
	switch {
	case filter.all && cols[colData]:
		pairs = s.ReadAllWithKeys()
	case filter.all:
		for _, key := range s.Keys() {
			pairs = append(pairs, store.KeyValue{Key: key})
		}
	case cols[colData]:
		pairs = s.ReadManyWithKeys(filter.keys)
	default:
		for _, key := range filter.keys {
			if s.Has(key) {
				pairs = append(pairs, store.KeyValue{Key: key})
			}
		}
	}
	total := len(pairs)

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		if limit < len(pairs) {
			pairs = pairs[:limit]
		}
	}

	rows := make([]map[string]interface{}, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, h.row(s, p, cols))
	}

	if strings.Contains(r.Header.Get("Prefer"), "count=exact") {
		if len(rows) == 0 {
			w.Header().Set("Content-Range", fmt.Sprintf("*/%d", total))
		} else {
			w.Header().Set("Content-Range", fmt.Sprintf("0-%d/%d", len(rows)-1, total))
		}
	}

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handler) row(s store.IStore, p store.KeyValue, cols map[string]bool) map[string]interface{} {
	out := make(map[string]interface{}, len(cols))
	if cols[colKey] {
		out[colKey] = p.Key
	}
	if cols[colData] {
		data := p.Value
		if data == nil {
			data = []byte{}
		}
		out[colData] = data
	}
	if cols[colCreatedAt] {
		out[colCreatedAt] = timestamp(s.CreatedAt(p.Key))
	}
	if cols[colUpdatedAt] {
		out[colUpdatedAt] = timestamp(s.UpdatedAt(p.Key))
	}
	return out
}

// timestamp returns t in RFC3339 (nil if absent)
func timestamp(t time.Time, ok bool) interface{} {
	if !ok {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// decodeRows accepts a single row object or an array of rows
func decodeRows(r *http.Request) ([]row, error) {
	br := bufio.NewReader(r.Body)
	for {
		b, err := br.Peek(1)
		if err != nil {
			return nil, fmt.Errorf("empty body: %w", err)
		}
		if b[0] == ' ' || b[0] == '\n' || b[0] == '\r' || b[0] == '\t' {
			_, _ = br.ReadByte()
			continue
		}
		break
	}

	dec := json.NewDecoder(br)
	first, _ := br.Peek(1)
	if first[0] == '[' {
		var rows []row
		err := dec.Decode(&rows)
		return rows, err
	}
	var single row
	if err := dec.Decode(&single); err != nil {
		return nil, err
	}
	return []row{single}, nil
}

func (h *handler) post(w http.ResponseWriter, r *http.Request) {
	s, ok := h.table(w, r)
	if !ok {
		return
	}

	rows, err := decodeRows(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}

	pairs := make([]store.KeyValue, len(rows))
	for i, row := range rows {
		pairs[i] = store.KeyValue{Key: row.Key, Value: dataOf(row)}
	}

	if err := s.WriteMany(pairs); err != nil {
		storeFailed(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	s, ok := h.table(w, r)
	if !ok {
		return
	}

	filter, err := parseKeyFilter(r.URL.Query().Get("key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch {
	case filter.all:
		err = s.RemoveAll()
	case len(filter.keys) == 1:
		err = s.Remove(filter.keys[0])
	default:
		err = s.RemoveMany(filter.keys)
	}
	if err != nil {
		storeFailed(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
