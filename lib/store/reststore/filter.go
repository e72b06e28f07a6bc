package reststore

import (
	"errors"
	"fmt"
	"strings"
)

// Row filters on the key column, in PostgREST syntax:
//
//	key=eq.<key>              a single key
//	key=in.("<k1>","<k2>")    a list of keys (quoted, \ escapes " and \)
//	key=not.is.null           every row

const filterAll = "not.is.null"

func eqFilter(key string) string {
	return "eq." + key
}

func inFilter(keys []string) string {
	var b strings.Builder
	b.WriteString("in.(")
	for i, key := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		for _, r := range key {
			if r == '"' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		b.WriteByte('"')
	}
	b.WriteByte(')')
	return b.String()
}

// keyFilter is a parsed key filter. all is set for not.is.null.
type keyFilter struct {
	all  bool
	keys []string
}

var errNoFilter = errors.New("missing key filter")

// parseKeyFilter parses the value of the key query parameter
func parseKeyFilter(raw string) (keyFilter, error) {
	switch {
	case raw == "":
		return keyFilter{}, errNoFilter
	case raw == filterAll:
		return keyFilter{all: true}, nil
	case strings.HasPrefix(raw, "eq."):
		return keyFilter{keys: []string{strings.TrimPrefix(raw, "eq.")}}, nil
	case strings.HasPrefix(raw, "in.(") && strings.HasSuffix(raw, ")"):
		keys, err := parseInList(raw[len("in.(") : len(raw)-1])
		if err != nil {
			return keyFilter{}, err
		}
		return keyFilter{keys: keys}, nil
	default:
		return keyFilter{}, fmt.Errorf("unsupported key filter %q", raw)
	}
}

// parseInList splits the items of an in.(...) list. Items are either quoted ("a,b") or bare (a).
func parseInList(list string) ([]string, error) {
	keys := []string{}
	if list == "" {
		return keys, nil
	}

	var (
		cur     strings.Builder
		quoted  bool // inside quotes
		wasQuot bool // current item was quoted
		escaped bool
	)
	for _, r := range list {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '"':
			if !quoted && cur.Len() > 0 {
				return nil, fmt.Errorf("unexpected quote in %q", list)
			}
			quoted = !quoted
			wasQuot = true
		case r == ',' && !quoted:
			keys = append(keys, cur.String())
			cur.Reset()
			wasQuot = false
		default:
			if wasQuot && !quoted {
				return nil, fmt.Errorf("unexpected character after quoted item in %q", list)
			}
			cur.WriteRune(r)
		}
	}
	if quoted || escaped {
		return nil, fmt.Errorf("unterminated quote in %q", list)
	}
	return append(keys, cur.String()), nil
}
