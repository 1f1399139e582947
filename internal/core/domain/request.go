package domain

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// Request is the outbound call produced from validated caller input. Params
// holds the query or body parameters keyed by upstream name; path parameters
// are already substituted into Path.
type Request struct {
	Operation string         `json:"operation"`
	Method    string         `json:"method"`
	Path      string         `json:"path"`
	Transport Transport      `json:"transport"`
	Params    map[string]any `json:"params"`
}

// Response is a successful upstream answer.
type Response struct {
	Status int
	Body   json.RawMessage
}

// Query encodes Params as a query string. Only meaningful for query transport.
func (r Request) Query() url.Values {
	q := make(url.Values, len(r.Params))
	for k, v := range r.Params {
		q.Set(k, formatParam(v))
	}
	return q
}

// formatParam renders a parameter without exponent notation.
func formatParam(v any) string {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10)
	case int:
		return strconv.Itoa(n)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case string:
		return n
	default:
		return fmt.Sprint(v)
	}
}

// Body encodes Params as a JSON object. Only meaningful for JSON transport.
func (r Request) Body() ([]byte, error) {
	return json.Marshal(r.Params)
}

// ParamNames returns the upstream keys in sorted order.
func (r Request) ParamNames() []string {
	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
