package api

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DateFormat is the wire format of date-only query values.
const DateFormat = "2006-01-02"

type param struct {
	key, value string
}

// Query builds a query string in insertion order. Empty values are
// dropped at Add time, so callers can pass optional fields directly.
type Query struct {
	params []param
}

// Add appends key=value unless value is empty. Repeating a key is allowed.
func (q *Query) Add(key, value string) *Query {
	if value != "" {
		q.params = append(q.params, param{key, value})
	}
	return q
}

// AddInt appends an integer value.
func (q *Query) AddInt(key string, v int) *Query {
	return q.Add(key, strconv.Itoa(v))
}

// AddDate appends t formatted as YYYY-MM-DD; nil is omitted.
func (q *Query) AddDate(key string, t *time.Time) *Query {
	if t == nil {
		return q
	}
	return q.Add(key, t.Format(DateFormat))
}

// Len returns the number of kept parameters.
func (q *Query) Len() int {
	return len(q.params)
}

// Encode returns the escaped query without a leading '?'.
func (q *Query) Encode() string {
	var b strings.Builder
	for i, p := range q.params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}
