package request

import (
	"net/url"
	"strings"
)

// QueryParam is a single key/value pair in a [QueryParams] list. Unlike
// [Headers], query parameters preserve insertion order and allow
// duplicate keys.
type QueryParam struct {
	Key   string
	Value string
}

// QueryParams is an ordered, duplicate-tolerant list of query
// parameters, appended to a request's URL at attach time.
type QueryParams []QueryParam

// Add appends a key/value pair, preserving any existing entries with
// the same key.
func (q *QueryParams) Add(key, value string) {
	*q = append(*q, QueryParam{Key: key, Value: value})
}

// Apply composes rawURL with q's parameters appended as a query
// string: if rawURL has no "?", the first parameter is joined with "?"
// and the rest with "&"; if rawURL already has a "?", every parameter
// is joined with "&". Empty values are emitted without a trailing "=".
func (q QueryParams) Apply(rawURL string) string {
	if len(q) == 0 {
		return rawURL
	}

	var b strings.Builder
	b.WriteString(rawURL)

	sep := "&"
	if !strings.Contains(rawURL, "?") {
		sep = "?"
	}

	for _, p := range q {
		b.WriteString(sep)
		sep = "&"
		b.WriteString(url.QueryEscape(p.Key))
		if p.Value != "" {
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(p.Value))
		}
	}

	return b.String()
}
