// Package pagination implements Relay-style connection queries over store collections.
package pagination

import (
	"fmt"
	"sort"

	"github.com/gitter-badger/xread/internal/domain"
)

// FilterKey names a filter a caller may supply. The set is closed; each
// collection declares in its Schema which keys it accepts.
type FilterKey string

const (
	FilterFeedID FilterKey = "feedId"
	FilterTag    FilterKey = "tag"
	FilterTopic  FilterKey = "topic"
)

// Schema describes a paginated collection and maps its filter keys to stored field names.
type Schema struct {
	Collection string
	Fields     map[FilterKey]string
}

var (
	// Feeds accepts no filters.
	Feeds = Schema{Collection: domain.FeedCollection}
	// Articles accepts feedId, tag (membership in tags) and topic.
	Articles = Schema{
		Collection: domain.ArticleCollection,
		Fields: map[FilterKey]string{
			FilterFeedID: "feedId",
			FilterTag:    "tags",
			FilterTopic:  "topic",
		},
	}
)

// Request is a connection-style page request. Exactly one of First and Last
// must be set. After is only honored with First, Before only with Last.
type Request struct {
	First   *int                 `json:"first,omitempty"`
	After   string               `json:"after,omitempty"`
	Last    *int                 `json:"last,omitempty"`
	Before  string               `json:"before,omitempty"`
	Filters map[FilterKey]string `json:"filters,omitempty"`
}

// Forward builds a request for the first n records after the given cursor.
func Forward(n int, after string) Request {
	return Request{First: &n, After: after}
}

// Backward builds a request for the last n records before the given cursor.
func Backward(n int, before string) Request {
	return Request{Last: &n, Before: before}
}

// With returns a copy of r with filter key set to value.
func (r Request) With(key FilterKey, value string) Request {
	filters := make(map[FilterKey]string, len(r.Filters)+1)
	for k, v := range r.Filters {
		filters[k] = v
	}
	filters[key] = value
	r.Filters = filters
	return r
}

// Validate enforces the first/last exclusivity and positivity invariant.
func (r Request) Validate() error {
	switch {
	case r.First == nil && r.Last == nil:
		return fmt.Errorf("%w: neither first nor last set", domain.ErrInvalidPageRequest)
	case r.First != nil && r.Last != nil:
		return fmt.Errorf("%w: first and last both set", domain.ErrInvalidPageRequest)
	case r.First != nil && *r.First <= 0:
		return fmt.Errorf("%w: first=%d", domain.ErrInvalidPageRequest, *r.First)
	case r.Last != nil && *r.Last <= 0:
		return fmt.Errorf("%w: last=%d", domain.ErrInvalidPageRequest, *r.Last)
	}
	return nil
}

// Forward reports whether the request pages in ascending key order.
func (r Request) Forward() bool {
	return r.First != nil
}

// filterKeys returns the supplied filter keys in a stable order.
func (r Request) filterKeys() []FilterKey {
	keys := make([]FilterKey, 0, len(r.Filters))
	for k := range r.Filters {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
