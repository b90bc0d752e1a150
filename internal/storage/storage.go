package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/gitter-badger/xread/internal/cursor"
)

// Package storage provides the document store abstraction and its drivers.

// Driver hands out store handles for the duration of one logical operation.
type Driver interface {
	Acquire(ctx context.Context) (Handle, error)
	Codec() cursor.Codec
	Close(ctx context.Context) error
}

// Handle is a leased connection to the store. It must be closed exactly once.
type Handle interface {
	Collection(name string) Collection
	Close(ctx context.Context) error
}

// Collection exposes the per-collection operations the core relies on.
type Collection interface {
	// FindOne returns the first document matching filter or domain.ErrNotFound.
	FindOne(ctx context.Context, filter Filter) (Document, error)
	// Find runs a bounded, sorted query.
	Find(ctx context.Context, q Query) ([]Document, error)
	// UpdateOne applies update to the first document matching filter, creating it when upsert is set.
	UpdateOne(ctx context.Context, filter Filter, update Update, upsert bool) (UpdateResult, error)
	// Distinct lists the distinct values of field; array fields contribute their elements.
	Distinct(ctx context.Context, field string) ([]string, error)
}

// Document is a stored record together with its native ordering key.
type Document interface {
	Key() []byte
	Decode(out any) error
}

// Cond is an equality predicate. On array fields it matches membership.
type Cond struct {
	Field string
	Value string
}

// Filter selects documents by native key and/or equality conditions (ANDed).
type Filter struct {
	Key []byte
	Eq  []Cond
}

// Order is the sort direction over the native key.
type Order int

const (
	Ascending Order = iota
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// Query is a filtered query sorted by native key. After and Before are
// exclusive bounds; a zero Limit means unbounded.
type Query struct {
	Filter Filter
	Order  Order
	After  []byte
	Before []byte
	Limit  int
}

// Update describes the "set" and "add to set" sides of a document update.
type Update struct {
	Set      map[string]any
	AddToSet map[string][]string
}

// Empty reports whether the update would change nothing.
func (u Update) Empty() bool {
	return len(u.Set) == 0 && len(u.AddToSet) == 0
}

// UpdateResult reports what an UpdateOne call did.
type UpdateResult struct {
	Matched     int64
	Modified    int64
	UpsertedKey []byte
}

// Options carries backend specific connection settings.
type Options struct {
	MongoURI      string
	MongoDatabase string
	BoltPath      string
}

const (
	TypeMongo = "mongo"
	TypeBolt  = "bbolt"

	defaultMongoDatabase = "xread"
)

// NewDriver creates the configured storage backend.
func NewDriver(ctx context.Context, typ string, opts Options) (Driver, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case TypeMongo, "mongodb":
		if opts.MongoURI == "" {
			return nil, fmt.Errorf("mongo storage requires a connection string")
		}
		return openMongo(ctx, opts.MongoURI, opts.MongoDatabase)
	case TypeBolt, "bolt":
		if opts.BoltPath == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(opts.BoltPath)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	opts.MongoURI = strings.TrimSpace(opts.MongoURI)
	opts.MongoDatabase = strings.TrimSpace(opts.MongoDatabase)
	opts.BoltPath = strings.TrimSpace(opts.BoltPath)
	if opts.MongoDatabase == "" {
		opts.MongoDatabase = defaultMongoDatabase
	}
	return opts
}
