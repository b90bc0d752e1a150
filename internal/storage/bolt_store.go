package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/gitter-badger/xread/internal/cursor"
	"github.com/gitter-badger/xread/internal/domain"
)

var errHandleReleased = errors.New("store handle already released")

// boltDriver implements a Driver backed by BoltDB. Each collection is a bucket
// keyed by the bucket sequence, so key order is insertion order.
type boltDriver struct {
	db *bolt.DB
}

// openBolt initializes a BoltDB-backed Driver.
func openBolt(path string) (*boltDriver, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	return &boltDriver{db: db}, nil
}

// Acquire leases a handle on the shared database.
func (b *boltDriver) Acquire(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b == nil || b.db == nil {
		return nil, fmt.Errorf("%w: bbolt driver is closed", domain.ErrStoreUnavailable)
	}
	return &boltHandle{db: b.db}, nil
}

// Codec returns the cursor codec for bucket sequence keys.
func (b *boltDriver) Codec() cursor.Codec {
	return cursor.Codec{Width: cursor.SequenceWidth}
}

// Close closes the BoltDB file.
func (b *boltDriver) Close(context.Context) error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

type boltHandle struct {
	db       *bolt.DB
	released atomic.Bool
}

func (h *boltHandle) Collection(name string) Collection {
	return &boltCollection{handle: h, bucket: []byte(name)}
}

func (h *boltHandle) Close(context.Context) error {
	if !h.released.CompareAndSwap(false, true) {
		return errHandleReleased
	}
	return nil
}

func (h *boltHandle) check(ctx context.Context) error {
	if h.released.Load() {
		return errHandleReleased
	}
	return ctx.Err()
}

type boltCollection struct {
	handle *boltHandle
	bucket []byte
}

type boltDocument struct {
	key []byte
	raw []byte
}

func (d boltDocument) Key() []byte          { return d.key }
func (d boltDocument) Decode(out any) error { return json.Unmarshal(d.raw, out) }

// FindOne returns the first document, in key order, that matches filter.
func (c *boltCollection) FindOne(ctx context.Context, filter Filter) (Document, error) {
	if err := c.handle.check(ctx); err != nil {
		return nil, err
	}

	var doc Document
	err := c.handle.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(c.bucket)
		if bucket == nil {
			return nil
		}
		key, value, err := findMatch(bucket, filter)
		if err != nil || key == nil {
			return err
		}
		doc = boltDocument{key: clone(key), raw: clone(value)}
		return nil
	})
	if err != nil {
		return nil, unavailable("find one", err)
	}
	if doc == nil {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

// Find walks the bucket in the requested direction within the exclusive bounds.
func (c *boltCollection) Find(ctx context.Context, q Query) ([]Document, error) {
	if err := c.handle.check(ctx); err != nil {
		return nil, err
	}

	docs := make([]Document, 0)
	err := c.handle.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(c.bucket)
		if bucket == nil {
			return nil
		}

		cur := bucket.Cursor()
		k, v := seekStart(cur, q)
		for ; k != nil; k, v = step(cur, q.Order) {
			if outOfRange(k, q) {
				break
			}
			if v == nil {
				continue
			}
			ok, err := matches(k, v, q.Filter)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			docs = append(docs, boltDocument{key: clone(k), raw: clone(v)})
			if q.Limit > 0 && len(docs) >= q.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("find", err)
	}
	return docs, nil
}

// UpdateOne applies update inside a single write transaction, which makes the
// read-modify-write atomic per document.
func (c *boltCollection) UpdateOne(ctx context.Context, filter Filter, update Update, upsert bool) (UpdateResult, error) {
	if err := c.handle.check(ctx); err != nil {
		return UpdateResult{}, err
	}

	var res UpdateResult
	err := c.handle.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(c.bucket)
		if err != nil {
			return err
		}

		key, value, err := findMatch(bucket, filter)
		if err != nil {
			return err
		}

		var fields map[string]any
		if key != nil {
			res.Matched = 1
			if fields, err = decodeFields(key, value); err != nil {
				return err
			}
		} else {
			if !upsert || filter.Key != nil {
				return nil
			}
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			key = make([]byte, cursor.SequenceWidth)
			binary.BigEndian.PutUint64(key, seq)
			res.UpsertedKey = clone(key)
			fields = make(map[string]any, len(filter.Eq)+len(update.Set))
			for _, cond := range filter.Eq {
				fields[cond.Field] = cond.Value
			}
		}

		applyUpdate(fields, update)
		encoded, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		if res.UpsertedKey == nil && bytes.Equal(encoded, value) {
			return nil
		}
		if res.UpsertedKey == nil {
			res.Modified = 1
		}
		return bucket.Put(key, encoded)
	})
	if err != nil {
		return UpdateResult{}, unavailable("update one", err)
	}
	return res, nil
}

// Distinct returns the sorted distinct string values of field.
func (c *boltCollection) Distinct(ctx context.Context, field string) ([]string, error) {
	if err := c.handle.check(ctx); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	err := c.handle.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(c.bucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			if v == nil {
				return nil
			}
			fields, err := decodeFields(k, v)
			if err != nil {
				return err
			}
			switch val := fields[field].(type) {
			case string:
				seen[val] = struct{}{}
			case []any:
				for _, item := range val {
					if s, ok := item.(string); ok {
						seen[s] = struct{}{}
					}
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, unavailable("distinct", err)
	}

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func findMatch(bucket *bolt.Bucket, filter Filter) ([]byte, []byte, error) {
	if filter.Key != nil {
		value := bucket.Get(filter.Key)
		if value == nil {
			return nil, nil, nil
		}
		ok, err := matches(filter.Key, value, filter)
		if err != nil || !ok {
			return nil, nil, err
		}
		return filter.Key, value, nil
	}

	cur := bucket.Cursor()
	for k, v := cur.First(); k != nil; k, v = cur.Next() {
		if v == nil {
			continue
		}
		ok, err := matches(k, v, filter)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			return k, v, nil
		}
	}
	return nil, nil, nil
}

func seekStart(cur *bolt.Cursor, q Query) ([]byte, []byte) {
	if q.Order == Descending {
		if q.Before == nil {
			return cur.Last()
		}
		// Seek lands on the first key >= Before; one step back is the first key < Before.
		if k, _ := cur.Seek(q.Before); k == nil {
			return cur.Last()
		}
		return cur.Prev()
	}

	if q.After == nil {
		return cur.First()
	}
	k, v := cur.Seek(q.After)
	if k != nil && bytes.Equal(k, q.After) {
		return cur.Next()
	}
	return k, v
}

func step(cur *bolt.Cursor, order Order) ([]byte, []byte) {
	if order == Descending {
		return cur.Prev()
	}
	return cur.Next()
}

func outOfRange(k []byte, q Query) bool {
	if q.Order == Descending {
		return q.After != nil && bytes.Compare(k, q.After) <= 0
	}
	return q.Before != nil && bytes.Compare(k, q.Before) >= 0
}

func matches(key, value []byte, filter Filter) (bool, error) {
	if filter.Key != nil && !bytes.Equal(key, filter.Key) {
		return false, nil
	}
	if len(filter.Eq) == 0 {
		return true, nil
	}

	fields, err := decodeFields(key, value)
	if err != nil {
		return false, err
	}
	for _, cond := range filter.Eq {
		if !fieldEquals(fields[cond.Field], cond.Value) {
			return false, nil
		}
	}
	return true, nil
}

// decodeFields keeps numbers as json.Number so integer fields survive a rewrite.
func decodeFields(key, value []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode document %x: %w", key, err)
	}
	if fields == nil {
		fields = make(map[string]any)
	}
	return fields, nil
}

func fieldEquals(stored any, want string) bool {
	switch val := stored.(type) {
	case nil:
		return false
	case string:
		return val == want
	case []any:
		for _, item := range val {
			if fieldEquals(item, want) {
				return true
			}
		}
		return false
	default:
		return fmt.Sprint(val) == want
	}
}

func applyUpdate(fields map[string]any, update Update) {
	for k, v := range update.Set {
		fields[k] = v
	}
	for field, values := range update.AddToSet {
		existing := make([]any, 0, len(values))
		present := make(map[string]struct{})
		if arr, ok := fields[field].([]any); ok {
			for _, item := range arr {
				existing = append(existing, item)
				if s, ok := item.(string); ok {
					present[s] = struct{}{}
				}
			}
		}
		for _, v := range values {
			if _, ok := present[v]; ok {
				continue
			}
			present[v] = struct{}{}
			existing = append(existing, v)
		}
		fields[field] = existing
	}
}

func unavailable(op string, err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: bbolt %s: %v", domain.ErrStoreUnavailable, op, err)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
