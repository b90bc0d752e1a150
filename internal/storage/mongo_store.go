package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/gitter-badger/xread/internal/cursor"
	"github.com/gitter-badger/xread/internal/domain"
)

const idField = "_id"

// mongoDriver implements a Driver backed by MongoDB. The client pools
// connections; every handle is a client session that is ended on release.
type mongoDriver struct {
	client   *mongo.Client
	database string
}

// openMongo configures a client for uri. Connections are established lazily.
func openMongo(_ context.Context, uri, database string) (*mongoDriver, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &mongoDriver{client: client, database: database}, nil
}

// Acquire starts a session for one logical operation.
func (m *mongoDriver) Acquire(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m == nil || m.client == nil {
		return nil, fmt.Errorf("%w: mongo driver is closed", domain.ErrStoreUnavailable)
	}
	sess, err := m.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("%w: start session: %v", domain.ErrStoreUnavailable, err)
	}
	return &mongoHandle{session: sess, db: m.client.Database(m.database)}, nil
}

// Codec returns the cursor codec for ObjectIDs.
func (m *mongoDriver) Codec() cursor.Codec {
	return cursor.Codec{Width: cursor.ObjectIDWidth}
}

// Close disconnects the client.
func (m *mongoDriver) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}

type mongoHandle struct {
	session *mongo.Session
	db      *mongo.Database
}

func (h *mongoHandle) Collection(name string) Collection {
	return &mongoCollection{handle: h, coll: h.db.Collection(name)}
}

func (h *mongoHandle) Close(ctx context.Context) error {
	if h.session == nil {
		return errHandleReleased
	}
	h.session.EndSession(ctx)
	h.session = nil
	return nil
}

func (h *mongoHandle) bind(ctx context.Context) (context.Context, error) {
	if h.session == nil {
		return nil, errHandleReleased
	}
	return mongo.NewSessionContext(ctx, h.session), nil
}

type mongoCollection struct {
	handle *mongoHandle
	coll   *mongo.Collection
}

type mongoDocument struct {
	raw bson.Raw
}

func (d mongoDocument) Key() []byte {
	oid, ok := d.raw.Lookup(idField).ObjectIDOK()
	if !ok {
		return nil
	}
	return oid[:]
}

func (d mongoDocument) Decode(out any) error { return bson.Unmarshal(d.raw, out) }

func (c *mongoCollection) FindOne(ctx context.Context, filter Filter) (Document, error) {
	sctx, err := c.handle.bind(ctx)
	if err != nil {
		return nil, err
	}
	f, err := mongoFilter(filter)
	if err != nil {
		return nil, err
	}

	raw, err := c.coll.FindOne(sctx, f).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, mongoUnavailable("find one", err)
	}
	return mongoDocument{raw: raw}, nil
}

func (c *mongoCollection) Find(ctx context.Context, q Query) ([]Document, error) {
	sctx, err := c.handle.bind(ctx)
	if err != nil {
		return nil, err
	}
	f, err := mongoQueryFilter(q)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: idField, Value: sortValue(q.Order)}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := c.coll.Find(sctx, f, opts)
	if err != nil {
		return nil, mongoUnavailable("find", err)
	}
	defer cur.Close(sctx)

	docs := make([]Document, 0)
	for cur.Next(sctx) {
		raw := make(bson.Raw, len(cur.Current))
		copy(raw, cur.Current)
		docs = append(docs, mongoDocument{raw: raw})
	}
	if err := cur.Err(); err != nil {
		return nil, mongoUnavailable("iterate", err)
	}
	return docs, nil
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter Filter, update Update, upsert bool) (UpdateResult, error) {
	sctx, err := c.handle.bind(ctx)
	if err != nil {
		return UpdateResult{}, err
	}
	f, err := mongoFilter(filter)
	if err != nil {
		return UpdateResult{}, err
	}
	if update.Empty() {
		return UpdateResult{}, nil
	}

	res, err := c.coll.UpdateOne(sctx, f, mongoUpdate(update), options.UpdateOne().SetUpsert(upsert))
	if err != nil {
		return UpdateResult{}, mongoUnavailable("update one", err)
	}

	out := UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}
	if oid, ok := res.UpsertedID.(bson.ObjectID); ok {
		out.UpsertedKey = oid[:]
	}
	return out, nil
}

func (c *mongoCollection) Distinct(ctx context.Context, field string) ([]string, error) {
	sctx, err := c.handle.bind(ctx)
	if err != nil {
		return nil, err
	}

	var values []string
	if err := c.coll.Distinct(sctx, field, bson.D{}).Decode(&values); err != nil {
		return nil, mongoUnavailable("distinct", err)
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

func mongoFilter(filter Filter) (bson.D, error) {
	doc := bson.D{}
	if filter.Key != nil {
		oid, err := objectID(filter.Key)
		if err != nil {
			return nil, err
		}
		doc = append(doc, bson.E{Key: idField, Value: oid})
	}
	for _, cond := range filter.Eq {
		doc = append(doc, bson.E{Key: cond.Field, Value: cond.Value})
	}
	return doc, nil
}

func mongoQueryFilter(q Query) (bson.D, error) {
	doc, err := mongoFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	bounds := bson.D{}
	if q.After != nil {
		oid, err := objectID(q.After)
		if err != nil {
			return nil, err
		}
		bounds = append(bounds, bson.E{Key: "$gt", Value: oid})
	}
	if q.Before != nil {
		oid, err := objectID(q.Before)
		if err != nil {
			return nil, err
		}
		bounds = append(bounds, bson.E{Key: "$lt", Value: oid})
	}
	if len(bounds) > 0 {
		doc = append(doc, bson.E{Key: idField, Value: bounds})
	}
	return doc, nil
}

func mongoUpdate(update Update) bson.D {
	doc := bson.D{}
	if len(update.Set) > 0 {
		set := bson.M{}
		for k, v := range update.Set {
			set[k] = v
		}
		doc = append(doc, bson.E{Key: "$set", Value: set})
	}
	if len(update.AddToSet) > 0 {
		add := bson.M{}
		for field, values := range update.AddToSet {
			add[field] = bson.M{"$each": values}
		}
		doc = append(doc, bson.E{Key: "$addToSet", Value: add})
	}
	return doc
}

func sortValue(order Order) int {
	if order == Descending {
		return -1
	}
	return 1
}

func objectID(key []byte) (bson.ObjectID, error) {
	var oid bson.ObjectID
	if len(key) != len(oid) {
		return oid, fmt.Errorf("%w: key has %d bytes, want %d", domain.ErrInvalidCursor, len(key), len(oid))
	}
	copy(oid[:], key)
	return oid, nil
}

func mongoUnavailable(op string, err error) error {
	return fmt.Errorf("%w: mongo %s: %v", domain.ErrStoreUnavailable, op, err)
}
