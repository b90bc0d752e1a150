package pagination

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/gitter-badger/xread/internal/domain"
	"github.com/gitter-badger/xread/internal/storage"
)

type row struct {
	Link   string `json:"link"`
	FeedID string `json:"feedId"`
}

func newTestEngine(t *testing.T, maxPage int) (*Engine, storage.Driver) {
	t.Helper()
	drv, err := storage.NewDriver(context.Background(), storage.TypeBolt, storage.Options{
		BoltPath: filepath.Join(t.TempDir(), "xread.db"),
	})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	t.Cleanup(func() { drv.Close(context.Background()) })
	return NewEngine(drv, Config{MaxPageSize: maxPage}, nil), drv
}

// insert stores articles in order and returns their external ids.
func insert(t *testing.T, e *Engine, drv storage.Driver, rows ...row) []string {
	t.Helper()
	ids := make([]string, 0, len(rows))
	ctx := context.Background()
	err := storage.WithHandle(ctx, drv, func(h storage.Handle) error {
		c := h.Collection(domain.ArticleCollection)
		for _, r := range rows {
			res, err := c.UpdateOne(ctx,
				storage.Filter{Eq: []storage.Cond{{Field: "link", Value: r.Link}}},
				storage.Update{Set: map[string]any{"feedId": r.FeedID}}, true)
			if err != nil {
				return err
			}
			ids = append(ids, drv.Codec().Encode(res.UpsertedKey))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return ids
}

func list(t *testing.T, e *Engine, req Request) ([]string, [][]byte) {
	t.Helper()
	docs, err := e.List(context.Background(), Articles, req)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	linksOut := make([]string, 0, len(docs))
	keys := make([][]byte, 0, len(docs))
	for _, d := range docs {
		var r row
		if err := d.Decode(&r); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		linksOut = append(linksOut, r.Link)
		keys = append(keys, d.Key())
	}
	return linksOut, keys
}

func TestListForwardScenario(t *testing.T) {
	e, drv := newTestEngine(t, 100)
	ids := insert(t, e, drv, row{Link: "A"}, row{Link: "B"}, row{Link: "C"})

	got, _ := list(t, e, Forward(2, ""))
	if fmt.Sprint(got) != "[A B]" {
		t.Fatalf("first page = %v, want [A B]", got)
	}

	got, _ = list(t, e, Forward(2, ids[1]))
	if fmt.Sprint(got) != "[C]" {
		t.Fatalf("second page = %v, want [C]", got)
	}
}

func TestListForwardAndBackwardProperties(t *testing.T) {
	e, drv := newTestEngine(t, 100)
	rows := make([]row, 0, 12)
	for i := 0; i < 12; i++ {
		rows = append(rows, row{Link: fmt.Sprintf("L%02d", i)})
	}
	ids := insert(t, e, drv, rows...)
	codec := drv.Codec()

	for _, n := range []int{1, 3, 5, 20} {
		for _, c := range []int{0, 4, 11} {
			bound, err := codec.Decode(ids[c])
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			_, keys := list(t, e, Forward(n, ids[c]))
			if len(keys) > n {
				t.Fatalf("first=%d returned %d records", n, len(keys))
			}
			for i, k := range keys {
				if bytes.Compare(k, bound) <= 0 {
					t.Fatalf("first=%d after=%d: key %x not > bound", n, c, k)
				}
				if i > 0 && bytes.Compare(keys[i-1], k) >= 0 {
					t.Fatalf("first=%d after=%d: not ascending", n, c)
				}
			}

			_, keys = list(t, e, Backward(n, ids[c]))
			if len(keys) > n {
				t.Fatalf("last=%d returned %d records", n, len(keys))
			}
			for i, k := range keys {
				if bytes.Compare(k, bound) >= 0 {
					t.Fatalf("last=%d before=%d: key %x not < bound", n, c, k)
				}
				if i > 0 && bytes.Compare(keys[i-1], k) <= 0 {
					t.Fatalf("last=%d before=%d: not descending", n, c)
				}
			}
		}
	}
}

func TestListBackwardWithoutCursorStartsAtNewest(t *testing.T) {
	e, drv := newTestEngine(t, 100)
	insert(t, e, drv, row{Link: "A"}, row{Link: "B"}, row{Link: "C"})

	got, _ := list(t, e, Backward(2, ""))
	if fmt.Sprint(got) != "[C B]" {
		t.Fatalf("got %v, want [C B]", got)
	}
}

func TestListRejectsInvalidRequests(t *testing.T) {
	e, _ := newTestEngine(t, 100)
	zero, one, neg := 0, 1, -3

	tests := []struct {
		name string
		req  Request
	}{
		{name: "neither", req: Request{}},
		{name: "both", req: Request{First: &one, Last: &one}},
		{name: "zero first", req: Request{First: &zero}},
		{name: "negative last", req: Request{Last: &neg}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.List(context.Background(), Articles, tt.req)
			if !errors.Is(err, domain.ErrInvalidPageRequest) {
				t.Fatalf("expected ErrInvalidPageRequest, got %v", err)
			}
		})
	}
}

func TestListRejectsMalformedCursor(t *testing.T) {
	e, _ := newTestEngine(t, 100)
	_, err := e.List(context.Background(), Articles, Forward(2, "not-a-cursor"))
	if !errors.Is(err, domain.ErrInvalidCursor) {
		t.Fatalf("expected ErrInvalidCursor, got %v", err)
	}
}

func TestListEmptyCollection(t *testing.T) {
	e, _ := newTestEngine(t, 100)
	docs, err := e.List(context.Background(), Feeds, Forward(5, ""))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected empty result, got %d", len(docs))
	}
}

func TestListAppliesAcceptedFiltersOnly(t *testing.T) {
	e, drv := newTestEngine(t, 100)
	insert(t, e, drv, row{Link: "A", FeedID: "f1"}, row{Link: "B", FeedID: "f2"}, row{Link: "C", FeedID: "f1"})

	got, _ := list(t, e, Forward(10, "").With(FilterFeedID, "f1"))
	if fmt.Sprint(got) != "[A C]" {
		t.Fatalf("feedId filter = %v, want [A C]", got)
	}

	q, err := e.Query(Feeds, Forward(10, "").With(FilterFeedID, "f1"))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(q.Filter.Eq) != 0 {
		t.Fatalf("feeds must ignore feedId filter, got %v", q.Filter.Eq)
	}
}

func TestQueryClampsLimitAndIgnoresMismatchedCursor(t *testing.T) {
	e, _ := newTestEngine(t, 5)
	req := Forward(50, "")
	req.Before = "garbage"
	q, err := e.Query(Articles, req)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if q.Limit != 5 {
		t.Fatalf("expected clamped limit 5, got %d", q.Limit)
	}
	if q.Before != nil || q.Order != storage.Ascending {
		t.Fatalf("unexpected query %+v", q)
	}
}
