package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/gitter-badger/xread/internal/domain"
)

type testDoc struct {
	Link  string   `json:"link"`
	Title string   `json:"title"`
	Time  int64    `json:"time"`
	Tags  []string `json:"tags"`
}

func openTestBolt(t *testing.T) *boltDriver {
	t.Helper()
	drv, err := openBolt(filepath.Join(t.TempDir(), "data", "xread.db"))
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	t.Cleanup(func() { drv.Close(context.Background()) })
	return drv
}

func seed(t *testing.T, drv Driver, coll string, links ...string) [][]byte {
	t.Helper()
	keys := make([][]byte, 0, len(links))
	err := WithHandle(context.Background(), drv, func(h Handle) error {
		c := h.Collection(coll)
		for i, link := range links {
			res, err := c.UpdateOne(context.Background(),
				Filter{Eq: []Cond{{Field: "link", Value: link}}},
				Update{Set: map[string]any{"title": fmt.Sprintf("t%d", i), "time": int64(1000 + i)}},
				true)
			if err != nil {
				return err
			}
			keys = append(keys, res.UpsertedKey)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return keys
}

func find(t *testing.T, drv Driver, coll string, q Query) []testDoc {
	t.Helper()
	docs, err := Within(context.Background(), drv, func(h Handle) ([]Document, error) {
		return h.Collection(coll).Find(context.Background(), q)
	})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	out := make([]testDoc, 0, len(docs))
	for _, d := range docs {
		var td testDoc
		if err := d.Decode(&td); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		out = append(out, td)
	}
	return out
}

func links(docs []testDoc) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Link)
	}
	return out
}

func TestBoltFindHonorsDirectionBoundsAndLimit(t *testing.T) {
	drv := openTestBolt(t)
	keys := seed(t, drv, "article", "a", "b", "c", "d", "e")

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{name: "ascending all", q: Query{}, want: []string{"a", "b", "c", "d", "e"}},
		{name: "ascending limit", q: Query{Limit: 2}, want: []string{"a", "b"}},
		{name: "ascending after", q: Query{After: keys[1], Limit: 2}, want: []string{"c", "d"}},
		{name: "after last key", q: Query{After: keys[4]}, want: []string{}},
		{name: "descending all", q: Query{Order: Descending}, want: []string{"e", "d", "c", "b", "a"}},
		{name: "descending before", q: Query{Order: Descending, Before: keys[3], Limit: 2}, want: []string{"c", "b"}},
		{name: "before first key", q: Query{Order: Descending, Before: keys[0]}, want: []string{}},
		{name: "both bounds", q: Query{After: keys[0], Before: keys[3]}, want: []string{"b", "c"}},
		{name: "filter", q: Query{Filter: Filter{Eq: []Cond{{Field: "title", Value: "t2"}}}}, want: []string{"c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := links(find(t, drv, "article", tt.q))
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBoltFindOnMissingCollectionIsEmpty(t *testing.T) {
	drv := openTestBolt(t)
	if got := find(t, drv, "nothing", Query{Limit: 5}); len(got) != 0 {
		t.Fatalf("expected no documents, got %v", got)
	}
}

func TestBoltUpsertKeepsKeyAndOverwritesFields(t *testing.T) {
	drv := openTestBolt(t)
	ctx := context.Background()
	filter := Filter{Eq: []Cond{{Field: "link", Value: "L1"}, {Field: "title", Value: "T1"}}}

	err := WithHandle(ctx, drv, func(h Handle) error {
		c := h.Collection("article")
		first, err := c.UpdateOne(ctx, filter, Update{Set: map[string]any{"time": int64(1000)}}, true)
		if err != nil {
			return err
		}
		if first.UpsertedKey == nil || first.Matched != 0 {
			return fmt.Errorf("expected insert, got %+v", first)
		}
		second, err := c.UpdateOne(ctx, filter, Update{Set: map[string]any{"time": int64(1700000000123)}}, true)
		if err != nil {
			return err
		}
		if second.UpsertedKey != nil || second.Matched != 1 || second.Modified != 1 {
			return fmt.Errorf("expected in-place update, got %+v", second)
		}

		doc, err := c.FindOne(ctx, filter)
		if err != nil {
			return err
		}
		if string(doc.Key()) != string(first.UpsertedKey) {
			return fmt.Errorf("key changed: %x vs %x", doc.Key(), first.UpsertedKey)
		}
		var td testDoc
		if err := doc.Decode(&td); err != nil {
			return err
		}
		if td.Time != 1700000000123 || td.Title != "T1" || td.Link != "L1" {
			return fmt.Errorf("unexpected document %+v", td)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBoltUpdateWithoutUpsertDoesNotCreate(t *testing.T) {
	drv := openTestBolt(t)
	ctx := context.Background()
	err := WithHandle(ctx, drv, func(h Handle) error {
		res, err := h.Collection("article").UpdateOne(ctx,
			Filter{Key: []byte{0, 0, 0, 0, 0, 0, 0, 9}},
			Update{Set: map[string]any{"topic": "x"}}, false)
		if err != nil {
			return err
		}
		if res.Matched != 0 || res.UpsertedKey != nil {
			return fmt.Errorf("unexpected result %+v", res)
		}
		_, err = h.Collection("article").FindOne(ctx, Filter{})
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("expected ErrNotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBoltAddToSetConvergesUnderConcurrency(t *testing.T) {
	drv := openTestBolt(t)
	keys := seed(t, drv, "article", "x")
	ctx := context.Background()

	sets := [][]string{{"a", "b"}, {"b", "c"}, {"c", "a"}, {"b"}}
	var wg sync.WaitGroup
	errs := make(chan error, len(sets))
	for _, tags := range sets {
		wg.Add(1)
		go func(tags []string) {
			defer wg.Done()
			errs <- WithHandle(ctx, drv, func(h Handle) error {
				_, err := h.Collection("article").UpdateOne(ctx, Filter{Key: keys[0]},
					Update{AddToSet: map[string][]string{"tags": tags}}, false)
				return err
			})
		}(tags)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("AddToSet: %v", err)
		}
	}

	docs := find(t, drv, "article", Query{})
	got := append([]string(nil), docs[0].Tags...)
	sort.Strings(got)
	if fmt.Sprint(got) != "[a b c]" {
		t.Fatalf("expected tags [a b c], got %v", got)
	}
}

func TestBoltFilterMatchesArrayMembership(t *testing.T) {
	drv := openTestBolt(t)
	keys := seed(t, drv, "article", "x", "y")
	ctx := context.Background()
	err := WithHandle(ctx, drv, func(h Handle) error {
		_, err := h.Collection("article").UpdateOne(ctx, Filter{Key: keys[1]},
			Update{AddToSet: map[string][]string{"tags": {"go", "db"}}}, false)
		return err
	})
	if err != nil {
		t.Fatalf("AddToSet: %v", err)
	}

	got := links(find(t, drv, "article", Query{Filter: Filter{Eq: []Cond{{Field: "tags", Value: "db"}}}}))
	if fmt.Sprint(got) != "[y]" {
		t.Fatalf("expected [y], got %v", got)
	}
}

func TestBoltDistinctFlattensArrays(t *testing.T) {
	drv := openTestBolt(t)
	keys := seed(t, drv, "article", "x", "y", "z")
	ctx := context.Background()
	err := WithHandle(ctx, drv, func(h Handle) error {
		c := h.Collection("article")
		updates := []Update{
			{AddToSet: map[string][]string{"tags": {"go", "db"}}, Set: map[string]any{"topic": "tech"}},
			{AddToSet: map[string][]string{"tags": {"db", "ops"}}, Set: map[string]any{"topic": "tech"}},
			{Set: map[string]any{"topic": "sports"}},
		}
		for i, u := range updates {
			if _, err := c.UpdateOne(ctx, Filter{Key: keys[i]}, u, false); err != nil {
				return err
			}
		}
		tags, err := c.Distinct(ctx, "tags")
		if err != nil {
			return err
		}
		if fmt.Sprint(tags) != "[db go ops]" {
			return fmt.Errorf("unexpected tags %v", tags)
		}
		topics, err := c.Distinct(ctx, "topic")
		if err != nil {
			return err
		}
		if fmt.Sprint(topics) != "[sports tech]" {
			return fmt.Errorf("unexpected topics %v", topics)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBoltHandleRejectsUseAfterRelease(t *testing.T) {
	drv := openTestBolt(t)
	ctx := context.Background()
	h, err := drv.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := h.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := h.Collection("feed").Find(ctx, Query{}); !errors.Is(err, errHandleReleased) {
		t.Fatalf("expected errHandleReleased, got %v", err)
	}
	if err := h.Close(ctx); !errors.Is(err, errHandleReleased) {
		t.Fatalf("expected double close to fail, got %v", err)
	}
}

func TestNewDriverRejectsUnknownType(t *testing.T) {
	if _, err := NewDriver(context.Background(), "redis", Options{}); err == nil {
		t.Fatalf("expected error for unsupported storage type")
	}
	if _, err := NewDriver(context.Background(), TypeBolt, Options{}); err == nil {
		t.Fatalf("expected error for missing bbolt path")
	}
	if _, err := NewDriver(context.Background(), TypeMongo, Options{}); err == nil {
		t.Fatalf("expected error for missing mongo uri")
	}
}
