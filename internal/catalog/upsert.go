package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/gitter-badger/xread/internal/domain"
	"github.com/gitter-badger/xread/internal/storage"
)

// upsert filters on the natural key, sets every supplied field (creating the
// record when absent) and re-reads the canonical record within one scope.
// The native key of an existing record is never changed.
func (s *Service) upsert(ctx context.Context, collection string, key []storage.Cond, set map[string]any) (storage.Document, error) {
	filter := storage.Filter{Eq: key}

	doc, err := storage.Within(ctx, s.driver, func(h storage.Handle) (storage.Document, error) {
		c := h.Collection(collection)
		res, err := c.UpdateOne(ctx, filter, storage.Update{Set: set}, true)
		if err != nil {
			return nil, err
		}
		s.log.DebugObj("upsert applied", "upsert_result", map[string]any{
			"collection": collection,
			"matched":    res.Matched,
			"modified":   res.Modified,
			"inserted":   res.UpsertedKey != nil,
		})

		doc, err := c.FindOne(ctx, filter)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: upserted %s record missing on re-read", domain.ErrStoreUnavailable, collection)
		}
		return doc, err
	})
	if err != nil {
		s.logFailure("upsert "+collection, err)
		return nil, fmt.Errorf("upsert %s: %w", collection, err)
	}
	return doc, nil
}
