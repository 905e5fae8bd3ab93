package db

import (
	"context"
	"fmt"

	"github.com/stevemurr/lifeos/model"
	"github.com/stevemurr/lifeos/store"
)

// seeds lists the collections that get sample data when found empty.
var seeds = []struct {
	collection string
	records    func() ([]map[string]any, error)
}{
	{GalleryProfiles, func() ([]map[string]any, error) { return model.ToDocuments(model.SeedGalleryProfiles()) }},
	{MaintenanceItems, func() ([]map[string]any, error) { return model.ToDocuments(model.SeedMaintenanceItems()) }},
	{Stocks, func() ([]map[string]any, error) { return model.ToDocuments(model.SeedStocks()) }},
	{Goals, func() ([]map[string]any, error) { return model.ToDocuments(model.SeedGoals()) }},
}

// seed fills each seedable collection that is empty. Collections that
// already hold records are left alone.
func (d *DB) seed(ctx context.Context) error {
	for _, s := range seeds {
		n, err := d.engine.Count(ctx, s.collection)
		if err != nil {
			return fmt.Errorf("count %s: %w", s.collection, err)
		}
		if n > 0 {
			continue
		}
		docs, err := s.records()
		if err != nil {
			return fmt.Errorf("build %s seed: %w", s.collection, err)
		}
		entries := make([]store.Entry, 0, len(docs))
		for _, doc := range docs {
			key, err := keyOf(s.collection, doc)
			if err != nil {
				return err
			}
			entries = append(entries, store.Entry{Key: key, Data: doc})
		}
		if err := d.engine.PutAll(ctx, s.collection, entries); err != nil {
			return fmt.Errorf("seed %s: %w", s.collection, err)
		}
		d.logger.Debug("seeded collection", "collection", s.collection, "records", len(entries))
	}
	return nil
}
