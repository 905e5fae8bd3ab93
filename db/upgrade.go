package db

import (
	"context"
	"fmt"

	"github.com/stevemurr/lifeos/store"
)

// CurrentSchemaVersion is the layout this code reads and writes.
const CurrentSchemaVersion = 2

const schemaVersionKey = "schema_version"

// upgrade moves stored data from version-1 to version.
type upgrade struct {
	version int
	name    string
	apply   func(ctx context.Context, s store.Store) error
}

// upgrades must stay sorted by version and never be reordered.
var upgrades = []upgrade{
	{1, "create collections", createCollections},
	{2, "reference maintenance items by id", linkMaintenanceRecords},
}

func (d *DB) upgrade(ctx context.Context) error {
	if err := d.engine.CreateCollection(ctx, metaCollection); err != nil {
		return fmt.Errorf("create %s: %w", metaCollection, err)
	}
	current, err := storedVersion(ctx, d.engine)
	if err != nil {
		return err
	}
	if current > CurrentSchemaVersion {
		return fmt.Errorf("%w: stored data is version %d, this build supports %d",
			ErrUnsupportedSchema, current, CurrentSchemaVersion)
	}
	for _, u := range upgrades {
		if u.version <= current {
			continue
		}
		if err := u.apply(ctx, d.engine); err != nil {
			return fmt.Errorf("upgrade to v%d (%s): %w", u.version, u.name, err)
		}
		err := d.engine.Put(ctx, metaCollection, schemaVersionKey,
			map[string]any{"key": schemaVersionKey, "value": u.version})
		if err != nil {
			return fmt.Errorf("record schema v%d: %w", u.version, err)
		}
		d.logger.Info("applied schema upgrade", "version", u.version, "name", u.name)
	}
	return nil
}

// storedVersion returns 0 for an engine that has never been initialized.
func storedVersion(ctx context.Context, s store.Store) (int, error) {
	doc, err := s.Get(ctx, metaCollection, schemaVersionKey)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if doc == nil {
		return 0, nil
	}
	switch v := doc["value"].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	}
	return 0, fmt.Errorf("malformed schema version %v", doc["value"])
}

func createCollections(ctx context.Context, s store.Store) error {
	for _, c := range allCollections {
		if err := s.CreateCollection(ctx, c); err != nil {
			return fmt.Errorf("create %s: %w", c, err)
		}
	}
	return nil
}

// linkMaintenanceRecords drops the persisted item status and rewrites
// records that name their item into records that reference its id.
func linkMaintenanceRecords(ctx context.Context, s store.Store) error {
	items, err := s.GetAll(ctx, MaintenanceItems)
	if err != nil {
		return err
	}
	var changedItems []store.Entry
	docs := make([]map[string]any, 0, len(items))
	for _, e := range items {
		if stripItemStatus(e.Data) {
			changedItems = append(changedItems, e)
		}
		docs = append(docs, e.Data)
	}
	if len(changedItems) > 0 {
		if err := s.PutAll(ctx, MaintenanceItems, changedItems); err != nil {
			return err
		}
	}

	ids := itemIDsByName(docs)
	records, err := s.GetAll(ctx, MaintenanceRecords)
	if err != nil {
		return err
	}
	var changedRecords []store.Entry
	for _, e := range records {
		if linkRecord(e.Data, ids) {
			changedRecords = append(changedRecords, e)
		}
	}
	if len(changedRecords) == 0 {
		return nil
	}
	return s.PutAll(ctx, MaintenanceRecords, changedRecords)
}

// stripItemStatus removes the derived status field. It reports whether the
// document changed.
func stripItemStatus(item map[string]any) bool {
	if _, ok := item["status"]; !ok {
		return false
	}
	delete(item, "status")
	return true
}

func itemIDsByName(items []map[string]any) map[string]string {
	ids := make(map[string]string, len(items))
	for _, it := range items {
		name, _ := it["name"].(string)
		id, err := keyOf(MaintenanceItems, it)
		if name == "" || err != nil {
			continue
		}
		if _, dup := ids[name]; !dup {
			ids[name] = id
		}
	}
	return ids
}

// linkRecord replaces itemName with itemId when the name resolves. An
// unresolved name is kept as a label. It reports whether the document
// changed.
func linkRecord(record map[string]any, ids map[string]string) bool {
	if _, ok := record["itemId"]; ok {
		return false
	}
	name, _ := record["itemName"].(string)
	id, ok := ids[name]
	if !ok {
		return false
	}
	record["itemId"] = id
	delete(record, "itemName")
	return true
}
