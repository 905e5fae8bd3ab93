package db

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// timestampLayout matches the ISO 8601 form browsers emit.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ExportDocument is a full snapshot of the store. On the wire it is a
// single flat JSON object: one array per collection, one field per
// exported setting, plus "timestamp" and "schemaVersion".
//
// A collection or setting missing from a decoded document is absent from
// Collections or Settings; import leaves it untouched.
type ExportDocument struct {
	SchemaVersion int
	Timestamp     time.Time
	Collections   map[string][]map[string]any
	// Settings is keyed by setting key, not by wire field name.
	Settings map[string]any
	// Skipped lists top-level fields that were present but malformed.
	Skipped []string
}

func (doc ExportDocument) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(doc.Collections)+len(doc.Settings)+2)
	for name, records := range doc.Collections {
		if records == nil {
			records = []map[string]any{}
		}
		out[name] = records
	}
	for _, s := range exportedSettings {
		if v, ok := doc.Settings[s.key]; ok && v != nil {
			out[s.field] = v
		}
	}
	out["timestamp"] = doc.Timestamp.UTC().Format(timestampLayout)
	out["schemaVersion"] = doc.SchemaVersion
	return json.Marshal(out)
}

// UnmarshalJSON accepts any JSON object. Fields of the wrong type are
// recorded in Skipped instead of failing the whole document. A document
// without schemaVersion is treated as version 1.
func (doc *ExportDocument) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("export document: %w", err)
	}
	*doc = ExportDocument{
		SchemaVersion: 1,
		Collections:   make(map[string][]map[string]any),
		Settings:      make(map[string]any),
	}
	for _, name := range dataCollections {
		msg, ok := raw[name]
		if !ok || isNull(msg) {
			continue
		}
		var records []map[string]any
		if err := json.Unmarshal(msg, &records); err != nil {
			doc.Skipped = append(doc.Skipped, name)
			continue
		}
		if records == nil {
			records = []map[string]any{}
		}
		doc.Collections[name] = records
	}
	for _, s := range exportedSettings {
		msg, ok := raw[s.field]
		if !ok || isNull(msg) {
			continue
		}
		var v any
		if err := json.Unmarshal(msg, &v); err != nil {
			doc.Skipped = append(doc.Skipped, s.field)
			continue
		}
		doc.Settings[s.key] = v
	}
	if msg, ok := raw["timestamp"]; ok {
		var ts string
		if err := json.Unmarshal(msg, &ts); err == nil {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				doc.Timestamp = t
			}
		}
	}
	if msg, ok := raw["schemaVersion"]; ok {
		var v int
		if err := json.Unmarshal(msg, &v); err != nil {
			doc.Skipped = append(doc.Skipped, "schemaVersion")
		} else {
			doc.SchemaVersion = v
		}
	}
	return nil
}

func isNull(msg json.RawMessage) bool {
	return string(msg) == "null"
}

// ExportAllData snapshots every domain collection and the exported
// settings. Writes issued while the export runs wait until it is done.
func (d *DB) ExportAllData(ctx context.Context) (*ExportDocument, error) {
	if err := d.Init(ctx); err != nil {
		return nil, d.done("export", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	doc := &ExportDocument{
		SchemaVersion: CurrentSchemaVersion,
		Timestamp:     d.now(),
		Collections:   make(map[string][]map[string]any, len(dataCollections)),
		Settings:      make(map[string]any),
	}
	for _, name := range dataCollections {
		records, err := d.getAll(ctx, name)
		if err != nil {
			return nil, d.done("export", fmt.Errorf("read %s: %w", name, err))
		}
		doc.Collections[name] = records
	}
	for _, s := range exportedSettings {
		v, err := d.getSetting(ctx, s.key)
		if err != nil {
			return nil, d.done("export", fmt.Errorf("read setting %s: %w", s.key, err))
		}
		if v != nil {
			doc.Settings[s.key] = v
		}
	}
	return doc, d.done("export", nil)
}

// ImportAllData upserts every collection and setting present in doc.
// Anything absent is left as it is; nothing is deleted. Documents from
// schema version 1 are upgraded on the way in without modifying doc. Each
// collection is written in its own transaction, so a failure part-way
// leaves earlier collections imported.
func (d *DB) ImportAllData(ctx context.Context, doc *ExportDocument) error {
	if err := d.Init(ctx); err != nil {
		return d.done("import", err)
	}
	if doc == nil {
		return nil
	}
	if doc.SchemaVersion > CurrentSchemaVersion {
		return d.done("import", fmt.Errorf("%w: document is version %d, this build supports %d",
			ErrUnsupportedSchema, doc.SchemaVersion, CurrentSchemaVersion))
	}
	if len(doc.Skipped) > 0 {
		d.logger.Warn("import skipped malformed fields", "fields", doc.Skipped)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	collections := doc.Collections
	if doc.SchemaVersion < 2 {
		var err error
		if collections, err = d.upgradeCollections(ctx, doc.Collections); err != nil {
			return d.done("import", err)
		}
	}
	for _, name := range dataCollections {
		records, ok := collections[name]
		if !ok {
			continue
		}
		if err := d.putAll(ctx, name, records); err != nil {
			return d.done("import", fmt.Errorf("import %s: %w", name, err))
		}
	}
	for _, s := range exportedSettings {
		v, ok := doc.Settings[s.key]
		if !ok || v == nil {
			continue
		}
		err := d.engine.Put(ctx, Settings, s.key, map[string]any{"key": s.key, "value": v})
		if err != nil {
			return d.done("import", fmt.Errorf("import setting %s: %w", s.key, err))
		}
	}
	d.logger.Info("imported data", "collections", len(doc.Collections), "settings", len(doc.Settings))
	return d.done("import", nil)
}

// upgradeCollections applies the version 2 record transforms to the
// collections of a version 1 document. The maintenance records and items
// are copied first; doc itself is not modified. Record item names resolve
// against the incoming items first, then against items already stored.
func (d *DB) upgradeCollections(ctx context.Context, in map[string][]map[string]any) (map[string][]map[string]any, error) {
	out := make(map[string][]map[string]any, len(in))
	for name, records := range in {
		out[name] = records
	}
	items, hasItems := in[MaintenanceItems]
	if hasItems {
		items = copyRecords(items)
		for _, it := range items {
			stripItemStatus(it)
		}
		out[MaintenanceItems] = items
	}
	records, ok := in[MaintenanceRecords]
	if !ok {
		return out, nil
	}
	records = copyRecords(records)
	stored, err := d.getAll(ctx, MaintenanceItems)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", MaintenanceItems, err)
	}
	ids := itemIDsByName(stored)
	for name, id := range itemIDsByName(items) {
		ids[name] = id
	}
	for _, r := range records {
		linkRecord(r, ids)
	}
	out[MaintenanceRecords] = records
	return out, nil
}

// copyRecords copies each record's top-level fields, which is all the
// upgrade transforms touch.
func copyRecords(records []map[string]any) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = maps.Clone(r)
	}
	return out
}
