package db

import (
	"context"
	"sort"
	"strconv"

	"github.com/stevemurr/lifeos/model"
)

// ServiceLogEntry is a maintenance record joined with its item.
type ServiceLogEntry struct {
	model.MaintenanceRecord
	// ItemLabel is the current item name, or the record's stored label
	// when the item no longer exists.
	ItemLabel string
}

// ServiceLog returns maintenance records newest first, each labelled with
// the name its item has now.
func (d *DB) ServiceLog(ctx context.Context) ([]ServiceLogEntry, error) {
	itemDocs, err := d.GetAll(ctx, MaintenanceItems)
	if err != nil {
		return nil, err
	}
	recordDocs, err := d.GetAll(ctx, MaintenanceRecords)
	if err != nil {
		return nil, err
	}
	items := decodeRecords[model.MaintenanceItem](d, MaintenanceItems, itemDocs)
	records := decodeRecords[model.MaintenanceRecord](d, MaintenanceRecords, recordDocs)

	names := make(map[string]string, len(items))
	for _, it := range items {
		names[it.ID] = it.Name
	}
	log := make([]ServiceLogEntry, 0, len(records))
	for _, r := range records {
		label, ok := names[r.ItemID]
		if !ok {
			label = r.ItemName
		}
		log = append(log, ServiceLogEntry{MaintenanceRecord: r, ItemLabel: label})
	}
	sort.SliceStable(log, func(i, j int) bool { return log[i].Date > log[j].Date })
	return log, nil
}

// ItemStatus is a maintenance item with its health at the current mileage.
type ItemStatus struct {
	model.MaintenanceItem
	Health model.MaintenanceHealth
}

// MaintenanceStatus evaluates every item against the car_mileage setting.
func (d *DB) MaintenanceStatus(ctx context.Context) ([]ItemStatus, error) {
	docs, err := d.GetAll(ctx, MaintenanceItems)
	if err != nil {
		return nil, err
	}
	items := decodeRecords[model.MaintenanceItem](d, MaintenanceItems, docs)
	raw, err := d.GetSetting(ctx, SettingCarMileage)
	if err != nil {
		return nil, err
	}
	mileage := mileageValue(raw)
	out := make([]ItemStatus, 0, len(items))
	for _, it := range items {
		out = append(out, ItemStatus{MaintenanceItem: it, Health: it.Health(mileage)})
	}
	return out, nil
}

// Holdings returns the stock records as typed holdings.
func (d *DB) Holdings(ctx context.Context) ([]model.StockHolding, error) {
	docs, err := d.GetAll(ctx, Stocks)
	if err != nil {
		return nil, err
	}
	return decodeRecords[model.StockHolding](d, Stocks, docs), nil
}

// decodeRecords converts documents for the read views. The store accepts
// any record shape, so records that do not fit T are logged and left out
// rather than failing the whole view.
func decodeRecords[T any](d *DB, collection string, docs []map[string]any) []T {
	return model.FromDocuments[T](docs, func(doc map[string]any, err error) {
		key, _ := keyOf(collection, doc)
		d.logger.Warn("skipping malformed record", "collection", collection, "key", key, "err", err)
	})
}

func mileageValue(v any) int {
	switch m := v.(type) {
	case float64:
		return int(m)
	case int:
		return m
	case string:
		n, _ := strconv.Atoi(m)
		return n
	}
	return 0
}
