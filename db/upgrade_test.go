package db_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stevemurr/lifeos/db"
	"github.com/stevemurr/lifeos/model"
	"github.com/stevemurr/lifeos/store"
)

// legacyEngine builds an engine laid out the way unversioned stores were:
// items carry a status and records name their item.
func legacyEngine(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	for _, c := range []string{db.MaintenanceItems, db.MaintenanceRecords} {
		if err := s.CreateCollection(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	items := []store.Entry{
		{Key: "oil", Data: map[string]any{"id": "oil", "name": "Engine oil", "lastServiceMileage": float64(45000), "intervalKm": float64(10000), "status": "check"}},
		{Key: "tires", Data: map[string]any{"id": "tires", "name": "Tires", "lastServiceMileage": float64(42000), "intervalKm": float64(12000), "status": "good"}},
	}
	records := []store.Entry{
		{Key: "r1", Data: map[string]any{"id": "r1", "itemName": "Engine oil", "date": "2024-01-10", "mileage": float64(45000), "cost": float64(80)}},
		{Key: "r2", Data: map[string]any{"id": "r2", "itemName": "Wipers", "date": "2024-03-02", "mileage": float64(47000), "cost": float64(20)}},
	}
	if err := s.PutAll(ctx, db.MaintenanceItems, items); err != nil {
		t.Fatal(err)
	}
	if err := s.PutAll(ctx, db.MaintenanceRecords, records); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestUpgradeLinksRecordsToItems(t *testing.T) {
	ctx := context.Background()
	d := db.NewWithEngine(legacyEngine(t), db.WithLogger(quietLogger()))

	items, err := d.GetAll(ctx, db.MaintenanceItems)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("legacy items should not be reseeded, got %d", len(items))
	}
	for _, it := range items {
		if _, ok := it["status"]; ok {
			t.Fatalf("status should be dropped, got %v", it)
		}
	}

	records, err := d.GetAll(ctx, db.MaintenanceRecords)
	if err != nil {
		t.Fatal(err)
	}
	if records[0]["itemId"] != "oil" {
		t.Fatalf("expected r1 linked to oil, got %v", records[0])
	}
	if _, ok := records[0]["itemName"]; ok {
		t.Fatalf("resolved record should drop itemName, got %v", records[0])
	}
	if _, ok := records[1]["itemId"]; ok || records[1]["itemName"] != "Wipers" {
		t.Fatalf("unresolved record should keep its label, got %v", records[1])
	}
}

func TestServiceLogUsesCurrentItemName(t *testing.T) {
	ctx := context.Background()
	d := db.NewWithEngine(legacyEngine(t), db.WithLogger(quietLogger()))

	// Renaming the item must be reflected in the log without touching records.
	if err := d.Save(ctx, db.MaintenanceItems, map[string]any{"id": "oil", "name": "Synthetic oil", "lastServiceMileage": float64(45000), "intervalKm": float64(10000)}); err != nil {
		t.Fatal(err)
	}
	log, err := d.ServiceLog(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(log) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(log))
	}
	if log[0].ID != "r2" || log[0].ItemLabel != "Wipers" {
		t.Fatalf("expected newest record first with stored label, got %+v", log[0])
	}
	if log[1].ItemLabel != "Synthetic oil" {
		t.Fatalf("expected renamed label, got %q", log[1].ItemLabel)
	}
}

func TestMaintenanceStatusUsesMileageSetting(t *testing.T) {
	ctx := context.Background()
	d := db.NewWithEngine(legacyEngine(t), db.WithLogger(quietLogger()))
	if err := d.SetSetting(ctx, db.SettingCarMileage, float64(53500)); err != nil {
		t.Fatal(err)
	}
	status, err := d.MaintenanceStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]model.HealthStatus{}
	for _, s := range status {
		got[s.ID] = s.Health.Status
	}
	if got["oil"] != model.HealthCheck || got["tires"] != model.HealthCheck {
		t.Fatalf("unexpected health %v", got)
	}

	if err := d.SetSetting(ctx, db.SettingCarMileage, "56000"); err != nil {
		t.Fatal(err)
	}
	status, err = d.MaintenanceStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status[0].Health.Status != model.HealthUrgent {
		t.Fatalf("expected oil urgent at 56000 km, got %s", status[0].Health.Status)
	}
}

func TestImportUpgradesVersionOneDocument(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	raw := `{
		"maintenance_items": [
			{"id": "9", "name": "Coolant", "lastServiceMileage": 1000, "intervalKm": 40000, "status": "good"}
		],
		"maintenance_records": [
			{"id": "a", "itemName": "Coolant", "date": "2024-02-01", "mileage": 1000, "cost": 50},
			{"id": "b", "itemName": "Engine oil", "date": "2024-02-02", "mileage": 1000, "cost": 70}
		]
	}`
	var doc db.ExportDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.SchemaVersion != 1 {
		t.Fatalf("expected unversioned document to read as v1, got %d", doc.SchemaVersion)
	}
	if err := d.ImportAllData(ctx, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Collections[db.MaintenanceItems][0]["status"] != "good" {
		t.Fatalf("import modified the caller's items: %v", doc.Collections[db.MaintenanceItems][0])
	}
	if r := doc.Collections[db.MaintenanceRecords][0]; r["itemName"] != "Coolant" || r["itemId"] != nil {
		t.Fatalf("import modified the caller's records: %v", r)
	}

	items, _ := d.GetAll(ctx, db.MaintenanceItems)
	for _, it := range items {
		if _, ok := it["status"]; ok {
			t.Fatalf("imported item kept status: %v", it)
		}
	}
	records, _ := d.GetAll(ctx, db.MaintenanceRecords)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0]["itemId"] != "9" {
		t.Fatalf("expected record linked to incoming item, got %v", records[0])
	}
	// "Engine oil" is a seeded item with id "1".
	if records[1]["itemId"] != "1" {
		t.Fatalf("expected record linked to stored item, got %v", records[1])
	}
}

func TestReadViewsSkipMalformedRecords(t *testing.T) {
	ctx := context.Background()
	d := db.NewWithEngine(legacyEngine(t), db.WithLogger(quietLogger()))

	if err := d.Save(ctx, db.MaintenanceItems, map[string]any{"id": "odd", "name": "Odd", "lastServiceMileage": 45000.5}); err != nil {
		t.Fatal(err)
	}
	if err := d.Save(ctx, db.MaintenanceRecords, map[string]any{"id": "r3", "itemId": "oil", "mileage": "unknown"}); err != nil {
		t.Fatal(err)
	}
	if err := d.Save(ctx, db.Stocks, map[string]any{"symbol": "BAD", "shares": []any{1}}); err != nil {
		t.Fatal(err)
	}

	status, err := d.MaintenanceStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(status) != 2 {
		t.Fatalf("expected the two well-formed items, got %d", len(status))
	}
	log, err := d.ServiceLog(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(log) != 2 {
		t.Fatalf("expected the two well-formed records, got %d", len(log))
	}
	holdings, err := d.Holdings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range holdings {
		if h.Symbol == "BAD" {
			t.Fatal("malformed holding should be skipped")
		}
	}
}
