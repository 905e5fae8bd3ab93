package db

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Collection names. They double as top-level keys of the export document.
const (
	MaintenanceItems   = "maintenance_items"
	MaintenanceRecords = "maintenance_records"
	Stocks             = "stocks"
	Goals              = "goals"
	Expenses           = "expenses"
	GalleryProfiles    = "muses"
	Settings           = "settings"

	// metaCollection holds bookkeeping such as the schema version. It is
	// never exported.
	metaCollection = "_meta"
)

// dataCollections are the domain collections, in export and import order.
// Items precede records so record references can be resolved on import.
var dataCollections = []string{
	GalleryProfiles,
	Stocks,
	Goals,
	Expenses,
	MaintenanceItems,
	MaintenanceRecords,
}

// allCollections is every collection created on first open.
var allCollections = append(append([]string{}, dataCollections...), Settings)

// keyField names the field each collection is keyed by.
func keyField(collection string) string {
	switch collection {
	case Stocks:
		return "symbol"
	case Settings:
		return "key"
	default:
		return "id"
	}
}

func knownCollection(collection string) bool {
	for _, c := range allCollections {
		if c == collection {
			return true
		}
	}
	return false
}

// DataCollections returns the domain collection names in export order.
func DataCollections() []string {
	return append([]string{}, dataCollections...)
}

// keyOf extracts the record key. Numeric keys are formatted without a
// trailing fraction so 3 and "3" address the same record.
func keyOf(collection string, record map[string]any) (string, error) {
	field := keyField(collection)
	switch v := record[field].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case json.Number:
		return v.String(), nil
	}
	return "", fmt.Errorf("%s record has no usable %q key", collection, field)
}

// Setting keys used by the vehicle screens.
const (
	SettingCarMileage = "car_mileage"
	SettingCarModel   = "car_model"
	SettingCarPlate   = "car_plate"
)

// exportedSettings are the settings relevant to restoring on another
// device, mapped to their export document field.
var exportedSettings = []struct {
	key   string
	field string
}{
	{SettingCarMileage, "carMileage"},
	{SettingCarModel, "carModel"},
	{SettingCarPlate, "carPlate"},
}
