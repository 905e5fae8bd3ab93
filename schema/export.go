package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed export.schema.json
var exportSchemaJSON []byte

var exportSchema map[string]any

func init() {
	if err := json.Unmarshal(exportSchemaJSON, &exportSchema); err != nil {
		panic(fmt.Sprintf("schema: embedded export schema: %v", err))
	}
}

// ValidateExport checks the structure of a decoded export document: it
// must be an object, and every record inside a collection array must be an
// object carrying its key. Field values are not checked, since the store
// accepts records of any shape. Top-level fields of the wrong shape pass
// here because import skips them.
func ValidateExport(doc any) error {
	return Validate(exportSchema, doc)
}
