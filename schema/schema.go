// Package schema checks decoded JSON documents against a subset of JSON
// Schema (draft-07). It is used to reject malformed sync payloads before
// they reach the local store.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ValidationError lists every violation found in a document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return e.Problems[0]
	}
	return fmt.Sprintf("%d problems: %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Validate checks value against schema and returns a *ValidationError when
// anything fails. A nil schema accepts everything.
//
// Supported keywords:
//   - type (a name or a list of names)
//   - properties, required, additionalProperties
//   - items
//   - minimum, maximum, exclusiveMinimum, exclusiveMaximum
//   - minLength, maxLength, minItems, maxItems
//   - enum
//
// Keywords that do not apply to the value's type are ignored, so a schema
// without "type" only constrains values of the shape it describes.
func Validate(schema map[string]any, value any) error {
	if schema == nil {
		return nil
	}
	c := &checker{}
	c.value(schema, value, "$")
	if len(c.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: c.problems}
}

type checker struct {
	problems []string
}

func (c *checker) fail(path, format string, args ...any) {
	c.problems = append(c.problems, path+": "+fmt.Sprintf(format, args...))
}

func (c *checker) value(schema map[string]any, value any, path string) {
	if !c.typeMatches(schema["type"], value, path) {
		// Deeper checks on a value of the wrong type only add noise.
		return
	}
	if allowed, ok := schema["enum"].([]any); ok && !inEnum(allowed, value) {
		c.fail(path, "value not in enum %v", allowed)
	}

	switch v := value.(type) {
	case map[string]any:
		c.object(schema, v, path)
	case []any:
		c.array(schema, v, path)
	case string:
		c.length(schema, "minLength", "maxLength", "string length", len(v), path)
	case float64:
		c.number(schema, v, path)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			c.number(schema, f, path)
		}
	}
}

func (c *checker) typeMatches(typ any, value any, path string) bool {
	var names []string
	switch t := typ.(type) {
	case string:
		names = []string{t}
	case []any:
		for _, n := range t {
			if s, ok := n.(string); ok {
				names = append(names, s)
			}
		}
	default:
		return true
	}
	actual := typeOf(value)
	for _, want := range names {
		if want == actual || (want == "number" && actual == "integer") {
			return true
		}
		if want == "integer" && isWhole(value) {
			return true
		}
	}
	if len(names) == 1 {
		c.fail(path, "expected type %q, got %q", names[0], actual)
	} else {
		c.fail(path, "expected one of types %v, got %q", names, actual)
	}
	return false
}

func typeOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case int, int64:
		return "integer"
	}
	return reflect.TypeOf(v).String()
}

func isWhole(v any) bool {
	switch n := v.(type) {
	case float64:
		return n == float64(int64(n))
	case json.Number:
		_, err := n.Int64()
		return err == nil
	}
	return false
}

func inEnum(allowed []any, value any) bool {
	for _, a := range allowed {
		if reflect.DeepEqual(a, value) {
			return true
		}
	}
	return false
}

func (c *checker) object(schema map[string]any, obj map[string]any, path string) {
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			field, ok := r.(string)
			if !ok {
				continue
			}
			if _, present := obj[field]; !present {
				c.fail(path, "missing required field %q", field)
			}
		}
	}

	props, _ := schema["properties"].(map[string]any)
	fields := make([]string, 0, len(obj))
	for f := range obj {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var extra []string
	for _, f := range fields {
		if ps, ok := props[f].(map[string]any); ok {
			c.value(ps, obj[f], path+"."+f)
			continue
		}
		if _, declared := props[f]; declared {
			continue
		}
		switch ap := schema["additionalProperties"].(type) {
		case bool:
			if !ap {
				extra = append(extra, f)
			}
		case map[string]any:
			c.value(ap, obj[f], path+"."+f)
		}
	}
	if len(extra) > 0 {
		c.fail(path, "additional properties not allowed: %s", strings.Join(extra, ", "))
	}
}

func (c *checker) array(schema map[string]any, arr []any, path string) {
	c.length(schema, "minItems", "maxItems", "array length", len(arr), path)
	items, ok := schema["items"].(map[string]any)
	if !ok {
		return
	}
	for i, elem := range arr {
		c.value(items, elem, fmt.Sprintf("%s[%d]", path, i))
	}
}

func (c *checker) length(schema map[string]any, minKey, maxKey, what string, n int, path string) {
	if limit, ok := toFloat(schema[minKey]); ok && float64(n) < limit {
		c.fail(path, "%s %d is less than %s %v", what, n, minKey, limit)
	}
	if limit, ok := toFloat(schema[maxKey]); ok && float64(n) > limit {
		c.fail(path, "%s %d is greater than %s %v", what, n, maxKey, limit)
	}
}

func (c *checker) number(schema map[string]any, n float64, path string) {
	if v, ok := toFloat(schema["minimum"]); ok && n < v {
		c.fail(path, "%v is less than minimum %v", n, v)
	}
	if v, ok := toFloat(schema["maximum"]); ok && n > v {
		c.fail(path, "%v is greater than maximum %v", n, v)
	}
	if v, ok := toFloat(schema["exclusiveMinimum"]); ok && n <= v {
		c.fail(path, "%v is not greater than exclusiveMinimum %v", n, v)
	}
	if v, ok := toFloat(schema["exclusiveMaximum"]); ok && n >= v {
		c.fail(path, "%v is not less than exclusiveMaximum %v", n, v)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
