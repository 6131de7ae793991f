package store

import (
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
)

// TypeSchema returns a JSON Schema, as a generic map, describing how values of v's type are
// stored. Slices and pointers are described through their element types.
func TypeSchema(v any) map[string]any {
	t := reflect.TypeOf(v)
	if t == nil {
		return basicSchema()
	}
	return typeSchema(t)
}

func typeSchema(t reflect.Type) map[string]any {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		items := typeSchema(t.Elem())
		delete(items, "$schema")
		delete(items, "$id")
		return map[string]any{
			"type":  "array",
			"items": items,
		}
	}

	reflector := jsonschema.Reflector{
		// Expansion looks up the struct definition by name, which only exists for structs.
		ExpandedStruct:            t.Kind() == reflect.Struct,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.ReflectFromType(t)

	data, err := json.Marshal(schema)
	if err != nil {
		return basicSchema()
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return basicSchema()
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	return out
}

func basicSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}
