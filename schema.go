package formstage

import (
	"encoding/json"
	"strconv"

	"github.com/invopop/jsonschema"

	"github.com/davidroman0O/formstage/store"
)

// FormSchema describes the values a filled-in form must carry, one property per input
// field keyed by field id. Labels and buttons collect nothing and are left out.
func FormSchema(title string, fields []FormField) *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Version:              jsonschema.Version,
		Title:                title,
		Type:                 "object",
		Properties:           jsonschema.NewProperties(),
		AdditionalProperties: jsonschema.FalseSchema,
	}

	for _, field := range fields {
		if !field.Type.IsInput() {
			continue
		}
		schema.Properties.Set(field.ID, fieldSchema(field))
		if field.Required {
			schema.Required = append(schema.Required, field.ID)
		}
	}
	return schema
}

// StageSchema is FormSchema for a stage's live fields.
func StageSchema(stage Stage) *jsonschema.Schema {
	return FormSchema(stage.Name, stage.Fields)
}

// VersionSchema is FormSchema for a published snapshot.
func VersionSchema(version FormVersion) *jsonschema.Schema {
	s := FormSchema(version.StageName, version.Fields)
	s.Description = "version " + strconv.Itoa(version.Version)
	return s
}

func fieldSchema(field FormField) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Title:       field.Label,
		Description: field.Placeholder,
		Type:        "string",
	}

	switch field.Type {
	case FieldNumber:
		s.Type = "number"
		if v := field.Validation; v != nil {
			if v.Min != nil {
				s.Minimum = jsonNumber(*v.Min)
			}
			if v.Max != nil {
				s.Maximum = jsonNumber(*v.Max)
			}
		}
	case FieldEmail:
		s.Format = "email"
	case FieldDate:
		s.Format = "date"
	case FieldFile:
		s.ContentEncoding = "base64"
	case FieldCheckbox:
		s.Type = "boolean"
	case FieldSelect, FieldRadio:
		for _, option := range field.Options {
			s.Enum = append(s.Enum, option)
		}
	}

	if field.Validation != nil && field.Validation.Pattern != "" && s.Type == "string" {
		s.Pattern = field.Validation.Pattern
	}
	return s
}

func jsonNumber(f float64) json.Number {
	return json.Number(strconv.FormatFloat(f, 'f', -1, 64))
}

// DocumentSchemas describes the stored documents by storage key.
func DocumentSchemas() map[string]map[string]any {
	out := make(map[string]map[string]any, 2)
	out[KeyProjectTypes] = store.TypeSchema([]ProjectCategory{})
	out[VersionsKey("{categoryId}")] = store.TypeSchema([]FormVersion{})
	return out
}
