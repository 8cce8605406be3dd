package templates

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// shapeSchema checks a field descriptor and everything nested under it.
// Nested descriptors may omit description and required.
const shapeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "shape": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"enum": ["string", "number", "boolean", "array", "object"]},
        "description": {"type": "string"},
        "required": {"type": "boolean"},
        "items": {"$ref": "#/definitions/shape"},
        "properties": {
          "type": "object",
          "additionalProperties": {"$ref": "#/definitions/shape"}
        }
      },
      "allOf": [
        {"if": {"properties": {"type": {"const": "array"}}}, "then": {"required": ["items"]}},
        {"if": {"properties": {"type": {"const": "object"}}}, "then": {"required": ["properties"]}}
      ]
    }
  },
  "allOf": [{"$ref": "#/definitions/shape"}]
}`

var fieldShape = jsonschema.MustCompileString("promptctx://templates/field.json", shapeSchema)

// Validate checks a decoded definition. raw is normally the result of
// decoding JSON into an any; typed Definitions are accepted too.
//
// Every top-level field needs a string description, a boolean required flag
// and a known type. Arrays need items and objects need properties; nested
// shapes are checked recursively but errors name only the top-level field.
func Validate(raw any) error {
	doc, err := toJSONValue(raw)
	if err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return &ValidationError{Reason: "definition must be an object mapping field names to descriptors"}
	}
	if len(obj) == 0 {
		return &ValidationError{Reason: "definition must declare at least one field"}
	}

	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := validateField(name, obj[name]); err != nil {
			return err
		}
	}
	return nil
}

func validateField(name string, v any) error {
	fail := func(format string, args ...any) error {
		return &ValidationError{Field: name, Reason: fmt.Sprintf(format, args...)}
	}

	field, ok := v.(map[string]any)
	if !ok {
		return fail("descriptor must be an object")
	}
	if _, ok := field["description"].(string); !ok {
		return fail("description must be a string")
	}
	if _, ok := field["required"].(bool); !ok {
		return fail("required must be a boolean")
	}
	typ, _ := field["type"].(string)
	if !FieldType(typ).Valid() {
		return fail("type must be one of string, number, boolean, array, object (got %v)", field["type"])
	}
	switch FieldType(typ) {
	case TypeArray:
		if _, ok := field["items"]; !ok {
			return fail("array type requires an items definition")
		}
	case TypeObject:
		if _, ok := field["properties"]; !ok {
			return fail("object type requires a properties definition")
		}
	}
	if err := fieldShape.Validate(field); err != nil {
		return fail("invalid nested %s shape", nestedKey(FieldType(typ)))
	}
	return nil
}

func nestedKey(t FieldType) string {
	if t == TypeArray {
		return "items"
	}
	return "properties"
}

// Parse decodes and validates a JSON definition.
func Parse(data []byte) (Definition, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("definition is not valid JSON: %v", err)}
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	return def, nil
}

// toJSONValue round-trips v through encoding/json so the validator sees
// only the generic JSON value types.
func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("definition is not serializable: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
