package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// SchemaType is a JSON Schema primitive type.
type SchemaType string

const (
	SchemaTypeString  SchemaType = "string"
	SchemaTypeNumber  SchemaType = "number"
	SchemaTypeInteger SchemaType = "integer"
	SchemaTypeBoolean SchemaType = "boolean"
	SchemaTypeObject  SchemaType = "object"
	SchemaTypeArray   SchemaType = "array"
)

// JSONSchema is the subset of JSON Schema used for tool parameters. It
// builds the schemas advertised to models and validates the arguments they
// send back.
type JSONSchema struct {
	Description string     `json:"description,omitempty"`
	Type        SchemaType `json:"type,omitempty"`

	Properties map[string]*JSONSchema `json:"properties,omitempty"`
	Required   []string               `json:"required,omitempty"`
	Items      *JSONSchema            `json:"items,omitempty"`
	Enum       []any                  `json:"enum,omitempty"`
}

// NewObjectSchema 创建对象 schema
func NewObjectSchema() *JSONSchema {
	return &JSONSchema{Type: SchemaTypeObject, Properties: make(map[string]*JSONSchema)}
}

// NewArraySchema 创建数组 schema
func NewArraySchema(items *JSONSchema) *JSONSchema {
	return &JSONSchema{Type: SchemaTypeArray, Items: items}
}

// NewStringSchema 创建字符串 schema
func NewStringSchema() *JSONSchema {
	return &JSONSchema{Type: SchemaTypeString}
}

// NewNumberSchema 创建数字 schema
func NewNumberSchema() *JSONSchema {
	return &JSONSchema{Type: SchemaTypeNumber}
}

// AddProperty adds a property to an object schema.
func (s *JSONSchema) AddProperty(name string, prop *JSONSchema) *JSONSchema {
	if s.Properties == nil {
		s.Properties = make(map[string]*JSONSchema)
	}
	s.Properties[name] = prop
	return s
}

// AddRequired marks properties as required.
func (s *JSONSchema) AddRequired(names ...string) *JSONSchema {
	s.Required = append(s.Required, names...)
	return s
}

// WithDescription sets the description.
func (s *JSONSchema) WithDescription(desc string) *JSONSchema {
	s.Description = desc
	return s
}

// WithEnum restricts the schema to values.
func (s *JSONSchema) WithEnum(values ...any) *JSONSchema {
	s.Enum = values
	return s
}

// ToJSON serializes the schema to JSON.
func (s *JSONSchema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// ParseSchema decodes a JSON schema document.
func ParseSchema(data []byte) (*JSONSchema, error) {
	var schema JSONSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON schema: %w", err)
	}
	return &schema, nil
}

// Validate checks a JSON document against the schema. Empty input is treated
// as an empty object. Properties not declared in the schema are accepted.
func (s *JSONSchema) Validate(data json.RawMessage) error {
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage(`{}`)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("not valid JSON: %w", err)
	}
	return s.validateValue("", v)
}

func (s *JSONSchema) validateValue(path string, v any) error {
	if s == nil {
		return nil
	}
	if err := checkType(s.Type, v); err != nil {
		return pathError(path, err)
	}
	if len(s.Enum) > 0 && !inEnum(s.Enum, v) {
		return pathError(path, fmt.Errorf("value %v is not one of %v", v, s.Enum))
	}

	switch val := v.(type) {
	case map[string]any:
		for _, name := range s.Required {
			if _, ok := val[name]; !ok {
				return pathError(path, fmt.Errorf("missing required property %q", name))
			}
		}
		names := make([]string, 0, len(s.Properties))
		for name := range s.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if pv, ok := val[name]; ok {
				if err := s.Properties[name].validateValue(joinPath(path, name), pv); err != nil {
					return err
				}
			}
		}
	case []any:
		for i, item := range val {
			if err := s.Items.validateValue(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkType(t SchemaType, v any) error {
	ok := true
	switch t {
	case "":
	case SchemaTypeString:
		_, ok = v.(string)
	case SchemaTypeBoolean:
		_, ok = v.(bool)
	case SchemaTypeObject:
		_, ok = v.(map[string]any)
	case SchemaTypeArray:
		_, ok = v.([]any)
	case SchemaTypeNumber:
		_, ok = v.(json.Number)
	case SchemaTypeInteger:
		n, isNum := v.(json.Number)
		var f float64
		if isNum {
			f, _ = n.Float64()
		}
		ok = isNum && f == math.Trunc(f)
	default:
		return fmt.Errorf("unsupported schema type %q", t)
	}
	if !ok {
		return fmt.Errorf("expected %s, got %s", t, jsonKind(v))
	}
	return nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case []any:
		return "array"
	default:
		return "object"
	}
}

func inEnum(enum []any, v any) bool {
	for _, e := range enum {
		if n, ok := v.(json.Number); ok {
			f, _ := n.Float64()
			if ef, ok := toFloat(e); ok && ef == f {
				return true
			}
			continue
		}
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func pathError(path string, err error) error {
	if path == "" {
		return err
	}
	return fmt.Errorf("%s: %w", path, err)
}
