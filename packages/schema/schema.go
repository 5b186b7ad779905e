// Package schema holds declarative structural contracts for API responses.
//
// A Schema names required fields, the accepted type(s) of each field and an
// optional pattern for string values. Schemas are compiled to JSON Schema on
// first use and evaluated with gojsonschema.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeNull    Type = "null"
)

// Schema is a structural contract. It must not be modified after its first
// Validate call.
type Schema struct {
	Types      []Type
	Required   []string
	Properties map[string]*Schema
	Items      *Schema
	Pattern    string

	once     sync.Once
	compiled *gojsonschema.Schema
	err      error
}

// Object builds an object schema; every name in required must be present
func Object(properties map[string]*Schema, required ...string) *Schema {
	return &Schema{Types: []Type{TypeObject}, Properties: properties, Required: required}
}

func String() *Schema {
	return &Schema{Types: []Type{TypeString}}
}

// StringMatching builds a string schema whose value must match pattern
// somewhere (anchor it with ^ and $ for a full match).
func StringMatching(pattern string) *Schema {
	return &Schema{Types: []Type{TypeString}, Pattern: pattern}
}

func Integer() *Schema {
	return &Schema{Types: []Type{TypeInteger}}
}

func Array(items *Schema) *Schema {
	return &Schema{Types: []Type{TypeArray}, Items: items}
}

// AnyOf builds a schema accepting any of the given types
func AnyOf(types ...Type) *Schema {
	return &Schema{Types: types}
}

// JSONSchema renders the schema as a JSON Schema document
func (s *Schema) JSONSchema() map[string]any {
	doc := map[string]any{}
	switch len(s.Types) {
	case 0:
	case 1:
		doc["type"] = string(s.Types[0])
	default:
		types := make([]string, len(s.Types))
		for i, t := range s.Types {
			types[i] = string(t)
		}
		doc["type"] = types
	}
	if len(s.Required) > 0 {
		doc["required"] = append([]string(nil), s.Required...)
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.JSONSchema()
		}
		doc["properties"] = props
	}
	if s.Items != nil {
		doc["items"] = s.Items.JSONSchema()
	}
	if s.Pattern != "" {
		doc["pattern"] = s.Pattern
	}
	return doc
}

func (s *Schema) compile() (*gojsonschema.Schema, error) {
	s.once.Do(func() {
		s.compiled, s.err = gojsonschema.NewSchema(gojsonschema.NewGoLoader(s.JSONSchema()))
		if s.err != nil {
			s.err = fmt.Errorf("compile schema: %w", s.err)
		}
	})
	return s.compiled, s.err
}

// Violation is one reason a document does not satisfy a schema
type Violation struct {
	Field   string
	Message string
}

func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

// ValidationError lists every violation found in a document
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "schema validation failed: " + strings.Join(parts, "; ")
}

// Fields returns the paths of the offending fields
func (e *ValidationError) Fields() []string {
	fields := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		fields[i] = v.Field
	}
	return fields
}

// Validate checks a raw JSON document. It returns nil, a parse error for
// non-JSON input, or a *ValidationError.
func (s *Schema) Validate(data []byte) error {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	return s.validate(gojsonschema.NewBytesLoader(data))
}

// ValidateValue checks an already decoded value
func (s *Schema) ValidateValue(v any) error {
	return s.validate(gojsonschema.NewGoLoader(v))
}

func (s *Schema) validate(doc gojsonschema.JSONLoader) error {
	compiled, err := s.compile()
	if err != nil {
		return err
	}
	result, err := compiled.Validate(doc)
	if err != nil {
		return fmt.Errorf("validate document: %w", err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{}
	for _, re := range result.Errors() {
		verr.Violations = append(verr.Violations, violationFrom(re))
	}
	return verr
}

// Validate checks data against s
func Validate(s *Schema, data []byte) error {
	return s.Validate(data)
}

func violationFrom(re gojsonschema.ResultError) Violation {
	field := re.Field()
	if re.Type() == "required" {
		if prop, ok := re.Details()["property"].(string); ok {
			if field == "" || field == gojsonschema.STRING_ROOT_SCHEMA_PROPERTY {
				field = prop
			} else {
				field = field + "." + prop
			}
		}
	}
	if field == "" {
		field = gojsonschema.STRING_ROOT_SCHEMA_PROPERTY
	}
	return Violation{Field: field, Message: re.Description()}
}
