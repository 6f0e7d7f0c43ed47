package resource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError reports a malformed or incomplete request body.
type ValidationError struct {
	Entity string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Entity, e.Reason)
}

// Validator turns a raw request body into a typed payload.
type Validator[P any] interface {
	Parse(body []byte) (P, error)
}

// SchemaValidator checks a body against a JSON schema before decoding it.
type SchemaValidator[P any] struct {
	entity string
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles schema. It panics on an invalid schema, as
// schemas are compile-time constants.
func NewSchemaValidator[P any](entity, schema string) *SchemaValidator[P] {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schema))
	if err != nil {
		panic(fmt.Sprintf("%s schema: %v", entity, err))
	}
	url := "https://feedsync.local/schemas/" + entity + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		panic(fmt.Sprintf("%s schema: %v", entity, err))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("%s schema: %v", entity, err))
	}
	return &SchemaValidator[P]{entity: entity, schema: compiled}
}

// Parse validates body and decodes it into P.
func (v *SchemaValidator[P]) Parse(body []byte) (P, error) {
	var p P
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return p, &ValidationError{Entity: v.entity, Reason: "body is not valid JSON"}
	}
	if err := v.schema.Validate(inst); err != nil {
		return p, &ValidationError{Entity: v.entity, Reason: describe(err)}
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return p, &ValidationError{Entity: v.entity, Reason: err.Error()}
	}
	return p, nil
}

// describe flattens a schema failure into one line, dropping the header that
// names the schema URL.
func describe(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	lines := strings.Split(strings.TrimSpace(ve.Error()), "\n")
	if len(lines) > 1 {
		lines = lines[1:]
	}
	for i, l := range lines {
		lines[i] = strings.TrimPrefix(strings.TrimSpace(l), "- ")
	}
	return strings.Join(lines, "; ")
}

const feedSchema = `{
  "type": "object",
  "required": ["source", "name"],
  "properties": {
    "source": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "tags": {
      "type": ["array", "null"],
      "items": {"type": "string", "minLength": 1}
    }
  }
}`

const tagSchema = `{
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": {"type": "string", "minLength": 1}
  }
}`
