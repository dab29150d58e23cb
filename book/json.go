package book

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
)

var reflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

// ToJSON encodes a compiled document.
func ToJSON(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// FromJSON decodes a compiled document.
func FromJSON(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode compiled pipeline: %w", err)
	}
	return &doc, nil
}

// Schema returns the JSON schema of the compiled document format.
func Schema() *jsonschema.Schema {
	schema := reflector.Reflect(&Document{})
	schema.Title = "Compiled pipeline"
	return schema
}
