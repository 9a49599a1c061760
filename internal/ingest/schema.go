package ingest

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// eventSchema is the JSON schema incoming operational events must satisfy
const eventSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {
			"type": "string",
			"minLength": 1
		},
		"severity": {
			"type": "string",
			"enum": ["low", "medium", "high", "critical"]
		},
		"payload": {
			"type": "object"
		}
	},
	"additionalProperties": false
}`

// compileEventSchema compiles the embedded event schema
func compileEventSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("event.json", strings.NewReader(eventSchema)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile("event.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile event schema: %w", err)
	}
	return schema, nil
}
