package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateParams validates params against schema before a tool is
// dispatched, per spec §4.6's dynamic-dispatch contract: the registry owns
// schema conformance so individual Execute implementations don't each
// reimplement argument checking.
//
// An empty or absent schema is treated as "accepts anything" rather than a
// validation failure, matching the teacher's MCP bridge default of
// `{"type":"object"}` for tools that omit an input schema.
func ValidateParams(schema json.RawMessage, params json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("tools: compile schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("tools: compile schema: %w", err)
	}

	var doc any
	if len(params) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(params, &doc); err != nil {
		return fmt.Errorf("tools: decode params: %w", err)
	}

	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("tools: schema validation: %w", err)
	}
	return nil
}
