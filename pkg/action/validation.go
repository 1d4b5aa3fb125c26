package action

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/wilhg/sherpa/pkg/errmodel"
)

// ValidateFunc validates data against a JSON schema (bytes) and returns error on failure.
type ValidateFunc func(schema []byte, data any) error

// Schemed is implemented by actions that publish their own input schema
// (MCP tools, for example) instead of deriving one from ArgumentSpec.
type Schemed interface {
	InputSchema() []byte
}

// ArgumentSchema derives the object schema for the arguments an action
// executes with. Belief-sourced arguments are included since validation runs
// after resolution.
func ArgumentSchema(args []ArgumentSpec) *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}}
	for _, a := range args {
		prop := &jsonschema.Schema{Description: a.Description}
		if a.Type != "" && a.Type != "any" {
			prop.Type = a.Type
		}
		s.Properties[a.Name] = prop
		if !a.Optional {
			s.Required = append(s.Required, a.Name)
		}
	}
	return s
}

// SchemaBytes returns the JSON schema an action's arguments are checked
// against, or nil when the action declares nothing.
func SchemaBytes(a Action) ([]byte, error) {
	if s, ok := a.(Schemed); ok {
		return s.InputSchema(), nil
	}
	if len(a.Arguments()) == 0 {
		return nil, nil
	}
	return json.Marshal(ArgumentSchema(a.Arguments()))
}

// ValidateArguments checks resolved arguments against the action's schema.
func ValidateArguments(a Action, args map[string]any) error {
	schema, err := SchemaBytes(a)
	if err != nil {
		return errmodel.System("schema_error", "cannot encode argument schema", map[string]any{"action": a.Name()}, err)
	}
	if err := JSONSchemaValidator(schema, args); err != nil {
		return errmodel.Validation(errmodel.CodeInvalidInput,
			fmt.Sprintf("invalid arguments for %s: %v", a.Name(), err),
			map[string]any{"action": a.Name()})
	}
	return nil
}

// JSONSchemaValidator is a ValidateFunc using jsonschema/v6.
func JSONSchemaValidator(schema []byte, data any) error {
	if len(schema) == 0 {
		return nil
	}
	sch, err := compile(schema)
	if err != nil {
		return err
	}
	// round-trip to the generic JSON shape the validator expects
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return sch.Validate(v)
}

// CompileJSONSchema compiles the provided JSON schema and returns error only if the schema is invalid.
func CompileJSONSchema(schema []byte) error {
	if len(schema) == 0 {
		return nil
	}
	_, err := compile(schema)
	return err
}

func compile(schema []byte) (*sjsonschema.Schema, error) {
	c := sjsonschema.NewCompiler()
	var doc any
	if err := json.Unmarshal(schema, &doc); err != nil {
		return nil, err
	}
	if err := c.AddResource("mem://schema.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("mem://schema.json")
}
