package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// RecordSchema is the JSON schema every AgentRecord must satisfy before it is
// written.
const RecordSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schema_version", "agent_id", "user_id", "agent_name", "agent_config", "belief_state", "shared_memory_state", "execution_state"],
  "properties": {
    "schema_version": {"const": 1},
    "agent_id": {"type": "string", "minLength": 1},
    "user_id": {"type": "string", "minLength": 1},
    "agent_name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "agent_type": {"type": "string"},
    "tags": {"type": ["array", "null"], "items": {"type": "string"}},
    "agent_config": {"type": "object"},
    "belief_state": {"type": "object"},
    "shared_memory_state": {"type": "object"},
    "execution_state": {"type": "object"}
  }
}`

var (
	recordSchemaOnce sync.Once
	recordSchema     *jsonschema.Schema
	recordSchemaErr  error
)

func compiledRecordSchema() (*jsonschema.Schema, error) {
	recordSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(RecordSchema)))
		if err != nil {
			recordSchemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("mem://record.json", doc); err != nil {
			recordSchemaErr = err
			return
		}
		recordSchema, recordSchemaErr = c.Compile("mem://record.json")
	})
	return recordSchema, recordSchemaErr
}

// ValidateRecord checks rec against RecordSchema.
func ValidateRecord(rec AgentRecord) error {
	sch, err := compiledRecordSchema()
	if err != nil {
		return fmt.Errorf("store: compile record schema: %w", err)
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("store: decode record: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("store: invalid record: %w", err)
	}
	return nil
}
