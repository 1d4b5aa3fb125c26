package policy

import (
	"encoding/json"
	"strings"

	"github.com/wilhg/sherpa/pkg/action"
	"github.com/wilhg/sherpa/pkg/errmodel"
)

// SchemaVersion names the response contract below.
const SchemaVersion = "sherpa.policy.v1"

// responseSchema accepts {"command": {"name", "args"}} and the flattened
// {"name", "args"} some models produce.
var responseSchema = []byte(`{
  "type": "object",
  "anyOf": [
    {
      "required": ["command"],
      "properties": {
        "command": {
          "type": "object",
          "required": ["name"],
          "properties": {
            "name": {"type": "string", "minLength": 1},
            "args": {"type": ["object", "null"]}
          }
        }
      }
    },
    {
      "required": ["name"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "args": {"type": ["object", "null"]}
      }
    }
  ]
}`)

// Command is the decoded model decision.
type Command struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ExtractJSON returns the text between the first '{' and the last '}'.
func ExtractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseCommand decodes a model response into a Command. Prose and code fences
// around the JSON object are ignored.
func ParseCommand(text string) (Command, error) {
	raw, ok := ExtractJSON(text)
	if !ok {
		return Command{}, errmodel.Policy(errmodel.CodeParseError, "no JSON object found in model output", map[string]any{"output": text})
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Command{}, errmodel.Policy(errmodel.CodeParseError, "model output is not valid JSON: "+err.Error(), map[string]any{"output": raw})
	}
	if err := action.JSONSchemaValidator(responseSchema, doc); err != nil {
		return Command{}, errmodel.Policy(errmodel.CodeParseError, "model output does not match "+SchemaVersion+": "+err.Error(), map[string]any{"output": raw})
	}
	if inner, ok := doc["command"].(map[string]any); ok {
		if _, named := inner["name"].(string); named {
			doc = inner
		}
	}
	var cmd Command
	name, _ := doc["name"].(string)
	cmd.Name = strings.TrimSpace(name)
	cmd.Args, _ = doc["args"].(map[string]any)
	if cmd.Args == nil {
		cmd.Args = map[string]any{}
	}
	return cmd, nil
}
