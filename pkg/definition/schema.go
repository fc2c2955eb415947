package definition

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// definitionSchema describes the raw JSON shape of a workflow definition as
// the editor submits it. It guards decoding only; the structural and
// configuration rules live in Validate.
const definitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["nodes", "edges"],
  "properties": {
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {"type": "string", "minLength": 1},
          "position": {
            "type": "object",
            "properties": {
              "x": {"type": "number"},
              "y": {"type": "number"}
            }
          },
          "data": {"type": "object"}
        }
      }
    },
    "edges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "source", "target"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "source": {"type": "string", "minLength": 1},
          "target": {"type": "string", "minLength": 1}
        }
      }
    },
    "settings": {
      "type": "object",
      "properties": {
        "sendWindow": {
          "type": "object",
          "properties": {
            "enabled": {"type": "boolean"},
            "startTime": {"type": "string", "pattern": "^[0-2][0-9]:[0-5][0-9]$"},
            "endTime": {"type": "string", "pattern": "^[0-2][0-9]:[0-5][0-9]$"},
            "days": {"type": "array", "items": {"type": "integer", "minimum": 0, "maximum": 6}},
            "timezone": {"type": "string"}
          }
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(definitionSchema)

// CheckSchema validates raw definition JSON against the payload schema
// before it is decoded into models. It returns a single error summarizing
// every schema violation.
func CheckSchema(raw []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("failed to validate definition payload: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}

	return fmt.Errorf("invalid definition payload: %s", strings.Join(details, "; "))
}
