package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// toolSchemaJSON is the JSON Schema for a single tool document.
// additionalProperties is false at the top level and inside capabilities[*],
// sla, preconditions and endpoint, so unknown fields fail closed rather than
// being silently ignored; a capability's inputs/outputs maps accept any key
// with a string value.
const toolSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://caprouter/schema/tool.json",
  "type": "object",
  "additionalProperties": false,
  "required": ["id", "name", "version", "capabilities"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "version": {"type": "string"},
    "description": {"type": "string"},
    "cost_estimate": {"type": "number", "minimum": 0},
    "capabilities": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "inputs": {"type": "object", "additionalProperties": {"type": "string"}},
          "outputs": {"type": "object", "additionalProperties": {"type": "string"}}
        }
      }
    },
    "sla": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "p95_ms": {"type": "integer", "minimum": 1},
        "success_rate_min": {"type": "number", "minimum": 0, "maximum": 1}
      }
    },
    "preconditions": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "requiresNetwork": {"type": "boolean"},
        "requiresVpn": {"type": "boolean"},
        "env": {"type": "array", "items": {"type": "string"}}
      }
    },
    "endpoint": {
      "type": "object",
      "additionalProperties": false,
      "required": ["type", "timeout_ms"],
      "properties": {
        "type": {"type": "string", "enum": ["http", "rpa"]},
        "url": {"type": "string"},
        "script": {"type": "string"},
        "timeout_ms": {"type": "integer", "minimum": 1}
      }
    }
  }
}`

// registrySchemaJSON is the JSON Schema for a whole-file registry document:
// {tools: Tool[], updatedAt: RFC-3339}.
const registrySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://caprouter/schema/registry.json",
  "type": "object",
  "additionalProperties": false,
  "required": ["tools", "updatedAt"],
  "properties": {
    "tools": {"type": "array", "items": {"$ref": "https://caprouter/schema/tool.json"}},
    "updatedAt": {"type": "string", "format": "date-time"}
  }
}`

var (
	compileOnce     sync.Once
	compiledTool    *jsonschema.Schema
	compiledDoc     *jsonschema.Schema
	compileErr      error
)

// compileSchemas lazily compiles the tool and registry-document schemas
// exactly once per process, caching the compiled validators for the
// lifetime of the service the same way policy schema validators are
// cached.
func compileSchemas() error {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("https://caprouter/schema/tool.json", mustUnmarshal(toolSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("add tool schema resource: %w", err)
			return
		}
		if err := c.AddResource("https://caprouter/schema/registry.json", mustUnmarshal(registrySchemaJSON)); err != nil {
			compileErr = fmt.Errorf("add registry schema resource: %w", err)
			return
		}
		tool, err := c.Compile("https://caprouter/schema/tool.json")
		if err != nil {
			compileErr = fmt.Errorf("compile tool schema: %w", err)
			return
		}
		doc, err := c.Compile("https://caprouter/schema/registry.json")
		if err != nil {
			compileErr = fmt.Errorf("compile registry schema: %w", err)
			return
		}
		compiledTool, compiledDoc = tool, doc
	})
	return compileErr
}

func mustUnmarshal(s string) any {
	var v any
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		panic(fmt.Sprintf("registry: invalid embedded schema: %v", err))
	}
	return v
}

// ValidateToolDocument validates a single-tool document against the tool
// schema, then checks the invariants Validate enforces beyond
// JSON-Schema's structural shape.
func ValidateToolDocument(raw []byte) (*Tool, error) {
	if err := compileSchemas(); err != nil {
		return nil, err
	}
	inst, err := decodeJSON(raw)
	if err != nil {
		return nil, err
	}
	if err := compiledTool.Validate(inst); err != nil {
		return nil, fmt.Errorf("tool schema validation: %w", err)
	}
	var t Tool
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode tool: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// ValidateRegistryDocument validates a whole-file registry document: the
// document and every tool inside it, as a unit. A single invalid tool
// fails the whole document.
func ValidateRegistryDocument(raw []byte) (*Document, error) {
	if err := compileSchemas(); err != nil {
		return nil, err
	}
	inst, err := decodeJSON(raw)
	if err != nil {
		return nil, err
	}
	if err := compiledDoc.Validate(inst); err != nil {
		return nil, fmt.Errorf("registry schema validation: %w", err)
	}
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode registry document: %w", err)
	}
	for i := range d.Tools {
		if err := d.Tools[i].Validate(); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

func decodeJSON(raw []byte) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}
