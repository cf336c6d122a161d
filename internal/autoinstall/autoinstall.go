// Package autoinstall implements the autoinstall document loader, the
// base-schema validation, and the early-commands run-once mechanism,
// grounded on subiquity/autoinstall.py.
package autoinstall

import (
	"os"

	"github.com/gravitational/trace"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v2"
)

// EarlyCommandsIdentifier is the syslog identifier early commands' output
// is tagged with, ported verbatim from EARLY_COMMAND_IDENTIFIER.
const EarlyCommandsIdentifier = "subiquity_early_commands"

// Document is the parsed top-level autoinstall document.
type Document struct {
	Version             int                    `yaml:"version"`
	InteractiveSections  []string               `yaml:"interactive-sections,omitempty"`
	EarlyCommands        []string               `yaml:"early-commands,omitempty"`
	Sections             map[string]interface{} `yaml:",inline"`
}

// baseSchemaJSON is the structural schema every autoinstall document must
// satisfy before any section-specific schema runs, mirroring
// subiquity's BaseModel schema (a required integer "version" key; every
// other top-level key is left to each controller's own schema).
const baseSchemaJSON = `{
  "type": "object",
  "properties": {
    "version": {"type": "integer", "const": 1}
  },
  "required": ["version"]
}`

// Load reads and parses the autoinstall document at path, checking it
// against the base schema. It does not validate section-specific data --
// that happens per-controller via controller.Base.SetupAutoinstall.
func Load(path string) (*Document, map[string]interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, trace.ConvertSystemError(err)
	}

	var generic map[string]interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, nil, trace.Wrap(err, "failed to parse autoinstall document")
	}

	schema, err := jsonschema.CompileString("base.json", baseSchemaJSON)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	clean, _ := toJSONCompatible(generic).(map[string]interface{})
	if err := schema.Validate(clean); err != nil {
		return nil, nil, trace.BadParameter("autoinstall document failed validation: %v", err)
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, trace.Wrap(err)
	}
	return &doc, clean, nil
}

// InteractiveSet returns doc's interactive-sections as a lookup set.
func (d *Document) InteractiveSet() map[string]bool {
	out := make(map[string]bool, len(d.InteractiveSections))
	for _, s := range d.InteractiveSections {
		out[s] = true
	}
	return out
}

// toJSONCompatible converts a yaml.v2-decoded value (which uses
// map[interface{}]interface{} for mappings) into the map[string]interface{}
// shape jsonschema expects.
func toJSONCompatible(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, vv := range val {
			out[toString(k)] = toJSONCompatible(vv)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, vv := range val {
			out[k] = toJSONCompatible(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, vv := range val {
			out[i] = toJSONCompatible(vv)
		}
		return out
	default:
		return val
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
