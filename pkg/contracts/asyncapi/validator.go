package asyncapi

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed asyncapi.yaml
var stockEventsSpec []byte

// EventValidator validates stock fact payloads against AsyncAPI schemas
type EventValidator struct {
	schemas map[string]*jsonschema.Schema
}

// AsyncAPISpec represents the parts of an AsyncAPI document the validator reads
type AsyncAPISpec struct {
	AsyncAPI   string             `yaml:"asyncapi"`
	Info       AsyncAPIInfo       `yaml:"info"`
	Components AsyncAPIComponents `yaml:"components"`
}

// AsyncAPIInfo contains AsyncAPI info section
type AsyncAPIInfo struct {
	Title   string `yaml:"title"`
	Version string `yaml:"version"`
}

// AsyncAPIComponents contains reusable components
type AsyncAPIComponents struct {
	Schemas  map[string]interface{}     `yaml:"schemas"`
	Messages map[string]AsyncAPIMessage `yaml:"messages"`
}

// AsyncAPIMessage binds an event type name to its payload schema
type AsyncAPIMessage struct {
	Name    string            `yaml:"name"`
	Payload map[string]string `yaml:"payload"`
}

// NewStockEventValidator builds a validator from the embedded stock events contract
func NewStockEventValidator() (*EventValidator, error) {
	return NewEventValidatorFromBytes(stockEventsSpec)
}

// NewEventValidator creates a validator from an AsyncAPI file on disk
func NewEventValidator(asyncAPIPath string) (*EventValidator, error) {
	data, err := os.ReadFile(asyncAPIPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read AsyncAPI spec: %w", err)
	}
	return NewEventValidatorFromBytes(data)
}

// NewEventValidatorFromBytes compiles every message payload schema. Event
// types come from the message names.
func NewEventValidatorFromBytes(specBytes []byte) (*EventValidator, error) {
	var spec AsyncAPISpec
	if err := yaml.Unmarshal(specBytes, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse AsyncAPI spec: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat()
	schemas := make(map[string]*jsonschema.Schema)

	for messageName, message := range spec.Components.Messages {
		schemaName := refName(message.Payload["$ref"])
		raw, ok := spec.Components.Schemas[schemaName]
		if !ok {
			return nil, fmt.Errorf("message %s references unknown schema %q", messageName, schemaName)
		}

		doc, err := toJSONDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", schemaName, err)
		}

		schemaURI := fmt.Sprintf("asyncapi://schemas/%s", schemaName)
		if err := compiler.AddResource(schemaURI, doc); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", schemaName, err)
		}
		compiled, err := compiler.Compile(schemaURI)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", schemaName, err)
		}
		schemas[message.Name] = compiled
	}

	return &EventValidator{schemas: schemas}, nil
}

// Validate checks a payload against the schema registered for eventType
func (v *EventValidator) Validate(eventType string, data interface{}) error {
	schema, ok := v.schemas[eventType]
	if !ok {
		return fmt.Errorf("no schema found for event type: %s", eventType)
	}
	if data == nil {
		return fmt.Errorf("event data is required")
	}

	instance, err := toJSONDocument(data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}

	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("event data validation failed for type %s: %w", eventType, err)
	}
	return nil
}

// SupportedEventTypes returns the event types with a registered schema, sorted
func (v *EventValidator) SupportedEventTypes() []string {
	types := make([]string, 0, len(v.schemas))
	for eventType := range v.schemas {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}

// HasSchema checks if a schema exists for the given event type
func (v *EventValidator) HasSchema(eventType string) bool {
	_, ok := v.schemas[eventType]
	return ok
}

func refName(ref string) string {
	const prefix = "#/components/schemas/"
	if len(ref) > len(prefix) && ref[:len(prefix)] == prefix {
		return ref[len(prefix):]
	}
	return ref
}

// toJSONDocument normalizes a value into the representation jsonschema expects
func toJSONDocument(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}
