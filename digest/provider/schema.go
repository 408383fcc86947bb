package provider

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema reflects T into a standalone JSON Schema document (no $refs) for
// consumers of the JSON artifacts this tool writes.
func GenerateSchema[T any]() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	closeObjects(m)
	return m, nil
}

// closeObjects marks every object schema additionalProperties=false, recursively.
func closeObjects(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		if _, ok := schema["properties"]; ok {
			schema["additionalProperties"] = false
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				closeObjects(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		closeObjects(items)
	}
}
