package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Schema returns the JSON schema of the configuration file.
//
// Postcondition: Returns indented JSON or a non-nil error.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == durationType {
				return &jsonschema.Schema{
					Type:        "string",
					Description: "Go duration string, e.g. \"500ms\" or \"20s\".",
				}
			}
			return nil
		},
	}

	schema := reflector.Reflect(&Config{})
	if schema == nil {
		return nil, fmt.Errorf("failed to reflect configuration schema")
	}
	schema.Title = "huntbot configuration"
	schema.Description = "Configuration file consumed by huntbot run and huntbot check."

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling schema: %w", err)
	}
	return append(data, '\n'), nil
}
