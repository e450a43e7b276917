package sandbox

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateJSONSchema checks value against a JSON schema given as a
// decoded object or a JSON string.
func ValidateJSONSchema(value, schema any) (any, error) {
	var schemaLoader gojsonschema.JSONLoader
	if s, ok := schema.(string); ok {
		schemaLoader = gojsonschema.NewStringLoader(s)
	} else {
		schemaLoader = gojsonschema.NewGoLoader(normalize(schema))
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(normalize(value)))
	if err != nil {
		return nil, &AssertionError{Message: "invalid JSON schema: " + err.Error()}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, &AssertionError{Message: "JSON schema validation failed: " + strings.Join(msgs, "; ")}
	}
	return true, nil
}
