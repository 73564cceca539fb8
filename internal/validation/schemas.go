package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

const (
	BehaviorEventSchema = "behavior-event"
	TrackBehaviorSchema = "track-behavior"
)

//go:embed schemas/*.json
var embeddedSchemas embed.FS

var schemaFiles = map[string]string{
	BehaviorEventSchema: "behavior-event.json",
	TrackBehaviorSchema: "track-behavior.json",
}

// SchemaValidator validates JSON payloads against named schemas.
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// NewDefaultSchemaValidator returns a validator preloaded with the embedded schemas.
func NewDefaultSchemaValidator() (*SchemaValidator, error) {
	sv := NewSchemaValidator()
	if err := sv.LoadSchemaFromFS(embeddedSchemas, "schemas"); err != nil {
		return nil, err
	}
	return sv, nil
}

// LoadSchemaFromFS loads every known schema from fsys under schemaDir.
func (sv *SchemaValidator) LoadSchemaFromFS(fsys fs.FS, schemaDir string) error {
	for name, filename := range schemaFiles {
		schemaPath := path.Join(schemaDir, filename)

		schemaBytes, err := fs.ReadFile(fsys, schemaPath)
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", schemaPath, err)
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaBytes))
		if err != nil {
			return fmt.Errorf("failed to load schema %s: %w", name, err)
		}

		sv.schemas[name] = schema
	}

	return nil
}

// ValidateBehaviorEvent validates a behaviour stream message.
func (sv *SchemaValidator) ValidateBehaviorEvent(data interface{}) *ValidationResult {
	return sv.validate(BehaviorEventSchema, data)
}

// ValidateJSON validates raw JSON against a named schema.
func (sv *SchemaValidator) ValidateJSON(schemaName string, raw []byte) *ValidationResult {
	return sv.validate(schemaName, raw)
}

func (sv *SchemaValidator) validate(schemaName string, data interface{}) *ValidationResult {
	schema, exists := sv.schemas[schemaName]
	if !exists {
		return invalid("schema", fmt.Sprintf("Schema '%s' not found", schemaName), "SCHEMA_NOT_FOUND")
	}

	var documentLoader gojsonschema.JSONLoader
	switch v := data.(type) {
	case string:
		documentLoader = gojsonschema.NewStringLoader(v)
	case []byte:
		documentLoader = gojsonschema.NewBytesLoader(v)
	default:
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return invalid("data", fmt.Sprintf("Failed to marshal data to JSON: %v", err), "JSON_MARSHAL_ERROR")
		}
		documentLoader = gojsonschema.NewBytesLoader(jsonBytes)
	}

	result, err := schema.Validate(documentLoader)
	if err != nil {
		return invalid("body", fmt.Sprintf("Invalid JSON: %v", err), "INVALID_JSON")
	}

	validationResult := &ValidationResult{
		Valid:  result.Valid(),
		Errors: make([]ValidationError, 0),
	}

	for _, err := range result.Errors() {
		validationResult.Errors = append(validationResult.Errors, ValidationError{
			Field:   err.Field(),
			Message: err.Description(),
			Code:    "VALIDATION_ERROR",
			Value:   err.Value(),
		})
	}

	return validationResult
}

func invalid(field, message, code string) *ValidationResult {
	return &ValidationResult{
		Valid:  false,
		Errors: []ValidationError{{Field: field, Message: message, Code: code}},
	}
}

// SchemaNames returns the loaded schema names in ascending order.
func (sv *SchemaValidator) SchemaNames() []string {
	names := make([]string, 0, len(sv.schemas))
	for name := range sv.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Value   interface{} `json:"value,omitempty"`
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", ve.Field, ve.Message)
}

// Err folds a failed result into a single error, or nil when valid.
func (vr *ValidationResult) Err() error {
	if vr.Valid {
		return nil
	}
	if len(vr.Errors) == 0 {
		return fmt.Errorf("validation failed")
	}
	return vr.Errors[0]
}

// ToAPIError converts a failed result to the API error body.
func (vr *ValidationResult) ToAPIError() map[string]interface{} {
	if vr.Valid {
		return nil
	}

	fieldErrors := make(map[string][]string)
	for _, err := range vr.Errors {
		if err.Field != "" {
			fieldErrors[err.Field] = append(fieldErrors[err.Field], err.Message)
		}
	}

	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "VALIDATION_ERROR",
			"message": "Request validation failed",
			"details": map[string]interface{}{
				"fieldErrors": fieldErrors,
			},
		},
	}
}
