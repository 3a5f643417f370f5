package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fulmenhq/gofulmen/schema"

	schemasassets "github.com/3leaps/goferry/internal/assets/schemas"
	"github.com/3leaps/goferry/pkg/transfer"
)

// SchemaID is the schema identifier for batch manifests.
const SchemaID = "goferry/v1.0.0/batch-manifest"

// Validation errors
var (
	// ErrSchemaNotFound indicates the embedded schema is missing.
	ErrSchemaNotFound = errors.New("manifest schema not found")

	// ErrValidationFailed indicates the manifest failed validation.
	ErrValidationFailed = errors.New("manifest validation failed")
)

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

// ValidationError represents a single validation issue.
type ValidationError struct {
	// Path is the JSON pointer to the problematic field (e.g., "/items/2/source").
	Path string

	// Message describes the validation failure.
	Message string
}

// Error implements error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements error interface.
func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "validation failed"
	case 1:
		return e[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "manifest validation failed with %d errors:", len(e))
	for _, err := range e {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns ErrValidationFailed.
func (e ValidationErrors) Unwrap() error {
	return ErrValidationFailed
}

// Validate checks a typed manifest against the schema and the semantic rules
// applied by Check.
//
// Unknown fields are lost in the struct representation; use ValidateRaw on
// the original input for strict checks.
func Validate(m *Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to serialize manifest for validation: %w", err)
	}
	if err := ValidateRaw(data); err != nil {
		return err
	}
	return m.Check()
}

// ValidateRaw checks raw JSON data against the embedded manifest schema.
func ValidateRaw(jsonData []byte) error {
	v, err := getValidator()
	if err != nil {
		return err
	}

	diags, err := v.ValidateJSON(jsonData)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	var errs ValidationErrors
	for _, d := range diags {
		// Only include errors, not warnings
		if d.Severity == schema.SeverityError {
			errs = append(errs, ValidationError{Path: d.Pointer, Message: d.Message})
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Check applies the rules the schema cannot express: policy names parse,
// exclude patterns and the destination template compile, and every item has
// a destination or a template to derive one.
func (m *Manifest) Check() error {
	var errs ValidationErrors
	add := func(path, format string, args ...any) {
		errs = append(errs, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if m.OnExists != "" {
		if _, err := transfer.ParsePolicy(m.OnExists); err != nil {
			add("/on_exists", "%v", err)
		}
	}
	for i, p := range m.Exclude {
		if !doublestar.ValidatePattern(p) {
			add(fmt.Sprintf("/exclude/%d", i), "invalid glob pattern %q", p)
		}
	}
	if m.DestinationTemplate != "" {
		if _, err := CompileTemplate(m.DestinationTemplate); err != nil {
			add("/destination_template", "%v", err)
		}
	}

	for i, it := range m.Items {
		base := fmt.Sprintf("/items/%d", i)
		if strings.TrimSpace(it.Source) == "" {
			add(base+"/source", "source is required")
		}
		if it.Destination == "" && m.DestinationTemplate == "" {
			add(base+"/destination", "destination is required when no destination_template is set")
		}
		if it.OnExists != "" {
			if _, err := transfer.ParsePolicy(it.OnExists); err != nil {
				add(base+"/on_exists", "%v", err)
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// getValidator returns a cached validator compiled from the embedded schema.
func getValidator() (*schema.Validator, error) {
	validatorOnce.Do(func() {
		if len(schemasassets.BatchManifestSchema) == 0 {
			validatorErr = fmt.Errorf("%w: embedded batch-manifest schema is empty", ErrSchemaNotFound)
			return
		}
		validator, validatorErr = schema.NewValidator(schemasassets.BatchManifestSchema)
		if validatorErr != nil {
			validatorErr = fmt.Errorf("failed to compile manifest schema: %w", validatorErr)
		}
	})
	return validator, validatorErr
}
