package dynaform

// ValidationRules are the per-field constraints checked on the record write path.
type ValidationRules struct {
	Required         bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Pattern          string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	MinLength        *int     `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength        *int     `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	MinValue         *float64 `json:"minValue,omitempty" yaml:"minValue,omitempty"`
	MaxValue         *float64 `json:"maxValue,omitempty" yaml:"maxValue,omitempty"`
	AllowedFileTypes []string `json:"allowedFileTypes,omitempty" yaml:"allowedFileTypes,omitempty"`
	MaxFileSize      *int64   `json:"maxFileSize,omitempty" yaml:"maxFileSize,omitempty"`

	// JSONSchema constrains JSON/JSONB values with a JSON Schema document.
	JSONSchema map[string]any `json:"jsonSchema,omitempty" yaml:"jsonSchema,omitempty"`
}

// WithRequired returns a copy of r with Required set. A nil r yields rules
// carrying only the required flag.
func (r *ValidationRules) WithRequired(required bool) *ValidationRules {
	out := ValidationRules{}
	if r != nil {
		out = *r
	}
	out.Required = required
	return &out
}

// ValidationResult is the outcome of validating one value.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}
