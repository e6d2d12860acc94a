package internal

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/dynaform"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[0-9\s\-+()]+$`)
	uuidPattern  = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern  = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)
	colorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
)

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func valid() dynaform.ValidationResult {
	return dynaform.ValidationResult{Valid: true}
}

func invalid(format string, args ...any) dynaform.ValidationResult {
	return dynaform.ValidationResult{Valid: false, Error: fmt.Sprintf(format, args...)}
}

// ValidateValue checks one value against a field type and its rules. It has no
// side effects. Types without a dedicated check are accepted.
func ValidateValue(value any, fieldType dynaform.FieldType, rules *dynaform.ValidationRules) dynaform.ValidationResult {
	if rules == nil {
		rules = &dynaform.ValidationRules{}
	}

	// "" only counts as missing for the required check; it still has to pass
	// the type check below
	if rules.Required && isEmptyValue(value) {
		return invalid("value is required")
	}
	if value == nil {
		return valid()
	}

	switch fieldType.Normalize() {
	case dynaform.FieldTypeString, dynaform.FieldTypeSlug, dynaform.FieldTypeEnum,
		dynaform.FieldTypeSelect, dynaform.FieldTypePassword:
		return validateString(value, rules)
	case dynaform.FieldTypeEmail:
		if res := validateString(value, rules); !res.Valid {
			return res
		}
		if !emailPattern.MatchString(value.(string)) {
			return invalid("invalid email address")
		}
		return valid()
	case dynaform.FieldTypeURL:
		if res := validateString(value, rules); !res.Valid {
			return res
		}
		u, err := url.Parse(value.(string))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("invalid URL")
		}
		return valid()
	case dynaform.FieldTypePhone:
		if res := validateString(value, rules); !res.Valid {
			return res
		}
		if !phonePattern.MatchString(value.(string)) {
			return invalid("invalid phone number")
		}
		return valid()
	case dynaform.FieldTypeText, dynaform.FieldTypeMarkdown, dynaform.FieldTypeRichText:
		s, ok := value.(string)
		if !ok {
			return invalid("must be a string")
		}
		if rules.MaxLength != nil && utf8.RuneCountInString(s) > *rules.MaxLength {
			return invalid("must be at most %d characters", *rules.MaxLength)
		}
		return valid()
	case dynaform.FieldTypeInteger, dynaform.FieldTypeBigInteger,
		dynaform.FieldTypeAutoIncrement, dynaform.FieldTypeSerial:
		n, ok := asInteger(value)
		if !ok {
			return invalid("must be an integer")
		}
		return checkRange(float64(n), rules)
	case dynaform.FieldTypeDecimal, dynaform.FieldTypeFloat,
		dynaform.FieldTypeCurrency, dynaform.FieldTypePercentage:
		f, ok := asNumber(value)
		if !ok {
			return invalid("must be a number")
		}
		return checkRange(f, rules)
	case dynaform.FieldTypeBoolean, dynaform.FieldTypeToggle, dynaform.FieldTypeCheckbox:
		if _, ok := value.(bool); !ok {
			return invalid("must be a boolean")
		}
		return valid()
	case dynaform.FieldTypeDate:
		s, ok := value.(string)
		if !ok || !datePattern.MatchString(s) {
			return invalid("must be a date in YYYY-MM-DD format")
		}
		return valid()
	case dynaform.FieldTypeTime:
		s, ok := value.(string)
		if !ok || !timePattern.MatchString(s) {
			return invalid("must be a time in HH:MM:SS format")
		}
		return valid()
	case dynaform.FieldTypeDateTime, dynaform.FieldTypeTimestamp:
		if !isDateTime(value) {
			return invalid("must be a valid date/time")
		}
		return valid()
	case dynaform.FieldTypeUUID:
		s, ok := value.(string)
		if !ok || !uuidPattern.MatchString(s) {
			return invalid("must be a valid UUID")
		}
		return valid()
	case dynaform.FieldTypeJSON, dynaform.FieldTypeJSONB:
		return validateJSON(value, rules)
	case dynaform.FieldTypeImage, dynaform.FieldTypeVideo, dynaform.FieldTypeFile:
		return validateFile(value, rules)
	case dynaform.FieldTypeMultiSelect:
		if !isArray(value) {
			return invalid("must be an array")
		}
		return valid()
	case dynaform.FieldTypeRadio, dynaform.FieldTypeRating:
		n, ok := asInteger(value)
		if !ok || n < 1 || n > 5 {
			return invalid("must be an integer between 1 and 5")
		}
		return valid()
	case dynaform.FieldTypeColor:
		s, ok := value.(string)
		if !ok || !colorPattern.MatchString(s) {
			return invalid("must be a hex color (#RGB or #RRGGBB)")
		}
		return valid()
	default:
		return valid()
	}
}

func isEmptyValue(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return s == ""
	}
	return false
}

func validateString(value any, rules *dynaform.ValidationRules) dynaform.ValidationResult {
	s, ok := value.(string)
	if !ok {
		return invalid("must be a string")
	}
	length := utf8.RuneCountInString(s)
	if rules.MinLength != nil && length < *rules.MinLength {
		return invalid("must be at least %d characters", *rules.MinLength)
	}
	if rules.MaxLength != nil && length > *rules.MaxLength {
		return invalid("must be at most %d characters", *rules.MaxLength)
	}
	if rules.Pattern != "" {
		re, err := regexp.Compile(rules.Pattern)
		if err != nil {
			return invalid("invalid pattern %q: %v", rules.Pattern, err)
		}
		if !re.MatchString(s) {
			return invalid("does not match pattern %s", rules.Pattern)
		}
	}
	return valid()
}

func checkRange(n float64, rules *dynaform.ValidationRules) dynaform.ValidationResult {
	if rules.MinValue != nil && n < *rules.MinValue {
		return invalid("must be at least %v", *rules.MinValue)
	}
	if rules.MaxValue != nil && n > *rules.MaxValue {
		return invalid("must be at most %v", *rules.MaxValue)
	}
	return valid()
}

// asInteger accepts Go integer kinds and whole floats (JSON numbers decode to float64).
// Strings are never integers.
func asInteger(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float32:
		return wholeFloat(float64(v))
	case float64:
		return wholeFloat(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func wholeFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	if n, ok := asInteger(value); ok {
		return float64(n), true
	}
	return 0, false
}

func isDateTime(value any) bool {
	switch v := value.(type) {
	case time.Time:
		return !v.IsZero()
	case string:
		for _, layout := range dateTimeLayouts {
			if _, err := time.Parse(layout, v); err == nil {
				return true
			}
		}
	}
	return false
}

func isArray(value any) bool {
	if value == nil {
		return false
	}
	kind := reflect.TypeOf(value).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}

func validateJSON(value any, rules *dynaform.ValidationRules) dynaform.ValidationResult {
	var doc any
	switch v := value.(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &doc); err != nil {
			return invalid("must be valid JSON")
		}
	case []byte:
		if err := json.Unmarshal(v, &doc); err != nil {
			return invalid("must be valid JSON")
		}
	default:
		kind := reflect.TypeOf(v).Kind()
		if kind != reflect.Map && kind != reflect.Slice && kind != reflect.Array && kind != reflect.Struct {
			return invalid("must be a JSON object or a JSON string")
		}
		// round-trip so the schema validator sees plain JSON values
		raw, err := json.Marshal(v)
		if err != nil {
			return invalid("must be JSON serializable: %v", err)
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return invalid("must be JSON serializable: %v", err)
		}
	}

	if len(rules.JSONSchema) == 0 {
		return valid()
	}
	if err := validateAgainstSchema(doc, rules.JSONSchema); err != nil {
		return invalid("%v", err)
	}
	return valid()
}

func validateAgainstSchema(doc any, schemaMap map[string]any) error {
	var schema jsonschema.Schema
	schemaBytes, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON schema: %w", err)
	}
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		return fmt.Errorf("invalid JSON schema: %w", err)
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return fmt.Errorf("failed to resolve JSON schema: %w", err)
	}
	if err := resolved.Validate(doc); err != nil {
		return fmt.Errorf("JSON validation failed: %w", err)
	}
	return nil
}

// validateFile accepts a file reference string, or an object carrying
// name and size as uploaded by a form.
func validateFile(value any, rules *dynaform.ValidationRules) dynaform.ValidationResult {
	var name string
	var size *float64
	switch v := value.(type) {
	case string:
		name = v
	case map[string]any:
		n, ok := v["name"].(string)
		if !ok {
			return invalid("file object must carry a name")
		}
		name = n
		if s, ok := asNumber(v["size"]); ok {
			size = &s
		}
	default:
		return invalid("must be a file reference")
	}

	if len(rules.AllowedFileTypes) > 0 {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
		allowed := false
		for _, t := range rules.AllowedFileTypes {
			if strings.TrimPrefix(strings.ToLower(t), ".") == ext {
				allowed = true
				break
			}
		}
		if !allowed {
			return invalid("file type must be one of: %s", strings.Join(rules.AllowedFileTypes, ", "))
		}
	}
	if rules.MaxFileSize != nil && size != nil && *size > float64(*rules.MaxFileSize) {
		return invalid("file size must not exceed %d bytes", *rules.MaxFileSize)
	}
	return valid()
}
