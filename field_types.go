package dynaform

import "strings"

// FieldType is the abstract type of a field, independent of its physical column type.
type FieldType string

const (
	FieldTypeString   FieldType = "STRING"
	FieldTypeText     FieldType = "TEXT"
	FieldTypeRichText FieldType = "RICH_TEXT"
	FieldTypeMarkdown FieldType = "MARKDOWN"
	FieldTypeEmail    FieldType = "EMAIL"
	FieldTypeURL      FieldType = "URL"
	FieldTypePhone    FieldType = "PHONE"
	FieldTypeSlug     FieldType = "SLUG"
	FieldTypePassword FieldType = "PASSWORD"

	FieldTypeInteger       FieldType = "INTEGER"
	FieldTypeBigInteger    FieldType = "BIG_INTEGER"
	FieldTypeAutoIncrement FieldType = "AUTO_INCREMENT"
	FieldTypeSerial        FieldType = "SERIAL"
	FieldTypeDecimal       FieldType = "DECIMAL"
	FieldTypeFloat         FieldType = "FLOAT"
	FieldTypeCurrency      FieldType = "CURRENCY"
	FieldTypePercentage    FieldType = "PERCENTAGE"

	FieldTypeBoolean  FieldType = "BOOLEAN"
	FieldTypeToggle   FieldType = "TOGGLE"
	FieldTypeCheckbox FieldType = "CHECKBOX"

	FieldTypeDate      FieldType = "DATE"
	FieldTypeTime      FieldType = "TIME"
	FieldTypeDateTime  FieldType = "DATETIME"
	FieldTypeTimestamp FieldType = "TIMESTAMP"

	FieldTypeUUID  FieldType = "UUID"
	FieldTypeJSON  FieldType = "JSON"
	FieldTypeJSONB FieldType = "JSONB"

	FieldTypeImage FieldType = "IMAGE"
	FieldTypeVideo FieldType = "VIDEO"
	FieldTypeFile  FieldType = "FILE"

	FieldTypeEnum        FieldType = "ENUM"
	FieldTypeSelect      FieldType = "SELECT"
	FieldTypeMultiSelect FieldType = "MULTISELECT"
	FieldTypeRadio       FieldType = "RADIO"
	FieldTypeRating      FieldType = "RATING"
	FieldTypeColor       FieldType = "COLOR"
)

// Normalize upper-cases and trims a type name as typed by an operator.
func (t FieldType) Normalize() FieldType {
	return FieldType(strings.ToUpper(strings.TrimSpace(string(t))))
}

// FieldCategory groups field types for builder tooling.
type FieldCategory string

const (
	CategoryText     FieldCategory = "text"
	CategoryNumber   FieldCategory = "number"
	CategoryBoolean  FieldCategory = "boolean"
	CategoryDateTime FieldCategory = "datetime"
	CategoryMedia    FieldCategory = "media"
	CategoryChoice   FieldCategory = "choice"
	CategoryAdvanced FieldCategory = "advanced"
	CategoryUnknown  FieldCategory = "unknown"
)

// FieldTypeInfo is the registry entry for one field type.
type FieldTypeInfo struct {
	Type         FieldType     `json:"type"`
	Category     FieldCategory `json:"category"`
	PhysicalType string        `json:"physicalType"`
	UIHint       string        `json:"uiHint"`
	Searchable   bool          `json:"searchable"`
	Sortable     bool          `json:"sortable"`
	Filterable   bool          `json:"filterable"`
	AllowsNull   bool          `json:"allowsNull"`
}
