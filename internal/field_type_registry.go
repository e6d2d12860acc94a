package internal

import (
	"sort"

	"github.com/lychee-technology/dynaform"
)

// FieldTypeRegistry maps abstract field types to their physical column type,
// UI hint and capabilities. It is built once and never mutated.
type FieldTypeRegistry struct {
	types map[dynaform.FieldType]dynaform.FieldTypeInfo
}

// fallbackFieldType is returned for unregistered types.
var fallbackFieldType = dynaform.FieldTypeInfo{
	Category:     dynaform.CategoryUnknown,
	PhysicalType: "TEXT",
	UIHint:       "input",
	AllowsNull:   true,
}

var defaultFieldTypeRegistry = newFieldTypeRegistry([]dynaform.FieldTypeInfo{
	// text
	{Type: dynaform.FieldTypeString, Category: dynaform.CategoryText, PhysicalType: "VARCHAR(255)", UIHint: "text-input", Searchable: true, Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeText, Category: dynaform.CategoryText, PhysicalType: "TEXT", UIHint: "textarea", Searchable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeRichText, Category: dynaform.CategoryText, PhysicalType: "TEXT", UIHint: "rich-text-editor", Searchable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeMarkdown, Category: dynaform.CategoryText, PhysicalType: "TEXT", UIHint: "markdown-editor", Searchable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeEmail, Category: dynaform.CategoryText, PhysicalType: "VARCHAR(255)", UIHint: "email-input", Searchable: true, Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeURL, Category: dynaform.CategoryText, PhysicalType: "TEXT", UIHint: "url-input", Searchable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypePhone, Category: dynaform.CategoryText, PhysicalType: "VARCHAR(50)", UIHint: "phone-input", Searchable: true, Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeSlug, Category: dynaform.CategoryText, PhysicalType: "VARCHAR(255)", UIHint: "slug-input", Searchable: true, Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypePassword, Category: dynaform.CategoryText, PhysicalType: "VARCHAR(255)", UIHint: "password-input", AllowsNull: true},

	// number
	{Type: dynaform.FieldTypeInteger, Category: dynaform.CategoryNumber, PhysicalType: "INTEGER", UIHint: "number-input", Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeBigInteger, Category: dynaform.CategoryNumber, PhysicalType: "BIGINT", UIHint: "number-input", Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeAutoIncrement, Category: dynaform.CategoryNumber, PhysicalType: "SERIAL", UIHint: "readonly", Sortable: true, Filterable: true},
	{Type: dynaform.FieldTypeSerial, Category: dynaform.CategoryNumber, PhysicalType: "SERIAL", UIHint: "readonly", Sortable: true, Filterable: true},
	{Type: dynaform.FieldTypeDecimal, Category: dynaform.CategoryNumber, PhysicalType: "DECIMAL(10,2)", UIHint: "decimal-input", Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeFloat, Category: dynaform.CategoryNumber, PhysicalType: "DOUBLE PRECISION", UIHint: "number-input", Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeCurrency, Category: dynaform.CategoryNumber, PhysicalType: "DECIMAL(19,4)", UIHint: "currency-input", Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypePercentage, Category: dynaform.CategoryNumber, PhysicalType: "DECIMAL(5,2)", UIHint: "percentage-input", Sortable: true, Filterable: true, AllowsNull: true},

	// boolean
	{Type: dynaform.FieldTypeBoolean, Category: dynaform.CategoryBoolean, PhysicalType: "BOOLEAN", UIHint: "checkbox", Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeToggle, Category: dynaform.CategoryBoolean, PhysicalType: "BOOLEAN", UIHint: "toggle", Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeCheckbox, Category: dynaform.CategoryBoolean, PhysicalType: "BOOLEAN", UIHint: "checkbox", Sortable: true, Filterable: true, AllowsNull: true},

	// datetime
	{Type: dynaform.FieldTypeDate, Category: dynaform.CategoryDateTime, PhysicalType: "DATE", UIHint: "date-picker", Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeTime, Category: dynaform.CategoryDateTime, PhysicalType: "TIME", UIHint: "time-picker", Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeDateTime, Category: dynaform.CategoryDateTime, PhysicalType: "TIMESTAMP", UIHint: "datetime-picker", Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeTimestamp, Category: dynaform.CategoryDateTime, PhysicalType: "TIMESTAMPTZ", UIHint: "datetime-picker", Sortable: true, Filterable: true, AllowsNull: true},

	// media
	{Type: dynaform.FieldTypeImage, Category: dynaform.CategoryMedia, PhysicalType: "TEXT", UIHint: "image-upload", AllowsNull: true},
	{Type: dynaform.FieldTypeVideo, Category: dynaform.CategoryMedia, PhysicalType: "TEXT", UIHint: "video-upload", AllowsNull: true},
	{Type: dynaform.FieldTypeFile, Category: dynaform.CategoryMedia, PhysicalType: "TEXT", UIHint: "file-upload", AllowsNull: true},

	// choice
	{Type: dynaform.FieldTypeEnum, Category: dynaform.CategoryChoice, PhysicalType: "VARCHAR(100)", UIHint: "select", Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeSelect, Category: dynaform.CategoryChoice, PhysicalType: "VARCHAR(255)", UIHint: "select", Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeMultiSelect, Category: dynaform.CategoryChoice, PhysicalType: "JSONB", UIHint: "multi-select", Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeRadio, Category: dynaform.CategoryChoice, PhysicalType: "SMALLINT", UIHint: "radio-group", Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeRating, Category: dynaform.CategoryChoice, PhysicalType: "SMALLINT", UIHint: "rating", Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeColor, Category: dynaform.CategoryChoice, PhysicalType: "VARCHAR(7)", UIHint: "color-picker", Filterable: true, AllowsNull: true},

	// advanced
	{Type: dynaform.FieldTypeUUID, Category: dynaform.CategoryAdvanced, PhysicalType: "UUID", UIHint: "text-input", Sortable: true, Filterable: true, AllowsNull: true},
	{Type: dynaform.FieldTypeJSON, Category: dynaform.CategoryAdvanced, PhysicalType: "JSON", UIHint: "json-editor", AllowsNull: true},
	{Type: dynaform.FieldTypeJSONB, Category: dynaform.CategoryAdvanced, PhysicalType: "JSONB", UIHint: "json-editor", Filterable: true, AllowsNull: true},
})

func newFieldTypeRegistry(entries []dynaform.FieldTypeInfo) *FieldTypeRegistry {
	types := make(map[dynaform.FieldType]dynaform.FieldTypeInfo, len(entries))
	for _, e := range entries {
		types[e.Type] = e
	}
	return &FieldTypeRegistry{types: types}
}

// DefaultFieldTypeRegistry returns the built-in registry.
func DefaultFieldTypeRegistry() *FieldTypeRegistry {
	return defaultFieldTypeRegistry
}

// Lookup returns the entry for t. Unknown types never fail: they get a TEXT
// column, a generic UI hint and no capabilities.
func (r *FieldTypeRegistry) Lookup(t dynaform.FieldType) dynaform.FieldTypeInfo {
	if info, ok := r.types[t.Normalize()]; ok {
		return info
	}
	info := fallbackFieldType
	info.Type = t
	return info
}

// Has reports whether t is registered.
func (r *FieldTypeRegistry) Has(t dynaform.FieldType) bool {
	_, ok := r.types[t.Normalize()]
	return ok
}

// TypesByCategory lists registered types of a category, sorted by name.
func (r *FieldTypeRegistry) TypesByCategory(category dynaform.FieldCategory) []dynaform.FieldType {
	out := make([]dynaform.FieldType, 0)
	for t, info := range r.types {
		if info.Category == category {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// All returns every registered entry sorted by type name.
func (r *FieldTypeRegistry) All() []dynaform.FieldTypeInfo {
	out := MapValues(r.types)
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
