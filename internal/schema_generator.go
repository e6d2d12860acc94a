package internal

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/lychee-technology/dynaform"
)

// ColumnSpec is the physical shape of one field column.
type ColumnSpec struct {
	Column     Identifier
	Type       dynaform.FieldType
	Required   bool
	Indexed    bool
	Unique     bool
	Searchable bool
}

// columnSpecFromField builds a ColumnSpec from persisted field metadata.
func columnSpecFromField(f *dynaform.Field) (ColumnSpec, error) {
	col, err := columnIdentifier(f)
	if err != nil {
		return ColumnSpec{}, err
	}
	return ColumnSpec{
		Column:     col,
		Type:       f.Type,
		Required:   f.Required,
		Indexed:    f.Indexed,
		Unique:     f.Unique,
		Searchable: f.Searchable,
	}, nil
}

func columnSpecsFromFields(fields []*dynaform.Field) ([]ColumnSpec, error) {
	specs := make([]ColumnSpec, 0, len(fields))
	for _, f := range fields {
		if f.System {
			continue
		}
		spec, err := columnSpecFromField(f)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// SchemaGenerator renders DDL for collection tables. It never executes anything.
type SchemaGenerator struct {
	registry *FieldTypeRegistry
}

func NewSchemaGenerator(registry *FieldTypeRegistry) *SchemaGenerator {
	if registry == nil {
		registry = DefaultFieldTypeRegistry()
	}
	return &SchemaGenerator{registry: registry}
}

func (g *SchemaGenerator) columnDefinition(col ColumnSpec) string {
	def := col.Column.Quoted() + " " + g.registry.Lookup(col.Type).PhysicalType
	if col.Required {
		def += " NOT NULL"
	}
	return def
}

// CreateTableSQL renders CREATE TABLE IF NOT EXISTS with the id primary key,
// one column per field and the system columns enabled in cfg.
func (g *SchemaGenerator) CreateTableSQL(table Identifier, columns []ColumnSpec, cfg dynaform.SystemFieldConfig) string {
	defs := make([]string, 0, len(columns)+10)
	defs = append(defs, `"id" UUID PRIMARY KEY DEFAULT gen_random_uuid()`)
	for _, col := range columns {
		defs = append(defs, g.columnDefinition(col))
	}
	defs = append(defs, systemColumnDefinitions(cfg)...)

	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS ")
	sb.WriteString(table.Quoted())
	sb.WriteString(" (\n  ")
	sb.WriteString(strings.Join(defs, ",\n  "))
	sb.WriteString("\n)")
	return sb.String()
}

func systemColumnDefinitions(cfg dynaform.SystemFieldConfig) []string {
	defs := make([]string, 0, 10)
	if cfg.Timestamps() {
		defs = append(defs,
			`"created_at" TIMESTAMPTZ NOT NULL DEFAULT NOW()`,
			`"updated_at" TIMESTAMPTZ NOT NULL DEFAULT NOW()`,
		)
	}
	if cfg.HasSoftDelete {
		defs = append(defs, `"deleted_at" TIMESTAMPTZ`)
	}
	if cfg.HasVersioning {
		defs = append(defs, `"version" INTEGER NOT NULL DEFAULT 1`)
	}
	if cfg.HasCreatedBy {
		defs = append(defs, `"created_by" UUID`)
	}
	if cfg.HasUpdatedBy {
		defs = append(defs, `"updated_by" UUID`)
	}
	if cfg.HasMetadata {
		defs = append(defs, `"metadata" JSONB`)
	}
	if cfg.HasSlug {
		defs = append(defs, `"slug" VARCHAR(255)`)
	}
	if cfg.HasStatus {
		defs = append(defs, `"status" VARCHAR(20) DEFAULT 'draft' CHECK ("status" IN (`+sqlValueList(statusValues)+`))`)
	}
	if cfg.HasVisibility {
		defs = append(defs, `"visibility" VARCHAR(20) DEFAULT 'private' CHECK ("visibility" IN (`+sqlValueList(visibilityValues)+`))`)
	}
	return defs
}

// AddColumnSQL renders ALTER TABLE ADD COLUMN. A required column always gets a
// type-appropriate DEFAULT so the statement succeeds on a populated table.
func (g *SchemaGenerator) AddColumnSQL(table Identifier, col ColumnSpec) string {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table.Quoted(), g.columnDefinition(col))
	if col.Required {
		if def := requiredColumnDefault(col.Type); def != "" {
			stmt += " DEFAULT " + def
		}
	}
	return stmt
}

// requiredColumnDefault is the backfill value for a NOT NULL column added to an
// existing table. Serial columns fill themselves.
func requiredColumnDefault(t dynaform.FieldType) string {
	switch t.Normalize() {
	case dynaform.FieldTypeBoolean, dynaform.FieldTypeToggle, dynaform.FieldTypeCheckbox:
		return "FALSE"
	case dynaform.FieldTypeInteger, dynaform.FieldTypeBigInteger, dynaform.FieldTypeDecimal,
		dynaform.FieldTypeFloat, dynaform.FieldTypeCurrency, dynaform.FieldTypePercentage:
		return "0"
	case dynaform.FieldTypeAutoIncrement, dynaform.FieldTypeSerial:
		return ""
	case dynaform.FieldTypeRadio, dynaform.FieldTypeRating:
		return "1"
	case dynaform.FieldTypeJSON, dynaform.FieldTypeJSONB:
		return "'{}'"
	case dynaform.FieldTypeMultiSelect:
		return "'[]'"
	case dynaform.FieldTypeDate:
		return "CURRENT_DATE"
	case dynaform.FieldTypeTime:
		return "LOCALTIME"
	case dynaform.FieldTypeDateTime, dynaform.FieldTypeTimestamp:
		return "NOW()"
	case dynaform.FieldTypeUUID:
		return "gen_random_uuid()"
	default:
		// string-like, text-like, media, choice and unregistered (TEXT) columns
		return "''"
	}
}

// DropColumnSQL renders ALTER TABLE DROP COLUMN IF EXISTS.
func (g *SchemaGenerator) DropColumnSQL(table, column Identifier) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s", table.Quoted(), column.Quoted())
}

// ModifyColumnTypeSQL renders ALTER COLUMN TYPE. Data is converted only by the
// store's implicit cast; incompatible data makes the statement fail.
func (g *SchemaGenerator) ModifyColumnTypeSQL(table, column Identifier, t dynaform.FieldType) string {
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s",
		table.Quoted(), column.Quoted(), g.registry.Lookup(t).PhysicalType)
}

// AddIndexSQL renders CREATE [UNIQUE] INDEX IF NOT EXISTS idx_<table>_<column>.
func (g *SchemaGenerator) AddIndexSQL(table, column Identifier, unique bool) string {
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kind, indexIdentifier(table, column).Quoted(), table.Quoted(), column.Quoted())
}

// DropIndexSQL renders DROP INDEX IF EXISTS idx_<table>_<column>.
func (g *SchemaGenerator) DropIndexSQL(table, column Identifier) string {
	return "DROP INDEX IF EXISTS " + indexIdentifier(table, column).Quoted()
}

// DropTableSQL renders DROP TABLE IF EXISTS ... CASCADE.
func (g *SchemaGenerator) DropTableSQL(table Identifier) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table.Quoted())
}

// IndexesSQL renders one statement per indexed, unique or searchable field
// followed by the indexes implied by cfg.
func (g *SchemaGenerator) IndexesSQL(table Identifier, columns []ColumnSpec, cfg dynaform.SystemFieldConfig) []string {
	stmts := make([]string, 0, len(columns)+4)
	for _, col := range columns {
		if col.Indexed || col.Unique || col.Searchable {
			stmts = append(stmts, g.AddIndexSQL(table, col.Column, col.Unique))
		}
	}
	if cfg.HasSlug {
		stmts = append(stmts, g.AddIndexSQL(table, systemColumnSlug, true))
	}
	if cfg.HasStatus {
		stmts = append(stmts, g.AddIndexSQL(table, systemColumnStatus, false))
	}
	if cfg.HasCreatedBy {
		stmts = append(stmts, g.AddIndexSQL(table, systemColumnCreatedBy, false))
	}
	if cfg.Timestamps() {
		stmts = append(stmts, g.AddIndexSQL(table, systemColumnCreatedAt, false))
	}
	return stmts
}

var updatedAtTriggerTemplates = []*template.Template{
	template.Must(template.New("updatedAtFunction").Parse(`CREATE OR REPLACE FUNCTION dynaform_set_updated_at()
RETURNS TRIGGER AS $$
BEGIN
  NEW.updated_at = NOW();
  RETURN NEW;
END;
$$ LANGUAGE plpgsql`)),
	template.Must(template.New("dropUpdatedAtTrigger").Parse(`DROP TRIGGER IF EXISTS {{.Trigger}} ON {{.Table}}`)),
	template.Must(template.New("createUpdatedAtTrigger").Parse(`CREATE TRIGGER {{.Trigger}}
BEFORE UPDATE ON {{.Table}}
FOR EACH ROW EXECUTE FUNCTION dynaform_set_updated_at()`)),
}

// UpdatedAtTriggerSQL renders the statements that (re)install the BEFORE UPDATE
// trigger maintaining updated_at. Running them twice is harmless.
func (g *SchemaGenerator) UpdatedAtTriggerSQL(table Identifier) ([]string, error) {
	data := struct {
		Table   string
		Trigger string
	}{
		Table:   table.Quoted(),
		Trigger: triggerIdentifier(table).Quoted(),
	}

	stmts := make([]string, 0, len(updatedAtTriggerTemplates))
	for _, tpl := range updatedAtTriggerTemplates {
		stmt, err := renderTemplate(tpl, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", tpl.Name(), err)
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// ProvisionSQL renders every statement needed for a fresh collection table in
// execution order: table, updated_at trigger, indexes.
func (g *SchemaGenerator) ProvisionSQL(table Identifier, columns []ColumnSpec, cfg dynaform.SystemFieldConfig) ([]string, error) {
	stmts := []string{g.CreateTableSQL(table, columns, cfg)}
	if cfg.Timestamps() {
		trigger, err := g.UpdatedAtTriggerSQL(table)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, trigger...)
	}
	return append(stmts, g.IndexesSQL(table, columns, cfg)...), nil
}
