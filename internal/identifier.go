package internal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/dynaform"
)

// maxIdentifierLength is the Postgres NAMEDATALEN limit minus the terminator.
const maxIdentifierLength = 63

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Identifier is a table, column or index name that may be interpolated into SQL.
// Values are only produced from collection and field metadata (or the fixed
// system column set), never from request input; every SQL builder takes
// Identifier in identifier positions and plain strings only as bind values.
type Identifier struct {
	name string
}

func newIdentifier(name string) (Identifier, error) {
	if len(name) == 0 || len(name) > maxIdentifierLength {
		return Identifier{}, fmt.Errorf("identifier %q must be 1-%d bytes", name, maxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return Identifier{}, fmt.Errorf("identifier %q must match %s", name, identifierPattern.String())
	}
	return Identifier{name: name}, nil
}

func mustIdentifier(name string) Identifier {
	id, err := newIdentifier(name)
	if err != nil {
		panic(err)
	}
	return id
}

// Name returns the raw identifier.
func (i Identifier) Name() string { return i.name }

// IsZero reports whether i was never set.
func (i Identifier) IsZero() bool { return i.name == "" }

// Quoted returns the identifier quoted for Postgres.
func (i Identifier) Quoted() string { return sanitizeIdentifier(i.name) }

func (i Identifier) String() string { return i.name }

// tableIdentifier resolves the physical table of a collection read from metadata.
func tableIdentifier(c *dynaform.Collection) (Identifier, error) {
	if c == nil {
		return Identifier{}, fmt.Errorf("collection cannot be nil")
	}
	id, err := newIdentifier(c.TableName)
	if err != nil {
		return Identifier{}, fmt.Errorf("collection %s table name: %w", c.Name, err)
	}
	return id, nil
}

// columnIdentifier resolves the physical column of a field read from metadata.
func columnIdentifier(f *dynaform.Field) (Identifier, error) {
	if f == nil {
		return Identifier{}, fmt.Errorf("field cannot be nil")
	}
	id, err := newIdentifier(f.DBColumn)
	if err != nil {
		return Identifier{}, fmt.Errorf("field %s column name: %w", f.Name, err)
	}
	return id, nil
}

// indexIdentifier is idx_<table>_<column>, truncated to the identifier limit.
func indexIdentifier(table, column Identifier) Identifier {
	name := "idx_" + table.name + "_" + column.name
	if len(name) > maxIdentifierLength {
		name = name[:maxIdentifierLength]
	}
	return Identifier{name: name}
}

// triggerIdentifier is <table>_update_updated_at, truncated to the identifier limit.
func triggerIdentifier(table Identifier) Identifier {
	name := table.name + "_update_updated_at"
	if len(name) > maxIdentifierLength {
		name = name[:maxIdentifierLength]
	}
	return Identifier{name: name}
}

func sanitizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.Trim(part, " \"")
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}
	if len(clean) == 0 {
		clean = []string{name}
	}
	return pgx.Identifier(clean).Sanitize()
}

func quoteAll(ids []Identifier) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = id.Quoted()
	}
	return strings.Join(quoted, ", ")
}
