package internal

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// normalizeColumnValue turns driver values into JSON-friendly ones.
func normalizeColumnValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case uuid.UUID:
		return val.String()
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case pgtype.Time:
		if !val.Valid {
			return nil
		}
		secs := val.Microseconds / 1_000_000
		return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
	default:
		return v
	}
}

func recordID(v any) (uuid.UUID, error) {
	switch val := v.(type) {
	case uuid.UUID:
		return val, nil
	case [16]byte:
		return uuid.UUID(val), nil
	case string:
		return uuid.Parse(val)
	case []byte:
		return uuid.ParseBytes(val)
	case nil:
		return uuid.Nil, fmt.Errorf("record has no id")
	default:
		return uuid.Nil, fmt.Errorf("unsupported record id type %T", v)
	}
}
