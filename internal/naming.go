package internal

import (
	"regexp"
	"strings"

	"github.com/lychee-technology/dynaform"
)

var (
	lowerUpperBoundary = regexp.MustCompile(`([a-z])([A-Z])`)
	acronymBoundary    = regexp.MustCompile(`([A-Z])([A-Z][a-z])`)
	namePattern        = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
)

// ToDBColumn derives a physical column (or table) name from a logical name:
// firstName -> first_name, HTTPStatus -> http_status. It is the only transform
// used to derive names, so metadata and physical schema agree.
func ToDBColumn(name string) string {
	out := lowerUpperBoundary.ReplaceAllString(name, "${1}_${2}")
	out = acronymBoundary.ReplaceAllString(out, "${1}_${2}")
	return strings.ToLower(out)
}

// validateLogicalName checks a collection or field name as supplied by an operator.
func validateLogicalName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return dynaform.NewValidationError(kind, kind+" is required")
	}
	if !namePattern.MatchString(name) {
		return dynaform.NewInvalidNameError(kind, kind+" must start with a letter and contain only letters, digits and underscores")
	}
	return nil
}

// derivePhysicalName returns explicit when set, otherwise ToDBColumn(logical),
// and checks the result is a usable identifier.
func derivePhysicalName(kind, logical, explicit string) (string, error) {
	name := explicit
	if name == "" {
		name = ToDBColumn(logical)
	}
	if _, err := newIdentifier(name); err != nil {
		return "", dynaform.NewInvalidNameError(kind, err.Error())
	}
	return name, nil
}
