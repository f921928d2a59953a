package validator

import (
	"fmt"

	"github.com/redbco/redb-sqlgateway/internal/database"
)

// SanitizeIdentifier validates a database, schema or table identifier.
// The policy is fail-closed: the identifier is returned unchanged when
// every character is in [A-Za-z0-9_.], and rejected otherwise; it is
// never silently rewritten before being used in generated SQL.
func SanitizeIdentifier(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: identifier is empty", database.ErrInvalidIdentifier)
	}
	if !identifierChars.MatchString(name) {
		return "", fmt.Errorf("%w: %q contains characters outside [A-Za-z0-9_.]", database.ErrInvalidIdentifier, name)
	}
	return name, nil
}
