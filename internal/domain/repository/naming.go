package repository

import (
	"fmt"
	"regexp"

	"github.com/lib/pq"

	"oqt_service/internal/domain/model"
)

// maxIdentifierLength is the PostgreSQL NAMEDATALEN limit minus one.
const maxIdentifierLength = 63

var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func checkIdentifier(part string) error {
	if !identifierPattern.MatchString(part) {
		return fmt.Errorf("%w: %q", model.ErrInvalidIdentifier, part)
	}
	return nil
}

// TableName returns the result table of an indicator or report on a dataset.
func TableName(dataset, indicator string) (string, error) {
	if err := checkIdentifier(dataset); err != nil {
		return "", err
	}
	if err := checkIdentifier(indicator); err != nil {
		return "", err
	}
	name := dataset + "_" + indicator
	if len(ConstraintNameOf(name)) > maxIdentifierLength {
		return "", fmt.Errorf("%w: %q exceeds %d bytes", model.ErrInvalidIdentifier, ConstraintNameOf(name), maxIdentifierLength)
	}
	return name, nil
}

// ConstraintNameOf returns the primary key constraint name of a result table.
func ConstraintNameOf(table string) string {
	return table + "_pkey"
}

// qualify quotes name and prefixes it with the schema when one is set.
func qualify(schema, name string) string {
	if schema == "" {
		return pq.QuoteIdentifier(name)
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(name)
}
