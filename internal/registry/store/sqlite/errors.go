package sqlite

import (
	"errors"
	"strings"

	sqlitedrv "modernc.org/sqlite"

	"sasana/internal/registry/models"
	"sasana/internal/registry/store"
)

// SQLite extended result codes for constraint failures.
const (
	codeConstraintPrimaryKey = 1555
	codeConstraintUnique     = 2067
)

// translateError maps modernc/sqlite constraint failures onto the canonical
// constraint names the rest of the system classifies. SQLite reports
// "table.column" instead of a constraint name, so the canonical name is
// rebuilt from the family's table.
func translateError(f models.Family, err error) error {
	if err == nil {
		return nil
	}
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case codeConstraintPrimaryKey:
		return &store.UniqueViolation{Constraint: store.PKConstraint(f)}
	case codeConstraintUnique:
		column := violatedColumn(se.Error())
		if column == "" || column == "internal_id" {
			return &store.UniqueViolation{Constraint: store.PKConstraint(f)}
		}
		return &store.UniqueViolation{Constraint: store.UniqueConstraint(f, column)}
	default:
		return err
	}
}

// violatedColumn digs the column out of messages like
// "constraint failed: UNIQUE constraint failed: temple_records.public_code (2067)".
func violatedColumn(msg string) string {
	const marker = "constraint failed: "
	i := strings.LastIndex(msg, marker)
	if i < 0 {
		return ""
	}
	rest := msg[i+len(marker):]
	if j := strings.IndexByte(rest, ' '); j >= 0 {
		rest = rest[:j]
	}
	_, column, ok := strings.Cut(rest, ".")
	if !ok {
		return ""
	}
	return strings.TrimSpace(column)
}
