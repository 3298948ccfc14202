package database

import (
	"database/sql"
	"errors"
	"regexp"
	"strings"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrForeignKey      = errors.New("foreign key constraint failed")
	ErrUniqueViolation = errors.New("unique constraint violated")
	ErrNotNull         = errors.New("not null constraint failed")
	ErrCheckConstraint = errors.New("check constraint failed")
)

// ConstraintError is a SQLite constraint failure with the table and column
// pulled out of the driver message where it names them.
type ConstraintError struct {
	Type    string
	Table   string
	Column  string
	Message string
	Cause   error
}

func (e *ConstraintError) Error() string {
	return e.Message
}

func (e *ConstraintError) Unwrap() error {
	return e.Cause
}

var (
	fkPattern     = regexp.MustCompile(`FOREIGN KEY constraint failed`)
	uniquePattern = regexp.MustCompile(`UNIQUE constraint failed: ([^\s]+)`)
	notNullRegex  = regexp.MustCompile(`NOT NULL constraint failed: ([^\s]+)`)
	checkRegex    = regexp.MustCompile(`CHECK constraint failed`)
)

// ClassifyError maps driver errors onto the sentinels above. sql.ErrNoRows
// becomes ErrNotFound; unknown errors are returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	errStr := err.Error()

	if fkPattern.MatchString(errStr) {
		return &ConstraintError{
			Type:    "foreign_key",
			Cause:   ErrForeignKey,
			Message: "referenced record does not exist",
		}
	}

	if matches := uniquePattern.FindStringSubmatch(errStr); len(matches) == 2 {
		ce := &ConstraintError{
			Type:    "unique",
			Cause:   ErrUniqueViolation,
			Message: "a record with this value already exists",
		}
		ce.Table, ce.Column = splitColumn(matches[1])
		if ce.Column != "" {
			ce.Message = "a record with this '" + ce.Column + "' already exists"
		}
		return ce
	}

	if matches := notNullRegex.FindStringSubmatch(errStr); len(matches) == 2 {
		ce := &ConstraintError{
			Type:    "not_null",
			Cause:   ErrNotNull,
			Message: "required field is missing",
		}
		ce.Table, ce.Column = splitColumn(matches[1])
		if ce.Column != "" {
			ce.Message = "field '" + ce.Column + "' is required"
		}
		return ce
	}

	if checkRegex.MatchString(errStr) {
		return &ConstraintError{
			Type:    "check",
			Cause:   ErrCheckConstraint,
			Message: "value does not meet requirements",
		}
	}

	return err
}

func splitColumn(s string) (table, column string) {
	s = strings.TrimSuffix(s, ",")
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

func IsUniqueError(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

func IsForeignKeyError(err error) bool {
	return errors.Is(err, ErrForeignKey)
}

func AsConstraintError(err error) *ConstraintError {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}
