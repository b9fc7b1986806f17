package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateApplication is returned when the (national id, role) unique index rejects an insert.
var ErrDuplicateApplication = errors.New("application already exists for this national id and role")

// ErrNotFound is returned by mutations whose target row does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateVacancy is returned when a vacancy name is already taken.
var ErrDuplicateVacancy = errors.New("vacancy already exists")

const uniqueViolation = "23505"

// Unique constraints whose violation is an expected outcome.
const (
	applicationKeyConstraint = "applications_national_id_role_key"
	vacancyNameConstraint    = "vacancies_name_normalized_key"
)

// isUniqueViolation reports whether err is a unique violation of constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}
