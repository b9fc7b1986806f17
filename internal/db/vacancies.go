package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Vacancy Methods
// -----------------------------------------------------------------------------

// ListVacancies retrieves vacancies by name, only active ones when activeOnly is set
func (db *DB) ListVacancies(ctx context.Context, activeOnly bool) ([]Vacancy, error) {
	query := `SELECT id, name, active, created_at, updated_at FROM vacancies`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name ASC`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list vacancies: %w", err)
	}
	defer rows.Close()

	vacancies := []Vacancy{}
	for rows.Next() {
		var v Vacancy
		if err := rows.Scan(&v.ID, &v.Name, &v.Active, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vacancy: %w", err)
		}
		vacancies = append(vacancies, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vacancies: %w", err)
	}
	return vacancies, nil
}

// CreateVacancy adds a vacancy. Names are unique ignoring case and surrounding space.
func (db *DB) CreateVacancy(ctx context.Context, name string, active bool) (*Vacancy, error) {
	var v Vacancy
	err := db.pool.QueryRow(ctx,
		`INSERT INTO vacancies (name, name_normalized, active)
		 VALUES ($1, $2, $3)
		 RETURNING id, name, active, created_at, updated_at`,
		name, NormalizeRole(name), active,
	).Scan(&v.ID, &v.Name, &v.Active, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, vacancyNameConstraint) {
			return nil, fmt.Errorf("failed to create vacancy: %w", ErrDuplicateVacancy)
		}
		return nil, fmt.Errorf("failed to create vacancy: %w", err)
	}
	return &v, nil
}

// SetVacancyActive toggles whether a vacancy is listed; nil when it does not exist
func (db *DB) SetVacancyActive(ctx context.Context, id uuid.UUID, active bool) (*Vacancy, error) {
	var v Vacancy
	err := db.pool.QueryRow(ctx,
		`UPDATE vacancies SET active = $1, updated_at = NOW()
		 WHERE id = $2
		 RETURNING id, name, active, created_at, updated_at`,
		active, id,
	).Scan(&v.ID, &v.Name, &v.Active, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update vacancy: %w", err)
	}
	return &v, nil
}
