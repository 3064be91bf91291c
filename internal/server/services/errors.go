package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/decksync/internal/common"
	"github.com/dmitrijs2005/decksync/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

// ValidationError rejects a push payload before any row is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return common.ErrValidation }

// IntegrityError reports a cascade delete blocked by live dependents.
type IntegrityError struct {
	Entity     models.EntityType
	ID         string
	Dependents int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s %s has %d live dependents", e.Entity, e.ID, e.Dependents)
}

func (e *IntegrityError) Unwrap() error { return common.ErrIntegrityGuard }

// ConstraintError reports a write the schema refused, e.g. two live field
// types of one note type sharing an order.
type ConstraintError struct {
	Constraint string
	Code       string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint %s violated (sqlstate %s)", e.Constraint, e.Code)
}

func (e *ConstraintError) Unwrap() error { return common.ErrConstraint }

// sqlstates of integrity violations: retrying the same payload cannot help.
var constraintCodes = map[string]bool{
	"23503": true, // foreign_key_violation
	"23505": true, // unique_violation
	"23P01": true, // exclusion_violation
}

// storageError marks a store failure as retryable. Errors that already carry
// a caller-facing meaning pass through unchanged, and constraint violations
// become a ConstraintError.
func storageError(err error) error {
	switch {
	case err == nil,
		errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrIntegrityGuard),
		errors.Is(err, common.ErrConstraint),
		errors.Is(err, common.ErrorNotFound),
		errors.Is(err, common.ErrStorage),
		errors.Is(err, context.Canceled):
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && constraintCodes[pgErr.Code] {
		return &ConstraintError{Constraint: pgErr.ConstraintName, Code: pgErr.Code}
	}
	return fmt.Errorf("%w: %w", common.ErrStorage, err)
}
