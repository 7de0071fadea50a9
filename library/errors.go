package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattn/go-sqlite3"
)

// Failure kinds returned by every exported operation. Callers match them with
// errors.Is and translate them into user-facing messages.
var (
	ErrAuthFail    = errors.New("invalid user id or password")
	ErrNoBook      = errors.New("book does not exist or is out of stock")
	ErrHasBorrowed = errors.New("book already borrowed and not yet returned")
	ErrOutOfQuota  = errors.New("borrowing quota reached")
	ErrValidation  = errors.New("invalid input")
	ErrNotFound    = errors.New("record does not exist or is already returned")
	ErrForbidden   = errors.New("forbidden")
	ErrInternal    = errors.New("internal error")
)

// QuotaError reports a refused borrow together with the limit that applied.
type QuotaError struct {
	Role    Role
	Limit   int
	Current int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("borrowing quota reached (teacher %d / student %d): limit %d, currently borrowed %d",
		QuotaFor(RoleTeacher), QuotaFor(RoleStudent), e.Limit, e.Current)
}

func (e *QuotaError) Is(target error) bool { return target == ErrOutOfQuota }

var domainKinds = []error{
	ErrAuthFail, ErrNoBook, ErrHasBorrowed, ErrOutOfQuota,
	ErrValidation, ErrNotFound, ErrForbidden, ErrInternal,
}

// isDomainError reports whether err already carries one of the failure kinds.
func isDomainError(err error) bool {
	for _, kind := range domainKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// fault passes domain errors through untouched. Anything else is a storage
// fault: it is logged and surfaced only as ErrInternal.
func fault(ctx context.Context, logger *slog.Logger, op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	logger.ErrorContext(ctx, "storage failure", "op", op, "error", err)
	return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
}

// isUniqueViolation reports whether err is a sqlite UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
