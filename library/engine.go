package library

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// Engine performs borrow and return as single transactions over the catalog
// and the ledger.
//
// Every transaction is opened with BEGIN IMMEDIATE, so two borrows (or a
// borrow and a return) never interleave. The stock decrement is also guarded
// on remaining > 0.
type Engine struct {
	d   *Database
	now func() time.Time
}

func NewEngine(d *Database, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{d: d, now: now}
}

// Borrow lends one copy of isbn to borrowerID.
//
// Checks run in a fixed order and the first failure wins:
//  1. the book exists and has a copy left, else ErrNoBook
//  2. the borrower holds no open loan of the same isbn, else ErrHasBorrowed
//  3. the borrower is below the quota for their role, else *QuotaError
func (e *Engine) Borrow(ctx context.Context, borrowerID, isbn string) (*Loan, error) {
	var loan *Loan
	err := e.d.withTx(ctx, func(tx *sqlx.Tx) error {
		book, err := findBook(ctx, tx, isbn)
		if errors.Is(err, ErrNotFound) {
			return ErrNoBook
		}
		if err != nil {
			return err
		}
		if book.Remaining <= 0 {
			return ErrNoBook
		}

		open, err := hasOpenLoan(ctx, tx, borrowerID, isbn)
		if err != nil {
			return err
		}
		if open {
			return ErrHasBorrowed
		}

		borrower, err := getPerson(ctx, tx, borrowerID)
		if err != nil {
			return err
		}
		count, err := countOpenLoans(ctx, tx, borrowerID)
		if err != nil {
			return err
		}
		if limit := QuotaFor(borrower.Role); count >= limit {
			return &QuotaError{Role: borrower.Role, Limit: limit, Current: count}
		}

		loan, err = createLoan(ctx, tx, borrowerID, isbn, e.now())
		if err != nil {
			return err
		}
		return decrementStock(ctx, tx, isbn)
	})
	if err != nil {
		e.d.logger.DebugContext(ctx, "borrow refused", "uid", borrowerID, "isbn", isbn, "error", err)
		return nil, fault(ctx, e.d.logger, "borrow", err)
	}

	e.d.logger.InfoContext(ctx, "book borrowed", "uid", borrowerID, "isbn", isbn, "loan_id", loan.ID, "due", loan.DueDate.Format(time.DateOnly))
	return loan, nil
}

// Return closes the borrower's open loan and puts the copy back on the shelf.
// A missing, foreign or already closed loan yields ErrNotFound.
func (e *Engine) Return(ctx context.Context, borrowerID string, loanID int64) (*Loan, error) {
	var loan *Loan
	err := e.d.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		loan, err = markReturned(ctx, tx, loanID, borrowerID)
		if err != nil {
			return err
		}
		return incrementStock(ctx, tx, loan.ISBN)
	})
	if err != nil {
		e.d.logger.DebugContext(ctx, "return refused", "uid", borrowerID, "loan_id", loanID, "error", err)
		return nil, fault(ctx, e.d.logger, "return", err)
	}

	e.d.logger.InfoContext(ctx, "book returned", "uid", borrowerID, "isbn", loan.ISBN, "loan_id", loan.ID)
	return loan, nil
}
