package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Ledger owns borrow records.
type Ledger struct {
	d *Database
}

func NewLedger(d *Database) *Ledger { return &Ledger{d: d} }

const openLoanViewQuery = `
        SELECT l.id, l.uid, l.isbn, l.borrow_date, l.due_date, l.returned,
               b.title, b.authors, b.publisher, b.keywords
        FROM loans l
        JOIN books b ON b.isbn = l.isbn
        WHERE l.uid = ? AND l.returned = 0
        ORDER BY l.due_date, l.id`

// OpenLoansFor returns the borrower's unreturned loans, soonest due first.
func (l *Ledger) OpenLoansFor(ctx context.Context, borrowerID string) ([]LoanView, error) {
	loans := []LoanView{}
	err := l.d.db.SelectContext(ctx, &loans, openLoanViewQuery, borrowerID)
	return loans, fault(ctx, l.d.logger, "open loans", err)
}

// HasOpenLoan reports whether the borrower currently holds a copy of isbn.
func (l *Ledger) HasOpenLoan(ctx context.Context, borrowerID, isbn string) (bool, error) {
	ok, err := hasOpenLoan(ctx, l.d.db, borrowerID, isbn)
	return ok, fault(ctx, l.d.logger, "has open loan", err)
}

// CountOpenLoans returns how many loans the borrower holds open.
func (l *Ledger) CountOpenLoans(ctx context.Context, borrowerID string) (int, error) {
	n, err := countOpenLoans(ctx, l.d.db, borrowerID)
	return n, fault(ctx, l.d.logger, "count open loans", err)
}

// CreateLoan records a new open loan due LoanPeriod after borrowDate. It does
// not touch stock; use Engine.Borrow for the full operation.
func (l *Ledger) CreateLoan(ctx context.Context, borrowerID, isbn string, borrowDate time.Time) (*Loan, error) {
	loan, err := createLoan(ctx, l.d.db, borrowerID, isbn, borrowDate)
	return loan, fault(ctx, l.d.logger, "create loan", err)
}

// MarkReturned closes the loan if it is open and owned by borrowerID.
// It does not touch stock; use Engine.Return for the full operation.
func (l *Ledger) MarkReturned(ctx context.Context, loanID int64, borrowerID string) (*Loan, error) {
	loan, err := markReturned(ctx, l.d.db, loanID, borrowerID)
	return loan, fault(ctx, l.d.logger, "mark returned", err)
}

// OpenLoansForClass lists open loans of every student enrolled in classID,
// ordered by student id and then due date.
func (l *Ledger) OpenLoansForClass(ctx context.Context, classID string) ([]ClassLoan, error) {
	loans := []ClassLoan{}
	err := l.d.db.SelectContext(ctx, &loans, `
        SELECT u.uid, u.name AS student_name, l.id AS loan_id, l.isbn, b.title, l.due_date
        FROM enrollments e
        JOIN users u ON u.uid = e.student_uid
        JOIN loans l ON l.uid = e.student_uid
        JOIN books b ON b.isbn = l.isbn
        WHERE e.class_id = ? AND l.returned = 0
        ORDER BY u.uid, l.due_date, l.id`, classID)
	return loans, fault(ctx, l.d.logger, "class loans", err)
}

func hasOpenLoan(ctx context.Context, q sqlx.QueryerContext, borrowerID, isbn string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS(SELECT 1 FROM loans WHERE uid=? AND isbn=? AND returned=0)`, borrowerID, isbn)
	return exists, err
}

func countOpenLoans(ctx context.Context, q sqlx.QueryerContext, borrowerID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, `SELECT COUNT(*) FROM loans WHERE uid=? AND returned=0`, borrowerID)
	return n, err
}

func createLoan(ctx context.Context, q sqlx.ExtContext, borrowerID, isbn string, borrowDate time.Time) (*Loan, error) {
	borrowed := dateOf(borrowDate)
	due := borrowed.Add(LoanPeriod)
	res, err := q.ExecContext(ctx, `INSERT INTO loans(uid,isbn,borrow_date,due_date,returned) VALUES(?,?,?,?,0)`,
		borrowerID, isbn, borrowed, due)
	if isUniqueViolation(err) {
		return nil, ErrHasBorrowed
	}
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Loan{ID: id, BorrowerID: borrowerID, ISBN: isbn, BorrowDate: borrowed, DueDate: due}, nil
}

func markReturned(ctx context.Context, q sqlx.ExtContext, loanID int64, borrowerID string) (*Loan, error) {
	var loan Loan
	err := sqlx.GetContext(ctx, q, &loan,
		`SELECT id,uid,isbn,borrow_date,due_date,returned FROM loans WHERE id=? AND uid=? AND returned=0`, loanID, borrowerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: loan %d", ErrNotFound, loanID)
	}
	if err != nil {
		return nil, err
	}
	if _, err := q.ExecContext(ctx, `UPDATE loans SET returned=1 WHERE id=?`, loanID); err != nil {
		return nil, err
	}
	loan.Returned = true
	return &loan, nil
}

// dateOf truncates t to midnight UTC of its calendar day.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
