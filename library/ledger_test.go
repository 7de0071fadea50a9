package library

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerOpenLoansOrderedByDueDate(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	mustRegister(t, lm, "T1", RoleTeacher)
	mustAddBook(t, lm, "late", CategoryCS, 1)
	mustAddBook(t, lm, "early", CategoryCS, 1)

	_, err := lm.ledger.CreateLoan(ctx, "T1", "late", fixedNow.AddDate(0, 0, 5))
	require.NoError(t, err)
	_, err = lm.ledger.CreateLoan(ctx, "T1", "early", fixedNow)
	require.NoError(t, err)

	loans, err := lm.ledger.OpenLoansFor(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, "early", loans[0].ISBN)
	assert.Equal(t, "late", loans[1].ISBN)
}

func TestLedgerUniqueOpenLoan(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	mustRegister(t, lm, "S1", RoleStudent)
	mustAddBook(t, lm, "1", CategoryCS, 3)

	loan, err := lm.ledger.CreateLoan(ctx, "S1", "1", fixedNow)
	require.NoError(t, err)
	has, err := lm.ledger.HasOpenLoan(ctx, "S1", "1")
	require.NoError(t, err)
	assert.True(t, has)

	_, err = lm.ledger.CreateLoan(ctx, "S1", "1", fixedNow)
	assert.ErrorIs(t, err, ErrHasBorrowed)

	_, err = lm.ledger.MarkReturned(ctx, loan.ID, "S1")
	require.NoError(t, err)
	has, err = lm.ledger.HasOpenLoan(ctx, "S1", "1")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = lm.ledger.CreateLoan(ctx, "S1", "1", fixedNow)
	assert.NoError(t, err, "a returned loan does not block a new one")
}

func TestLedgerDueDate(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	mustRegister(t, lm, "S1", RoleStudent)
	mustAddBook(t, lm, "1", CategoryCS, 1)

	late := time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)
	loan, err := lm.ledger.CreateLoan(ctx, "S1", "1", late)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), loan.BorrowDate)
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), loan.DueDate)
	assert.Equal(t, LoanPeriod, loan.DueDate.Sub(loan.BorrowDate))
}

func TestOpenLoansForClass(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	a := mustRegister(t, lm, "S2", RoleStudent)
	b := mustRegister(t, lm, "S1", RoleStudent)
	outsider := mustRegister(t, lm, "S3", RoleStudent)
	mustAddClass(t, lm, "C1", "S1", "S2")
	mustAddBook(t, lm, "x", CategoryLit, 5)
	mustAddBook(t, lm, "y", CategoryLit, 5)

	_, err := lm.Borrow(ctx, a, "x")
	require.NoError(t, err)
	_, err = lm.Borrow(ctx, b, "y")
	require.NoError(t, err)
	returned, err := lm.Borrow(ctx, b, "x")
	require.NoError(t, err)
	_, err = lm.Return(ctx, b, returned.ID)
	require.NoError(t, err)
	_, err = lm.Borrow(ctx, outsider, "x")
	require.NoError(t, err)

	loans, err := lm.ledger.OpenLoansForClass(ctx, "C1")
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, "S1", loans[0].StudentID)
	assert.Equal(t, "y", loans[0].ISBN)
	assert.Equal(t, "Person S1", loans[0].StudentName)
	assert.Equal(t, "S2", loans[1].StudentID)
	assert.Equal(t, "x", loans[1].ISBN)
}
