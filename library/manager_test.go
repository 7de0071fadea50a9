package library

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school-library/session"
)

func TestSeedCreatesDemoData(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	require.NoError(t, lm.Seed(ctx))

	teacher, err := lm.Authenticate(ctx, "T001", SeedTeacherPassword)
	require.NoError(t, err)
	assert.True(t, teacher.IsTeacher())
	require.NotNil(t, teacher.JoinYear)
	assert.Equal(t, 2010, *teacher.JoinYear)

	student, err := lm.Authenticate(ctx, "S001", SeedStudentPassword)
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, student.Role)
	assert.Nil(t, student.JoinYear)

	books, err := lm.ListAvailableBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 10)

	classes, err := lm.ClassesOf(ctx, teacher)
	require.NoError(t, err)
	assert.Equal(t, []string{"C001", "C002"}, classes)
}

func TestSeedSkipsPopulatedDatabase(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	mustRegister(t, lm, "X1", RoleStudent)

	require.NoError(t, lm.Seed(ctx))

	_, err := lm.GetPerson(ctx, "T001")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSeedTwiceIsHarmless(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	require.NoError(t, lm.Seed(ctx))
	require.NoError(t, lm.Seed(ctx))

	books, err := lm.ListAvailableBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 10)
}

func TestSeedFailureLeavesNothingBehind(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	mustAddBook(t, lm, "9787302123456", CategoryCS, 1)

	require.Error(t, lm.Seed(ctx))

	var users, classes int
	require.NoError(t, lm.db.db.GetContext(ctx, &users, `SELECT COUNT(*) FROM users`))
	require.NoError(t, lm.db.db.GetContext(ctx, &classes, `SELECT COUNT(*) FROM classes`))
	assert.Zero(t, users)
	assert.Zero(t, classes)

	_, err := lm.db.db.ExecContext(ctx, `DELETE FROM books WHERE isbn=?`, "9787302123456")
	require.NoError(t, err)
	require.NoError(t, lm.Seed(ctx))

	_, err = lm.Authenticate(ctx, "T001", SeedTeacherPassword)
	assert.NoError(t, err)
	books, err := lm.ListAvailableBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 10)
}

func TestLoginResolveLogout(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	mustRegister(t, lm, "S1", RoleStudent)

	_, _, err := lm.Login(ctx, "S1", "wrong")
	assert.ErrorIs(t, err, ErrAuthFail)
	_, _, err = lm.Login(ctx, "nobody", "secret")
	assert.ErrorIs(t, err, ErrAuthFail)

	token, p, err := lm.Login(ctx, "S1", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "S1", p.ID)

	resolved, err := lm.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, p.ID, resolved.ID)

	require.NoError(t, lm.Logout(ctx, token))
	_, err = lm.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrAuthFail)
}

func TestResolveRejectsUnknownToken(t *testing.T) {
	lm := newManager(t)
	_, err := lm.Resolve(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrAuthFail)
}

func TestSessionsUseInjectedStore(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	lm := newManager(t, WithSessionStore(store))
	ctx := context.Background()
	mustRegister(t, lm, "T1", RoleTeacher)

	token, _, err := lm.Login(ctx, "T1", "secret")
	require.NoError(t, err)

	subject, err := store.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "T1", subject)
}

func TestClassesOfStudent(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	s := mustRegister(t, lm, "S1", RoleStudent)
	loner := mustRegister(t, lm, "S2", RoleStudent)
	mustAddClass(t, lm, "C1", "S1")

	classes, err := lm.ClassesOf(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"C1"}, classes)

	classes, err = lm.ClassesOf(ctx, loner)
	require.NoError(t, err)
	assert.Empty(t, classes)
}

func TestPrettyFormatting(t *testing.T) {
	line := PrettyBook(Book{ISBN: "123", Title: "A very long title that keeps going and going", Category: CategoryCS, Authors: "Someone", Remaining: 2})
	assert.Contains(t, line, "A very long title that keep...")
	assert.Contains(t, line, "CS")

	loan := PrettyLoan(LoanView{Loan: Loan{ID: 7, ISBN: "123", DueDate: time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)}, Title: "Short"})
	assert.Contains(t, loan, "2025-05-30")
	assert.Contains(t, loan, "Short")
}

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "红楼梦", Truncate("红楼梦", 3))
	assert.Equal(t, "红楼...", Truncate("红楼梦的故事", 5))
	assert.Equal(t, "ab", Truncate("abcdef", 2))

	long := strings.Repeat("红楼梦", 20)
	cut := Truncate(long, 50)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, 50, utf8.RuneCountInString(cut))
}
