package library

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var fixedNow = time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tempDB(t *testing.T) *Database {
	t.Helper()
	dir := t.TempDir()
	db, err := NewDatabase(filepath.Join(dir, "test.db"), discardLogger())
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newManager(t *testing.T, opts ...Option) *LibraryManager {
	t.Helper()
	dir := t.TempDir()
	opts = append([]Option{
		WithLogger(discardLogger()),
		WithHasher(BcryptHasher{Cost: bcrypt.MinCost}),
		WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	mgr, err := NewLibraryManager(filepath.Join(dir, "lib.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func mustRegister(t *testing.T, lm *LibraryManager, id string, role Role) *Person {
	t.Helper()
	p, err := lm.Register(context.Background(), NewPerson{ID: id, Name: "Person " + id, Age: 20, Role: role}, "secret")
	require.NoError(t, err)
	return p
}

func mustAddBook(t *testing.T, lm *LibraryManager, isbn string, category Category, copies int) {
	t.Helper()
	err := lm.AddBook(context.Background(), Book{ISBN: isbn, Title: "Title " + isbn, Category: category, Authors: "Author", Remaining: copies})
	require.NoError(t, err)
}

func mustAddClass(t *testing.T, lm *LibraryManager, id string, students ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, lm.AddClass(ctx, Class{ID: id, Name: "Class " + id}))
	for _, s := range students {
		require.NoError(t, lm.Enroll(ctx, s, id))
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")

	first, err := NewDatabase(path, discardLogger())
	require.NoError(t, err)
	_, err = first.db.Exec(`INSERT INTO classes(id,name) VALUES('C1','one')`)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewDatabase(path, discardLogger())
	require.NoError(t, err)
	defer second.Close()

	var n int
	require.NoError(t, second.db.Get(&n, `SELECT COUNT(*) FROM classes`))
	assert.Equal(t, 1, n)
}

func TestRoleCannotChange(t *testing.T) {
	lm := newManager(t)
	mustRegister(t, lm, "S1", RoleStudent)

	_, err := lm.db.db.Exec(`UPDATE users SET role='TEA' WHERE uid='S1'`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "role is immutable")

	p, err := lm.GetPerson(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, p.Role)
}

func TestReturnedFlagIsOneWay(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	s := mustRegister(t, lm, "S1", RoleStudent)
	mustAddBook(t, lm, "111", CategoryCS, 1)

	loan, err := lm.Borrow(ctx, s, "111")
	require.NoError(t, err)
	_, err = lm.Return(ctx, s, loan.ID)
	require.NoError(t, err)

	_, err = lm.db.db.Exec(`UPDATE loans SET returned=0 WHERE id=?`, loan.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loan already returned")
}

func TestStockNeverNegative(t *testing.T) {
	db := tempDB(t)
	_, err := db.db.Exec(`INSERT INTO books(isbn,title,category,remaining) VALUES('1','t','CS',0)`)
	require.NoError(t, err)

	_, err = db.db.Exec(`UPDATE books SET remaining=remaining-1 WHERE isbn='1'`)
	assert.Error(t, err, "CHECK constraint must reject negative stock")

	err = decrementStock(context.Background(), db.db, "1")
	assert.ErrorIs(t, err, ErrNoBook)
}

func TestFaultWrapsStorageErrors(t *testing.T) {
	db := tempDB(t)
	require.NoError(t, db.db.Close())

	_, err := NewCatalog(db).ListAvailable(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInternal)
}
