package library

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRegisterDefaultsToStudent(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()

	p, err := lm.Register(ctx, NewPerson{ID: " S9 ", Name: " Nina ", Age: 18}, "pw")
	require.NoError(t, err)
	assert.Equal(t, "S9", p.ID)
	assert.Equal(t, "Nina", p.Name)
	assert.Equal(t, RoleStudent, p.Role)
	assert.NotEqual(t, "pw", p.PasswordHash)
}

func TestRegisterValidation(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	mustRegister(t, lm, "S1", RoleStudent)

	tests := []struct {
		name   string
		np     NewPerson
		secret string
	}{
		{"missing id", NewPerson{Name: "x", Age: 1}, "pw"},
		{"blank name", NewPerson{ID: "A", Name: "  ", Age: 1}, "pw"},
		{"zero age", NewPerson{ID: "A", Name: "x"}, "pw"},
		{"bad role", NewPerson{ID: "A", Name: "x", Age: 1, Role: "ADM"}, "pw"},
		{"empty password", NewPerson{ID: "A", Name: "x", Age: 1}, ""},
		{"duplicate id", NewPerson{ID: "S1", Name: "x", Age: 1}, "pw"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := lm.Register(ctx, tc.np, tc.secret)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	mustRegister(t, lm, "T1", RoleTeacher)

	p, err := lm.Authenticate(ctx, "T1", "secret")
	require.NoError(t, err)
	assert.Equal(t, RoleTeacher, p.Role)

	_, err = lm.Authenticate(ctx, "T1", "Secret")
	assert.ErrorIs(t, err, ErrAuthFail)

	_, err = lm.Authenticate(ctx, "T9", "secret")
	assert.ErrorIs(t, err, ErrAuthFail)
}

func TestRenameAndSetAge(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	p := mustRegister(t, lm, "S1", RoleStudent)

	updated, err := lm.Rename(ctx, p, "  Mia  ")
	require.NoError(t, err)
	assert.Equal(t, "Mia", updated.Name)

	_, err = lm.Rename(ctx, p, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	updated, err = lm.SetAge(ctx, p, 21)
	require.NoError(t, err)
	assert.Equal(t, 21, updated.Age)
	assert.Equal(t, "Mia", updated.Name)

	for _, age := range []int{0, -3} {
		_, err = lm.SetAge(ctx, p, age)
		assert.ErrorIs(t, err, ErrValidation)
	}

	stored, err := lm.GetPerson(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 21, stored.Age)
	assert.Equal(t, RoleStudent, stored.Role)
}

func TestProfileUpdateOfMissingPerson(t *testing.T) {
	lm := newManager(t)
	_, err := lm.Rename(context.Background(), &Person{ID: "ghost"}, "Name")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	p := mustRegister(t, lm, "S1", RoleStudent)

	assert.ErrorIs(t, lm.ChangePassword(ctx, p, "wrong", "new"), ErrAuthFail)
	assert.ErrorIs(t, lm.ChangePassword(ctx, p, "secret", " "), ErrValidation)

	require.NoError(t, lm.ChangePassword(ctx, p, "secret", "new"))
	_, err := lm.Authenticate(ctx, "S1", "secret")
	assert.ErrorIs(t, err, ErrAuthFail)
	_, err = lm.Authenticate(ctx, "S1", "new")
	assert.NoError(t, err)
}

func TestTeacherJoinYear(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()

	teacher, err := lm.Register(ctx, NewPerson{ID: "T1", Name: "T", Age: 30, Role: RoleTeacher, JoinYear: 2019}, "pw")
	require.NoError(t, err)
	require.NotNil(t, teacher.JoinYear)

	student, err := lm.Register(ctx, NewPerson{ID: "S1", Name: "S", Age: 18, JoinYear: 2019}, "pw")
	require.NoError(t, err)
	assert.Nil(t, student.JoinYear)

	stored, err := lm.GetPerson(ctx, "T1")
	require.NoError(t, err)
	require.NotNil(t, stored.JoinYear)
	assert.Equal(t, 2019, *stored.JoinYear)
}

func TestUpdateProfileRejectsAllOrNothing(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	p := mustRegister(t, lm, "S1", RoleStudent)

	name, age := "Mia", 0
	_, err := lm.UpdateProfile(ctx, p, &name, &age)
	assert.ErrorIs(t, err, ErrValidation)

	blank, newAge := " ", 30
	_, err = lm.UpdateProfile(ctx, p, &blank, &newAge)
	assert.ErrorIs(t, err, ErrValidation)

	stored, err := lm.GetPerson(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "Person S1", stored.Name)
	assert.Equal(t, 20, stored.Age)

	newAge = 21
	updated, err := lm.UpdateProfile(ctx, p, &name, &newAge)
	require.NoError(t, err)
	assert.Equal(t, "Mia", updated.Name)
	assert.Equal(t, 21, updated.Age)

	updated, err = lm.UpdateProfile(ctx, p, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Mia", updated.Name)
}

type countingHasher struct {
	BcryptHasher
	verifies int
}

func (h *countingHasher) Verify(hash, secret string) bool {
	h.verifies++
	return h.BcryptHasher.Verify(hash, secret)
}

func TestAuthenticateUnknownIDStillVerifies(t *testing.T) {
	h := &countingHasher{BcryptHasher: BcryptHasher{Cost: bcrypt.MinCost}}
	lm := newManager(t, WithHasher(h))
	ctx := context.Background()
	mustRegister(t, lm, "S1", RoleStudent)

	_, err := lm.Authenticate(ctx, "nobody", "secret")
	assert.ErrorIs(t, err, ErrAuthFail)
	assert.Equal(t, 1, h.verifies)

	_, err = lm.Authenticate(ctx, "nobody", "placeholder-secret")
	assert.ErrorIs(t, err, ErrAuthFail)
	assert.Equal(t, 2, h.verifies)

	_, err = lm.Authenticate(ctx, "S1", "wrong")
	assert.ErrorIs(t, err, ErrAuthFail)
	assert.Equal(t, 3, h.verifies)
}
