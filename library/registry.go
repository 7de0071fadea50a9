package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes secrets on write and verifies them on read.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Verify(hash, secret string) bool
}

// BcryptHasher is the default PasswordHasher. A zero Cost means bcrypt.DefaultCost.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(secret string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h BcryptHasher) Verify(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// NewPerson describes a person to register.
type NewPerson struct {
	ID       string
	Name     string
	Sex      string
	Age      int
	College  string
	Role     Role // empty means RoleStudent
	JoinYear int  // teachers only; 0 means unknown
}

// Registry owns identity, role and the editable profile fields.
type Registry struct {
	d      *Database
	hasher PasswordHasher

	placeholderOnce sync.Once
	placeholder     string // compared against on unknown ids
}

func NewRegistry(d *Database, hasher PasswordHasher) *Registry {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	return &Registry{d: d, hasher: hasher}
}

// Register creates a person. The role chosen here can never change.
func (r *Registry) Register(ctx context.Context, np NewPerson, secret string) (*Person, error) {
	p, err := r.newPerson(np, secret)
	if err != nil {
		return nil, err
	}
	_, err = r.d.insertPersonStmt.ExecContext(ctx, p.ID, p.Name, p.Sex, p.Age, p.College, p.JoinYear, p.PasswordHash, string(p.Role))
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: user %s already exists", ErrValidation, p.ID)
	}
	if err != nil {
		return nil, fault(ctx, r.d.logger, "register", err)
	}
	r.d.logger.InfoContext(ctx, "person registered", "uid", p.ID, "role", p.Role.String())
	return p, nil
}

func (r *Registry) newPerson(np NewPerson, secret string) (*Person, error) {
	if np.Role == "" {
		np.Role = RoleStudent
	}
	np.ID = strings.TrimSpace(np.ID)
	np.Name = strings.TrimSpace(np.Name)
	switch {
	case np.ID == "":
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	case !np.Role.Valid():
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, np.Role)
	case np.Name == "":
		return nil, fmt.Errorf("%w: name must not be empty", ErrValidation)
	case np.Age <= 0:
		return nil, fmt.Errorf("%w: age must be a positive integer", ErrValidation)
	case secret == "":
		return nil, fmt.Errorf("%w: password must not be empty", ErrValidation)
	}

	hash, err := r.hasher.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	p := &Person{
		ID:           np.ID,
		Name:         np.Name,
		Sex:          np.Sex,
		Age:          np.Age,
		College:      np.College,
		Role:         np.Role,
		PasswordHash: hash,
	}
	if np.Role == RoleTeacher && np.JoinYear > 0 {
		year := np.JoinYear
		p.JoinYear = &year
	}
	return p, nil
}

// Authenticate returns the person when secret matches, ErrAuthFail otherwise.
// Unknown ids and wrong secrets are indistinguishable to the caller.
func (r *Registry) Authenticate(ctx context.Context, id, secret string) (*Person, error) {
	p, err := getPerson(ctx, r.d.db, id)
	if errors.Is(err, ErrNotFound) {
		// Spend the same hashing work as a real mismatch.
		r.hasher.Verify(r.placeholderHash(), secret)
		return nil, ErrAuthFail
	}
	if err != nil {
		return nil, fault(ctx, r.d.logger, "authenticate", err)
	}
	if !r.hasher.Verify(p.PasswordHash, secret) {
		return nil, ErrAuthFail
	}
	return p, nil
}

func (r *Registry) placeholderHash() string {
	r.placeholderOnce.Do(func() {
		// An error leaves the hash empty and Verify simply fails.
		r.placeholder, _ = r.hasher.Hash("placeholder-secret")
	})
	return r.placeholder
}

// Lookup resolves a session identity to a person, or ErrNotFound.
func (r *Registry) Lookup(ctx context.Context, id string) (*Person, error) {
	p, err := getPerson(ctx, r.d.db, id)
	return p, fault(ctx, r.d.logger, "lookup person", err)
}

// RenameTo sets a new display name. Blank names are rejected.
func (r *Registry) RenameTo(ctx context.Context, id, newName string) (*Person, error) {
	return r.UpdateProfile(ctx, id, &newName, nil)
}

// SetAge sets a new age. Ages must be positive.
func (r *Registry) SetAge(ctx context.Context, id string, newAge int) (*Person, error) {
	return r.UpdateProfile(ctx, id, nil, &newAge)
}

// UpdateProfile applies the given name and age together. Both are validated
// before anything is written; nil fields are left as they are.
func (r *Registry) UpdateProfile(ctx context.Context, id string, name *string, age *int) (*Person, error) {
	var newName string
	if name != nil {
		newName = strings.TrimSpace(*name)
		if newName == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrValidation)
		}
	}
	if age != nil && *age <= 0 {
		return nil, fmt.Errorf("%w: age must be a positive integer", ErrValidation)
	}

	var p *Person
	err := r.d.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if p, err = getPerson(ctx, tx, id); err != nil {
			return err
		}
		if name != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE users SET name=? WHERE uid=?`, newName, id); err != nil {
				return err
			}
			p.Name = newName
		}
		if age != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE users SET age=? WHERE uid=?`, *age, id); err != nil {
				return err
			}
			p.Age = *age
		}
		return nil
	})
	if err != nil {
		return nil, fault(ctx, r.d.logger, "update profile", err)
	}
	return p, nil
}

// ChangePassword replaces the secret after verifying the old one.
func (r *Registry) ChangePassword(ctx context.Context, id, oldSecret, newSecret string) error {
	if _, err := r.Authenticate(ctx, id, oldSecret); err != nil {
		return err
	}
	if strings.TrimSpace(newSecret) == "" {
		return fmt.Errorf("%w: password must not be empty", ErrValidation)
	}
	hash, err := r.hasher.Hash(newSecret)
	if err != nil {
		return fault(ctx, r.d.logger, "change password", err)
	}
	_, err = r.update(ctx, "change password", id, `UPDATE users SET password=? WHERE uid=?`, hash)
	return err
}

func (r *Registry) update(ctx context.Context, op, id, query string, value any) (*Person, error) {
	var p *Person
	err := r.d.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query, value, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: user %s", ErrNotFound, id)
		}
		p, err = getPerson(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, fault(ctx, r.d.logger, op, err)
	}
	return p, nil
}

func getPerson(ctx context.Context, q sqlx.QueryerContext, id string) (*Person, error) {
	var p Person
	err := sqlx.GetContext(ctx, q, &p, `SELECT uid,name,sex,age,college,join_year,password,role FROM users WHERE uid=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
