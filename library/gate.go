package library

import (
	"context"
	"fmt"
	"slices"
)

// Gate decides what a principal may see of class rosters and student loans.
// Only teachers pass, and only for classes they are associated with.
type Gate struct {
	membership *Membership
	ledger     *Ledger
}

func NewGate(membership *Membership, ledger *Ledger) *Gate {
	return &Gate{membership: membership, ledger: ledger}
}

// RequireTeacher fails with ErrForbidden unless p is a teacher.
func (g *Gate) RequireTeacher(p *Person) error {
	if !p.IsTeacher() {
		return fmt.Errorf("%w: teachers only", ErrForbidden)
	}
	return nil
}

// RequireClass fails with ErrForbidden unless p teaches classID.
func (g *Gate) RequireClass(ctx context.Context, p *Person, classID string) error {
	if err := g.RequireTeacher(p); err != nil {
		return err
	}
	ids, err := g.membership.ClassesForTeacher(ctx, p.ID)
	if err != nil {
		return err
	}
	if !slices.Contains(ids, classID) {
		return fmt.Errorf("%w: teacher %s is not associated with class %s", ErrForbidden, p.ID, classID)
	}
	return nil
}

// RequireStudent fails with ErrForbidden unless p teaches classID and
// studentID is enrolled in it.
func (g *Gate) RequireStudent(ctx context.Context, p *Person, classID, studentID string) error {
	if err := g.RequireClass(ctx, p, classID); err != nil {
		return err
	}
	actual, ok, err := g.membership.ClassForStudent(ctx, studentID)
	if err != nil {
		return err
	}
	if !ok || actual != classID {
		return fmt.Errorf("%w: student %s is not in class %s", ErrForbidden, studentID, classID)
	}
	return nil
}

// ManagedClasses lists the teacher's classes.
func (g *Gate) ManagedClasses(ctx context.Context, p *Person) ([]Class, error) {
	if err := g.RequireTeacher(p); err != nil {
		return nil, err
	}
	return g.membership.ManagedClasses(ctx, p.ID)
}

// UnmanagedClasses lists the classes the teacher could still associate with.
func (g *Gate) UnmanagedClasses(ctx context.Context, p *Person) ([]Class, error) {
	if err := g.RequireTeacher(p); err != nil {
		return nil, err
	}
	all, err := g.membership.ListClasses(ctx)
	if err != nil {
		return nil, err
	}
	managed, err := g.membership.ClassesForTeacher(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(c Class) bool { return slices.Contains(managed, c.ID) }), nil
}

func (g *Gate) Associate(ctx context.Context, p *Person, classID string) error {
	if err := g.RequireTeacher(p); err != nil {
		return err
	}
	return g.membership.Associate(ctx, p.ID, classID)
}

func (g *Gate) Dissociate(ctx context.Context, p *Person, classID string) error {
	if err := g.RequireTeacher(p); err != nil {
		return err
	}
	return g.membership.Dissociate(ctx, p.ID, classID)
}

// ClassStudents returns the roster of a class the teacher manages.
func (g *Gate) ClassStudents(ctx context.Context, p *Person, classID string) ([]Person, error) {
	if err := g.RequireClass(ctx, p, classID); err != nil {
		return nil, err
	}
	return g.membership.StudentsInClass(ctx, classID)
}

// ClassLoans returns the open loans of a class the teacher manages.
func (g *Gate) ClassLoans(ctx context.Context, p *Person, classID string) ([]ClassLoan, error) {
	if err := g.RequireClass(ctx, p, classID); err != nil {
		return nil, err
	}
	return g.ledger.OpenLoansForClass(ctx, classID)
}

// StudentLoans returns one student's open loans.
func (g *Gate) StudentLoans(ctx context.Context, p *Person, classID, studentID string) ([]LoanView, error) {
	if err := g.RequireStudent(ctx, p, classID, studentID); err != nil {
		return nil, err
	}
	return g.ledger.OpenLoansFor(ctx, studentID)
}
