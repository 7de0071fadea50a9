package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Membership owns class rosters and teacher-class associations.
type Membership struct {
	d *Database
}

func NewMembership(d *Database) *Membership { return &Membership{d: d} }

// AddClass creates a class. An existing id is a validation error.
func (m *Membership) AddClass(ctx context.Context, c Class) error {
	c.ID, c.Name = strings.TrimSpace(c.ID), strings.TrimSpace(c.Name)
	if c.ID == "" || c.Name == "" {
		return fmt.Errorf("%w: class id and name are required", ErrValidation)
	}
	_, err := m.d.db.ExecContext(ctx, `INSERT INTO classes(id,name) VALUES(?,?)`, c.ID, c.Name)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: class %s already exists", ErrValidation, c.ID)
	}
	return fault(ctx, m.d.logger, "add class", err)
}

// GetClass returns the class or ErrNotFound.
func (m *Membership) GetClass(ctx context.Context, classID string) (*Class, error) {
	c, err := getClass(ctx, m.d.db, classID)
	return c, fault(ctx, m.d.logger, "get class", err)
}

// ListClasses returns every class ordered by id.
func (m *Membership) ListClasses(ctx context.Context) ([]Class, error) {
	classes := []Class{}
	err := m.d.db.SelectContext(ctx, &classes, `SELECT id,name FROM classes ORDER BY id`)
	return classes, fault(ctx, m.d.logger, "list classes", err)
}

// ClassesForTeacher returns the ids of the classes the teacher manages.
func (m *Membership) ClassesForTeacher(ctx context.Context, teacherID string) ([]string, error) {
	ids := []string{}
	err := m.d.db.SelectContext(ctx, &ids, `SELECT class_id FROM teacher_classes WHERE teacher_uid=? ORDER BY class_id`, teacherID)
	return ids, fault(ctx, m.d.logger, "classes for teacher", err)
}

// ManagedClasses is ClassesForTeacher with class names attached.
func (m *Membership) ManagedClasses(ctx context.Context, teacherID string) ([]Class, error) {
	classes := []Class{}
	err := m.d.db.SelectContext(ctx, &classes, `
        SELECT c.id, c.name FROM classes c
        JOIN teacher_classes tc ON tc.class_id = c.id
        WHERE tc.teacher_uid = ?
        ORDER BY c.id`, teacherID)
	return classes, fault(ctx, m.d.logger, "managed classes", err)
}

// ClassForStudent returns the student's class id; ok is false when the
// student is not enrolled anywhere.
func (m *Membership) ClassForStudent(ctx context.Context, studentID string) (classID string, ok bool, err error) {
	err = m.d.db.GetContext(ctx, &classID, `SELECT class_id FROM enrollments WHERE student_uid=?`, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fault(ctx, m.d.logger, "class for student", err)
	}
	return classID, true, nil
}

// Associate links a teacher to a class. Linking twice is a no-op.
func (m *Membership) Associate(ctx context.Context, teacherID, classID string) error {
	err := m.d.withTx(ctx, func(tx *sqlx.Tx) error {
		p, err := getPerson(ctx, tx, teacherID)
		if err != nil {
			return err
		}
		if p.Role != RoleTeacher {
			return fmt.Errorf("%w: %s is not a teacher", ErrValidation, teacherID)
		}
		if _, err := getClass(ctx, tx, classID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO teacher_classes(teacher_uid,class_id) VALUES(?,?)`, teacherID, classID)
		return err
	})
	return fault(ctx, m.d.logger, "associate", err)
}

// Dissociate removes the link. Removing a missing link is a no-op.
func (m *Membership) Dissociate(ctx context.Context, teacherID, classID string) error {
	_, err := m.d.db.ExecContext(ctx, `DELETE FROM teacher_classes WHERE teacher_uid=? AND class_id=?`, teacherID, classID)
	return fault(ctx, m.d.logger, "dissociate", err)
}

// Enroll places a student in a class, moving them out of any previous one.
func (m *Membership) Enroll(ctx context.Context, studentID, classID string) error {
	err := m.d.withTx(ctx, func(tx *sqlx.Tx) error {
		p, err := getPerson(ctx, tx, studentID)
		if err != nil {
			return err
		}
		if p.Role != RoleStudent {
			return fmt.Errorf("%w: %s is not a student", ErrValidation, studentID)
		}
		if _, err := getClass(ctx, tx, classID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO enrollments(student_uid,class_id) VALUES(?,?)
            ON CONFLICT(student_uid) DO UPDATE SET class_id=excluded.class_id`, studentID, classID)
		return err
	})
	return fault(ctx, m.d.logger, "enroll", err)
}

// StudentsInClass returns the class roster ordered by student id.
func (m *Membership) StudentsInClass(ctx context.Context, classID string) ([]Person, error) {
	students := []Person{}
	err := m.d.db.SelectContext(ctx, &students, `
        SELECT u.uid, u.name, u.sex, u.age, u.college, u.join_year, u.password, u.role
        FROM users u
        JOIN enrollments e ON e.student_uid = u.uid
        WHERE e.class_id = ? AND u.role = 'STU'
        ORDER BY u.uid`, classID)
	return students, fault(ctx, m.d.logger, "students in class", err)
}

func getClass(ctx context.Context, q sqlx.QueryerContext, classID string) (*Class, error) {
	var c Class
	err := sqlx.GetContext(ctx, q, &c, `SELECT id,name FROM classes WHERE id=?`, classID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: class %s", ErrNotFound, classID)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
