package library

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Demo accounts created by Seed.
const (
	SeedTeacherPassword = "123456"
	SeedStudentPassword = "111"
)

var seedPeople = []NewPerson{
	{ID: "T001", Name: "Ms. Zhang", Sex: "F", Age: 40, College: "School of Mathematics", Role: RoleTeacher, JoinYear: 2010},
	{ID: "T002", Name: "Mr. Li", Sex: "M", Age: 38, College: "School of Mathematics", Role: RoleTeacher, JoinYear: 2015},
	{ID: "S001", Name: "Alice", Sex: "F", Age: 19, College: "School of Mathematics", Role: RoleStudent},
	{ID: "S002", Name: "Bob", Sex: "M", Age: 20, College: "School of Mathematics", Role: RoleStudent},
	{ID: "S003", Name: "Carol", Sex: "F", Age: 19, College: "School of Mathematics", Role: RoleStudent},
	{ID: "S004", Name: "Dave", Sex: "M", Age: 21, College: "School of Mathematics", Role: RoleStudent},
	{ID: "S005", Name: "Eve", Sex: "F", Age: 20, College: "School of Mathematics", Role: RoleStudent},
}

var seedBooks = []Book{
	{ISBN: "9787111234567", Title: "Programming in Python", Category: CategoryCS, Authors: "Guido et al.", Publisher: "China Machine Press", Keywords: "python beginner", Remaining: 5},
	{ISBN: "9787042345678", Title: "Mathematical Analysis", Category: CategoryMath, Authors: "Zhang San", Publisher: "Higher Education Press", Keywords: "math analysis", Remaining: 3},
	{ISBN: "9787301123456", Title: "General Physics", Category: CategoryPhy, Authors: "Li Si", Publisher: "Tsinghua University Press", Keywords: "physics basics", Remaining: 4},
	{ISBN: "9787021456789", Title: "Fortress Besieged", Category: CategoryLit, Authors: "Qian Zhongshu", Publisher: "People's Literature", Keywords: "novel modern", Remaining: 6},
	{ISBN: "9787031234567", Title: "Linear Algebra", Category: CategoryMath, Authors: "Li Yongle", Publisher: "Science Press", Keywords: "algebra exam", Remaining: 4},
	{ISBN: "9787112345678", Title: "C++ Primer", Category: CategoryCS, Authors: "Lippman", Publisher: "China Machine Press", Keywords: "c++ beginner", Remaining: 5},
	{ISBN: "9787043456789", Title: "University Physics", Category: CategoryPhy, Authors: "Zhao Kaihua", Publisher: "Higher Education Press", Keywords: "physics general", Remaining: 3},
	{ISBN: "9787022567890", Title: "Dream of the Red Chamber", Category: CategoryLit, Authors: "Cao Xueqin", Publisher: "People's Literature", Keywords: "classic novel", Remaining: 6},
	{ISBN: "9787302123456", Title: "Introduction to Algorithms", Category: CategoryCS, Authors: "CLRS", Publisher: "Tsinghua University Press", Keywords: "algorithms classic", Remaining: 2},
	{ISBN: "9787011345678", Title: "Modern History", Category: CategoryLit, Authors: "Jiang Tingfu", Publisher: "People's Press", Keywords: "history modern", Remaining: 4},
}

var seedClasses = []Class{
	{ID: "C001", Name: "2023 Mathematics Class 1"},
	{ID: "C002", Name: "2023 Mathematics Class 2"},
}

var seedEnrollments = [][2]string{
	{"S001", "C001"}, {"S002", "C001"}, {"S003", "C002"}, {"S004", "C002"}, {"S005", "C001"},
}

// Seed fills an empty database with demo users, books and classes in one
// transaction. It does nothing when any user already exists.
func (lm *LibraryManager) Seed(ctx context.Context) error {
	if empty, err := lm.noUsers(ctx, lm.db.db); err != nil || !empty {
		return err
	}

	people := make([]*Person, 0, len(seedPeople))
	for _, np := range seedPeople {
		secret := SeedStudentPassword
		if np.Role == RoleTeacher {
			secret = SeedTeacherPassword
		}
		p, err := lm.registry.newPerson(np, secret)
		if err != nil {
			return err
		}
		people = append(people, p)
	}

	skipped := false
	err := lm.db.withTx(ctx, func(tx *sqlx.Tx) error {
		empty, err := lm.noUsers(ctx, tx)
		if err != nil || !empty {
			skipped = true
			return err
		}

		insertPerson := tx.StmtxContext(ctx, lm.db.insertPersonStmt)
		for _, p := range people {
			if _, err := insertPerson.ExecContext(ctx, p.ID, p.Name, p.Sex, p.Age, p.College, p.JoinYear, p.PasswordHash, string(p.Role)); err != nil {
				return fmt.Errorf("seed user %s: %w", p.ID, err)
			}
		}
		for _, c := range seedClasses {
			if _, err := tx.ExecContext(ctx, `INSERT INTO classes(id,name) VALUES(?,?)`, c.ID, c.Name); err != nil {
				return fmt.Errorf("seed class %s: %w", c.ID, err)
			}
		}
		for _, e := range seedEnrollments {
			if _, err := tx.ExecContext(ctx, `INSERT INTO enrollments(student_uid,class_id) VALUES(?,?)`, e[0], e[1]); err != nil {
				return fmt.Errorf("seed enrollment %s: %w", e[0], err)
			}
		}
		insertBook := tx.StmtxContext(ctx, lm.db.insertBookStmt)
		for _, b := range seedBooks {
			if _, err := insertBook.ExecContext(ctx, b.ISBN, b.Title, string(b.Category), b.Authors, b.Publisher, b.Keywords, b.Remaining); err != nil {
				return fmt.Errorf("seed book %s: %w", b.ISBN, err)
			}
		}
		for _, classID := range []string{"C001", "C002"} {
			if _, err := tx.ExecContext(ctx, `INSERT INTO teacher_classes(teacher_uid,class_id) VALUES(?,?)`, "T001", classID); err != nil {
				return fmt.Errorf("seed association %s: %w", classID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fault(ctx, lm.logger, "seed", err)
	}
	if !skipped {
		lm.logger.InfoContext(ctx, "seed complete",
			"users", len(seedPeople), "books", len(seedBooks), "classes", len(seedClasses))
	}
	return nil
}

func (lm *LibraryManager) noUsers(ctx context.Context, q sqlx.QueryerContext) (bool, error) {
	var users int
	if err := sqlx.GetContext(ctx, q, &users, `SELECT COUNT(*) FROM users`); err != nil {
		return false, fault(ctx, lm.logger, "seed", err)
	}
	if users > 0 {
		lm.logger.InfoContext(ctx, "seed skipped, database not empty", "users", users)
	}
	return users == 0, nil
}
