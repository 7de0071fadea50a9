package library

import "time"

// Role tags a person as a teacher or a student. It is fixed at creation.
type Role string

const (
	RoleTeacher Role = "TEA"
	RoleStudent Role = "STU"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r == RoleTeacher || r == RoleStudent }

func (r Role) String() string {
	switch r {
	case RoleTeacher:
		return "teacher"
	case RoleStudent:
		return "student"
	}
	return string(r)
}

// Category is the closed set of catalog shelves.
type Category string

const (
	CategoryCS   Category = "CS"
	CategoryMath Category = "MATH"
	CategoryPhy  Category = "PHY"
	CategoryLit  Category = "LIT"
)

// Categories lists every valid category in display order.
var Categories = []Category{CategoryCS, CategoryMath, CategoryPhy, CategoryLit}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// LoanPeriod is how long a borrower may keep a book.
const LoanPeriod = 90 * 24 * time.Hour

// Person is a registered user. Teachers carry a JoinYear; students don't.
type Person struct {
	ID           string `db:"uid" json:"id"`
	Name         string `db:"name" json:"name"`
	Sex          string `db:"sex" json:"sex"`
	Age          int    `db:"age" json:"age"`
	College      string `db:"college" json:"college"`
	Role         Role   `db:"role" json:"role"`
	JoinYear     *int   `db:"join_year" json:"join_year,omitempty"`
	PasswordHash string `db:"password" json:"-"` // Don't serialize password hash
}

func (p *Person) IsTeacher() bool { return p != nil && p.Role == RoleTeacher }

// Book is a catalog entry together with the number of copies on the shelf.
type Book struct {
	ISBN      string   `db:"isbn" json:"isbn"`
	Title     string   `db:"title" json:"title"`
	Category  Category `db:"category" json:"category"`
	Authors   string   `db:"authors" json:"authors"`
	Publisher string   `db:"publisher" json:"publisher"`
	Keywords  string   `db:"keywords" json:"keywords"`
	Remaining int      `db:"remaining" json:"remaining"`
}

// Loan is a single borrow record. Returned only ever moves false -> true.
type Loan struct {
	ID         int64     `db:"id" json:"id"`
	BorrowerID string    `db:"uid" json:"borrower_id"`
	ISBN       string    `db:"isbn" json:"isbn"`
	BorrowDate time.Time `db:"borrow_date" json:"borrow_date"`
	DueDate    time.Time `db:"due_date" json:"due_date"`
	Returned   bool      `db:"returned" json:"returned"`
}

// LoanView is an open loan joined with the book it refers to.
type LoanView struct {
	Loan
	Title     string `db:"title" json:"title"`
	Authors   string `db:"authors" json:"authors"`
	Publisher string `db:"publisher" json:"publisher"`
	Keywords  string `db:"keywords" json:"keywords"`
}

// ClassLoan is one row of a class-wide borrowing report.
type ClassLoan struct {
	StudentID   string    `db:"uid" json:"student_id"`
	StudentName string    `db:"student_name" json:"student_name"`
	LoanID      int64     `db:"loan_id" json:"loan_id"`
	ISBN        string    `db:"isbn" json:"isbn"`
	Title       string    `db:"title" json:"title"`
	DueDate     time.Time `db:"due_date" json:"due_date"`
}

// Class is a group of students.
type Class struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
