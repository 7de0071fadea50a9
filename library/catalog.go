package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
)

var dialect = goqu.Dialect("sqlite3")

var bookColumns = []interface{}{"isbn", "title", "category", "authors", "publisher", "keywords", "remaining"}

// Catalog owns book records and their available-copy counts.
type Catalog struct {
	d *Database
}

func NewCatalog(d *Database) *Catalog { return &Catalog{d: d} }

// FindByISBN returns the book with the given ISBN or ErrNotFound.
func (c *Catalog) FindByISBN(ctx context.Context, isbn string) (*Book, error) {
	b, err := findBook(ctx, c.d.db, isbn)
	return b, fault(ctx, c.d.logger, "find book", err)
}

// ListAvailable returns every book with at least one copy on the shelf, in
// insertion order.
func (c *Catalog) ListAvailable(ctx context.Context) ([]Book, error) {
	books, err := c.list(ctx)
	return books, fault(ctx, c.d.logger, "list available", err)
}

// ListByCategory is ListAvailable restricted to one category.
func (c *Catalog) ListByCategory(ctx context.Context, category Category) ([]Book, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, category)
	}
	books, err := c.list(ctx, goqu.C("category").Eq(string(category)))
	return books, fault(ctx, c.d.logger, "list by category", err)
}

// Search matches q against title, authors and keywords of available books.
func (c *Catalog) Search(ctx context.Context, q string) ([]Book, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []Book{}, nil
	}
	pattern := "%" + q + "%"
	books, err := c.list(ctx, goqu.Or(
		goqu.C("title").Like(pattern),
		goqu.C("authors").Like(pattern),
		goqu.C("keywords").Like(pattern),
	))
	return books, fault(ctx, c.d.logger, "search books", err)
}

// Categories returns the distinct categories that have at least one book.
func (c *Catalog) Categories(ctx context.Context) ([]Category, error) {
	var cats []Category
	err := c.d.db.SelectContext(ctx, &cats, `SELECT DISTINCT category FROM books ORDER BY category`)
	return cats, fault(ctx, c.d.logger, "list categories", err)
}

// AddBook inserts a new catalog entry with b.Remaining copies on the shelf.
func (c *Catalog) AddBook(ctx context.Context, b Book) error {
	if err := validateBook(b); err != nil {
		return err
	}
	_, err := c.d.insertBookStmt.ExecContext(ctx, b.ISBN, b.Title, string(b.Category), b.Authors, b.Publisher, b.Keywords, b.Remaining)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: isbn %s already exists", ErrValidation, b.ISBN)
	}
	return fault(ctx, c.d.logger, "add book", err)
}

func validateBook(b Book) error {
	switch {
	case strings.TrimSpace(b.ISBN) == "":
		return fmt.Errorf("%w: isbn is required", ErrValidation)
	case strings.TrimSpace(b.Title) == "":
		return fmt.Errorf("%w: title is required", ErrValidation)
	case !b.Category.Valid():
		return fmt.Errorf("%w: unknown category %q", ErrValidation, b.Category)
	case b.Remaining < 0:
		return fmt.Errorf("%w: copies must not be negative", ErrValidation)
	}
	return nil
}

func (c *Catalog) list(ctx context.Context, filters ...exp.Expression) ([]Book, error) {
	where := append([]exp.Expression{goqu.C("remaining").Gt(0)}, filters...)
	query, args, err := dialect.From("books").
		Select(bookColumns...).
		Where(where...).
		Order(goqu.I("rowid").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	books := []Book{}
	if err := c.d.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, err
	}
	return books, nil
}

func findBook(ctx context.Context, q sqlx.QueryerContext, isbn string) (*Book, error) {
	var b Book
	err := sqlx.GetContext(ctx, q, &b, `SELECT isbn,title,category,authors,publisher,keywords,remaining FROM books WHERE isbn=?`, isbn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: book %s", ErrNotFound, isbn)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// decrementStock takes one copy off the shelf. The guard on remaining makes it
// a compare-and-decrement: zero affected rows means another borrower got the
// last copy first.
func decrementStock(ctx context.Context, q sqlx.ExecerContext, isbn string) error {
	res, err := q.ExecContext(ctx, `UPDATE books SET remaining=remaining-1 WHERE isbn=? AND remaining>0`, isbn)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoBook
	}
	return nil
}

func incrementStock(ctx context.Context, q sqlx.ExecerContext, isbn string) error {
	res, err := q.ExecContext(ctx, `UPDATE books SET remaining=remaining+1 WHERE isbn=?`, isbn)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: book %s", ErrNotFound, isbn)
	}
	return nil
}
