package library

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isbnsOf(books []Book) []string {
	out := make([]string, len(books))
	for i, b := range books {
		out[i] = b.ISBN
	}
	return out
}

func TestListAvailableSkipsEmptyShelves(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	mustAddBook(t, lm, "3", CategoryCS, 1)
	mustAddBook(t, lm, "1", CategoryMath, 0)
	mustAddBook(t, lm, "2", CategoryLit, 4)

	books, err := lm.ListAvailableBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2"}, isbnsOf(books), "insertion order, out of stock hidden")
}

func TestListAvailableEmptyCatalog(t *testing.T) {
	lm := newManager(t)
	books, err := lm.ListAvailableBooks(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Empty(t, books)
}

func TestListByCategory(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	mustAddBook(t, lm, "a", CategoryCS, 1)
	mustAddBook(t, lm, "b", CategoryMath, 1)
	mustAddBook(t, lm, "c", CategoryCS, 0)
	mustAddBook(t, lm, "d", CategoryCS, 2)

	books, err := lm.ListBooksByCategory(ctx, CategoryCS)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d"}, isbnsOf(books))

	books, err = lm.ListBooksByCategory(ctx, CategoryPhy)
	require.NoError(t, err)
	assert.Empty(t, books)

	_, err = lm.ListBooksByCategory(ctx, Category("HIST"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSearchMatchesTitleAuthorsKeywords(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	require.NoError(t, lm.AddBook(ctx, Book{ISBN: "1", Title: "Linear Algebra", Category: CategoryMath, Authors: "Strang", Remaining: 1}))
	require.NoError(t, lm.AddBook(ctx, Book{ISBN: "2", Title: "Calculus", Category: CategoryMath, Authors: "Spivak", Keywords: "analysis", Remaining: 1}))
	require.NoError(t, lm.AddBook(ctx, Book{ISBN: "3", Title: "Algebra II", Category: CategoryMath, Authors: "Artin", Remaining: 0}))

	tests := []struct {
		query string
		want  []string
	}{
		{"algebra", []string{"1"}},
		{"Spivak", []string{"2"}},
		{"analysis", []string{"2"}},
		{"  ", []string{}},
		{"topology", []string{}},
	}
	for _, tc := range tests {
		books, err := lm.SearchBooks(ctx, tc.query)
		require.NoError(t, err, tc.query)
		assert.Equal(t, tc.want, isbnsOf(books), tc.query)
	}
}

func TestCategoriesInUse(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	mustAddBook(t, lm, "1", CategoryPhy, 1)
	mustAddBook(t, lm, "2", CategoryCS, 0)
	mustAddBook(t, lm, "3", CategoryPhy, 1)

	cats, err := lm.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Category{CategoryCS, CategoryPhy}, cats)
}

func TestAddBookValidation(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	mustAddBook(t, lm, "1", CategoryCS, 1)

	bad := []Book{
		{ISBN: "", Title: "x", Category: CategoryCS},
		{ISBN: "2", Title: " ", Category: CategoryCS},
		{ISBN: "2", Title: "x", Category: "ART"},
		{ISBN: "2", Title: "x", Category: CategoryCS, Remaining: -1},
		{ISBN: "1", Title: "dup", Category: CategoryCS, Remaining: 1},
	}
	for _, b := range bad {
		assert.ErrorIs(t, lm.AddBook(ctx, b), ErrValidation, "%+v", b)
	}
}

func TestFindByISBN(t *testing.T) {
	lm := newManager(t)
	ctx := context.Background()
	require.NoError(t, lm.AddBook(ctx, Book{ISBN: "9", Title: "Optics", Category: CategoryPhy, Authors: "Hecht", Publisher: "Pearson", Keywords: "light", Remaining: 2}))

	b, err := lm.GetBook(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, Book{ISBN: "9", Title: "Optics", Category: CategoryPhy, Authors: "Hecht", Publisher: "Pearson", Keywords: "light", Remaining: 2}, *b)

	_, err = lm.GetBook(ctx, "10")
	assert.ErrorIs(t, err, ErrNotFound)
}
