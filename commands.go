package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"school-library/library"
)

func (a *app) booksCmd() *cobra.Command {
	var category, query string
	cmd := &cobra.Command{
		Use:   "books",
		Short: "List books that have copies available",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := a.open()
			if err != nil {
				return err
			}
			defer mgr.Close()

			ctx := cmd.Context()
			var books []library.Book
			switch {
			case query != "":
				books, err = mgr.SearchBooks(ctx, query)
			case category != "":
				books, err = mgr.ListBooksByCategory(ctx, library.Category(strings.ToUpper(category)))
			default:
				books, err = mgr.ListAvailableBooks(ctx)
			}
			if err != nil {
				return err
			}
			printBooks(cmd.OutOrStdout(), books)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only this category (CS, MATH, PHY, LIT)")
	cmd.Flags().StringVar(&query, "search", "", "match title, authors or keywords")
	return cmd
}

func printBooks(w io.Writer, books []library.Book) {
	if len(books) == 0 {
		fmt.Fprintln(w, "No books available.")
		return
	}
	fmt.Fprintf(w, "%-15s %-30s %-5s %-20s %s\n", "ISBN", "Title", "Cat", "Authors", "Left")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, b := range books {
		fmt.Fprintln(w, library.PrettyBook(b))
	}
}

func printLoans(w io.Writer, loans []library.LoanView) {
	if len(loans) == 0 {
		fmt.Fprintln(w, "No open loans.")
		return
	}
	fmt.Fprintf(w, "%-5s %-15s %-30s %s\n", "ID", "ISBN", "Title", "Due")
	fmt.Fprintln(w, strings.Repeat("-", 65))
	for _, l := range loans {
		fmt.Fprintln(w, library.PrettyLoan(l))
	}
}

func (a *app) borrowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "borrow ISBN",
		Short: "Borrow a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.open()
			if err != nil {
				return err
			}
			defer mgr.Close()

			ctx := cmd.Context()
			p, err := a.authenticate(ctx, mgr)
			if err != nil {
				return err
			}
			loan, err := mgr.Borrow(ctx, p, args[0])
			if err != nil {
				return err
			}
			book, err := mgr.GetBook(ctx, loan.ISBN)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Book '%s' borrowed by %s (loan %d), due %s\n",
				book.Title, p.Name, loan.ID, loan.DueDate.Format("2006-01-02"))
			return nil
		},
	}
}

func (a *app) returnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "return LOAN_ID",
		Short: "Return a borrowed book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loanID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid loan ID: %s", args[0])
			}
			mgr, err := a.open()
			if err != nil {
				return err
			}
			defer mgr.Close()

			ctx := cmd.Context()
			p, err := a.authenticate(ctx, mgr)
			if err != nil {
				return err
			}
			loan, err := mgr.Return(ctx, p, loanID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loan %d returned (ISBN %s)\n", loan.ID, loan.ISBN)
			return nil
		},
	}
}

func (a *app) loansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "loans",
		Short: "List your open loans",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := a.open()
			if err != nil {
				return err
			}
			defer mgr.Close()

			ctx := cmd.Context()
			p, err := a.authenticate(ctx, mgr)
			if err != nil {
				return err
			}
			loans, err := mgr.MyLoans(ctx, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s), %d of %d loans used\n", p.Name, p.Role, len(loans), library.QuotaFor(p.Role))
			printLoans(cmd.OutOrStdout(), loans)
			return nil
		},
	}
}

func (a *app) profileCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "profile", Short: "Show or edit your profile"}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show your profile and classes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := a.open()
			if err != nil {
				return err
			}
			defer mgr.Close()

			ctx := cmd.Context()
			p, err := a.authenticate(ctx, mgr)
			if err != nil {
				return err
			}
			classes, err := mgr.ClassesOf(ctx, p)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ID:      %s\nName:    %s\nSex:     %s\nAge:     %d\nCollege: %s\nRole:    %s\n", p.ID, p.Name, p.Sex, p.Age, p.College, p.Role)
			if p.JoinYear != nil {
				fmt.Fprintf(w, "Joined:  %d\n", *p.JoinYear)
			}
			fmt.Fprintf(w, "Classes: %s\n", strings.Join(classes, ", "))
			return nil
		},
	}

	rename := &cobra.Command{
		Use:   "rename NAME",
		Short: "Change your display name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.open()
			if err != nil {
				return err
			}
			defer mgr.Close()

			ctx := cmd.Context()
			p, err := a.authenticate(ctx, mgr)
			if err != nil {
				return err
			}
			if p, err = mgr.Rename(ctx, p, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Name updated to %s\n", p.Name)
			return nil
		},
	}

	age := &cobra.Command{
		Use:   "age AGE",
		Short: "Change your age",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("age must be a positive integer")
			}
			mgr, err := a.open()
			if err != nil {
				return err
			}
			defer mgr.Close()

			ctx := cmd.Context()
			p, err := a.authenticate(ctx, mgr)
			if err != nil {
				return err
			}
			if p, err = mgr.SetAge(ctx, p, n); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Age updated to %d\n", p.Age)
			return nil
		},
	}

	password := &cobra.Command{
		Use:   "password",
		Short: "Change your password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := a.open()
			if err != nil {
				return err
			}
			defer mgr.Close()

			ctx := cmd.Context()
			if a.user == "" {
				return fmt.Errorf("--user is required")
			}
			oldPassword, err := readPassword("Current password: ")
			if err != nil {
				return err
			}
			newPassword, err := readPassword("New password: ")
			if err != nil {
				return err
			}
			if err := mgr.ChangePassword(ctx, &library.Person{ID: a.user}, oldPassword, newPassword); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password changed")
			return nil
		},
	}

	cmd.AddCommand(show, rename, age, password)
	return cmd
}

func (a *app) classCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "class", Short: "Teacher class management"}

	// teacherRun opens the database, authenticates --user and hands both to fn.
	teacherRun := func(fn func(cmd *cobra.Command, args []string, mgr *library.LibraryManager, p *library.Person) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			mgr, err := a.open()
			if err != nil {
				return err
			}
			defer mgr.Close()
			p, err := a.authenticate(cmd.Context(), mgr)
			if err != nil {
				return err
			}
			return fn(cmd, args, mgr, p)
		}
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the classes you manage and the ones you could add",
		RunE: teacherRun(func(cmd *cobra.Command, _ []string, mgr *library.LibraryManager, p *library.Person) error {
			managed, err := mgr.ManagedClasses(cmd.Context(), p)
			if err != nil {
				return err
			}
			others, err := mgr.UnmanagedClasses(cmd.Context(), p)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Managed:")
			for i, c := range managed {
				fmt.Fprintf(w, "  %d. %-6s %s\n", i+1, c.ID, c.Name)
			}
			fmt.Fprintln(w, "Other classes:")
			for _, c := range others {
				fmt.Fprintf(w, "     %-6s %s\n", c.ID, c.Name)
			}
			return nil
		}),
	}

	associate := &cobra.Command{
		Use:   "associate CLASS_ID",
		Short: "Start managing a class",
		Args:  cobra.ExactArgs(1),
		RunE: teacherRun(func(cmd *cobra.Command, args []string, mgr *library.LibraryManager, p *library.Person) error {
			if err := mgr.Associate(cmd.Context(), p, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Associated with class %s\n", args[0])
			return nil
		}),
	}

	dissociate := &cobra.Command{
		Use:   "dissociate CLASS_ID",
		Short: "Stop managing a class",
		Args:  cobra.ExactArgs(1),
		RunE: teacherRun(func(cmd *cobra.Command, args []string, mgr *library.LibraryManager, p *library.Person) error {
			if err := mgr.Dissociate(cmd.Context(), p, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "No longer associated with class %s\n", args[0])
			return nil
		}),
	}

	students := &cobra.Command{
		Use:   "students CLASS_ID",
		Short: "List the students of a class",
		Args:  cobra.ExactArgs(1),
		RunE: teacherRun(func(cmd *cobra.Command, args []string, mgr *library.LibraryManager, p *library.Person) error {
			roster, err := mgr.ClassStudents(cmd.Context(), p, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-4s %-8s %-20s %-4s %s\n", "#", "ID", "Name", "Sex", "Age")
			for i, s := range roster {
				fmt.Fprintf(w, "%-4d %-8s %-20s %-4s %d\n", i+1, s.ID, s.Name, s.Sex, s.Age)
			}
			return nil
		}),
	}

	var studentID string
	loans := &cobra.Command{
		Use:   "loans CLASS_ID",
		Short: "Show open loans of a class, or of one student with --student",
		Args:  cobra.ExactArgs(1),
		RunE: teacherRun(func(cmd *cobra.Command, args []string, mgr *library.LibraryManager, p *library.Person) error {
			w := cmd.OutOrStdout()
			if studentID != "" {
				ls, err := mgr.StudentLoans(cmd.Context(), p, args[0], studentID)
				if err != nil {
					return err
				}
				printLoans(w, ls)
				return nil
			}
			ls, err := mgr.ClassLoans(cmd.Context(), p, args[0])
			if err != nil {
				return err
			}
			if len(ls) == 0 {
				fmt.Fprintln(w, "No open loans in this class.")
				return nil
			}
			fmt.Fprintf(w, "%-8s %-20s %-15s %-30s %s\n", "Student", "Name", "ISBN", "Title", "Due")
			for _, l := range ls {
				fmt.Fprintf(w, "%-8s %-20s %-15s %-30s %s\n", l.StudentID, l.StudentName, l.ISBN, l.Title, l.DueDate.Format("2006-01-02"))
			}
			return nil
		}),
	}
	loans.Flags().StringVar(&studentID, "student", "", "only this student")

	importRoster := &cobra.Command{
		Use:   "import FILE.xlsx",
		Short: "Import students and their classes from a workbook",
		Args:  cobra.ExactArgs(1),
		RunE: teacherRun(func(cmd *cobra.Command, args []string, mgr *library.LibraryManager, p *library.Person) error {
			f, err := os.Open(filepath.Clean(args[0]))
			if err != nil {
				return err
			}
			defer f.Close()
			res, err := mgr.ImportRoster(cmd.Context(), p, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d students, skipped %d rows\n", res.Imported, res.Skipped)
			return nil
		}),
	}

	var out string
	export := &cobra.Command{
		Use:   "export CLASS_ID",
		Short: "Export open loans of a class to a workbook",
		Args:  cobra.ExactArgs(1),
		RunE: teacherRun(func(cmd *cobra.Command, args []string, mgr *library.LibraryManager, p *library.Person) error {
			path := out
			if path == "" {
				path = args[0] + "-loans.xlsx"
			}
			f, err := os.Create(filepath.Clean(path))
			if err != nil {
				return err
			}
			if err := mgr.ExportClassLoans(cmd.Context(), p, args[0], f); err != nil {
				f.Close()
				os.Remove(path)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		}),
	}
	export.Flags().StringVarP(&out, "out", "o", "", "output file (default CLASS_ID-loans.xlsx)")

	cmd.AddCommand(list, associate, dissociate, students, loans, importRoster, export)
	return cmd
}
