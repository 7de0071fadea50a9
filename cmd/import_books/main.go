package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"school-library/library"
)

func main() {
	var (
		dbPath string
		fresh  bool
	)
	cmd := &cobra.Command{
		Use:          "import_books BOOKS.xlsx",
		Short:        "Load catalog entries from a workbook into the library database",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fresh {
				// Clean up any existing database files
				fmt.Println("Cleaning up existing database files...")
				for _, file := range []string{dbPath, dbPath + "-shm", dbPath + "-wal"} {
					if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
						fmt.Printf("Warning: Could not remove %s: %v\n", file, err)
					}
				}
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			manager, err := library.NewLibraryManager(dbPath, library.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("error opening database: %w", err)
			}
			defer manager.Close()

			f, err := os.Open(filepath.Clean(args[0]))
			if err != nil {
				return fmt.Errorf("error reading workbook: %w", err)
			}
			defer f.Close()

			fmt.Printf("Importing books from %s (columns: %s)...\n", args[0], strings.Join(library.BookSheetHeader, ", "))
			res, err := manager.ImportBooks(cmd.Context(), f)
			if err != nil {
				return err
			}

			fmt.Printf("\nImport complete!\n")
			fmt.Printf("Successfully imported: %d books\n", res.Imported)
			fmt.Printf("Skipped: %d\n", res.Skipped)

			// Display summary of the catalog
			if res.Imported > 0 {
				books, err := manager.ListAvailableBooks(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Println("\nAvailable books:")
				fmt.Printf("%-15s %-50s %-30s\n", "ISBN", "Title", "Authors")
				fmt.Println(strings.Repeat("-", 95))
				for _, book := range books {
					fmt.Printf("%-15s %-50s %-30s\n", book.ISBN, library.Truncate(book.Title, 50), library.Truncate(book.Authors, 30))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "library.db", "path to the SQLite database")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "delete the database before importing")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
