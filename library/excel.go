package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ImportResult summarises a spreadsheet import.
type ImportResult struct {
	Imported int
	Skipped  int
}

// Column layouts, header row first.
var (
	BookSheetHeader   = []string{"ISBN", "Title", "Category", "Authors", "Publisher", "Keywords", "Copies"}
	RosterSheetHeader = []string{"Student ID", "Name", "Sex", "Age", "College", "Class ID", "Class Name", "Password"}
	loanSheetHeader   = []string{"Student ID", "Student Name", "Loan ID", "ISBN", "Title", "Due Date"}
)

// readFirstSheet returns the data rows of the first sheet, header skipped,
// each padded to width cells.
func readFirstSheet(r io.Reader, width int) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open workbook: %v", ErrValidation, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrValidation)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) <= 1 {
		return [][]string{}, nil
	}

	out := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cells := make([]string, width)
		for i := 0; i < width && i < len(row); i++ {
			cells[i] = strings.TrimSpace(row[i])
		}
		out = append(out, cells)
	}
	return out, nil
}

// ImportBooks adds every book row of the workbook. Rows that fail validation
// or duplicate an existing ISBN are skipped and logged.
func (lm *LibraryManager) ImportBooks(ctx context.Context, r io.Reader) (ImportResult, error) {
	var res ImportResult
	rows, err := readFirstSheet(r, len(BookSheetHeader))
	if err != nil {
		return res, err
	}

	for i, row := range rows {
		copies, err := strconv.Atoi(row[6])
		if err != nil {
			lm.logger.WarnContext(ctx, "skipping book row", "row", i+2, "error", "copies is not a number")
			res.Skipped++
			continue
		}
		b := Book{
			ISBN:      row[0],
			Title:     row[1],
			Category:  Category(strings.ToUpper(row[2])),
			Authors:   row[3],
			Publisher: row[4],
			Keywords:  row[5],
			Remaining: copies,
		}
		if err := lm.catalog.AddBook(ctx, b); err != nil {
			if !errors.Is(err, ErrValidation) {
				return res, err
			}
			lm.logger.WarnContext(ctx, "skipping book row", "row", i+2, "error", err)
			res.Skipped++
			continue
		}
		res.Imported++
	}
	lm.logger.InfoContext(ctx, "books imported", "imported", res.Imported, "skipped", res.Skipped)
	return res, nil
}

// ImportRoster creates missing classes and students from the workbook and
// enrolls each student in the listed class. Only teachers may import.
func (lm *LibraryManager) ImportRoster(ctx context.Context, p *Person, r io.Reader) (ImportResult, error) {
	var res ImportResult
	if err := lm.gate.RequireTeacher(p); err != nil {
		return res, err
	}
	rows, err := readFirstSheet(r, len(RosterSheetHeader))
	if err != nil {
		return res, err
	}

	for i, row := range rows {
		if err := lm.importRosterRow(ctx, row); err != nil {
			if !errors.Is(err, ErrValidation) && !errors.Is(err, ErrNotFound) {
				return res, err
			}
			lm.logger.WarnContext(ctx, "skipping roster row", "row", i+2, "error", err)
			res.Skipped++
			continue
		}
		res.Imported++
	}
	lm.logger.InfoContext(ctx, "roster imported", "by", p.ID, "imported", res.Imported, "skipped", res.Skipped)
	return res, nil
}

func (lm *LibraryManager) importRosterRow(ctx context.Context, row []string) error {
	studentID, classID := row[0], row[5]
	if studentID == "" || classID == "" {
		return fmt.Errorf("%w: student id and class id are required", ErrValidation)
	}

	if _, err := lm.membership.GetClass(ctx, classID); errors.Is(err, ErrNotFound) {
		name := row[6]
		if name == "" {
			name = classID
		}
		if err := lm.membership.AddClass(ctx, Class{ID: classID, Name: name}); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if _, err := lm.registry.Lookup(ctx, studentID); errors.Is(err, ErrNotFound) {
		age, convErr := strconv.Atoi(row[3])
		if convErr != nil {
			return fmt.Errorf("%w: age %q is not a number", ErrValidation, row[3])
		}
		np := NewPerson{ID: studentID, Name: row[1], Sex: row[2], Age: age, College: row[4], Role: RoleStudent}
		if _, err := lm.registry.Register(ctx, np, row[7]); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return lm.membership.Enroll(ctx, studentID, classID)
}

// ExportClassLoans writes the open loans of a class as an xlsx workbook.
func (lm *LibraryManager) ExportClassLoans(ctx context.Context, p *Person, classID string, w io.Writer) error {
	loans, err := lm.gate.ClassLoans(ctx, p, classID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Loans"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fault(ctx, lm.logger, "export class loans", err)
	}
	header := make([]interface{}, len(loanSheetHeader))
	for i, h := range loanSheetHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fault(ctx, lm.logger, "export class loans", err)
	}
	for i, l := range loans {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fault(ctx, lm.logger, "export class loans", err)
		}
		row := []interface{}{l.StudentID, l.StudentName, l.LoanID, l.ISBN, l.Title, l.DueDate.Format(time.DateOnly)}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fault(ctx, lm.logger, "export class loans", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fault(ctx, lm.logger, "export class loans", err)
	}
	return nil
}
