package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/xuri/excelize/v2"
)

// DefaultHeader is written to new workbooks.
var DefaultHeader = []string{"URL", "Video ID", "Status", "Reserved", "Transcript"}

// WorkbookStore is the coordination table kept in a local .xlsx file, for
// single-host deployments and offline runs. Every write reopens the file
// under an advisory lock so that roles in separate processes can share it.
type WorkbookStore struct {
	path  string
	sheet string
	mu    sync.Mutex
	lock  *flock.Flock
}

// NewWorkbookStore opens path, creating it with a header row when missing.
func NewWorkbookStore(path, sheet string) (*WorkbookStore, error) {
	if sheet == "" {
		sheet = "Sheet1"
	}
	s := &WorkbookStore{
		path:  path,
		sheet: sheet,
		lock:  flock.New(path + ".lock"),
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.create(); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat workbook: %w", err)
	}
	return s, nil
}

func (s *WorkbookStore) create() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create workbook dir: %w", err)
	}
	f := excelize.NewFile()
	defer f.Close()
	if s.sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", s.sheet); err != nil {
			return fmt.Errorf("name sheet: %w", err)
		}
	}
	header := make([]interface{}, len(DefaultHeader))
	for i, h := range DefaultHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(s.sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return s.save(f)
}

// ReadAll returns every row, header included.
func (s *WorkbookStore) ReadAll(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock workbook: %w", err)
	}
	defer s.lock.Unlock()

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(s.sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", s.sheet, err)
	}
	return rows, nil
}

// UpdateCell writes one cell as a plain string.
func (s *WorkbookStore) UpdateCell(ctx context.Context, row, col int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return s.modify(ctx, func(f *excelize.File) error {
		return f.SetCellStr(s.sheet, cell, value)
	})
}

// Append adds rows after the last non-empty row.
func (s *WorkbookStore) Append(ctx context.Context, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	return s.modify(ctx, func(f *excelize.File) error {
		existing, err := f.GetRows(s.sheet)
		if err != nil {
			return err
		}
		next := len(existing) + 1
		for i, row := range rows {
			values := make([]interface{}, len(row))
			for j, v := range row {
				values[j] = v
			}
			cell, err := excelize.CoordinatesToCellName(1, next+i)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(s.sheet, cell, &values); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *WorkbookStore) modify(ctx context.Context, apply func(f *excelize.File) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock workbook: %w", err)
	}
	defer s.lock.Unlock()

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if err := apply(f); err != nil {
		return fmt.Errorf("update workbook: %w", err)
	}
	return s.save(f)
}

// save writes to a sibling file and renames it into place.
func (s *WorkbookStore) save(f *excelize.File) error {
	tmp := s.path + ".tmp.xlsx"
	if err := f.SaveAs(tmp); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}
