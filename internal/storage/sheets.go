package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsStore is the coordination table backed by a Google spreadsheet.
type SheetsStore struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	limiter       *rate.Limiter
}

// SheetsConfig identifies the worksheet and how fast it may be written.
type SheetsConfig struct {
	SpreadsheetID string
	SheetName     string
	// WritesPerMinute caps cell updates; zero disables the limiter.
	WritesPerMinute int
}

// NewSheetsStore creates a store from explicit client options.
func NewSheetsStore(ctx context.Context, cfg SheetsConfig, opts ...option.ClientOption) (*SheetsStore, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Sheet1"
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.WritesPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.WritesPerMinute)), 1)
	}

	return &SheetsStore{
		service:       srv,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		limiter:       limiter,
	}, nil
}

// ReadAll returns every row of the first five columns, header included.
func (s *SheetsStore) ReadAll(ctx context.Context) ([][]string, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeOf("A:E")).
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", s.sheetName, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, raw := range resp.Values {
		row := make([]string, len(raw))
		for j, v := range raw {
			row[j] = fmt.Sprint(v)
		}
		rows[i] = row
	}
	return rows, nil
}

// UpdateCell writes one cell. Values are stored raw, never parsed as formulas.
func (s *SheetsStore) UpdateCell(ctx context.Context, row, col int, value string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	cell := s.rangeOf(CellRef(row, col))
	vr := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	if _, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, cell, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do(); err != nil {
		return fmt.Errorf("update %s: %w", cell, err)
	}
	return nil
}

// Append adds rows after the last non-empty row.
func (s *SheetsStore) Append(ctx context.Context, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = make([]interface{}, len(row))
		for j, v := range row {
			values[i][j] = v
		}
	}
	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.rangeOf("A:E"), &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append to sheet %q: %w", s.sheetName, err)
	}
	return nil
}

// Title returns the spreadsheet title, used as a connectivity check.
func (s *SheetsStore) Title(ctx context.Context) (string, error) {
	sp, err := s.service.Spreadsheets.Get(s.spreadsheetID).Fields("properties.title").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("open spreadsheet: %w", err)
	}
	return sp.Properties.Title, nil
}

func (s *SheetsStore) rangeOf(a1 string) string {
	return "'" + strings.ReplaceAll(s.sheetName, "'", "''") + "'!" + a1
}

// CellRef converts 1-indexed row and column numbers to A1 notation.
func CellRef(row, col int) string {
	return ColumnLetters(col) + fmt.Sprint(row)
}

// ColumnLetters converts a 1-indexed column number to its letter form.
func ColumnLetters(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}
