// Package report writes harvest results to xlsx files and removes them once
// they have been delivered.
package report

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/qepting91/wb-harvester/internal/domain"
	"github.com/spf13/afero"
	"github.com/xuri/excelize/v2"
)

const (
	// SheetName is the sheet holding category report rows.
	SheetName = "data"
	// BatchSheetName is the sheet holding full-catalog rows.
	BatchSheetName = "Category Analysis"

	maxNameAttempts = 100
)

var (
	rowHeader   = []any{"Name", "Product count", "Monthly frequency"}
	rowWidths   = []float64{50, 25, 25}
	batchHeader = []any{"Keyword", "Product Count", "Yearly Frequency", "Monthly Frequency", "Weekly Frequency", "Weekly Trend"}
	batchWidths = []float64{50, 15, 20, 20, 20, 15}
)

// Sink persists reports under a directory of an afero filesystem.
type Sink struct {
	fs  afero.Fs
	dir string
	log *slog.Logger
	now func() time.Time
}

func NewSink(fs afero.Fs, dir string, log *slog.Logger) *Sink {
	if log == nil {
		log = slog.Default()
	}
	return &Sink{fs: fs, dir: dir, log: log, now: time.Now}
}

// Persist writes rows as a three column xlsx file named after name. Errors
// are returned as *domain.PersistError.
func (s *Sink) Persist(rows []domain.EnrichedRow, name string) (domain.ReportArtifact, error) {
	records := make([][]any, 0, len(rows))
	for _, r := range rows {
		records = append(records, []any{r.Name, r.ProductCount, r.Frequency})
	}
	return s.write(name, SheetName, rowHeader, rowWidths, records)
}

// PersistBatch writes full-catalog rows as a six column xlsx file.
func (s *Sink) PersistBatch(rows []domain.BatchRow, name string) (domain.ReportArtifact, error) {
	records := make([][]any, 0, len(rows))
	for _, r := range rows {
		records = append(records, []any{
			r.Keyword, r.ProductCount, r.YearlyFrequency, r.MonthlyFrequency, r.WeeklyFrequency, r.WeeklyTrend,
		})
	}
	return s.write(name, BatchSheetName, batchHeader, batchWidths, records)
}

func (s *Sink) write(name, sheet string, header []any, widths []float64, records [][]any) (domain.ReportArtifact, error) {
	created := s.now()
	fileName := FileName(name, created)
	path := filepath.Join(s.dir, fileName)

	if len(records) == 0 {
		return domain.ReportArtifact{}, &domain.PersistError{Path: path, Err: fmt.Errorf("no rows to save")}
	}

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return domain.ReportArtifact{}, &domain.PersistError{Path: path, Err: err}
	}

	out, fileName, err := s.create(fileName)
	path = filepath.Join(s.dir, fileName)
	if err != nil {
		return domain.ReportArtifact{}, &domain.PersistError{Path: path, Err: err}
	}

	werr := encode(out, sheet, header, widths, records)
	cerr := out.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = s.fs.Remove(path)
		return domain.ReportArtifact{}, &domain.PersistError{Path: path, Err: werr}
	}

	s.log.Info("Saved report", "path", path, "rows", len(records))
	return domain.ReportArtifact{
		Path:      path,
		Name:      fileName,
		Rows:      len(records),
		CreatedAt: created,
	}, nil
}

// create opens a new file for fileName, never an existing one. Concurrent runs
// for the same category within one second get "_2", "_3" and so on.
func (s *Sink) create(fileName string) (afero.File, string, error) {
	ext := filepath.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)
	name := fileName
	for n := 2; ; n++ {
		f, err := s.fs.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, os.ErrExist) || n > maxNameAttempts {
			return nil, name, err
		}
		name = fmt.Sprintf("%s_%d%s", base, n, ext)
	}
}

func encode(w io.Writer, sheet string, header []any, widths []float64, records [][]any) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rec); err != nil {
			return err
		}
	}
	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return err
		}
	}

	return f.Write(w)
}

// Open opens a persisted report for delivery.
func (s *Sink) Open(path string) (afero.File, error) {
	return s.fs.Open(path)
}

// Remove deletes a report. Missing files are not an error.
func (s *Sink) Remove(path string) error {
	err := s.fs.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// ScheduleCleanup deletes path after delay. Failures are logged only.
func (s *Sink) ScheduleCleanup(path string, delay time.Duration) *time.Timer {
	return time.AfterFunc(delay, func() {
		if _, err := s.fs.Stat(path); err != nil {
			s.log.Warn("Report not found for deletion", "path", path)
			return
		}
		if err := s.fs.Remove(path); err != nil {
			s.log.Error("Failed to delete report", "path", path, "error", err)
			return
		}
		s.log.Info("Report deleted", "path", path)
	})
}

// FileName builds "<name>_analysis_<unix>.xlsx" with path separators and
// control characters replaced.
func FileName(name string, at time.Time) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	if clean == "" {
		clean = "report"
	}
	return fmt.Sprintf("%s_analysis_%d.xlsx", clean, at.Unix())
}
