package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/qepting91/wb-harvester/internal/domain"
	"github.com/xuri/excelize/v2"
)

// ReadRows parses a category report produced by Persist.
func ReadRows(r io.Reader) ([]domain.EnrichedRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	records, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", SheetName, err)
	}

	var rows []domain.EnrichedRow
	for i, rec := range records {
		if i == 0 {
			continue
		}
		if len(rec) == 0 {
			continue
		}
		row := domain.EnrichedRow{Name: rec[0]}
		if row.ProductCount, err = cellInt(rec, 1); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		if row.Frequency, err = cellInt(rec, 2); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func cellInt(rec []string, idx int) (int, error) {
	if idx >= len(rec) || strings.TrimSpace(rec[idx]) == "" {
		return 0, nil
	}
	return strconv.Atoi(strings.TrimSpace(rec[idx]))
}
