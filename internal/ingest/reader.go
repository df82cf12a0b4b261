package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"regexp"
	"strings"
)

// Regex for category links accepted from users and target files
var categoryURLRegex = regexp.MustCompile(`^https://www\.wildberries\.ru/catalog/[\w-]+/[\w-]+/[\w-]+$`)

// ValidCategoryURL reports whether raw looks like a three level catalog link.
func ValidCategoryURL(raw string) bool {
	return categoryURLRegex.MatchString(strings.TrimSpace(raw))
}

// LoadTargets reads category URLs from the first column of a CSV file.
func LoadTargets(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTargets(f)
}

// ReadTargets parses a CSV with a header row. Malformed lines and links that
// fail validation are skipped. Duplicates keep their first position.
func ReadTargets(r io.Reader) ([]string, error) {
	// Wrap in BOM stripper
	cr := csv.NewReader(stripBOM(r))
	cr.FieldsPerRecord = -1

	var targets []string
	seen := make(map[string]struct{})
	line := 0
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return nil, err
		}
		line++
		if line == 1 {
			continue // Skip header
		}
		if len(record) == 0 {
			continue
		}

		// Validation (Fail-Soft)
		target := strings.TrimSpace(record[0])
		if !ValidCategoryURL(target) {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		targets = append(targets, target)
	}
	return targets, nil
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	rdr, _, err := br.ReadRune()
	if err != nil {
		return br
	}
	if rdr != '\uFEFF' {
		_ = br.UnreadRune()
	}
	return br
}
