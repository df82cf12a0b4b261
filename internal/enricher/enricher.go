// Package enricher turns keyword statistics into report rows.
package enricher

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/qepting91/wb-harvester/internal/domain"
	"github.com/spf13/afero"
)

// ErrEmpty means no keyword in the batch had usable statistics. It ends a
// harvest normally.
var ErrEmpty = errors.New("no statistically usable items")

// Result holds the usable entries of one enrichment call in request order.
type Result struct {
	Keywords []string
	Stats    map[string]*domain.KeywordStats
}

// Enricher queries the keyword statistics service for a batch of names.
type Enricher struct {
	source domain.KeywordSource
	log    *slog.Logger

	auditFs   afero.Fs
	auditPath string
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithAudit writes every filtered response to path on fs. Write failures are
// logged and never affect enrichment.
func WithAudit(fs afero.Fs, path string) Option {
	return func(e *Enricher) {
		e.auditFs = fs
		e.auditPath = path
	}
}

func New(source domain.KeywordSource, log *slog.Logger, opts ...Option) *Enricher {
	if log == nil {
		log = slog.Default()
	}
	e := &Enricher{source: source, log: log}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich sends names as one batch and keeps only entries with a cluster.
// It returns ErrEmpty when nothing survives the filter.
func (e *Enricher) Enrich(ctx context.Context, names []string) (Result, error) {
	if len(names) == 0 {
		return Result{}, ErrEmpty
	}

	stats, err := e.source.KeywordStats(ctx, names)
	if err != nil {
		return Result{}, err
	}

	res := Filter(names, stats, func(s *domain.KeywordStats) bool {
		return s.Cluster != nil
	})
	if len(res.Keywords) == 0 {
		return Result{}, ErrEmpty
	}

	e.audit(res)
	return res, nil
}

// Rows enriches names and converts the result to report rows.
func (e *Enricher) Rows(ctx context.Context, names []string) ([]domain.EnrichedRow, error) {
	res, err := e.Enrich(ctx, names)
	if err != nil {
		return nil, err
	}
	return ToRows(res), nil
}

// Filter keeps entries that are non-null and accepted by keep. Keywords
// follow the order of names, with keys the service added on its own appended
// in sorted order.
func Filter(names []string, stats map[string]*domain.KeywordStats, keep func(*domain.KeywordStats) bool) Result {
	res := Result{Stats: make(map[string]*domain.KeywordStats)}

	add := func(k string) {
		if _, done := res.Stats[k]; done {
			return
		}
		s, ok := stats[k]
		if !ok || s == nil || !keep(s) {
			return
		}
		res.Stats[k] = s
		res.Keywords = append(res.Keywords, k)
	}

	for _, n := range names {
		add(n)
	}

	var extra []string
	requested := make(map[string]struct{}, len(names))
	for _, n := range names {
		requested[n] = struct{}{}
	}
	for k := range stats {
		if _, ok := requested[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		add(k)
	}

	return res
}

// ToRows extracts product count and monthly frequency from each cluster.
// Missing numbers become zero.
func ToRows(res Result) []domain.EnrichedRow {
	rows := make([]domain.EnrichedRow, 0, len(res.Keywords))
	for _, k := range res.Keywords {
		row := domain.EnrichedRow{Name: k}
		if c := res.Stats[k].Cluster; c != nil {
			row.ProductCount = max(c.ProductCount.Int(), 0)
			if c.FreqSyn != nil {
				row.Frequency = max(c.FreqSyn.Monthly.Int(), 0)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func (e *Enricher) audit(res Result) {
	if e.auditFs == nil || e.auditPath == "" {
		return
	}

	payload := map[string]any{"data": map[string]any{"keywords": res.Stats}}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		e.log.Error("Failed to encode keyword audit", "error", err)
		return
	}
	if err := e.auditFs.MkdirAll(filepath.Dir(e.auditPath), 0o755); err != nil {
		e.log.Error("Failed to create audit directory", "path", e.auditPath, "error", err)
		return
	}
	if err := afero.WriteFile(e.auditFs, e.auditPath, data, 0o644); err != nil {
		e.log.Error("Failed to save keyword audit", "path", e.auditPath, "error", err)
		return
	}
	e.log.Debug("Saved keyword audit", "path", e.auditPath, "keywords", len(res.Keywords))
}
