package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/qepting91/wb-harvester/internal/catalog"
	"github.com/qepting91/wb-harvester/internal/domain"
	"github.com/qepting91/wb-harvester/internal/enricher"
	"github.com/qepting91/wb-harvester/internal/metrics"
)

// BatchReportName is the base name of full-catalog reports.
const BatchReportName = "wb_categories"

// TreeSource returns a freshly downloaded category tree.
type TreeSource interface {
	Refresh(ctx context.Context) (*domain.CategoryTree, error)
}

// BatchEnricher queries statistics for every keyword in one call.
type BatchEnricher interface {
	EnrichAll(ctx context.Context, keywords []string) ([]domain.BatchRow, error)
}

// BatchSink persists full-catalog rows.
type BatchSink interface {
	PersistBatch(rows []domain.BatchRow, name string) (domain.ReportArtifact, error)
}

// BatchOutcome summarises a full-catalog run.
type BatchOutcome struct {
	RunID     string
	Keywords  int
	Rows      int
	Artifact  *domain.ReportArtifact
	StartedAt time.Time
	Elapsed   time.Duration
}

// BatchRunner enriches the SEO keyword of every category at once.
type BatchRunner struct {
	tree     TreeSource
	enricher BatchEnricher
	sink     BatchSink
	metrics  *metrics.Metrics
	history  Recorder
	log      *slog.Logger
	now      func() time.Time
}

func NewBatchRunner(tree TreeSource, e BatchEnricher, sink BatchSink, options ...Option) *BatchRunner {
	// Options are shared with Controller; apply them to a scratch value.
	var c Controller
	c.log = slog.Default()
	for _, o := range options {
		o(&c)
	}
	return &BatchRunner{
		tree:     tree,
		enricher: e,
		sink:     sink,
		metrics:  c.metrics,
		history:  c.history,
		log:      c.log,
		now:      time.Now,
	}
}

// Run downloads the catalog, enriches every SEO keyword and writes one
// report sorted by monthly frequency. A catalog without usable keywords
// produces no report and no error.
func (b *BatchRunner) Run(ctx context.Context) (BatchOutcome, error) {
	out := BatchOutcome{RunID: uuid.NewString(), StartedAt: b.now()}
	log := b.log.With("run_id", out.RunID)
	log.Info("Batch run started")

	err := b.run(ctx, &out, log)
	out.Elapsed = b.now().Sub(out.StartedAt)
	b.metrics.BatchFinished(err)

	rec := domain.RunRecord{
		ID:        out.RunID,
		Kind:      "batch",
		Category:  BatchReportName,
		Success:   err == nil,
		Rows:      out.Rows,
		Elapsed:   out.Elapsed,
		StartedAt: out.StartedAt,
		Reason:    "completed",
	}
	if out.Artifact != nil {
		rec.Report = out.Artifact.Name
	}
	if err != nil {
		rec.Reason = err.Error()
		log.Error("Batch run failed", "error", err, "elapsed", out.Elapsed)
	} else {
		log.Info("Batch run finished", "keywords", out.Keywords, "rows", out.Rows, "elapsed", out.Elapsed)
	}
	if b.history != nil {
		b.history.Record(rec)
	}
	return out, err
}

func (b *BatchRunner) run(ctx context.Context, out *BatchOutcome, log *slog.Logger) error {
	tree, err := b.tree.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	keywords := catalog.SEOKeywords(tree)
	out.Keywords = len(keywords)
	log.Info("Collected SEO keywords", "count", len(keywords))

	rows, err := b.enricher.EnrichAll(ctx, keywords)
	if errors.Is(err, enricher.ErrEmpty) {
		log.Warn("No usable keyword statistics")
		return nil
	}
	if err != nil {
		return fmt.Errorf("enrich keywords: %w", err)
	}
	out.Rows = len(rows)

	artifact, err := b.sink.PersistBatch(rows, BatchReportName)
	if err != nil {
		return err
	}
	out.Artifact = &artifact
	return nil
}
