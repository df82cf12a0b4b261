package harvest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/qepting91/wb-harvester/internal/catalog"
	"github.com/qepting91/wb-harvester/internal/domain"
	"github.com/qepting91/wb-harvester/internal/enricher"
	"github.com/qepting91/wb-harvester/internal/harvest"
	"github.com/qepting91/wb-harvester/internal/metrics"
	"github.com/qepting91/wb-harvester/internal/report"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchStats map[string]*domain.KeywordStats

func (b batchStats) KeywordStats(_ context.Context, keywords []string) (map[string]*domain.KeywordStats, error) {
	out := make(map[string]*domain.KeywordStats)
	for _, k := range keywords {
		out[k] = b[k]
	}
	return out, nil
}

func withCounts(pc, monthly int) *domain.KeywordStats {
	return &domain.KeywordStats{
		ProductCount: domain.Count(pc),
		Freq:         &domain.Frequencies{Monthly: domain.Count(monthly)},
	}
}

func TestBatchRunner_Run(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := metrics.New()
	h := &history{}
	stats := batchStats{
		"root":  withCounts(10, 5),
		"shoes": withCounts(3, 50),
	}

	runner := harvest.NewBatchRunner(
		catalog.NewIndex(treeSource{}, nil, nil),
		enricher.New(stats, nil),
		report.NewSink(fs, "output", nil),
		harvest.WithMetrics(m),
		harvest.WithHistory(h),
	)

	out, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, out.Keywords)
	assert.Equal(t, 2, out.Rows)
	require.NotNil(t, out.Artifact)
	assert.Contains(t, out.Artifact.Name, harvest.BatchReportName)
	ok, _ := afero.Exists(fs, out.Artifact.Path)
	assert.True(t, ok)

	assert.InDelta(t, 1, testutil.ToFloat64(m.BatchRuns.WithLabelValues("ok")), 0)
	require.Len(t, h.records, 1)
	assert.Equal(t, "batch", h.records[0].Kind)
	assert.True(t, h.records[0].Success)
}

func TestBatchRunner_NoUsableKeywords(t *testing.T) {
	runner := harvest.NewBatchRunner(
		catalog.NewIndex(treeSource{}, nil, nil),
		enricher.New(batchStats{}, nil),
		report.NewSink(afero.NewMemMapFs(), "output", nil),
	)

	out, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, out.Artifact)
	assert.Zero(t, out.Rows)
}

func TestBatchRunner_CatalogFailure(t *testing.T) {
	m := metrics.New()
	runner := harvest.NewBatchRunner(
		catalog.NewIndex(treeSource{err: errors.New("down")}, nil, nil),
		enricher.New(batchStats{}, nil),
		report.NewSink(afero.NewMemMapFs(), "output", nil),
		harvest.WithMetrics(m),
	)

	_, err := runner.Run(context.Background())
	assert.ErrorContains(t, err, "load catalog")
	assert.InDelta(t, 1, testutil.ToFloat64(m.BatchRuns.WithLabelValues("error")), 0)
}
