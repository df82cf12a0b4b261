package dashboard_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/qepting91/wb-harvester/internal/dashboard"
	"github.com/qepting91/wb-harvester/internal/domain"
	"github.com/qepting91/wb-harvester/internal/metrics"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedHistory(t *testing.T, fs afero.Fs, records ...domain.RunRecord) {
	t.Helper()
	f, err := fs.Create("output/history.ndjson")
	require.NoError(t, err)
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, r := range records {
		require.NoError(t, enc.Encode(r))
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestIndex_RendersCharts(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedHistory(t, fs,
		domain.RunRecord{ID: "1", Kind: "category", Category: "Аксессуары", Reason: "pages exhausted", Rows: 4,
			StartedAt: time.Now(), Top: []domain.EnrichedRow{{Name: "мыльница", Frequency: 120}}},
		domain.RunRecord{ID: "2", Kind: "batch", Reason: "completed", Rows: 40, StartedAt: time.Now()},
	)
	s := dashboard.NewServer(fs, "output/history.ndjson", nil, nil)

	rec := get(t, s.Handler(), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Rows per Run")
	assert.Contains(t, body, "Termination Reasons")
	assert.Contains(t, body, "Top Items")
}

func TestIndex_EmptyHistory(t *testing.T) {
	s := dashboard.NewServer(afero.NewMemMapFs(), "output/history.ndjson", nil, nil)
	rec := get(t, s.Handler(), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRuns(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedHistory(t, fs, domain.RunRecord{ID: "abc", Kind: "category", Rows: 2})
	s := dashboard.NewServer(fs, "output/history.ndjson", nil, nil)

	rec := get(t, s.Handler(), "/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Runs []domain.RunRecord `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "abc", body.Runs[0].ID)
}

func TestHealthAndMetrics(t *testing.T) {
	m := metrics.New()
	m.RowsAdded(3)
	s := dashboard.NewServer(afero.NewMemMapFs(), "h.ndjson", m.Handler(), nil)

	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/healthz").Code)

	rec := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wbharvest_rows_total 3")
}

func TestMetricsRouteAbsentWithoutHandler(t *testing.T) {
	s := dashboard.NewServer(afero.NewMemMapFs(), "h.ndjson", nil, nil)
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/metrics").Code)
}
