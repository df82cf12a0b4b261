package report_test

import (
	"testing"
	"time"

	"github.com/qepting91/wb-harvester/internal/domain"
	"github.com/qepting91/wb-harvester/internal/report"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestPersist_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := report.NewSink(fs, "output", nil)

	rows := []domain.EnrichedRow{
		{Name: "A", ProductCount: 5, Frequency: 10},
		{Name: "Кружка керамическая", ProductCount: 0, Frequency: 0},
		{Name: "C", ProductCount: 123456, Frequency: 7},
	}

	artifact, err := sink.Persist(rows, "Shoes")
	require.NoError(t, err)
	assert.Equal(t, 3, artifact.Rows)
	assert.Contains(t, artifact.Path, "output")
	assert.Regexp(t, `^Shoes_analysis_\d+\.xlsx$`, artifact.Name)
	assert.False(t, artifact.CreatedAt.IsZero())

	f, err := sink.Open(artifact.Path)
	require.NoError(t, err)
	defer f.Close()

	got, err := report.ReadRows(f)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestPersist_ColumnWidths(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := report.NewSink(fs, "out", nil)

	artifact, err := sink.Persist([]domain.EnrichedRow{{Name: "A"}}, "x")
	require.NoError(t, err)

	r, err := fs.Open(artifact.Path)
	require.NoError(t, err)
	defer r.Close()

	x, err := excelize.OpenReader(r)
	require.NoError(t, err)
	defer x.Close()

	width, err := x.GetColWidth(report.SheetName, "A")
	require.NoError(t, err)
	assert.InDelta(t, 50, width, 0.01)

	header, err := x.GetRows(report.SheetName)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Product count", "Monthly frequency"}, header[0])
}

func TestPersist_ErrorsArePersistErrors(t *testing.T) {
	sink := report.NewSink(afero.NewReadOnlyFs(afero.NewMemMapFs()), "output", nil)

	_, err := sink.Persist([]domain.EnrichedRow{{Name: "A"}}, "Shoes")
	var persistErr *domain.PersistError
	require.ErrorAs(t, err, &persistErr)
	assert.Contains(t, persistErr.Path, "Shoes_analysis_")
}

func TestPersist_NoRows(t *testing.T) {
	sink := report.NewSink(afero.NewMemMapFs(), "output", nil)

	_, err := sink.Persist(nil, "Shoes")
	var persistErr *domain.PersistError
	assert.ErrorAs(t, err, &persistErr)
}

func TestPersistBatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := report.NewSink(fs, "output", nil)

	artifact, err := sink.PersistBatch([]domain.BatchRow{
		{Keyword: "k1", ProductCount: 1, YearlyFrequency: 2, MonthlyFrequency: 3, WeeklyFrequency: 4, WeeklyTrend: -5},
	}, "wb_categories")
	require.NoError(t, err)
	assert.Equal(t, 1, artifact.Rows)

	r, err := fs.Open(artifact.Path)
	require.NoError(t, err)
	defer r.Close()

	x, err := excelize.OpenReader(r)
	require.NoError(t, err)
	defer x.Close()

	rows, err := x.GetRows(report.BatchSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Weekly Trend", rows[0][5])
	assert.Equal(t, []string{"k1", "1", "2", "3", "4", "-5"}, rows[1])
}

func TestPersist_SameSecondDoesNotOverwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := report.NewSink(fs, "output", nil)
	sink.SetClock(func() time.Time { return time.Unix(1700000000, 0) })

	first, err := sink.Persist([]domain.EnrichedRow{{Name: "A", ProductCount: 1}}, "Shoes")
	require.NoError(t, err)
	second, err := sink.Persist([]domain.EnrichedRow{{Name: "B", ProductCount: 2}, {Name: "C"}}, "Shoes")
	require.NoError(t, err)
	third, err := sink.Persist([]domain.EnrichedRow{{Name: "D"}}, "Shoes")
	require.NoError(t, err)

	assert.Equal(t, "Shoes_analysis_1700000000.xlsx", first.Name)
	assert.Equal(t, "Shoes_analysis_1700000000_2.xlsx", second.Name)
	assert.Equal(t, "Shoes_analysis_1700000000_3.xlsx", third.Name)

	f, err := sink.Open(first.Path)
	require.NoError(t, err)
	defer f.Close()
	got, err := report.ReadRows(f)
	require.NoError(t, err)
	assert.Equal(t, []domain.EnrichedRow{{Name: "A", ProductCount: 1}}, got)

	require.NoError(t, sink.Remove(second.Path))
	ok, _ := afero.Exists(fs, first.Path)
	assert.True(t, ok, "removing one report leaves the other in place")
}

func TestScheduleCleanup(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := report.NewSink(fs, "output", nil)

	artifact, err := sink.Persist([]domain.EnrichedRow{{Name: "A"}}, "Shoes")
	require.NoError(t, err)

	sink.ScheduleCleanup(artifact.Path, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		ok, _ := afero.Exists(fs, artifact.Path)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestScheduleCleanup_MissingFileIsLoggedOnly(t *testing.T) {
	sink := report.NewSink(afero.NewMemMapFs(), "output", nil)
	timer := sink.ScheduleCleanup("output/missing.xlsx", time.Millisecond)
	require.NotNil(t, timer)
	time.Sleep(20 * time.Millisecond)
}

func TestRemove(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := report.NewSink(fs, "output", nil)
	require.NoError(t, afero.WriteFile(fs, "output/a.xlsx", []byte("x"), 0o644))

	require.NoError(t, sink.Remove("output/a.xlsx"))
	require.NoError(t, sink.Remove("output/a.xlsx"))
}

func TestFileName(t *testing.T) {
	at := time.Unix(1700000000, 0)
	assert.Equal(t, "Shoes_analysis_1700000000.xlsx", report.FileName("Shoes", at))
	assert.Equal(t, "Men_Women_analysis_1700000000.xlsx", report.FileName("Men/Women", at))
	assert.Equal(t, "report_analysis_1700000000.xlsx", report.FileName("  ", at))
}
