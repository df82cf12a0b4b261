package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/qepting91/wb-harvester/internal/domain"
	"github.com/qepting91/wb-harvester/internal/storage"
	"github.com/spf13/afero"
)

// historyWindow is how many recent runs the charts show.
const historyWindow = 50

// Server renders run history charts and exposes metrics.
type Server struct {
	fs          afero.Fs
	historyPath string
	metrics     http.Handler
	log         *slog.Logger
	engine      *gin.Engine
}

func NewServer(fs afero.Fs, historyPath string, metrics http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{fs: fs, historyPath: historyPath, metrics: metrics, log: log}
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())
	r.GET("/", s.index)
	r.GET("/runs", s.runs)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting Dashboard", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) runs(c *gin.Context) {
	records, err := storage.ReadHistory(s.fs, s.historyPath, historyWindow)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []domain.RunRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": records})
}

func (s *Server) index(c *gin.Context) {
	records, err := storage.ReadHistory(s.fs, s.historyPath, historyWindow)
	if err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "failed to load history")
		return
	}

	page := components.NewPage()
	page.PageTitle = "WB Harvester"
	page.AddCharts(rowsChart(records), reasonsChart(records), topChart(records))

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := page.Render(c.Writer); err != nil {
		s.log.Error("Failed to render dashboard", "error", err)
	}
}

// 1. Rows per run
func rowsChart(records []domain.RunRecord) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{Title: "Rows per Run"}),
	)

	var x []string
	var y []opts.BarData
	for _, r := range records {
		label := r.Category
		if label == "" {
			label = r.Kind
		}
		x = append(x, label+" "+r.StartedAt.Format("01-02 15:04"))
		y = append(y, opts.BarData{Value: r.Rows})
	}
	bar.SetXAxis(x).AddSeries("Rows", y)
	return bar
}

// 2. Termination reasons
func reasonsChart(records []domain.RunRecord) *charts.Pie {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{Title: "Termination Reasons"}),
	)

	counts := make(map[string]int)
	for _, r := range records {
		if r.Kind == "category" {
			counts[r.Reason]++
		}
	}
	reasons := make([]string, 0, len(counts))
	for k := range counts {
		reasons = append(reasons, k)
	}
	sort.Strings(reasons)

	items := make([]opts.PieData, 0, len(reasons))
	for _, k := range reasons {
		items = append(items, opts.PieData{Name: k, Value: counts[k]})
	}
	pie.AddSeries("Runs", items)
	return pie
}

// 3. Top keywords of the latest category run
func topChart(records []domain.RunRecord) *charts.Bar {
	bar := charts.NewBar()
	title := "Top Items"

	var latest *domain.RunRecord
	for i := len(records) - 1; i >= 0; i-- {
		if len(records[i].Top) > 0 {
			latest = &records[i]
			break
		}
	}
	var x []string
	var y []opts.BarData
	if latest != nil {
		title += ": " + latest.Category
		for _, row := range latest.Top {
			x = append(x, row.Name)
			y = append(y, opts.BarData{Value: row.Frequency})
		}
	}

	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{Title: title}),
	)
	bar.SetXAxis(x).AddSeries("Monthly frequency", y)
	return bar
}
