// Package harvest drives a category run: resolve the URL, page through the
// listing, enrich every page and flush whatever was collected.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/qepting91/wb-harvester/internal/domain"
	"github.com/qepting91/wb-harvester/internal/enricher"
	"github.com/qepting91/wb-harvester/internal/metrics"
)

// Resolver maps a category URL to a descriptor.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (domain.CategoryDescriptor, error)
}

// RowEnricher turns item names into report rows. enricher.ErrEmpty means
// nothing on the page was usable.
type RowEnricher interface {
	Rows(ctx context.Context, names []string) ([]domain.EnrichedRow, error)
}

// ReportSink persists rows and removes delivered files later.
type ReportSink interface {
	Persist(rows []domain.EnrichedRow, name string) (domain.ReportArtifact, error)
	ScheduleCleanup(path string, delay time.Duration) *time.Timer
}

// Progress receives human readable notifications while a run executes.
type Progress interface {
	Notify(ctx context.Context, text string)
}

// Deliverer is implemented by progress sinks that can hand the finished
// report to the requester. Delivered reports are removed after the cleanup
// delay.
type Deliverer interface {
	Deliver(ctx context.Context, artifact domain.ReportArtifact) error
}

// Recorder stores a summary of every finished run.
type Recorder interface {
	Record(rec domain.RunRecord)
}

// NopProgress discards notifications.
type NopProgress struct{}

func (NopProgress) Notify(context.Context, string) {}

// Options tunes a Controller.
type Options struct {
	MaxPages     int
	PageDelay    time.Duration
	CleanupDelay time.Duration
	// TopRows is how many rows are copied into the run record.
	TopRows int
}

// DefaultOptions mirrors the production limits.
func DefaultOptions() Options {
	return Options{
		MaxPages:     2,
		PageDelay:    time.Second,
		CleanupDelay: 15 * time.Second,
		TopRows:      10,
	}
}

// Controller runs the category state machine. It keeps no per-run state,
// so concurrent calls to Run are independent.
type Controller struct {
	resolver Resolver
	listings domain.ListingSource
	enricher RowEnricher
	sink     ReportSink
	opts     Options

	metrics *metrics.Metrics
	history Recorder
	log     *slog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures optional collaborators.
type Option func(*Controller)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithHistory(r Recorder) Option {
	return func(c *Controller) { c.history = r }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

func NewController(resolver Resolver, listings domain.ListingSource, rows RowEnricher, sink ReportSink, opts Options, options ...Option) *Controller {
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultOptions().MaxPages
	}
	c := &Controller{
		resolver: resolver,
		listings: listings,
		enricher: rows,
		sink:     sink,
		opts:     opts,
		log:      slog.Default(),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Outcome is the report of a finished run.
type Outcome struct {
	RunID    string
	URL      string
	Category domain.CategoryDescriptor
	// Trace lists every state the run passed through, starting at Idle.
	Trace   []State
	Reason  Reason
	Cause   error
	Success bool
	// Pages counts listing pages fetched without error.
	Pages      int
	Rows       []domain.EnrichedRow
	Artifact   *domain.ReportArtifact
	PersistErr error
	DeliverErr error
	StartedAt  time.Time
	Elapsed    time.Duration
}

// State returns the last state of the run.
func (o Outcome) State() State {
	if len(o.Trace) == 0 {
		return StateIdle
	}
	return o.Trace[len(o.Trace)-1]
}

// Record summarises the outcome for the run history.
func (o Outcome) Record(top int) domain.RunRecord {
	rec := domain.RunRecord{
		ID:        o.RunID,
		Kind:      "category",
		URL:       o.URL,
		Category:  o.Category.Name,
		Reason:    string(o.Reason),
		Success:   o.Success,
		Rows:      len(o.Rows),
		Pages:     o.Pages,
		Elapsed:   o.Elapsed,
		StartedAt: o.StartedAt,
	}
	if o.Artifact != nil {
		rec.Report = o.Artifact.Name
	}
	if top > len(o.Rows) {
		top = len(o.Rows)
	}
	if top > 0 {
		rec.Top = append([]domain.EnrichedRow(nil), o.Rows[:top]...)
	}
	return rec
}

// Run harvests the category behind rawURL. Page and enrichment failures end
// the run gracefully and whatever was accumulated is still flushed. An error
// is returned only when the URL cannot be resolved because the catalog is
// unavailable.
func (c *Controller) Run(ctx context.Context, rawURL string, progress Progress) (Outcome, error) {
	if progress == nil {
		progress = NopProgress{}
	}
	run := &domain.HarvestRun{ID: uuid.NewString(), URL: rawURL, StartedAt: c.now()}
	log := c.log.With("run_id", run.ID, "url", rawURL)
	out := Outcome{RunID: run.ID, URL: rawURL, StartedAt: run.StartedAt, Trace: []State{StateIdle}}

	c.metrics.RunStarted()
	log.Info("Run started")

	err := c.exec(ctx, run, &out, progress, log)
	if err != nil {
		out.Reason = ReasonUnexpected
		out.Cause = err
		out.Elapsed = c.now().Sub(run.StartedAt)
		c.metrics.RunFinished(string(out.Reason), out.Elapsed)
		log.Error("Run failed", "error", err, "elapsed", out.Elapsed)
		return out, err
	}

	c.finish(ctx, run, &out, progress, log)
	return out, nil
}

func (c *Controller) exec(ctx context.Context, run *domain.HarvestRun, out *Outcome, progress Progress, log *slog.Logger) error {
	state := StateResolving
	var names []string

	for state != StateFlushing {
		out.Trace = append(out.Trace, state)

		switch state {
		case StateResolving:
			desc, err := c.resolver.Resolve(ctx, run.URL)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				out.Reason = ReasonNotFound
				state = StateFlushing
				continue
			case err != nil && ctx.Err() != nil:
				out.Reason = ReasonCancelled
				state = StateFlushing
				continue
			case err != nil:
				return fmt.Errorf("resolve %s: %w", run.URL, err)
			}
			run.Target = desc
			run.Page = 1
			out.Category = desc
			log.Info("Category resolved", "name", desc.Name, "shard", desc.Shard)
			state = StatePaging

		case StatePaging:
			if ctx.Err() != nil {
				out.Reason = ReasonCancelled
				state = StateFlushing
				continue
			}
			var page domain.ListingPage
			err := guard(func() error {
				var err error
				page, err = c.listings.FetchPage(ctx, run.Target, run.Page)
				return err
			})
			if err != nil {
				state = c.fail(ctx, out, err, log)
				continue
			}
			out.Pages++
			c.metrics.PageFetched()
			progress.Notify(ctx, fmt.Sprintf("Page %d: received %d products", run.Page, len(page.Names)))
			if len(page.Names) == 0 {
				out.Reason = ReasonPagesExhausted
				state = StateFlushing
				continue
			}
			names = page.Names
			state = StateEnriching

		case StateEnriching:
			var rows []domain.EnrichedRow
			err := guard(func() error {
				var err error
				rows, err = c.enricher.Rows(ctx, names)
				return err
			})
			if errors.Is(err, enricher.ErrEmpty) {
				out.Reason = ReasonNoUsableItems
				state = StateFlushing
				continue
			}
			if err != nil {
				state = c.fail(ctx, out, err, log)
				continue
			}
			run.Append(rows...)
			c.metrics.RowsAdded(len(rows))
			log.Debug("Page enriched", "page", run.Page, "rows", len(rows), "total", run.Len())

			run.Page++
			if run.Page > c.opts.MaxPages {
				out.Reason = ReasonPageBudget
				state = StateFlushing
				continue
			}
			// Cancellation during the delay is picked up at the top of Paging.
			_ = c.sleep(ctx, c.opts.PageDelay)
			state = StatePaging

		case StateAborted:
			state = StateFlushing
		}
	}
	return nil
}

// fail converts a page or enrichment error into the next state.
func (c *Controller) fail(ctx context.Context, out *Outcome, err error, log *slog.Logger) State {
	out.Cause = err
	var (
		netErr *domain.NetworkError
		fmtErr *domain.FormatError
	)
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		out.Reason = ReasonRateLimited
		log.Info("Upstream rate limit reached", "error", err)
		return StateFlushing
	case ctx.Err() != nil:
		out.Reason = ReasonCancelled
		return StateFlushing
	case errors.As(err, &fmtErr):
		out.Reason = ReasonMalformed
	case errors.As(err, &netErr):
		out.Reason = ReasonNetwork
	default:
		out.Reason = ReasonUnexpected
	}
	log.Warn("Run aborted", "reason", out.Reason, "error", err)
	return StateAborted
}

// finish runs Flushing and Done. It executes on every path that reached
// Flushing.
func (c *Controller) finish(ctx context.Context, run *domain.HarvestRun, out *Outcome, progress Progress, log *slog.Logger) {
	out.Trace = append(out.Trace, StateFlushing)
	out.Rows = run.Rows()
	progress.Notify(ctx, fmt.Sprintf("Stopping: %s. Collected %d rows", out.Reason, len(out.Rows)))

	if len(out.Rows) > 0 {
		c.flush(ctx, run, out, progress, log)
	}

	out.Trace = append(out.Trace, StateDone)
	out.Success = success(out)
	out.Elapsed = c.now().Sub(run.StartedAt)

	progress.Notify(ctx, doneMessage(out))
	c.metrics.RunFinished(string(out.Reason), out.Elapsed)
	if c.history != nil {
		c.history.Record(out.Record(c.opts.TopRows))
	}
	log.Info("Run finished",
		"reason", out.Reason,
		"success", out.Success,
		"rows", len(out.Rows),
		"pages", out.Pages,
		"elapsed", out.Elapsed,
	)
}

func (c *Controller) flush(ctx context.Context, run *domain.HarvestRun, out *Outcome, progress Progress, log *slog.Logger) {
	artifact, err := c.sink.Persist(out.Rows, run.Target.Name)
	if err != nil {
		out.PersistErr = err
		log.Error("Failed to persist report", "error", err)
		return
	}
	out.Artifact = &artifact
	log.Info("Report saved", "path", artifact.Path, "rows", artifact.Rows)

	d, ok := progress.(Deliverer)
	if !ok {
		return
	}
	// The report is delivered even when the run itself was cancelled.
	if err := d.Deliver(context.WithoutCancel(ctx), artifact); err != nil {
		out.DeliverErr = err
		log.Error("Failed to deliver report", "path", artifact.Path, "error", err)
		return
	}
	c.sink.ScheduleCleanup(artifact.Path, c.opts.CleanupDelay)
}

func success(out *Outcome) bool {
	switch {
	case out.Reason == ReasonNotFound:
		return false
	case out.PersistErr != nil:
		return false
	case out.Reason.Aborted() && len(out.Rows) == 0:
		return false
	}
	return true
}

func doneMessage(out *Outcome) string {
	secs := out.Elapsed.Seconds()
	switch {
	case out.Reason == ReasonNotFound:
		return "Category not found. Check the link and try again."
	case out.PersistErr != nil:
		return fmt.Sprintf("Finished in %.2f s, but the report could not be saved: %v", secs, out.PersistErr)
	case out.Artifact != nil:
		return fmt.Sprintf("Finished in %.2f s. Report %s has %d rows", secs, out.Artifact.Name, out.Artifact.Rows)
	default:
		return fmt.Sprintf("Finished in %.2f s. No matching items", secs)
	}
}

// guard turns a panic in a collaborator into an error so the run can still
// flush.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
