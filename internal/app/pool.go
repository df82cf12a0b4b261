package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/qepting91/wb-harvester/internal/harvest"
)

// Result pairs a target with its outcome.
type Result struct {
	URL     string
	Outcome harvest.Outcome
	Err     error
}

// logProgress writes run notifications to the log.
type logProgress struct {
	log *slog.Logger
}

func (p logProgress) Notify(_ context.Context, text string) {
	p.log.Info(text)
}

// HarvestAll runs every target through the controller using a fixed number
// of workers. Results keep the order of targets.
func (a *App) HarvestAll(ctx context.Context, targets []string, workers int) []Result {
	if workers < 1 {
		workers = 1
	}
	results := make([]Result, len(targets))
	jobQueue := make(chan int, len(targets))
	var workerWg sync.WaitGroup

	for i := 0; i < workers; i++ {
		workerWg.Add(1)
		go func(id int) {
			defer workerWg.Done()
			for idx := range jobQueue {
				url := targets[idx]
				select {
				case <-ctx.Done():
					results[idx] = Result{URL: url, Err: ctx.Err()}
					continue
				default:
				}
				progress := logProgress{log: a.Log.With("worker", id, "url", url)}
				out, err := a.Controller.Run(ctx, url, progress)
				if err != nil {
					a.Log.Error("Harvest failed", "url", url, "error", err)
				}
				results[idx] = Result{URL: url, Outcome: out, Err: err}
			}
		}(i)
	}

	a.Log.Info("Starting harvest cycle", "targets", len(targets), "workers", workers)
	for i := range targets {
		jobQueue <- i
	}
	close(jobQueue)

	workerWg.Wait()
	return results
}
