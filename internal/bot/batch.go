package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/qepting91/wb-harvester/internal/domain"
)

// RunScheduled runs the full-catalog analysis for every subscriber.
func (b *Bot) RunScheduled(ctx context.Context) error {
	if b.deps.Subscribers == nil {
		return errors.New("subscriptions are not configured")
	}
	ids, err := b.deps.Subscribers.List(ctx)
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}
	if len(ids) == 0 {
		b.log.Info("No subscribers, scheduled batch skipped")
		return nil
	}
	return b.RunBatch(ctx, ids)
}

// RunBatch runs the full-catalog analysis and sends the stage messages and
// the report to recipients. Only one batch runs at a time.
func (b *Bot) RunBatch(ctx context.Context, recipients []int64) error {
	if b.deps.Batch == nil {
		return errors.New("batch runs are not configured")
	}
	if !b.batchMu.TryLock() {
		return ErrBatchRunning
	}
	defer b.batchMu.Unlock()

	b.notifyAll(recipients, "Full catalog analysis started.")
	out, err := b.deps.Batch.Run(ctx)
	if err != nil {
		b.notifyAll(recipients, fmt.Sprintf("Full catalog analysis failed: %v", err))
		return err
	}
	if out.Artifact == nil {
		b.log.Warn("Batch run produced no report")
		b.notifyAll(recipients, "Full catalog analysis found no usable keywords.")
		return nil
	}

	sent := b.deliverAll(recipients, *out.Artifact)
	if b.deps.Reports != nil && sent > 0 {
		b.deps.Reports.ScheduleCleanup(out.Artifact.Path, b.deps.CleanupDelay)
	}
	return nil
}

func (b *Bot) notifyAll(recipients []int64, text string) {
	for _, id := range recipients {
		b.reply(id, text)
	}
}

func (b *Bot) deliverAll(recipients []int64, artifact domain.ReportArtifact) int {
	caption := fmt.Sprintf("Category analysis: %d keywords", artifact.Rows)
	sent := 0
	for _, id := range recipients {
		if err := b.document(id, artifact, caption); err != nil {
			b.log.Error("Failed to send batch report", "chat_id", id, "error", err)
			continue
		}
		sent++
	}
	b.log.Info("Batch report sent", "recipients", len(recipients), "sent", sent)
	return sent
}
