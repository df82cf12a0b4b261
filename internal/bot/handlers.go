package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) start(ctx context.Context, chatID int64) {
	if b.deps.Subscribers != nil {
		if _, err := b.deps.Subscribers.Add(ctx, chatID); err != nil {
			b.log.Error("Failed to subscribe admin", "chat_id", chatID, "error", err)
		}
	}
	msg := tgbotapi.NewMessage(chatID,
		"Hi! Send me a Wildberries category link and I will collect monthly search frequency for its products.\n"+
			"Press Parse to start, Cancel to stop a running collection.")
	msg.ReplyMarkup = keyboard()
	b.send(msg)
}

func (b *Bot) askForURL(chatID int64) {
	b.mu.Lock()
	b.session(chatID).awaitingURL = true
	b.mu.Unlock()
	b.reply(chatID, "Send a category link, for example:\nhttps://www.wildberries.ru/catalog/dom-i-dacha/vannaya/aksessuary")
}

func (b *Bot) text(ctx context.Context, chatID int64, text string) {
	b.mu.Lock()
	awaiting := b.session(chatID).awaitingURL
	b.mu.Unlock()

	if !awaiting {
		b.reply(chatID, "Press Parse first, then send a category link.")
		return
	}
	b.submitURL(ctx, chatID, text)
}

func (b *Bot) submitURL(ctx context.Context, chatID int64, raw string) {
	url := strings.TrimSpace(raw)
	if !b.deps.ValidURL(url) {
		b.reply(chatID, "Invalid link format. Expected https://www.wildberries.ru/catalog/<section>/<group>/<category>")
		return
	}

	b.mu.Lock()
	s := b.session(chatID)
	if s.cancel != nil {
		b.mu.Unlock()
		b.reply(chatID, "A collection is already running. Press Cancel to stop it.")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			cancel()
			b.mu.Lock()
			s.cancel = nil
			b.mu.Unlock()
		}()
		if b.harvest(runCtx, chatID, url) {
			b.mu.Lock()
			s.awaitingURL = false
			b.mu.Unlock()
		}
	}()
}

// harvest runs one category and reports whether it succeeded. A failed run
// keeps the chat waiting for another link.
func (b *Bot) harvest(ctx context.Context, chatID int64, url string) bool {
	log := b.log.With("chat_id", chatID, "url", url)
	progress := newChatProgress(b, chatID)
	progress.Notify(ctx, "Collection started")

	out, err := b.deps.Runner.Run(ctx, url, progress)
	if err != nil {
		log.Error("Run failed", "error", err)
		b.reply(chatID, "The catalog is unavailable right now. Try again later.")
		return false
	}
	if out.DeliverErr != nil {
		b.reply(chatID, fmt.Sprintf("The report was saved but could not be sent: %v", out.DeliverErr))
	}
	return out.Success
}

func (b *Bot) cancel(chatID int64) {
	b.mu.Lock()
	s := b.session(chatID)
	cancel := s.cancel
	wasAwaiting := s.awaitingURL
	s.awaitingURL = false
	b.mu.Unlock()

	switch {
	case cancel != nil:
		cancel()
		b.reply(chatID, "Stopping the collection. Rows gathered so far will be sent.")
	case wasAwaiting:
		b.reply(chatID, "Cancelled.")
	default:
		b.reply(chatID, "Nothing to cancel.")
	}
}

func (b *Bot) listSubscribers(ctx context.Context, chatID int64) {
	if b.deps.Subscribers == nil {
		b.reply(chatID, "Subscriptions are not available.")
		return
	}
	ids, err := b.deps.Subscribers.List(ctx)
	if err != nil {
		b.log.Error("Failed to list subscribers", "error", err)
		b.reply(chatID, "Failed to load subscribers.")
		return
	}
	if len(ids) == 0 {
		b.reply(chatID, "No subscribers yet.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Subscribers:")
	for _, id := range ids {
		sb.WriteString("\n")
		sb.WriteString(strconv.FormatInt(id, 10))
	}
	b.reply(chatID, sb.String())
}

// targetChat parses an optional chat id argument, defaulting to the sender.
func targetChat(chatID int64, args string) (int64, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return chatID, nil
	}
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q", args)
	}
	return id, nil
}

func (b *Bot) subscribe(ctx context.Context, chatID int64, args string) {
	if b.deps.Subscribers == nil {
		b.reply(chatID, "Subscriptions are not available.")
		return
	}
	id, err := targetChat(chatID, args)
	if err != nil {
		b.reply(chatID, "Usage: /subscribe [chat id]")
		return
	}
	added, err := b.deps.Subscribers.Add(ctx, id)
	switch {
	case err != nil:
		b.log.Error("Failed to add subscriber", "subscriber", id, "error", err)
		b.reply(chatID, "Failed to subscribe.")
	case added:
		b.reply(chatID, fmt.Sprintf("Chat %d will receive scheduled reports.", id))
	default:
		b.reply(chatID, fmt.Sprintf("Chat %d is already subscribed.", id))
	}
}

func (b *Bot) unsubscribe(ctx context.Context, chatID int64, args string) {
	if b.deps.Subscribers == nil {
		b.reply(chatID, "Subscriptions are not available.")
		return
	}
	id, err := targetChat(chatID, args)
	if err != nil {
		b.reply(chatID, "Usage: /unsubscribe [chat id]")
		return
	}
	removed, err := b.deps.Subscribers.Remove(ctx, id)
	switch {
	case err != nil:
		b.log.Error("Failed to remove subscriber", "subscriber", id, "error", err)
		b.reply(chatID, "Failed to unsubscribe.")
	case removed:
		b.reply(chatID, fmt.Sprintf("Chat %d unsubscribed.", id))
	default:
		b.reply(chatID, fmt.Sprintf("Chat %d was not subscribed.", id))
	}
}

func (b *Bot) update(ctx context.Context, chatID int64) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		err := b.RunBatch(ctx, []int64{chatID})
		switch {
		case errors.Is(err, ErrBatchRunning):
			b.reply(chatID, "A full catalog analysis is already running.")
		case err != nil:
			b.log.Error("Manual batch run failed", "chat_id", chatID, "error", err)
		}
	}()
}
