// Package bot is the Telegram front end. It accepts category links from the
// administrator, streams run progress into a single edited message and sends
// finished reports back to the chat.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/qepting91/wb-harvester/internal/domain"
	"github.com/qepting91/wb-harvester/internal/harvest"
	"github.com/qepting91/wb-harvester/internal/storage"
	"github.com/spf13/afero"
)

// Keyboard labels.
const (
	ButtonParse       = "Parse"
	ButtonSubscribers = "Subscribers"
	ButtonCancel      = "Cancel"
)

// ErrBatchRunning is returned when a batch run is requested while another
// one is still in progress.
var ErrBatchRunning = errors.New("batch run already in progress")

// Sender is the part of the Telegram client the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Runner executes one category run.
type Runner interface {
	Run(ctx context.Context, rawURL string, progress harvest.Progress) (harvest.Outcome, error)
}

// BatchRunner executes one full-catalog run.
type BatchRunner interface {
	Run(ctx context.Context) (harvest.BatchOutcome, error)
}

// Reports opens finished reports for upload and removes them afterwards.
type Reports interface {
	Open(path string) (afero.File, error)
	ScheduleCleanup(path string, delay time.Duration) *time.Timer
}

// Deps are the collaborators of a Bot.
type Deps struct {
	Sender      Sender
	Runner      Runner
	Batch       BatchRunner
	Reports     Reports
	Subscribers storage.SubscriberStore
	// ValidURL filters links before a run is started.
	ValidURL func(string) bool
	AdminIDs []int64
	// CleanupDelay applies to batch reports sent by the bot.
	CleanupDelay time.Duration
	Log          *slog.Logger
}

// Bot routes Telegram updates. Each chat has its own session; a chat runs at
// most one category harvest at a time.
type Bot struct {
	deps Deps
	log  *slog.Logger

	mu       sync.Mutex
	sessions map[int64]*session

	batchMu sync.Mutex
	wg      sync.WaitGroup
}

type session struct {
	awaitingURL bool
	cancel      context.CancelFunc
}

func New(deps Deps) *Bot {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.ValidURL == nil {
		deps.ValidURL = func(string) bool { return true }
	}
	return &Bot{
		deps:     deps,
		log:      deps.Log,
		sessions: make(map[int64]*session),
	}
}

// Serve handles updates until ctx is cancelled or the channel closes.
// Running harvests are cancelled by ctx; call Wait to let them flush.
func (b *Bot) Serve(ctx context.Context, updates <-chan tgbotapi.Update) {
	b.log.Info("Bot is listening for updates")
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, u)
		}
	}
}

// Wait blocks until every background run has finished.
func (b *Bot) Wait() {
	b.wg.Wait()
}

// HandleUpdate processes a single update.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	msg := u.Message
	if msg == nil || msg.Chat == nil || msg.From == nil {
		return
	}
	chatID := msg.Chat.ID
	log := b.log.With("chat_id", chatID, "user_id", msg.From.ID)

	if !b.isAdmin(msg.From.ID) {
		log.Warn("Rejected message from unknown user")
		b.reply(chatID, "You do not have access to this bot.")
		return
	}

	if msg.IsCommand() {
		log.Info("Command received", "command", msg.Command())
		b.command(ctx, chatID, msg.Command(), msg.CommandArguments())
		return
	}

	switch msg.Text {
	case ButtonParse:
		b.askForURL(chatID)
	case ButtonSubscribers:
		b.listSubscribers(ctx, chatID)
	case ButtonCancel:
		b.cancel(chatID)
	default:
		b.text(ctx, chatID, msg.Text)
	}
}

func (b *Bot) command(ctx context.Context, chatID int64, cmd, args string) {
	switch cmd {
	case "start":
		b.start(ctx, chatID)
	case "parse":
		if args == "" {
			b.askForURL(chatID)
			return
		}
		b.submitURL(ctx, chatID, args)
	case "cancel":
		b.cancel(chatID)
	case "list":
		b.listSubscribers(ctx, chatID)
	case "subscribe":
		b.subscribe(ctx, chatID, args)
	case "unsubscribe":
		b.unsubscribe(ctx, chatID, args)
	case "update":
		b.update(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /start to see the menu.")
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	return slices.Contains(b.deps.AdminIDs, userID)
}

func (b *Bot) session(chatID int64) *session {
	s, ok := b.sessions[chatID]
	if !ok {
		s = &session{}
		b.sessions[chatID] = s
	}
	return s
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(c tgbotapi.Chattable) (tgbotapi.Message, bool) {
	msg, err := b.deps.Sender.Send(c)
	if err != nil {
		b.log.Error("Failed to send message", "error", err)
		return msg, false
	}
	return msg, true
}

func keyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonParse),
			tgbotapi.NewKeyboardButton(ButtonSubscribers),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonCancel),
		),
	)
}

func (b *Bot) open(path string) (afero.File, error) {
	if b.deps.Reports == nil {
		return nil, errors.New("report storage is not configured")
	}
	return b.deps.Reports.Open(path)
}

func (b *Bot) document(chatID int64, artifact domain.ReportArtifact, caption string) error {
	f, err := b.open(artifact.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: artifact.Name, Reader: f})
	doc.Caption = caption
	_, err = b.deps.Sender.Send(doc)
	return err
}
