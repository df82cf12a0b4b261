package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/qepting91/wb-harvester/internal/domain"
)

// maxProgressLines keeps the edited message under Telegram's length limit.
const maxProgressLines = 30

// chatProgress belongs to one run. The first notification sends a message,
// later ones edit it with the full log so far.
type chatProgress struct {
	bot    *Bot
	chatID int64

	mu        sync.Mutex
	messageID int
	lines     []string
}

func newChatProgress(b *Bot, chatID int64) *chatProgress {
	return &chatProgress{bot: b, chatID: chatID}
}

func (p *chatProgress) Notify(_ context.Context, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lines = append(p.lines, text)
	if len(p.lines) > maxProgressLines {
		p.lines = p.lines[len(p.lines)-maxProgressLines:]
	}
	body := strings.Join(p.lines, "\n")

	if p.messageID == 0 {
		if msg, ok := p.bot.send(tgbotapi.NewMessage(p.chatID, body)); ok {
			p.messageID = msg.MessageID
		}
		return
	}
	if _, err := p.bot.deps.Sender.Send(tgbotapi.NewEditMessageText(p.chatID, p.messageID, body)); err != nil {
		p.bot.log.Debug("Failed to edit progress message", "chat_id", p.chatID, "error", err)
	}
}

// Deliver uploads the report to the chat that started the run.
func (p *chatProgress) Deliver(_ context.Context, artifact domain.ReportArtifact) error {
	caption := fmt.Sprintf("%s: %d rows", artifact.Name, artifact.Rows)
	if err := p.bot.document(p.chatID, artifact, caption); err != nil {
		return fmt.Errorf("send report %s: %w", artifact.Name, err)
	}
	return nil
}
