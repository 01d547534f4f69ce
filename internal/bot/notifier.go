package bot

import (
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
)

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier reports album progress to the user who started it. Progress
// edits the format menu message, the summary is a new message.
type Notifier struct {
	sender Sender
}

func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

func (n *Notifier) Progress(s model.Session, text string) {
	if s.MessageID == 0 {
		return
	}
	if _, err := n.sender.Send(tgbotapi.NewEditMessageText(s.ChatID, s.MessageID, text)); err != nil {
		log.Printf("[user %d] progress: %v", s.UserID, err)
	}
}

func (n *Notifier) Summary(s model.Session, text string) {
	msg := tgbotapi.NewMessage(s.ChatID, text)
	if s.MessageID != 0 {
		msg.ReplyToMessageID = s.MessageID
	}
	if _, err := n.sender.Send(msg); err != nil {
		log.Printf("[user %d] summary: %v", s.UserID, err)
	}
}
