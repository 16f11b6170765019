package handler

import (
	"vpn-assistant/internal/domain"

	"github.com/gookit/event"
)

// Outgoing event names. The Telegram adapter listens for them and reports a
// failed delivery by setting "error" on the event.
const (
	EventSendMessage = "telegram.send.message"
	EventSendPhoto   = "telegram.send.photo"
	EventSendTyping  = "telegram.send.typing"
)

// Messenger handles sending messages to users
type Messenger struct {
	eventManager *event.Manager
}

// NewMessenger creates a new messenger instance
func NewMessenger(eventManager *event.Manager) *Messenger {
	return &Messenger{
		eventManager: eventManager,
	}
}

// SendMessage sends a plain text message to a chat
func (m *Messenger) SendMessage(chatID int64, text string) error {
	return m.send(&domain.MessageResponse{
		ChatID: chatID,
		Text:   text,
	})
}

// SendMessageWithKeyboard sends a message with an inline keyboard
func (m *Messenger) SendMessageWithKeyboard(chatID int64, text string, keyboard *domain.Keyboard) error {
	return m.send(&domain.MessageResponse{
		ChatID:   chatID,
		Text:     text,
		Keyboard: keyboard,
	})
}

// SendMarkdown sends a MarkdownV2 message. The text must already be escaped.
func (m *Messenger) SendMarkdown(chatID int64, text string, keyboard *domain.Keyboard) error {
	return m.send(&domain.MessageResponse{
		ChatID:   chatID,
		Text:     text,
		Markdown: true,
		Keyboard: keyboard,
	})
}

// SendPhoto uploads the image at path with a plain caption
func (m *Messenger) SendPhoto(chatID int64, path, caption string) error {
	ev := m.eventManager.MustFire(EventSendPhoto, event.M{
		"response": &domain.PhotoResponse{
			ChatID:  chatID,
			Path:    path,
			Caption: caption,
		},
	})
	return deliveryError(ev)
}

// SendTypingIndicator sends a typing action to show bot is processing
func (m *Messenger) SendTypingIndicator(chatID int64) {
	m.eventManager.MustFire(EventSendTyping, event.M{
		"chatID": chatID,
	})
}

func (m *Messenger) send(response *domain.MessageResponse) error {
	ev := m.eventManager.MustFire(EventSendMessage, event.M{
		"response": response,
	})
	return deliveryError(ev)
}

func deliveryError(ev event.Event) error {
	if ev == nil {
		return nil
	}
	if err, ok := ev.Get("error").(error); ok {
		return err
	}
	return nil
}
