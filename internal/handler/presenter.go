package handler

import (
	"fmt"

	"vpn-assistant/internal/domain"
	"vpn-assistant/internal/qr"
)

// Presenter delivers a subscription link as a QR code photo followed by a
// copyable link message.
type Presenter struct {
	renderer  *qr.Renderer
	messenger *Messenger
	logger    domain.Logger
}

// NewPresenter creates a new presenter instance
func NewPresenter(renderer *qr.Renderer, messenger *Messenger, logger domain.Logger) *Presenter {
	return &Presenter{
		renderer:  renderer,
		messenger: messenger,
		logger:    logger,
	}
}

// Deliver sends the QR code and the link. name scopes the temporary image
// file, so concurrent deliveries never share a file.
func (p *Presenter) Deliver(chatID int64, name, url string, keyboard *domain.Keyboard) error {
	err := p.renderer.WithTempFile(name, url, func(path string) error {
		return p.messenger.SendPhoto(chatID, path, MSG_QR_CAPTION)
	})
	if err != nil {
		return fmt.Errorf("failed to send qr code: %w", err)
	}

	if err := p.messenger.SendMarkdown(chatID, FormatLinkMessage(url), keyboard); err != nil {
		return fmt.Errorf("failed to send link: %w", err)
	}

	return nil
}
