package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"vpn-assistant/internal/domain"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/gookit/event"
	"golang.org/x/time/rate"
)

// DefaultSendRate keeps outgoing calls under the Bot API global limit
const DefaultSendRate = 25

type Telegram struct {
	bot          *bot.Bot
	eventManager *event.Manager
	limiter      *rate.Limiter
	logger       domain.Logger
}

// NewTelegram creates the bot adapter. Outgoing calls are paced to sendRate
// per second; extra options are appended to the bot defaults.
func NewTelegram(token string, sendRate int, logger domain.Logger, eventManager *event.Manager, extra ...bot.Option) (*Telegram, error) {
	if sendRate <= 0 {
		sendRate = DefaultSendRate
	}

	adapter := &Telegram{
		eventManager: eventManager,
		limiter:      rate.NewLimiter(rate.Limit(sendRate), 1),
		logger:       logger,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(adapter.defaultHandler),
		bot.WithErrorsHandler(func(err error) {
			logger.WithError(err).Error("Telegram polling error")
		}),
	}
	opts = append(opts, extra...)

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, err
	}
	adapter.bot = b

	// Register bot handlers
	adapter.registerHandlers()

	// Register event listeners for responses
	adapter.registerEventListeners()

	return adapter, nil
}

// Start polls for updates until ctx is cancelled
func (t *Telegram) Start(ctx context.Context) {
	t.bot.Start(ctx)
}

func (t *Telegram) registerHandlers() {
	t.bot.RegisterHandler(bot.HandlerTypeMessageText, "", bot.MatchTypePrefix, t.handleMessage)
	t.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, t.handleCallback)
}

func (t *Telegram) handleMessage(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	msgEvent := &domain.MessageEvent{
		UserID:   update.Message.From.ID,
		ChatID:   update.Message.Chat.ID,
		Username: update.Message.From.Username,
		Message:  update.Message.Text,
	}

	t.logger.WithFields(map[string]any{
		"user_id": msgEvent.UserID,
		"chat_id": msgEvent.ChatID,
	}).Debug("Received message")

	// Emit event to core
	t.eventManager.MustFire("telegram.message.received", event.M{
		"event": msgEvent,
		"ctx":   ctx,
	})
}

func (t *Telegram) handleCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	query := update.CallbackQuery
	if query == nil {
		return
	}

	// Answer callback to remove loading state
	if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
	}); err != nil {
		t.logger.WithError(err).Warn("Failed to answer callback query")
	}

	chatID, ok := callbackChatID(query)
	if !ok {
		t.logger.WithField("user_id", query.From.ID).Warn("Callback without a chat")
		return
	}

	callbackEvent := &domain.CallbackEvent{
		UserID:   query.From.ID,
		ChatID:   chatID,
		Username: query.From.Username,
		Data:     query.Data,
	}

	t.logger.WithFields(map[string]any{
		"user_id": callbackEvent.UserID,
		"chat_id": callbackEvent.ChatID,
		"data":    callbackEvent.Data,
	}).Debug("Received callback")

	// Emit event to core
	t.eventManager.MustFire("telegram.callback.received", event.M{
		"event": callbackEvent,
		"ctx":   ctx,
	})
}

// registerEventListeners wires outgoing events to the Bot API. Listeners
// never return an error; a failed delivery is stored on the event as "error".
func (t *Telegram) registerEventListeners() {
	t.eventManager.On("telegram.send.message", event.ListenerFunc(func(e event.Event) error {
		data, ok := e.Get("response").(*domain.MessageResponse)
		if !ok {
			e.Set("error", fmt.Errorf("invalid message response type"))
			return nil
		}

		if err := t.sendMessage(data); err != nil {
			t.logger.WithError(err).WithField("chat_id", data.ChatID).Error("Error sending message")
			e.Set("error", err)
		}
		return nil
	}))

	t.eventManager.On("telegram.send.photo", event.ListenerFunc(func(e event.Event) error {
		data, ok := e.Get("response").(*domain.PhotoResponse)
		if !ok {
			e.Set("error", fmt.Errorf("invalid photo response type"))
			return nil
		}

		if err := t.sendPhoto(data); err != nil {
			t.logger.WithError(err).WithField("chat_id", data.ChatID).Error("Error sending photo")
			e.Set("error", err)
		}
		return nil
	}))

	// Listen for typing action events
	t.eventManager.On("telegram.send.typing", event.ListenerFunc(func(e event.Event) error {
		chatID, ok := e.Get("chatID").(int64)
		if !ok {
			return nil
		}

		ctx := context.Background()
		if err := t.limiter.Wait(ctx); err != nil {
			return nil
		}

		if _, err := t.bot.SendChatAction(ctx, &bot.SendChatActionParams{
			ChatID: chatID,
			Action: models.ChatActionTyping,
		}); err != nil {
			t.logger.WithError(err).WithField("chat_id", chatID).Debug("Error sending typing action")
		}
		return nil
	}))
}

func (t *Telegram) sendMessage(data *domain.MessageResponse) error {
	ctx := context.Background()
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	params := &bot.SendMessageParams{
		ChatID: data.ChatID,
		Text:   data.Text,
	}
	if data.Markdown {
		params.ParseMode = models.ParseModeMarkdown
	}

	// Add keyboard if provided
	if data.Keyboard != nil {
		params.ReplyMarkup = buildKeyboard(data.Keyboard)
	}

	_, err := t.bot.SendMessage(ctx, params)
	return err
}

func (t *Telegram) sendPhoto(data *domain.PhotoResponse) error {
	file, err := os.Open(data.Path)
	if err != nil {
		return fmt.Errorf("failed to open photo: %w", err)
	}
	defer file.Close()

	ctx := context.Background()
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	params := &bot.SendPhotoParams{
		ChatID: data.ChatID,
		Photo: &models.InputFileUpload{
			Filename: filepath.Base(data.Path),
			Data:     file,
		},
		Caption: data.Caption,
	}
	if data.Markdown {
		params.ParseMode = models.ParseModeMarkdown
	}
	if data.Keyboard != nil {
		params.ReplyMarkup = buildKeyboard(data.Keyboard)
	}

	_, err = t.bot.SendPhoto(ctx, params)
	return err
}

func callbackChatID(query *models.CallbackQuery) (int64, bool) {
	switch {
	case query.Message.Message != nil:
		return query.Message.Message.Chat.ID, true
	case query.Message.InaccessibleMessage != nil:
		return query.Message.InaccessibleMessage.Chat.ID, true
	default:
		return 0, false
	}
}

func buildKeyboard(keyboard *domain.Keyboard) models.ReplyMarkup {
	if keyboard.Inline {
		var rows [][]models.InlineKeyboardButton
		for _, row := range keyboard.Buttons {
			var buttons []models.InlineKeyboardButton
			for _, btn := range row {
				buttons = append(buttons, models.InlineKeyboardButton{
					Text:         btn.Text,
					CallbackData: btn.Data,
				})
			}
			rows = append(rows, buttons)
		}
		return &models.InlineKeyboardMarkup{
			InlineKeyboard: rows,
		}
	}

	// Reply keyboard
	var rows [][]models.KeyboardButton
	for _, row := range keyboard.Buttons {
		var buttons []models.KeyboardButton
		for _, btn := range row {
			buttons = append(buttons, models.KeyboardButton{
				Text: btn.Text,
			})
		}
		rows = append(rows, buttons)
	}
	return &models.ReplyKeyboardMarkup{
		Keyboard:       rows,
		ResizeKeyboard: true,
	}
}

func (t *Telegram) defaultHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	t.logger.WithField("update_id", update.ID).Debug("Unhandled update")
}
