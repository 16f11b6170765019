package handler

import (
	"context"
	"strings"

	"vpn-assistant/internal/dialogue"
	"vpn-assistant/internal/domain"
	"vpn-assistant/internal/qr"
	"vpn-assistant/internal/services"

	"github.com/gookit/event"
)

// Incoming event names fired by the Telegram adapter
const (
	EventMessageReceived  = "telegram.message.received"
	EventCallbackReceived = "telegram.callback.received"
)

type MessageHandler struct {
	eventManager *event.Manager
	locker       *services.ChatLocker
	logger       domain.Logger

	provisioningHandler *ProvisioningHandler
	connectionsHandler  *ConnectionsHandler
	accountHandler      *AccountHandler
	messenger           *Messenger
}

// NewMessageHandler creates a new message handler instance with sub-handlers.
// accounts is nil when the panel backend has no account management.
func NewMessageHandler(
	eventManager *event.Manager,
	backend domain.ProvisioningBackend,
	accounts domain.AccountBackend,
	sessions domain.SessionStore,
	locker *services.ChatLocker,
	renderer *qr.Renderer,
	logger domain.Logger,
) *MessageHandler {
	messenger := NewMessenger(eventManager)
	presenter := NewPresenter(renderer, messenger, logger)
	provisioningHandler := NewProvisioningHandler(backend, sessions, presenter, messenger, logger)

	h := &MessageHandler{
		eventManager:        eventManager,
		locker:              locker,
		logger:              logger,
		provisioningHandler: provisioningHandler,
		connectionsHandler:  NewConnectionsHandler(backend, sessions, provisioningHandler, presenter, messenger, logger),
		messenger:           messenger,
	}

	if accounts != nil {
		h.accountHandler = NewAccountHandler(accounts, presenter, messenger, logger)
	}

	return h
}

// RegisterEventListeners registers event listeners for messages and callbacks
func (h *MessageHandler) RegisterEventListeners() {
	h.eventManager.On(EventMessageReceived, event.ListenerFunc(func(e event.Event) error {
		msgEvent, ok := e.Get("event").(*domain.MessageEvent)
		if !ok {
			h.logger.Warn("Invalid message event type")
			return nil
		}
		h.HandleMessage(eventContext(e), msgEvent)
		return nil
	}))

	h.eventManager.On(EventCallbackReceived, event.ListenerFunc(func(e event.Event) error {
		callbackEvent, ok := e.Get("event").(*domain.CallbackEvent)
		if !ok {
			h.logger.Warn("Invalid callback event type")
			return nil
		}
		h.HandleCallback(eventContext(e), callbackEvent)
		return nil
	}))
}

// HandleMessage routes commands and free text
func (h *MessageHandler) HandleMessage(ctx context.Context, msg *domain.MessageEvent) {
	unlock := h.locker.Lock(msg.ChatID)
	defer unlock()

	user := domain.UserIdentity{ID: msg.UserID, ChatID: msg.ChatID, Username: msg.Username}

	command, isCommand := parseCommand(msg.Message)
	if !isCommand {
		h.provisioningHandler.Apply(ctx, user, dialogue.TextInput{Text: msg.Message})
		return
	}

	h.logger.WithFields(map[string]any{
		"chat_id": msg.ChatID,
		"user_id": msg.UserID,
		"command": command,
	}).Debug("Command received")

	switch command {
	case "start":
		h.handleStart(ctx, user)
	case "cancel":
		h.provisioningHandler.Apply(ctx, user, dialogue.CancelCommand{})
	case "help":
		h.provisioningHandler.Apply(ctx, user, dialogue.HelpCommand{})
	default:
		h.provisioningHandler.send(msg.ChatID, MSG_USE_HELP, nil)
	}
}

// HandleCallback routes inline button presses
func (h *MessageHandler) HandleCallback(ctx context.Context, callback *domain.CallbackEvent) {
	unlock := h.locker.Lock(callback.ChatID)
	defer unlock()

	user := domain.UserIdentity{ID: callback.UserID, ChatID: callback.ChatID, Username: callback.Username}

	parsed, err := ParseCallback(callback.Data)
	if err != nil {
		h.invalid(user, err)
		return
	}

	switch parsed.Action {
	case ActionDeviceCount:
		h.provisioningHandler.Apply(ctx, user, dialogue.DeviceCountSelected{Count: parsed.Count})
	case ActionPlatform:
		h.provisioningHandler.Apply(ctx, user, dialogue.PlatformSelected{Platform: parsed.Platform})
	case ActionAddDevices:
		h.provisioningHandler.Apply(ctx, user, dialogue.StartCommand{})
	case ActionShowConnections:
		h.connectionsHandler.HandleList(ctx, user)
	case ActionEditConnection:
		h.connectionsHandler.HandleEdit(ctx, user, parsed.Index)
	case ActionChangePlatform:
		h.connectionsHandler.HandleChangePlatform(ctx, user, parsed.Index, parsed.Platform)
	case ActionDeleteConnection:
		h.connectionsHandler.HandleDelete(ctx, user, parsed.Index)
	case ActionBack:
		if h.accountHandler != nil {
			h.accountHandler.HandleStart(ctx, user)
			return
		}
		h.connectionsHandler.ShowMenu(ctx, user)
	default:
		h.handleAccountAction(ctx, user, parsed)
	}
}

func (h *MessageHandler) handleStart(ctx context.Context, user domain.UserIdentity) {
	if h.accountHandler != nil {
		h.accountHandler.HandleStart(ctx, user)
		return
	}
	h.connectionsHandler.HandleStart(ctx, user)
}

func (h *MessageHandler) handleAccountAction(ctx context.Context, user domain.UserIdentity, parsed Callback) {
	if h.accountHandler == nil {
		h.invalid(user, &domain.ValidationError{Input: parsed.Action, Reason: "account actions are not available"})
		return
	}

	switch parsed.Action {
	case ActionCreateUser:
		h.accountHandler.HandleCreate(ctx, user)
	case ActionAboutMe:
		h.accountHandler.HandleAboutMe(ctx, user)
	case ActionSubLink:
		h.accountHandler.HandleSubLink(ctx, user)
	case ActionRecreate:
		h.accountHandler.HandleRecreate(ctx, user)
	case ActionDeleteMe:
		h.accountHandler.HandleDelete(ctx, user)
	default:
		h.invalid(user, &domain.ValidationError{Input: parsed.Action, Reason: "unhandled action"})
	}
}

func (h *MessageHandler) invalid(user domain.UserIdentity, err error) {
	h.logger.WithError(err).WithFields(map[string]any{
		"chat_id": user.ChatID,
		"user_id": user.ID,
	}).Warn("Rejected callback")

	h.provisioningHandler.send(user.ChatID, MSG_INVALID_ACTION, nil)
}

// parseCommand extracts the lowercase command name from "/name@bot args"
func parseCommand(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", false
	}

	name, _, _ := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	return strings.ToLower(name), true
}

func eventContext(e event.Event) context.Context {
	if ctx, ok := e.Get("ctx").(context.Context); ok && ctx != nil {
		return ctx
	}
	return context.Background()
}
