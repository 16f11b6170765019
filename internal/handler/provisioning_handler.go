package handler

import (
	"context"
	"fmt"

	"vpn-assistant/internal/dialogue"
	"vpn-assistant/internal/domain"
)

// ProvisioningHandler drives the device enrollment dialogue: it feeds events
// to the state machine, stores the resulting state and carries out the
// effects, including provisioning itself.
type ProvisioningHandler struct {
	backend   domain.ProvisioningBackend
	sessions  domain.SessionStore
	presenter *Presenter
	messenger *Messenger
	logger    domain.Logger
}

// NewProvisioningHandler creates a new provisioning handler instance
func NewProvisioningHandler(
	backend domain.ProvisioningBackend,
	sessions domain.SessionStore,
	presenter *Presenter,
	messenger *Messenger,
	logger domain.Logger,
) *ProvisioningHandler {
	return &ProvisioningHandler{
		backend:   backend,
		sessions:  sessions,
		presenter: presenter,
		messenger: messenger,
		logger:    logger,
	}
}

// Apply runs one user event through the dialogue. Provisioning outcomes are
// fed back into the machine until it settles.
func (h *ProvisioningHandler) Apply(ctx context.Context, user domain.UserIdentity, ev dialogue.Event) {
	state, err := h.sessions.Get(ctx, user.ChatID)
	if err != nil {
		h.logger.WithError(err).WithField("chat_id", user.ChatID).Warn("Failed to load session, starting over")
		state = domain.StateStart{}
	}

	for ev != nil {
		next, effects := dialogue.Transition(state, ev)

		if err := h.sessions.Set(ctx, user.ChatID, next); err != nil {
			h.logger.WithError(err).WithField("chat_id", user.ChatID).Error("Failed to save session")
		}
		state = next
		ev = nil

		for _, effect := range effects {
			if provision, ok := effect.(dialogue.Provision); ok {
				ev = h.provision(ctx, user, provision)
				continue
			}
			h.render(user.ChatID, effect)
		}
	}
}

// provision creates the client for the current device and delivers its link
func (h *ProvisioningHandler) provision(ctx context.Context, user domain.UserIdentity, step dialogue.Provision) dialogue.Event {
	h.messenger.SendTypingIndicator(user.ChatID)
	h.send(user.ChatID, fmt.Sprintf(MSG_PROVISIONING, step.Device, step.Total, step.Platform), nil)

	fields := map[string]any{
		"chat_id":   user.ChatID,
		"user_id":   user.ID,
		"operation": "provision device",
		"platform":  step.Platform,
		"device":    step.Device,
	}

	info, err := h.backend.ProvisionDevice(ctx, user, step.Platform)
	if err != nil {
		h.logger.WithError(err).WithFields(fields).Error("Provisioning failed")
		return dialogue.ProvisionFailed{Platform: step.Platform, Stage: domain.StageOf(err, domain.StagePanel)}
	}

	h.send(user.ChatID, fmt.Sprintf(MSG_DEVICE_READY, step.Platform), nil)

	if err := h.presenter.Deliver(user.ChatID, info.Label, info.URL, nil); err != nil {
		h.logger.WithError(err).WithFields(fields).Error("Failed to deliver subscription link")
		return dialogue.ProvisionFailed{Platform: step.Platform, Stage: domain.StageDelivery}
	}

	return dialogue.ProvisionSucceeded{Platform: step.Platform, Info: *info}
}

// render turns a dialogue effect into a chat message
func (h *ProvisioningHandler) render(chatID int64, effect dialogue.Effect) {
	switch e := effect.(type) {
	case dialogue.PromptDeviceCount:
		h.send(chatID, MSG_WELCOME, deviceCountKeyboard())
	case dialogue.PromptPlatform:
		h.send(chatID, fmt.Sprintf(MSG_ASK_PLATFORM, e.Device, e.Total), enrollmentPlatformKeyboard())
	case dialogue.OverLimit:
		h.send(chatID, fmt.Sprintf(MSG_TOO_MANY_DEVICES, e.Max), nil)
	case dialogue.InvalidCount:
		h.send(chatID, MSG_INVALID_DEVICE_COUNT, nil)
	case dialogue.InvalidPlatform:
		h.send(chatID, MSG_INVALID_PLATFORM, nil)
	case dialogue.Guidance:
		h.send(chatID, MSG_USE_HELP, nil)
	case dialogue.Stale:
		h.send(chatID, MSG_STALE_ACTION, nil)
	case dialogue.Help:
		h.send(chatID, MSG_HELP, nil)
	case dialogue.Cancelled:
		h.send(chatID, MSG_CANCELLED, nil)
	case dialogue.Completed:
		h.send(chatID, fmt.Sprintf(MSG_COMPLETED, e.Total), nil)
	case dialogue.Failed:
		h.send(chatID, fmt.Sprintf(MSG_ERROR, e.Stage), nil)
	default:
		h.logger.WithField("effect", fmt.Sprintf("%T", effect)).Warn("Unhandled dialogue effect")
	}
}

func (h *ProvisioningHandler) send(chatID int64, text string, keyboard *domain.Keyboard) {
	var err error
	if keyboard != nil {
		err = h.messenger.SendMessageWithKeyboard(chatID, text, keyboard)
	} else {
		err = h.messenger.SendMessage(chatID, text)
	}

	if err != nil {
		h.logger.WithError(err).WithField("chat_id", chatID).Error("Failed to send message")
	}
}
