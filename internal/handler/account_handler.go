package handler

import (
	"context"
	"fmt"

	"vpn-assistant/internal/domain"
)

// AccountHandler serves the one-subscription-per-user flow. It keeps no
// dialogue state: every action asks the backend whether a subscription
// exists.
type AccountHandler struct {
	accounts  domain.AccountBackend
	presenter *Presenter
	messenger *Messenger
	logger    domain.Logger
}

// NewAccountHandler creates a new account handler instance
func NewAccountHandler(accounts domain.AccountBackend, presenter *Presenter, messenger *Messenger, logger domain.Logger) *AccountHandler {
	return &AccountHandler{
		accounts:  accounts,
		presenter: presenter,
		messenger: messenger,
		logger:    logger,
	}
}

// HandleStart shows the account menu, or the creation prompt when the user
// has no subscription
func (h *AccountHandler) HandleStart(ctx context.Context, user domain.UserIdentity) {
	sub, ok := h.find(ctx, user, "start")
	if !ok {
		return
	}

	h.sendMenu(user, sub)
}

// HandleCreate creates a subscription and delivers its link
func (h *AccountHandler) HandleCreate(ctx context.Context, user domain.UserIdentity) {
	existing, err := h.accounts.FindSubscription(ctx, user)
	switch {
	case err == nil:
		h.send(user.ChatID, MSG_ALREADY_SUBSCRIBED, nil)
		h.sendMenu(user, existing)
		return
	case !domain.IsNotFound(err):
		h.fail(user, "create subscription", err, domain.StageSubscription)
		return
	}

	h.messenger.SendTypingIndicator(user.ChatID)

	sub, err := h.accounts.CreateSubscription(ctx, user)
	if err != nil {
		h.fail(user, "create subscription", err, domain.StageCreateUser)
		return
	}

	h.send(user.ChatID, MSG_SUBSCRIPTION_CREATED, nil)
	h.deliver(user, "create subscription", sub)
}

// HandleAboutMe shows the subscription profile
func (h *AccountHandler) HandleAboutMe(ctx context.Context, user domain.UserIdentity) {
	sub, ok := h.find(ctx, user, "show profile")
	if !ok {
		return
	}

	if err := h.messenger.SendMarkdown(user.ChatID, FormatProfile(sub), backKeyboard()); err != nil {
		h.logger.WithError(err).WithField("chat_id", user.ChatID).Error("Failed to send profile")
	}
}

// HandleSubLink delivers the subscription link and its QR code
func (h *AccountHandler) HandleSubLink(ctx context.Context, user domain.UserIdentity) {
	sub, ok := h.find(ctx, user, "show link")
	if !ok {
		return
	}

	h.deliver(user, "show link", sub)
}

// HandleRecreate renews the subscription link
func (h *AccountHandler) HandleRecreate(ctx context.Context, user domain.UserIdentity) {
	h.messenger.SendTypingIndicator(user.ChatID)

	sub, err := h.accounts.RecreateSubscription(ctx, user)
	if err != nil {
		if domain.IsNotFound(err) {
			h.send(user.ChatID, MSG_NO_SUBSCRIPTION, createSubscriptionKeyboard())
			return
		}
		h.fail(user, "recreate subscription", err, domain.StageCreateUser)
		return
	}

	h.send(user.ChatID, MSG_SUBSCRIPTION_RECREATED, nil)
	h.deliver(user, "recreate subscription", sub)
}

// HandleDelete removes the subscription. There is no confirmation step.
func (h *AccountHandler) HandleDelete(ctx context.Context, user domain.UserIdentity) {
	err := h.accounts.DeleteSubscription(ctx, user)
	switch {
	case domain.IsNotFound(err):
		h.send(user.ChatID, MSG_NO_SUBSCRIPTION, createSubscriptionKeyboard())
	case err != nil:
		h.fail(user, "delete subscription", err, domain.StageDeleteUser)
	default:
		h.logger.WithField("user_id", user.ID).Info("User deleted their subscription")
		h.send(user.ChatID, MSG_SUBSCRIPTION_DELETED, createSubscriptionKeyboard())
	}
}

// find loads the subscription and answers the user itself when there is none
func (h *AccountHandler) find(ctx context.Context, user domain.UserIdentity, operation string) (*domain.Subscription, bool) {
	sub, err := h.accounts.FindSubscription(ctx, user)
	switch {
	case domain.IsNotFound(err):
		h.send(user.ChatID, MSG_NO_SUBSCRIPTION, createSubscriptionKeyboard())
		return nil, false
	case err != nil:
		h.fail(user, operation, err, domain.StageSubscription)
		return nil, false
	}
	return sub, true
}

func (h *AccountHandler) deliver(user domain.UserIdentity, operation string, sub *domain.Subscription) {
	if err := h.presenter.Deliver(user.ChatID, sub.Username, sub.SubscriptionURL, backKeyboard()); err != nil {
		h.fail(user, operation, err, domain.StageDelivery)
	}
}

func (h *AccountHandler) sendMenu(user domain.UserIdentity, sub *domain.Subscription) {
	h.send(user.ChatID, fmt.Sprintf(MSG_ACCOUNT_MENU, user.DisplayName(), sub.Status), accountMenuKeyboard())
}

func (h *AccountHandler) fail(user domain.UserIdentity, operation string, err error, stage string) {
	h.logger.WithError(err).WithFields(map[string]any{
		"chat_id":   user.ChatID,
		"user_id":   user.ID,
		"operation": operation,
	}).Error("Account operation failed")

	h.send(user.ChatID, failureText(err, stage), nil)
}

func (h *AccountHandler) send(chatID int64, text string, keyboard *domain.Keyboard) {
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
