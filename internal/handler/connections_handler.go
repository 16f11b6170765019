package handler

import (
	"context"
	"fmt"

	"vpn-assistant/internal/dialogue"
	"vpn-assistant/internal/domain"
)

// ConnectionsHandler lets users with existing clients list, re-platform and
// delete them. Connections are addressed by their position in the sorted
// list, which is fetched again for every action.
type ConnectionsHandler struct {
	backend      domain.ProvisioningBackend
	sessions     domain.SessionStore
	provisioning *ProvisioningHandler
	presenter    *Presenter
	messenger    *Messenger
	logger       domain.Logger
}

// NewConnectionsHandler creates a new connections handler instance
func NewConnectionsHandler(
	backend domain.ProvisioningBackend,
	sessions domain.SessionStore,
	provisioning *ProvisioningHandler,
	presenter *Presenter,
	messenger *Messenger,
	logger domain.Logger,
) *ConnectionsHandler {
	return &ConnectionsHandler{
		backend:      backend,
		sessions:     sessions,
		provisioning: provisioning,
		presenter:    presenter,
		messenger:    messenger,
		logger:       logger,
	}
}

// HandleStart greets returning users with their connections menu and starts
// enrollment for everyone else.
func (h *ConnectionsHandler) HandleStart(ctx context.Context, user domain.UserIdentity) {
	records, err := h.backend.ListClients(ctx, user)
	if err != nil {
		h.fail(user, "list connections", err, domain.StageListConnections)
		return
	}

	if len(records) == 0 {
		h.provisioning.Apply(ctx, user, dialogue.StartCommand{})
		return
	}

	h.resetDialogue(ctx, user)
	h.send(user.ChatID, fmt.Sprintf(MSG_WELCOME_BACK, len(records)), connectionsMenuKeyboard())
}

// ShowMenu re-sends the connections menu
func (h *ConnectionsHandler) ShowMenu(ctx context.Context, user domain.UserIdentity) {
	records, err := h.backend.ListClients(ctx, user)
	if err != nil {
		h.fail(user, "list connections", err, domain.StageListConnections)
		return
	}

	if len(records) == 0 {
		h.send(user.ChatID, MSG_NO_CONNECTIONS, addDevicesKeyboard())
		return
	}

	h.send(user.ChatID, fmt.Sprintf(MSG_WELCOME_BACK, len(records)), connectionsMenuKeyboard())
}

// HandleList shows every connection with edit and delete buttons
func (h *ConnectionsHandler) HandleList(ctx context.Context, user domain.UserIdentity) {
	records, err := h.backend.ListClients(ctx, user)
	if err != nil {
		h.fail(user, "list connections", err, domain.StageListConnections)
		return
	}

	h.sendList(user.ChatID, records)
}

// HandleEdit sends the link of one connection and offers a platform change
func (h *ConnectionsHandler) HandleEdit(ctx context.Context, user domain.UserIdentity, index int) {
	record, records, err := h.lookup(ctx, user, index)
	if err != nil {
		h.notFoundOrFail(user, "edit connection", err, records)
		return
	}

	if err := h.presenter.Deliver(user.ChatID, record.Email, record.SubURL, nil); err != nil {
		h.fail(user, "edit connection", err, domain.StageDelivery)
		return
	}

	h.send(user.ChatID, fmt.Sprintf(MSG_CHOOSE_NEW_PLATFORM, record.Email), changePlatformKeyboard(index))
}

// HandleChangePlatform recreates a connection for a different platform
func (h *ConnectionsHandler) HandleChangePlatform(ctx context.Context, user domain.UserIdentity, index int, platform string) {
	record, records, err := h.lookup(ctx, user, index)
	if err != nil {
		h.notFoundOrFail(user, "change platform", err, records)
		return
	}

	h.messenger.SendTypingIndicator(user.ChatID)

	info, err := h.backend.RecreateClient(ctx, user, record, platform)
	if err != nil {
		h.fail(user, "change platform", err, domain.StageAddConnection)
		return
	}

	h.send(user.ChatID, fmt.Sprintf(MSG_PLATFORM_CHANGED, platform), nil)

	if err := h.presenter.Deliver(user.ChatID, info.Label, info.URL, connectionsMenuKeyboard()); err != nil {
		h.fail(user, "change platform", err, domain.StageDelivery)
	}
}

// HandleDelete removes a connection and shows the remaining ones
func (h *ConnectionsHandler) HandleDelete(ctx context.Context, user domain.UserIdentity, index int) {
	record, records, err := h.lookup(ctx, user, index)
	if err != nil {
		h.notFoundOrFail(user, "delete connection", err, records)
		return
	}

	if err := h.backend.DeleteClient(ctx, user, record); err != nil {
		h.fail(user, "delete connection", err, domain.StageDeleteConnection)
		return
	}

	h.send(user.ChatID, fmt.Sprintf(MSG_CONNECTION_DELETED, record.Email), nil)
	h.HandleList(ctx, user)
}

// lookup resolves a list position against the current backend state
func (h *ConnectionsHandler) lookup(ctx context.Context, user domain.UserIdentity, index int) (domain.ClientRecord, []domain.ClientRecord, error) {
	records, err := h.backend.ListClients(ctx, user)
	if err != nil {
		return domain.ClientRecord{}, nil, err
	}

	if index < 0 || index >= len(records) {
		return domain.ClientRecord{}, records, &domain.NotFoundError{What: "connection"}
	}

	return records[index], records, nil
}

func (h *ConnectionsHandler) sendList(chatID int64, records []domain.ClientRecord) {
	if len(records) == 0 {
		h.send(chatID, MSG_NO_CONNECTIONS, addDevicesKeyboard())
		return
	}
	h.send(chatID, FormatConnections(records), connectionsListKeyboard(records))
}

// notFoundOrFail answers a stale index with the fresh list, anything else
// as a failure
func (h *ConnectionsHandler) notFoundOrFail(user domain.UserIdentity, operation string, err error, records []domain.ClientRecord) {
	if !domain.IsNotFound(err) {
		h.fail(user, operation, err, domain.StageListConnections)
		return
	}

	h.logger.WithFields(map[string]any{
		"chat_id":   user.ChatID,
		"user_id":   user.ID,
		"operation": operation,
	}).Warn("Connection not found")

	h.send(user.ChatID, MSG_CONNECTION_NOT_FOUND, nil)
	h.sendList(user.ChatID, records)
}

func (h *ConnectionsHandler) fail(user domain.UserIdentity, operation string, err error, stage string) {
	h.logger.WithError(err).WithFields(map[string]any{
		"chat_id":   user.ChatID,
		"user_id":   user.ID,
		"operation": operation,
	}).Error("Connection operation failed")

	h.resetDialogue(context.Background(), user)
	h.send(user.ChatID, failureText(err, stage), nil)
}

func (h *ConnectionsHandler) resetDialogue(ctx context.Context, user domain.UserIdentity) {
	if err := h.sessions.Clear(ctx, user.ChatID); err != nil {
		h.logger.WithError(err).WithField("chat_id", user.ChatID).Warn("Failed to clear session")
	}
}

func (h *ConnectionsHandler) send(chatID int64, text string, keyboard *domain.Keyboard) {
	h.provisioning.send(chatID, text, keyboard)
}
