package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vpn-assistant/internal/domain"
	"vpn-assistant/internal/xui"

	"github.com/google/uuid"
)

// ProvisioningService creates and manages per-device clients on a 3x-ui
// panel. Every operation logs in again, so no panel credential outlives the
// call that obtained it.
type ProvisioningService struct {
	panel      *xui.Client
	inboundID  int
	subBaseURL string
	recorder   domain.EnrollmentRecorder
	newToken   func() string
	logger     domain.Logger
}

// NewProvisioningService creates a new provisioning service instance.
// recorder may be nil when no audit database is configured.
func NewProvisioningService(panel *xui.Client, inboundID int, subBaseURL string, recorder domain.EnrollmentRecorder, logger domain.Logger) *ProvisioningService {
	return &ProvisioningService{
		panel:      panel,
		inboundID:  inboundID,
		subBaseURL: strings.TrimRight(subBaseURL, "/"),
		recorder:   recorder,
		newToken:   randomToken,
		logger:     logger,
	}
}

// ProvisionDevice creates a client for one device and returns its subscription link
func (s *ProvisioningService) ProvisionDevice(ctx context.Context, user domain.UserIdentity, platform string) (*domain.SubscriptionInfo, error) {
	session, err := s.panel.Login(ctx)
	if err != nil {
		return nil, s.fail(user, domain.StagePanel, err)
	}

	client := s.newClient(user, platform)
	return s.create(ctx, session, user, client, platform)
}

// ListClients returns the user's clients on the configured inbound
func (s *ProvisioningService) ListClients(ctx context.Context, user domain.UserIdentity) ([]domain.ClientRecord, error) {
	session, err := s.panel.Login(ctx)
	if err != nil {
		return nil, s.fail(user, domain.StagePanel, err)
	}

	clients, err := session.ClientsForUser(ctx, s.inboundID, user.ID)
	if err != nil {
		return nil, s.fail(user, domain.StageListConnections, err)
	}

	records := make([]domain.ClientRecord, 0, len(clients))
	for _, client := range clients {
		records = append(records, s.toRecord(client))
	}

	return records, nil
}

// DeleteClient removes one of the user's clients
func (s *ProvisioningService) DeleteClient(ctx context.Context, user domain.UserIdentity, record domain.ClientRecord) error {
	if record.TelegramID != user.ID {
		return &domain.NotFoundError{What: "connection"}
	}

	session, err := s.panel.Login(ctx)
	if err != nil {
		return s.fail(user, domain.StagePanel, err)
	}

	if _, err := session.DeleteClient(ctx, s.inboundID, record.ID); err != nil {
		return s.fail(user, domain.StageDeleteConnection, err)
	}

	s.logger.WithFields(map[string]any{
		"user_id": user.ID,
		"client":  record.Email,
	}).Info("Client deleted")

	return nil
}

// RecreateClient replaces a client with a fresh one for the given platform.
// Limits and expiry are carried over and traffic restarts from zero. The
// delete and the create are separate panel calls: when the create fails the
// user is left without this client.
func (s *ProvisioningService) RecreateClient(ctx context.Context, user domain.UserIdentity, record domain.ClientRecord, platform string) (*domain.SubscriptionInfo, error) {
	if record.TelegramID != user.ID {
		return nil, &domain.NotFoundError{What: "connection"}
	}

	session, err := s.panel.Login(ctx)
	if err != nil {
		return nil, s.fail(user, domain.StagePanel, err)
	}

	if _, err := session.DeleteClient(ctx, s.inboundID, record.ID); err != nil {
		return nil, s.fail(user, domain.StageDeleteConnection, err)
	}

	client := s.newClient(user, platform)
	client.LimitIP = record.LimitIP
	client.ExpiryTime = record.ExpiryTime
	client.Reset = record.Reset
	client.TotalGB = 0

	info, err := s.create(ctx, session, user, client, platform)
	if err != nil {
		s.logger.WithFields(map[string]any{
			"user_id":    user.ID,
			"old_client": record.Email,
		}).Warn("Client deleted but its replacement was not created")
		return nil, err
	}

	return info, nil
}

// Check logs in and counts the clients of the configured inbound
func (s *ProvisioningService) Check(ctx context.Context) (int, error) {
	session, err := s.panel.Login(ctx)
	if err != nil {
		return 0, err
	}

	inbound, err := session.Inbound(ctx, s.inboundID)
	if err != nil {
		return 0, err
	}

	return len(inbound.Settings.Clients), nil
}

// HasClients logs in and reports whether the inbound holds any client of telegramID
func (s *ProvisioningService) HasClients(ctx context.Context, telegramID int64) (bool, error) {
	session, err := s.panel.Login(ctx)
	if err != nil {
		return false, err
	}

	return session.HasExistingClient(ctx, s.inboundID, telegramID)
}

// create submits a client and derives its subscription link
func (s *ProvisioningService) create(ctx context.Context, session *xui.Session, user domain.UserIdentity, client xui.InboundClient, platform string) (*domain.SubscriptionInfo, error) {
	if _, err := session.AddClient(ctx, s.inboundID, client); err != nil {
		return nil, s.fail(user, domain.StageAddConnection, err)
	}

	info := &domain.SubscriptionInfo{
		ClientID: client.ID,
		Label:    client.Email,
		Platform: platform,
		URL:      s.subscriptionURL(client.SubID),
	}

	s.logger.WithFields(map[string]any{
		"user_id":  user.ID,
		"platform": platform,
		"client":   client.Email,
	}).Info("Client provisioned")

	s.record(ctx, user, info)

	return info, nil
}

// record appends the created client to the audit trail. Failures are logged only.
func (s *ProvisioningService) record(ctx context.Context, user domain.UserIdentity, info *domain.SubscriptionInfo) {
	if s.recorder == nil {
		return
	}

	err := s.recorder.Record(ctx, domain.EnrollmentEntry{
		ChatID:    user.ChatID,
		UserID:    user.ID,
		Platform:  info.Platform,
		ClientID:  info.Label,
		SubURL:    info.URL,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("client", info.Label).Warn("Failed to record enrollment")
	}
}

// newClient builds a client record with a collision-free label
func (s *ProvisioningService) newClient(user domain.UserIdentity, platform string) xui.InboundClient {
	label := ClientLabel(user, platform, s.newToken())

	return xui.InboundClient{
		ID:      uuid.NewString(),
		Email:   label,
		SubID:   label,
		Comment: fmt.Sprintf("%s (%s)", user.DisplayName(), platform),
		Flow:    xui.FlowVision,
		Enable:  true,
		TgID:    xui.TgID(user.ID),
	}
}

func (s *ProvisioningService) toRecord(client xui.InboundClient) domain.ClientRecord {
	return domain.ClientRecord{
		ID:         client.ID,
		Email:      client.Email,
		SubID:      client.SubID,
		Comment:    client.Comment,
		Flow:       client.Flow,
		Enable:     client.Enable,
		TelegramID: int64(client.TgID),
		LimitIP:    client.LimitIP,
		TotalGB:    client.TotalGB,
		ExpiryTime: client.ExpiryTime,
		Reset:      client.Reset,
		Platform:   domain.PlatformFromLabel(client.Email),
		SubURL:     s.subscriptionURL(client.SubID),
	}
}

func (s *ProvisioningService) subscriptionURL(subID string) string {
	return s.subBaseURL + "/" + subID
}

// fail logs the raw error and wraps it with the stage shown to the user
func (s *ProvisioningService) fail(user domain.UserIdentity, stage string, err error) error {
	s.logger.WithError(err).WithFields(map[string]any{
		"user_id": user.ID,
		"chat_id": user.ChatID,
		"stage":   stage,
	}).Error("Panel operation failed")

	return &domain.ProvisioningError{Stage: stage, Err: err}
}

// ClientLabel builds the <user>_<platform>_<token> identifier used as both
// email and subscription id.
func ClientLabel(user domain.UserIdentity, platform, token string) string {
	return fmt.Sprintf("%s_%s_%s", user.DisplayName(), strings.ToLower(platform), token)
}

func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
