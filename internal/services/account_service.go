package services

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"vpn-assistant/internal/domain"
	"vpn-assistant/internal/remnawave"
)

// Subscriptions created by the bot never expire in practice.
var subscriptionExpiry = time.Date(2099, time.January, 1, 0, 0, 0, 0, time.UTC)

var unsafeUsernameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// AccountService manages the single Remnawave subscription of a user.
type AccountService struct {
	api    *remnawave.Client
	logger domain.Logger
}

// NewAccountService creates a new account service instance
func NewAccountService(api *remnawave.Client, logger domain.Logger) *AccountService {
	return &AccountService{
		api:    api,
		logger: logger,
	}
}

// FindSubscription returns the user's subscription or a NotFoundError
func (s *AccountService) FindSubscription(ctx context.Context, user domain.UserIdentity) (*domain.Subscription, error) {
	remote, err := s.api.UserByTelegramID(ctx, user.ID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, s.fail(user, domain.StageSubscription, err)
	}

	return toSubscription(remote), nil
}

// CreateSubscription creates an active, unlimited subscription for the user
func (s *AccountService) CreateSubscription(ctx context.Context, user domain.UserIdentity) (*domain.Subscription, error) {
	return s.createSubscription(ctx, user, "")
}

// createSubscription creates the subscription, recording description on it
// when one is given.
func (s *AccountService) createSubscription(ctx context.Context, user domain.UserIdentity, description string) (*domain.Subscription, error) {
	telegramID := user.ID

	request := remnawave.CreateUserRequest{
		Username:             subscriptionUsername(user),
		Status:               remnawave.StatusActive,
		TrafficLimitStrategy: remnawave.StrategyNoReset,
		ExpireAt:             subscriptionExpiry,
		TelegramID:           &telegramID,
	}
	if description != "" {
		request.Description = &description
	}

	remote, err := s.api.CreateUser(ctx, request)
	if err != nil {
		return nil, s.fail(user, domain.StageCreateUser, err)
	}

	s.logger.WithFields(map[string]any{
		"user_id":  user.ID,
		"username": remote.Username,
	}).Info("Subscription created")

	return toSubscription(remote), nil
}

// RecreateSubscription deletes the subscription and creates it again with
// the same profile, which issues a new subscription link. Traffic limits are
// reset to zero. There is no rollback if the create fails.
func (s *AccountService) RecreateSubscription(ctx context.Context, user domain.UserIdentity) (*domain.Subscription, error) {
	remote, err := s.api.UserByTelegramID(ctx, user.ID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, s.fail(user, domain.StageSubscription, err)
	}

	if err := s.api.DeleteUser(ctx, remote.UUID); err != nil {
		return nil, s.fail(user, domain.StageDeleteUser, err)
	}

	created, err := s.api.CreateUser(ctx, recreateRequest(remote))
	if err != nil {
		s.logger.WithFields(map[string]any{
			"user_id":  user.ID,
			"username": remote.Username,
		}).Warn("Subscription deleted but its replacement was not created")
		return nil, s.fail(user, domain.StageCreateUser, err)
	}

	s.logger.WithField("user_id", user.ID).Info("Subscription recreated")

	return toSubscription(created), nil
}

// DeleteSubscription permanently removes the user's subscription
func (s *AccountService) DeleteSubscription(ctx context.Context, user domain.UserIdentity) error {
	remote, err := s.api.UserByTelegramID(ctx, user.ID)
	if err != nil {
		if domain.IsNotFound(err) {
			return err
		}
		return s.fail(user, domain.StageSubscription, err)
	}

	if err := s.api.DeleteUser(ctx, remote.UUID); err != nil {
		return s.fail(user, domain.StageDeleteUser, err)
	}

	s.logger.WithField("user_id", user.ID).Info("Subscription deleted")
	return nil
}

// ProvisionDevice returns the user's subscription link, creating the
// subscription first when there is none. One subscription serves every
// platform; the platform it was created for is kept in its description.
func (s *AccountService) ProvisionDevice(ctx context.Context, user domain.UserIdentity, platform string) (*domain.SubscriptionInfo, error) {
	sub, err := s.FindSubscription(ctx, user)
	if domain.IsNotFound(err) {
		sub, err = s.createSubscription(ctx, user, platform)
	}
	if err != nil {
		return nil, err
	}

	return &domain.SubscriptionInfo{
		ClientID: sub.UUID,
		Label:    sub.Username,
		Platform: platform,
		URL:      sub.SubscriptionURL,
	}, nil
}

// ListClients exposes the subscription as the user's only connection
func (s *AccountService) ListClients(ctx context.Context, user domain.UserIdentity) ([]domain.ClientRecord, error) {
	sub, err := s.FindSubscription(ctx, user)
	if domain.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return []domain.ClientRecord{{
		ID:         sub.UUID,
		Email:      sub.Username,
		SubID:      sub.ShortUUID,
		Comment:    sub.Description,
		Enable:     sub.Status == remnawave.StatusActive,
		TelegramID: user.ID,
		SubURL:     sub.SubscriptionURL,
	}}, nil
}

// DeleteClient deletes the subscription the record refers to
func (s *AccountService) DeleteClient(ctx context.Context, user domain.UserIdentity, record domain.ClientRecord) error {
	if record.TelegramID != user.ID {
		return &domain.NotFoundError{What: "connection"}
	}
	return s.DeleteSubscription(ctx, user)
}

// RecreateClient issues a new subscription link for the record's owner
func (s *AccountService) RecreateClient(ctx context.Context, user domain.UserIdentity, record domain.ClientRecord, platform string) (*domain.SubscriptionInfo, error) {
	if record.TelegramID != user.ID {
		return nil, &domain.NotFoundError{What: "connection"}
	}

	sub, err := s.RecreateSubscription(ctx, user)
	if err != nil {
		return nil, err
	}

	return &domain.SubscriptionInfo{
		ClientID: sub.UUID,
		Label:    sub.Username,
		Platform: platform,
		URL:      sub.SubscriptionURL,
	}, nil
}

func (s *AccountService) fail(user domain.UserIdentity, stage string, err error) error {
	s.logger.WithError(err).WithFields(map[string]any{
		"user_id": user.ID,
		"chat_id": user.ChatID,
		"stage":   stage,
	}).Error("Remnawave operation failed")

	return &domain.ProvisioningError{Stage: stage, Err: err}
}

// recreateRequest copies the profile of an existing user into a create request
func recreateRequest(remote *remnawave.User) remnawave.CreateUserRequest {
	var zero int64
	createdAt := remote.CreatedAt

	squads := make([]string, 0, len(remote.ActiveInternalSquads))
	for _, squad := range remote.ActiveInternalSquads {
		squads = append(squads, squad.UUID)
	}

	return remnawave.CreateUserRequest{
		Username:             remote.Username,
		Status:               remote.Status,
		TrafficLimitBytes:    &zero,
		TrafficLimitStrategy: remote.TrafficLimitStrategy,
		ExpireAt:             remote.ExpireAt,
		CreatedAt:            &createdAt,
		LastTrafficResetAt:   remote.LastTrafficResetAt,
		Description:          remote.Description,
		Tag:                  remote.Tag,
		TelegramID:           remote.TelegramID,
		Email:                remote.Email,
		HwidDeviceLimit:      remote.HwidDeviceLimit,
		ActiveInternalSquads: squads,
	}
}

// subscriptionUsername derives a panel-safe username: the Telegram username
// when usable, otherwise the numeric id.
func subscriptionUsername(user domain.UserIdentity) string {
	name := unsafeUsernameChars.ReplaceAllString(user.Username, "_")
	if len(name) < 3 || len(name) > 36 {
		return "tg_" + strconv.FormatInt(user.ID, 10)
	}
	return name
}

func toSubscription(user *remnawave.User) *domain.Subscription {
	squads := make([]string, 0, len(user.ActiveInternalSquads))
	for _, squad := range user.ActiveInternalSquads {
		squads = append(squads, squad.Name)
	}

	return &domain.Subscription{
		UUID:                 user.UUID,
		ShortUUID:            user.ShortUUID,
		Username:             user.Username,
		Status:               user.Status,
		TelegramID:           deref(user.TelegramID),
		Email:                deref(user.Email),
		Description:          deref(user.Description),
		Tag:                  deref(user.Tag),
		UsedTrafficBytes:     user.UsedTrafficBytes,
		LifetimeTrafficBytes: user.LifetimeUsedTrafficBytes,
		TrafficLimitBytes:    user.TrafficLimitBytes,
		TrafficLimitStrategy: user.TrafficLimitStrategy,
		HwidDeviceLimit:      user.HwidDeviceLimit,
		InternalSquads:       squads,
		SubLastUserAgent:     deref(user.SubLastUserAgent),
		FirstConnectedAt:     user.FirstConnectedAt,
		LastTrafficResetAt:   user.LastTrafficResetAt,
		CreatedAt:            user.CreatedAt,
		ExpireAt:             user.ExpireAt,
		SubscriptionURL:      user.SubscriptionURL,
		HappCryptoLink:       user.Happ.CryptoLink,
	}
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}
