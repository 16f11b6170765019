package domain

import (
	"context"
)

// SessionStore keeps one dialogue state per chat. Unknown or expired chats
// report StateStart.
type SessionStore interface {
	Get(ctx context.Context, chatID int64) (SessionState, error)
	Set(ctx context.Context, chatID int64, state SessionState) error
	Clear(ctx context.Context, chatID int64) error
}

// EnrollmentRecorder stores an audit trail of created clients.
type EnrollmentRecorder interface {
	Record(ctx context.Context, entry EnrollmentEntry) error
}

// ProvisioningBackend is the capability set the dialogue layer needs from a
// VPN panel.
type ProvisioningBackend interface {
	ProvisionDevice(ctx context.Context, user UserIdentity, platform string) (*SubscriptionInfo, error)
	ListClients(ctx context.Context, user UserIdentity) ([]ClientRecord, error)
	DeleteClient(ctx context.Context, user UserIdentity, record ClientRecord) error
	RecreateClient(ctx context.Context, user UserIdentity, record ClientRecord, platform string) (*SubscriptionInfo, error)
}

// AccountBackend manages a single subscription per user.
type AccountBackend interface {
	FindSubscription(ctx context.Context, user UserIdentity) (*Subscription, error)
	CreateSubscription(ctx context.Context, user UserIdentity) (*Subscription, error)
	RecreateSubscription(ctx context.Context, user UserIdentity) (*Subscription, error)
	DeleteSubscription(ctx context.Context, user UserIdentity) error
}
