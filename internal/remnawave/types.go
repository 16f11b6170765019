package remnawave

import "time"

// User statuses and traffic strategies understood by the panel.
const (
	StatusActive = "ACTIVE"

	StrategyNoReset = "NO_RESET"
)

type Squad struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

type Happ struct {
	CryptoLink string `json:"cryptoLink"`
}

// User is a Remnawave user as returned by the users endpoints.
type User struct {
	UUID                     string     `json:"uuid"`
	ShortUUID                string     `json:"shortUuid"`
	Username                 string     `json:"username"`
	Status                   string     `json:"status"`
	UsedTrafficBytes         int64      `json:"usedTrafficBytes"`
	LifetimeUsedTrafficBytes int64      `json:"lifetimeUsedTrafficBytes"`
	TrafficLimitBytes        int64      `json:"trafficLimitBytes"`
	TrafficLimitStrategy     string     `json:"trafficLimitStrategy"`
	SubLastUserAgent         *string    `json:"subLastUserAgent"`
	FirstConnectedAt         *time.Time `json:"firstConnectedAt"`
	LastTrafficResetAt       *time.Time `json:"lastTrafficResetAt"`
	ExpireAt                 time.Time  `json:"expireAt"`
	CreatedAt                time.Time  `json:"createdAt"`
	Description              *string    `json:"description"`
	Tag                      *string    `json:"tag"`
	TelegramID               *int64     `json:"telegramId"`
	Email                    *string    `json:"email"`
	HwidDeviceLimit          *int       `json:"hwidDeviceLimit"`
	ActiveInternalSquads     []Squad    `json:"activeInternalSquads"`
	SubscriptionURL          string     `json:"subscriptionUrl"`
	Happ                     Happ       `json:"happ"`
}

// CreateUserRequest is the body of POST /api/users.
type CreateUserRequest struct {
	Username             string     `json:"username"`
	Status               string     `json:"status,omitempty"`
	TrafficLimitBytes    *int64     `json:"trafficLimitBytes,omitempty"`
	TrafficLimitStrategy string     `json:"trafficLimitStrategy,omitempty"`
	ExpireAt             time.Time  `json:"expireAt"`
	CreatedAt            *time.Time `json:"createdAt,omitempty"`
	LastTrafficResetAt   *time.Time `json:"lastTrafficResetAt,omitempty"`
	Description          *string    `json:"description,omitempty"`
	Tag                  *string    `json:"tag,omitempty"`
	TelegramID           *int64     `json:"telegramId,omitempty"`
	Email                *string    `json:"email,omitempty"`
	HwidDeviceLimit      *int       `json:"hwidDeviceLimit,omitempty"`
	ActiveInternalSquads []string   `json:"activeInternalSquads,omitempty"`
}

type envelope[T any] struct {
	Response T `json:"response"`
}

type deleteResult struct {
	IsDeleted bool `json:"isDeleted"`
}
