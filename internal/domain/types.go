// internal/domain/types.go
package domain

import (
	"strconv"
	"strings"
	"time"
)

// Events
type MessageEvent struct {
	UserID   int64
	ChatID   int64
	Username string
	Message  string
}

type CallbackEvent struct {
	UserID   int64
	ChatID   int64
	Username string
	Data     string
}

// Responses
type MessageResponse struct {
	ChatID   int64
	Text     string
	Markdown bool
	Keyboard *Keyboard
}

type PhotoResponse struct {
	ChatID   int64
	Path     string
	Caption  string
	Markdown bool
	Keyboard *Keyboard
}

type Keyboard struct {
	Inline  bool
	Buttons [][]Button
}

type Button struct {
	Text string
	Data string
}

// UserIdentity identifies the Telegram user a request is made on behalf of.
type UserIdentity struct {
	ID       int64
	ChatID   int64
	Username string
}

// DisplayName returns the username when known and the numeric id otherwise.
func (u UserIdentity) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return strconv.FormatInt(u.ID, 10)
}

// ClientRecord is a panel-owned VPN client. The bot references it, never owns it.
type ClientRecord struct {
	ID         string
	Email      string
	SubID      string
	Comment    string
	Flow       string
	Enable     bool
	TelegramID int64
	LimitIP    int
	TotalGB    int64
	ExpiryTime int64
	Reset      int
	Platform   string
	SubURL     string
}

// SubscriptionInfo is what the user receives after a successful provisioning step.
type SubscriptionInfo struct {
	ClientID string
	Label    string
	Platform string
	URL      string
}

// Subscription is a Remnawave user subscription.
type Subscription struct {
	UUID                 string
	ShortUUID            string
	Username             string
	Status               string
	TelegramID           int64
	Email                string
	Description          string
	Tag                  string
	UsedTrafficBytes     int64
	LifetimeTrafficBytes int64
	TrafficLimitBytes    int64
	TrafficLimitStrategy string
	HwidDeviceLimit      *int
	InternalSquads       []string
	SubLastUserAgent     string
	FirstConnectedAt     *time.Time
	LastTrafficResetAt   *time.Time
	CreatedAt            time.Time
	ExpireAt             time.Time
	SubscriptionURL      string
	HappCryptoLink       string
}

// EnrollmentEntry is an audit row written for every created client.
type EnrollmentEntry struct {
	ChatID    int64
	UserID    int64
	Platform  string
	ClientID  string
	SubURL    string
	CreatedAt time.Time
}

// Platforms offered during enrollment, in keyboard order.
var Platforms = []string{
	"Windows",
	"Android",
	"Linux",
	"MacOS",
	"iOS",
}

// MaxDevices is the largest device count accepted in one enrollment.
const MaxDevices = 5

// CanonicalPlatform maps a platform name to its canonical spelling,
// ignoring case and surrounding spaces.
func CanonicalPlatform(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, platform := range Platforms {
		if strings.EqualFold(platform, name) {
			return platform, true
		}
	}
	return "", false
}

// PlatformFromLabel recovers the platform from a <user>_<platform>_<token>
// client label. Usernames may contain underscores, so the platform is the
// second to last segment.
func PlatformFromLabel(label string) string {
	parts := strings.Split(label, "_")
	if len(parts) < 3 {
		return ""
	}

	platform, ok := CanonicalPlatform(parts[len(parts)-2])
	if !ok {
		return ""
	}
	return platform
}
