package domain

import "time"

// Session state names, also used as the persisted state tag.
const (
	StateNameStart              = "start"
	StateNameReceiveDeviceCount = "receive_device_count"
	StateNameReceiveDeviceInfo  = "receive_device_info"
)

// SessionState is the tagged dialogue state of one chat. The set of
// implementations is closed: StateStart, StateReceiveDeviceCount and
// StateReceiveDeviceInfo.
type SessionState interface {
	Name() string
	sessionState()
}

type StateStart struct{}

type StateReceiveDeviceCount struct{}

// StateReceiveDeviceInfo tracks an enrollment in progress. Current is 1-based
// and Platforms holds the platforms already provisioned, so
// len(Platforms) == Current-1.
type StateReceiveDeviceInfo struct {
	Total     int
	Current   int
	Platforms []string
}

func (StateStart) Name() string              { return StateNameStart }
func (StateReceiveDeviceCount) Name() string { return StateNameReceiveDeviceCount }
func (StateReceiveDeviceInfo) Name() string  { return StateNameReceiveDeviceInfo }

func (StateStart) sessionState()              {}
func (StateReceiveDeviceCount) sessionState() {}
func (StateReceiveDeviceInfo) sessionState()  {}

// Session is a stored dialogue state with its bookkeeping timestamps.
type Session struct {
	ChatID    int64
	State     SessionState
	CreatedAt time.Time
	UpdatedAt time.Time
}
