package xui

import (
	"encoding/json"
	"strconv"
	"strings"
)

// InboundClient is one entry of an inbound's "clients" array as the panel stores it.
type InboundClient struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Comment    string `json:"comment"`
	Flow       string `json:"flow"`
	Enable     bool   `json:"enable"`
	TgID       TgID   `json:"tgId"`
	SubID      string `json:"subId"`
	LimitIP    int    `json:"limitIp"`
	TotalGB    int64  `json:"totalGB"`
	ExpiryTime int64  `json:"expiryTime"`
	Reset      int    `json:"reset"`
}

// Settings is the decoded form of an inbound's "settings" string.
type Settings struct {
	Clients []InboundClient `json:"clients"`
}

// Inbound is the decoded "obj" of an inbound lookup.
type Inbound struct {
	ID       int
	Remark   string
	Protocol string
	Port     int
	Settings Settings
}

// APIResult is the envelope every panel API call answers with.
type APIResult struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// TgID is a Telegram id that older panels store as a string and newer ones
// as a number.
type TgID int64

func (t TgID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(t), 10)), nil
}

func (t *TgID) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*t = 0
		return nil
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Non-numeric ids belong to no Telegram user.
		*t = 0
		return nil
	}

	*t = TgID(id)
	return nil
}
