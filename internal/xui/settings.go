package xui

import (
	"encoding/json"
	"fmt"
)

// The panel embeds inbound settings as a JSON document inside a JSON string.
// Everything below converts between that doubly encoded form and Settings.

type inboundObject struct {
	ID       int    `json:"id"`
	Remark   string `json:"remark"`
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
	Settings string `json:"settings"`
}

type addClientPayload struct {
	ID       int    `json:"id"`
	Settings string `json:"settings"`
}

// EncodeSettings serialises clients into the string form the addClient
// endpoint expects.
func EncodeSettings(clients ...InboundClient) (string, error) {
	data, err := json.Marshal(Settings{Clients: clients})
	if err != nil {
		return "", fmt.Errorf("failed to encode inbound settings: %w", err)
	}
	return string(data), nil
}

// DecodeSettings parses the inner settings document of an inbound.
func DecodeSettings(raw string) (Settings, error) {
	var settings Settings
	if raw == "" {
		return settings, nil
	}

	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return Settings{}, fmt.Errorf("failed to decode inbound settings: %w", err)
	}
	return settings, nil
}

// decodeInbound parses the "obj" of an inbound lookup, including its
// embedded settings string.
func decodeInbound(obj json.RawMessage) (*Inbound, error) {
	if len(obj) == 0 || string(obj) == "null" {
		return nil, ErrEmptyInbound
	}

	var raw inboundObject
	if err := json.Unmarshal(obj, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode inbound: %w", err)
	}

	settings, err := DecodeSettings(raw.Settings)
	if err != nil {
		return nil, err
	}

	return &Inbound{
		ID:       raw.ID,
		Remark:   raw.Remark,
		Protocol: raw.Protocol,
		Port:     raw.Port,
		Settings: settings,
	}, nil
}

// buildAddClientPayload wraps clients for the addClient endpoint.
func buildAddClientPayload(inboundID int, clients ...InboundClient) ([]byte, error) {
	settings, err := EncodeSettings(clients...)
	if err != nil {
		return nil, err
	}

	return json.Marshal(addClientPayload{
		ID:       inboundID,
		Settings: settings,
	})
}
