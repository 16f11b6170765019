package handler

import (
	"strconv"
	"strings"

	"vpn-assistant/internal/domain"
)

// Callback actions carried in inline button data
const (
	ActionCreateUser       = "create_new_user"
	ActionAboutMe          = "show_about_me"
	ActionSubLink          = "show_sub_link"
	ActionRecreate         = "recreate_sub_link"
	ActionDeleteMe         = "delete_me"
	ActionBack             = "back_to_main_menu"
	ActionShowConnections  = "show_connections"
	ActionAddDevices       = "add_devices"
	ActionPlatform         = "platform"
	ActionEditConnection   = "edit_connection"
	ActionChangePlatform   = "change_platform"
	ActionDeleteConnection = "delete_connection"
	ActionDeviceCount      = "device_count"
)

var fixedActions = map[string]bool{
	ActionCreateUser:      true,
	ActionAboutMe:         true,
	ActionSubLink:         true,
	ActionRecreate:        true,
	ActionDeleteMe:        true,
	ActionBack:            true,
	ActionShowConnections: true,
	ActionAddDevices:      true,
}

// Callback is parsed inline button data
type Callback struct {
	Action   string
	Index    int
	Count    int
	Platform string
}

// ParseCallback decodes button data. Anything it cannot fully understand is
// reported as a ValidationError.
func ParseCallback(data string) (Callback, error) {
	if fixedActions[data] {
		return Callback{Action: data}, nil
	}

	if platform, ok := domain.CanonicalPlatform(data); ok && platform == data {
		return Callback{Action: ActionPlatform, Platform: platform}, nil
	}

	switch {
	case strings.HasPrefix(data, ActionEditConnection+"_"):
		index, ok := parseIndex(strings.TrimPrefix(data, ActionEditConnection+"_"))
		if !ok {
			return Callback{}, invalidCallback(data, "invalid connection index")
		}
		return Callback{Action: ActionEditConnection, Index: index}, nil

	case strings.HasPrefix(data, ActionDeleteConnection+"_"):
		index, ok := parseIndex(strings.TrimPrefix(data, ActionDeleteConnection+"_"))
		if !ok {
			return Callback{}, invalidCallback(data, "invalid connection index")
		}
		return Callback{Action: ActionDeleteConnection, Index: index}, nil

	case strings.HasPrefix(data, ActionChangePlatform+"_"):
		rest := strings.TrimPrefix(data, ActionChangePlatform+"_")
		rawIndex, rawPlatform, found := strings.Cut(rest, "_")
		if !found {
			return Callback{}, invalidCallback(data, "missing platform")
		}
		index, ok := parseIndex(rawIndex)
		if !ok {
			return Callback{}, invalidCallback(data, "invalid connection index")
		}
		platform, ok := domain.CanonicalPlatform(rawPlatform)
		if !ok {
			return Callback{}, invalidCallback(data, "unknown platform")
		}
		return Callback{Action: ActionChangePlatform, Index: index, Platform: platform}, nil

	case strings.HasPrefix(data, ActionDeviceCount+"_"):
		count, err := strconv.Atoi(strings.TrimPrefix(data, ActionDeviceCount+"_"))
		if err != nil {
			return Callback{}, invalidCallback(data, "device count is not a number")
		}
		return Callback{Action: ActionDeviceCount, Count: count}, nil
	}

	return Callback{}, invalidCallback(data, "unknown action")
}

// EncodeChangePlatform builds the data of a change_platform button
func EncodeChangePlatform(index int, platform string) string {
	return ActionChangePlatform + "_" + strconv.Itoa(index) + "_" + platform
}

func parseIndex(raw string) (int, bool) {
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

func invalidCallback(data, reason string) error {
	return &domain.ValidationError{Input: data, Reason: reason}
}
