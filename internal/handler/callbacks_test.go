package handler

import (
	"testing"

	"vpn-assistant/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data string
		want Callback
	}{
		{"create_new_user", Callback{Action: ActionCreateUser}},
		{"show_about_me", Callback{Action: ActionAboutMe}},
		{"show_sub_link", Callback{Action: ActionSubLink}},
		{"recreate_sub_link", Callback{Action: ActionRecreate}},
		{"delete_me", Callback{Action: ActionDeleteMe}},
		{"back_to_main_menu", Callback{Action: ActionBack}},
		{"show_connections", Callback{Action: ActionShowConnections}},
		{"add_devices", Callback{Action: ActionAddDevices}},
		{"Android", Callback{Action: ActionPlatform, Platform: "Android"}},
		{"MacOS", Callback{Action: ActionPlatform, Platform: "MacOS"}},
		{"edit_connection_0", Callback{Action: ActionEditConnection, Index: 0}},
		{"edit_connection_12", Callback{Action: ActionEditConnection, Index: 12}},
		{"delete_connection_3", Callback{Action: ActionDeleteConnection, Index: 3}},
		{"change_platform_2_iOS", Callback{Action: ActionChangePlatform, Index: 2, Platform: "iOS"}},
		{"change_platform_0_linux", Callback{Action: ActionChangePlatform, Index: 0, Platform: "Linux"}},
		{"device_count_4", Callback{Action: ActionDeviceCount, Count: 4}},
		{"device_count_9", Callback{Action: ActionDeviceCount, Count: 9}},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, err := ParseCallback(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCallbackRejectsMalformedData(t *testing.T) {
	for _, data := range []string{
		"",
		"android",
		"edit_connection_",
		"edit_connection_-1",
		"edit_connection_1x",
		"delete_connection_abc",
		"change_platform_",
		"change_platform_1",
		"change_platform_x_iOS",
		"change_platform_1_Symbian",
		"device_count_",
		"device_count_three",
		"main_menu:provision",
	} {
		t.Run(data, func(t *testing.T) {
			_, err := ParseCallback(data)
			require.Error(t, err)

			var validation *domain.ValidationError
			assert.ErrorAs(t, err, &validation)
			assert.Equal(t, data, validation.Input)
		})
	}
}

func TestEncodeChangePlatformRoundTrip(t *testing.T) {
	for i, platform := range domain.Platforms {
		got, err := ParseCallback(EncodeChangePlatform(i, platform))
		require.NoError(t, err)
		assert.Equal(t, Callback{Action: ActionChangePlatform, Index: i, Platform: platform}, got)
	}
}

func TestKeyboardDataIsParseable(t *testing.T) {
	records := []domain.ClientRecord{{Email: "a"}, {Email: "b"}}

	keyboards := []*domain.Keyboard{
		deviceCountKeyboard(),
		enrollmentPlatformKeyboard(),
		changePlatformKeyboard(1),
		connectionsMenuKeyboard(),
		connectionsListKeyboard(records),
		addDevicesKeyboard(),
		accountMenuKeyboard(),
		createSubscriptionKeyboard(),
		backKeyboard(),
	}

	for _, keyboard := range keyboards {
		for _, row := range keyboard.Buttons {
			assert.LessOrEqual(t, len(row), 5)
			for _, button := range row {
				_, err := ParseCallback(button.Data)
				assert.NoError(t, err, button.Data)
				assert.LessOrEqual(t, len(button.Data), 64, "telegram limits callback data to 64 bytes")
			}
		}
	}
}
