package handler

import (
	"fmt"
	"strconv"

	"vpn-assistant/internal/domain"
)

func inline(rows ...[]domain.Button) *domain.Keyboard {
	return &domain.Keyboard{Inline: true, Buttons: rows}
}

func deviceCountKeyboard() *domain.Keyboard {
	row := make([]domain.Button, 0, domain.MaxDevices)
	for n := 1; n <= domain.MaxDevices; n++ {
		row = append(row, domain.Button{Text: strconv.Itoa(n), Data: ActionDeviceCount + "_" + strconv.Itoa(n)})
	}
	return inline(row)
}

// platformKeyboard lays out platform buttons; data is built by dataFor
func platformKeyboard(dataFor func(platform string) string) *domain.Keyboard {
	var rows [][]domain.Button
	var row []domain.Button
	for _, platform := range domain.Platforms {
		row = append(row, domain.Button{Text: platform, Data: dataFor(platform)})
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return inline(rows...)
}

func enrollmentPlatformKeyboard() *domain.Keyboard {
	return platformKeyboard(func(platform string) string { return platform })
}

func changePlatformKeyboard(index int) *domain.Keyboard {
	keyboard := platformKeyboard(func(platform string) string { return EncodeChangePlatform(index, platform) })
	keyboard.Buttons = append(keyboard.Buttons, []domain.Button{{Text: BTN_BACK, Data: ActionShowConnections}})
	return keyboard
}

func connectionsMenuKeyboard() *domain.Keyboard {
	return inline(
		[]domain.Button{{Text: BTN_SHOW_CONNECTIONS, Data: ActionShowConnections}},
		[]domain.Button{{Text: BTN_ADD_DEVICES, Data: ActionAddDevices}},
	)
}

func connectionsListKeyboard(records []domain.ClientRecord) *domain.Keyboard {
	rows := make([][]domain.Button, 0, len(records)+1)
	for i, record := range records {
		rows = append(rows, []domain.Button{
			{Text: fmt.Sprintf(BTN_EDIT, record.Email), Data: ActionEditConnection + "_" + strconv.Itoa(i)},
			{Text: BTN_DELETE, Data: ActionDeleteConnection + "_" + strconv.Itoa(i)},
		})
	}
	rows = append(rows, []domain.Button{
		{Text: BTN_ADD_DEVICES, Data: ActionAddDevices},
		{Text: BTN_BACK, Data: ActionBack},
	})
	return inline(rows...)
}

func addDevicesKeyboard() *domain.Keyboard {
	return inline([]domain.Button{{Text: BTN_ADD_DEVICES, Data: ActionAddDevices}})
}

func accountMenuKeyboard() *domain.Keyboard {
	return inline(
		[]domain.Button{{Text: BTN_ABOUT_ME, Data: ActionAboutMe}},
		[]domain.Button{{Text: BTN_SUB_LINK, Data: ActionSubLink}},
		[]domain.Button{{Text: BTN_RECREATE, Data: ActionRecreate}},
		[]domain.Button{{Text: BTN_DELETE_ME, Data: ActionDeleteMe}},
	)
}

func createSubscriptionKeyboard() *domain.Keyboard {
	return inline([]domain.Button{{Text: BTN_CREATE, Data: ActionCreateUser}})
}

func backKeyboard() *domain.Keyboard {
	return inline([]domain.Button{{Text: BTN_BACK, Data: ActionBack}})
}
