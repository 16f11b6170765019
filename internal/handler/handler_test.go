package handler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"vpn-assistant/internal/domain"
	"vpn-assistant/internal/logger"
	"vpn-assistant/internal/qr"
	"vpn-assistant/internal/services"

	"github.com/gookit/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentPhoto struct {
	response *domain.PhotoResponse
	existed  bool
}

// outbox captures everything the handlers try to send
type outbox struct {
	messages []*domain.MessageResponse
	photos   []sentPhoto
	typing   int
	photoErr error
}

func (o *outbox) texts() []string {
	texts := make([]string, 0, len(o.messages))
	for _, m := range o.messages {
		texts = append(texts, m.Text)
	}
	return texts
}

func (o *outbox) last() *domain.MessageResponse {
	if len(o.messages) == 0 {
		return nil
	}
	return o.messages[len(o.messages)-1]
}

func (o *outbox) reset() {
	o.messages = nil
	o.photos = nil
	o.typing = 0
}

type fakeBackend struct {
	records   []domain.ClientRecord
	failOn    map[int]error
	listErr   error
	calls     int
	platforms []string
	deleted   []domain.ClientRecord
	recreated []string
}

func (f *fakeBackend) ProvisionDevice(_ context.Context, user domain.UserIdentity, platform string) (*domain.SubscriptionInfo, error) {
	f.calls++
	if err := f.failOn[f.calls]; err != nil {
		return nil, err
	}

	f.platforms = append(f.platforms, platform)
	label := services.ClientLabel(user, platform, fmt.Sprintf("%012x", f.calls))
	return &domain.SubscriptionInfo{
		ClientID: fmt.Sprintf("client-%d", f.calls),
		Label:    label,
		Platform: platform,
		URL:      "https://sub.example.com/sub/" + label,
	}, nil
}

func (f *fakeBackend) ListClients(context.Context, domain.UserIdentity) ([]domain.ClientRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.ClientRecord(nil), f.records...), nil
}

func (f *fakeBackend) DeleteClient(_ context.Context, _ domain.UserIdentity, record domain.ClientRecord) error {
	f.deleted = append(f.deleted, record)
	for i, r := range f.records {
		if r.ID == record.ID {
			f.records = append(f.records[:i], f.records[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeBackend) RecreateClient(_ context.Context, user domain.UserIdentity, record domain.ClientRecord, platform string) (*domain.SubscriptionInfo, error) {
	f.recreated = append(f.recreated, record.ID+":"+platform)
	label := services.ClientLabel(user, platform, "0123456789ab")
	return &domain.SubscriptionInfo{ClientID: "new-" + record.ID, Label: label, Platform: platform, URL: "https://sub.example.com/sub/" + label}, nil
}

type fakeAccounts struct {
	sub       *domain.Subscription
	findErr   error
	created   int
	recreated int
	deleted   int
}

func (f *fakeAccounts) FindSubscription(context.Context, domain.UserIdentity) (*domain.Subscription, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.sub == nil {
		return nil, &domain.NotFoundError{What: "subscription"}
	}
	return f.sub, nil
}

func (f *fakeAccounts) CreateSubscription(_ context.Context, user domain.UserIdentity) (*domain.Subscription, error) {
	f.created++
	f.sub = &domain.Subscription{
		UUID:            "uuid-1",
		Username:        user.DisplayName(),
		Status:          "ACTIVE",
		TelegramID:      user.ID,
		SubscriptionURL: "https://panel.example.com/api/sub/abc",
	}
	return f.sub, nil
}

func (f *fakeAccounts) RecreateSubscription(context.Context, domain.UserIdentity) (*domain.Subscription, error) {
	if f.sub == nil {
		return nil, &domain.NotFoundError{What: "subscription"}
	}
	f.recreated++
	renewed := *f.sub
	renewed.SubscriptionURL = "https://panel.example.com/api/sub/renewed"
	f.sub = &renewed
	return f.sub, nil
}

func (f *fakeAccounts) DeleteSubscription(context.Context, domain.UserIdentity) error {
	if f.sub == nil {
		return &domain.NotFoundError{What: "subscription"}
	}
	f.deleted++
	f.sub = nil
	return nil
}

type harness struct {
	handler  *MessageHandler
	events   *event.Manager
	sessions *services.SessionService
	out      *outbox
	qrDir    string
}

var alice = domain.UserIdentity{ID: 42, ChatID: 42, Username: "alice"}

func newHarness(t *testing.T, backend domain.ProvisioningBackend, accounts domain.AccountBackend) *harness {
	t.Helper()

	events := event.NewManager("test")
	out := &outbox{}

	events.On(EventSendMessage, event.ListenerFunc(func(e event.Event) error {
		out.messages = append(out.messages, e.Get("response").(*domain.MessageResponse))
		return nil
	}))
	events.On(EventSendPhoto, event.ListenerFunc(func(e event.Event) error {
		response := e.Get("response").(*domain.PhotoResponse)
		_, err := os.Stat(response.Path)
		out.photos = append(out.photos, sentPhoto{response: response, existed: err == nil})
		if out.photoErr != nil {
			e.Set("error", out.photoErr)
		}
		return nil
	}))
	events.On(EventSendTyping, event.ListenerFunc(func(e event.Event) error {
		out.typing++
		return nil
	}))

	qrDir := t.TempDir()
	sessions := services.NewSessionService(time.Hour)
	renderer := qr.NewRenderer(128, qrDir, logger.NewNop())

	h := NewMessageHandler(events, backend, accounts, sessions, services.NewChatLocker(), renderer, logger.NewNop())
	h.RegisterEventListeners()

	return &harness{handler: h, events: events, sessions: sessions, out: out, qrDir: qrDir}
}

func (h *harness) text(t *testing.T, text string) {
	t.Helper()
	h.events.MustFire(EventMessageReceived, event.M{
		"event": &domain.MessageEvent{UserID: alice.ID, ChatID: alice.ChatID, Username: alice.Username, Message: text},
		"ctx":   context.Background(),
	})
}

func (h *harness) press(t *testing.T, data string) {
	t.Helper()
	h.events.MustFire(EventCallbackReceived, event.M{
		"event": &domain.CallbackEvent{UserID: alice.ID, ChatID: alice.ChatID, Username: alice.Username, Data: data},
		"ctx":   context.Background(),
	})
}

func (h *harness) state(t *testing.T) domain.SessionState {
	t.Helper()
	state, err := h.sessions.Get(context.Background(), alice.ChatID)
	require.NoError(t, err)
	return state
}

func (h *harness) leftoverQR(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(h.qrDir)
	require.NoError(t, err)
	return entries
}

func TestEnrollmentCompletesThreeDevices(t *testing.T) {
	backend := &fakeBackend{}
	h := newHarness(t, backend, nil)

	h.text(t, "/start")
	require.NotNil(t, h.out.last())
	assert.Equal(t, MSG_WELCOME, h.out.last().Text)
	assert.Equal(t, domain.StateReceiveDeviceCount{}, h.state(t))

	h.text(t, "3")
	assert.Equal(t, fmt.Sprintf(MSG_ASK_PLATFORM, 1, 3), h.out.last().Text)

	h.press(t, "Android")
	assert.Equal(t, fmt.Sprintf(MSG_ASK_PLATFORM, 2, 3), h.out.last().Text)
	assert.Equal(t, domain.StateReceiveDeviceInfo{Total: 3, Current: 2, Platforms: []string{"Android"}}, h.state(t))

	h.press(t, "iOS")
	assert.Equal(t, fmt.Sprintf(MSG_ASK_PLATFORM, 3, 3), h.out.last().Text)

	h.text(t, "windows")
	assert.Equal(t, fmt.Sprintf(MSG_COMPLETED, 3), h.out.last().Text)

	assert.Equal(t, []string{"Android", "iOS", "Windows"}, backend.platforms)
	assert.Equal(t, domain.StateStart{}, h.state(t))

	require.Len(t, h.out.photos, 3)
	for _, photo := range h.out.photos {
		assert.True(t, photo.existed, "qr file must exist while it is sent")
		assert.Equal(t, MSG_QR_CAPTION, photo.response.Caption)
	}
	assert.Empty(t, h.leftoverQR(t))

	var links int
	for _, m := range h.out.messages {
		if m.Markdown {
			links++
			assert.Contains(t, m.Text, "`https://sub.example.com/sub/alice_")
		}
	}
	assert.Equal(t, 3, links)
}

func TestEnrollmentRejectsTooManyDevices(t *testing.T) {
	h := newHarness(t, &fakeBackend{}, nil)

	h.text(t, "/start")
	h.text(t, "7")

	assert.Equal(t, fmt.Sprintf(MSG_TOO_MANY_DEVICES, domain.MaxDevices), h.out.last().Text)
	assert.Equal(t, domain.StateReceiveDeviceCount{}, h.state(t))

	h.text(t, "abc")
	assert.Equal(t, MSG_INVALID_DEVICE_COUNT, h.out.last().Text)

	h.text(t, "3")
	assert.Equal(t, fmt.Sprintf(MSG_ASK_PLATFORM, 1, 3), h.out.last().Text)
	assert.Equal(t, domain.StateReceiveDeviceInfo{Total: 3, Current: 1, Platforms: []string{}}, h.state(t))
}

func TestEnrollmentAbortsOnFailure(t *testing.T) {
	backend := &fakeBackend{failOn: map[int]error{
		2: &domain.ProvisioningError{Stage: domain.StageAddConnection, Err: errors.New("panel said no")},
	}}
	h := newHarness(t, backend, nil)

	h.text(t, "/start")
	h.press(t, "device_count_3")
	h.press(t, "Android")
	h.press(t, "iOS")

	assert.Equal(t, fmt.Sprintf(MSG_ERROR, domain.StageAddConnection), h.out.last().Text)
	assert.Equal(t, domain.StateStart{}, h.state(t))
	assert.Equal(t, []string{"Android"}, backend.platforms)
	assert.NotContains(t, h.out.texts(), fmt.Sprintf(MSG_ASK_PLATFORM, 3, 3))
	for _, text := range h.out.texts() {
		assert.NotContains(t, text, "panel said no")
	}

	h.press(t, "Linux")
	assert.Equal(t, MSG_STALE_ACTION, h.out.last().Text)
	assert.Equal(t, 2, backend.calls)
}

func TestEnrollmentFailsWhenQRCannotBeSent(t *testing.T) {
	backend := &fakeBackend{}
	h := newHarness(t, backend, nil)
	h.out.photoErr = errors.New("telegram is down")

	h.text(t, "/start")
	h.text(t, "2")
	h.press(t, "MacOS")

	assert.Equal(t, fmt.Sprintf(MSG_ERROR, domain.StageDelivery), h.out.last().Text)
	assert.Equal(t, domain.StateStart{}, h.state(t))
	assert.Empty(t, h.leftoverQR(t))
}

func TestCancelAndHelp(t *testing.T) {
	h := newHarness(t, &fakeBackend{}, nil)

	h.text(t, "/start")
	h.text(t, "2")

	h.text(t, "/help@vpn_bot")
	assert.Equal(t, MSG_HELP, h.out.last().Text)
	assert.Equal(t, domain.StateReceiveDeviceInfo{Total: 2, Current: 1, Platforms: []string{}}, h.state(t))

	h.text(t, "/cancel")
	assert.Equal(t, MSG_CANCELLED, h.out.last().Text)
	assert.Equal(t, domain.StateStart{}, h.state(t))

	h.text(t, "/unknown")
	assert.Equal(t, MSG_USE_HELP, h.out.last().Text)

	h.text(t, "hello there")
	assert.Equal(t, MSG_USE_HELP, h.out.last().Text)
}

func TestStartWelcomesBackUsersWithConnections(t *testing.T) {
	backend := &fakeBackend{records: []domain.ClientRecord{
		{ID: "a", Email: "alice_android_000000000001", Platform: "Android", SubURL: "https://sub.example.com/sub/a"},
		{ID: "b", Email: "alice_ios_000000000002", Platform: "iOS", SubURL: "https://sub.example.com/sub/b"},
	}}
	h := newHarness(t, backend, nil)

	h.text(t, "/start")
	assert.Equal(t, fmt.Sprintf(MSG_WELCOME_BACK, 2), h.out.last().Text)
	assert.Equal(t, domain.StateStart{}, h.state(t))

	h.press(t, ActionShowConnections)
	list := h.out.last()
	assert.Contains(t, list.Text, "1. alice_android_000000000001 (Android)")
	assert.Contains(t, list.Text, "2. alice_ios_000000000002 (iOS)")
	require.NotNil(t, list.Keyboard)
	assert.Equal(t, "edit_connection_1", list.Keyboard.Buttons[1][0].Data)
	assert.Equal(t, "delete_connection_1", list.Keyboard.Buttons[1][1].Data)

	h.press(t, ActionAddDevices)
	assert.Equal(t, MSG_WELCOME, h.out.last().Text)
	assert.Equal(t, domain.StateReceiveDeviceCount{}, h.state(t))
}

func TestConnectionManagement(t *testing.T) {
	records := []domain.ClientRecord{
		{ID: "a", Email: "alice_android_000000000001", Platform: "Android", SubURL: "https://sub.example.com/sub/a"},
		{ID: "b", Email: "alice_ios_000000000002", Platform: "iOS", SubURL: "https://sub.example.com/sub/b"},
	}

	t.Run("edit sends the link and offers platforms", func(t *testing.T) {
		h := newHarness(t, &fakeBackend{records: records}, nil)

		h.press(t, "edit_connection_1")

		require.Len(t, h.out.photos, 1)
		last := h.out.last()
		assert.Equal(t, fmt.Sprintf(MSG_CHOOSE_NEW_PLATFORM, "alice_ios_000000000002"), last.Text)
		require.NotNil(t, last.Keyboard)
		assert.Equal(t, "change_platform_1_Windows", last.Keyboard.Buttons[0][0].Data)
	})

	t.Run("change platform recreates the client", func(t *testing.T) {
		backend := &fakeBackend{records: records}
		h := newHarness(t, backend, nil)

		h.press(t, "change_platform_0_Linux")

		assert.Equal(t, []string{"a:Linux"}, backend.recreated)
		assert.Contains(t, h.out.texts(), fmt.Sprintf(MSG_PLATFORM_CHANGED, "Linux"))
		require.Len(t, h.out.photos, 1)
		assert.Empty(t, h.leftoverQR(t))
	})

	t.Run("delete removes the client and re-lists", func(t *testing.T) {
		backend := &fakeBackend{records: append([]domain.ClientRecord(nil), records...)}
		h := newHarness(t, backend, nil)

		h.press(t, "delete_connection_0")

		require.Len(t, backend.deleted, 1)
		assert.Equal(t, "a", backend.deleted[0].ID)
		assert.Contains(t, h.out.texts(), fmt.Sprintf(MSG_CONNECTION_DELETED, "alice_android_000000000001"))
		assert.Contains(t, h.out.last().Text, "1. alice_ios_000000000002 (iOS)")
	})

	t.Run("stale index answers not found", func(t *testing.T) {
		backend := &fakeBackend{records: records}
		h := newHarness(t, backend, nil)

		h.press(t, "delete_connection_9")

		assert.Empty(t, backend.deleted)
		assert.Contains(t, h.out.texts(), MSG_CONNECTION_NOT_FOUND)
	})

	t.Run("list failure is reported by stage", func(t *testing.T) {
		backend := &fakeBackend{listErr: &domain.ProvisioningError{Stage: domain.StageListConnections, Err: errors.New("boom")}}
		h := newHarness(t, backend, nil)

		h.press(t, ActionShowConnections)

		assert.Equal(t, fmt.Sprintf(MSG_ERROR, domain.StageListConnections), h.out.last().Text)
	})
}

func TestMalformedCallbacksAreRejected(t *testing.T) {
	h := newHarness(t, &fakeBackend{}, nil)

	for _, data := range []string{"", "edit_connection_", "edit_connection_x", "change_platform_1", "change_platform_1_BeOS", "device_count_many", "nope"} {
		h.out.reset()
		h.press(t, data)
		require.NotNil(t, h.out.last(), data)
		assert.Equal(t, MSG_INVALID_ACTION, h.out.last().Text, data)
	}

	h.out.reset()
	h.press(t, ActionAboutMe)
	assert.Equal(t, MSG_INVALID_ACTION, h.out.last().Text)
}

func TestAccountMenu(t *testing.T) {
	t.Run("existing subscription shows the menu", func(t *testing.T) {
		accounts := &fakeAccounts{sub: &domain.Subscription{Username: "alice", Status: "ACTIVE", SubscriptionURL: "https://panel.example.com/api/sub/abc"}}
		h := newHarness(t, &fakeBackend{}, accounts)

		h.text(t, "/start")

		last := h.out.last()
		assert.Equal(t, fmt.Sprintf(MSG_ACCOUNT_MENU, "alice", "ACTIVE"), last.Text)
		require.NotNil(t, last.Keyboard)
		assert.Equal(t, ActionAboutMe, last.Keyboard.Buttons[0][0].Data)
		assert.Equal(t, domain.StateStart{}, h.state(t))
	})

	t.Run("no subscription offers creation", func(t *testing.T) {
		accounts := &fakeAccounts{}
		h := newHarness(t, &fakeBackend{}, accounts)

		h.text(t, "/start")
		assert.Equal(t, MSG_NO_SUBSCRIPTION, h.out.last().Text)

		h.press(t, ActionCreateUser)
		assert.Equal(t, 1, accounts.created)
		assert.Contains(t, h.out.texts(), MSG_SUBSCRIPTION_CREATED)
		require.Len(t, h.out.photos, 1)
		assert.True(t, h.out.last().Markdown)

		h.press(t, ActionCreateUser)
		assert.Equal(t, 1, accounts.created)
		assert.Contains(t, h.out.texts(), MSG_ALREADY_SUBSCRIBED)
	})

	t.Run("profile link recreate and delete", func(t *testing.T) {
		accounts := &fakeAccounts{sub: &domain.Subscription{Username: "alice", Status: "ACTIVE", UsedTrafficBytes: 1536, LifetimeTrafficBytes: 1 << 20, SubscriptionURL: "https://panel.example.com/api/sub/abc"}}
		h := newHarness(t, &fakeBackend{}, accounts)

		h.press(t, ActionAboutMe)
		assert.True(t, h.out.last().Markdown)
		assert.Contains(t, h.out.last().Text, "1\\.5 KiB")
		assert.Contains(t, h.out.last().Text, "1\\.0 MiB")

		h.out.reset()
		h.press(t, ActionSubLink)
		require.Len(t, h.out.photos, 1)

		h.press(t, ActionRecreate)
		assert.Equal(t, 1, accounts.recreated)
		assert.Contains(t, h.out.last().Text, "renewed")

		h.press(t, ActionDeleteMe)
		assert.Equal(t, 1, accounts.deleted)
		assert.Equal(t, MSG_SUBSCRIPTION_DELETED, h.out.last().Text)

		h.press(t, ActionBack)
		assert.Equal(t, MSG_NO_SUBSCRIPTION, h.out.last().Text)
	})

	t.Run("backend failure is sanitised", func(t *testing.T) {
		accounts := &fakeAccounts{findErr: &domain.TransportError{Op: "get user", StatusCode: 500}}
		h := newHarness(t, &fakeBackend{}, accounts)

		h.text(t, "/start")

		assert.Equal(t, fmt.Sprintf(MSG_ERROR, domain.StageSubscription), h.out.last().Text)
		assert.False(t, strings.Contains(h.out.last().Text, "500"))
	})
}

func TestParseCommand(t *testing.T) {
	cases := map[string]struct {
		name string
		ok   bool
	}{
		"/start":         {"start", true},
		"/Start@vpn_bot": {"start", true},
		"  /help extra":  {"help", true},
		"/":              {"", true},
		"3":              {"", false},
		"":               {"", false},
		"hello /start":   {"", false},
	}

	for input, want := range cases {
		name, ok := parseCommand(input)
		assert.Equal(t, want.ok, ok, input)
		assert.Equal(t, want.name, name, input)
	}
}
