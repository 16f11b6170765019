package xui

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"vpn-assistant/internal/domain"
	"vpn-assistant/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inboundResponse = `{
  "success": true,
  "msg": "",
  "obj": {
    "id": 1,
    "remark": "main",
    "protocol": "vless",
    "port": 443,
    "settings": "{\"clients\":[{\"id\":\"a\",\"email\":\"42_ios_b\",\"tgId\":42,\"subId\":\"42_ios_b\",\"enable\":true},{\"id\":\"b\",\"email\":\"7_linux_x\",\"tgId\":\"7\",\"subId\":\"7_linux_x\"},{\"id\":\"c\",\"email\":\"42_android_a\",\"tgId\":\"42\",\"subId\":\"42_android_a\"},{\"id\":\"d\",\"email\":\"anon\",\"tgId\":\"\"}]}"
  }
}`

type fakePanel struct {
	t        *testing.T
	server   *httptest.Server
	requests []*http.Request
	bodies   []string
	handler  func(w http.ResponseWriter, r *http.Request)
}

func newFakePanel(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *fakePanel {
	t.Helper()

	fp := &fakePanel{t: t, handler: handler}
	fp.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fp.requests = append(fp.requests, r)
		fp.bodies = append(fp.bodies, string(body))
		fp.handler(w, r)
	}))
	t.Cleanup(fp.server.Close)

	return fp
}

func (fp *fakePanel) client(t *testing.T) *Client {
	t.Helper()

	client, err := New(fp.server.URL+"/", "admin", "secret", fp.server.Client(), logger.NewNop())
	require.NoError(t, err)
	return client
}

func loggedIn(w http.ResponseWriter, r *http.Request) bool {
	if r.URL.Path != LoginPath {
		return false
	}
	http.SetCookie(w, &http.Cookie{Name: "3x-ui", Value: "token-1"})
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"success":true}`))
	return true
}

func TestNewRejectsEmptyBaseURL(t *testing.T) {
	_, err := New("  ", "u", "p", nil, logger.NewNop())
	assert.ErrorIs(t, err, ErrEmptyBaseURL)
}

func TestLoginSendsFormAndKeepsCookie(t *testing.T) {
	fp := newFakePanel(t, func(w http.ResponseWriter, r *http.Request) {
		if loggedIn(w, r) {
			return
		}
		assert.Equal(t, "3x-ui=token-1", r.Header.Get("Cookie"))
		_, _ = w.Write([]byte(inboundResponse))
	})

	session, err := fp.client(t).Login(context.Background())
	require.NoError(t, err)

	_, err = session.Inbound(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, fp.requests, 2)
	login := fp.requests[0]
	assert.Equal(t, http.MethodPost, login.Method)
	assert.Equal(t, "application/x-www-form-urlencoded", login.Header.Get("Content-Type"))
	assert.Equal(t, "password=secret&username=admin", fp.bodies[0])
}

func TestLoginFailureSurfacesStatus(t *testing.T) {
	fp := newFakePanel(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := fp.client(t).Login(context.Background())

	var authErr *domain.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
}

func TestLoginWithoutCookieFails(t *testing.T) {
	fp := newFakePanel(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := fp.client(t).Login(context.Background())

	var authErr *domain.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.ErrorIs(t, err, domain.ErrNoSessionCookie)
}

func TestInboundDecodesNestedSettings(t *testing.T) {
	fp := newFakePanel(t, func(w http.ResponseWriter, r *http.Request) {
		if loggedIn(w, r) {
			return
		}
		assert.Equal(t, "/panel/api/inbounds/get/1", r.URL.Path)
		_, _ = w.Write([]byte(inboundResponse))
	})

	session, err := fp.client(t).Login(context.Background())
	require.NoError(t, err)

	inbound, err := session.Inbound(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "vless", inbound.Protocol)
	require.Len(t, inbound.Settings.Clients, 4)
	assert.Equal(t, TgID(42), inbound.Settings.Clients[0].TgID)
	assert.Equal(t, TgID(7), inbound.Settings.Clients[1].TgID)
	assert.Equal(t, TgID(0), inbound.Settings.Clients[3].TgID)
}

func TestClientsForUserFiltersAndSorts(t *testing.T) {
	fp := newFakePanel(t, func(w http.ResponseWriter, r *http.Request) {
		if loggedIn(w, r) {
			return
		}
		_, _ = w.Write([]byte(inboundResponse))
	})

	session, err := fp.client(t).Login(context.Background())
	require.NoError(t, err)

	clients, err := session.ClientsForUser(context.Background(), 1, 42)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "42_android_a", clients[0].Email)
	assert.Equal(t, "42_ios_b", clients[1].Email)

	exists, err := session.HasExistingClient(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = session.HasExistingClient(context.Background(), 1, 99)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAddClientEncodesSettingsAsString(t *testing.T) {
	fp := newFakePanel(t, func(w http.ResponseWriter, r *http.Request) {
		if loggedIn(w, r) {
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"msg":"Client added"}`))
	})

	session, err := fp.client(t).Login(context.Background())
	require.NoError(t, err)

	result, err := session.AddClient(context.Background(), 3, InboundClient{
		ID:     "uuid-1",
		Email:  "42_ios_abc",
		SubID:  "42_ios_abc",
		Flow:   FlowVision,
		Enable: true,
		TgID:   42,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	assert.Equal(t, AddClientPath, fp.requests[1].URL.Path)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(fp.bodies[1]), &payload))
	assert.Equal(t, float64(3), payload["id"])

	settingsString, ok := payload["settings"].(string)
	require.True(t, ok, "settings must be a JSON string")

	settings, err := DecodeSettings(settingsString)
	require.NoError(t, err)
	require.Len(t, settings.Clients, 1)
	assert.Equal(t, "42_ios_abc", settings.Clients[0].Email)
	assert.Equal(t, FlowVision, settings.Clients[0].Flow)
	assert.Equal(t, TgID(42), settings.Clients[0].TgID)
}

func TestDeleteClientPath(t *testing.T) {
	fp := newFakePanel(t, func(w http.ResponseWriter, r *http.Request) {
		if loggedIn(w, r) {
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	session, err := fp.client(t).Login(context.Background())
	require.NoError(t, err)

	_, err = session.DeleteClient(context.Background(), 1, "uuid-9")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, fp.requests[1].Method)
	assert.Equal(t, "/panel/api/inbounds/1/delClient/uuid-9", fp.requests[1].URL.Path)
	assert.Empty(t, fp.bodies[1])
}

func TestPanelErrorsBecomeTransportErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: ""},
		{name: "malformed json", status: http.StatusOK, body: "<html>"},
		{name: "rejected", status: http.StatusOK, body: `{"success":false,"msg":"Duplicate email"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fp := newFakePanel(t, func(w http.ResponseWriter, r *http.Request) {
				if loggedIn(w, r) {
					return
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			session, err := fp.client(t).Login(context.Background())
			require.NoError(t, err)

			_, err = session.AddClient(context.Background(), 1, InboundClient{ID: "x"})

			var transportErr *domain.TransportError
			require.True(t, errors.As(err, &transportErr))
			assert.Equal(t, "add client", transportErr.Op)
		})
	}
}

func TestDecodeSettingsRejectsGarbage(t *testing.T) {
	_, err := DecodeSettings("{not json")
	assert.Error(t, err)

	settings, err := DecodeSettings("")
	require.NoError(t, err)
	assert.Empty(t, settings.Clients)
}
