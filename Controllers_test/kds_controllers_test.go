package Controllers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/pos-integrity/config"
	"github.com/yeremiapane/pos-integrity/kds"
	"github.com/yeremiapane/pos-integrity/utils"
)

func TestWebSocket_ReceivesTableUpdates(t *testing.T) {
	s := newTestServer(t, config.ReconcileConfig{})
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + s.staff
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	createTable(t, s, 4)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg kds.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, kds.EventTableUpdate, msg.Event)
}

func TestWebSocket_RequiresToken(t *testing.T) {
	s := newTestServer(t, config.ReconcileConfig{})
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_OtherTenantSeesNothing(t *testing.T) {
	s := newTestServer(t, config.ReconcileConfig{})
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	outsider, err := utils.GenerateToken(3, 2, kds.RoleStaff, time.Hour)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + outsider
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	createTable(t, s, 4)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
