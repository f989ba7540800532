package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev models.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWebSocketSubscriptions(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	a := s.register(t)
	b := s.register(t)
	outsider := s.register(t)

	conn := dialWS(t, srv, a.Token)
	own := models.ParticipantSessionsTopic(a.ID)
	require.NoError(t, conn.WriteJSON(chathub.ClientFrame{Type: chathub.FrameSubscribe, Topic: own}))
	ack := readEvent(t, conn)
	assert.Equal(t, models.EventSubscribed, ack.Type)
	assert.Equal(t, own, ack.Topic)

	require.NoError(t, conn.WriteJSON(chathub.ClientFrame{Type: chathub.FrameSubscribe, Topic: models.ParticipantSessionsTopic(b.ID)}))
	assert.Equal(t, models.EventError, readEvent(t, conn).Type)

	s.do(t, http.MethodPost, "/api/queue", a.Token, nil)
	s.do(t, http.MethodPost, "/api/queue", b.Token, nil)
	w := s.do(t, http.MethodPost, "/api/match", b.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	created := readEvent(t, conn)
	require.Equal(t, models.EventSessionCreated, created.Type)
	sessionID := created.Session.ID

	msgTopic := models.SessionMessagesTopic(sessionID)
	require.NoError(t, conn.WriteJSON(chathub.ClientFrame{Type: chathub.FrameSubscribe, Topic: msgTopic}))
	assert.Equal(t, models.EventSubscribed, readEvent(t, conn).Type)

	w = s.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/messages", b.Token, map[string]string{"content": "hello"})
	require.Equal(t, http.StatusCreated, w.Code)

	ev := readEvent(t, conn)
	assert.Equal(t, models.EventMessage, ev.Type)
	assert.Equal(t, "hello", ev.Message.Content)
	assert.Equal(t, b.ID, ev.Message.SenderID)

	other := dialWS(t, srv, outsider.Token)
	require.NoError(t, other.WriteJSON(chathub.ClientFrame{Type: chathub.FrameSubscribe, Topic: msgTopic}))
	denied := readEvent(t, other)
	assert.Equal(t, models.EventError, denied.Type)
	assert.Equal(t, msgTopic, denied.Topic)
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
