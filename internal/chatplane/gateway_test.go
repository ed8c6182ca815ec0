package chatplane

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func signTestToken(t *testing.T, secret []byte, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": userID})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func dialGateway(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestGateway_RejectsOversizeFrameWithTooLargeError(t *testing.T) {
	s := newTestStore(t)
	secret := []byte("test-secret")
	gw := NewGateway(s, nil, nil, secret)
	server := httptest.NewServer(gw)
	defer server.Close()

	conn := dialGateway(t, server, signTestToken(t, secret, "u1"))
	defer conn.Close()

	oversized := strings.Repeat("x", maxFrameBytes+1024)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "message", "chatId": "c1", "text": oversized}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame outboundFrame
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "error", frame.Type)
	payload, ok := frame.Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "too_large", payload["code"])
}

func TestGateway_AcceptsFrameAtLimit(t *testing.T) {
	s := newTestStore(t)
	secret := []byte("test-secret")
	chat := seedChat(t, s, "u1", "u2")
	gw := NewGateway(s, nil, nil, secret)
	server := httptest.NewServer(gw)
	defer server.Close()

	conn := dialGateway(t, server, signTestToken(t, secret, "u1"))
	defer conn.Close()

	prefix := `{"type":"join","chatId":"` + chat.ID + `","pad":"`
	suffix := `"}`
	atLimit := prefix + strings.Repeat("x", maxFrameBytes-len(prefix)-len(suffix)) + suffix
	require.Len(t, atLimit, maxFrameBytes)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(atLimit)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame outboundFrame
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "history", frame.Type)
}
