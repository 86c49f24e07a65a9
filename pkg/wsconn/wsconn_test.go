package wsconn

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendQueuesUntilBufferFull(t *testing.T) {
	c := New(nil, WithSendBuffer(2))

	require.NoError(t, c.Send(map[string]int{"a": 1}))
	require.NoError(t, c.Send(map[string]int{"a": 2}))
	assert.ErrorIs(t, c.Send(map[string]int{"a": 3}), ErrBufferFull)

	assert.JSONEq(t, `{"a":1}`, string(<-c.Outbox()))
}

func TestSendAfterClose(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Send("x"), ErrClosed)
	_, open := <-c.Done()
	assert.False(t, open)
}

func TestWritePumpDelivers(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := New(ws, WithPingInterval(50*time.Millisecond))
		go c.WritePump()
		c.Send(map[string]string{"type": "hello"})
		var in map[string]string
		c.ReadJSON(&in)
		c.Close()
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()

	var out map[string]string
	require.NoError(t, ws.ReadJSON(&out))
	assert.Equal(t, "hello", out["type"])
	require.NoError(t, ws.WriteJSON(map[string]string{"type": "bye"}))
}

func TestCloseWithCodeFlushesQueue(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := New(ws)
		c.Send(map[string]string{"type": "error"})
		c.CloseWithCode(websocket.ClosePolicyViolation, "go away")
		c.WritePump()
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))

	var out map[string]string
	require.NoError(t, ws.ReadJSON(&out))
	assert.Equal(t, "error", out["type"])

	_, _, err = ws.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, "go away", closeErr.Text)
}

func TestCloseWithCodeWithoutSocket(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.CloseWithCode(websocket.CloseNormalClosure, ""))

	_, open := <-c.Done()
	assert.False(t, open)
	assert.ErrorIs(t, c.Send("x"), ErrClosed)
}
