package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/events"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil || string(msg) == "bye" {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWSDialerRoundTrip(t *testing.T) {
	srv := echoServer(t)
	sess, err := WSDialer{URL: wsURL(srv, "/ws"), Token: "tok"}.Dial(context.Background())
	require.NoError(t, err)

	require.NoError(t, sess.Send(context.Background(), []byte(`{"type":"heartbeat"}`)))
	select {
	case frame := <-sess.Inbound():
		assert.JSONEq(t, `{"type":"heartbeat"}`, string(frame))
	case <-time.After(2 * time.Second):
		t.Fatal("no echo")
	}

	require.NoError(t, sess.Close())
	<-sess.Done()
	assert.ErrorIs(t, sess.Send(context.Background(), []byte("x")), ErrTransportUnavailable)
}

func TestWSDialerRejected(t *testing.T) {
	srv := echoServer(t)
	_, err := WSDialer{URL: wsURL(srv, "/ws"), Token: "wrong"}.Dial(context.Background())
	assert.ErrorIs(t, err, ErrTransportUnavailable)
}

func TestSessionEndsWhenServerGoesAway(t *testing.T) {
	srv := echoServer(t)
	sess, err := WSDialer{URL: wsURL(srv, "/ws"), Token: "tok"}.Dial(context.Background())
	require.NoError(t, err)

	require.NoError(t, sess.Send(context.Background(), []byte("bye")))
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session still up")
	}
	_, open := <-sess.Inbound()
	assert.False(t, open)
}

func TestChangeStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bus := events.NewBus()
	r := gin.New()
	RegisterWS(r.Group("/api"), bus, nil)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/api/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// the subscription is taken after the upgrade; keep publishing until one lands
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(10 * time.Millisecond):
				bus.Publish(events.Change{Topic: events.TopicConversation, ID: "conv"})
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ch events.Change
	require.NoError(t, json.Unmarshal(msg, &ch))
	assert.Equal(t, events.TopicConversation, ch.Topic)
	assert.Equal(t, "conv", ch.ID)
}
