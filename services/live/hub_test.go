package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/testutil"
)

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntilClosed reads conn until it fails and reports the error.
func readUntilClosed(conn *websocket.Conn) <-chan error {
	errc := make(chan error, 1)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	go func() {
		for {
			// pings may still be queued ahead of the close frame
			if _, _, err := conn.ReadMessage(); err != nil {
				errc <- err
				return
			}
		}
	}()
	return errc
}

func TestHub(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := NewHub(new(testutil.Logger))
	hub.pingPeriod = 20 * time.Millisecond
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, r.URL.Query().Get("user"))
	}))
	defer srv.Close()
	defer hub.Close()

	ada1, ada2, grace := dial(t, srv, "ada"), dial(t, srv, "ada"), dial(t, srv, "grace")
	require.Eventually(t, func() bool {
		return hub.ClientCount("ada") == 2 && hub.ClientCount("grace") == 1
	}, time.Second, 5*time.Millisecond)

	hub.Publish("ada", core.Event{Type: "celebration", Payload: map[string]string{"kind": "level_up"}, At: time.Unix(0, 0).UTC()})

	for _, conn := range []*websocket.Conn{ada1, ada2} {
		var ev map[string]interface{}
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, "celebration", ev["type"])
		assert.Equal(t, map[string]interface{}{"kind": "level_up"}, ev["payload"])
	}

	t.Run("nothing leaks to other users", func(t *testing.T) {
		_ = grace.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		_, _, err := grace.ReadMessage()
		require.Error(t, err)
		var netErr interface{ Timeout() bool }
		require.ErrorAs(t, err, &netErr)
		assert.True(t, netErr.Timeout())
	})

	t.Run("client disconnect unregisters", func(t *testing.T) {
		require.NoError(t, ada2.Close())
		require.Eventually(t, func() bool { return hub.ClientCount("ada") == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("close disconnects everyone", func(t *testing.T) {
		errc := readUntilClosed(ada1)
		hub.Close()
		assert.Zero(t, hub.ClientCount("ada"))

		err := <-errc
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	})
}

func TestHub_DropsSlowConsumers(t *testing.T) {
	logger := new(testutil.Logger)
	hub := NewHub(logger)
	c := newClient("ada", nil)
	require.True(t, hub.add(c))

	for i := 0; i < sendBuffer; i++ {
		hub.Publish("ada", core.NewEvent("timer", nil))
	}
	assert.Equal(t, 1, hub.ClientCount("ada"))

	hub.Publish("ada", core.NewEvent("timer", nil))
	assert.Zero(t, hub.ClientCount("ada"))
	select {
	case <-c.done:
	default:
		t.Fatal("slow client was not closed")
	}
}

func TestHub_RefusesAfterClose(t *testing.T) {
	hub := NewHub(new(testutil.Logger))
	hub.Close()
	assert.False(t, hub.add(newClient("ada", nil)))
}

func TestHub_CloseHandshake(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := NewHub(new(testutil.Logger))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, r.URL.Query().Get("user"))
	}))
	defer srv.Close()

	var conns []*websocket.Conn
	for i := 0; i < 5; i++ {
		conns = append(conns, dial(t, srv, "ada"))
	}
	require.Eventually(t, func() bool { return hub.ClientCount("ada") == 5 }, time.Second, 5*time.Millisecond)

	var errcs []<-chan error
	for _, conn := range conns {
		errcs = append(errcs, readUntilClosed(conn))
	}
	hub.Close()
	for _, errc := range errcs {
		err := <-errc
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	}
}
