package integration

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chatroom/internal/app"
	"chatroom/internal/config"
	"chatroom/pkg/types"
)

const waitTimeout = 3 * time.Second

// frame is a decoded server event with its payload left raw.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// testClient is a websocket chat client that queues every frame it reads.
type testClient struct {
	t      *testing.T
	ID     string
	conn   *websocket.Conn
	frames chan frame
}

type testServer struct {
	app *app.Application
	srv *httptest.Server
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "chat.db")
	cfg.Logging.Level = "error"

	application, err := app.NewApplication(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, application.Hub().Start(context.Background()))

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
		srv.Close()
	})
	return &testServer{app: application, srv: srv}
}

func (s *testServer) dial(t *testing.T) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	c := &testClient{t: t, conn: conn, frames: make(chan frame, 256)}
	go c.readLoop()
	t.Cleanup(func() { _ = conn.Close() })

	var connected types.ConnectedPayload
	c.expect(types.EventConnected, &connected)
	require.NotEmpty(t, connected.ID)
	c.ID = connected.ID
	return c
}

func (c *testClient) readLoop() {
	defer close(c.frames)
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}
		c.frames <- f
	}
}

func (c *testClient) send(eventType string, data interface{}) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(map[string]interface{}{"type": eventType, "data": data}))
}

// expect skips frames until one of eventType arrives and decodes it into v.
func (c *testClient) expect(eventType string, v interface{}) {
	c.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case f, ok := <-c.frames:
			require.True(c.t, ok, "connection closed waiting for %s", eventType)
			if f.Type != eventType {
				continue
			}
			if v != nil {
				require.NoError(c.t, json.Unmarshal(f.Data, v))
			}
			return
		case <-deadline:
			c.t.Fatalf("timed out waiting for %s", eventType)
		}
	}
}

// expectMessage waits for the next chat-message.
func (c *testClient) expectMessage() types.Message {
	c.t.Helper()
	var msg types.Message
	c.expect(types.EventChatMessage, &msg)
	return msg
}

func (c *testClient) join(nickname string) {
	c.t.Helper()
	c.send(types.EventJoin, types.JoinRequest{Nickname: nickname})
	c.expect(types.EventOnlineUsers, nil)
}
