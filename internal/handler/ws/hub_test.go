package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSim/internal/domain/models"
)

func dialHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(nil)
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	return hub, conn
}

func TestHubBroadcastsTicksAndFeed(t *testing.T) {
	hub, conn := dialHub(t)
	ctx := context.Background()

	hub.OnTick(ctx, nil)
	hub.OnFeed(ctx, "run-1", nil)
	hub.OnTick(ctx, []models.TickPrint{{RunID: "run-1", AssetID: "ACME", Tick: 4, Price: 101}})
	hub.OnFeed(ctx, "run-1", []models.FeedEntry{{Text: "Day 2 opens", Kind: models.KindNeutral}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "tick", f.Type)
	assert.Equal(t, "run-1", f.RunID)
	require.Len(t, f.Prints, 1)
	assert.Equal(t, 101.0, f.Prints[0].Price)

	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "feed", f.Type)
	require.Len(t, f.Feed, 1)
	assert.Equal(t, "Day 2 opens", f.Feed[0].Text)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub, conn := dialHub(t)
	hub.Close()
	assert.Equal(t, 0, hub.Clients())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(nil)
	cl := &client{send: make(chan []byte, 1)}
	hub.clients[cl] = struct{}{}

	hub.OnFeed(context.Background(), "r", []models.FeedEntry{{Text: "a"}})
	assert.Equal(t, 1, hub.Clients())
	hub.OnFeed(context.Background(), "r", []models.FeedEntry{{Text: "b"}})
	assert.Equal(t, 0, hub.Clients())

	_, open := <-cl.send
	assert.True(t, open, "buffered frame still readable")
	_, open = <-cl.send
	assert.False(t, open)
}
