package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

type chanBus struct {
	mu   sync.Mutex
	subs map[string]chan domain.Message
}

func newChanBus() *chanBus { return &chanBus{subs: map[string]chan domain.Message{}} }

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }

func (b *chanBus) Subscribe(_ context.Context, pattern string) (<-chan domain.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan domain.Message, 8)
	b.subs[pattern] = ch
	return ch, nil
}

func (b *chanBus) feed(pattern string, msg domain.Message) bool {
	b.mu.Lock()
	ch, ok := b.subs[pattern]
	b.mu.Unlock()
	if ok {
		ch <- msg
	}
	return ok
}

func startHub(t *testing.T) (*Hub, *chanBus, string) {
	t.Helper()
	bus := newChanBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "Server", Account: "0xabc"})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, bus, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

type envelope struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

func readJSON(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, typ)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestJSONClientReceivesFundingEvents(t *testing.T) {
	hub, bus, url := startHub(t)
	conn := dial(t, url+"?format=json")

	status := readJSON(t, conn)
	assert.Equal(t, StatusChannel, status.Channel)
	assert.Contains(t, string(status.Payload), `"mode":"server"`)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	pattern := domain.FundingChannelPrefix + "*"
	require.Eventually(t, func() bool {
		return bus.feed(pattern, domain.Message{
			Channel: domain.FundingChannel("0xAA"),
			Payload: []byte(`{"status":"loading"}`),
		})
	}, 2*time.Second, 10*time.Millisecond)

	got := readJSON(t, conn)
	assert.Equal(t, "ch:funding:0xaa", got.Channel)
	assert.JSONEq(t, `{"status":"loading"}`, string(got.Payload))
}

func TestBinaryClientReceivesStructFrames(t *testing.T) {
	_, _, url := startHub(t)
	conn := dial(t, url)

	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, typ)

	var s structpb.Struct
	require.NoError(t, proto.Unmarshal(data, &s))
	assert.Equal(t, StatusChannel, s.Fields["channel"].GetStringValue())
	assert.Equal(t, "0xabc", s.Fields["payload"].GetStructValue().Fields["account"].GetStringValue())
}

func TestEncodeNonJSONPayload(t *testing.T) {
	msg := domain.Message{Channel: "ch:market:0x1", Payload: []byte("plain")}

	frame, err := encodeJSON(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel":"ch:market:0x1","payload":"plain"}`, string(frame))

	bin, err := encodeProto(msg)
	require.NoError(t, err)
	var s structpb.Struct
	require.NoError(t, proto.Unmarshal(bin, &s))
	assert.Equal(t, "plain", s.Fields["payload"].GetStringValue())
}

func TestSubscriptions(t *testing.T) {
	c := &client{subs: map[string]bool{domain.FundingChannelPrefix + "*": true}}
	assert.True(t, c.isSubscribed("ch:funding:0xaa"))
	assert.False(t, c.isSubscribed("ch:market:0xaa"))

	c.handleSubscription(subscribeMsg{Action: "only", Channels: []string{"ch:market:0xAA"}})
	assert.False(t, c.isSubscribed("ch:funding:0xaa"))
	assert.True(t, c.isSubscribed("ch:market:0xaa"))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"ch:market:0xaa"}})
	assert.False(t, c.isSubscribed("ch:market:0xaa"))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"ch:market:*"}})
	assert.True(t, c.isSubscribed("ch:market:0xbb"))
}
