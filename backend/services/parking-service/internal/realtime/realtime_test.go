package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parkinglot/backend/services/parking-service/internal/auth"
)

type fakeSubscriber struct {
	owner  string
	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed bool
}

func (f *fakeSubscriber) OwnerID() string { return f.owner }

func (f *fakeSubscriber) Send(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeSubscriber) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

type countingObserver struct {
	mu           sync.Mutex
	connected    int
	disconnected int
	dropped      int
}

func (o *countingObserver) ClientConnected() {
	o.mu.Lock()
	o.connected++
	o.mu.Unlock()
}

func (o *countingObserver) ClientDisconnected() {
	o.mu.Lock()
	o.disconnected++
	o.mu.Unlock()
}

func (o *countingObserver) EventDropped() {
	o.mu.Lock()
	o.dropped++
	o.mu.Unlock()
}

func TestHubScopesEventsPerOwner(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	a := &fakeSubscriber{owner: "a"}
	b := &fakeSubscriber{owner: "b"}
	hub.Register(a)
	hub.Register(b)

	hub.Publish(context.Background(), "a", "vehicle-entered", map[string]string{"vehicleNumber": "KA01"})

	require.Len(t, a.frames, 1)
	assert.Empty(t, b.frames)

	var msg Message
	require.NoError(t, json.Unmarshal(a.frames[0], &msg))
	assert.Equal(t, "vehicle-entered", msg.Event)
	assert.JSONEq(t, `{"vehicleNumber":"KA01"}`, string(msg.Data))
}

func TestHubDropsOnFullSubscriber(t *testing.T) {
	obs := &countingObserver{}
	hub := NewHub(obs, zap.NewNop())
	slow := &fakeSubscriber{owner: "a", full: true}
	fast := &fakeSubscriber{owner: "a"}
	hub.Register(slow)
	hub.Register(fast)

	delivered := hub.Deliver("a", []byte(`{}`))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, obs.dropped)
	assert.Equal(t, 2, obs.connected)
}

func TestHubUnregisterAndCloseAll(t *testing.T) {
	obs := &countingObserver{}
	hub := NewHub(obs, zap.NewNop())
	a := &fakeSubscriber{owner: "a"}
	b := &fakeSubscriber{owner: "a"}
	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 2, hub.ClientCount("a"))

	hub.Unregister(a)
	hub.Unregister(a)
	assert.Equal(t, 1, hub.ClientCount("a"))
	assert.Equal(t, 1, obs.disconnected)

	hub.CloseAll()
	assert.True(t, b.closed)
	assert.False(t, a.closed)
}

func TestHubPublishUnencodablePayload(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	a := &fakeSubscriber{owner: "a"}
	hub.Register(a)
	hub.Publish(context.Background(), "a", "bad", make(chan int))
	assert.Empty(t, a.frames)
}

func TestRedisBroadcasterPublishDeliversLocallyAndQueues(t *testing.T) {
	obs := &countingObserver{}
	hub := NewHub(nil, zap.NewNop())
	local := &fakeSubscriber{owner: "a"}
	hub.Register(local)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	b := NewRedisBroadcaster(client, "", hub, obs, zap.NewNop())
	b.queue = make(chan relayMessage, 1)

	b.Publish(context.Background(), "a", "vehicle-exited", map[string]int{"durationMinutes": 5})
	b.Publish(context.Background(), "a", "vehicle-exited", map[string]int{"durationMinutes": 6})

	assert.Len(t, local.frames, 2)
	assert.Len(t, b.queue, 1)
	assert.Equal(t, 1, obs.dropped)

	queued := <-b.queue
	assert.Equal(t, b.origin, queued.Origin)
	assert.Equal(t, "a", queued.OwnerID)
	assert.Equal(t, defaultChannel, b.channel)
}

func TestRedisBroadcasterHandleSkipsOwnMessages(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	local := &fakeSubscriber{owner: "a"}
	hub.Register(local)
	b := NewRedisBroadcaster(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "events", hub, nil, zap.NewNop())

	frame, err := Encode("vehicle-entered", map[string]string{"x": "y"})
	require.NoError(t, err)

	own, _ := json.Marshal(relayMessage{Origin: b.origin, OwnerID: "a", Frame: frame})
	b.handle(own)
	assert.Empty(t, local.frames)

	remote, _ := json.Marshal(relayMessage{Origin: "other-instance", OwnerID: "a", Frame: frame})
	b.handle(remote)
	require.Len(t, local.frames, 1)
	assert.JSONEq(t, string(frame), string(local.frames[0]))

	b.handle([]byte("not json"))
	assert.Len(t, local.frames, 1)
}

type stubTokens struct{}

func (stubTokens) ValidateToken(token string) (*auth.Claims, error) {
	if token == "good" {
		return &auth.Claims{UserID: "owner-1"}, nil
	}
	return nil, errors.New("bad token")
}

func TestServerRejectsMissingOrInvalidToken(t *testing.T) {
	srv := NewServer(context.Background(), NewHub(nil, zap.NewNop()), stubTokens{}, nil, time.Second, zap.NewNop())

	rec := httptest.NewRecorder()
	srv.HandleWS(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	srv.HandleWS(rec, httptest.NewRequest(http.MethodGet, "/ws?token=nope", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServerStreamsOwnerEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, zap.NewNop())
	srv := NewServer(ctx, hub, stubTokens{}, []string{"*"}, time.Second, zap.NewNop())
	httpSrv := httptest.NewServer(http.HandlerFunc(srv.HandleWS))
	defer httpSrv.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws?token=good"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount("owner-1") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), "owner-1", "vehicle-entered", map[string]string{"vehicleNumber": "KA01"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "vehicle-entered", msg.Event)

	hub.CloseAll()
	require.Eventually(t, func() bool { return hub.ClientCount("owner-1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com/"})
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://APP.example.com")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(r))

	assert.True(t, originChecker(nil)(r))
	assert.True(t, originChecker([]string{"*"})(r))
}
