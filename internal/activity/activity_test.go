package activity

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/providers"
	"github.com/jrfdy6/aiclone-sub001/internal/store"
)

type captureSink struct {
	mu     sync.Mutex
	events []*domain.ActivityEvent
}

func (c *captureSink) Deliver(e *domain.ActivityEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureSink) all() []*domain.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*domain.ActivityEvent, len(c.events))
	copy(out, c.events)
	return out
}

func event(userID, title string) *domain.ActivityEvent {
	return &domain.ActivityEvent{
		UserID:  userID,
		Type:    domain.ActivityResearch,
		Title:   title,
		Message: title,
	}
}

func TestBusPublishDurableAndOrdered(t *testing.T) {
	gw := store.NewGateway(store.NewMemory())
	bus := NewBus(gw, 16, nil)
	sink := &captureSink{}
	bus.Subscribe(sink)

	ctx := context.Background()
	bus.Publish(ctx, event("u1", "first"))
	bus.Publish(ctx, event("u1", "second"))
	bus.Flush()

	got := sink.all()
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Title, "per-user publish order preserved")
	assert.Equal(t, "second", got[1].Title)

	stored, err := gw.ListActivities(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, stored, 2, "events are durable before fan-out")
}

func TestBusOverflowDropsOldest(t *testing.T) {
	gw := store.NewGateway(store.NewMemory())
	bus := NewBus(gw, 3, nil)
	sink := &captureSink{}
	bus.Subscribe(sink)

	ctx := context.Background()
	for _, title := range []string{"a", "b", "c", "d"} {
		bus.Publish(ctx, event("u1", title))
	}
	assert.Equal(t, 3, bus.QueueLen("u1"), "queue never exceeds capacity")
	bus.Flush()

	got := sink.all()
	require.Len(t, got, 3)

	var titles []string
	errorEvents := 0
	for _, e := range got {
		titles = append(titles, e.Title)
		if e.Type == domain.ActivityError {
			errorEvents++
			assert.Equal(t, "Activity queue overflow", e.Title)
		}
	}
	assert.NotContains(t, titles, "a", "oldest events dropped")
	assert.NotContains(t, titles, "b")
	assert.Contains(t, titles, "d", "newest event kept")
	assert.Equal(t, 1, errorEvents)

	stored, err := gw.ListActivities(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, stored, 5, "every publish plus the overflow marker is durable")
}

func TestBusRunDrains(t *testing.T) {
	gw := store.NewGateway(store.NewMemory())
	bus := NewBus(gw, 16, nil)
	sink := &captureSink{}
	bus.Subscribe(sink)
	go bus.Run()
	defer bus.Close()

	bus.Publish(context.Background(), event("u1", "hello"))
	bus.waitSettle(2 * time.Second)

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubDeliversToUserConnections(t *testing.T) {
	hub := NewHub(time.Minute)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, hub.ServeWS(w, r, "u1"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Connections("u1") == 1 }, time.Second, 10*time.Millisecond)

	hub.Deliver(event("u1", "ping"))
	hub.Deliver(event("other-user", "not for u1"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Type    string               `json:"type"`
		Payload domain.ActivityEvent `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "connection", frame.Type, "attach is acknowledged first")
	assert.Equal(t, "u1", frame.Payload.UserID)

	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "activity", frame.Type)
	assert.Equal(t, "ping", frame.Payload.Title)
	assert.Equal(t, "u1", frame.Payload.UserID)
}

func TestHubFrameKinds(t *testing.T) {
	hub := NewHub(time.Minute)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, hub.ServeWS(w, r, "u1"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Connections("u1") == 1 }, time.Second, 10*time.Millisecond)

	automation := event("u1", "sequence advanced")
	automation.Type = domain.ActivityAutomation
	failure := event("u1", "queue overflow")
	failure.Type = domain.ActivityError
	hub.Deliver(automation)
	hub.Deliver(failure)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Type string `json:"type"`
	}
	var kinds []string
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.ReadJSON(&frame))
		kinds = append(kinds, frame.Type)
	}
	assert.Equal(t, []string{"connection", "task_update", "notification"}, kinds)
}

func TestHubDropsDisconnectedClient(t *testing.T) {
	hub := NewHub(time.Minute)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, hub.ServeWS(w, r, "u1"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Connections("u1") == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Connections("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func saveHook(t *testing.T, gw *store.Gateway, url, secret string, disableAfter int) *domain.Webhook {
	t.Helper()
	hook := &domain.Webhook{
		ID:                    "wh1",
		UserID:                "u1",
		URL:                   url,
		EventTypes:            []domain.ActivityType{domain.ActivityResearch},
		Secret:                secret,
		Active:                true,
		DisabledAfterFailures: disableAfter,
	}
	require.NoError(t, gw.SaveWebhook(context.Background(), hook))
	return hook
}

func TestDispatcherSignsAndDelivers(t *testing.T) {
	var mu sync.Mutex
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotSig = r.Header.Get("X-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	gw := store.NewGateway(store.NewMemory())
	saveHook(t, gw, srv.URL, "s3cret", 5)

	clock := &providers.FakeClock{Current: time.Now()}
	d := NewDispatcher(gw, srv.Client(), clock, time.Second, 5)
	d.Deliver(event("u1", "research done"))
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, gotBody)
	assert.Equal(t, Sign("s3cret", gotBody), gotSig)
	assert.Contains(t, string(gotBody), `"event":"research"`)

	hook, err := gw.GetWebhook(context.Background(), "u1", "wh1")
	require.NoError(t, err)
	assert.Equal(t, 0, hook.ConsecutiveFailures)
	assert.True(t, hook.Active)
}

func TestDispatcherRetriesThenDisables(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	gw := store.NewGateway(store.NewMemory())
	saveHook(t, gw, srv.URL, "", 2)

	clock := &providers.FakeClock{Current: time.Now()}
	d := NewDispatcher(gw, srv.Client(), clock, time.Second, 5)

	d.Deliver(event("u1", "first"))
	d.Wait()
	mu.Lock()
	assert.Equal(t, 5, attempts, "full retry schedule exhausted")
	mu.Unlock()

	hook, err := gw.GetWebhook(context.Background(), "u1", "wh1")
	require.NoError(t, err)
	assert.Equal(t, 1, hook.ConsecutiveFailures)
	assert.True(t, hook.Active)

	d.Deliver(event("u1", "second"))
	d.Wait()

	hook, err = gw.GetWebhook(context.Background(), "u1", "wh1")
	require.NoError(t, err)
	assert.Equal(t, 2, hook.ConsecutiveFailures)
	assert.False(t, hook.Active, "threshold reached flips the webhook off")

	// Inactive webhooks receive nothing further.
	mu.Lock()
	before := attempts
	mu.Unlock()
	d.Deliver(event("u1", "third"))
	d.Wait()
	mu.Lock()
	assert.Equal(t, before, attempts)
	mu.Unlock()
}

func TestDispatcherFiltersEventTypes(t *testing.T) {
	hits := 0
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	gw := store.NewGateway(store.NewMemory())
	saveHook(t, gw, srv.URL, "", 5) // subscribed to research only

	d := NewDispatcher(gw, srv.Client(), &providers.FakeClock{Current: time.Now()}, time.Second, 5)
	e := event("u1", "prospect found")
	e.Type = domain.ActivityProspect
	d.Deliver(e)
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, hits)
}

func TestSignDeterministic(t *testing.T) {
	body := []byte(`{"event":"research"}`)
	assert.Equal(t, Sign("k", body), Sign("k", body))
	assert.NotEqual(t, Sign("k", body), Sign("other", body))
	assert.Len(t, Sign("k", body), 64, "hex sha256")
}
