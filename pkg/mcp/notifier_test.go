package mcp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/diagramflow/internal/streaming"
	"github.com/rendis/diagramflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentNotification struct {
	sessionID string
	method    string
	params    map[string]any
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentNotification
	errs map[string]error // by session ID
}

func (f *fakeSender) SendNotificationToSpecificClient(sessionID, method string, params map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[sessionID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentNotification{sessionID: sessionID, method: method, params: params})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestNotifyUnboundViewIsNoop(t *testing.T) {
	fs := &fakeSender{}
	n := NewMCPNotifier(fs, NewSessionRegistry())

	require.NoError(t, n.Notify(context.Background(), "view-1", map[string]any{"level": "info"}))
	assert.Zero(t, fs.count())
}

func TestNotifyExpiredSessionIsForgotten(t *testing.T) {
	fs := &fakeSender{errs: map[string]error{"gone": server.ErrSessionNotFound}}
	sessions := NewSessionRegistry()
	sessions.Register("view-1", "gone")
	n := NewMCPNotifier(fs, sessions)

	require.NoError(t, n.Notify(context.Background(), "view-1", map[string]any{}))
	_, ok := sessions.SessionFor("view-1")
	assert.False(t, ok)
}

func TestNotifyPropagatesSendErrors(t *testing.T) {
	boom := errors.New("transport closed")
	fs := &fakeSender{errs: map[string]error{"s1": boom}}
	sessions := NewSessionRegistry()
	sessions.Register("view-1", "s1")
	n := NewMCPNotifier(fs, sessions)

	assert.ErrorIs(t, n.Notify(context.Background(), "view-1", map[string]any{}), boom)
}

func TestForwardRelaysBoundViews(t *testing.T) {
	hub := streaming.NewMemoryHub()
	fs := &fakeSender{errs: map[string]error{"broken": errors.New("write failed")}}
	sessions := NewSessionRegistry()
	sessions.Register("view-1", "s1")
	sessions.Register("view-2", "broken")
	n := NewMCPNotifier(fs, sessions)

	ctx, cancel := context.WithCancel(context.Background())
	failed := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- n.Forward(ctx, hub, func(viewID string, err error) { failed <- viewID })
	}()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, time.Millisecond)

	pub := func(ev streaming.StateEvent) {
		require.NoError(t, hub.Publish(context.Background(), ev))
	}
	pub(streaming.StateEvent{
		ViewID:    "view-1",
		Token:     "render-1",
		EventType: schema.EventRenderFailed,
		State:     schema.PipelineState{Phase: schema.PhaseFailed, Error: "Invalid Mermaid syntax"},
	})
	pub(streaming.StateEvent{ViewID: "view-2", EventType: schema.EventRenderStarted})
	pub(streaming.StateEvent{ViewID: "unbound", EventType: schema.EventRenderStarted})
	pub(streaming.StateEvent{ViewID: "view-1", EventType: schema.EventViewClosed})

	select {
	case viewID := <-failed:
		assert.Equal(t, "view-2", viewID)
	case <-time.After(time.Second):
		t.Fatal("send failure was not reported")
	}
	require.Eventually(t, func() bool {
		_, bound := sessions.SessionFor("view-1")
		return !bound
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.Len(t, fs.sent, 2)
	first := fs.sent[0]
	assert.Equal(t, "s1", first.sessionID)
	assert.Equal(t, notificationMethod, first.method)
	assert.Equal(t, "warning", first.params["level"])
	data := first.params["data"].(map[string]any)
	assert.Equal(t, "render-1", data["render_token"])
	assert.Equal(t, "failed", data["phase"])
	assert.Equal(t, schema.EventViewClosed, fs.sent[1].params["data"].(map[string]any)["event_type"])
}
