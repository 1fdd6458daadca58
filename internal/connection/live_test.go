package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/simviewer/internal/domain"
	"github.com/ashureev/simviewer/internal/render"
	"github.com/ashureev/simviewer/internal/source"
	"github.com/coder/websocket"
)

func containsLog(state domain.Snapshot, fragment string) bool {
	for _, l := range state.Log {
		if strings.Contains(l, fragment) {
			return true
		}
	}
	return false
}

func newLiveManager(t *testing.T, url string) *Manager {
	t.Helper()
	factory := func() (source.Source, error) {
		return source.NewLive(source.LiveConfig{URL: url, DialTimeout: time.Second}), nil
	}
	m := New(factory, render.NewBridge(0, nil), WithClock(fixedClock))
	t.Cleanup(func() { _ = m.Stop() })
	return m
}

func waitDisconnectedWith(t *testing.T, m *Manager, fragments ...string) domain.Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		state := m.State()
		if state.Status == domain.StatusDisconnected {
			all := true
			for _, f := range fragments {
				if !containsLog(state, f) {
					all = false
					break
				}
			}
			if all {
				return state
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	state := m.State()
	t.Fatalf("status = %s, log = %v; want disconnected with %v", state.Status, state.Log, fragments)
	return state
}

func TestLiveRefusedUpgradeLogsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	m := newLiveManager(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDisconnectedWith(t, m, "System: Transport error:", "System: Connection closed.")
}

func TestLiveAbruptDropLogsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_ = c.Write(r.Context(), websocket.MessageText, []byte(`{"kind":"tick","payload":{"day":2}}`))
		_ = c.CloseNow()
	}))
	defer srv.Close()

	m := newLiveManager(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	state := waitDisconnectedWith(t, m,
		"System: Connected to live engine.",
		"System: Transport error:",
		"System: Connection closed.",
	)
	if state.Day != 2 {
		t.Errorf("Expected frame before the drop to apply, day = %d", state.Day)
	}
}
