package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/simviewer/internal/domain"
	"github.com/ashureev/simviewer/internal/protocol"
	"github.com/coder/websocket"
)

type callback struct {
	kind string
	data string
	err  error
}

// chanHandler records callbacks in delivery order.
type chanHandler struct {
	events chan callback
}

func newChanHandler() *chanHandler {
	return &chanHandler{events: make(chan callback, 64)}
}

func (h *chanHandler) OnOpen() { h.events <- callback{kind: "open"} }
func (h *chanHandler) OnMessage(raw []byte) { h.events <- callback{kind: "message", data: string(raw)} }
func (h *chanHandler) OnError(err error) { h.events <- callback{kind: "error", err: err} }
func (h *chanHandler) OnClose(err error) { h.events <- callback{kind: "close", err: err} }

func (h *chanHandler) next(t *testing.T) callback {
	t.Helper()
	select {
	case cb := <-h.events:
		return cb
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for callback")
		return callback{}
	}
}

func (h *chanHandler) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case cb := <-h.events:
		t.Fatalf("unexpected callback %+v", cb)
	case <-time.After(wait):
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestLiveDeliversTextFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"kind":"tick"}`))
		_ = c.Write(ctx, websocket.MessageBinary, []byte{0x01})
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"kind":"move"}`))
		_ = c.Close(websocket.StatusNormalClosure, "done")
	}))
	defer srv.Close()

	live := NewLive(LiveConfig{URL: wsURL(srv)})
	h := newChanHandler()
	if err := live.Open(context.Background(), h); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	want := []callback{
		{kind: "open"},
		{kind: "message", data: `{"kind":"tick"}`},
		{kind: "message", data: `{"kind":"move"}`},
		{kind: "close"},
	}
	for i, w := range want {
		got := h.next(t)
		if got.kind != w.kind || got.data != w.data || got.err != nil {
			t.Fatalf("callback %d = %+v, want %+v", i, got, w)
		}
	}
	h.expectNone(t, 50*time.Millisecond)
}

func TestLiveDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	live := NewLive(LiveConfig{URL: wsURL(srv), DialTimeout: time.Second})
	h := newChanHandler()
	if err := live.Open(context.Background(), h); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got := h.next(t); got.kind != "error" || got.err == nil {
		t.Fatalf("expected error callback, got %+v", got)
	}
	if got := h.next(t); got.kind != "close" || got.err == nil {
		t.Fatalf("expected close with error, got %+v", got)
	}
}

func TestLiveAbruptDropReportsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_ = c.Write(r.Context(), websocket.MessageText, []byte(`{"kind":"tick"}`))
		_ = c.CloseNow()
	}))
	defer srv.Close()

	live := NewLive(LiveConfig{URL: wsURL(srv)})
	h := newChanHandler()
	if err := live.Open(context.Background(), h); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	for i, kind := range []string{"open", "message"} {
		if got := h.next(t); got.kind != kind {
			t.Fatalf("callback %d = %+v, want %s", i, got, kind)
		}
	}
	if got := h.next(t); got.kind != "error" || got.err == nil {
		t.Fatalf("expected error callback, got %+v", got)
	}
	if got := h.next(t); got.kind != "close" || got.err == nil {
		t.Fatalf("expected close with error, got %+v", got)
	}
}

func TestLiveCloseDuringDialIsClean(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	live := NewLive(LiveConfig{URL: wsURL(srv), DialTimeout: 5 * time.Second})
	h := newChanHandler()
	if err := live.Open(context.Background(), h); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := live.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := h.next(t); got.kind != "close" || got.err != nil {
		t.Fatalf("expected clean close, got %+v", got)
	}
}

func TestLiveSendAndClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		typ, data, err := c.Read(r.Context())
		if err != nil {
			return
		}
		_ = c.Write(r.Context(), typ, data)
		_, _, _ = c.Read(r.Context())
	}))
	defer srv.Close()

	live := NewLive(LiveConfig{URL: wsURL(srv)})
	if err := live.Send(context.Background(), []byte("early")); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send() before open error = %v, want ErrNotOpen", err)
	}

	h := newChanHandler()
	if err := live.Open(context.Background(), h); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := live.Open(context.Background(), h); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second Open() error = %v, want ErrAlreadyOpen", err)
	}
	if got := h.next(t); got.kind != "open" {
		t.Fatalf("expected open, got %+v", got)
	}
	if err := live.Send(context.Background(), []byte("ping")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := h.next(t); got.kind != "message" || got.data != "ping" {
		t.Fatalf("expected echoed ping, got %+v", got)
	}

	if err := live.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := h.next(t); got.kind != "close" || got.err != nil {
		t.Fatalf("expected clean close, got %+v", got)
	}
	h.expectNone(t, 50*time.Millisecond)
}

func fastMock(chance float64) MockConfig {
	return MockConfig{
		OpenDelay:   time.Millisecond,
		Interval:    20 * time.Millisecond,
		SpeakDelay:  5 * time.Millisecond,
		SpeakChance: chance,
		Seed:        7,
	}
}

func TestMockFramesAreDecodable(t *testing.T) {
	m := NewMock(fastMock(1))
	for i := 0; i < 50; i++ {
		move, speak, err := m.next()
		if err != nil {
			t.Fatalf("next() error = %v", err)
		}
		msg, err := protocol.Decode(move)
		if err != nil {
			t.Fatalf("Decode(move) error = %v", err)
		}
		ev, ok := msg.Event.(protocol.MoveEvent)
		if !ok {
			t.Fatalf("expected MoveEvent, got %T", msg.Event)
		}
		if ev.X < 100 || ev.X >= 700 || ev.Y < 100 || ev.Y >= 500 {
			t.Errorf("move out of range: (%v, %v)", ev.X, ev.Y)
		}
		if !strings.HasPrefix(msg.Log, ev.AgentID+" moved to (") {
			t.Errorf("unexpected log %q", msg.Log)
		}
		if ev.ColorHint == "" || ev.GenderHint == "" {
			t.Errorf("missing hints on %+v", ev)
		}

		if speak == nil {
			t.Fatal("expected speak with chance 1")
		}
		msg, err = protocol.Decode(speak)
		if err != nil {
			t.Fatalf("Decode(speak) error = %v", err)
		}
		sp, ok := msg.Event.(protocol.SpeakEvent)
		if !ok || sp.AgentID != ev.AgentID || sp.Content != MockContent {
			t.Errorf("unexpected speak %+v", msg.Event)
		}
	}
}

func TestMockSeedIsDeterministic(t *testing.T) {
	a, b := NewMock(fastMock(0.3)), NewMock(fastMock(0.3))
	for i := 0; i < 20; i++ {
		am, as, _ := a.next()
		bm, bs, _ := b.next()
		if string(am) != string(bm) || string(as) != string(bs) {
			t.Fatalf("frame %d differs between equal seeds", i)
		}
	}
}

func TestMockNeverSpeaksWithZeroChance(t *testing.T) {
	m := NewMock(fastMock(0))
	for i := 0; i < 100; i++ {
		if _, speak, _ := m.next(); speak != nil {
			t.Fatal("unexpected speak frame")
		}
	}
}

func TestMockLifecycle(t *testing.T) {
	m := NewMock(fastMock(1))
	h := newChanHandler()
	if err := m.Open(context.Background(), h); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got := h.next(t); got.kind != "open" {
		t.Fatalf("expected open, got %+v", got)
	}
	move := h.next(t)
	if move.kind != "message" || !strings.Contains(move.data, `"kind":"move"`) {
		t.Fatalf("expected move, got %+v", move)
	}
	speak := h.next(t)
	if speak.kind != "message" || !strings.Contains(speak.data, `"kind":"speak"`) {
		t.Fatalf("expected speak, got %+v", speak)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	for {
		cb := h.next(t)
		if cb.kind == "close" {
			break
		}
		if cb.kind != "message" {
			t.Fatalf("unexpected callback before close: %+v", cb)
		}
	}
	h.expectNone(t, 60*time.Millisecond)
}

func TestMockRosterIsCopy(t *testing.T) {
	m := NewMock(MockConfig{})
	roster := m.Roster()
	if len(roster) != 3 || roster[0].Name != "Alice" {
		t.Fatalf("unexpected roster %+v", roster)
	}
	roster[0].Name = "Mallory"
	if m.Roster()[0].Name != "Alice" {
		t.Error("Roster() exposed internal slice")
	}
}

// fakeFrames serves frames from memory.
type fakeFrames struct {
	runs   []*domain.Run
	frames map[string][]domain.Frame
	err    error
}

func (f *fakeFrames) Frames(_ context.Context, runID string) ([]domain.Frame, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.frames[runID], nil
}

func (f *fakeFrames) ListRuns(_ context.Context, limit int) ([]*domain.Run, error) {
	if len(f.runs) > limit {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func TestReplayPlaysLatestRunInOrder(t *testing.T) {
	base := time.Unix(1700000000, 0)
	reader := &fakeFrames{
		runs: []*domain.Run{{ID: "latest"}, {ID: "older"}},
		frames: map[string][]domain.Frame{
			"latest": {
				{Seq: 0, ReceivedAt: base, Payload: []byte("one")},
				{Seq: 1, ReceivedAt: base.Add(time.Hour), Payload: []byte("two")},
				{Seq: 2, ReceivedAt: base.Add(2 * time.Hour), Payload: []byte("three")},
			},
			"older": {{Seq: 0, ReceivedAt: base, Payload: []byte("old")}},
		},
	}
	r := NewReplay(reader, ReplayConfig{Speed: 0})
	h := newChanHandler()
	if err := r.Open(context.Background(), h); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	want := []callback{
		{kind: "open"},
		{kind: "message", data: "one"},
		{kind: "message", data: "two"},
		{kind: "message", data: "three"},
		{kind: "close"},
	}
	for i, w := range want {
		if got := h.next(t); got.kind != w.kind || got.data != w.data || got.err != nil {
			t.Fatalf("callback %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestReplayWithoutRuns(t *testing.T) {
	r := NewReplay(&fakeFrames{}, ReplayConfig{})
	h := newChanHandler()
	if err := r.Open(context.Background(), h); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got := h.next(t); got.kind != "error" || !errors.Is(got.err, ErrNoRuns) {
		t.Fatalf("expected ErrNoRuns, got %+v", got)
	}
	if got := h.next(t); got.kind != "close" || !errors.Is(got.err, ErrNoRuns) {
		t.Fatalf("expected close with ErrNoRuns, got %+v", got)
	}
}

func TestReplayGapScaling(t *testing.T) {
	base := time.Unix(0, 0)
	prev := domain.Frame{ReceivedAt: base}
	next := domain.Frame{ReceivedAt: base.Add(2 * time.Second)}

	tests := []struct {
		speed float64
		want  time.Duration
	}{
		{0, 0},
		{1, 2 * time.Second},
		{2, time.Second},
		{0.5, 4 * time.Second},
	}
	for _, tt := range tests {
		r := NewReplay(&fakeFrames{}, ReplayConfig{Speed: tt.speed})
		if got := r.gap(prev, next); got != tt.want {
			t.Errorf("gap at speed %v = %v, want %v", tt.speed, got, tt.want)
		}
	}
	r := NewReplay(&fakeFrames{}, ReplayConfig{Speed: 1})
	if got := r.gap(next, prev); got != 0 {
		t.Errorf("negative gap = %v, want 0", got)
	}
}

func TestReplayCloseStopsPlayback(t *testing.T) {
	base := time.Unix(0, 0)
	reader := &fakeFrames{
		runs: []*domain.Run{{ID: "r"}},
		frames: map[string][]domain.Frame{"r": {
			{Seq: 0, ReceivedAt: base, Payload: []byte("first")},
			{Seq: 1, ReceivedAt: base.Add(time.Hour), Payload: []byte("never")},
		}},
	}
	r := NewReplay(reader, ReplayConfig{Speed: 1})
	h := newChanHandler()
	if err := r.Open(context.Background(), h); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	h.next(t) // open
	if got := h.next(t); got.data != "first" {
		t.Fatalf("expected first frame, got %+v", got)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := h.next(t); got.kind != "close" {
		t.Fatalf("expected close, got %+v", got)
	}
}

// fakeWriter captures recorded frames.
type fakeWriter struct {
	mu      sync.Mutex
	runs    map[string]string
	frames  []domain.Frame
	ended   []string
	failAll bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{runs: make(map[string]string)}
}

func (w *fakeWriter) BeginRun(_ context.Context, runID, source string, _ time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failAll {
		return errors.New("disk full")
	}
	w.runs[runID] = source
	return nil
}

func (w *fakeWriter) AppendFrame(_ context.Context, frame domain.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, frame)
	return nil
}

func (w *fakeWriter) EndRun(_ context.Context, runID string, _ time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ended = append(w.ended, runID)
	return nil
}

func TestRecordingStoresFramesBeforeForwarding(t *testing.T) {
	base := time.Unix(0, 0)
	inner := NewReplay(&fakeFrames{
		runs: []*domain.Run{{ID: "src"}},
		frames: map[string][]domain.Frame{"src": {
			{Seq: 0, ReceivedAt: base, Payload: []byte("a")},
			{Seq: 1, ReceivedAt: base, Payload: []byte("b")},
		}},
	}, ReplayConfig{})
	writer := newFakeWriter()
	rec := NewRecording(inner, writer, nil)
	if rec.Name() != "replay" {
		t.Errorf("Name() = %q, want replay", rec.Name())
	}

	h := newChanHandler()
	if err := rec.Open(context.Background(), h); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	for {
		if cb := h.next(t); cb.kind == "close" {
			break
		}
	}

	writer.mu.Lock()
	defer writer.mu.Unlock()
	if len(writer.runs) != 1 {
		t.Fatalf("expected one run, got %v", writer.runs)
	}
	if len(writer.frames) != 2 {
		t.Fatalf("expected 2 recorded frames, got %d", len(writer.frames))
	}
	for i, f := range writer.frames {
		if f.Seq != int64(i) {
			t.Errorf("frame %d seq = %d", i, f.Seq)
		}
		if _, ok := writer.runs[f.RunID]; !ok {
			t.Errorf("frame %d has unknown run %q", i, f.RunID)
		}
	}
	if string(writer.frames[1].Payload) != "b" {
		t.Errorf("second payload = %q", writer.frames[1].Payload)
	}
	if len(writer.ended) != 1 {
		t.Errorf("expected run to be ended once, got %v", writer.ended)
	}
}

func TestRecordingDeliversWhenStorageFails(t *testing.T) {
	writer := newFakeWriter()
	writer.failAll = true
	rec := NewRecording(NewMock(fastMock(0)), writer, nil)
	if len(rec.Roster()) != 3 {
		t.Errorf("expected mock roster through decorator")
	}

	h := newChanHandler()
	if err := rec.Open(context.Background(), h); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got := h.next(t); got.kind != "open" {
		t.Fatalf("expected open, got %+v", got)
	}
	if got := h.next(t); got.kind != "message" {
		t.Fatalf("expected message, got %+v", got)
	}
	_ = rec.Close()

	writer.mu.Lock()
	defer writer.mu.Unlock()
	if len(writer.frames) != 0 {
		t.Errorf("expected no frames for a run that failed to begin, got %d", len(writer.frames))
	}
}
