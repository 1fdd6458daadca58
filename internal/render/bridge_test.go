package render

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/simviewer/internal/domain"
)

// recordingSink captures calls in order.
type recordingSink struct {
	mu     sync.Mutex
	calls  []Command
	resets int
}

func (s *recordingSink) Spawn(agentID string, x, y float64, colorHint, genderHint string) {
	s.record(Spawn(agentID, x, y, colorHint, genderHint))
}

func (s *recordingSink) Move(agentID string, x, y float64, colorHint string) {
	s.record(Move(agentID, x, y, colorHint))
}

func (s *recordingSink) Speak(agentID, content string) {
	s.record(Speak(agentID, content))
}

func (s *recordingSink) PhaseChanged(phase domain.Phase) {
	s.record(PhaseChanged(phase))
}

func (s *recordingSink) Reset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}

func (s *recordingSink) record(cmd Command) {
	s.mu.Lock()
	s.calls = append(s.calls, cmd)
	s.mu.Unlock()
}

func (s *recordingSink) snapshot() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.calls...)
}

func TestBridgeDispatchMapsOneCallPerCommand(t *testing.T) {
	sink := &recordingSink{}
	b := NewBridge(0, nil)
	b.Attach(sink)

	cmds := []Command{
		Spawn("Alice", 1, 2, "#f00", "female"),
		Move("Alice", 3, 4, "#f00"),
		Speak("Alice", "hi"),
		PhaseChanged(domain.PhaseFreeChat),
	}
	b.Dispatch(cmds...)

	got := sink.snapshot()
	if len(got) != len(cmds) {
		t.Fatalf("Expected %d calls, got %d", len(cmds), len(got))
	}
	for i := range cmds {
		if got[i] != cmds[i] {
			t.Errorf("Call %d = %+v, want %+v", i, got[i], cmds[i])
		}
	}
}

func TestBridgeBuffersUntilAttach(t *testing.T) {
	b := NewBridge(0, nil)
	b.Dispatch(Move("A", 1, 1, ""), Speak("A", "first"))
	if b.Pending() != 2 {
		t.Fatalf("Expected 2 pending, got %d", b.Pending())
	}

	sink := &recordingSink{}
	b.Attach(sink)
	b.Dispatch(Speak("A", "second"))

	got := sink.snapshot()
	if len(got) != 3 {
		t.Fatalf("Expected 3 calls, got %d", len(got))
	}
	if got[0].Kind != KindMove || got[1].Content != "first" || got[2].Content != "second" {
		t.Errorf("Commands flushed out of order: %+v", got)
	}
	if b.Pending() != 0 {
		t.Errorf("Expected empty buffer after attach, got %d", b.Pending())
	}
}

func TestBridgeDropsOverflow(t *testing.T) {
	b := NewBridge(2, nil)
	b.Dispatch(Speak("A", "1"), Speak("A", "2"), Speak("A", "3"))
	if b.Pending() != 2 {
		t.Errorf("Expected buffer capped at 2, got %d", b.Pending())
	}
	sink := &recordingSink{}
	b.Attach(sink)
	if got := sink.snapshot(); len(got) != 2 || got[1].Content != "2" {
		t.Errorf("Expected oldest two kept, got %+v", got)
	}
}

func TestBridgeResetClearsBufferAndSink(t *testing.T) {
	sink := &recordingSink{}
	b := NewBridge(0, nil)
	b.Dispatch(Speak("A", "stale"))
	b.Reset()
	if b.Pending() != 0 {
		t.Errorf("Expected buffer cleared, got %d", b.Pending())
	}
	b.Attach(sink)
	b.Reset()
	if sink.resets != 1 {
		t.Errorf("Expected sink reset once, got %d", sink.resets)
	}
	if len(sink.snapshot()) != 0 {
		t.Errorf("Expected no stale commands, got %+v", sink.snapshot())
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	Apply(MultiSink{a, b}, Speak("A", "hi"))
	if len(a.snapshot()) != 1 || len(b.snapshot()) != 1 {
		t.Errorf("Expected both sinks called, got %d and %d", len(a.snapshot()), len(b.snapshot()))
	}
}

func TestMultiSinkResetsMembers(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(&buf)
	rec := &recordingSink{}
	b := NewBridge(0, nil)
	b.Attach(MultiSink{rec, console})

	b.Dispatch(Spawn("Alice", 1, 1, "", "female"))
	b.Reset()
	b.Dispatch(Spawn("Alice", 1, 1, "", "female"))

	if rec.resets != 1 {
		t.Errorf("Expected member reset once, got %d", rec.resets)
	}
	if strings.Count(buf.String(), "spawn") != 2 {
		t.Errorf("Expected console to spawn again after reset, got:\n%s", buf.String())
	}
}

func TestApplyRejectsUnknownKind(t *testing.T) {
	if Apply(&recordingSink{}, Command{Kind: "explode"}) {
		t.Error("Expected unknown kind to be rejected")
	}
}

func TestConsoleSpawnIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.Spawn("Alice", 400, 300, "#ff0000", "female")
	c.Spawn("Alice", 400, 300, "#ff0000", "female")
	c.Speak("Alice", "hello there")

	out := buf.String()
	if strings.Count(out, "spawn") != 1 {
		t.Errorf("Expected a single spawn line, got:\n%s", out)
	}
	if !strings.Contains(out, "hello there") {
		t.Errorf("Expected speech line, got:\n%s", out)
	}
}

func TestSpawnRoster(t *testing.T) {
	cmds := SpawnRoster([]domain.Character{{Name: "Bob", Gender: "male", ColorHint: "#00f", X: 200, Y: 300}})
	want := Spawn("Bob", 200, 300, "#00f", "male")
	if len(cmds) != 1 || cmds[0] != want {
		t.Errorf("SpawnRoster = %+v, want %+v", cmds, want)
	}
}
