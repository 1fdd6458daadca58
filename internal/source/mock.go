package source

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/ashureev/simviewer/internal/domain"
	"github.com/ashureev/simviewer/internal/protocol"
)

// MockContent is what every synthetic character says.
const MockContent = "Hello! I am mocking."

// MockCharacters is the built-in synthetic roster.
var MockCharacters = []domain.Character{
	{Name: "Alice", Gender: "female", Personality: "Cheerful", ColorHint: "#ff0000", X: 400, Y: 300},
	{Name: "Bob", Gender: "male", Personality: "Grumpy", ColorHint: "#0000ff", X: 200, Y: 300},
	{Name: "Charlie", Gender: "male", Personality: "Brave", ColorHint: "#00ff00", X: 600, Y: 300},
}

// MockConfig tunes the synthetic event generator.
type MockConfig struct {
	OpenDelay   time.Duration
	Interval    time.Duration
	SpeakDelay  time.Duration
	SpeakChance float64
	Seed        int64
	Roster      []domain.Character
	Logger      *slog.Logger
}

// DefaultMockConfig matches the pacing of the development mock server.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		OpenDelay:   500 * time.Millisecond,
		Interval:    2 * time.Second,
		SpeakDelay:  500 * time.Millisecond,
		SpeakChance: 0.3,
		Seed:        time.Now().UnixNano(),
		Roster:      MockCharacters,
	}
}

// Mock is a Source producing random movement and occasional speech.
type Mock struct {
	cfg    MockConfig
	logger *slog.Logger
	rnd    *rand.Rand

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
}

// NewMock creates a synthetic source.
func NewMock(cfg MockConfig) *Mock {
	if len(cfg.Roster) == 0 {
		cfg.Roster = MockCharacters
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Mock{
		cfg:    cfg,
		logger: logger,
		rnd:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Name implements Source.
func (m *Mock) Name() string { return "mock" }

// Roster implements Rostered.
func (m *Mock) Roster() []domain.Character {
	out := make([]domain.Character, len(m.cfg.Roster))
	copy(out, m.cfg.Roster)
	return out
}

// Open implements Source.
func (m *Mock) Open(ctx context.Context, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return ErrAlreadyOpen
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.gen++
	go m.run(runCtx, m.gen, h)
	return nil
}

func (m *Mock) run(ctx context.Context, gen uint64, h Handler) {
	defer func() {
		m.mu.Lock()
		if m.gen == gen && m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.mu.Unlock()
		h.OnClose(nil)
	}()

	openTimer := time.NewTimer(m.cfg.OpenDelay)
	select {
	case <-ctx.Done():
		openTimer.Stop()
		return
	case <-openTimer.C:
	}
	h.OnOpen()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	var (
		speakTimer *time.Timer
		speakC     <-chan time.Time
		pending    []byte
	)
	defer func() {
		if speakTimer != nil {
			speakTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			move, speak, err := m.next()
			if err != nil {
				m.logger.Error("Mock frame encoding failed", "error", err)
				continue
			}
			if pending != nil {
				// A speech still waiting goes out before the next move.
				speakTimer.Stop()
				h.OnMessage(pending)
				pending, speakC = nil, nil
			}
			h.OnMessage(move)
			if speak != nil {
				pending = speak
				speakTimer = time.NewTimer(m.cfg.SpeakDelay)
				speakC = speakTimer.C
			}
		case <-speakC:
			h.OnMessage(pending)
			pending, speakC = nil, nil
		}
	}
}

// next builds one move frame and, by chance, a speak frame for the same character.
func (m *Mock) next() (move, speak []byte, err error) {
	char := m.cfg.Roster[m.rnd.Intn(len(m.cfg.Roster))]
	x := 100 + m.rnd.Float64()*600
	y := 100 + m.rnd.Float64()*400

	move, err = protocol.Encode(protocol.KindMove, protocol.MovePayload{
		AgentID:    char.Name,
		X:          x,
		Y:          y,
		ColorHint:  char.ColorHint,
		GenderHint: char.Gender,
	}, fmt.Sprintf("%s moved to (%d, %d)", char.Name, int(x), int(y)))
	if err != nil {
		return nil, nil, err
	}

	if m.rnd.Float64() < m.cfg.SpeakChance {
		speak, err = protocol.Encode(protocol.KindSpeak, protocol.SpeakPayload{
			AgentID: char.Name,
			Content: MockContent,
		}, char.Name+" says hello.")
		if err != nil {
			return nil, nil, err
		}
	}
	return move, speak, nil
}

// Send logs and discards the frame.
func (m *Mock) Send(_ context.Context, msg []byte) error {
	m.logger.Debug("Mock source discarding outbound frame", "bytes", len(msg))
	return nil
}

// Close implements Source.
func (m *Mock) Close() error {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
