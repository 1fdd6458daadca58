package render

import (
	"fmt"
	"io"
	"sync"

	"github.com/ashureev/simviewer/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

// Console is a Sink that prints commands as styled terminal lines.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	colors  map[string]string
	spawned map[string]bool
	tag     lipgloss.Style
	phase   lipgloss.Style
}

// NewConsole writes to out.
func NewConsole(out io.Writer) *Console {
	return &Console{
		out:     out,
		colors:  make(map[string]string),
		spawned: make(map[string]bool),
		tag:     lipgloss.NewStyle().Faint(true),
		phase:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f9a8d4")),
	}
}

// Spawn implements Sink. Repeated spawns of a known agent are ignored.
func (c *Console) Spawn(agentID string, x, y float64, colorHint, genderHint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spawned[agentID] {
		return
	}
	c.spawned[agentID] = true
	if colorHint != "" {
		c.colors[agentID] = colorHint
	}
	c.printf("spawn", "%s (%s) at (%.0f, %.0f)", c.name(agentID), genderHint, x, y)
}

// Move implements Sink.
func (c *Console) Move(agentID string, x, y float64, colorHint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if colorHint != "" {
		c.colors[agentID] = colorHint
	}
	c.printf("move", "%s -> (%.0f, %.0f)", c.name(agentID), x, y)
}

// Speak implements Sink.
func (c *Console) Speak(agentID, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printf("speak", "%s: %s", c.name(agentID), content)
}

// PhaseChanged implements Sink.
func (c *Console) PhaseChanged(phase domain.Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printf("phase", "%s", c.phase.Render(string(phase)))
}

// Reset forgets spawned agents so the next run spawns them again.
func (c *Console) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spawned = make(map[string]bool)
	c.colors = make(map[string]string)
}

func (c *Console) name(agentID string) string {
	style := lipgloss.NewStyle().Bold(true)
	if hint, ok := c.colors[agentID]; ok {
		style = style.Foreground(lipgloss.Color(hint))
	}
	return style.Render(agentID)
}

func (c *Console) printf(tag, format string, args ...any) {
	line := c.tag.Render(fmt.Sprintf("[%-5s]", tag)) + " " + fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintln(c.out, line)
}
