// Package ledger tracks who is talking to whom and the rolling transcript of
// each pair.
//
// The ledger is its own source of truth: Partner always observes the most
// recent SetSessions, independent of when derived state is published to
// subscribers.
package ledger

import (
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/ashureev/simviewer/internal/domain"
)

// DefaultTranscriptLimit is the number of utterances kept per pair.
const DefaultTranscriptLimit = 10

// PairKeySeparator joins the two sorted agent identifiers of a pair key.
const PairKeySeparator = "-"

// Ledger holds the agent→partner mapping and per-pair transcripts.
type Ledger struct {
	mu          sync.RWMutex
	partners    map[string]string
	transcripts map[string]*transcript
	limit       int
}

// New creates a ledger that keeps limit utterances per pair.
func New(limit int) *Ledger {
	if limit <= 0 {
		limit = DefaultTranscriptLimit
	}
	return &Ledger{
		partners:    make(map[string]string),
		transcripts: make(map[string]*transcript),
		limit:       limit,
	}
}

// PairKey returns the canonical unordered key for two agents.
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, PairKeySeparator)
}

// SetSessions atomically replaces the full mapping. The input is copied.
func (l *Ledger) SetSessions(sessions map[string]string) {
	next := maps.Clone(sessions)
	if next == nil {
		next = make(map[string]string)
	}
	l.mu.Lock()
	l.partners = next
	l.mu.Unlock()
}

// Partner returns the current partner of agentID.
func (l *Ledger) Partner(agentID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	partner, ok := l.partners[agentID]
	if !ok || partner == "" {
		return "", false
	}
	return partner, true
}

// AppendUtterance records content under the pair formed by agentID and its
// current partner. It returns the pair key, or false when the speaker has no
// partner and nothing was recorded.
func (l *Ledger) AppendUtterance(agentID, content string) (string, bool) {
	partner, ok := l.Partner(agentID)
	if !ok {
		return "", false
	}
	key := PairKey(agentID, partner)

	l.mu.Lock()
	defer l.mu.Unlock()
	t, exists := l.transcripts[key]
	if !exists {
		t = newTranscript(l.limit)
		l.transcripts[key] = t
	}
	t.append(domain.TranscriptEntry{Sender: agentID, Content: content})
	return key, true
}

// Sessions returns a copy of the current mapping.
func (l *Ledger) Sessions() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.partners)
}

// Transcript returns a copy of one pair's entries, oldest first.
func (l *Ledger) Transcript(key string) []domain.TranscriptEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.transcripts[key]
	if !ok {
		return nil
	}
	return t.entries()
}

// Transcripts returns a deep copy of all transcripts.
func (l *Ledger) Transcripts() map[string][]domain.TranscriptEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string][]domain.TranscriptEntry, len(l.transcripts))
	for key, t := range l.transcripts {
		out[key] = t.entries()
	}
	return out
}

// Len returns the number of entries recorded for key.
func (l *Ledger) Len(key string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if t, ok := l.transcripts[key]; ok {
		return t.len()
	}
	return 0
}

// Reset clears sessions and transcripts.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.partners = make(map[string]string)
	l.transcripts = make(map[string]*transcript)
}
