package ledger

import "github.com/ashureev/simviewer/internal/domain"

// transcript is a fixed-size ring of utterances. When full, the oldest
// entry is overwritten.
type transcript struct {
	buf  []domain.TranscriptEntry
	head int // write position
	full bool
}

func newTranscript(size int) *transcript {
	return &transcript{buf: make([]domain.TranscriptEntry, size)}
}

func (t *transcript) append(e domain.TranscriptEntry) {
	t.buf[t.head] = e
	t.head = (t.head + 1) % len(t.buf)
	if t.head == 0 {
		t.full = true
	}
}

// entries returns a copy ordered oldest first.
func (t *transcript) entries() []domain.TranscriptEntry {
	if !t.full {
		return append([]domain.TranscriptEntry(nil), t.buf[:t.head]...)
	}
	out := make([]domain.TranscriptEntry, 0, len(t.buf))
	out = append(out, t.buf[t.head:]...)
	return append(out, t.buf[:t.head]...)
}

func (t *transcript) len() int {
	if t.full {
		return len(t.buf)
	}
	return t.head
}
