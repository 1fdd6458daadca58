package connection

import "github.com/ashureev/simviewer/internal/domain"

type subscriber struct {
	ch chan domain.Snapshot
}

// Subscribe returns a channel that always holds the most recent state.
// A slow reader skips intermediate states. The returned func unsubscribes
// and closes the channel.
func (m *Manager) Subscribe() (<-chan domain.Snapshot, func()) {
	sub := &subscriber{ch: make(chan domain.Snapshot, 1)}

	m.mu.Lock()
	m.subMu.Lock()
	m.subs[sub] = struct{}{}
	sub.ch <- m.state.Clone()
	m.subMu.Unlock()
	m.mu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if _, ok := m.subs[sub]; ok {
			delete(m.subs, sub)
			close(sub.ch)
		}
	}
	return sub.ch, cancel
}

// publishLocked offers the current state to every subscriber. Caller holds m.mu.
func (m *Manager) publishLocked() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for sub := range m.subs {
		snap := m.state.Clone()
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- snap:
		default:
		}
	}
}
