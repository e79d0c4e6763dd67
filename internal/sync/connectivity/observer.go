// Package connectivity reports whether the remote is reachable and notifies
// subscribers when that changes.
package connectivity

import "sync"

// Observer exposes the online signal. Subscribers receive a value only when
// the signal changes; a slow subscriber sees the latest value, not every
// intermediate one.
type Observer interface {
	Online() bool
	Subscribe() (<-chan bool, func())
}

// broadcaster fans transitions out to subscriber channels.
type broadcaster struct {
	mu     sync.Mutex
	online bool
	subs   map[int]chan bool
	nextID int
}

func newBroadcaster(online bool) *broadcaster {
	return &broadcaster{online: online, subs: make(map[int]chan bool)}
}

func (b *broadcaster) get() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online
}

// set stores online and reports whether it changed.
func (b *broadcaster) set(online bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.online == online {
		return false
	}
	b.online = online
	for _, ch := range b.subs {
		select {
		case ch <- online:
		default:
			// Replace the unread value with the newer one.
			select {
			case <-ch:
			default:
			}
			ch <- online
		}
	}
	return true
}

func (b *broadcaster) subscribe() (<-chan bool, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan bool, 1)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Switch is an Observer toggled by hand, e.g. by an --offline flag.
type Switch struct {
	b *broadcaster
}

var _ Observer = (*Switch)(nil)

// NewSwitch creates a Switch in the given state.
func NewSwitch(online bool) *Switch {
	return &Switch{b: newBroadcaster(online)}
}

// Online implements Observer.
func (s *Switch) Online() bool { return s.b.get() }

// Subscribe implements Observer.
func (s *Switch) Subscribe() (<-chan bool, func()) { return s.b.subscribe() }

// Set changes the state; subscribers are notified only on a change.
func (s *Switch) Set(online bool) bool { return s.b.set(online) }
