package rescan

import (
	"sync"

	"github.com/nordicnode/swarm/application"
)

// Listeners is one subscriber's set of callbacks. Any field may be nil.
type Listeners struct {
	OnProgress  func(application.RescanProgress)
	OnChange    func(application.RescanChange)
	OnCompleted func(changes int)
}

// broadcaster fans a rescan's events out to subscribers. Callbacks run
// synchronously on the rescan goroutine, so every subscriber sees events in
// emission order and has received all of a pass's changes before its
// OnCompleted fires; a callback that blocks stalls the rescan.
type broadcaster struct {
	mu        sync.Mutex
	listeners []Listeners
}

func (b *broadcaster) subscribe(l Listeners) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

func (b *broadcaster) snapshot() []Listeners {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Listeners, len(b.listeners))
	copy(out, b.listeners)
	return out
}

func (b *broadcaster) progress(p application.RescanProgress) {
	for _, l := range b.snapshot() {
		if l.OnProgress != nil {
			l.OnProgress(p)
		}
	}
}

func (b *broadcaster) change(c application.RescanChange) {
	for _, l := range b.snapshot() {
		if l.OnChange != nil {
			l.OnChange(c)
		}
	}
}

func (b *broadcaster) completed(changes int) {
	for _, l := range b.snapshot() {
		if l.OnCompleted != nil {
			l.OnCompleted(changes)
		}
	}
}
