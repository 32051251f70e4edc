// Bus is a synchronous, in-process publish/subscribe registry mapping event
// names to ordered lists of listeners.
//
// Listeners fire in registration order on the goroutine that calls Emit. A
// listener registered twice fires twice. A panic raised by a listener is not
// recovered here and unwinds through Emit to its caller.

package events

import (
	"sync"
)

type Listener func(args ...any)

type Bus struct {
	mu     sync.Mutex
	subs   map[string][]subscription
	nextID uint64
}

type subscription struct {
	id       uint64
	listener Listener
}

func New() *Bus {
	return &Bus{
		subs: make(map[string][]subscription),
	}
}

// On appends listener to the sequence for event.
func (b *Bus) On(event string, listener Listener) {
	b.Listen(event, listener)
}

// Listen is On that also returns a function removing exactly this
// registration. Calling it more than once is a no-op.
func (b *Bus) Listen(event string, listener Listener) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	b.subs[event] = append(b.subs[event], subscription{
		id:       id,
		listener: listener,
	})

	var once sync.Once

	return func() {
		once.Do(func() {
			b.remove(event, id)
		})
	}
}

// Emit invokes every listener currently registered for event. Listeners added
// while Emit runs only see later emits.
func (b *Bus) Emit(event string, args ...any) {
	b.mu.Lock()
	subs := append([]subscription(nil), b.subs[event]...)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.listener(args...)
	}
}

// Listeners reports how many registrations exist for event.
func (b *Bus) Listeners(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs[event])
}

// Clear discards every registration.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = make(map[string][]subscription)
}

func (b *Bus) remove(event string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[event]

	for i, sub := range subs {
		if sub.id != id {
			continue
		}

		rest := make([]subscription, 0, len(subs)-1)
		rest = append(rest, subs[:i]...)
		rest = append(rest, subs[i+1:]...)

		if len(rest) == 0 {
			delete(b.subs, event)
		} else {
			b.subs[event] = rest
		}

		return
	}
}
