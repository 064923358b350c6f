package identity

import "sync"

// Notifier fans provider change events out to per-device subscribers. Both
// provider implementations embed it so sign-in and sign-out calls notify the
// device's session manager the same way.
type Notifier struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]func(*Identity)
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[int]func(*Identity))}
}

// Subscribe registers a callback for the device and returns an unregister
// func. Unregistering twice is safe.
func (n *Notifier) Subscribe(deviceID string, fn func(*Identity)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subs[deviceID] == nil {
		n.subs[deviceID] = make(map[int]func(*Identity))
	}
	id := n.next
	n.next++
	n.subs[deviceID][id] = fn

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if callbacks, ok := n.subs[deviceID]; ok {
			delete(callbacks, id)
			if len(callbacks) == 0 {
				delete(n.subs, deviceID)
			}
		}
	}
}

// Publish delivers the identity (nil for signed out) to every subscriber
// registered for the device. Delivery is synchronous and in-line with the
// provider call that triggered it.
func (n *Notifier) Publish(deviceID string, identity *Identity) {
	n.mu.Lock()
	callbacks := make([]func(*Identity), 0, len(n.subs[deviceID]))
	for _, fn := range n.subs[deviceID] {
		callbacks = append(callbacks, fn)
	}
	n.mu.Unlock()

	for _, fn := range callbacks {
		fn(identity)
	}
}
