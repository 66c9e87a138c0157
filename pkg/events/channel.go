// Package events provides typed publish/subscribe channels shared by the
// recorders, the streaming layer and the controllers.
package events

import "sync"

type Listener[T any] func(T)

// Channel delivers every published value to the current listeners, in
// subscription order, on the publishing goroutine. Listeners must not block.
type Channel[T any] struct {
	mu        sync.Mutex
	next      uint64
	listeners []subscription[T]
}

type subscription[T any] struct {
	id   uint64
	key  string
	once bool
	fn   Listener[T]
}

// Subscribe adds a listener and returns the function that removes it.
func (c *Channel[T]) Subscribe(fn Listener[T]) func() {
	return c.add("", false, fn)
}

// SubscribeKey replaces any listener previously registered under key, so
// repeated registration by the same caller never duplicates delivery. The
// returned function removes whichever listener holds key when it is called.
func (c *Channel[T]) SubscribeKey(key string, fn Listener[T]) func() {
	if key == "" {
		return c.add("", false, fn)
	}

	c.mu.Lock()
	c.removeKeyLocked(key)
	c.addLocked(key, false, fn)
	c.mu.Unlock()

	return func() { c.Unsubscribe(key) }
}

// Once adds a listener that is removed after its first delivery.
func (c *Channel[T]) Once(fn Listener[T]) func() {
	return c.add("", true, fn)
}

// Unsubscribe removes the listener registered under key.
func (c *Channel[T]) Unsubscribe(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeKeyLocked(key)
}

func (c *Channel[T]) Publish(v T) {
	c.mu.Lock()
	snapshot := make([]subscription[T], len(c.listeners))
	copy(snapshot, c.listeners)

	kept := c.listeners[:0]
	for _, s := range c.listeners {
		if !s.once {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(c.listeners); i++ {
		c.listeners[i] = subscription[T]{}
	}
	c.listeners = kept
	c.mu.Unlock()

	for _, s := range snapshot {
		s.fn(v)
	}
}

// Len reports the number of active listeners.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

func (c *Channel[T]) add(key string, once bool, fn Listener[T]) func() {
	c.mu.Lock()
	id := c.addLocked(key, once, fn)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.listeners {
			if s.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

func (c *Channel[T]) addLocked(key string, once bool, fn Listener[T]) uint64 {
	c.next++
	c.listeners = append(c.listeners, subscription[T]{id: c.next, key: key, once: once, fn: fn})
	return c.next
}

func (c *Channel[T]) removeKeyLocked(key string) {
	if key == "" {
		return
	}
	for i, s := range c.listeners {
		if s.key == key {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}
