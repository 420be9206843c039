package chat

import (
	"sync"

	"chatline/pkg/model"
)

// IdentityCache is an IdentityProvider backed by an explicitly-set identity.
// Set and Drop correspond to sign-in and sign-out transitions; subscribers
// are notified on both.
type IdentityCache struct {
	mu       sync.RWMutex
	identity model.Sender
	signedIn bool
	nextSub  int
	subs     map[int]func(model.Sender, bool)
}

func NewIdentityCache() *IdentityCache {
	return &IdentityCache{subs: make(map[int]func(model.Sender, bool))}
}

func (c *IdentityCache) Current() (model.Sender, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity, c.signedIn
}

// Set records a sign-in.
func (c *IdentityCache) Set(id model.Sender) {
	c.mu.Lock()
	c.identity = id
	c.signedIn = true
	subs := c.snapshotLocked()
	c.mu.Unlock()
	for _, fn := range subs {
		fn(id, true)
	}
}

// Drop records a sign-out.
func (c *IdentityCache) Drop() {
	c.mu.Lock()
	c.identity = model.Sender{}
	c.signedIn = false
	subs := c.snapshotLocked()
	c.mu.Unlock()
	for _, fn := range subs {
		fn(model.Sender{}, false)
	}
}

func (c *IdentityCache) OnChange(fn func(model.Sender, bool)) (cancel func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *IdentityCache) snapshotLocked() []func(model.Sender, bool) {
	out := make([]func(model.Sender, bool), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}
