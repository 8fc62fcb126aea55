package agent

import (
	"sync/atomic"

	"entice/internal/domain"
)

// Context is the bot's own identity plus its store handle. It exists only
// after the identity lookup has succeeded.
type Context struct {
	Identity domain.Identity
	Store    domain.ChatStore
}

// Holder is a single shared slot for the Context. It moves from empty to
// populated once and never back. The zero value is empty and ready to use.
//
// Callers must not keep the returned pointer across a blocking call; take a
// fresh Get after every network or store round trip.
type Holder struct {
	ctx atomic.Pointer[Context]
}

// Get returns the current Context and whether it is populated.
func (h *Holder) Get() (*Context, bool) {
	c := h.ctx.Load()
	return c, c != nil
}

// Set populates the holder. It returns false and keeps the existing value
// when the holder was already populated.
func (h *Holder) Set(c Context) bool {
	return h.ctx.CompareAndSwap(nil, &c)
}
