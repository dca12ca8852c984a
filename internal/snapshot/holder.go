package snapshot

import (
	"sync/atomic"
)

// Holder publishes the active snapshot. Readers call Load once per request
// and keep using that snapshot; a rebuild swaps in a new one atomically.
type Holder struct {
	cur atomic.Pointer[Snapshot]
}

// NewHolder returns a holder with s active. s may be nil.
func NewHolder(s *Snapshot) *Holder {
	h := &Holder{}
	if s != nil {
		h.cur.Store(s)
	}
	return h
}

// Load returns the active snapshot, or nil before the first build.
func (h *Holder) Load() *Snapshot {
	return h.cur.Load()
}

// Swap makes s active and returns the previous snapshot. The caller closes
// the previous one once in-flight readers are done with it.
func (h *Holder) Swap(s *Snapshot) *Snapshot {
	return h.cur.Swap(s)
}
