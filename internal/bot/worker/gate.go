package worker

import "sync/atomic"

// Gate admits at most one exclusive sequence at a time.
type Gate struct {
	busy atomic.Bool
}

// TryAcquire claims the gate.
//
// Postcondition: Returns true for exactly one caller until Release is called.
func (g *Gate) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release frees the gate. Only the holder may call it.
func (g *Gate) Release() {
	g.busy.Store(false)
}

// Busy reports whether the gate is held.
func (g *Gate) Busy() bool {
	return g.busy.Load()
}
