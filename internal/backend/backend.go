// Package backend serializes access to the cryptographic primitives used by
// signature verification. Every call sequence that builds chains, parses
// signature containers, computes digests or performs RSA operations runs
// while holding a Guard obtained from a Backend.
package backend

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Backend is a handle to the crypto backend. It is not reentrant: a goroutine
// holding a Guard must pass it down instead of calling Acquire again.
type Backend struct {
	name string
	mu   sync.Mutex

	acquisitions atomic.Uint64
	contended    atomic.Uint64
}

var (
	defaultOnce    sync.Once
	defaultBackend *Backend
)

// New creates an independent backend handle
func New(name string) *Backend {
	return &Backend{name: name}
}

// Default returns the process-wide backend
func Default() *Backend {
	defaultOnce.Do(func() {
		defaultBackend = New("default")
	})
	return defaultBackend
}

// Name returns the backend name used in log output
func (b *Backend) Name() string {
	return b.name
}

// Acquire blocks until exclusive access is granted
func (b *Backend) Acquire() *Guard {
	b.acquisitions.Add(1)

	if !b.mu.TryLock() {
		b.contended.Add(1)
		start := time.Now()
		b.mu.Lock()
		log.Debug().
			Str("backend", b.name).
			Dur("waited", time.Since(start)).
			Msg("crypto backend lock contended")
	}

	return &Guard{backend: b}
}

// Stats returns the number of acquisitions and how many of them had to wait
func (b *Backend) Stats() (acquisitions, contended uint64) {
	return b.acquisitions.Load(), b.contended.Load()
}

// Guard is proof of exclusive access to a Backend. Release it exactly once,
// normally with defer right after Acquire.
type Guard struct {
	backend  *Backend
	released bool
}

// Release gives up exclusive access. Calling it more than once is a no-op.
func (g *Guard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	g.backend.mu.Unlock()
}

// Held reports whether the guard still owns the backend
func (g *Guard) Held() bool {
	return g != nil && !g.released
}

// Backend returns the backend this guard belongs to
func (g *Guard) Backend() *Backend {
	return g.backend
}

// MustHold panics if g is not a live guard. Functions that require the lock
// take a *Guard argument and call this first.
func MustHold(g *Guard) {
	if !g.Held() {
		panic("backend: operation requires a held guard")
	}
}
