package proc

import (
	"sync"
	"sync/atomic"
	"time"
)

// Accnt accumulates per-process CPU-time accounting, adapted from
// accnt/accnt.go's Accnt_t: user/system nanosecond counters updated
// atomically by the scheduler, with a mutex guarding the combined
// snapshot read out by Add. Kept as ambient observability — no
// syscall in §4.7 exposes it, matching spec.md's scope.
type Accnt struct {
	Userns int64
	Sysns  int64
	mu     sync.Mutex
}

// Utadd adds delta nanoseconds of user time.
func (a *Accnt) Utadd(delta int64) { atomic.AddInt64(&a.Userns, delta) }

// Systadd adds delta nanoseconds of system time.
func (a *Accnt) Systadd(delta int64) { atomic.AddInt64(&a.Sysns, delta) }

// Finish adds the elapsed time since start (nanoseconds since the Unix
// epoch) to the system-time counter.
func (a *Accnt) Finish(start int64) {
	a.Systadd(time.Now().UnixNano() - start)
}

// Add merges n's counters into a under a's mutex.
func (a *Accnt) Add(n *Accnt) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Userns += atomic.LoadInt64(&n.Userns)
	a.Sysns += atomic.LoadInt64(&n.Sysns)
}

// Snapshot returns a consistent (userns, sysns) pair.
func (a *Accnt) Snapshot() (int64, int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return atomic.LoadInt64(&a.Userns), atomic.LoadInt64(&a.Sysns)
}
