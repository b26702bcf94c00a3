// Package proc implements the process table and PCB lifecycle from
// §4.5: fixed process slots, monotonically increasing PIDs, spawn/
// exit/wait, and the save/restore glue the scheduler and trap handler
// drive on every context switch. Grounded on original_source/src/proc.rs
// for PCB fields and table invariants, and on accnt/accnt.go for the
// per-process CPU-time accounting kept as ambient observability.
package proc

import (
	"sync"

	"rvos/internal/fd"
	"rvos/internal/trapframe"
	"rvos/internal/uwindow"
)

// MaxProcesses bounds the number of live process table slots.
const MaxProcesses = 8

// Pid identifies a process. InvalidPid is the "no process" sentinel;
// unlike the Rust source's usize::MAX, Go's idiomatic invalid-id value
// is -1 (no type has an all-ones bit pattern to exploit) — a deliberate
// Go-idiom substitution, not a semantic change: both are inert numbers
// that must never collide with a real, always-positive PID.
type Pid = int64

const InvalidPid Pid = -1

// State is a PCB's lifecycle state.
type State int

const (
	Ready State = iota
	Running
	Blocked
	Exited
)

// Process is a process control block.
type Process struct {
	Pid       Pid
	ParentPid Pid
	State     State
	ExitCode  int64

	Entry    uint64
	StackTop uint64
	PC       uint64
	SP       uint64
	// Regs holds x1..x31 as saved from the trap frame at the last
	// context switch (see SaveCurrentRegisters); x0 is always zero and
	// is not kept.
	Regs [31]uint64

	Path string
	Args []string

	Fds *fd.Table

	Memory *uwindow.Snapshot

	Argc    uint64
	ArgvPtr uint64
	Started bool

	Acct Accnt
}

func newProcess(pid, parentPid Pid, entry, stackTop uint64, path string, args []string, fds *fd.Table, memory *uwindow.Snapshot, argc, argvPtr uint64) *Process {
	return &Process{
		Pid:       pid,
		ParentPid: parentPid,
		State:     Ready,
		Entry:     entry,
		StackTop:  stackTop,
		PC:        entry,
		SP:        stackTop,
		Path:      path,
		Args:      args,
		Fds:       fds,
		Memory:    memory,
		Argc:      argc,
		ArgvPtr:   argvPtr,
	}
}

func (p *Process) exit(code int64) {
	p.State = Exited
	p.ExitCode = code
}

// IsRunning reports whether the process is currently scheduled.
func (p *Process) IsRunning() bool { return p.State == Running }

// HasExited reports whether the process has exited and is awaiting reap.
func (p *Process) HasExited() bool { return p.State == Exited }

// SpawnErrorKind enumerates why Table.Spawn failed.
type SpawnErrorKind int

const (
	SpawnTooManyProcesses SpawnErrorKind = iota
	SpawnProgramNotFound
	SpawnLoadFailed
	SpawnOutOfMemory
)

// SpawnError reports a spawn failure.
type SpawnError struct{ Kind SpawnErrorKind }

func (e *SpawnError) Error() string {
	switch e.Kind {
	case SpawnTooManyProcesses:
		return "too many processes"
	case SpawnProgramNotFound:
		return "program not found"
	case SpawnLoadFailed:
		return "failed to load program"
	case SpawnOutOfMemory:
		return "out of memory"
	default:
		return "spawn error"
	}
}

// Table is the system-wide process table.
type Table struct {
	mu         sync.Mutex
	processes  [MaxProcesses]*Process
	currentPid Pid
	nextPid    Pid
}

// NewTable returns an empty table with current = InvalidPid and the
// next PID to allocate set to 1 (0 is reserved for the kernel).
func NewTable() *Table {
	return &Table{currentPid: InvalidPid, nextPid: 1}
}

func (t *Table) findFreeSlot() int {
	for i, p := range t.processes {
		if p == nil {
			return i
		}
	}
	return -1
}

// Spawn installs a new Ready PCB, parented to the current process.
func (t *Table) Spawn(entry, stackTop uint64, path string, args []string, fds *fd.Table, memory *uwindow.Snapshot, argc, argvPtr uint64) (Pid, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot := t.findFreeSlot()
	if slot < 0 {
		return InvalidPid, &SpawnError{Kind: SpawnTooManyProcesses}
	}
	pid := t.nextPid
	t.nextPid++
	proc := newProcess(pid, t.currentPid, entry, stackTop, path, args, fds, memory, argc, argvPtr)
	t.processes[slot] = proc
	return pid, nil
}

// Get returns the process with the given PID, if any.
func (t *Table) Get(pid Pid) (*Process, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getLocked(pid)
}

func (t *Table) getLocked(pid Pid) (*Process, bool) {
	for _, p := range t.processes {
		if p != nil && p.Pid == pid {
			return p, true
		}
	}
	return nil, false
}

// Current returns the currently running process, if any.
func (t *Table) Current() (*Process, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.currentPid == InvalidPid {
		return nil, false
	}
	return t.getLocked(t.currentPid)
}

// SetCurrent records pid as the running process.
func (t *Table) SetCurrent(pid Pid) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentPid = pid
}

// CurrentPid returns the running process's PID, or InvalidPid.
func (t *Table) CurrentPid() Pid {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentPid
}

// ExitProcess closes pid's descriptors and marks it Exited.
func (t *Table) ExitProcess(pid Pid, code int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.getLocked(pid)
	if !ok {
		return
	}
	p.Fds.CloseAll()
	p.exit(code)
}

// Wait scans for an exited child of parentPid, reaps its slot, and
// returns (childPid, exitCode, true). Returns (0, 0, false) if no child
// has exited (whether or not any children remain live).
func (t *Table) Wait(parentPid Pid) (Pid, int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, p := range t.processes {
		if p != nil && p.ParentPid == parentPid && p.HasExited() {
			childPid, code := p.Pid, p.ExitCode
			t.processes[i] = nil
			return childPid, code, true
		}
	}
	return 0, 0, false
}

// HasChildren reports whether any live or exited-unreaped process is
// parented to parentPid.
func (t *Table) HasChildren(parentPid Pid) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.processes {
		if p != nil && p.ParentPid == parentPid {
			return true
		}
	}
	return false
}

// Children returns the PIDs of every process parented to parentPid.
func (t *Table) Children(parentPid Pid) []Pid {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Pid
	for _, p := range t.processes {
		if p != nil && p.ParentPid == parentPid {
			out = append(out, p.Pid)
		}
	}
	return out
}

// Clear removes every process and resets the current PID.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processes = [MaxProcesses]*Process{}
	t.currentPid = InvalidPid
}

// AllProcesses returns every live process slot, for the scheduler's
// traversal.
func (t *Table) AllProcesses() []*Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Process
	for _, p := range t.processes {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// SaveCurrentMemory snapshots win into the current process's PCB.
func (t *Table) SaveCurrentMemory(win *uwindow.Window) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.currentPid == InvalidPid {
		return
	}
	p, ok := t.getLocked(t.currentPid)
	if !ok {
		return
	}
	if p.Memory == nil {
		p.Memory = &uwindow.Snapshot{}
	}
	p.Memory.Save(win)
}

// RestoreProcessMemory restores pid's snapshot into win.
func (t *Table) RestoreProcessMemory(pid Pid, win *uwindow.Window) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.getLocked(pid)
	if !ok || p.Memory == nil {
		return
	}
	p.Memory.Restore(win)
}

// SaveCurrentRegisters copies the trap frame's PC/SP and general-purpose
// registers into the current process's PCB ahead of a context switch.
func (t *Table) SaveCurrentRegisters(tf *trapframe.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.currentPid == InvalidPid {
		return
	}
	p, ok := t.getLocked(t.currentPid)
	if !ok {
		return
	}
	p.PC = tf.Sepc
	p.SP = tf.Sp
	copy(p.Regs[:], tf.Regs[1:])
}

// RestoreProcessRegisters installs pid's saved PC/SP into the trap
// frame. On the process's first schedule it zeroes every register and
// injects argc/argv into a0/a1; on later schedules it restores the
// registers saved by SaveCurrentRegisters.
func (t *Table) RestoreProcessRegisters(pid Pid, tf *trapframe.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.getLocked(pid)
	if !ok {
		return
	}
	tf.Sepc = p.PC
	tf.Sp = p.SP
	if !p.Started {
		for i := range tf.Regs {
			tf.Regs[i] = 0
		}
		tf.SetA0(int64(p.Argc))
		tf.Regs[trapframe.RegA1] = p.ArgvPtr
		p.Started = true
	} else {
		copy(tf.Regs[1:], p.Regs[:])
	}
}
