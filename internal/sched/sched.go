// Package sched implements the single-hart cooperative round-robin
// scheduler from §4.6, grounded on original_source/src/scheduler.rs.
// Per the resolved Open Question recorded in DESIGN.md, schedule()
// orders candidates by ascending PID rather than process-table slot
// order, which the Rust source uses incidentally (its Vec preserves
// table order, not PID order).
package sched

import (
	"sort"
	"time"

	"rvos/internal/fd"
	"rvos/internal/proc"
	"rvos/internal/trapframe"
	"rvos/internal/uwindow"
)

// Scheduler drives process selection and the context-switch glue
// between the process table, the single user window, and the trap
// frame the syscall handler is operating on.
type Scheduler struct {
	procs      *proc.Table
	window     *uwindow.Window
	lastSwitch time.Time
}

// New builds a scheduler over procs/window and installs itself as
// internal/fd's pipe-wake callback.
func New(procs *proc.Table, window *uwindow.Window) *Scheduler {
	s := &Scheduler{procs: procs, window: window, lastSwitch: time.Now()}
	fd.Unblock = s.Unblock
	return s
}

// accrueRunning charges pid's Accnt.Utadd with the time elapsed since
// the last accounting point, whether or not a switch actually happens
// this call: pid was the one running the hart for that whole slice.
func (s *Scheduler) accrueRunning(pid proc.Pid) {
	now := time.Now()
	elapsed := now.Sub(s.lastSwitch)
	s.lastSwitch = now
	if pid == proc.InvalidPid {
		return
	}
	if p, ok := s.procs.Get(pid); ok {
		p.Acct.Utadd(elapsed.Nanoseconds())
	}
}

// runnable returns the PIDs in Ready or Running state, ascending.
func (s *Scheduler) runnable() []proc.Pid {
	var out []proc.Pid
	for _, p := range s.procs.AllProcesses() {
		if p.State == proc.Ready || p.State == proc.Running {
			out = append(out, p.Pid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Schedule returns the next Ready/Running PID after the current one in
// ascending PID order; with no current process, or if the current PID
// is not among the runnable set, it returns the first runnable PID.
func (s *Scheduler) Schedule() (proc.Pid, bool) {
	candidates := s.runnable()
	if len(candidates) == 0 {
		return proc.InvalidPid, false
	}
	current := s.procs.CurrentPid()
	if current != proc.InvalidPid {
		for i, pid := range candidates {
			if pid == current {
				return candidates[(i+1)%len(candidates)], true
			}
		}
	}
	return candidates[0], true
}

// YieldCPU marks the current process Ready (if Running) and switches
// to the next scheduled process without going through the trap-frame
// save/restore path (used by tests and non-trap-driven callers).
func (s *Scheduler) YieldCPU() {
	current := s.procs.CurrentPid()
	s.accrueRunning(current)
	if current != proc.InvalidPid {
		if p, ok := s.procs.Get(current); ok && p.State == proc.Running {
			p.State = proc.Ready
		}
	}
	if next, ok := s.Schedule(); ok {
		s.procs.SetCurrent(next)
		if p, ok := s.procs.Get(next); ok {
			p.State = proc.Running
		}
	}
}

// BlockCurrent transitions the current process to Blocked.
func (s *Scheduler) BlockCurrent() {
	current := s.procs.CurrentPid()
	if current == proc.InvalidPid {
		return
	}
	if p, ok := s.procs.Get(current); ok {
		p.State = proc.Blocked
	}
}

// Unblock transitions pid from Blocked to Ready, a no-op otherwise.
func (s *Scheduler) Unblock(pid int) {
	p, ok := s.procs.Get(proc.Pid(pid))
	if !ok {
		return
	}
	if p.State == proc.Blocked {
		p.State = proc.Ready
	}
}

// MaybeSwitch performs a full context switch if warranted and reports
// whether one occurred: always when there is no current process or it
// is Blocked/Exited, and when Ready/Running only if a different
// process is also runnable (round-robin fairness, not preemption).
func (s *Scheduler) MaybeSwitch(tf *trapframe.Frame) bool {
	current := s.procs.CurrentPid()
	s.accrueRunning(current)

	shouldSwitch := true
	makeCurrentReady := false

	if current != proc.InvalidPid {
		p, ok := s.procs.Get(current)
		if !ok {
			shouldSwitch = true
		} else {
			switch p.State {
			case proc.Blocked, proc.Exited:
				shouldSwitch = true
			case proc.Running, proc.Ready:
				shouldSwitch = s.hasOtherRunnable(current)
				makeCurrentReady = shouldSwitch
			}
		}
	}

	if !shouldSwitch {
		return false
	}

	if current != proc.InvalidPid {
		s.procs.SaveCurrentRegisters(tf)
		s.procs.SaveCurrentMemory(s.window)
		if makeCurrentReady {
			if p, ok := s.procs.Get(current); ok && p.State == proc.Running {
				p.State = proc.Ready
			}
		}
	}

	next, ok := s.Schedule()
	if !ok {
		return false
	}
	s.procs.SetCurrent(next)
	s.procs.RestoreProcessMemory(next, s.window)
	s.procs.RestoreProcessRegisters(next, tf)
	if p, ok := s.procs.Get(next); ok {
		p.State = proc.Running
	}
	return true
}

func (s *Scheduler) hasOtherRunnable(current proc.Pid) bool {
	for _, p := range s.procs.AllProcesses() {
		if p.Pid != current && (p.State == proc.Ready || p.State == proc.Running) {
			return true
		}
	}
	return false
}
