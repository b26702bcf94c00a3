// Package syscall dispatches the 15 ecall-numbered system calls from
// §4.7, grounded on original_source/src/syscall.rs. There is no MMU in
// this hosted model, so every "pointer" argument a user program passes
// in a1..a5 is an offset into the single shared internal/uwindow.Window
// rather than a host address; see SPEC_FULL.md's External Interfaces
// section for the rationale and DESIGN.md for the decision record.
package syscall

import (
	"errors"
	"unicode/utf8"

	"rvos/internal/fd"
	"rvos/internal/fs"
	"rvos/internal/kerr"
	"rvos/internal/proc"
	"rvos/internal/sched"
	"rvos/internal/trapframe"
	"rvos/internal/uwindow"
)

// Syscall numbers, a0 on entry.
const (
	SysWrite      = 1
	SysExit       = 2
	SysFileWrite  = 3
	SysFileRead   = 4
	SysFileCreate = 5
	SysFileDelete = 6
	SysDirCreate  = 7
	SysDirDelete  = 8
	SysOpen       = 9
	SysClose      = 10
	SysRead       = 11
	SysDup2       = 12
	SysPipe       = 13
	SysSpawn      = 14
	SysWait       = 15
)

var (
	errNoSys       = errors.New("syscall: no such syscall")
	errInvalidUTF8 = errors.New("syscall: argument is not valid utf-8")
	errFault       = errors.New("syscall: bad user pointer")
	errChild       = errors.New("syscall: no child processes")
	errNoProcess   = errors.New("syscall: no current process")
)

// Kernel bundles every subsystem a syscall handler needs to touch.
type Kernel struct {
	Procs  *proc.Table
	Sched  *sched.Scheduler
	Window *uwindow.Window
	FSys   *fs.FS
	Pipes  *fd.PipeTable
}

// HandleEcall is the trap handler's entry point for both SupervisorEnvCall
// and UserEnvCall: advance past the ecall instruction, dispatch, write the
// return value (or its negative errno) into a0, then let the scheduler
// decide whether to context-switch.
func (k *Kernel) HandleEcall(tf *trapframe.Frame) {
	tf.AdvancePastEcall()
	ret, err := k.dispatch(tf)
	if err != nil {
		tf.SetA0(int64(errnoFor(err)))
	} else {
		tf.SetA0(ret)
	}
	k.Sched.MaybeSwitch(tf)
}

func (k *Kernel) dispatch(tf *trapframe.Frame) (int64, error) {
	switch tf.A0() {
	case SysWrite:
		return k.sysWrite(tf)
	case SysExit:
		return k.sysExit(tf)
	case SysFileWrite:
		return k.sysFileWrite(tf)
	case SysFileRead:
		return k.sysFileRead(tf)
	case SysFileCreate:
		return k.sysFileCreate(tf)
	case SysFileDelete:
		return k.sysFileDelete(tf)
	case SysDirCreate:
		return k.sysDirCreate(tf)
	case SysDirDelete:
		return k.sysDirDelete(tf)
	case SysOpen:
		return k.sysOpen(tf)
	case SysClose:
		return k.sysClose(tf)
	case SysRead:
		return k.sysRead(tf)
	case SysDup2:
		return k.sysDup2(tf)
	case SysPipe:
		return k.sysPipe(tf)
	case SysSpawn:
		return k.sysSpawn(tf)
	case SysWait:
		return k.sysWait(tf)
	default:
		return 0, errNoSys
	}
}

// readPath reads a length-prefixed path string out of the window.
func (k *Kernel) readPath(ptr, length uint64) (string, error) {
	if length == 0 {
		return "", nil
	}
	if ptr == 0 {
		return "", errFault
	}
	raw, ok := k.Window.ReadAt(int(ptr), int(length))
	if !ok {
		return "", errFault
	}
	if !utf8.Valid(raw) {
		return "", errInvalidUTF8
	}
	return string(raw), nil
}

func (k *Kernel) currentFdTable() (*fd.Table, proc.Pid, error) {
	pid := k.Procs.CurrentPid()
	if pid == proc.InvalidPid {
		return nil, pid, errNoProcess
	}
	p, ok := k.Procs.Get(pid)
	if !ok {
		return nil, pid, errNoProcess
	}
	return p.Fds, pid, nil
}

// errnoFor maps a handler's returned error to the negative errno value
// placed in a0, mirroring syscall.rs's fs_errno/fd_errno/proc_errno and
// the dispatch() match that wraps them.
func errnoFor(err error) kerr.Errno {
	switch {
	case err == nil:
		return kerr.OK
	case errors.Is(err, errNoSys):
		return kerr.ENOSYS
	case errors.Is(err, errFault):
		return kerr.EFAULT
	case errors.Is(err, errInvalidUTF8):
		return kerr.EINVAL
	case errors.Is(err, errChild):
		return kerr.ECHILD
	case errors.Is(err, errNoProcess):
		return kerr.EBADF
	}

	var fdErr *fd.Error
	if errors.As(err, &fdErr) {
		return fdErrno(fdErr)
	}
	var fsErr *fs.Error
	if errors.As(err, &fsErr) {
		return fsErrno(fsErr)
	}
	var spawnErr *proc.SpawnError
	if errors.As(err, &spawnErr) {
		return procErrno(spawnErr)
	}
	return kerr.EINVAL
}

func fsErrno(e *fs.Error) kerr.Errno {
	switch e.Kind {
	case fs.KindNotInitialized:
		return kerr.EIO
	case fs.KindNameTooLong:
		return kerr.ENAMETOOLONG
	case fs.KindDirectoryFull, fs.KindNoSpace:
		return kerr.ENOSPC
	case fs.KindNotFound:
		return kerr.ENOENT
	case fs.KindInvalidPath:
		return kerr.EINVAL
	case fs.KindDeviceInitFailed:
		return kerr.ENXIO
	case fs.KindNotADirectory, fs.KindIsFile:
		return kerr.ENOTDIR
	case fs.KindAlreadyExists:
		return kerr.EEXIST
	case fs.KindDirectoryNotEmpty:
		return kerr.ENOTEMPTY
	case fs.KindIsDirectory:
		return kerr.EISDIR
	default:
		return kerr.EINVAL
	}
}

func fdErrno(e *fd.Error) kerr.Errno {
	switch e.Kind {
	case fd.KindBadFd:
		return kerr.EBADF
	case fd.KindTooManyOpen:
		return kerr.EMFILE
	case fd.KindNotFound:
		return kerr.ENOENT
	case fd.KindNotImplemented:
		return kerr.ENOSYS
	case fd.KindWouldBlock:
		return kerr.EAGAIN
	case fd.KindBrokenPipe:
		return kerr.EPIPE
	case fd.KindFs:
		var fsErr *fs.Error
		if errors.As(e.Cause, &fsErr) {
			return fsErrno(fsErr)
		}
		return kerr.EIO
	default:
		return kerr.EINVAL
	}
}

func procErrno(e *proc.SpawnError) kerr.Errno {
	switch e.Kind {
	case proc.SpawnTooManyProcesses:
		return kerr.EMFILE
	case proc.SpawnProgramNotFound:
		return kerr.ENOENT
	case proc.SpawnLoadFailed:
		return kerr.EIO
	case proc.SpawnOutOfMemory:
		return kerr.ENOMEM
	default:
		return kerr.EINVAL
	}
}
