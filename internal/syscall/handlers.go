package syscall

import (
	"encoding/binary"
	"errors"
	"unicode/utf8"

	"rvos/internal/elf"
	"rvos/internal/fd"
	"rvos/internal/proc"
	"rvos/internal/trapframe"
	"rvos/internal/uwindow"
)

// sysWrite writes a1's buffer (at a2, length a3) to descriptor a1...
// matching the original ABI: a1=fd, a2=ptr, a3=len.
func (k *Kernel) sysWrite(tf *trapframe.Frame) (int64, error) {
	fdNum := int(tf.Arg(1))
	ptr := tf.Arg(2)
	length := tf.Arg(3)

	if length == 0 {
		return 0, nil
	}
	if ptr == 0 {
		return 0, errFault
	}
	bytes, ok := k.Window.ReadAt(int(ptr), int(length))
	if !ok {
		return 0, errFault
	}

	writerPid := k.Procs.CurrentPid()
	p, ok := k.Procs.Get(writerPid)
	if !ok {
		return 0, fd.ErrBadFd
	}
	d, err := p.Fds.Get(fdNum)
	if err != nil {
		return 0, err
	}

	pipeFd, isPipe := d.(*fd.PipeFd)
	n, err := d.Write(bytes)
	if err != nil {
		if err == fd.ErrWouldBlock {
			if isPipe {
				_ = k.Pipes.MarkWriterWaiting(pipeFd.PipeID(), int(writerPid))
			}
			k.Sched.BlockCurrent()
		}
		return 0, err
	}
	return int64(n), nil
}

func (k *Kernel) sysExit(tf *trapframe.Frame) (int64, error) {
	code := int64(tf.Arg(1))
	pid := k.Procs.CurrentPid()
	if pid != proc.InvalidPid {
		k.Procs.ExitProcess(pid, code)
		if p, ok := k.Procs.Get(pid); ok && p.ParentPid != proc.InvalidPid {
			k.Sched.Unblock(int(p.ParentPid))
		}
	}
	return code, nil
}

func (k *Kernel) sysFileWrite(tf *trapframe.Frame) (int64, error) {
	path, err := k.readPath(tf.Arg(1), tf.Arg(2))
	if err != nil {
		return 0, err
	}
	dataPtr := tf.Arg(3)
	dataLen := tf.Arg(4)

	var data []byte
	if dataLen != 0 {
		if dataPtr == 0 {
			return 0, errFault
		}
		buf, ok := k.Window.ReadAt(int(dataPtr), int(dataLen))
		if !ok {
			return 0, errFault
		}
		data = buf
	}

	if err := k.FSys.Write(path, data); err != nil {
		return 0, err
	}
	return int64(dataLen), nil
}

func (k *Kernel) sysFileRead(tf *trapframe.Frame) (int64, error) {
	path, err := k.readPath(tf.Arg(1), tf.Arg(2))
	if err != nil {
		return 0, err
	}
	bufPtr := tf.Arg(3)
	bufLen := tf.Arg(4)

	if bufLen > 0 && bufPtr == 0 {
		return 0, errFault
	}

	contents, err := k.FSys.Read(path)
	if err != nil {
		return 0, err
	}
	toCopy := uint64(len(contents))
	if toCopy > bufLen {
		toCopy = bufLen
	}
	if toCopy > 0 {
		if !k.Window.WriteAt(int(bufPtr), contents[:toCopy]) {
			return 0, errFault
		}
	}
	return int64(toCopy), nil
}

func (k *Kernel) sysFileCreate(tf *trapframe.Frame) (int64, error) {
	path, err := k.readPath(tf.Arg(1), tf.Arg(2))
	if err != nil {
		return 0, err
	}
	if err := k.FSys.CreateFile(path); err != nil {
		return 0, err
	}
	return 0, nil
}

func (k *Kernel) sysFileDelete(tf *trapframe.Frame) (int64, error) {
	path, err := k.readPath(tf.Arg(1), tf.Arg(2))
	if err != nil {
		return 0, err
	}
	if err := k.FSys.RemoveFile(path); err != nil {
		return 0, err
	}
	return 0, nil
}

func (k *Kernel) sysDirCreate(tf *trapframe.Frame) (int64, error) {
	path, err := k.readPath(tf.Arg(1), tf.Arg(2))
	if err != nil {
		return 0, err
	}
	if err := k.FSys.Mkdir(path); err != nil {
		return 0, err
	}
	return 0, nil
}

func (k *Kernel) sysDirDelete(tf *trapframe.Frame) (int64, error) {
	path, err := k.readPath(tf.Arg(1), tf.Arg(2))
	if err != nil {
		return 0, err
	}
	if err := k.FSys.RemoveDirectory(path); err != nil {
		return 0, err
	}
	return 0, nil
}

func (k *Kernel) sysOpen(tf *trapframe.Frame) (int64, error) {
	path, err := k.readPath(tf.Arg(1), tf.Arg(2))
	if err != nil {
		return 0, err
	}
	flags := tf.Arg(3)
	mode := fd.FileMode{
		Read:   flags&0x1 != 0,
		Write:  flags&0x2 != 0,
		Create: flags&0x4 != 0,
		Append: flags&0x8 != 0,
	}

	fileFd, err := fd.OpenFile(k.FSys, path, mode)
	if err != nil {
		return 0, err
	}
	table, _, err := k.currentFdTable()
	if err != nil {
		return 0, err
	}
	fdNum, err := table.Alloc(fileFd)
	if err != nil {
		return 0, err
	}
	return int64(fdNum), nil
}

func (k *Kernel) sysClose(tf *trapframe.Frame) (int64, error) {
	fdNum := int(tf.Arg(1))
	table, _, err := k.currentFdTable()
	if err != nil {
		return 0, err
	}
	if err := table.Close(fdNum); err != nil {
		return 0, err
	}
	return 0, nil
}

func (k *Kernel) sysRead(tf *trapframe.Frame) (int64, error) {
	fdNum := int(tf.Arg(1))
	bufPtr := tf.Arg(2)
	bufLen := tf.Arg(3)

	if bufLen > 0 && bufPtr == 0 {
		return 0, errFault
	}

	readerPid := k.Procs.CurrentPid()
	p, ok := k.Procs.Get(readerPid)
	if !ok {
		return 0, fd.ErrBadFd
	}
	d, err := p.Fds.Get(fdNum)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, bufLen)
	pipeFd, isPipe := d.(*fd.PipeFd)
	n, err := d.Read(buf)
	if err != nil {
		if err == fd.ErrWouldBlock {
			if isPipe {
				_ = k.Pipes.MarkReaderWaiting(pipeFd.PipeID(), int(readerPid))
			}
			k.Sched.BlockCurrent()
		}
		return 0, err
	}

	if n > 0 {
		if !k.Window.WriteAt(int(bufPtr), buf[:n]) {
			return 0, errFault
		}
	}
	return int64(n), nil
}

func (k *Kernel) sysDup2(tf *trapframe.Frame) (int64, error) {
	oldFd := int(tf.Arg(1))
	newFd := int(tf.Arg(2))
	table, _, err := k.currentFdTable()
	if err != nil {
		return 0, err
	}
	if err := table.Dup2(oldFd, newFd); err != nil {
		return 0, err
	}
	return int64(newFd), nil
}

func (k *Kernel) sysPipe(tf *trapframe.Frame) (int64, error) {
	fdsPtr := tf.Arg(1)
	if fdsPtr == 0 {
		return 0, errFault
	}

	pipeID, err := k.Pipes.CreatePipe()
	if err != nil {
		return 0, err
	}
	readFd := fd.NewPipeFd(k.Pipes, pipeID, true)
	writeFd := fd.NewPipeFd(k.Pipes, pipeID, false)

	table, _, err := k.currentFdTable()
	if err != nil {
		return 0, err
	}
	readNum, err := table.Alloc(readFd)
	if err != nil {
		return 0, err
	}
	writeNum, err := table.Alloc(writeFd)
	if err != nil {
		_ = table.Close(readNum)
		return 0, err
	}

	var out [16]byte
	binary.LittleEndian.PutUint64(out[0:8], uint64(readNum))
	binary.LittleEndian.PutUint64(out[8:16], uint64(writeNum))
	if !k.Window.WriteAt(int(fdsPtr), out[:]) {
		return 0, errFault
	}
	return 0, nil
}

// sysSpawn loads path's ELF image into the shared window to build the
// child's initial memory and stack, then restores the parent's window,
// ported from sys_spawn in syscall.rs: save -> zero+load child -> build
// stack -> snapshot child -> restore parent -> install PCB.
func (k *Kernel) sysSpawn(tf *trapframe.Frame) (int64, error) {
	path, err := k.readPath(tf.Arg(1), tf.Arg(2))
	if err != nil {
		return 0, err
	}
	argvPtr := tf.Arg(3)
	argc := tf.Arg(4)
	argLensPtr := tf.Arg(5)

	args, err := k.readSpawnArgs(argvPtr, argc, argLensPtr)
	if err != nil {
		return 0, err
	}

	data, readErr := k.FSys.Read(path)
	if readErr != nil {
		return 0, &proc.SpawnError{Kind: proc.SpawnProgramNotFound}
	}
	program, parseErr := elf.Parse(data)
	if parseErr != nil {
		return 0, &proc.SpawnError{Kind: proc.SpawnProgramNotFound}
	}

	fdTable := k.inheritedFdTable()

	var saved uwindow.Snapshot
	saved.Save(k.Window)

	k.Window.Zero()
	if err := elf.LoadIntoWindow(k.Window, program); err != nil {
		saved.Restore(k.Window)
		if errors.Is(err, elf.ErrOutOfMemory) {
			return 0, &proc.SpawnError{Kind: proc.SpawnOutOfMemory}
		}
		return 0, &proc.SpawnError{Kind: proc.SpawnLoadFailed}
	}
	stack, err := elf.BuildUserStack(k.Window, args)
	if err != nil {
		saved.Restore(k.Window)
		if errors.Is(err, elf.ErrOutOfMemory) {
			return 0, &proc.SpawnError{Kind: proc.SpawnOutOfMemory}
		}
		return 0, &proc.SpawnError{Kind: proc.SpawnLoadFailed}
	}

	var childMemory uwindow.Snapshot
	childMemory.Save(k.Window)
	saved.Restore(k.Window)

	argStrings := make([]string, len(args))
	for i, a := range args {
		argStrings[i] = string(a)
	}

	childPid, err := k.Procs.Spawn(program.EntryOffset(), stack.SP, path, argStrings, fdTable, &childMemory, stack.Argc, stack.ArgvPtr)
	if err != nil {
		return 0, err
	}
	return int64(childPid), nil
}

// readSpawnArgs reads argc argv_ptr[i] entries (each an offset into the
// window) and their lengths, falling back to a NUL scan capped at 4096
// bytes when arg_lens_ptr is absent, exactly as syscall.rs does.
func (k *Kernel) readSpawnArgs(argvPtr, argc, argLensPtr uint64) ([][]byte, error) {
	if argc == 0 || argvPtr == 0 {
		return nil, nil
	}
	var args [][]byte
	for i := uint64(0); i < argc; i++ {
		entry, ok := k.Window.ReadAt(int(argvPtr)+int(i)*8, 8)
		if !ok {
			return nil, errFault
		}
		argOff := binary.LittleEndian.Uint64(entry)
		if argOff == 0 {
			break
		}

		var length uint64
		if argLensPtr != 0 {
			lenBytes, ok := k.Window.ReadAt(int(argLensPtr)+int(i)*8, 8)
			if !ok {
				return nil, errFault
			}
			length = binary.LittleEndian.Uint64(lenBytes)
		} else {
			l := 0
			for {
				b, ok := k.Window.ReadAt(int(argOff)+l, 1)
				if !ok {
					return nil, errFault
				}
				if b[0] == 0 {
					break
				}
				l++
				if l > 4096 {
					return nil, errFault
				}
			}
			length = uint64(l)
		}

		argBytes, ok := k.Window.ReadAt(int(argOff), int(length))
		if !ok {
			return nil, errFault
		}
		if !utf8.Valid(argBytes) {
			return nil, errInvalidUTF8
		}
		args = append(args, argBytes)
	}
	return args, nil
}

// inheritedFdTable clones the current process's descriptor table for a
// spawned child, or returns an empty table if there is no parent.
func (k *Kernel) inheritedFdTable() *fd.Table {
	parentPid := k.Procs.CurrentPid()
	if parentPid == proc.InvalidPid {
		return fd.NewTable()
	}
	parent, ok := k.Procs.Get(parentPid)
	if !ok {
		return fd.NewTable()
	}
	cloned, err := parent.Fds.Clone()
	if err != nil {
		return fd.NewTable()
	}
	return cloned
}

func (k *Kernel) sysWait(tf *trapframe.Frame) (int64, error) {
	statusPtr := tf.Arg(1)
	currentPid := k.Procs.CurrentPid()
	if currentPid == proc.InvalidPid {
		return 0, errChild
	}
	if !k.Procs.HasChildren(currentPid) {
		return 0, errChild
	}

	if childPid, code, ok := k.Procs.Wait(currentPid); ok {
		if statusPtr != 0 {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], uint64(code))
			if !k.Window.WriteAt(int(statusPtr), buf[:]) {
				return 0, errFault
			}
		}
		return int64(childPid), nil
	}

	k.Sched.BlockCurrent()
	return 0, fd.ErrWouldBlock
}
