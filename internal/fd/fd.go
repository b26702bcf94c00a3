// Package fd implements the per-process file descriptor table from
// §4.4: a fixed MaxFDs-slot table over a small closed set of
// descriptor kinds (UART, regular file, pipe end), grounded on the Go
// interface-over-union idiom in fd/fd.go (Fdops_i, Copyfd/Reopen) but
// with exact semantics ported from original_source/src/fd.rs.
package fd

import (
	"fmt"
	"sync"

	"rvos/internal/fs"
)

// MaxFDs is the fixed size of a per-process descriptor table.
const MaxFDs = 16

// Standard descriptor numbers, populated by Table.Init.
const (
	StdinFD  = 0
	StdoutFD = 1
	StderrFD = 2
)

// ErrorKind enumerates the descriptor-layer failure taxonomy.
type ErrorKind int

const (
	KindBadFd ErrorKind = iota
	KindTooManyOpen
	KindNotFound
	KindNotImplemented
	KindWouldBlock
	KindBrokenPipe
	KindFs
)

// Error is a descriptor-table failure.
type Error struct {
	Kind  ErrorKind
	msg   string
	Cause error
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.Cause }

var (
	ErrBadFd          = &Error{Kind: KindBadFd, msg: "bad file descriptor"}
	ErrTooManyOpen    = &Error{Kind: KindTooManyOpen, msg: "too many open files"}
	ErrNotFound       = &Error{Kind: KindNotFound, msg: "file not found"}
	ErrNotImplemented = &Error{Kind: KindNotImplemented, msg: "not implemented"}
	ErrWouldBlock     = &Error{Kind: KindWouldBlock, msg: "operation would block"}
	ErrBrokenPipe     = &Error{Kind: KindBrokenPipe, msg: "broken pipe"}
)

// ErrFs wraps a filesystem-layer error as a descriptor-layer failure.
func ErrFs(cause error) error {
	return &Error{Kind: KindFs, msg: fmt.Sprintf("filesystem error: %v", cause), Cause: cause}
}

// Descriptor is the operation set common to every open file descriptor
// kind, mirroring fd/fd.go's Fdops_i / Copyfd pattern.
type Descriptor interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Reopen() (Descriptor, error)
	Close() error
}

// Table is a process's fixed-size file descriptor table.
type Table struct {
	mu    sync.Mutex
	slots [MaxFDs]Descriptor
}

// NewTable returns an empty table.
func NewTable() *Table { return &Table{} }

// Init installs the standard stdin/stdout/stderr UART descriptors.
func (t *Table) Init(dev UartDevice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[StdinFD] = NewUartFd(UartRead, dev)
	t.slots[StdoutFD] = NewUartFd(UartWrite, dev)
	t.slots[StderrFD] = NewUartFd(UartWrite, dev)
}

// Alloc installs d in the first free slot and returns its number.
func (t *Table) Alloc(d Descriptor) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, slot := range t.slots {
		if slot == nil {
			t.slots[i] = d
			return i, nil
		}
	}
	return 0, ErrTooManyOpen
}

// Get returns the descriptor installed at fdNum.
func (t *Table) Get(fdNum int) (Descriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fdNum < 0 || fdNum >= MaxFDs || t.slots[fdNum] == nil {
		return nil, ErrBadFd
	}
	return t.slots[fdNum], nil
}

// Close releases fdNum, returning ErrBadFd if it was not open.
func (t *Table) Close(fdNum int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked(fdNum)
}

func (t *Table) closeLocked(fdNum int) error {
	if fdNum < 0 || fdNum >= MaxFDs {
		return ErrBadFd
	}
	d := t.slots[fdNum]
	if d == nil {
		return ErrBadFd
	}
	t.slots[fdNum] = nil
	return d.Close()
}

// Dup2 duplicates oldFd onto newFd, closing whatever was at newFd first.
func (t *Table) Dup2(oldFd, newFd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if oldFd < 0 || oldFd >= MaxFDs || newFd < 0 || newFd >= MaxFDs {
		return ErrBadFd
	}
	src := t.slots[oldFd]
	if src == nil {
		return ErrBadFd
	}
	cloned, err := src.Reopen()
	if err != nil {
		return err
	}
	if existing := t.slots[newFd]; existing != nil {
		if err := existing.Close(); err != nil {
			return err
		}
	}
	t.slots[newFd] = cloned
	return nil
}

// CloseAll closes every open descriptor, ignoring individual errors, as
// happens on process exit.
func (t *Table) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		_ = t.closeLocked(i)
	}
}

// Clone returns a fresh table with every open slot reopened (refcounts
// bumped on pipes), used by sys_spawn so a child inherits its parent's
// descriptors rather than sharing them.
func (t *Table) Clone() (*Table, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := NewTable()
	for i, slot := range t.slots {
		if slot == nil {
			continue
		}
		cloned, err := slot.Reopen()
		if err != nil {
			return nil, err
		}
		out.slots[i] = cloned
	}
	return out, nil
}

// UartMode distinguishes a read-only descriptor (stdin) from a
// write-only one (stdout/stderr).
type UartMode int

const (
	UartRead UartMode = iota
	UartWrite
)

// UartDevice is the byte-oriented collaborator internal/uart supplies.
type UartDevice interface {
	ReadByteBlocking() byte
	WriteBytes(buf []byte)
}

// UartFd is a console descriptor, fixed to one direction at open time.
type UartFd struct {
	mode UartMode
	dev  UartDevice
}

// NewUartFd wraps dev as a one-directional console descriptor.
func NewUartFd(mode UartMode, dev UartDevice) *UartFd { return &UartFd{mode: mode, dev: dev} }

func (u *UartFd) Read(buf []byte) (int, error) {
	if u.mode != UartRead {
		return 0, ErrBadFd
	}
	if len(buf) == 0 {
		return 0, nil
	}
	buf[0] = u.dev.ReadByteBlocking()
	return 1, nil
}

func (u *UartFd) Write(buf []byte) (int, error) {
	if u.mode != UartWrite {
		return 0, ErrBadFd
	}
	u.dev.WriteBytes(buf)
	return len(buf), nil
}

func (u *UartFd) Reopen() (Descriptor, error) {
	cp := *u
	return &cp, nil
}

func (u *UartFd) Close() error { return nil }

// FileMode controls FileFd's permitted operations.
type FileMode struct {
	Read, Write, Append, Create bool
}

func FileModeReadOnly() FileMode  { return FileMode{Read: true} }
func FileModeWriteOnly() FileMode { return FileMode{Write: true, Create: true} }
func FileModeReadWrite() FileMode { return FileMode{Read: true, Write: true, Create: true} }
func FileModeAppendMode() FileMode {
	return FileMode{Write: true, Append: true, Create: true}
}

// FileFd is a regular-file descriptor backed by internal/fs, with
// read/write semantics ported from FileFd::open/read/write in fd.rs:
// writes without Append overwrite the whole file (no partial-write
// seeking), matching that implementation's documented limitation.
type FileFd struct {
	fsys *fs.FS
	path string
	pos  int
	mode FileMode
}

// OpenFile opens path against fsys under mode, creating it if mode.Create
// and it does not yet exist.
func OpenFile(fsys *fs.FS, path string, mode FileMode) (*FileFd, error) {
	_, err := fsys.Read(path)
	exists := err == nil
	if !exists && !mode.Create {
		return nil, ErrNotFound
	}
	if !exists && mode.Create {
		if err := fsys.CreateFile(path); err != nil {
			return nil, ErrFs(err)
		}
	}
	pos := 0
	if mode.Append {
		if data, err := fsys.Read(path); err == nil {
			pos = len(data)
		}
	}
	return &FileFd{fsys: fsys, path: path, pos: pos, mode: mode}, nil
}

func (f *FileFd) Read(buf []byte) (int, error) {
	if !f.mode.Read {
		return 0, ErrBadFd
	}
	contents, err := f.fsys.Read(f.path)
	if err != nil {
		return 0, ErrFs(err)
	}
	if f.pos >= len(contents) {
		return 0, nil
	}
	n := copy(buf, contents[f.pos:])
	f.pos += n
	return n, nil
}

func (f *FileFd) Write(buf []byte) (int, error) {
	if !f.mode.Write {
		return 0, ErrBadFd
	}
	if f.mode.Append {
		contents, _ := f.fsys.Read(f.path)
		contents = append(contents, buf...)
		if err := f.fsys.Write(f.path, contents); err != nil {
			return 0, ErrFs(err)
		}
		f.pos = len(contents)
		return len(buf), nil
	}
	if err := f.fsys.Write(f.path, buf); err != nil {
		return 0, ErrFs(err)
	}
	f.pos = len(buf)
	return len(buf), nil
}

func (f *FileFd) Reopen() (Descriptor, error) {
	cp := *f
	return &cp, nil
}

func (f *FileFd) Close() error { return nil }
