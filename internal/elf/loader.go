package elf

import (
	"encoding/binary"
	"errors"

	"rvos/internal/util"
	"rvos/internal/uwindow"
)

// ErrOutOfMemory is returned when a segment or the initial stack would
// not fit inside the user window.
var ErrOutOfMemory = errors.New("elf: image exceeds user window")

const maxArgs = 16

// LoadIntoWindow copies every PT_LOAD segment's file bytes into the
// window at offset (seg.Vaddr - base). bss (MemSize > FileSize) reads
// back zero because callers are expected to Window.Zero() before a
// fresh load.
func LoadIntoWindow(w *uwindow.Window, f *File) error {
	base := f.BaseVaddr()
	for _, seg := range f.Segments {
		off := int(seg.Vaddr - base)
		if off+int(seg.MemSize) > uwindow.Size {
			return ErrOutOfMemory
		}
		if seg.FileSize > 0 {
			start := int(seg.FileOffset)
			end := start + int(seg.FileSize)
			if end > len(f.Data) {
				return ErrTruncated
			}
			if !w.WriteAt(off, f.Data[start:end]) {
				return ErrOutOfMemory
			}
		}
	}
	return nil
}

// EntryOffset returns the entry point as an offset within the window.
func (f *File) EntryOffset() uint64 {
	return f.Entry - f.BaseVaddr()
}

// Stack is the result of building the initial user stack: the stack
// pointer, argc and the argv pointer array's address, all as offsets
// within the user window (a0=argc, a1=argv_ptr is the first-entry ABI).
type Stack struct {
	SP      uint64
	Argc    uint64
	ArgvPtr uint64
}

// BuildUserStack lays out args at the top of the window following
// §4.3: push each NUL-terminated argument (descending SP), align to 16
// bytes with parity padding, push a NULL terminator, push argv pointers
// in reverse, push argc.
func BuildUserStack(w *uwindow.Window, args [][]byte) (Stack, error) {
	argc := len(args)
	if argc > maxArgs {
		return Stack{}, errors.New("elf: too many arguments")
	}
	sp := uint64(uwindow.Size)
	argPtrs := make([]uint64, argc)

	for i := argc - 1; i >= 0; i-- {
		b := args[i]
		n := uint64(len(b)) + 1
		if sp < n {
			return Stack{}, ErrOutOfMemory
		}
		sp -= n
		if !w.WriteAt(int(sp), b) {
			return Stack{}, ErrOutOfMemory
		}
		if !w.WriteAt(int(sp)+len(b), []byte{0}) {
			return Stack{}, ErrOutOfMemory
		}
		argPtrs[i] = sp
	}

	sp = util.Rounddown(sp, 16)

	pointerPushes := uint64(argc) + 2
	if pointerPushes&1 != 0 {
		sp -= 8
		if !writeWord(w, sp, 0) {
			return Stack{}, ErrOutOfMemory
		}
	}

	sp -= 8
	if !writeWord(w, sp, 0) { // argv[] NULL terminator
		return Stack{}, ErrOutOfMemory
	}

	for i := argc - 1; i >= 0; i-- {
		sp -= 8
		if !writeWord(w, sp, argPtrs[i]) {
			return Stack{}, ErrOutOfMemory
		}
	}
	argvPtr := sp

	sp -= 8
	if !writeWord(w, sp, uint64(argc)) {
		return Stack{}, ErrOutOfMemory
	}

	return Stack{SP: sp, Argc: uint64(argc), ArgvPtr: argvPtr}, nil
}

func writeWord(w *uwindow.Window, off uint64, v uint64) bool {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return w.WriteAt(int(off), buf[:])
}
