// Package uwindow models the single fixed physical range that holds the
// currently running process's code, data, bss and stack. There is no
// MMU: every process shares this one window, and a context switch is a
// pair of memcpys between the window and the outgoing/incoming
// process's snapshot buffer (see SPEC_FULL.md §9, "Single shared user
// window").
package uwindow

// Size is the user window size, W = 128 KiB.
const Size = 128 * 1024

// Window is the kernel's single physical user address range.
type Window struct {
	buf [Size]byte
}

// Zero clears the window, used before loading a new ELF image so that
// bss (memsz > filesz) reads back as zero without an explicit memset
// per segment.
func (w *Window) Zero() {
	for i := range w.buf {
		w.buf[i] = 0
	}
}

// Bytes returns the live window backing slice. Callers must not retain
// it across a context switch: the contents are only valid for the
// currently running process.
func (w *Window) Bytes() []byte { return w.buf[:] }

// WriteAt copies src into the window starting at offset off, failing if
// it would run past the end of the window.
func (w *Window) WriteAt(off int, src []byte) bool {
	if off < 0 || off+len(src) > Size {
		return false
	}
	copy(w.buf[off:], src)
	return true
}

// ReadAt copies length bytes starting at offset off into a fresh slice,
// failing if the range runs past the end of the window.
func (w *Window) ReadAt(off, length int) ([]byte, bool) {
	if off < 0 || length < 0 || off+length > Size {
		return nil, false
	}
	out := make([]byte, length)
	copy(out, w.buf[off:off+length])
	return out, true
}

// Snapshot is a byte-for-byte copy of a process's user window, owned by
// its PCB while the process is not Running.
type Snapshot struct {
	buf [Size]byte
}

// Save copies the window's current contents into the snapshot.
func (s *Snapshot) Save(w *Window) { s.buf = w.buf }

// Restore copies the snapshot's contents back into the window.
func (s *Snapshot) Restore(w *Window) { w.buf = s.buf }
