// Package trapframe models the register state saved by the low-level
// ecall trampoline: the general-purpose registers plus the two CSRs the
// kernel uses to park the user PC and SP across a trap (sepc, sscratch).
package trapframe

// NRegs is the RISC-V integer register count, x0 (always zero) through
// x31. x0 is still stored for layout fidelity with the trampoline's
// register-save stub, even though it is never read back.
const NRegs = 32

// RISC-V ABI register indices used by the syscall path.
const (
	RegA0 = 10
	RegA1 = 11
	RegA2 = 12
	RegA3 = 13
	RegA4 = 14
	RegA5 = 15
)

// Frame is the saved user register file on kernel entry, plus the two
// CSRs that hold the faulting PC (sepc) and the kernel-chosen scratch
// word used to park the user SP (sscratch) across the trap.
type Frame struct {
	Regs [NRegs]uint64
	Sepc uint64
	Sp   uint64
}

// A0 returns the syscall number / primary return register.
func (f *Frame) A0() int64 { return int64(f.Regs[RegA0]) }

// SetA0 sets the syscall return value, sign-extension happens naturally
// via the int64->uint64 conversion.
func (f *Frame) SetA0(v int64) { f.Regs[RegA0] = uint64(v) }

// Arg returns argument register a1..a5 (n in [1,5]).
func (f *Frame) Arg(n int) uint64 { return f.Regs[RegA0+n] }

// AdvancePastEcall moves sepc past the 4-byte ecall instruction, step 1
// of the trap handler per the spec's §4.7.
func (f *Frame) AdvancePastEcall() { f.Sepc += 4 }

// Clone returns an independent copy of the frame.
func (f *Frame) Clone() Frame {
	out := *f
	return out
}
