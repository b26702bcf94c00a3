package uart

import "unsafe"

// DefaultBase is the QEMU virt machine's UART0 MMIO base address.
const DefaultBase uintptr = 0x1000_0000

// MMIORegs is the real byte-wide register window over physical memory.
type MMIORegs struct{ base uintptr }

// NewMMIORegs wraps the UART register window starting at base.
func NewMMIORegs(base uintptr) *MMIORegs { return &MMIORegs{base: base} }

func (m *MMIORegs) ReadReg(offset uintptr) byte {
	return *(*byte)(unsafe.Pointer(m.base + offset))
}

func (m *MMIORegs) WriteReg(offset uintptr, value byte) {
	*(*byte)(unsafe.Pointer(m.base + offset)) = value
}
