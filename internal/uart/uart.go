// Package uart drives a 16550-compatible UART, the console collaborator
// behind fd descriptors 0/1/2. Grounded on original_source/src/uart.rs:
// same register offsets, init sequence, LSR polling and RX-queue
// buffering; register access sits behind a Regs interface the way
// internal/virtio splits Regs from BlockDevice, so the driver can be
// exercised without real MMIO.
package uart

import "sync"

// Register offsets relative to the UART's base address.
const (
	RegRBR = 0 // Receiver Buffer Register (read)
	RegTHR = 0 // Transmitter Holding Register (write)
	RegIER = 1 // Interrupt Enable Register
	RegFCR = 2 // FIFO Control Register
	RegLCR = 3 // Line Control Register
	RegMCR = 4 // Modem Control Register
	RegLSR = 5 // Line Status Register
)

const (
	lsrDataReady byte = 1 << 0
	lsrThrEmpty  byte = 1 << 5

	ierReceiveAvailable byte = 1 << 0
)

// Regs is the byte-wide register access a UART transport must provide.
type Regs interface {
	ReadReg(offset uintptr) byte
	WriteReg(offset uintptr, value byte)
}

// UART drives the console over regs, queuing received bytes the way
// an interrupt handler would.
type UART struct {
	mu   sync.Mutex
	regs Regs
	rx   []byte
}

// Init configures regs for 8N1 with FIFOs and RX interrupts enabled,
// mirroring uart.rs's init() register-write sequence exactly.
func Init(regs Regs) *UART {
	regs.WriteReg(RegLCR, 0x80)
	regs.WriteReg(RegTHR, 0x00)
	regs.WriteReg(RegIER, 0x00)
	regs.WriteReg(RegLCR, 0x03)
	regs.WriteReg(RegFCR, 0x07)
	regs.WriteReg(RegMCR, 0x0B)
	regs.WriteReg(RegIER, ierReceiveAvailable)
	return &UART{regs: regs}
}

// WriteByte spins until the transmit holding register is empty, then
// sends byte.
func (u *UART) WriteByte(b byte) {
	for u.regs.ReadReg(RegLSR)&lsrThrEmpty == 0 {
	}
	u.regs.WriteReg(RegTHR, b)
}

// WriteBytes sends buf, translating '\n' to "\r\n".
func (u *UART) WriteBytes(buf []byte) {
	for _, b := range buf {
		if b == '\n' {
			u.WriteByte('\r')
		}
		u.WriteByte(b)
	}
}

// ReadByteNonblocking pops a previously queued byte, if any.
func (u *UART) ReadByteNonblocking() (byte, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.rx) == 0 {
		return 0, false
	}
	b := u.rx[0]
	u.rx = u.rx[1:]
	return b, true
}

// ReadByteBlocking waits for a byte, draining the queue first and
// falling back to polling LSR directly in case interrupts were missed.
func (u *UART) ReadByteBlocking() byte {
	for {
		if b, ok := u.ReadByteNonblocking(); ok {
			return b
		}
		if u.regs.ReadReg(RegLSR)&lsrDataReady != 0 {
			return u.regs.ReadReg(RegRBR)
		}
	}
}

// HasPendingByte reports whether a received byte is queued.
func (u *UART) HasPendingByte() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.rx) > 0
}

// HandleInterrupt drains every ready byte from the hardware into the
// RX queue, the handler a PLIC dispatch would call.
func (u *UART) HandleInterrupt() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for u.regs.ReadReg(RegLSR)&lsrDataReady != 0 {
		u.rx = append(u.rx, u.regs.ReadReg(RegRBR))
	}
}
