package virtio

import "unsafe"

// MMIORegs is the production Regs implementation: raw volatile-style
// loads and stores over a memory-mapped device window at a fixed base
// address, exactly as original_source/src/virtio.rs's read32/write32
// free functions do.
type MMIORegs struct {
	base uintptr
}

// DefaultBase is the QEMU virt board's virtio-mmio block device base.
const DefaultBase uintptr = 0x1000_1000

// NewMMIORegs returns a Regs bound to the given MMIO base address.
func NewMMIORegs(base uintptr) *MMIORegs { return &MMIORegs{base: base} }

func (r *MMIORegs) Read32(offset uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(r.base + offset))
}

func (r *MMIORegs) Write32(offset uintptr, value uint32) {
	*(*uint32)(unsafe.Pointer(r.base + offset)) = value
}

// ReadBlockConfig reads the block device's configuration space: the
// first field (capacity, u64) and the blk_size field at its fixed byte
// offset within virtio_blk_config.
func (r *MMIORegs) ReadBlockConfig() (capacitySectors uint64, blockSize uint32) {
	const configOffset = 0x100
	const blkSizeOffset = configOffset + 20 // capacity(8) + size_max(4) + seg_max(4) + geometry(4)
	lo := uint64(r.Read32(configOffset))
	hi := uint64(r.Read32(configOffset + 4))
	capacitySectors = lo | hi<<32
	blockSize = r.Read32(blkSizeOffset)
	return
}
