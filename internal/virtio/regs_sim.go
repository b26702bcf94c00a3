package virtio

import "sync"

// SimDisk is an in-memory backing store standing in for the physical
// block device a real VirtIO transport would DMA against, grounded on
// ufs/driver.go's ahci_disk_t: a host-side fake that lets the rest of
// the stack run and be tested without real hardware.
type SimDisk struct {
	mu     sync.Mutex
	blocks [][SectorSize]byte
}

// NewSimDisk allocates a zeroed disk of the given sector count.
func NewSimDisk(totalBlocks int) *SimDisk {
	return &SimDisk{blocks: make([][SectorSize]byte, totalBlocks)}
}

// TotalBlocks reports the simulated disk's sector count.
func (d *SimDisk) TotalBlocks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.blocks)
}

func (d *SimDisk) read(index uint32, out []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(out, d.blocks[index][:])
}

func (d *SimDisk) write(index uint32, in []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.blocks[index][:], in)
}

// SimRegs is a Regs implementation that plays the device side of the
// VirtIO-MMIO v2 protocol entirely in Go: it answers the
// discovery/negotiation reads the real init sequence expects, and on a
// QUEUE_NOTIFY write it walks the same QueueMemory the driver just
// built a descriptor chain in and performs the requested sector
// transfer against a SimDisk. This exercises the driver's ring
// construction and polling logic exactly as written, without hardware.
type SimRegs struct {
	mem  *queueMem
	disk *SimDisk

	status           uint32
	featuresSel      uint32
	configGeneration uint32
	interruptStatus  uint32
}

// NewSimRegs binds a simulated device to qm (which Init must also be
// given) and disk.
func NewSimRegs(qm *QueueMemory, disk *SimDisk) *SimRegs {
	return &SimRegs{mem: &qm.m, disk: disk}
}

func (r *SimRegs) Read32(offset uintptr) uint32 {
	switch offset {
	case offMagic:
		return magicValue
	case offVersion:
		return 2
	case offDeviceID:
		return 2
	case offDeviceFeatures:
		if r.featuresSel == 1 {
			return virtioF_VERSION_1
		}
		return 0
	case offStatus:
		return r.status
	case offQueueNumMax:
		return QueueSize
	case offConfigGeneration:
		return r.configGeneration
	case offInterruptStatus:
		return r.interruptStatus
	default:
		return 0
	}
}

func (r *SimRegs) Write32(offset uintptr, value uint32) {
	switch offset {
	case offDeviceFeaturesSel:
		r.featuresSel = value
	case offStatus:
		r.status = value
	case offQueueNotify:
		r.process()
	case offInterruptAck:
		r.interruptStatus &^= value
	}
}

func (r *SimRegs) ReadBlockConfig() (capacitySectors uint64, blockSize uint32) {
	return uint64(r.disk.TotalBlocks()), SectorSize
}

// process services the single in-flight request synchronously, the
// simulated stand-in for the device's DMA engine.
func (r *SimRegs) process() {
	m := r.mem
	sector := uint32(m.reqSector)
	if m.reqType == 0 {
		r.disk.read(sector, m.reqData)
	} else {
		r.disk.write(sector, m.reqData)
	}
	m.reqStatus = 0

	slot := m.usedIdx % QueueSize
	m.usedRing[slot] = usedElem{id: 0, len: SectorSize}
	m.usedIdx++
}
