// Package elf implements a minimal, freestanding ELF64 LSB parser and
// loader: exactly what placing a PT_LOAD-only program image into a
// single fixed physical user window requires. It does not use
// debug/elf — that package validates against section-header and
// OS/ABI conventions this loader never sees (no section headers are
// shipped with the binaries it loads), and it offers no way to assert
// "fail unless phentsize == 56" without hand-parsing the raw header
// first anyway. encoding/binary is used for field decode, same as
// chentry.go's own host-side ELF inspection.
package elf

import (
	"encoding/binary"
	"errors"
)

const (
	classELF64  = 2
	dataLSB     = 1
	elfVersion1 = 1
	ptLoad      = 1

	ehdrSize = 64
	phdrSize = 56
)

var elfMagic = [4]byte{0x7f, 'E', 'L', 'F'}

var (
	ErrBadMagic            = errors.New("elf: bad magic")
	ErrUnsupportedClass    = errors.New("elf: unsupported class (not ELF64)")
	ErrUnsupportedEncoding = errors.New("elf: unsupported encoding (not LSB)")
	ErrUnsupportedVersion  = errors.New("elf: unsupported identifier version")
	ErrTruncated           = errors.New("elf: truncated file")
	ErrBadPhentsize        = errors.New("elf: phentsize != 56")
)

// Segment is a retained PT_LOAD program header.
type Segment struct {
	Vaddr      uint64
	MemSize    uint64
	FileSize   uint64
	FileOffset uint64
	Align      uint64
	Flags      uint32
}

// File is a parsed ELF64 image: entry point, the PT_LOAD segments, and
// the raw bytes the segments index into.
type File struct {
	Entry    uint64
	Segments []Segment
	Data     []byte
}

// Parse validates the ELF64 LSB header and collects PT_LOAD segments.
func Parse(data []byte) (*File, error) {
	if len(data) < ehdrSize {
		return nil, ErrTruncated
	}
	ident := data[:16]
	if [4]byte{ident[0], ident[1], ident[2], ident[3]} != elfMagic {
		return nil, ErrBadMagic
	}
	if ident[4] != classELF64 {
		return nil, ErrUnsupportedClass
	}
	if ident[5] != dataLSB {
		return nil, ErrUnsupportedEncoding
	}
	if ident[6] != elfVersion1 {
		return nil, ErrUnsupportedVersion
	}

	le := binary.LittleEndian
	entry := le.Uint64(data[24:32])
	phoff := le.Uint64(data[32:40])
	phentsize := le.Uint16(data[54:56])
	phnum := le.Uint16(data[56:58])

	if int(phentsize) != phdrSize {
		return nil, ErrBadPhentsize
	}

	segEnd := phoff + uint64(phnum)*uint64(phentsize)
	if segEnd > uint64(len(data)) {
		return nil, ErrTruncated
	}

	segments := make([]Segment, 0, phnum)
	for i := uint16(0); i < phnum; i++ {
		start := phoff + uint64(i)*uint64(phentsize)
		ph := data[start : start+phdrSize]
		pType := le.Uint32(ph[0:4])
		if pType != ptLoad {
			continue
		}
		segments = append(segments, Segment{
			Flags:      le.Uint32(ph[4:8]),
			FileOffset: le.Uint64(ph[8:16]),
			Vaddr:      le.Uint64(ph[16:24]),
			FileSize:   le.Uint64(ph[32:40]),
			MemSize:    le.Uint64(ph[40:48]),
			Align:      le.Uint64(ph[48:56]),
		})
	}

	return &File{Entry: entry, Segments: segments, Data: data}, nil
}

// BaseVaddr is the minimum segment vaddr, the origin every destination
// offset is computed against; falls back to the entry point if there
// are no PT_LOAD segments at all.
func (f *File) BaseVaddr() uint64 {
	if len(f.Segments) == 0 {
		return f.Entry
	}
	base := f.Segments[0].Vaddr
	for _, s := range f.Segments[1:] {
		if s.Vaddr < base {
			base = s.Vaddr
		}
	}
	return base
}
