// Package memory defines the basic interfaces for working with a 6502
// family memory map and provides the flat 64 KiB RAM implementation the
// CPU core transacts against.
package memory

import (
	"fmt"
	"math/rand"
	"time"
)

// Bank is the interface the CPU core expects of any memory it's wired to.
type Bank interface {
	// Read returns the data byte stored at addr.
	Read(addr uint16) uint8
	// Write updates addr with the new value.
	Write(addr uint16, val uint8)
	// PowerOn performs power on reset of the memory. This is implementation specific as to
	// whether it's randomized or preset to all zeros.
	PowerOn()
	// Parent holds a reference (if non-nil) to the next level memory controller. A chain
	// of these can be created in order to find the top one and be able to query items
	// such as the databus state (from the last value to go over it). Some implementations
	// depend on transient databus state due to side effects.
	Parent() Bank
	// DatabusVal returns the last value seen to go across on the data bus.
	DatabusVal() uint8
}

// LatestDatabusVal hunts up a chain of Banks until it finds the outermost one and
// returns the DatabusVal from it. Useful for modeling open-bus reads against
// unmapped regions that, on real hardware, return whatever was last driven.
func LatestDatabusVal(b Bank) uint8 {
	if b.Parent() != nil {
		return LatestDatabusVal(b.Parent())
	}
	return b.DatabusVal()
}

// ram implements a flat R/W address space.
type ram struct {
	mem        []uint8
	parent     Bank
	databusVal uint8
}

// New8BitRAMBank creates a R/W RAM bank of the given size. Size must be a power of 2
// and no larger than 64 KiB (the full 6502 address space); anything smaller aliases
// on Read/Write the way a partially-decoded address bus would.
func New8BitRAMBank(size int, parent Bank) (Bank, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("invalid size: %d must be a power of 2", size)
	}
	if size > 1<<16 {
		return nil, fmt.Errorf("invalid size: %d is bigger than 64k", size)
	}
	return &ram{
		parent: parent,
		mem:    make([]uint8, size),
	}, nil
}

// NewRAM creates the canonical 65536-byte memory image the CPU core requires.
func NewRAM() Bank {
	b, _ := New8BitRAMBank(1<<16, nil)
	return b
}

// Read implements Bank. Address is masked to fit the backing buffer.
func (r *ram) Read(addr uint16) uint8 {
	addr &= uint16(len(r.mem) - 1)
	val := r.mem[addr]
	r.databusVal = val
	return val
}

// Write implements Bank. Address is masked to fit the backing buffer.
func (r *ram) Write(addr uint16, val uint8) {
	addr &= uint16(len(r.mem) - 1)
	r.databusVal = val
	r.mem[addr] = val
}

// PowerOn implements Bank and randomizes the RAM, matching real hardware where
// SRAM contents are undefined until written.
func (r *ram) PowerOn() {
	rand.Seed(time.Now().UnixNano())
	for i := range r.mem {
		r.mem[i] = uint8(rand.Intn(256))
	}
}

// Parent implements Bank.
func (r *ram) Parent() Bank {
	return r.parent
}

// DatabusVal implements Bank, returning the most recently seen databus value.
func (r *ram) DatabusVal() uint8 {
	return r.databusVal
}

// AddressOutOfRange indicates a program load ran past the end of the 64 KiB
// address space.
type AddressOutOfRange struct {
	Offset int
	Len    int
}

// Error implements the error interface.
func (e AddressOutOfRange) Error() string {
	return fmt.Sprintf("load of %d bytes at offset 0x%04X exceeds 64KiB address space", e.Len, e.Offset)
}

// LoadProgram writes bytes starting at offset and stores initialPC low/high
// into the reset vector (0xFFFC/0xFFFD), a convenience for test harnesses and
// the disassembler/assembler tools; it is not part of the CPU core itself.
func LoadProgram(b Bank, offset uint16, bytes []uint8, initialPC uint16) error {
	if int(offset)+len(bytes) > 1<<16 {
		return AddressOutOfRange{Offset: int(offset), Len: len(bytes)}
	}
	for i, v := range bytes {
		b.Write(offset+uint16(i), v)
	}
	b.Write(0xFFFC, uint8(initialPC&0xFF))
	b.Write(0xFFFD, uint8(initialPC>>8))
	return nil
}
