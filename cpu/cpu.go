// Package cpu defines the MOS 6502 architecture core: register file,
// status flags, the decode/execute loop, and the interrupt sequencer. It
// drives a memory.Bank collaborator one bus transaction at a time so the
// observable cycle count matches real silicon, including "dummy"
// reads/writes that carry no architectural effect but do consume a cycle.
package cpu

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/wkhenry/go6502/irq"
	"github.com/wkhenry/go6502/memory"
)

// Vectors and status-register bit masks, per the 6502 architecture.
const (
	NMIVector   = uint16(0xFFFA)
	ResetVector = uint16(0xFFFC)
	IRQVector   = uint16(0xFFFE)

	FlagN = uint8(0x80) // Negative
	FlagV = uint8(0x40) // Overflow
	FlagS = uint8(0x20) // Unused, always read back as 1
	FlagB = uint8(0x10) // Break, only meaningful in the pushed image
	FlagD = uint8(0x08) // Decimal
	FlagI = uint8(0x04) // Interrupt disable
	FlagZ = uint8(0x02) // Zero
	FlagC = uint8(0x01) // Carry
)

// CPU is a MOS 6502 core. Zero value is not usable; construct with New.
type CPU struct {
	A, X, Y uint8
	SP      uint8
	PC      uint16
	P       uint8

	// Cycles counts bus transactions performed since the last Reset.
	Cycles uint64

	bus memory.Bank

	// Optional external interrupt sources, wired the way a console chip
	// (PIA, cartridge logic, etc.) would raise these lines. The directly
	// settable RaiseIRQ/RaiseNMI/ClearIRQ methods are OR'd with these.
	irqSender irq.Sender
	nmiSender irq.Sender

	irqPending bool // level-sensitive, stays set until ClearIRQ
	nmiPending bool // edge-triggered, one-shot, cleared on service

	interruptThisCycle bool
	interruptPrevCycle bool

	servicingInterrupt bool
	servicingNMI       bool

	op     uint8
	opVal  uint8
	opAddr uint16
	opTick int
	opDone bool

	// rmwOp, when set, is invoked by an addressing-mode resolver in the
	// dummy-write cycle, right after the unmodified operand has been
	// written back, so it can mutate opVal before the resolver's final
	// real-write cycle runs. Only read-modify-write instructions set this.
	rmwOp func() error

	halted     bool
	haltErr    error
	haltOpcode uint8
}

// Option configures optional CPU behavior at construction time.
type Option func(*CPU)

// WithIRQSender wires an external level-triggered IRQ source.
func WithIRQSender(s irq.Sender) Option {
	return func(c *CPU) { c.irqSender = s }
}

// WithNMISender wires an external NMI source. Its Raised() level is sampled
// every cycle and is not edge-detected: while it reports raised, an NMI is
// taken at every polling point.
func WithNMISender(s irq.Sender) Option {
	return func(c *CPU) { c.nmiSender = s }
}

// New creates a CPU wired to bus and performs power-on reset.
func New(bus memory.Bank, opts ...Option) *CPU {
	c := &CPU{bus: bus}
	for _, opt := range opts {
		opt(c)
	}
	c.PowerOn()
	return c
}

// PowerOn randomizes the register file (matching real hardware, where SRAM
// and latches come up in an undefined state) and then performs Reset.
func (c *CPU) PowerOn() {
	rand.Seed(time.Now().UnixNano())
	flags := FlagS
	if rand.Float32() > 0.5 {
		flags |= FlagD
	}
	c.A = uint8(rand.Intn(256))
	c.X = uint8(rand.Intn(256))
	c.Y = uint8(rand.Intn(256))
	c.SP = uint8(rand.Intn(256))
	c.P = flags
	c.Reset()
}

// Reset performs the 6502 reset sequence: SP becomes 0xFD, interrupts are
// disabled, both interrupt latches clear, the cycle counter zeroes, and PC
// loads from the reset vector. Nothing is pushed to the stack; reset does
// not preserve any prior execution state.
func (c *CPU) Reset() {
	// Mirrors the hardware's initial (discarded) fetch before reset takes hold.
	_ = c.bus.Read(c.PC)

	c.halted = false
	c.haltErr = nil
	c.haltOpcode = 0

	c.SP = 0xFD
	c.P |= FlagI
	c.irqPending = false
	c.nmiPending = false
	c.interruptThisCycle = false
	c.interruptPrevCycle = false
	c.servicingInterrupt = false
	c.servicingNMI = false
	c.opTick = 0
	c.opDone = false

	lo := c.bus.Read(ResetVector)
	hi := c.bus.Read(ResetVector + 1)
	c.PC = uint16(hi)<<8 | uint16(lo)
	c.Cycles = 0
}

// RaiseIRQ asserts the IRQ line. It stays asserted until ClearIRQ is called;
// this models the level-triggered nature of the real line.
func (c *CPU) RaiseIRQ() { c.irqPending = true }

// ClearIRQ deasserts the IRQ line.
func (c *CPU) ClearIRQ() { c.irqPending = false }

// RaiseNMI asserts the edge-triggered NMI line. It is consumed (cleared)
// automatically the moment the CPU begins servicing it.
func (c *CPU) RaiseNMI() { c.nmiPending = true }

func (c *CPU) irqLine() bool {
	return c.irqPending || (c.irqSender != nil && c.irqSender.Raised())
}

func (c *CPU) nmiLine() bool {
	return c.nmiPending || (c.nmiSender != nil && c.nmiSender.Raised())
}

// Step executes exactly one instruction, followed by the service of any
// interrupt whose condition was latched by the end of that instruction's
// last cycle. It returns once both have completed. A halted CPU (after a
// fatal error) returns the same error on every subsequent call without
// mutating state.
func (c *CPU) Step() error {
	if c.halted {
		return c.haltErr
	}
	serviced := false
	for {
		done, err := c.tick()
		if err != nil {
			c.halted = true
			c.haltErr = err
			c.haltOpcode = c.op
			return err
		}
		if !done {
			continue
		}
		if serviced || !c.interruptPrevCycle {
			return nil
		}
		// The next tick() fetch sees the latch and runs the interrupt service.
		serviced = true
	}
}

// Halted reports whether a fatal error has stopped the CPU.
func (c *CPU) Halted() bool { return c.halted }

// CycleCount returns the number of bus transactions performed since Reset.
func (c *CPU) CycleCount() uint64 { return c.Cycles }

// Opcode returns the most recently fetched opcode byte.
func (c *CPU) Opcode() uint8 { return c.op }

// Flag accessors, read-only per the external-interfaces contract.
func (c *CPU) FlagCarry() bool     { return c.P&FlagC != 0 }
func (c *CPU) FlagZero() bool      { return c.P&FlagZ != 0 }
func (c *CPU) FlagInterrupt() bool { return c.P&FlagI != 0 }
func (c *CPU) FlagDecimal() bool   { return c.P&FlagD != 0 }
func (c *CPU) FlagOverflow() bool  { return c.P&FlagV != 0 }
func (c *CPU) FlagNegative() bool  { return c.P&FlagN != 0 }

// ReadMemory is a convenience that bypasses the cycle counter, for loading
// programs or inspecting state in tests.
func (c *CPU) ReadMemory(addr uint16) uint8 { return c.bus.Read(addr) }

// WriteMemory is a convenience that bypasses the cycle counter, for loading
// programs or inspecting state in tests.
func (c *CPU) WriteMemory(addr uint16, val uint8) { c.bus.Write(addr, val) }

// endCycle accounts for one bus transaction and recomputes the one-cycle
// interrupt-polling lag: interruptPrevCycle always holds the value
// interruptThisCycle had as of the end of the *previous* bus cycle, which is
// the gate 6502 silicon actually polls against. See TestPropertyIRQPollingLag
// in cpu_test.go for the scenario this produces.
func (c *CPU) endCycle() {
	c.Cycles++
	cur := c.nmiLine() || (c.irqLine() && c.P&FlagI == 0)
	c.interruptPrevCycle = c.interruptThisCycle
	c.interruptThisCycle = cur
}

// tick runs a single bus cycle, possibly completing the instruction or
// interrupt currently in flight. Returns true once that unit of work is
// done.
func (c *CPU) tick() (bool, error) {
	defer c.endCycle()

	if c.opTick > 8 {
		return true, InvalidCPUState{Reason: fmt.Sprintf("opTick %d too large (> 8)", c.opTick)}
	}
	c.opTick++

	switch {
	case c.opTick == 1:
		c.op = c.bus.Read(c.PC)
		c.opDone = false

		c.servicingInterrupt = c.interruptPrevCycle
		c.interruptPrevCycle = false
		if c.servicingInterrupt {
			c.servicingNMI = c.nmiLine()
			if c.servicingNMI {
				c.nmiPending = false
			}
		} else {
			c.PC++
		}
		return false, nil
	case c.opTick == 2:
		c.opVal = c.bus.Read(c.PC)
	}

	var err error
	if c.servicingInterrupt {
		vec := IRQVector
		if c.servicingNMI {
			vec = NMIVector
		}
		c.opDone, err = c.runInterrupt(vec, true)
	} else {
		c.opDone, err = c.processOpcode()
	}
	if err != nil {
		return true, err
	}
	if c.opDone {
		c.opTick = 0
		c.servicingInterrupt = false
	}
	return c.opDone, nil
}

// zeroCheck sets the Z flag based on the register contents.
func (c *CPU) zeroCheck(reg uint8) {
	c.P &^= FlagZ
	if reg == 0 {
		c.P |= FlagZ
	}
}

// negativeCheck sets the N flag based on the register contents.
func (c *CPU) negativeCheck(reg uint8) {
	c.P &^= FlagN
	if reg&FlagN != 0 {
		c.P |= FlagN
	}
}

// carryCheck sets the C flag if the ALU result (widened to 16 bits) carried
// out by generating a value >= 0x100.
func (c *CPU) carryCheck(res uint16) {
	c.P &^= FlagC
	if res >= 0x100 {
		c.P |= FlagC
	}
}

// overflowCheck sets the V flag when the ALU operation caused a two's
// complement sign change. See http://www.righto.com/2012/12/the-6502-overflow-flag-explained.html
func (c *CPU) overflowCheck(reg, arg, res uint8) {
	c.P &^= FlagV
	if (reg^res)&(arg^res)&0x80 != 0 {
		c.P |= FlagV
	}
}

// instructionMode distinguishes how an addressing-mode resolver should
// finish: a load reads only, a store never re-reads the operand, and a
// read-modify-write performs a dummy write of the unmodified value before
// the real write (see addrZP and friends below).
type instructionMode int

const (
	loadInstructionMode instructionMode = iota
	rmwInstructionMode
	storeInstructionMode
)

// addrImmediate implements immediate mode - #i. The operand byte was
// already fetched into c.opVal on opTick 2; this just advances PC past it.
func (c *CPU) addrImmediate(instructionMode) (bool, error) {
	if c.opTick != 2 {
		return true, InvalidCPUState{Reason: fmt.Sprintf("addrImmediate invalid opTick %d, not 2", c.opTick)}
	}
	c.PC++
	return true, nil
}

// addrZP implements zero-page mode - d. Load: 3 cycles. Store: 3 cycles.
// RMW: 5 cycles (fetch, addr, read, dummy-write-original, real-write-new).
func (c *CPU) addrZP(mode instructionMode) (bool, error) {
	switch {
	case c.opTick <= 1 || c.opTick > 5:
		return true, InvalidCPUState{Reason: fmt.Sprintf("addrZP invalid opTick %d", c.opTick)}
	case c.opTick == 2:
		c.opAddr = uint16(c.opVal)
		c.PC++
		return false, nil
	case c.opTick == 3:
		if mode == storeInstructionMode {
			return true, nil
		}
		c.opVal = c.bus.Read(c.opAddr)
		return mode != rmwInstructionMode, nil
	case c.opTick == 4:
		c.bus.Write(c.opAddr, c.opVal) // dummy write of the unmodified value
		return false, c.rmwOp()
	}
	// opTick == 5
	c.bus.Write(c.opAddr, c.opVal) // real write of the value rmwOp produced
	return true, nil
}

// addrZPX implements zero-page plus X - d,x.
func (c *CPU) addrZPX(mode instructionMode) (bool, error) { return c.addrZPXY(mode, c.X) }

// addrZPY implements zero-page plus Y - d,y.
func (c *CPU) addrZPY(mode instructionMode) (bool, error) { return c.addrZPXY(mode, c.Y) }

// addrZPXY implements the shared zero-page-indexed resolution; the extra
// dummy read at the un-indexed address is what real silicon performs while
// the index adder settles. Load/store: 4 cycles. RMW (zero page,X only): 6.
func (c *CPU) addrZPXY(mode instructionMode, reg uint8) (bool, error) {
	switch {
	case c.opTick <= 1 || c.opTick > 6:
		return true, InvalidCPUState{Reason: fmt.Sprintf("addrZPXY invalid opTick: %d", c.opTick)}
	case c.opTick == 2:
		c.opAddr = uint16(c.opVal)
		c.PC++
		return false, nil
	case c.opTick == 3:
		_ = c.bus.Read(c.opAddr) // dummy read at the un-indexed address
		c.opAddr = uint16(uint8(c.opVal + reg))
		return false, nil
	case c.opTick == 4:
		if mode == storeInstructionMode {
			return true, nil
		}
		c.opVal = c.bus.Read(c.opAddr)
		return mode != rmwInstructionMode, nil
	case c.opTick == 5:
		c.bus.Write(c.opAddr, c.opVal) // dummy write of the unmodified value
		return false, c.rmwOp()
	}
	// opTick == 6
	c.bus.Write(c.opAddr, c.opVal) // real write of the value rmwOp produced
	return true, nil
}

// addrIndirectX implements zero-page indirect plus X - (d,x). The pointer
// lookup always stays within zero page; it never crosses into page 1. No
// documented opcode uses this mode read-modify-write; both load and store
// take 6 cycles.
func (c *CPU) addrIndirectX(mode instructionMode) (bool, error) {
	switch {
	case c.opTick <= 1 || c.opTick > 6:
		return true, InvalidCPUState{Reason: fmt.Sprintf("addrIndirectX invalid opTick: %d", c.opTick)}
	case c.opTick == 2:
		c.opAddr = uint16(c.opVal)
		c.PC++
		return false, nil
	case c.opTick == 3:
		_ = c.bus.Read(c.opAddr) // dummy read of the unindexed pointer
		c.opAddr = uint16(uint8(c.opVal + c.X))
		return false, nil
	case c.opTick == 4:
		c.opVal = c.bus.Read(c.opAddr)
		c.opAddr = uint16(uint8(c.opAddr) + 1)
		return false, nil
	case c.opTick == 5:
		c.opAddr = uint16(c.bus.Read(c.opAddr))<<8 | uint16(c.opVal)
		return false, nil
	}
	// opTick == 6
	if mode == storeInstructionMode {
		return true, nil
	}
	c.opVal = c.bus.Read(c.opAddr)
	return true, nil
}

// addrIndirectY implements zero-page indirect plus Y - (d),y. No documented
// opcode uses this mode read-modify-write. Load: 5 cycles, 6 if the
// indexed address crosses a page. Store: always 6.
func (c *CPU) addrIndirectY(mode instructionMode) (bool, error) {
	switch {
	case c.opTick <= 1 || c.opTick > 6:
		return true, InvalidCPUState{Reason: fmt.Sprintf("addrIndirectY invalid opTick: %d", c.opTick)}
	case c.opTick == 2:
		c.opAddr = uint16(c.opVal)
		c.PC++
		return false, nil
	case c.opTick == 3:
		c.opVal = c.bus.Read(c.opAddr)
		c.opAddr = uint16(uint8(c.opAddr) + 1)
		return false, nil
	case c.opTick == 4:
		c.opAddr = uint16(c.bus.Read(c.opAddr))<<8 | uint16(c.opVal)
		// Add Y without allowing a page wrap yet; stash whether that was wrong in opVal.
		a := (c.opAddr & 0xFF00) + uint16(uint8(c.opAddr)+c.Y)
		c.opVal = 0
		if a != c.opAddr+uint16(c.Y) {
			c.opVal = 1
		}
		c.opAddr = a
		return false, nil
	case c.opTick == 5:
		crossed := c.opVal != 0
		c.opVal = c.bus.Read(c.opAddr) // speculative read, possibly at the wrong address
		if crossed {
			c.opAddr += 0x0100
		}
		return mode != storeInstructionMode && !crossed, nil
	}
	// opTick == 6
	if mode == storeInstructionMode {
		return true, nil
	}
	c.opVal = c.bus.Read(c.opAddr)
	return true, nil
}

// addrAbsolute implements absolute mode - a. Load/store: 4 cycles. RMW: 6.
func (c *CPU) addrAbsolute(mode instructionMode) (bool, error) {
	switch {
	case c.opTick <= 1 || c.opTick > 6:
		return true, InvalidCPUState{Reason: fmt.Sprintf("addrAbsolute invalid opTick: %d", c.opTick)}
	case c.opTick == 2:
		c.opAddr = uint16(c.opVal)
		c.PC++
		return false, nil
	case c.opTick == 3:
		c.opVal = c.bus.Read(c.PC)
		c.PC++
		c.opAddr |= uint16(c.opVal) << 8
		return false, nil
	case c.opTick == 4:
		if mode == storeInstructionMode {
			return true, nil
		}
		c.opVal = c.bus.Read(c.opAddr)
		return mode != rmwInstructionMode, nil
	case c.opTick == 5:
		c.bus.Write(c.opAddr, c.opVal) // dummy write of the unmodified value
		return false, c.rmwOp()
	}
	// opTick == 6
	c.bus.Write(c.opAddr, c.opVal) // real write of the value rmwOp produced
	return true, nil
}

// addrAbsoluteX implements absolute plus X - a,x.
func (c *CPU) addrAbsoluteX(mode instructionMode) (bool, error) { return c.addrAbsoluteXY(mode, c.X) }

// addrAbsoluteY implements absolute plus Y - a,y.
func (c *CPU) addrAbsoluteY(mode instructionMode) (bool, error) { return c.addrAbsoluteXY(mode, c.Y) }

// addrAbsoluteXY implements the shared absolute-indexed resolution. Loads
// only pay the page-cross penalty cycle; stores and RMW forms always take
// the dummy read unconditionally, which is why they're never cheaper even
// when no page boundary is actually crossed. Load: 4 or 5 cycles. Store: 5.
// RMW: 7.
func (c *CPU) addrAbsoluteXY(mode instructionMode, reg uint8) (bool, error) {
	switch {
	case c.opTick <= 1 || c.opTick > 7:
		return true, InvalidCPUState{Reason: fmt.Sprintf("addrAbsoluteXY invalid opTick: %d", c.opTick)}
	case c.opTick == 2:
		c.opAddr = uint16(c.opVal)
		c.PC++
		return false, nil
	case c.opTick == 3:
		c.opVal = c.bus.Read(c.PC)
		c.PC++
		c.opAddr |= uint16(c.opVal) << 8
		a := (c.opAddr & 0xFF00) + uint16(uint8(c.opAddr)+reg)
		c.opVal = 0
		if a != c.opAddr+uint16(reg) {
			c.opVal = 1
		}
		c.opAddr = a
		return false, nil
	case c.opTick == 4:
		crossed := c.opVal != 0
		c.opVal = c.bus.Read(c.opAddr) // speculative read, possibly at the wrong address
		if crossed {
			c.opAddr += 0x0100
		}
		if mode == storeInstructionMode || mode == rmwInstructionMode {
			return false, nil
		}
		return !crossed, nil
	case c.opTick == 5:
		if mode == storeInstructionMode {
			return true, nil
		}
		c.opVal = c.bus.Read(c.opAddr)
		return mode != rmwInstructionMode, nil
	case c.opTick == 6:
		c.bus.Write(c.opAddr, c.opVal) // dummy write of the unmodified value
		return false, c.rmwOp()
	}
	// opTick == 7
	c.bus.Write(c.opAddr, c.opVal) // real write of the value rmwOp produced
	return true, nil
}

// loadRegister stores val into reg and updates N/Z from it.
func (c *CPU) loadRegister(reg *uint8, val uint8) (bool, error) {
	*reg = val
	c.zeroCheck(*reg)
	c.negativeCheck(*reg)
	return true, nil
}

func (c *CPU) loadRegisterA() (bool, error) { return c.loadRegister(&c.A, c.opVal) }
func (c *CPU) loadRegisterX() (bool, error) { return c.loadRegister(&c.X, c.opVal) }
func (c *CPU) loadRegisterY() (bool, error) { return c.loadRegister(&c.Y, c.opVal) }

// pushStack writes val to the stack page and decrements SP.
func (c *CPU) pushStack(val uint8) {
	c.bus.Write(0x0100+uint16(c.SP), val)
	c.SP--
}

// popStack increments SP and reads the stack page.
func (c *CPU) popStack() uint8 {
	c.SP++
	return c.bus.Read(0x0100 + uint16(c.SP))
}

// branchNOP consumes the displacement byte on a not-taken branch.
func (c *CPU) branchNOP() (bool, error) {
	if c.opTick <= 1 || c.opTick > 3 {
		return true, InvalidCPUState{Reason: fmt.Sprintf("branchNOP invalid opTick %d", c.opTick)}
	}
	c.PC++
	return true, nil
}

// performBranch computes the branched-to PC and the extra page-cross cycle
// when the branch is taken.
func (c *CPU) performBranch() (bool, error) {
	switch {
	case c.opTick <= 1 || c.opTick > 4:
		return true, InvalidCPUState{Reason: fmt.Sprintf("performBranch invalid opTick %d", c.opTick)}
	case c.opTick == 2:
		c.PC++
		return false, nil
	case c.opTick == 3:
		// The page-crossing reference point is PC as it stands right after the operand byte.
		c.opAddr = c.PC
		c.PC = (c.PC & 0xFF00) + uint16(uint8(c.PC)+c.opVal)
		_ = c.bus.Read(c.PC)
		if c.PC == c.opAddr+uint16(int16(int8(c.opVal))) {
			return true, nil
		}
		return false, nil
	}
	// opTick == 4: page was crossed, fix up PC and re-read it.
	c.PC = c.opAddr + uint16(int16(int8(c.opVal)))
	_ = c.bus.Read(c.PC)
	return true, nil
}

// runInterrupt drives the shared push/vector-load sequence BRK, IRQ, and NMI
// all use. isHardware is false only for a software BRK, where the pushed PC
// is the address *after* the signature byte and B is set in the pushed
// image; hardware IRQ/NMI push the current PC unmodified with B clear.
func (c *CPU) runInterrupt(vector uint16, isHardware bool) (bool, error) {
	switch {
	case c.opTick < 2 || c.opTick > 7:
		return true, InvalidCPUState{Reason: fmt.Sprintf("runInterrupt invalid opTick: %d", c.opTick)}
	case c.opTick == 2:
		if !isHardware {
			c.PC++
		}
		return false, nil
	case c.opTick == 3:
		c.pushStack(uint8(c.PC >> 8))
		return false, nil
	case c.opTick == 4:
		c.pushStack(uint8(c.PC & 0xFF))
		return false, nil
	case c.opTick == 5:
		push := c.P | FlagS
		if !isHardware {
			push |= FlagB
		}
		c.P |= FlagI
		c.pushStack(push)
		return false, nil
	case c.opTick == 6:
		c.opVal = c.bus.Read(vector)
		return false, nil
	}
	// opTick == 7
	c.PC = uint16(c.bus.Read(vector+1))<<8 | uint16(c.opVal)
	return true, nil
}
