package cpu

import "fmt"

// processOpcode dispatches the currently fetched opcode (c.op) to its
// addressing-mode resolver and operation. Each case advances exactly as far
// as its resolver/operation decides for the current opTick and reports
// whether the instruction has completed. Opcodes outside the 151 documented
// NMOS 6502 instructions fall through to the default case and halt the CPU;
// illegal/undocumented opcodes are out of scope for this core.
func (c *CPU) processOpcode() (bool, error) {
	switch c.op {
	// ADC
	case 0x69:
		return c.loadInstruction(c.addrImmediate, c.iADC)
	case 0x65:
		return c.loadInstruction(c.addrZP, c.iADC)
	case 0x75:
		return c.loadInstruction(c.addrZPX, c.iADC)
	case 0x6D:
		return c.loadInstruction(c.addrAbsolute, c.iADC)
	case 0x7D:
		return c.loadInstruction(c.addrAbsoluteX, c.iADC)
	case 0x79:
		return c.loadInstruction(c.addrAbsoluteY, c.iADC)
	case 0x61:
		return c.loadInstruction(c.addrIndirectX, c.iADC)
	case 0x71:
		return c.loadInstruction(c.addrIndirectY, c.iADC)

	// AND
	case 0x29:
		return c.loadInstruction(c.addrImmediate, c.iAND)
	case 0x25:
		return c.loadInstruction(c.addrZP, c.iAND)
	case 0x35:
		return c.loadInstruction(c.addrZPX, c.iAND)
	case 0x2D:
		return c.loadInstruction(c.addrAbsolute, c.iAND)
	case 0x3D:
		return c.loadInstruction(c.addrAbsoluteX, c.iAND)
	case 0x39:
		return c.loadInstruction(c.addrAbsoluteY, c.iAND)
	case 0x21:
		return c.loadInstruction(c.addrIndirectX, c.iAND)
	case 0x31:
		return c.loadInstruction(c.addrIndirectY, c.iAND)

	// ASL
	case 0x0A:
		return c.iASLAcc()
	case 0x06:
		return c.rmwInstruction(c.addrZP, c.iASL)
	case 0x16:
		return c.rmwInstruction(c.addrZPX, c.iASL)
	case 0x0E:
		return c.rmwInstruction(c.addrAbsolute, c.iASL)
	case 0x1E:
		return c.rmwInstruction(c.addrAbsoluteX, c.iASL)

	// Branches
	case 0x90:
		return c.iBranch(c.P&FlagC == 0) // BCC
	case 0xB0:
		return c.iBranch(c.P&FlagC != 0) // BCS
	case 0xF0:
		return c.iBranch(c.P&FlagZ != 0) // BEQ
	case 0x30:
		return c.iBranch(c.P&FlagN != 0) // BMI
	case 0xD0:
		return c.iBranch(c.P&FlagZ == 0) // BNE
	case 0x10:
		return c.iBranch(c.P&FlagN == 0) // BPL
	case 0x50:
		return c.iBranch(c.P&FlagV == 0) // BVC
	case 0x70:
		return c.iBranch(c.P&FlagV != 0) // BVS

	// BIT
	case 0x24:
		return c.loadInstruction(c.addrZP, c.iBIT)
	case 0x2C:
		return c.loadInstruction(c.addrAbsolute, c.iBIT)

	// BRK
	case 0x00:
		return c.runInterrupt(IRQVector, false)

	// Flag clear/set
	case 0x18:
		return c.iFlagOp(FlagC, false) // CLC
	case 0xD8:
		return c.iFlagOp(FlagD, false) // CLD
	case 0x58:
		return c.iFlagOp(FlagI, false) // CLI
	case 0xB8:
		return c.iFlagOp(FlagV, false) // CLV
	case 0x38:
		return c.iFlagOp(FlagC, true) // SEC
	case 0xF8:
		return c.iFlagOp(FlagD, true) // SED
	case 0x78:
		return c.iFlagOp(FlagI, true) // SEI

	// CMP
	case 0xC9:
		return c.loadInstruction(c.addrImmediate, c.iCMP)
	case 0xC5:
		return c.loadInstruction(c.addrZP, c.iCMP)
	case 0xD5:
		return c.loadInstruction(c.addrZPX, c.iCMP)
	case 0xCD:
		return c.loadInstruction(c.addrAbsolute, c.iCMP)
	case 0xDD:
		return c.loadInstruction(c.addrAbsoluteX, c.iCMP)
	case 0xD9:
		return c.loadInstruction(c.addrAbsoluteY, c.iCMP)
	case 0xC1:
		return c.loadInstruction(c.addrIndirectX, c.iCMP)
	case 0xD1:
		return c.loadInstruction(c.addrIndirectY, c.iCMP)

	// CPX
	case 0xE0:
		return c.loadInstruction(c.addrImmediate, c.iCPX)
	case 0xE4:
		return c.loadInstruction(c.addrZP, c.iCPX)
	case 0xEC:
		return c.loadInstruction(c.addrAbsolute, c.iCPX)

	// CPY
	case 0xC0:
		return c.loadInstruction(c.addrImmediate, c.iCPY)
	case 0xC4:
		return c.loadInstruction(c.addrZP, c.iCPY)
	case 0xCC:
		return c.loadInstruction(c.addrAbsolute, c.iCPY)

	// DEC
	case 0xC6:
		return c.rmwInstruction(c.addrZP, c.iDEC)
	case 0xD6:
		return c.rmwInstruction(c.addrZPX, c.iDEC)
	case 0xCE:
		return c.rmwInstruction(c.addrAbsolute, c.iDEC)
	case 0xDE:
		return c.rmwInstruction(c.addrAbsoluteX, c.iDEC)

	// DEX, DEY
	case 0xCA:
		return c.iDecReg(&c.X)
	case 0x88:
		return c.iDecReg(&c.Y)

	// EOR
	case 0x49:
		return c.loadInstruction(c.addrImmediate, c.iEOR)
	case 0x45:
		return c.loadInstruction(c.addrZP, c.iEOR)
	case 0x55:
		return c.loadInstruction(c.addrZPX, c.iEOR)
	case 0x4D:
		return c.loadInstruction(c.addrAbsolute, c.iEOR)
	case 0x5D:
		return c.loadInstruction(c.addrAbsoluteX, c.iEOR)
	case 0x59:
		return c.loadInstruction(c.addrAbsoluteY, c.iEOR)
	case 0x41:
		return c.loadInstruction(c.addrIndirectX, c.iEOR)
	case 0x51:
		return c.loadInstruction(c.addrIndirectY, c.iEOR)

	// INC
	case 0xE6:
		return c.rmwInstruction(c.addrZP, c.iINC)
	case 0xF6:
		return c.rmwInstruction(c.addrZPX, c.iINC)
	case 0xEE:
		return c.rmwInstruction(c.addrAbsolute, c.iINC)
	case 0xFE:
		return c.rmwInstruction(c.addrAbsoluteX, c.iINC)

	// INX, INY
	case 0xE8:
		return c.iIncReg(&c.X)
	case 0xC8:
		return c.iIncReg(&c.Y)

	// JMP
	case 0x4C:
		return c.iJMP()
	case 0x6C:
		return c.iJMPIndirect()

	// JSR
	case 0x20:
		return c.iJSR()

	// LDA
	case 0xA9:
		return c.loadInstruction(c.addrImmediate, c.loadRegisterA)
	case 0xA5:
		return c.loadInstruction(c.addrZP, c.loadRegisterA)
	case 0xB5:
		return c.loadInstruction(c.addrZPX, c.loadRegisterA)
	case 0xAD:
		return c.loadInstruction(c.addrAbsolute, c.loadRegisterA)
	case 0xBD:
		return c.loadInstruction(c.addrAbsoluteX, c.loadRegisterA)
	case 0xB9:
		return c.loadInstruction(c.addrAbsoluteY, c.loadRegisterA)
	case 0xA1:
		return c.loadInstruction(c.addrIndirectX, c.loadRegisterA)
	case 0xB1:
		return c.loadInstruction(c.addrIndirectY, c.loadRegisterA)

	// LDX
	case 0xA2:
		return c.loadInstruction(c.addrImmediate, c.loadRegisterX)
	case 0xA6:
		return c.loadInstruction(c.addrZP, c.loadRegisterX)
	case 0xB6:
		return c.loadInstruction(c.addrZPY, c.loadRegisterX)
	case 0xAE:
		return c.loadInstruction(c.addrAbsolute, c.loadRegisterX)
	case 0xBE:
		return c.loadInstruction(c.addrAbsoluteY, c.loadRegisterX)

	// LDY
	case 0xA0:
		return c.loadInstruction(c.addrImmediate, c.loadRegisterY)
	case 0xA4:
		return c.loadInstruction(c.addrZP, c.loadRegisterY)
	case 0xB4:
		return c.loadInstruction(c.addrZPX, c.loadRegisterY)
	case 0xAC:
		return c.loadInstruction(c.addrAbsolute, c.loadRegisterY)
	case 0xBC:
		return c.loadInstruction(c.addrAbsoluteX, c.loadRegisterY)

	// LSR
	case 0x4A:
		return c.iLSRAcc()
	case 0x46:
		return c.rmwInstruction(c.addrZP, c.iLSR)
	case 0x56:
		return c.rmwInstruction(c.addrZPX, c.iLSR)
	case 0x4E:
		return c.rmwInstruction(c.addrAbsolute, c.iLSR)
	case 0x5E:
		return c.rmwInstruction(c.addrAbsoluteX, c.iLSR)

	// NOP
	case 0xEA:
		return c.iNOP()

	// ORA
	case 0x09:
		return c.loadInstruction(c.addrImmediate, c.iORA)
	case 0x05:
		return c.loadInstruction(c.addrZP, c.iORA)
	case 0x15:
		return c.loadInstruction(c.addrZPX, c.iORA)
	case 0x0D:
		return c.loadInstruction(c.addrAbsolute, c.iORA)
	case 0x1D:
		return c.loadInstruction(c.addrAbsoluteX, c.iORA)
	case 0x19:
		return c.loadInstruction(c.addrAbsoluteY, c.iORA)
	case 0x01:
		return c.loadInstruction(c.addrIndirectX, c.iORA)
	case 0x11:
		return c.loadInstruction(c.addrIndirectY, c.iORA)

	// Stack ops
	case 0x48:
		return c.iPHA()
	case 0x08:
		return c.iPHP()
	case 0x68:
		return c.iPLA()
	case 0x28:
		return c.iPLP()

	// ROL
	case 0x2A:
		return c.iROLAcc()
	case 0x26:
		return c.rmwInstruction(c.addrZP, c.iROL)
	case 0x36:
		return c.rmwInstruction(c.addrZPX, c.iROL)
	case 0x2E:
		return c.rmwInstruction(c.addrAbsolute, c.iROL)
	case 0x3E:
		return c.rmwInstruction(c.addrAbsoluteX, c.iROL)

	// ROR
	case 0x6A:
		return c.iRORAcc()
	case 0x66:
		return c.rmwInstruction(c.addrZP, c.iROR)
	case 0x76:
		return c.rmwInstruction(c.addrZPX, c.iROR)
	case 0x6E:
		return c.rmwInstruction(c.addrAbsolute, c.iROR)
	case 0x7E:
		return c.rmwInstruction(c.addrAbsoluteX, c.iROR)

	// RTI, RTS
	case 0x40:
		return c.iRTI()
	case 0x60:
		return c.iRTS()

	// SBC
	case 0xE9:
		return c.loadInstruction(c.addrImmediate, c.iSBC)
	case 0xE5:
		return c.loadInstruction(c.addrZP, c.iSBC)
	case 0xF5:
		return c.loadInstruction(c.addrZPX, c.iSBC)
	case 0xED:
		return c.loadInstruction(c.addrAbsolute, c.iSBC)
	case 0xFD:
		return c.loadInstruction(c.addrAbsoluteX, c.iSBC)
	case 0xF9:
		return c.loadInstruction(c.addrAbsoluteY, c.iSBC)
	case 0xE1:
		return c.loadInstruction(c.addrIndirectX, c.iSBC)
	case 0xF1:
		return c.loadInstruction(c.addrIndirectY, c.iSBC)

	// STA
	case 0x85:
		return c.storeInstruction(c.addrZP, c.A)
	case 0x95:
		return c.storeInstruction(c.addrZPX, c.A)
	case 0x8D:
		return c.storeInstruction(c.addrAbsolute, c.A)
	case 0x9D:
		return c.storeInstruction(c.addrAbsoluteX, c.A)
	case 0x99:
		return c.storeInstruction(c.addrAbsoluteY, c.A)
	case 0x81:
		return c.storeInstruction(c.addrIndirectX, c.A)
	case 0x91:
		return c.storeInstruction(c.addrIndirectY, c.A)

	// STX
	case 0x86:
		return c.storeInstruction(c.addrZP, c.X)
	case 0x96:
		return c.storeInstruction(c.addrZPY, c.X)
	case 0x8E:
		return c.storeInstruction(c.addrAbsolute, c.X)

	// STY
	case 0x84:
		return c.storeInstruction(c.addrZP, c.Y)
	case 0x94:
		return c.storeInstruction(c.addrZPX, c.Y)
	case 0x8C:
		return c.storeInstruction(c.addrAbsolute, c.Y)

	// Register transfers
	case 0xAA:
		return c.iTransfer(c.A, &c.X, true) // TAX
	case 0xA8:
		return c.iTransfer(c.A, &c.Y, true) // TAY
	case 0xBA:
		return c.iTransfer(c.SP, &c.X, true) // TSX
	case 0x8A:
		return c.iTransfer(c.X, &c.A, true) // TXA
	case 0x9A:
		return c.iTransfer(c.X, &c.SP, false) // TXS, flags unaffected
	case 0x98:
		return c.iTransfer(c.Y, &c.A, true) // TYA

	default:
		return true, UnsupportedOpcode{Opcode: c.op, PC: c.PC - 1}
	}
}

// loadInstruction runs an addressing-mode resolver in load mode, then once
// the operand is available (c.opVal), applies op to it.
func (c *CPU) loadInstruction(addr func(instructionMode) (bool, error), op func() (bool, error)) (bool, error) {
	done, err := addr(loadInstructionMode)
	if err != nil || !done {
		return done, err
	}
	return op()
}

// storeInstruction runs an addressing-mode resolver in store mode and, on
// the cycle it resolves the address, writes val directly with no read-back.
func (c *CPU) storeInstruction(addr func(instructionMode) (bool, error), val uint8) (bool, error) {
	done, err := addr(storeInstructionMode)
	if err != nil {
		return true, err
	}
	if done {
		c.bus.Write(c.opAddr, val)
	}
	return done, nil
}

// rmwInstruction runs an addressing-mode resolver in read-modify-write mode.
// The resolver invokes c.rmwOp itself in the dummy-write cycle, after the
// unmodified operand has been written back and before the real write.
func (c *CPU) rmwInstruction(addr func(instructionMode) (bool, error), op func() error) (bool, error) {
	c.rmwOp = op
	done, err := addr(rmwInstructionMode)
	if done {
		c.rmwOp = nil
	}
	return done, err
}

// iADC implements add with carry, including BCD mode. BCD correction works
// directly on the nibbles rather than by formatting through decimal text.
// In decimal mode, N/V are set from the low-nibble-corrected intermediate
// (pre high-nibble fixup), not from the final decimal-corrected accumulator
// value - matching real hardware, which derives those flags before the
// +0x60 high-nibble correction is applied.
func (c *CPU) iADC() (bool, error) {
	a, arg, carry := c.A, c.opVal, uint8(0)
	if c.P&FlagC != 0 {
		carry = 1
	}

	if c.P&FlagD != 0 {
		lo := (a & 0x0F) + (arg & 0x0F) + carry
		if lo >= 0x0A {
			lo = ((lo + 0x06) & 0x0F) + 0x10
		}
		sum := uint16(a&0xF0) + uint16(arg&0xF0) + uint16(lo)
		if sum >= 0xA0 {
			sum += 0x60
		}
		seq := (a & 0xF0) + (arg & 0xF0) + lo
		bin := a + arg + carry
		c.overflowCheck(a, arg, seq)
		c.carryCheck(sum)
		c.negativeCheck(seq)
		c.zeroCheck(bin)
		c.A = uint8(sum)
		return true, nil
	}

	sum := uint16(a) + uint16(arg) + uint16(carry)
	res := uint8(sum)
	c.overflowCheck(a, arg, res)
	c.carryCheck(sum)
	c.A = res
	c.zeroCheck(res)
	c.negativeCheck(res)
	return true, nil
}

// iSBC implements subtract with carry (borrow), including BCD mode.
func (c *CPU) iSBC() (bool, error) {
	a, arg, borrow := c.A, c.opVal, uint16(0)
	if c.P&FlagC == 0 {
		borrow = 1
	}
	diff := uint16(a) - uint16(arg) - borrow
	res := uint8(diff)

	c.overflowCheck(a, ^arg, res)
	c.P &^= FlagC
	if diff < 0x100 {
		c.P |= FlagC
	}
	c.zeroCheck(res)
	c.negativeCheck(res)

	if c.P&FlagD != 0 {
		lo := int16(a&0x0F) - int16(arg&0x0F) - int16(borrow)
		hi := int16(a>>4) - int16(arg>>4)
		if lo < 0 {
			lo -= 6
			hi--
		}
		if hi < 0 {
			hi -= 6
		}
		c.A = uint8(hi<<4) | uint8(lo&0x0F)
		return true, nil
	}

	c.A = res
	return true, nil
}

func (c *CPU) iAND() (bool, error) { return c.loadRegister(&c.A, c.A&c.opVal) }
func (c *CPU) iORA() (bool, error) { return c.loadRegister(&c.A, c.A|c.opVal) }
func (c *CPU) iEOR() (bool, error) { return c.loadRegister(&c.A, c.A^c.opVal) }

// iBIT implements BIT: Z reflects A&opVal, N/V are copied straight from bits
// 7/6 of the memory operand, not from the AND result.
func (c *CPU) iBIT() (bool, error) {
	c.zeroCheck(c.A & c.opVal)
	c.P &^= (FlagN | FlagV)
	c.P |= c.opVal & (FlagN | FlagV)
	return true, nil
}

func (c *CPU) shiftLeft(val uint8) uint8 {
	c.P &^= FlagC
	if val&0x80 != 0 {
		c.P |= FlagC
	}
	res := val << 1
	c.zeroCheck(res)
	c.negativeCheck(res)
	return res
}

func (c *CPU) shiftRight(val uint8) uint8 {
	c.P &^= FlagC
	if val&0x01 != 0 {
		c.P |= FlagC
	}
	res := val >> 1
	c.zeroCheck(res)
	c.negativeCheck(res)
	return res
}

func (c *CPU) rotateLeft(val uint8) uint8 {
	carryIn := uint8(0)
	if c.P&FlagC != 0 {
		carryIn = 1
	}
	c.P &^= FlagC
	if val&0x80 != 0 {
		c.P |= FlagC
	}
	res := val<<1 | carryIn
	c.zeroCheck(res)
	c.negativeCheck(res)
	return res
}

func (c *CPU) rotateRight(val uint8) uint8 {
	carryIn := uint8(0)
	if c.P&FlagC != 0 {
		carryIn = 0x80
	}
	c.P &^= FlagC
	if val&0x01 != 0 {
		c.P |= FlagC
	}
	res := val>>1 | carryIn
	c.zeroCheck(res)
	c.negativeCheck(res)
	return res
}

func (c *CPU) iASLAcc() (bool, error) { c.A = c.shiftLeft(c.A); return true, nil }
func (c *CPU) iLSRAcc() (bool, error) { c.A = c.shiftRight(c.A); return true, nil }
func (c *CPU) iROLAcc() (bool, error) { c.A = c.rotateLeft(c.A); return true, nil }
func (c *CPU) iRORAcc() (bool, error) { c.A = c.rotateRight(c.A); return true, nil }

func (c *CPU) iASL() error { c.opVal = c.shiftLeft(c.opVal); return nil }
func (c *CPU) iLSR() error { c.opVal = c.shiftRight(c.opVal); return nil }
func (c *CPU) iROL() error { c.opVal = c.rotateLeft(c.opVal); return nil }
func (c *CPU) iROR() error { c.opVal = c.rotateRight(c.opVal); return nil }
func (c *CPU) iINC() error { c.opVal++; c.zeroCheck(c.opVal); c.negativeCheck(c.opVal); return nil }
func (c *CPU) iDEC() error { c.opVal--; c.zeroCheck(c.opVal); c.negativeCheck(c.opVal); return nil }

func (c *CPU) compare(reg uint8) (bool, error) {
	res := uint16(reg) - uint16(c.opVal)
	c.P &^= FlagC
	if reg >= c.opVal {
		c.P |= FlagC
	}
	c.zeroCheck(uint8(res))
	c.negativeCheck(uint8(res))
	return true, nil
}

func (c *CPU) iCMP() (bool, error) { return c.compare(c.A) }
func (c *CPU) iCPX() (bool, error) { return c.compare(c.X) }
func (c *CPU) iCPY() (bool, error) { return c.compare(c.Y) }

func (c *CPU) iIncReg(reg *uint8) (bool, error) {
	if c.opTick != 2 {
		return true, InvalidCPUState{Reason: fmt.Sprintf("iIncReg invalid opTick %d", c.opTick)}
	}
	*reg++
	c.zeroCheck(*reg)
	c.negativeCheck(*reg)
	return true, nil
}

func (c *CPU) iDecReg(reg *uint8) (bool, error) {
	if c.opTick != 2 {
		return true, InvalidCPUState{Reason: fmt.Sprintf("iDecReg invalid opTick %d", c.opTick)}
	}
	*reg--
	c.zeroCheck(*reg)
	c.negativeCheck(*reg)
	return true, nil
}

func (c *CPU) iTransfer(src uint8, dst *uint8, setFlags bool) (bool, error) {
	if c.opTick != 2 {
		return true, InvalidCPUState{Reason: fmt.Sprintf("iTransfer invalid opTick %d", c.opTick)}
	}
	*dst = src
	if setFlags {
		c.zeroCheck(*dst)
		c.negativeCheck(*dst)
	}
	return true, nil
}

func (c *CPU) iFlagOp(flag uint8, set bool) (bool, error) {
	if c.opTick != 2 {
		return true, InvalidCPUState{Reason: fmt.Sprintf("iFlagOp invalid opTick %d", c.opTick)}
	}
	if set {
		c.P |= flag
	} else {
		c.P &^= flag
	}
	return true, nil
}

func (c *CPU) iNOP() (bool, error) {
	if c.opTick != 2 {
		return true, InvalidCPUState{Reason: fmt.Sprintf("iNOP invalid opTick %d", c.opTick)}
	}
	return true, nil
}

// iBranch implements the shared Bxx mechanics: taken decides whether the
// branch's displacement byte is actually applied to PC.
func (c *CPU) iBranch(taken bool) (bool, error) {
	if taken {
		return c.performBranch()
	}
	return c.branchNOP()
}

func (c *CPU) iJMP() (bool, error) {
	switch {
	case c.opTick <= 1 || c.opTick > 3:
		return true, InvalidCPUState{Reason: fmt.Sprintf("iJMP invalid opTick %d", c.opTick)}
	case c.opTick == 2:
		c.opAddr = uint16(c.opVal)
		c.PC++
		return false, nil
	}
	hi := c.bus.Read(c.PC)
	c.PC = uint16(hi)<<8 | c.opAddr
	return true, nil
}

// iJMPIndirect implements JMP (a), reproducing the famous hardware bug
// where the high-byte fetch fails to carry out of the low byte: a pointer
// at a page boundary (e.g. 0x30FF) reads its high byte from 0x3000, not
// 0x3100.
func (c *CPU) iJMPIndirect() (bool, error) {
	switch {
	case c.opTick <= 1 || c.opTick > 5:
		return true, InvalidCPUState{Reason: fmt.Sprintf("iJMPIndirect invalid opTick %d", c.opTick)}
	case c.opTick == 2:
		c.opAddr = uint16(c.opVal)
		c.PC++
		return false, nil
	case c.opTick == 3:
		c.opVal = c.bus.Read(c.PC)
		c.opAddr |= uint16(c.opVal) << 8
		return false, nil
	case c.opTick == 4:
		c.opVal = c.bus.Read(c.opAddr)
		return false, nil
	}
	hiAddr := (c.opAddr & 0xFF00) | uint16(uint8(c.opAddr)+1)
	hi := c.bus.Read(hiAddr)
	c.PC = uint16(hi)<<8 | uint16(c.opVal)
	return true, nil
}

// iJSR pushes PC-1 (the address of the instruction's last byte) onto the
// stack before jumping, matching the push RTS expects to undo with a +1.
func (c *CPU) iJSR() (bool, error) {
	switch {
	case c.opTick <= 1 || c.opTick > 6:
		return true, InvalidCPUState{Reason: fmt.Sprintf("iJSR invalid opTick %d", c.opTick)}
	case c.opTick == 2:
		c.opAddr = uint16(c.opVal)
		c.PC++
		return false, nil
	case c.opTick == 3:
		// Internal delay cycle; real hardware reads the stack here without using it.
		_ = c.bus.Read(0x0100 + uint16(c.SP))
		return false, nil
	case c.opTick == 4:
		c.pushStack(uint8(c.PC >> 8))
		return false, nil
	case c.opTick == 5:
		c.pushStack(uint8(c.PC & 0xFF))
		return false, nil
	}
	hi := c.bus.Read(c.PC)
	c.PC = uint16(hi)<<8 | c.opAddr
	return true, nil
}

// iRTS takes 6 cycles: fetch, a discarded operand-byte read (handled
// automatically by tick() before this runs), an internal stack-settle
// cycle, the PCL/PCH pulls, then a final PC+1 fetch.
func (c *CPU) iRTS() (bool, error) {
	switch {
	case c.opTick <= 1 || c.opTick > 6:
		return true, InvalidCPUState{Reason: fmt.Sprintf("iRTS invalid opTick %d", c.opTick)}
	case c.opTick == 2:
		return false, nil
	case c.opTick == 3:
		_ = c.bus.Read(0x0100 + uint16(c.SP)) // internal stack-pointer settle
		return false, nil
	case c.opTick == 4:
		c.opAddr = uint16(c.popStack())
		return false, nil
	case c.opTick == 5:
		c.opAddr |= uint16(c.popStack()) << 8
		return false, nil
	}
	c.PC = c.opAddr + 1
	_ = c.bus.Read(c.PC)
	return true, nil
}

// iRTI takes 6 cycles: fetch, a discarded operand-byte read (handled
// automatically by tick() before this runs), an internal stack-settle
// cycle, then the P/PCL/PCH pulls.
func (c *CPU) iRTI() (bool, error) {
	switch {
	case c.opTick <= 1 || c.opTick > 6:
		return true, InvalidCPUState{Reason: fmt.Sprintf("iRTI invalid opTick %d", c.opTick)}
	case c.opTick == 2:
		return false, nil
	case c.opTick == 3:
		_ = c.bus.Read(0x0100 + uint16(c.SP)) // internal stack-pointer settle
		return false, nil
	case c.opTick == 4:
		c.P = (c.popStack() | FlagS) &^ FlagB
		return false, nil
	case c.opTick == 5:
		c.opAddr = uint16(c.popStack())
		return false, nil
	}
	c.PC = uint16(c.popStack())<<8 | c.opAddr
	return true, nil
}

// iPHA and iPHP take 3 cycles: fetch, a discarded operand-byte read (done
// automatically by tick() before this runs), then the actual push.
func (c *CPU) iPHA() (bool, error) {
	if c.opTick == 2 {
		return false, nil
	}
	c.pushStack(c.A)
	return true, nil
}

func (c *CPU) iPHP() (bool, error) {
	if c.opTick == 2 {
		return false, nil
	}
	c.pushStack(c.P | FlagS | FlagB)
	return true, nil
}

func (c *CPU) iPLA() (bool, error) {
	switch c.opTick {
	case 2:
		return false, nil
	case 3:
		_ = c.bus.Read(0x0100 + uint16(c.SP))
		return false, nil
	}
	c.A = c.popStack()
	c.zeroCheck(c.A)
	c.negativeCheck(c.A)
	return true, nil
}

func (c *CPU) iPLP() (bool, error) {
	switch c.opTick {
	case 2:
		return false, nil
	case 3:
		_ = c.bus.Read(0x0100 + uint16(c.SP))
		return false, nil
	}
	c.P = (c.popStack() | FlagS) &^ FlagB
	return true, nil
}
