package cpu

import "fmt"

// UnsupportedOpcode is returned when Step() decodes an opcode byte outside
// the 151 documented NMOS 6502 instructions. It is fatal: the CPU halts and
// every subsequent Step() call returns the same error.
type UnsupportedOpcode struct {
	Opcode uint8
	PC     uint16
}

// Error implements the error interface.
func (e UnsupportedOpcode) Error() string {
	return fmt.Sprintf("unsupported opcode 0x%.2X at PC 0x%.4X", e.Opcode, e.PC)
}

// InvalidCPUState represents an internal precondition failure in the
// emulator itself (e.g. an addressing-mode resolver invoked with a tick
// count no documented instruction can reach). It should never occur in a
// correct implementation; seeing it indicates a bug in this package, not a
// problem with the program being emulated.
type InvalidCPUState struct {
	Reason string
}

// Error implements the error interface.
func (e InvalidCPUState) Error() string {
	return fmt.Sprintf("invalid CPU state: %s", e.Reason)
}
