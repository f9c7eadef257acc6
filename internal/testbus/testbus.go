// Package testbus provides a flat 64 KiB memory.Bank that also implements
// irq.Sender, for tests that wire a CPU's IRQ/NMI lines to an external
// collaborator instead of driving RaiseIRQ/RaiseNMI directly. It is grounded
// on the shape of a memory-mapped chip that also asserts an interrupt line
// (the teacher's combined timer/I/O controller), generalized down to the
// single boolean line this core's irq.Sender expects.
package testbus

import "github.com/wkhenry/go6502/memory"

// Bus is a memory.Bank and irq.Sender in one, for use with cpu.WithIRQSender
// / cpu.WithNMISender in tests that want the interrupt source to live on the
// same object the CPU already reads and writes.
type Bus struct {
	memory.Bank
	raised bool
}

// New creates a Bus wrapping a fresh flat RAM image.
func New() *Bus {
	return &Bus{Bank: memory.NewRAM()}
}

// Raised implements irq.Sender.
func (b *Bus) Raised() bool { return b.raised }

// Assert holds the line high until Deassert is called.
func (b *Bus) Assert() { b.raised = true }

// Deassert drops the line low.
func (b *Bus) Deassert() { b.raised = false }
