// Package irq installs the interrupt descriptor table, remaps the legacy
// PIC and routes vectors to registered Go handlers.
package irq

import "lainkernel/kernel/kfmt"

// Regs contains a snapshot of the general purpose register values at the
// point an interrupt, exception or syscall occurred. Field order mirrors
// the order in which the common trampoline stub pushes registers onto the
// stack (see entry_386.s) so that a pointer to the saved block can be
// reinterpreted directly as a *Regs.
type Regs struct {
	EDI uint32
	ESI uint32
	EBP uint32
	EBX uint32
	EDX uint32
	ECX uint32
	EAX uint32
}

// Print outputs a dump of the register values to the active console.
func (r *Regs) Print() {
	kfmt.Printf("EAX = %8x EBX = %8x\n", r.EAX, r.EBX)
	kfmt.Printf("ECX = %8x EDX = %8x\n", r.ECX, r.EDX)
	kfmt.Printf("ESI = %8x EDI = %8x\n", r.ESI, r.EDI)
	kfmt.Printf("EBP = %8x\n", r.EBP)
}

// Frame describes the exception/interrupt frame that the CPU pushes to the
// stack automatically on vector entry.
type Frame struct {
	EIP    uint32
	CS     uint32
	EFlags uint32
}

// Print outputs a dump of the exception frame to the active console.
func (f *Frame) Print() {
	kfmt.Printf("EIP = %8x CS  = %8x\n", f.EIP, f.CS)
	kfmt.Printf("EFL = %8x\n", f.EFlags)
}
