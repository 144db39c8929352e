// Package gdt installs the flat segment layout and task-state segment this
// kernel runs under: one code/data pair for ring 0, one for ring 3, and a
// TSS that publishes the ring-0 stack pointer used on every ring 3 -> ring 0
// transition.
package gdt

import (
	"lainkernel/kernel/cpu"
	"unsafe"
)

// Segment selectors, fixed by the architecture-level contract: flat 4 GiB
// code/data segments for both rings plus a TSS descriptor.
const (
	NullSegment       = 0x00
	KernelCodeSegment = 0x08
	KernelDataSegment = 0x10
	UserCodeSegment   = 0x18
	UserDataSegment   = 0x20
	TSSSegment        = 0x28

	entryCount = 6
)

// access byte flags, following the original tutorial's naming.
const (
	accessCode    = 0x9A // present, ring0, code, readable
	accessData    = 0x92 // present, ring0, data, writable
	userAccessBit = 0x60 // DPL=3
	accessTSS     = 0xE9 // present, DPL=3, 32-bit available TSS

	granularity = 0xCF // 4 KiB granularity, 32-bit operand size
)

type entry struct {
	limitLow    uint16
	baseLow     uint16
	baseMiddle  uint8
	access      uint8
	granularity uint8
	baseHigh    uint8
}

type pointer struct {
	limit uint16
	base  uint32
}

// taskState is the single task-state segment used by this kernel. Only
// ss0/esp0 (the ring-0 stack pointer restored on a ring3->ring0
// transition) and the segment selectors are meaningful; there is no
// hardware task switching in this core.
type taskState struct {
	prevTask             uint32
	esp0                 uint32
	ss0                  uint32
	esp1, ss1, esp2, ss2 uint32
	cr3                  uint32
	eip, eflags          uint32
	eax, ecx, edx, ebx   uint32
	esp, ebp, esi, edi   uint32
	es, cs, ss           uint32
	ds, fs, gs           uint32
	ldt                  uint32
	trap, ioMapBase      uint16
}

var (
	entries [entryCount]entry
	gdtPtr  pointer
	theTSS  taskState
)

func setGate(num int, base, limit uint32, access, gran uint8) {
	entries[num] = entry{
		limitLow:    uint16(limit & 0xFFFF),
		baseLow:     uint16(base & 0xFFFF),
		baseMiddle:  uint8((base >> 16) & 0xFF),
		baseHigh:    uint8((base >> 24) & 0xFF),
		access:      access,
		granularity: uint8((limit>>16)&0x0F) | (gran & 0xF0),
	}
}

// Init installs the 6-entry GDT (null, kernel code/data, user code/data,
// TSS) and loads it, then loads the task register.
func Init() {
	setGate(0, 0, 0, 0, 0)
	setGate(1, 0, 0xFFFFFFFF, accessCode, granularity)
	setGate(2, 0, 0xFFFFFFFF, accessData, granularity)
	setGate(3, 0, 0xFFFFFFFF, accessCode|userAccessBit, granularity)
	setGate(4, 0, 0xFFFFFFFF, accessData|userAccessBit, granularity)

	theTSS = taskState{}
	theTSS.ss0 = KernelDataSegment
	theTSS.cs = KernelCodeSegment | 3
	theTSS.ss = UserDataSegment | 3
	theTSS.ds = UserDataSegment | 3
	theTSS.es = UserDataSegment | 3
	theTSS.fs = UserDataSegment | 3
	theTSS.gs = UserDataSegment | 3

	tssBase := uint32(uintptr(unsafe.Pointer(&theTSS)))
	tssLimit := tssBase + uint32(unsafe.Sizeof(theTSS))
	setGate(5, tssBase, tssLimit, accessTSS, 0x00)

	gdtPtr = pointer{
		limit: uint16(entryCount*unsafe.Sizeof(entries[0]) - 1),
		base:  uint32(uintptr(unsafe.Pointer(&entries))),
	}

	cpu.Lgdt(uintptr(unsafe.Pointer(&gdtPtr)))
	cpu.Ltr(TSSSegment)
}

// SetKernelStack updates the TSS so the next ring3->ring0 transition (via
// interrupt, exception or syscall gate) switches to the given ring-0 stack.
// Called by the scheduler on every context switch.
func SetKernelStack(esp0 uintptr) {
	theTSS.esp0 = uint32(esp0)
}
