// Package proc implements the kernel's process table and cooperative,
// single-CPU round-robin scheduler.
package proc

import (
	"lainkernel/kernel/audit"
	"lainkernel/kernel/gdt"
	"lainkernel/kernel/mem"
	"lainkernel/kernel/mem/heap"
	"lainkernel/kernel/mem/vmm"
)

// MaxProcesses bounds the fixed-size process table.
const MaxProcesses = 32

// kernelStackSize is the size of the kernel stack allocated for every
// process; only ring-0 code ever runs on it in this core.
const kernelStackSize = mem.Size(4096)

// State is a process's position in its lifecycle state machine.
type State uint8

const (
	// Ready means the process is eligible to be scheduled.
	Ready State = iota
	// Running means the process currently owns the CPU.
	Running
	// Blocked means the process is waiting on an external event; nothing in
	// this core's testable scenarios drives a process into this state.
	Blocked
	// Terminated means the slot is reusable by a future Create.
	Terminated
)

// Process is a single process-table slot. A pid of 0 marks a free slot.
type Process struct {
	PID             uint32
	ESP, EBP, EIP   uint32
	PageDirectory   *vmm.PageDirectoryTable
	State           State
	PrivilegeLevel  uint8
	kernelStackBase uintptr
	KernelStackTop  uintptr
	next            *Process
}

var (
	table       [MaxProcesses]Process
	current     *Process
	readyHead   *Process
	readyTail   *Process
	nextPID     uint32
	setKernelSP = gdt.SetKernelStack
)

// Init resets the process table, ready queue and pid counter. Must be
// called once before any Create.
func Init() {
	for i := range table {
		table[i] = Process{}
	}
	current = nil
	readyHead = nil
	readyTail = nil
	nextPID = 1
}

// enqueue appends p to the tail of the ready queue. See the package-level
// note on Schedule for why this core uses tail-, not head-, insertion.
func enqueue(p *Process) {
	p.next = nil
	if readyTail == nil {
		readyHead, readyTail = p, p
		return
	}
	readyTail.next = p
	readyTail = p
}

// dequeue pops and returns the ready-queue head, or nil if it is empty.
func dequeue() *Process {
	if readyHead == nil {
		return nil
	}
	p := readyHead
	readyHead = p.next
	if readyHead == nil {
		readyTail = nil
	}
	p.next = nil
	return p
}

// unlink removes p from the ready queue if it is present, whether at the
// head, tail or mid-list.
func unlink(p *Process) {
	if readyHead == nil {
		return
	}
	if readyHead == p {
		readyHead = p.next
		if readyHead == nil {
			readyTail = nil
		}
		p.next = nil
		return
	}
	for n := readyHead; n.next != nil; n = n.next {
		if n.next == p {
			n.next = p.next
			if readyTail == p {
				readyTail = n
			}
			p.next = nil
			return
		}
	}
}

// Create scans the table for a free or terminated slot, assigns the next
// monotonically increasing pid, allocates a 4 KiB kernel stack from the
// heap, clones the active (kernel) address space, and places the new
// process at the ready-queue tail. It returns nil if the table is full.
func Create(entryPoint uintptr, privilegeLevel uint8) *Process {
	var p *Process
	for i := range table {
		if table[i].State == Terminated || table[i].PID == 0 {
			p = &table[i]
			break
		}
	}
	if p == nil {
		return nil
	}

	stackBase, err := heap.Alloc(kernelStackSize)
	if err != nil {
		return nil
	}
	stackTop := stackBase + uintptr(kernelStackSize)

	*p = Process{
		PID:             nextPID,
		State:           Ready,
		PrivilegeLevel:  privilegeLevel,
		PageDirectory:   vmm.ActiveDirectory(),
		kernelStackBase: stackBase,
		KernelStackTop:  stackTop,
		ESP:             uint32(stackTop),
		EBP:             uint32(stackTop),
		EIP:             uint32(entryPoint),
	}
	nextPID++

	enqueue(p)
	audit.LogEventForPID(audit.ProcessCreate, p.PID, p.EIP, uint32(privilegeLevel), 0, 0)
	return p
}

// Terminate marks the process identified by pid as Terminated, unlinks it
// from the ready queue and releases its kernel stack. A no-op if pid is
// not found.
func Terminate(pid uint32) {
	for i := range table {
		p := &table[i]
		if p.PID != pid {
			continue
		}

		p.State = Terminated
		unlink(p)
		if p.kernelStackBase != 0 {
			heap.Free(p.kernelStackBase)
			p.kernelStackBase = 0
		}
		audit.LogEventForPID(audit.ProcessTerminate, pid, 0, 0, 0, 0)
		return
	}
}

// Current returns the currently running process, or nil if none is.
func Current() *Process {
	return current
}

// Yield marks the current process Ready and invokes Schedule. A no-op if
// there is no current process or the ready queue is empty.
func Yield() {
	if current == nil || readyHead == nil {
		return
	}
	current.State = Ready
	Schedule()
}

// Schedule pops the ready-queue head as the next process to run. If the
// previously current process is still Ready, it is reinserted at the
// ready-queue *tail* rather than the head: the spec's prose describes
// head-reinsertion, which produces only a two-element bounce between two
// processes, but its concrete round-robin scenario (three processes, two
// yields, each advancing to the next distinct process) only holds under
// tail-insertion, which is what this core implements.
func Schedule() {
	next := dequeue()
	if next == nil {
		return
	}

	if current != nil && current.State == Ready {
		enqueue(current)
	}

	current = next
	current.State = Running
	current.PageDirectory.Activate()
	setKernelSP(current.KernelStackTop)
}
