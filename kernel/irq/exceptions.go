package irq

import (
	"lainkernel/kernel"
	"lainkernel/kernel/kfmt"
)

// ExceptionNum identifies one of the 32 CPU exception vectors.
type ExceptionNum uint8

// Named CPU exception vectors 0-18. exceptionNames below holds the message
// printed for each of the 32 vectors when no handler is registered for it.
const (
	DivideByZero                = ExceptionNum(0)
	Debug                       = ExceptionNum(1)
	NMI                         = ExceptionNum(2)
	Breakpoint                  = ExceptionNum(3)
	Overflow                    = ExceptionNum(4)
	BoundRangeExceeded          = ExceptionNum(5)
	InvalidOpcode               = ExceptionNum(6)
	DeviceNotAvailable          = ExceptionNum(7)
	DoubleFault                 = ExceptionNum(8)
	CoprocessorSegmentOverrun   = ExceptionNum(9)
	InvalidTSS                  = ExceptionNum(10)
	SegmentNotPresent           = ExceptionNum(11)
	StackSegmentFault           = ExceptionNum(12)
	GPFException                = ExceptionNum(13)
	PageFaultException          = ExceptionNum(14)
	UnknownInterrupt            = ExceptionNum(15)
	CoprocessorFault            = ExceptionNum(16)
	AlignmentCheck              = ExceptionNum(17)
	MachineCheck                = ExceptionNum(18)
)

// exceptionNames mirrors the canonical exception_messages table: index i
// holds the name printed when vector i is unhandled.
var exceptionNames = [32]string{
	"Division By Zero", "Debug", "Non Maskable Interrupt", "Breakpoint",
	"Into Detected Overflow", "Out of Bounds", "Invalid Opcode", "No Coprocessor",
	"Double Fault", "Coprocessor Segment Overrun", "Bad TSS", "Segment Not Present",
	"Stack Fault", "General Protection Fault", "Page Fault", "Unknown Interrupt",
	"Coprocessor Fault", "Alignment Check", "Machine Check", "Reserved",
	"Reserved", "Reserved", "Reserved", "Reserved",
	"Reserved", "Reserved", "Reserved", "Reserved",
	"Reserved", "Reserved", "Reserved", "Reserved",
}

// exceptionsWithErrorCode marks the vectors for which the CPU pushes an
// error code before the exception frame.
var exceptionsWithErrorCode = map[ExceptionNum]bool{
	DoubleFault: true, InvalidTSS: true, SegmentNotPresent: true,
	StackSegmentFault: true, GPFException: true, PageFaultException: true,
	AlignmentCheck: true,
}

// ExceptionHandler handles an exception that does not push an error code.
type ExceptionHandler func(*Frame, *Regs)

// ExceptionHandlerWithCode handles an exception that pushes an error code.
type ExceptionHandlerWithCode func(uint32, *Frame, *Regs)

// IRQHandler handles a hardware interrupt. irqLine is 0-15, matching the
// legacy PIC's IRQ numbering (not the remapped vector number).
type IRQHandler func(irqLine uint8, frame *Frame, regs *Regs)

var (
	exceptionHandlers         [32]ExceptionHandler
	exceptionHandlersWithCode [32]ExceptionHandlerWithCode
	irqHandlers               [16]IRQHandler

	errUnhandledException = &kernel.Error{Module: "irq", Message: "unhandled exception"}
)

// HandleException registers an exception handler (without an error code)
// for the given vector, overwriting any previous registration.
func HandleException(vec ExceptionNum, handler ExceptionHandler) {
	exceptionHandlers[vec] = handler
}

// HandleExceptionWithCode registers an exception handler (with an error
// code) for the given vector, overwriting any previous registration.
func HandleExceptionWithCode(vec ExceptionNum, handler ExceptionHandlerWithCode) {
	exceptionHandlersWithCode[vec] = handler
}

// HandleIRQ registers a handler for the given legacy IRQ line (0-15).
func HandleIRQ(irqLine uint8, handler IRQHandler) {
	irqHandlers[irqLine] = handler
}

// dispatch is invoked by the common assembly trampoline for every vector.
// It is not exported: the only caller is entry_386.s.
func dispatch(vector uint32, errCode uint32, frame *Frame, regs *Regs) {
	switch {
	case vector < 32:
		dispatchException(ExceptionNum(vector), errCode, frame, regs)
	case vector >= picMasterVectorBase && vector < picMasterVectorBase+16:
		dispatchIRQ(vector, frame, regs)
	case vector == SyscallVector:
		if syscallHandler != nil {
			syscallHandler(frame, regs)
		}
	}
}

func dispatchException(vec ExceptionNum, errCode uint32, frame *Frame, regs *Regs) {
	if exceptionsWithErrorCode[vec] {
		if h := exceptionHandlersWithCode[vec]; h != nil {
			h(errCode, frame, regs)
			return
		}
	} else if h := exceptionHandlers[vec]; h != nil {
		h(frame, regs)
		return
	}

	kfmt.Printf("\n!!! EXCEPTION: %s !!!\n", exceptionNames[vec])
	kfmt.Printf("Error Code: 0x%x\nEIP: 0x%x\nCS: 0x%x\n", errCode, frame.EIP, frame.CS)
	kfmt.Panic(errUnhandledException)
}

func dispatchIRQ(vector uint32, frame *Frame, regs *Regs) {
	irqLine := uint8(vector - picMasterVectorBase)

	sendEOI(vector)

	if h := irqHandlers[irqLine]; h != nil {
		h(irqLine, frame, regs)
	}
}
