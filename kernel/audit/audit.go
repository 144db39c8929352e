// Package audit implements the kernel's security audit trail: a fixed-size
// ring of recent security-relevant events (syscalls, rejected pointers,
// privilege violations, stack-canary failures, process lifecycle) written
// in strict monotonic order by a single counter.
package audit

import (
	"lainkernel/kernel/kfmt"
	"lainkernel/kernel/ring"
)

// EventType classifies an audit log entry.
type EventType uint8

// Event types, in the order original_source's audit_event_names table lists
// them.
const (
	Syscall EventType = iota
	PrivilegeViolation
	MemoryViolation
	InvalidPointer
	StackSmash
	ProcessCreate
	ProcessTerminate
	RateLimitExceeded
	KernelPanic
)

var eventNames = [...]string{
	Syscall:             "SYSCALL",
	PrivilegeViolation:  "PRIVILEGE_VIOLATION",
	MemoryViolation:     "MEMORY_VIOLATION",
	InvalidPointer:      "INVALID_POINTER",
	StackSmash:          "STACK_SMASH",
	ProcessCreate:       "PROCESS_CREATE",
	ProcessTerminate:    "PROCESS_TERMINATE",
	RateLimitExceeded:   "RATE_LIMIT_EXCEEDED",
	KernelPanic:         "KERNEL_PANIC",
}

func (e EventType) String() string {
	if int(e) >= len(eventNames) {
		return "UNKNOWN"
	}
	return eventNames[e]
}

// logSize is the number of entries the audit ring retains before the
// oldest is overwritten.
const logSize = 1024

// printTail is how many of the most recent entries PrintLog renders.
const printTail = 20

// Entry is a single audit log record.
type Entry struct {
	Timestamp uint32
	Type      EventType
	PID       uint32
	Data      [4]uint32
}

var (
	log       = ring.New[Entry](logSize)
	tickCount uint32
)

// Init clears the audit log and resets the timestamp counter.
func Init() {
	log = ring.New[Entry](logSize)
	tickCount = 0
}

// LogEvent appends an entry to the audit ring, stamped with the next value
// of the monotonic tick counter. pid is left at 0; callers that know the
// active process should use LogEventForPID instead.
func LogEvent(typ EventType, data0, data1, data2, data3 uint32) {
	LogEventForPID(typ, 0, data0, data1, data2, data3)
}

// LogEventForPID is LogEvent with an explicit process id attached to the
// entry.
func LogEventForPID(typ EventType, pid uint32, data0, data1, data2, data3 uint32) {
	entry := Entry{
		Timestamp: tickCount,
		Type:      typ,
		PID:       pid,
		Data:      [4]uint32{data0, data1, data2, data3},
	}
	tickCount++
	log.Push(entry)
}

// PrintLog renders the most recent entries to the kernel's active output
// sink (kernel/kfmt), oldest first.
func PrintLog() {
	entries := log.Snapshot(printTail)

	kfmt.Printf("\n=== Audit Log ===\n")
	if len(entries) == 0 {
		kfmt.Printf("No audit events logged.\n\n")
		return
	}

	for _, e := range entries {
		kfmt.Printf("[%d] %s - Data: 0x%x\n", e.Timestamp, e.Type.String(), e.Data[0])
	}
	kfmt.Printf("\n")
}

// EventCount returns the number of currently retained entries of the given
// type.
func EventCount(typ EventType) int {
	return log.Count(func(e Entry) bool { return e.Type == typ })
}
