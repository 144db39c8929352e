// Package syscall implements the system-call gate: vector 128, ring 3,
// dispatched on EAX with arguments in EBX/ECX/EDX.
package syscall

import (
	"reflect"
	"unsafe"

	"lainkernel/kernel/audit"
	"lainkernel/kernel/irq"
	"lainkernel/kernel/mem"
	"lainkernel/kernel/mem/heap"
	"lainkernel/kernel/proc"
	"lainkernel/kernel/security"
)

// Syscall numbers, matching original_source's SYS_WRITE/SYS_READ/SYS_EXIT.
const (
	Write = 1
	Read  = 2
	Exit  = 3
)

// writeFn forwards a sanitized, NUL-terminated string to the console. Set
// by Init to the real console's WriteString; left nil in tests that only
// want to observe the validation/audit path.
var writeFn = func(string) {}

// validatePrivilegeFn and validateUserPtrFn are mocked by tests; in the
// kernel they are security.ValidatePrivilege (reads the live CS register)
// and security.ValidateUserPtr (walks the active page directory), neither
// of which is safe to exercise without real privileged hardware state.
var (
	validatePrivilegeFn = security.ValidatePrivilege
	validateUserPtrFn   = security.ValidateUserPtr
)

// Init registers the syscall gate handler. writeTo is the console function
// that backs SYS_WRITE.
func Init(writeTo func(string)) {
	if writeTo != nil {
		writeFn = writeTo
	}
	irq.SetSyscallHandler(handler)
}

func handler(_ *irq.Frame, regs *irq.Regs) {
	if !validatePrivilegeFn(3) {
		audit.LogEvent(audit.PrivilegeViolation, regs.EAX, 0, 0, 0)
		return
	}

	audit.LogEvent(audit.Syscall, regs.EAX, regs.EBX, regs.ECX, regs.EDX)

	switch regs.EAX {
	case Write:
		sysWrite(uintptr(regs.EBX), uintptr(regs.ECX))
	case Read:
		sysRead(uintptr(regs.EBX), uintptr(regs.ECX))
	case Exit:
		sysExit(regs.EBX)
	}
}

// sysWrite validates the user buffer, copies it into a heap-allocated
// scratch buffer, sanitizes it, and forwards it to the console. Invalid
// pointers are logged and the console is never touched.
func sysWrite(buf uintptr, length uintptr) {
	if !validateUserPtrFn(buf, length) {
		audit.LogEvent(audit.InvalidPointer, uint32(buf), uint32(length), 0, 0)
		return
	}

	scratch, err := heap.Alloc(mem.Size(length) + 1)
	if err != nil {
		return
	}
	defer heap.Free(scratch)

	mem.Memcopy(buf, scratch, length)

	out := bytesAtFn(scratch, int(length)+1)
	out[length] = 0

	security.SanitizeString(out)
	writeFn(string(out[:length]))
}

// sysRead validates the user buffer and zero-fills it. Placeholder
// semantics: there is no input device wired to this syscall yet.
func sysRead(buf uintptr, length uintptr) {
	if !validateUserPtrFn(buf, length) {
		audit.LogEvent(audit.InvalidPointer, uint32(buf), uint32(length), 0, 0)
		return
	}

	mem.Memset(buf, 0, length)
}

// bytesAtFn reinterprets addr as a []byte of the given length, the same
// reflect.SliceHeader trick kernel/mem's Memset/Memcopy use. Mocked by
// tests so the scratch buffer can be inspected without touching raw
// physical addresses.
var bytesAtFn = func(addr uintptr, length int) []byte {
	return *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  length,
		Cap:  length,
		Data: addr,
	}))
}

// sysExit terminates the calling process, if any.
func sysExit(_ uint32) {
	if current := proc.Current(); current != nil {
		proc.Terminate(current.PID)
	}
}
