// Package security implements the kernel's privilege and memory-safety
// checks: ring-level enforcement, user-pointer/string validation against
// the active address space, and stack-canary integrity.
package security

import (
	"unsafe"

	"lainkernel/device/rng"
	"lainkernel/kernel/audit"
	"lainkernel/kernel/cpu"
	"lainkernel/kernel/kfmt"
	"lainkernel/kernel/mem"
	"lainkernel/kernel/mem/vmm"
)

var (
	canary uint32

	// readCSFn, pageFlagsFn and panicFn are mocked by tests.
	readCSFn    = cpu.ReadCS
	pageFlagsFn = vmm.PageFlags
	panicFn     = kfmt.Panic
)

// Init seeds the stack canary from the RNG and brings up the audit log. The
// RNG itself must already have been initialized by the caller.
func Init() {
	canary = rng.Get()
	audit.Init()
}

// GetCanary returns the current stack canary value, to be stashed by
// callers that want to detect stack-frame corruption on return.
func GetCanary() uint32 {
	return canary
}

// CheckCanary compares value against the stored canary. A mismatch logs a
// StackSmash audit event and panics; there is no recoverable path.
func CheckCanary(value uint32) bool {
	if value != canary {
		audit.LogEvent(audit.StackSmash, value, canary, 0, 0)
		panicFn("stack smashing detected")
		return false
	}
	return true
}

// ValidatePrivilege reports whether the current code-segment privilege
// level is at least as privileged as requiredRing (numerically lower is
// more privileged, so this holds iff current <= requiredRing).
func ValidatePrivilege(requiredRing uint8) bool {
	currentRing := uint8(readCSFn() & 0x3)
	return currentRing <= requiredRing
}

// IsPrintable reports whether c is a printable ASCII character or one of
// the common whitespace control characters.
func IsPrintable(c byte) bool {
	return (c >= 32 && c <= 126) || c == '\n' || c == '\r' || c == '\t'
}

// SanitizeString replaces any non-printable byte in buf (up to its first NUL
// or len(buf), whichever comes first) with '?', and NUL-terminates buf if no
// terminator was found within its bounds.
func SanitizeString(buf []byte) {
	if len(buf) == 0 {
		return
	}

	length := 0
	for ; length < len(buf) && buf[length] != 0; length++ {
		if !IsPrintable(buf[length]) {
			buf[length] = '?'
		}
	}

	if length >= len(buf) {
		buf[len(buf)-1] = 0
	}
}

// ValidateBuffer reports whether ptr is non-nil, non-zero in length and
// does not overflow the address space when advanced by size.
func ValidateBuffer(ptr uintptr, size uintptr) bool {
	if ptr == 0 || size == 0 {
		return false
	}
	return ptr+size >= ptr
}

// ValidateUserPtr reports whether [ptr, ptr+size) is entirely below the
// kernel/user split, does not wrap the address space, and is backed by
// present, user-accessible pages in the currently active directory.
func ValidateUserPtr(ptr uintptr, size uintptr) bool {
	if ptr == 0 {
		return false
	}
	if memoryIsKernelAddress(ptr) {
		return false
	}

	end := ptr + size
	if end < ptr {
		return false
	}
	if memoryIsKernelAddress(ptr + size - 1) {
		return false
	}

	pageStart := ptr &^ (uintptr(mem.PageSize) - 1)
	for page := pageStart; page < end; page += uintptr(mem.PageSize) {
		flags, err := pageFlagsFn(page)
		if err != nil || flags&vmm.FlagPresent == 0 || flags&vmm.FlagUser == 0 {
			return false
		}
	}

	return true
}

// ValidateUserString reports whether a NUL-terminated string of at most
// maxLen bytes starting at ptr lies entirely within user-accessible,
// present pages. It walks the string byte-by-byte so a terminator can fall
// anywhere inside a validated page without requiring the whole maxLen range
// to be mapped.
func ValidateUserString(ptr uintptr, maxLen uintptr) bool {
	if !ValidateUserPtr(ptr, 1) {
		return false
	}

	for i := uintptr(0); i < maxLen; i++ {
		if !ValidateUserPtr(ptr+i, 1) {
			return false
		}
		if readByteFn(ptr+i) == 0 {
			return true
		}
	}

	return false
}

// readByteFn is mocked by tests; in the freestanding kernel it dereferences
// a validated user-space virtual address directly.
var readByteFn = func(addr uintptr) byte {
	return *(*byte)(unsafe.Pointer(addr))
}

func memoryIsKernelAddress(addr uintptr) bool {
	return addr >= mem.KernelVirtualBase
}
