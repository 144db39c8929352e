package pmm

import (
	"lainkernel/kernel"
	"lainkernel/kernel/mem"
)

var (
	errEarlyAllocExhausted = &kernel.Error{Module: "pmm", Message: "early allocator: out of identity-mapped memory"}

	// placementAddr is the current bump pointer. It starts just past the
	// kernel image and only ever grows. Before paging is enabled this
	// address is both a physical and a virtual address since the first
	// 4 MiB are identity-mapped.
	placementAddr uintptr

	// placementLimit marks the end of the region the bump allocator is
	// allowed to serve from (the end of the identity-mapped range).
	placementLimit uintptr
)

// InitEarlyAllocator configures the bump allocator to serve memory starting
// just past the kernel image and bounds it to the identity-mapped region
// that is guaranteed to be accessible before paging structures exist.
func InitEarlyAllocator(kernelEnd, identityMappedLimit uintptr) {
	placementAddr = alignUp(kernelEnd, uintptr(mem.PageSize))
	placementLimit = identityMappedLimit
}

// EarlyAlloc serves a page-aligned, allocation from the early bump arena.
// It is used to obtain memory for the page directory, the first page
// tables and the frame bitmap itself, all of which must exist before the
// kernel heap that would otherwise serve them is mapped.
//
// Memory returned by EarlyAlloc is never freed; this matches spec's
// documented early/late allocator split (see DESIGN.md).
func EarlyAlloc(size mem.Size) (uintptr, *kernel.Error) {
	addr := alignUp(placementAddr, uintptr(mem.PageSize))
	end := addr + uintptr(size)
	if end > placementLimit {
		return 0, errEarlyAllocExhausted
	}

	placementAddr = end
	mem.Memset(addr, 0, uintptr(size))
	return addr, nil
}

// EarlyAllocFrame is a convenience wrapper around EarlyAlloc that reserves
// exactly one page-sized, page-aligned frame and returns it as a Frame.
func EarlyAllocFrame() (Frame, *kernel.Error) {
	addr, err := EarlyAlloc(mem.PageSize)
	if err != nil {
		return InvalidFrame, err
	}

	return FrameFromAddress(addr), nil
}

// EarlyAllocWatermark returns the bump allocator's current high-water mark:
// every frame below this address was handed out by EarlyAlloc (or backs the
// kernel image it starts past) and must be reserved in the bitmap before
// AllocFrame is trusted to scan for free frames.
func EarlyAllocWatermark() uintptr {
	return placementAddr
}

func alignUp(addr uintptr, align uintptr) uintptr {
	return (addr + align - 1) &^ (align - 1)
}
