// Package allocator exposes the single AllocFrame entrypoint used by
// goruntime and the paging bootstrap code. Internally it forwards to
// whichever of pmm's two allocators (see DESIGN.md: early vs late) is
// currently active, so callers never need to know which phase of boot
// they are running in.
package allocator

import (
	"lainkernel/kernel"
	"lainkernel/kernel/mem/pmm"
)

var lateAllocatorActive bool

// AllocFrame reserves and returns the next available physical frame. Before
// SwitchToLate is called it is served by the bump allocator; afterwards by
// the bitmap allocator.
func AllocFrame() (pmm.Frame, *kernel.Error) {
	if lateAllocatorActive {
		return pmm.AllocFrame()
	}
	return pmm.EarlyAllocFrame()
}

// SwitchToLate directs subsequent AllocFrame calls to the bitmap-backed
// allocator. Called once by kernel/kmain after pmm.InitBitmap has run and
// every frame claimed by the early allocator has been marked reserved.
func SwitchToLate() {
	lateAllocatorActive = true
}
