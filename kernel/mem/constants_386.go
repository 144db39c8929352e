// +build 386

package mem

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)). The pointer
	// size for this architecture is defined as (1 << PointerShift).
	PointerShift = 2

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right
	// by PageShift) and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// KernelVirtualBase is the virtual address above which addresses are
	// considered to belong to kernel space. The kernel heap arena lives above
	// this mark; the kernel image and the early bump allocator arena sit in
	// identity-mapped low physical memory below it.
	KernelVirtualBase = uintptr(0xC0000000)

	// HeapArenaBase is the fixed virtual address of the kernel heap arena.
	HeapArenaBase = uintptr(0xC0400000)

	// HeapArenaSize is the size of the kernel heap arena.
	HeapArenaSize = Size(4 * Mb)
)
