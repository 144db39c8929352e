// Package heap implements the kernel's late allocator: a single doubly
// linked freelist over a fixed virtual arena, first-fit with coalescing.
//
// Before the arena is mapped, Alloc/AllocAligned/AllocPhysical transparently
// degrade to pmm's early bump allocator, mirroring original_source's
// kmalloc_early fallback — callers never need to know which allocator is
// live.
package heap

import (
	"lainkernel/kernel"
	"lainkernel/kernel/kfmt"
	"lainkernel/kernel/mem"
	"lainkernel/kernel/mem/pmm"
	"lainkernel/kernel/mem/vmm"
	"unsafe"
)

const heapMagic = uint32(0xDEADBEEF)

const (
	minPayload = mem.Size(16)
	alignTo    = mem.Size(4)
)

// blockHeader prefixes every live allocation in the arena. Blocks form a
// doubly linked list in increasing address order so neighbours can be
// located in O(1) for coalescing.
type blockHeader struct {
	size  mem.Size
	magic uint32
	used  bool
	next  *blockHeader
	prev  *blockHeader
}

const headerSize = mem.Size(unsafe.Sizeof(blockHeader{}))

var (
	heapStart *blockHeader
	heapEnd   uintptr

	errCorrupt     = &kernel.Error{Module: "heap", Message: "heap block magic mismatch"}
	errDoubleFree  = &kernel.Error{Module: "heap", Message: "double free detected"}
	errOutOfMemory = &kernel.Error{Module: "heap", Message: "out of heap memory"}

	// panicFn is mocked by tests.
	panicFn = kfmt.Panic
)

// Init installs a single free block spanning [arenaStart, arenaStart+arenaSize).
// The caller (kernel/kmain) must have already mapped the arena frame-by-frame
// before calling Init.
func Init(arenaStart uintptr, arenaSize mem.Size) {
	heapStart = (*blockHeader)(unsafe.Pointer(arenaStart))
	heapEnd = arenaStart + uintptr(arenaSize)

	*heapStart = blockHeader{
		size:  arenaSize - headerSize,
		magic: heapMagic,
	}
}

// Ready reports whether Init has brought the heap arena online.
func Ready() bool {
	return heapStart != nil
}

func roundSize(n mem.Size) mem.Size {
	if n < minPayload {
		n = minPayload
	}
	return (n + alignTo - 1) &^ (alignTo - 1)
}

func payloadAddr(b *blockHeader) uintptr {
	return uintptr(unsafe.Pointer(b)) + uintptr(headerSize)
}

func blockFromPayload(ptr uintptr) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(ptr - uintptr(headerSize)))
}

// split carves a new free block out of the tail of b once it holds enough
// residue to be worth splitting off, shrinking b to exactly n bytes.
func (b *blockHeader) split(n mem.Size) {
	newBlock := (*blockHeader)(unsafe.Pointer(payloadAddr(b) + uintptr(n)))
	*newBlock = blockHeader{
		size:  b.size - n - headerSize,
		magic: heapMagic,
		next:  b.next,
		prev:  b,
	}
	if newBlock.next != nil {
		newBlock.next.prev = newBlock
	}
	b.next = newBlock
	b.size = n
}

// Alloc reserves n bytes, rounding up to the minimum block size and a
// multiple of 4, and returns a pointer to the payload. It walks the freelist
// first-fit, splitting the first block large enough to hold the request
// when the residue would itself be a usable block.
func Alloc(n mem.Size) (uintptr, *kernel.Error) {
	if !Ready() {
		return pmm.EarlyAlloc(n)
	}

	n = roundSize(n)
	for b := heapStart; b != nil; b = b.next {
		if b.magic != heapMagic {
			panicFn(errCorrupt)
			return 0, errCorrupt
		}
		if b.used || b.size < n {
			continue
		}

		if b.size >= n+headerSize+minPayload {
			b.split(n)
		}

		b.used = true
		return payloadAddr(b), nil
	}

	panicFn(errOutOfMemory)
	return 0, errOutOfMemory
}

// AllocAligned behaves like Alloc but, before the heap arena exists, advances
// the bump allocator to a page boundary instead. Once the heap is online
// there is no general way to carve a page-aligned block out of an arbitrary
// freelist position, so this degrades to a plain Alloc — the same documented
// limitation original_source's kmalloc_a carries once kmalloc_init has run.
func AllocAligned(n mem.Size) (uintptr, *kernel.Error) {
	if !Ready() {
		return pmm.EarlyAlloc(n)
	}
	return Alloc(n)
}

// AllocPhysical behaves like AllocAligned but additionally resolves the
// physical address backing the returned virtual pointer. Before the heap
// exists the early bump arena is identity-mapped, so the virtual and
// physical addresses coincide; afterwards the physical address is resolved
// via vmm.Translate against the active page directory.
func AllocPhysical(n mem.Size) (virtAddr, physAddr uintptr, err *kernel.Error) {
	if !Ready() {
		virtAddr, err = pmm.EarlyAlloc(n)
		if err != nil {
			return 0, 0, err
		}
		return virtAddr, virtAddr, nil
	}

	if virtAddr, err = Alloc(n); err != nil {
		return 0, 0, err
	}

	if physAddr, err = vmm.Translate(virtAddr); err != nil {
		return 0, 0, err
	}

	return virtAddr, physAddr, nil
}

// Free releases a block previously returned by Alloc/AllocAligned/AllocPhysical,
// coalescing it with any free neighbours. Freeing memory obtained from the
// early bump allocator is a no-op: that allocator never reclaims.
func Free(ptr uintptr) *kernel.Error {
	if !Ready() || ptr == 0 {
		return nil
	}

	b := blockFromPayload(ptr)
	if b.magic != heapMagic {
		panicFn(errCorrupt)
		return errCorrupt
	}
	if !b.used {
		panicFn(errDoubleFree)
		return errDoubleFree
	}
	b.used = false

	if b.next != nil && !b.next.used {
		b.size += headerSize + b.next.size
		b.next = b.next.next
		if b.next != nil {
			b.next.prev = b
		}
	}

	if b.prev != nil && !b.prev.used {
		b.prev.size += headerSize + b.size
		b.prev.next = b.next
		if b.next != nil {
			b.next.prev = b.prev
		}
	}

	return nil
}
