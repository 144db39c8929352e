package pmm

import (
	"lainkernel/kernel"
	"lainkernel/kernel/kfmt"
	"lainkernel/kernel/mem"
)

var (
	errOutOfFrames = &kernel.Error{Module: "pmm", Message: "out of physical memory"}
	errDoubleFree  = &kernel.Error{Module: "pmm", Message: "frame double free detected"}

	// bitmap is a dense bit array; bit i set means frame i is in use. It
	// is itself stored inside memory obtained from the early bump
	// allocator, as spec's data model requires.
	bitmap []byte

	// totalFrames is mem_size / 4096, the length of the logical bit array.
	totalFrames uint32

	// cursor is next_free_frame: Alloc starts scanning from here.
	cursor uint32
)

// InitBitmap sizes the frame bitmap for a system with the given amount of
// physical memory and stores it inside storageAddr, which the caller must
// have obtained from EarlyAlloc with enough room for (memSize/4096/8) bytes.
// Every bit starts clear; callers are responsible for pre-reserving frames
// that are already in use (the kernel image, the early bump arena, and the
// bitmap's own backing storage) via ReserveFrame before enabling allocation.
func InitBitmap(memSize mem.Size, storageAddr uintptr) {
	totalFrames = uint32(memSize / mem.PageSize)
	byteLen := (totalFrames + 7) / 8

	bitmap = sliceAt(storageAddr, uintptr(byteLen))
	cursor = 0
}

// ReserveFrame marks a frame as in-use without going through the normal
// alloc path. Used during bootstrap to pre-reserve frames backing the
// kernel image, the identity-mapped early arena and the bitmap itself.
func ReserveFrame(f Frame) {
	setBit(uint32(f))
}

// AllocFrame scans the bitmap from the cursor forward, wrapping once, and
// reserves the first clear bit it finds. Exhaustion is a fatal invariant
// break: there is no way to make progress, so the kernel panics.
func AllocFrame() (Frame, *kernel.Error) {
	start := cursor
	for i := uint32(0); i < totalFrames; i++ {
		idx := (start + i) % totalFrames
		if !testBit(idx) {
			setBit(idx)
			cursor = idx + 1
			if cursor >= totalFrames {
				cursor = 0
			}
			return Frame(idx), nil
		}
	}

	kfmt.Panic(errOutOfFrames)
	return InvalidFrame, errOutOfFrames
}

// FreeFrame clears the bit for f and pulls the cursor back to f if f is
// lower than the current cursor, so that the next AllocFrame call
// preferentially reuses just-freed low frames.
func FreeFrame(f Frame) *kernel.Error {
	idx := uint32(f)
	if !testBit(idx) {
		kfmt.Panic(errDoubleFree)
		return errDoubleFree
	}

	clearBit(idx)
	if idx < cursor {
		cursor = idx
	}
	return nil
}

func testBit(i uint32) bool {
	return bitmap[i/8]&(1<<(i%8)) != 0
}

func setBit(i uint32) {
	bitmap[i/8] |= 1 << (i % 8)
}

func clearBit(i uint32) {
	bitmap[i/8] &^= 1 << (i % 8)
}
