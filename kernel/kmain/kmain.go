// Package kmain implements the kernel's boot sequence: the single
// exported entrypoint the Go runtime bootstrap hands control to once a
// minimal stack exists, through to handing off to the interactive shell.
package kmain

import (
	"lainkernel/kernel"
	"lainkernel/kernel/audit"
	"lainkernel/kernel/cpu"
	"lainkernel/kernel/gdt"
	"lainkernel/kernel/goruntime"
	"lainkernel/kernel/hal"
	"lainkernel/kernel/irq"
	"lainkernel/kernel/kfmt"
	"lainkernel/kernel/mem"
	"lainkernel/kernel/mem/heap"
	"lainkernel/kernel/mem/pmm"
	"lainkernel/kernel/mem/pmm/allocator"
	"lainkernel/kernel/mem/vmm"
	"lainkernel/kernel/proc"
	"lainkernel/kernel/security"
	"lainkernel/kernel/shell"
	"lainkernel/kernel/syscall"

	devrng "lainkernel/device/rng"
)

// totalMemorySize is the fixed amount of physical memory this kernel
// assumes is present, matching original_source's memory_init(32 * 1024 *
// 1024) call. There is no bootloader-provided memory map to consult; the
// spec replaces it with this single constant.
const totalMemorySize = mem.Size(32 * 1024 * 1024)

// bitmapStorageSize is the number of bytes needed for one bit per frame
// in totalMemorySize.
const bitmapStorageSize = mem.Size((uint32(totalMemorySize/mem.PageSize) + 7) / 8)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// Kmain is the kernel's entrypoint. kernelStart and kernelEnd bound the
// loaded kernel image and are supplied by the assembly/runtime bootstrap
// that calls this function; everything from kernelEnd to totalMemorySize
// is free physical memory.
//
//go:noinline
func Kmain(kernelStart, kernelEnd uintptr) {
	gdt.Init()

	pmm.InitEarlyAllocator(kernelEnd, uintptr(totalMemorySize))

	bitmapStorage, err := pmm.EarlyAlloc(bitmapStorageSize)
	if err != nil {
		kfmt.Panic(err)
	}
	pmm.InitBitmap(totalMemorySize, bitmapStorage)

	// Every frame the bump allocator has handed out so far (the kernel
	// image plus the bitmap's own backing storage) must be marked in-use
	// before general allocation is trusted to scan for free frames.
	usedFrames := uint32(pmm.EarlyAllocWatermark() / uintptr(mem.PageSize))
	for i := uint32(0); i < usedFrames; i++ {
		pmm.ReserveFrame(pmm.Frame(i))
	}
	allocator.SwitchToLate()

	vmm.SetFrameAllocator(pmm.AllocFrame)
	if err := vmm.Init(totalMemorySize); err != nil {
		kfmt.Panic(err)
	}

	if err := mapHeapArena(); err != nil {
		kfmt.Panic(err)
	}

	if err := goruntime.Init(); err != nil {
		kfmt.Panic(err)
	}

	irq.Init()
	devrng.Init()
	security.Init()
	audit.Init()

	if err := hal.Init(); err != nil {
		kfmt.Panic(err)
	}

	proc.Init()
	syscall.Init(func(s string) { hal.ActiveConsole().WriteString(s) })

	cpu.EnableInterrupts()

	shell.PrintWelcome(hal.ActiveConsole())
	shell.New(hal.ActiveConsole()).Run()

	// Run never returns; if it somehow did, there is nothing left to do
	// but panic rather than fall off the end of the kernel.
	kfmt.Panic(errKmainReturned)
}

// mapHeapArena allocates a physically contiguous run of frames for the
// kernel heap's fixed-size arena and maps them at mem.HeapArenaBase. The
// frames are expected to come back contiguous:
// nothing has run yet that could have fragmented the bitmap between the
// frames this loop allocates.
func mapHeapArena() *kernel.Error {
	frameCount := uint32(mem.HeapArenaSize / mem.PageSize)

	firstFrame, err := pmm.AllocFrame()
	if err != nil {
		return err
	}

	for i := uint32(1); i < frameCount; i++ {
		frame, err := pmm.AllocFrame()
		if err != nil {
			return err
		}
		if frame != firstFrame+pmm.Frame(i) {
			return &kernel.Error{Module: "kmain", Message: "heap arena frames were not contiguous"}
		}
	}

	basePage := vmm.PageFromAddress(mem.HeapArenaBase)
	for i := uint32(0); i < frameCount; i++ {
		if err := vmm.Map(basePage+vmm.Page(i), firstFrame+pmm.Frame(i), vmm.FlagPresent|vmm.FlagRW); err != nil {
			return err
		}
	}

	heap.Init(mem.HeapArenaBase, mem.HeapArenaSize)
	return nil
}
