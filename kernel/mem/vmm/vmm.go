package vmm

import (
	"lainkernel/kernel"
	"lainkernel/kernel/cpu"
	"lainkernel/kernel/irq"
	"lainkernel/kernel/kfmt"
	"lainkernel/kernel/mem"
	"lainkernel/kernel/mem/pmm"
)

// tempMappingAddr is a single fixed page reserved for MapTemporary. It sits
// at the very top of the address space, one page below where
// EarlyReserveRegion starts handing out addresses.
const tempMappingAddr = uintptr(0xFFFFF000)

var (
	// frameAllocator points to a frame allocator function registered using
	// SetFrameAllocator.
	frameAllocator FrameAllocatorFn

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	handleExceptionWithCodeFn = irq.HandleExceptionWithCode
	readCR2Fn                 = cpu.ReadCR2
	enablePagingFn            = cpu.EnablePaging
	panicFn                   = kfmt.Panic

	errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "page/gpf fault"}
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// SetFrameAllocator registers a frame allocator function that will be used by
// the vmm code when new physical frames need to be allocated.
func SetFrameAllocator(allocFn FrameAllocatorFn) {
	frameAllocator = allocFn
}

func pageFaultHandler(errorCode uint32, frame *irq.Frame, regs *irq.Regs) {
	faultAddress := uintptr(readCR2Fn())
	faultPage := PageFromAddress(faultAddress)

	pageEntry, lookupErr := currentDirectory.GetPage(faultPage.Address(), false)
	if lookupErr != nil {
		pageEntry = nil
	}

	// CoW is supported for RO pages with the CoW flag set
	if pageEntry != nil && pageEntry.HasFlags(FlagPresent) && !pageEntry.HasFlags(FlagRW) && pageEntry.HasFlags(FlagCopyOnWrite) {
		var (
			copyFrame pmm.Frame
			tmpPage   Page
			err       *kernel.Error
		)

		if copyFrame, err = frameAllocator(); err != nil {
			nonRecoverablePageFault(faultAddress, errorCode, frame, regs, err)
			return
		} else if tmpPage, err = mapTemporaryFn(copyFrame); err != nil {
			nonRecoverablePageFault(faultAddress, errorCode, frame, regs, err)
			return
		}

		// Copy page contents, mark as RW and remove CoW flag
		mem.Memcopy(faultPage.Address(), tmpPage.Address(), uintptr(mem.PageSize))
		unmapFn(tmpPage)

		pageEntry.ClearFlags(FlagCopyOnWrite)
		pageEntry.SetFlags(FlagPresent | FlagRW)
		pageEntry.SetFrame(copyFrame)
		flushTLBEntryFn(faultPage.Address())
		return
	}

	nonRecoverablePageFault(faultAddress, errorCode, frame, regs, errUnrecoverableFault)
}

func nonRecoverablePageFault(faultAddress uintptr, errorCode uint32, frame *irq.Frame, regs *irq.Regs, err *kernel.Error) {
	kfmt.Printf("\nPage fault while accessing address: 0x%x\nReason: ", faultAddress)
	switch errorCode & 0x7 {
	case 0:
		kfmt.Printf("read from non-present page")
	case 1:
		kfmt.Printf("page protection violation (read)")
	case 2:
		kfmt.Printf("write to non-present page")
	case 3:
		kfmt.Printf("page protection violation (write)")
	case 4:
		kfmt.Printf("page-fault in user-mode")
	default:
		kfmt.Printf("unknown")
	}

	kfmt.Printf("\n\nRegisters:\n")
	regs.Print()
	frame.Print()

	panicFn(err)
}

func generalProtectionFaultHandler(_ uint32, frame *irq.Frame, regs *irq.Regs) {
	kfmt.Printf("\nGeneral protection fault while accessing address: 0x%x\n", readCR2Fn())
	kfmt.Printf("Registers:\n")
	regs.Print()
	frame.Print()

	panicFn(errUnrecoverableFault)
}

// reserveZeroedFrame reserves a physical frame to be used together with
// FlagCopyOnWrite for lazy allocation requests.
func reserveZeroedFrame() *kernel.Error {
	var (
		err      *kernel.Error
		tempPage Page
	)

	if ReservedZeroedFrame, err = frameAllocator(); err != nil {
		return err
	} else if tempPage, err = mapTemporaryFn(ReservedZeroedFrame); err != nil {
		return err
	}
	mem.Memset(tempPage.Address(), 0, uintptr(mem.PageSize))
	unmapFn(tempPage)

	// From this point on, ReservedZeroedFrame cannot be mapped with a RW flag
	protectReservedZeroedPage = true
	return nil
}

// Init builds the kernel's page directory, identity-maps the whole of
// physical memory (physMemSize bytes, starting at address 0), activates the
// directory and enables paging, then installs the page-fault and general
// protection fault handlers.
//
// Every physical frame is kept identity-mapped for the lifetime of the
// kernel, not just the portion covering the kernel image: a freshly
// allocated frame must double as a dereferenceable Go pointer whenever vmm
// itself needs to build a new page table (GetPage's create path), including
// long after paging has been enabled. original_source's tutorial kernel
// sidesteps this by only ever identity-mapping its first 4MiB and never
// allocating new page tables afterwards; this kernel's Go runtime bootstrap
// does call Map for fresh regions post-boot, so the identity map is widened
// to cover all of physical memory instead of reintroducing the recursive
// self-mapping trick the original amd64 teacher code used.
func Init(physMemSize mem.Size) *kernel.Error {
	kernelDir, err := NewDirectory()
	if err != nil {
		return err
	}

	frameCount := uint32(physMemSize / mem.PageSize)
	for i := uint32(0); i < frameCount; i++ {
		frame := pmm.Frame(i)
		if mapErr := kernelDir.mapPage(PageFromAddress(frame.Address()), frame, FlagPresent|FlagRW); mapErr != nil {
			return mapErr
		}
	}

	kernelDir.Activate()
	enablePagingFn()

	if err := reserveZeroedFrame(); err != nil {
		return err
	}

	handleExceptionWithCodeFn(irq.PageFaultException, pageFaultHandler)
	handleExceptionWithCodeFn(irq.GPFException, generalProtectionFaultHandler)
	return nil
}
