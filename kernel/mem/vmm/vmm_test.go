package vmm

import (
	"bytes"
	"fmt"
	"lainkernel/kernel"
	"lainkernel/kernel/cpu"
	"lainkernel/kernel/irq"
	"lainkernel/kernel/kfmt"
	"lainkernel/kernel/mem"
	"lainkernel/kernel/mem/pmm"
	"strings"
	"testing"
	"unsafe"
)

func TestRecoverablePageFault(t *testing.T) {
	withHeapBackedTables(t)

	var (
		frame      irq.Frame
		regs       irq.Regs
		origPage   = make([]byte, mem.PageSize)
		clonedPage = make([]byte, mem.PageSize)
		someErr    = &kernel.Error{Module: "test", Message: "something went wrong"}
	)

	dir, err := NewDirectory()
	if err != nil {
		t.Fatal(err)
	}

	defer func(origDir *PageDirectoryTable) {
		currentDirectory = origDir
		readCR2Fn = cpu.ReadCR2
		frameAllocator = nil
		mapTemporaryFn = MapTemporary
		unmapFn = Unmap
		flushTLBEntryFn = cpu.FlushTLBEntry
		panicFn = kfmt.Panic
	}(currentDirectory)

	currentDirectory = dir
	readCR2Fn = func() uint32 { return uint32(uintptr(unsafe.Pointer(&origPage[0]))) }
	unmapFn = func(_ Page) *kernel.Error { return nil }
	flushTLBEntryFn = func(_ uintptr) {}
	panicFn = func(e interface{}) { panic(e) }

	specs := []struct {
		pteFlags   PageTableEntryFlag
		allocError *kernel.Error
		mapError   *kernel.Error
		expPanic   bool
	}{
		// Missing page
		{0, nil, nil, true},
		// Page is present but CoW flag not set
		{FlagPresent, nil, nil, true},
		// Page is present but both CoW and RW flags set
		{FlagPresent | FlagRW | FlagCopyOnWrite, nil, nil, true},
		// Page is present with CoW flag set but allocating a page copy fails
		{FlagPresent | FlagCopyOnWrite, someErr, nil, true},
		// Page is present with CoW flag set but mapping the page copy fails
		{FlagPresent | FlagCopyOnWrite, nil, someErr, true},
		// Page is present with CoW flag set
		{FlagPresent | FlagCopyOnWrite, nil, nil, false},
	}

	faultAddr := uintptr(unsafe.Pointer(&origPage[0]))

	for specIndex, spec := range specs {
		t.Run(fmt.Sprint(specIndex), func(t *testing.T) {
			defer func() {
				r := recover()
				if spec.expPanic && r == nil {
					t.Error("expected a panic")
				} else if !spec.expPanic {
					if r != nil {
						t.Error("unexpected panic")
						return
					}

					for i := 0; i < len(origPage); i++ {
						if origPage[i] != clonedPage[i] {
							t.Errorf("expected clone page to be a copy of the original page; mismatch at index %d", i)
						}
					}
				}
			}()

			mapTemporaryFn = func(f pmm.Frame) (Page, *kernel.Error) { return Page(f), spec.mapError }
			SetFrameAllocator(func() (pmm.Frame, *kernel.Error) {
				addr := uintptr(unsafe.Pointer(&clonedPage[0]))
				return pmm.Frame(addr >> mem.PageShift), spec.allocError
			})

			for i := 0; i < len(origPage); i++ {
				origPage[i] = byte(i % 256)
				clonedPage[i] = 0
			}

			if spec.pteFlags != 0 {
				if err := dir.mapPage(PageFromAddress(faultAddr), pmm.FrameFromAddress(faultAddr), spec.pteFlags); err != nil {
					t.Fatal(err)
				}
			} else if _, err := dir.GetPage(faultAddr, true); err != nil {
				t.Fatal(err)
			}

			pageFaultHandler(2, &frame, &regs)
		})
	}
}

func TestNonRecoverablePageFault(t *testing.T) {
	defer func() {
		kfmt.SetOutputSink(nil)
		panicFn = kfmt.Panic
	}()
	panicFn = func(e interface{}) { panic(e) }

	specs := []struct {
		errCode   uint32
		expReason string
	}{
		{0, "read from non-present page"},
		{1, "page protection violation (read)"},
		{2, "write to non-present page"},
		{3, "page protection violation (write)"},
		{4, "page-fault in user-mode"},
		{0xf00, "unknown"},
	}

	var (
		regs  irq.Regs
		frame irq.Frame
		buf   bytes.Buffer
	)

	kfmt.SetOutputSink(&buf)
	for specIndex, spec := range specs {
		t.Run(fmt.Sprint(specIndex), func(t *testing.T) {
			buf.Reset()
			defer func() {
				if err := recover(); err != errUnrecoverableFault {
					t.Errorf("expected a panic with errUnrecoverableFault; got %v", err)
				}
			}()

			nonRecoverablePageFault(0xbadf00d0, spec.errCode, &frame, &regs, errUnrecoverableFault)
			if got := buf.String(); !strings.Contains(got, spec.expReason) {
				t.Errorf("expected reason %q; got output:\n%q", spec.expReason, got)
			}
		})
	}
}

func TestGPFHandler(t *testing.T) {
	defer func() {
		readCR2Fn = cpu.ReadCR2
		panicFn = kfmt.Panic
	}()

	var (
		regs  irq.Regs
		frame irq.Frame
	)

	readCR2Fn = func() uint32 { return 0xbadf00d0 }
	panicFn = func(e interface{}) { panic(e) }

	defer func() {
		if err := recover(); err != errUnrecoverableFault {
			t.Errorf("expected a panic with errUnrecoverableFault; got %v", err)
		}
	}()

	generalProtectionFaultHandler(0, &frame, &regs)
}

func TestInitIdentityMapsRequestedRange(t *testing.T) {
	withHeapBackedTables(t)

	defer func(origDir *PageDirectoryTable) {
		currentDirectory = origDir
		frameAllocator = nil
		switchPDTFn = cpu.SwitchPDT
		enablePagingFn = cpu.EnablePaging
		mapTemporaryFn = MapTemporary
		unmapFn = Unmap
		handleExceptionWithCodeFn = irq.HandleExceptionWithCode
	}(currentDirectory)

	// Back every "physical frame" the identity map asks for with real heap
	// memory so SetFrame/Memset never touch an unmapped address.
	frameBacking := map[pmm.Frame][]byte{}
	var nextFrame uint32
	SetFrameAllocator(func() (pmm.Frame, *kernel.Error) {
		buf := make([]byte, mem.PageSize*2)
		addr := uintptr(unsafe.Pointer(&buf[0]))
		addr = (addr + uintptr(mem.PageSize) - 1) &^ (uintptr(mem.PageSize) - 1)
		f := pmm.FrameFromAddress(addr)
		frameBacking[f] = buf
		nextFrame++
		return f, nil
	})

	switchPDTFn = func(_ uintptr) {}
	enablePagingFn = func() {}
	mapTemporaryFn = func(f pmm.Frame) (Page, *kernel.Error) { return PageFromAddress(f.Address()), nil }
	unmapFn = func(_ Page) *kernel.Error { return nil }
	handleExceptionWithCodeFn = func(_ irq.ExceptionNum, _ irq.ExceptionHandlerWithCode) {}

	// A handful of frames is enough to exercise Init without allocating an
	// unreasonable amount of test heap memory.
	if err := Init(mem.Size(8 * mem.PageSize)); err != nil {
		t.Fatal(err)
	}

	if currentDirectory == nil {
		t.Fatal("expected Init to activate a directory")
	}
}
