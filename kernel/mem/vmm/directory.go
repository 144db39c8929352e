package vmm

import (
	"lainkernel/kernel"
	"lainkernel/kernel/cpu"
	"lainkernel/kernel/mem"
	"lainkernel/kernel/mem/pmm"
	"unsafe"
)

const entriesPerTable = 1024

// table is a single 4KiB page table: 1024 entries, one per mapped 4KiB page.
type table [entriesPerTable]pageTableEntry

// PageDirectoryTable is the classic two-level x86-32 page directory. tables
// holds Go-visible pointers so package code can read and write entries
// directly; tablesPhysical is the exact array the MMU walks on every memory
// access (each populated entry is a frame address ORed with its
// present/writable/user bits). The two must always agree: tablesPhysical is
// what hardware sees, tables is how this package reaches the same memory.
//
// tablesPhysical lives in its own page-aligned allocation (obtained via the
// active frame allocator) rather than as a field of this struct, since it
// must be exactly one page in size and is what CR3 ultimately points to.
type PageDirectoryTable struct {
	tables         [entriesPerTable]*table
	tablesPhysical *[entriesPerTable]uint32
}

var (
	errTableAllocFailed = &kernel.Error{Module: "vmm", Message: "unable to allocate a page table"}

	// switchPDTFn is mocked by tests.
	switchPDTFn = cpu.SwitchPDT

	// frameForTableFn is used by tests to back page tables with ordinary Go
	// heap memory instead of a physical frame allocator, so tests never need
	// to dereference raw physical addresses. When compiling the kernel this
	// is left pointing at frameForTable and is automatically inlined.
	frameForTableFn = frameForTable
)

// NewDirectory allocates and zeroes the backing page for a fresh, empty
// page directory.
func NewDirectory() (*PageDirectoryTable, *kernel.Error) {
	storageAddr, err := frameForTableFn()
	if err != nil {
		return nil, err
	}

	return &PageDirectoryTable{
		tablesPhysical: (*[entriesPerTable]uint32)(unsafe.Pointer(storageAddr)),
	}, nil
}

// frameForTable allocates a zeroed page-sized, page-aligned block of memory
// suitable for backing a page table or directory. The returned address is
// always identity-mapped: Init identity-maps the entirety of physical
// memory, so a frame's physical address doubles as a valid virtual pointer
// for as long as this kernel runs, whether the frame came from the early
// bump allocator (pre-paging) or the late bitmap allocator (post-paging).
func frameForTable() (uintptr, *kernel.Error) {
	frame, err := frameAllocator()
	if err != nil {
		return 0, err
	}

	addr := frame.Address()
	mem.Memset(addr, 0, uintptr(mem.PageSize))
	return addr, nil
}

// PhysAddr returns the physical address that CR3 must hold to activate this
// directory.
func (pdt *PageDirectoryTable) PhysAddr() uintptr {
	return uintptr(unsafe.Pointer(pdt.tablesPhysical))
}

// Activate loads this directory into CR3 and makes it the directory that
// GetPage/Map/Unmap/Translate operate against.
func (pdt *PageDirectoryTable) Activate() {
	switchPDTFn(pdt.PhysAddr())
	currentDirectory = pdt
}

// GetPage returns the page table entry for the given virtual address,
// allocating a new page table for it if one does not already exist and
// create is true. It returns ErrInvalidMapping if create is false and no
// page table covers the address yet.
func (pdt *PageDirectoryTable) GetPage(virtAddr uintptr, create bool) (*pageTableEntry, *kernel.Error) {
	pageIndex := virtAddr >> mem.PageShift
	tableIdx := (pageIndex / entriesPerTable) % entriesPerTable
	entryIdx := pageIndex % entriesPerTable

	if pdt.tables[tableIdx] == nil {
		if !create {
			return nil, ErrInvalidMapping
		}

		tableAddr, err := frameForTableFn()
		if err != nil {
			return nil, errTableAllocFailed
		}

		pdt.tables[tableIdx] = (*table)(unsafe.Pointer(tableAddr))
		pdt.tablesPhysical[tableIdx] = uint32(tableAddr) | uint32(FlagPresent|FlagRW)
	}

	return &pdt.tables[tableIdx][entryIdx], nil
}

// currentDirectory is the directory package-level Map/Unmap/Translate
// operate against; Init sets it to the kernel directory it builds.
var currentDirectory *PageDirectoryTable

// ActiveDirectory returns the page directory currently installed in CR3.
// Callers that need to hand a process a concrete address space (kernel/proc
// clones the kernel directory for every process, per this core's
// single-address-space design) use this instead of reaching into package
// internals.
func ActiveDirectory() *PageDirectoryTable {
	return currentDirectory
}

// mapPage installs frame, with the given flags, as the mapping for page in
// this directory, allocating a page table for it if necessary.
func (pdt *PageDirectoryTable) mapPage(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	pte, err := pdt.GetPage(page.Address(), true)
	if err != nil {
		return err
	}

	*pte = 0
	pte.SetFrame(frame)
	pte.SetFlags(flags)
	return nil
}
