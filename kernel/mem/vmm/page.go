package vmm

import "lainkernel/kernel/mem"

// Page represents a virtual page number. Incrementing a Page by one always
// advances it by exactly mem.PageSize bytes of virtual address space.
type Page uintptr

// Address returns the virtual address this page corresponds to.
func (p Page) Address() uintptr {
	return uintptr(p) << mem.PageShift
}

// PageFromAddress returns the Page that contains the given virtual address.
func PageFromAddress(addr uintptr) Page {
	return Page(addr >> mem.PageShift)
}
