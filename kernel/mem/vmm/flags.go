package vmm

import "lainkernel/kernel"

// PageFlags returns the flags on the page table entry currently mapping
// virtAddr, or ErrInvalidMapping if no page table covers it. Unlike
// Translate/pteForAddress it does not require FlagPresent to be set, since
// callers such as the user-pointer validator need to distinguish "no
// mapping at all" from "mapped but not present/not user-accessible".
func PageFlags(virtAddr uintptr) (PageTableEntryFlag, *kernel.Error) {
	pte, err := currentDirectory.GetPage(virtAddr, false)
	if err != nil {
		return 0, err
	}

	return PageTableEntryFlag(*pte) & (FlagPresent | FlagRW | FlagUser | FlagCopyOnWrite | FlagNoExecute), nil
}
