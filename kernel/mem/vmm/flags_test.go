package vmm

import (
	"lainkernel/kernel/mem/pmm"
	"testing"
)

func TestPageFlagsReflectsMapping(t *testing.T) {
	withHeapBackedTables(t)
	defer func(orig *PageDirectoryTable) { currentDirectory = orig }(currentDirectory)

	dir, err := NewDirectory()
	if err != nil {
		t.Fatal(err)
	}
	currentDirectory = dir

	addr := uintptr(0x800000)
	if err := dir.mapPage(PageFromAddress(addr), pmm.Frame(7), FlagPresent|FlagUser); err != nil {
		t.Fatal(err)
	}

	flags, err := PageFlags(addr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !((flags&FlagPresent != 0) && (flags&FlagUser != 0)) {
		t.Fatalf("expected Present|User flags; got %v", flags)
	}

	if flags&FlagRW != 0 {
		t.Fatalf("expected RW to be unset")
	}
}

func TestPageFlagsErrorsWithoutATable(t *testing.T) {
	withHeapBackedTables(t)
	defer func(orig *PageDirectoryTable) { currentDirectory = orig }(currentDirectory)

	dir, err := NewDirectory()
	if err != nil {
		t.Fatal(err)
	}
	currentDirectory = dir

	if _, err := PageFlags(0x900000); err != ErrInvalidMapping {
		t.Fatalf("expected ErrInvalidMapping; got %v", err)
	}
}
