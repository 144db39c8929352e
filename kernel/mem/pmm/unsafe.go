package pmm

import (
	"reflect"
	"unsafe"
)

// sliceAt returns a []byte view over size bytes of memory starting at addr.
// Used to turn the early-allocated backing storage for the frame bitmap
// into a normal Go slice without involving the heap allocator, which does
// not exist yet at the point the bitmap is created.
func sliceAt(addr uintptr, size uintptr) []byte {
	return *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: addr,
	}))
}
