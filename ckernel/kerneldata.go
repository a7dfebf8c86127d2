package ckernel

/*
#include <stdlib.h>
*/
import "C"

import (
	"unsafe"

	"github.com/thiremani/ckernel/kernel"
)

// Header is the fixed prefix of every kernel-data struct.
type Header struct {
	// Destructor, if not nil, is a C function void(void *self) called by KernelData.Free.
	Destructor unsafe.Pointer
	// Owner is free for the owner of the struct and never touched by generated code.
	Owner [2]unsafe.Pointer
}

// KernelData is a zeroed kernel-data struct in C memory laid out by a kernel.Layout.
// The generated function reads extents from it; Bind fills them.
type KernelData struct {
	layout *kernel.Layout
	ptr    unsafe.Pointer
}

// NewKernelData allocates a kernel-data struct for l.
func NewKernelData(l *kernel.Layout) *KernelData {
	ptr := C.calloc(1, C.size_t(l.Size()))
	if ptr == nil {
		panic("ckernel: out of memory allocating kernel data")
	}
	return &KernelData{layout: l, ptr: ptr}
}

func (kd *KernelData) Layout() *kernel.Layout { return kd.layout }

// Pointer is the address passed as the extra argument of generated functions.
func (kd *KernelData) Pointer() unsafe.Pointer {
	if kd == nil {
		return nil
	}
	return kd.ptr
}

func (kd *KernelData) Header() *Header {
	return (*Header)(kd.ptr)
}

// Extents returns the extent field reserved for argument arg (the result is argument
// Arity), or nil if arg has none. The slice aliases C memory.
func (kd *KernelData) Extents(arg int) []int {
	f, ok := kd.layout.Field(arg)
	if !ok {
		return nil
	}
	return unsafe.Slice((*int)(unsafe.Add(kd.ptr, f.Slot*kernel.SlotSize)), f.Len)
}

// Free calls the destructor hook, if set, and releases the struct. It is safe to call
// more than once.
func (kd *KernelData) Free() {
	if kd == nil || kd.ptr == nil {
		return
	}
	if d := kd.Header().Destructor; d != nil {
		callDestructor(d, kd.ptr)
	}
	C.free(kd.ptr)
	kd.ptr = nil
}
