package ckernel

/*
#include <stdint.h>
#include <stdlib.h>

typedef void (*ck_single_fn)(void *dst, void **src, void *extra);
typedef void (*ck_strided_fn)(void *dst, intptr_t dst_stride, void **src,
                              const intptr_t *src_stride, intptr_t count, void *extra);
typedef void (*ck_destructor_fn)(void *self);

static void ck_call_single(void *fn, void *dst, void **src, void *extra) {
	((ck_single_fn)fn)(dst, src, extra);
}

static void ck_call_strided(void *fn, void *dst, intptr_t dst_stride, void **src,
                            const intptr_t *src_stride, intptr_t count, void *extra) {
	((ck_strided_fn)fn)(dst, dst_stride, src, src_stride, count, extra);
}

static void ck_call_destructor(void *fn, void *self) {
	((ck_destructor_fn)fn)(self);
}
*/
import "C"

import "unsafe"

// cPointers copies ptrs into a C array, so generated code never sees Go memory.
// The caller frees the result with C.free. An empty list yields nil.
func cPointers(ptrs []unsafe.Pointer) *unsafe.Pointer {
	if len(ptrs) == 0 {
		return nil
	}
	arr := (*unsafe.Pointer)(C.malloc(C.size_t(len(ptrs)) * C.size_t(unsafe.Sizeof(uintptr(0)))))
	copy(unsafe.Slice(arr, len(ptrs)), ptrs)
	return arr
}

func cStrides(strides []int) *C.intptr_t {
	if len(strides) == 0 {
		return nil
	}
	arr := (*C.intptr_t)(C.malloc(C.size_t(len(strides)) * C.size_t(unsafe.Sizeof(C.intptr_t(0)))))
	s := unsafe.Slice(arr, len(strides))
	for i, v := range strides {
		s[i] = C.intptr_t(v)
	}
	return arr
}

func callSingle(fn, dst unsafe.Pointer, src []unsafe.Pointer, extra unsafe.Pointer) {
	srcs := cPointers(src)
	defer C.free(unsafe.Pointer(srcs))
	C.ck_call_single(fn, dst, srcs, extra)
}

func callStrided(fn, dst unsafe.Pointer, dstStride int, src []unsafe.Pointer, srcStrides []int, count int, extra unsafe.Pointer) {
	srcs := cPointers(src)
	defer C.free(unsafe.Pointer(srcs))
	strides := cStrides(srcStrides)
	defer C.free(unsafe.Pointer(strides))
	C.ck_call_strided(fn, dst, C.intptr_t(dstStride), srcs, strides, C.intptr_t(count), extra)
}

func callDestructor(fn, self unsafe.Pointer) {
	C.ck_call_destructor(fn, self)
}
