// Package ckernel specializes blaze element kernels into native entry points.
//
// A kernel is an LLVM function in a template module together with a kernel.Descriptor
// of its arguments. Specialize wraps it into one of two fixed calling conventions,
//
//	void <name>_single_ckernel(void *dst, void **src, void *extra)
//	void <name>_strided_ckernel(void *dst, intptr_t dst_stride, void **src,
//	                            const intptr_t *src_stride, intptr_t count, void *extra)
//
// JIT-compiles it and returns it with a bind routine filling the kernel-data struct
// passed as extra. Strides are in bytes.
package ckernel

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/thiremani/ckernel/compiler"
	"github.com/thiremani/ckernel/irdump"
	"github.com/thiremani/ckernel/kernel"
)

// OpTag tells which calling convention a compiled function has.
type OpTag int

const (
	Single OpTag = iota
	Strided
)

func (t OpTag) String() string {
	switch t {
	case Single:
		return "single"
	case Strided:
		return "strided"
	default:
		return fmt.Sprintf("OpTag(%d)", int(t))
	}
}

// UnboundKernelFunction is a compiled entry point not yet bound to runtime shapes.
// It owns the JIT engine holding the code: Release it, before disposing the LLVM
// context of the template module, once no caller uses Pointer anymore.
type UnboundKernelFunction struct {
	Tag OpTag
	// Name is the symbol of the generated function.
	Name   string
	Layout *kernel.Layout
	Bind   BindFunc

	arity int
	mu    sync.Mutex
	art   *compiler.Artifacts
}

// Pointer returns the entry point, or nil after Release.
func (f *UnboundKernelFunction) Pointer() unsafe.Pointer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.art == nil {
		return nil
	}
	return f.art.Func
}

// NewKernelData allocates a zeroed kernel-data struct for this function.
func (f *UnboundKernelFunction) NewKernelData() *KernelData {
	return NewKernelData(f.Layout)
}

// Release frees the compiled code. It is safe to call more than once.
func (f *UnboundKernelFunction) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.art != nil {
		f.art.Dispose()
		f.art = nil
	}
}

func (f *UnboundKernelFunction) checkCall(tag OpTag, src int, kd *KernelData) (unsafe.Pointer, error) {
	if f.Tag != tag {
		return nil, errors.Errorf("%s: %s function called as %s", f.Name, f.Tag, tag)
	}
	if src != f.arity {
		return nil, errors.Errorf("%s: %d sources, want %d", f.Name, src, f.arity)
	}
	if f.Layout.HasExtents() && kd.Pointer() == nil {
		return nil, errors.Errorf("%s: kernel data required", f.Name)
	}
	if kd != nil && kd.Layout() != f.Layout {
		return nil, errors.Errorf("%s: kernel data was allocated for another kernel", f.Name)
	}
	fn := f.Pointer()
	if fn == nil {
		return nil, errors.Errorf("%s: function was released", f.Name)
	}
	return fn, nil
}

// CallSingle runs a single-form function. src and dst must point to memory the kernel
// may access from C, and kd must have been bound to their shapes.
func (f *UnboundKernelFunction) CallSingle(dst unsafe.Pointer, src []unsafe.Pointer, kd *KernelData) error {
	fn, err := f.checkCall(Single, len(src), kd)
	if err != nil {
		return err
	}
	callSingle(fn, dst, src, kd.Pointer())
	return nil
}

// CallStrided runs a strided-form function over count elements.
func (f *UnboundKernelFunction) CallStrided(dst unsafe.Pointer, dstStride int, src []unsafe.Pointer, srcStrides []int, count int, kd *KernelData) error {
	fn, err := f.checkCall(Strided, len(src), kd)
	if err != nil {
		return err
	}
	if len(srcStrides) != len(src) {
		return errors.Errorf("%s: %d source strides for %d sources", f.Name, len(srcStrides), len(src))
	}
	if count < 0 {
		return errors.Errorf("%s: negative count %d", f.Name, count)
	}
	callStrided(fn, dst, dstStride, src, srcStrides, count, kd.Pointer())
	return nil
}

// Specialize compiles desc in single or strided form with DefaultOptions.
func Specialize(desc *kernel.Descriptor, strided bool) (*UnboundKernelFunction, error) {
	return SpecializeWith(desc, strided, DefaultOptions())
}

// SpecializeWith compiles desc in single or strided form. It fails with one of the
// kernel error types and then leaves nothing allocated. Calls on the same descriptor
// are serialized.
func SpecializeWith(desc *kernel.Descriptor, strided bool, opts Options) (*UnboundKernelFunction, error) {
	if desc == nil {
		return nil, errors.New("specialize: nil descriptor")
	}
	desc.Lock()
	defer desc.Unlock()

	start := time.Now()
	tag := Single
	if strided {
		tag = Strided
	}

	mod, name, err := compiler.Generate(desc, strided)
	if err != nil {
		return nil, errors.WithMessagef(err, "specializing %s (%s)", desc.Name, tag)
	}

	jitOpts := compiler.JITOptions{OptLevel: opts.OptLevel, TargetFeatures: opts.TargetFeatures}
	var dump *irdump.Dump
	if opts.DumpDir != "" {
		dump = irdump.New(name, Version, opts.TargetFeatures, fmt.Sprintf("O%d", opts.OptLevel))
		jitOpts.Trace = dump.Trace
	}
	art, err := compiler.Compile(mod, name, jitOpts)
	if err != nil {
		return nil, errors.WithMessagef(err, "specializing %s (%s)", desc.Name, tag)
	}
	if dump != nil {
		if _, err := irdump.Write(opts.DumpDir, dump); err != nil {
			klog.Warningf("ckernel: dumping IR of %s: %v", name, err)
		}
	}

	f := &UnboundKernelFunction{
		Tag:    tag,
		Name:   name,
		Layout: desc.Layout(),
		Bind:   makeBinder(desc),
		arity:  desc.Arity(),
		art:    art,
	}
	klog.V(1).Infof("ckernel: specialized %s in %s, kernel data %s in %d extent fields",
		name, time.Since(start), humanize.IBytes(uint64(f.Layout.Size())), len(f.Layout.Fields))
	return f, nil
}
