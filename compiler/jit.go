package compiler

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"
	"k8s.io/klog/v2"
	"tinygo.org/x/go-llvm"

	"github.com/thiremani/ckernel/kernel"
)

// DefaultTargetFeatures disables AVX on every generated function. Some virtualized hosts
// report AVX without supporting it.
const DefaultTargetFeatures = "-avx"

// Stages reported to JITOptions.Trace.
const (
	StagePreOpt  = "pre-opt"
	StagePostOpt = "post-opt"
)

type JITOptions struct {
	// OptLevel selects the default<O0..O3> pipeline.
	OptLevel int
	// TargetFeatures is stamped as "target-features" on every defined function.
	TargetFeatures string
	// Trace, if set, receives the module IR before and after optimization.
	Trace func(stage, ir string)
}

// Artifacts keeps a JIT-compiled module alive. The engine owns the module.
type Artifacts struct {
	Engine llvm.ExecutionEngine
	Module llvm.Module
	Func   unsafe.Pointer
}

// Dispose releases the engine and with it the module. Func is invalid afterwards.
func (a *Artifacts) Dispose() {
	if a == nil || a.Engine.C == nil {
		return
	}
	a.Engine.Dispose()
	a.Engine = llvm.ExecutionEngine{}
	a.Module = llvm.Module{}
	a.Func = nil
}

var (
	nativeOnce sync.Once
	nativeErr  error
)

func initNative() error {
	nativeOnce.Do(func() {
		llvm.LinkInMCJIT()
		if err := llvm.InitializeNativeTarget(); err != nil {
			nativeErr = errors.Wrap(err, "initializing native target")
			return
		}
		if err := llvm.InitializeNativeAsmPrinter(); err != nil {
			nativeErr = errors.Wrap(err, "initializing native asm printer")
			return
		}
		klog.V(2).Infof("ckernel: host %s, avx=%v avx2=%v fma=%v", llvm.DefaultTargetTriple(),
			cpu.X86.HasAVX, cpu.X86.HasAVX2, cpu.X86.HasFMA)
	})
	return nativeErr
}

func compileErr(name, stage string, err error) error {
	return &kernel.CompilationError{Kernel: name, Stage: stage, Err: err}
}

// Compile optimizes mod and JIT-compiles it, returning the address of fnName.
// Compile takes ownership of mod: on failure it is disposed, on success it belongs to
// the returned Artifacts.
func Compile(mod llvm.Module, fnName string, opts JITOptions) (*Artifacts, error) {
	if err := initNative(); err != nil {
		mod.Dispose()
		return nil, compileErr(fnName, "init", err)
	}
	if opts.OptLevel < 0 || opts.OptLevel > 3 {
		mod.Dispose()
		return nil, compileErr(fnName, "options", errors.Errorf("optimization level %d out of range 0..3", opts.OptLevel))
	}
	if err := llvm.VerifyModule(mod, llvm.ReturnStatusAction); err != nil {
		mod.Dispose()
		return nil, compileErr(fnName, "verify", err)
	}
	if opts.Trace != nil {
		opts.Trace(StagePreOpt, mod.String())
	}

	if err := optimize(mod, opts); err != nil {
		mod.Dispose()
		return nil, compileErr(fnName, "optimize", err)
	}
	if err := llvm.VerifyModule(mod, llvm.ReturnStatusAction); err != nil {
		mod.Dispose()
		return nil, compileErr(fnName, "verify optimized", err)
	}
	if opts.Trace != nil {
		opts.Trace(StagePostOpt, mod.String())
	}

	fn := mod.NamedFunction(fnName)
	if fn.IsNil() {
		mod.Dispose()
		return nil, compileErr(fnName, "lookup", errors.Errorf("function %q not in module", fnName))
	}
	ee, err := llvm.NewMCJITCompiler(mod, llvm.NewMCJITCompilerOptions())
	if err != nil {
		mod.Dispose()
		return nil, compileErr(fnName, "jit", err)
	}
	ptr := ee.PointerToGlobal(fn)
	if ptr == nil {
		ee.Dispose()
		return nil, compileErr(fnName, "jit", errors.Errorf("no address for %q", fnName))
	}
	return &Artifacts{Engine: ee, Module: mod, Func: ptr}, nil
}

// optimize retargets mod to the host and runs the default pipeline with loop and SLP
// vectorization enabled.
func optimize(mod llvm.Module, opts JITOptions) error {
	triple := llvm.DefaultTargetTriple()
	target, err := llvm.GetTargetFromTriple(triple)
	if err != nil {
		return errors.Wrapf(err, "target for %s", triple)
	}
	tm := target.CreateTargetMachine(triple, "", opts.TargetFeatures,
		llvm.CodeGenLevelAggressive, llvm.RelocDefault, llvm.CodeModelJITDefault)
	defer tm.Dispose()
	td := tm.CreateTargetData()
	defer td.Dispose()

	mod.SetTarget(triple)
	mod.SetDataLayout(td.String())
	setTargetFeatures(mod, opts.TargetFeatures)

	pbo := llvm.NewPassBuilderOptions()
	defer pbo.Dispose()
	pbo.SetLoopVectorization(true)
	pbo.SetSLPVectorization(true)

	passes := fmt.Sprintf("default<O%d>", opts.OptLevel)
	klog.V(2).Infof("ckernel: running %s for %s", passes, triple)
	return mod.RunPasses(passes, tm, pbo)
}

// setTargetFeatures stamps every function defined in mod. Declarations are left alone.
func setTargetFeatures(mod llvm.Module, features string) {
	features = strings.TrimSpace(features)
	if features == "" {
		return
	}
	ctx := mod.Context()
	for fn := mod.FirstFunction(); !fn.IsNil(); fn = llvm.NextFunction(fn) {
		if fn.IsDeclaration() {
			continue
		}
		fn.AddFunctionAttr(ctx.CreateStringAttribute("target-features", features))
	}
}
