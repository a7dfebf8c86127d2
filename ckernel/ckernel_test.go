package ckernel

import (
	"path/filepath"
	"sync"
	"testing"
	"unsafe"

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/go-llvm"

	"github.com/thiremani/ckernel/compiler"
	"github.com/thiremani/ckernel/kernel"
	"github.com/thiremani/ckernel/kernel/kerneltest"
	"github.com/thiremani/ckernel/types"
)

func testOptions() Options {
	return Options{OptLevel: 2, TargetFeatures: compiler.DefaultTargetFeatures}
}

func cArray(elem types.Type) kernel.Array {
	return kernel.Array{Layout: kernel.CContiguous, Elem: elem}
}

func addDesc(mod llvm.Module) *kernel.Descriptor {
	return must.M1(kernel.New(kernel.Spec{
		Name:       "add",
		Module:     mod,
		Native:     "add",
		Kinds:      []kernel.Kind{kernel.Scalar{}, kernel.Scalar{}, kernel.Scalar{}},
		Shapes:     []kernel.Shape{nil, nil, nil},
		ArgTypes:   []types.Type{types.F64, types.F64},
		ReturnType: types.F64,
	}))
}

func scaleDesc(mod llvm.Module) *kernel.Descriptor {
	return must.M1(kernel.New(kernel.Spec{
		Name:       "scale_i32",
		Module:     mod,
		Native:     "scale_i32",
		Kinds:      []kernel.Kind{kernel.Scalar{}, kernel.Scalar{}, kernel.Scalar{}},
		Shapes:     []kernel.Shape{nil, nil, nil},
		ArgTypes:   []types.Type{types.I32, types.I32},
		ReturnType: types.I32,
	}))
}

func derefMulDesc(mod llvm.Module) *kernel.Descriptor {
	return must.M1(kernel.New(kernel.Spec{
		Name:       "deref_mul",
		Module:     mod,
		Native:     "deref_mul",
		Kinds:      []kernel.Kind{kernel.Pointer{}, kernel.Scalar{}, kernel.Scalar{}},
		Shapes:     []kernel.Shape{nil, nil, nil},
		ArgTypes:   []types.Type{types.F64, types.F64},
		ReturnType: types.F64,
	}))
}

func headPlusLenDesc(mod llvm.Module) *kernel.Descriptor {
	return must.M1(kernel.New(kernel.Spec{
		Name:       "head_plus_len",
		Module:     mod,
		Native:     "head_plus_len",
		Kinds:      []kernel.Kind{cArray(types.F64), kernel.Pointer{}, cArray(types.F64)},
		Shapes:     []kernel.Shape{{kernel.Variable{Tag: "n"}}, nil, {kernel.Fixed{Extent: 1}}},
		ArgTypes:   []types.Type{types.F64, types.I64},
		ReturnType: types.F64,
	}))
}

func rowSumsDesc(mod llvm.Module) *kernel.Descriptor {
	return must.M1(kernel.New(kernel.Spec{
		Name:       "row_sums",
		Module:     mod,
		Native:     "row_sums",
		Kinds:      []kernel.Kind{cArray(types.F64), cArray(types.F64)},
		Shapes:     []kernel.Shape{{kernel.Variable{Tag: "n"}, kernel.Fixed{Extent: 3}}, {kernel.Variable{Tag: "n"}}},
		ArgTypes:   []types.Type{types.F64},
		ReturnType: types.F64,
	}))
}

func specialize(t *testing.T, desc *kernel.Descriptor, strided bool) *UnboundKernelFunction {
	t.Helper()
	fn, err := SpecializeWith(desc, strided, testOptions())
	require.NoError(t, err)
	t.Cleanup(fn.Release)
	return fn
}

func newBuffer(t *testing.T, size int) *Buffer {
	t.Helper()
	b := must.M1(NewBuffer(size))
	t.Cleanup(b.Free)
	return b
}

func float64Buffer(t *testing.T, values ...float64) *Buffer {
	t.Helper()
	b := newBuffer(t, 8*len(values))
	copy(b.Float64s(), values)
	return b
}

func pointers(bufs ...*Buffer) []unsafe.Pointer {
	ptrs := make([]unsafe.Pointer, len(bufs))
	for i, b := range bufs {
		if b != nil {
			ptrs[i] = b.Pointer()
		}
	}
	return ptrs
}

func TestSpecializeSingleScalar(t *testing.T) {
	fn := specialize(t, addDesc(kerneltest.Module(t)), false)
	assert.Equal(t, Single, fn.Tag)
	assert.Equal(t, "add_single_ckernel", fn.Name)
	require.NotNil(t, fn.Pointer())

	a, b := float64Buffer(t, 1.5), float64Buffer(t, 2.25)
	out := newBuffer(t, 8)
	require.NoError(t, fn.Bind(nil, nil, nil))
	require.NoError(t, fn.CallSingle(out.Pointer(), pointers(a, b), nil))
	assert.Equal(t, 3.75, out.Float64s()[0])
}

func TestSpecializeDefaultOptions(t *testing.T) {
	t.Setenv(EnvOptLevel, "")
	t.Setenv(EnvDumpDir, "")
	fn, err := Specialize(addDesc(kerneltest.Module(t)), true)
	require.NoError(t, err)
	defer fn.Release()
	assert.Equal(t, Strided, fn.Tag)
	assert.Equal(t, "add_strided_ckernel", fn.Name)
}

func TestStridedMatchesRepeatedSingle(t *testing.T) {
	desc := addDesc(kerneltest.Module(t))
	single := specialize(t, desc, false)
	strided := specialize(t, desc, true)

	a := float64Buffer(t, 1, 2, 3, 4, 5)
	b := float64Buffer(t, 0.5, 0.25, 0.125, 0.0625, 0.03125)
	want := newBuffer(t, 5*8)
	got := newBuffer(t, 5*8)

	for i := 0; i < 5; i++ {
		src := []unsafe.Pointer{a.At(8 * i), b.At(8 * i)}
		require.NoError(t, single.CallSingle(want.At(8*i), src, nil))
	}
	require.NoError(t, strided.CallStrided(got.Pointer(), 8, pointers(a, b), []int{8, 8}, 5, nil))

	assert.Equal(t, want.Float64s(), got.Float64s())
	assert.Equal(t, []float64{1.5, 2.25, 3.125, 4.0625, 5.03125}, got.Float64s())
}

func TestStridedBroadcastAndReverse(t *testing.T) {
	fn := specialize(t, scaleDesc(kerneltest.Module(t)), true)

	x := newBuffer(t, 4*4)
	copy(x.Int32s(), []int32{1, 2, 3, 4})
	k := newBuffer(t, 4)
	k.Int32s()[0] = -3
	out := newBuffer(t, 4*4)

	// Stride 0 repeats k; a negative destination stride fills out back to front.
	require.NoError(t, fn.CallStrided(out.At(12), -4, pointers(x, k), []int{4, 0}, 4, nil))
	assert.Equal(t, []int32{-12, -9, -6, -3}, out.Int32s())
}

func TestStridedZeroCount(t *testing.T) {
	fn := specialize(t, addDesc(kerneltest.Module(t)), true)
	out := float64Buffer(t, 42)

	require.NoError(t, fn.CallStrided(out.Pointer(), 8, []unsafe.Pointer{nil, nil}, []int{8, 8}, 0, nil))
	assert.Equal(t, 42.0, out.Float64s()[0])
}

func TestPointerArgument(t *testing.T) {
	fn := specialize(t, derefMulDesc(kerneltest.Module(t)), true)
	p := float64Buffer(t, 10, 20, 30)
	x := float64Buffer(t, 2)
	out := newBuffer(t, 3*8)

	require.NoError(t, fn.CallStrided(out.Pointer(), 8, pointers(p, x), []int{8, 0}, 3, nil))
	assert.Equal(t, []float64{20, 40, 60}, out.Float64s())
}

func TestVariableExtentFromKernelData(t *testing.T) {
	fn := specialize(t, headPlusLenDesc(kerneltest.Module(t)), true)
	require.True(t, fn.Layout.HasExtents())
	require.Len(t, fn.Layout.Fields, 1)

	kd := fn.NewKernelData()
	defer kd.Free()
	require.NoError(t, fn.Bind(kd, nil, []ShapeSource{Shape{5}, nil}))
	assert.Equal(t, []int{5}, kd.Extents(0))
	assert.Nil(t, kd.Extents(2))

	in := float64Buffer(t, 0, 1, 2, 3, 4)
	calls := newBuffer(t, 8)
	out := newBuffer(t, 5*8)
	require.NoError(t, fn.CallStrided(out.Pointer(), 8, pointers(in, calls), []int{8, 0}, 5, kd))

	assert.Equal(t, []float64{5, 6, 7, 8, 9}, out.Float64s())
	assert.Equal(t, int64(5), calls.Int64s()[0])
}

func rowSumsReference(in []float64, rows, cols int) []float64 {
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		acc := 0.0
		for j := 0; j < cols; j++ {
			acc += in[i*cols+j]
		}
		out[i] = acc
	}
	return out
}

func TestArrayKernelMatchesReference(t *testing.T) {
	desc := rowSumsDesc(kerneltest.Module(t))
	values := []float64{0.1, 0.2, 0.3, 1e16, 1, -1e16, 3.5, -2.25, 0.7, 1.0 / 3, 2.0 / 3, 1e-17}

	t.Run("single", func(t *testing.T) {
		fn := specialize(t, desc, false)
		kd := fn.NewKernelData()
		defer kd.Free()
		require.NoError(t, fn.Bind(kd, Shape{4}, []ShapeSource{Shape{4, 3}}))
		assert.Equal(t, []int{4, 3}, kd.Extents(0))
		assert.Equal(t, []int{4}, kd.Extents(1))

		in := float64Buffer(t, values...)
		out := newBuffer(t, 4*8)
		require.NoError(t, fn.CallSingle(out.Pointer(), pointers(in), kd))
		assert.Equal(t, rowSumsReference(values, 4, 3), out.Float64s())
	})

	t.Run("strided", func(t *testing.T) {
		fn := specialize(t, desc, true)
		kd := fn.NewKernelData()
		defer kd.Free()
		// Two elements of (2, 3) each; the leading dimension is the loop's.
		require.NoError(t, fn.Bind(kd, Shape{2, 2}, []ShapeSource{Shape{2, 2, 3}}))
		assert.Equal(t, []int{2, 3}, kd.Extents(0))
		assert.Equal(t, []int{2}, kd.Extents(1))

		in := float64Buffer(t, values...)
		out := newBuffer(t, 4*8)
		require.NoError(t, fn.CallStrided(out.Pointer(), 2*8, pointers(in), []int{6 * 8}, 2, kd))
		assert.Equal(t, rowSumsReference(values, 4, 3), out.Float64s())
	})
}

func TestBindErrors(t *testing.T) {
	desc := rowSumsDesc(kerneltest.Module(t))
	fn := specialize(t, desc, false)
	other := specialize(t, headPlusLenDesc(desc.Module), false)

	kd := fn.NewKernelData()
	defer kd.Free()
	require.NoError(t, fn.Bind(kd, Shape{7}, []ShapeSource{Shape{7, 3}}))

	foreign := other.NewKernelData()
	defer foreign.Free()

	for _, tc := range []struct {
		name string
		kd   *KernelData
		dst  ShapeSource
		src  []ShapeSource
	}{
		{"nil kernel data", nil, Shape{2}, []ShapeSource{Shape{2, 3}}},
		{"foreign kernel data", foreign, Shape{2}, []ShapeSource{Shape{2, 3}}},
		{"source count", kd, Shape{2}, nil},
		{"missing shape", kd, nil, []ShapeSource{Shape{2, 3}}},
		{"rank too small", kd, Shape{2}, []ShapeSource{Shape{3}}},
		{"fixed extent mismatch", kd, Shape{2}, []ShapeSource{Shape{2, 4}}},
		{"negative extent", kd, Shape{-2}, []ShapeSource{Shape{2, 3}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, fn.Bind(tc.kd, tc.dst, tc.src))
			// A failed bind writes nothing.
			assert.Equal(t, []int{7, 3}, kd.Extents(0))
			assert.Equal(t, []int{7}, kd.Extents(1))
		})
	}
}

func TestNoopBinder(t *testing.T) {
	fn := specialize(t, addDesc(kerneltest.Module(t)), true)
	assert.False(t, fn.Layout.HasExtents())

	kd := fn.NewKernelData()
	defer kd.Free()
	before := append([]byte(nil), unsafe.Slice((*byte)(kd.Pointer()), fn.Layout.Size())...)
	require.NoError(t, fn.Bind(kd, Shape{1, 2, 3}, []ShapeSource{Shape{9}}))
	require.NoError(t, fn.Bind(nil, nil, nil))
	assert.Equal(t, before, unsafe.Slice((*byte)(kd.Pointer()), fn.Layout.Size()))
}

func TestSpecializeErrors(t *testing.T) {
	desc := addDesc(kerneltest.Module(t))
	opts := testOptions()
	opts.OptLevel = 7
	fn, err := SpecializeWith(desc, false, opts)
	assert.Nil(t, fn)
	var ce *kernel.CompilationError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "options", ce.Stage)

	_, err = SpecializeWith(nil, false, testOptions())
	assert.Error(t, err)

	// The descriptor is still usable after a failure.
	specialize(t, desc, false)
}

func TestCallChecks(t *testing.T) {
	mod := kerneltest.Module(t)
	fn := specialize(t, addDesc(mod), false)
	out := newBuffer(t, 8)
	a, b := float64Buffer(t, 1), float64Buffer(t, 2)

	assert.Error(t, fn.CallStrided(out.Pointer(), 8, pointers(a, b), []int{8, 8}, 1, nil))
	assert.Error(t, fn.CallSingle(out.Pointer(), pointers(a), nil))

	rows := specialize(t, rowSumsDesc(mod), true)
	in := newBuffer(t, 3*8)
	assert.Error(t, rows.CallStrided(out.Pointer(), 8, pointers(in), []int{24}, 1, nil))
	kd := rows.NewKernelData()
	defer kd.Free()
	assert.Error(t, rows.CallStrided(out.Pointer(), 8, pointers(in), nil, 1, kd))
}

func TestReleaseIsIndependent(t *testing.T) {
	desc := addDesc(kerneltest.Module(t))
	first := specialize(t, desc, false)
	second := specialize(t, desc, false)
	assert.NotEqual(t, first.Pointer(), second.Pointer())

	first.Release()
	first.Release()
	assert.Nil(t, first.Pointer())

	a, b := float64Buffer(t, 2), float64Buffer(t, 3)
	out := newBuffer(t, 8)
	assert.Error(t, first.CallSingle(out.Pointer(), pointers(a, b), nil))
	require.NoError(t, second.CallSingle(out.Pointer(), pointers(a, b), nil))
	assert.Equal(t, 5.0, out.Float64s()[0])
}

func TestConcurrentSpecialize(t *testing.T) {
	desc := addDesc(kerneltest.Module(t))
	const n = 4
	fns := make([]*UnboundKernelFunction, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fns[i], errs[i] = SpecializeWith(desc, i%2 == 1, testOptions())
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		t.Cleanup(fns[i].Release)
		assert.NotNil(t, fns[i].Pointer())
	}
}

const destructorIR = `
; *(i64 *)self->owner[0] = 1
define void @mark_destroyed(ptr %self) {
entry:
  %slot = getelementptr inbounds ptr, ptr %self, i64 1
  %flag = load ptr, ptr %slot
  store i64 1, ptr %flag
  ret void
}
`

func TestKernelDataDestructor(t *testing.T) {
	ctx := kerneltest.NewContext(t)
	art, err := compiler.Compile(kerneltest.ParseModule(t, ctx, destructorIR), "mark_destroyed", compiler.JITOptions{})
	require.NoError(t, err)
	t.Cleanup(art.Dispose)

	l := must.M1(kernel.BuildLayout([]kernel.Kind{kernel.Scalar{}}, []kernel.Shape{nil}))
	kd := NewKernelData(l)
	assert.Equal(t, l.HeaderSize(), l.Size())
	flag := newBuffer(t, 8)
	kd.Header().Owner[0] = flag.Pointer()
	kd.Header().Destructor = art.Func

	kd.Free()
	assert.Nil(t, kd.Pointer())
	assert.Equal(t, int64(1), flag.Int64s()[0])
	kd.Free()
}

func TestSpecializeDumpsIR(t *testing.T) {
	opts := testOptions()
	opts.DumpDir = t.TempDir()
	fn, err := SpecializeWith(addDesc(kerneltest.Module(t)), false, opts)
	require.NoError(t, err)
	defer fn.Release()

	for _, stage := range []string{compiler.StagePreOpt, compiler.StagePostOpt} {
		matches, err := filepath.Glob(filepath.Join(opts.DumpDir, "*", "add_single_ckernel."+stage+".ll"))
		require.NoError(t, err)
		assert.Len(t, matches, 1, stage)
	}
}
