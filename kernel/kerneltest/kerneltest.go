// Package kerneltest holds native kernels written as LLVM IR and helpers to load them,
// for tests of the packages that specialize kernels.
//
// The IR assumes a 64-bit host: array views are { ptr, [rank x i64] }.
package kerneltest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"tinygo.org/x/go-llvm"
)

// Kernels is a module holding every sample kernel.
const Kernels = `
; result = a + b
define double @add(double %a, double %b) {
entry:
  %r = fadd double %a, %b
  ret double %r
}

; result = x * k
define i32 @scale_i32(i32 %x, i32 %k) {
entry:
  %r = mul i32 %x, %k
  ret i32 %r
}

; result = *p * x, p is passed through as a pointer
define double @deref_mul(ptr %p, double %x) {
entry:
  %v = load double, ptr %p
  %r = fmul double %v, %x
  ret double %r
}

; out[0] = in[0] + len(in); *calls += 1
define void @head_plus_len(ptr %in, ptr %calls, ptr %out) {
entry:
  %in.data.p = getelementptr inbounds { ptr, [1 x i64] }, ptr %in, i32 0, i32 0
  %in.data = load ptr, ptr %in.data.p
  %n.p = getelementptr inbounds { ptr, [1 x i64] }, ptr %in, i32 0, i32 1, i64 0
  %n = load i64, ptr %n.p
  %x = load double, ptr %in.data
  %nf = sitofp i64 %n to double
  %y = fadd double %x, %nf
  %out.data.p = getelementptr inbounds { ptr, [1 x i64] }, ptr %out, i32 0, i32 0
  %out.data = load ptr, ptr %out.data.p
  store double %y, ptr %out.data
  %c = load i64, ptr %calls
  %c1 = add i64 %c, 1
  store i64 %c1, ptr %calls
  ret void
}

; out[i] = sum_j in[i][j] for an (rows, cols) input
define void @row_sums(ptr %in, ptr %out) {
entry:
  %src.p = getelementptr inbounds { ptr, [2 x i64] }, ptr %in, i32 0, i32 0
  %src = load ptr, ptr %src.p
  %rows.p = getelementptr inbounds { ptr, [2 x i64] }, ptr %in, i32 0, i32 1, i64 0
  %rows = load i64, ptr %rows.p
  %cols.p = getelementptr inbounds { ptr, [2 x i64] }, ptr %in, i32 0, i32 1, i64 1
  %cols = load i64, ptr %cols.p
  %dst.p = getelementptr inbounds { ptr, [1 x i64] }, ptr %out, i32 0, i32 0
  %dst = load ptr, ptr %dst.p
  br label %row.cond

row.cond:
  %i = phi i64 [ 0, %entry ], [ %i.next, %row.end ]
  %row.done = icmp eq i64 %i, %rows
  br i1 %row.done, label %exit, label %col.cond

col.cond:
  %j = phi i64 [ 0, %row.cond ], [ %j.next, %col.body ]
  %acc = phi double [ 0.0, %row.cond ], [ %acc.next, %col.body ]
  %col.done = icmp eq i64 %j, %cols
  br i1 %col.done, label %row.end, label %col.body

col.body:
  %base = mul i64 %i, %cols
  %idx = add i64 %base, %j
  %ep = getelementptr inbounds double, ptr %src, i64 %idx
  %e = load double, ptr %ep
  %acc.next = fadd double %acc, %e
  %j.next = add i64 %j, 1
  br label %col.cond

row.end:
  %op = getelementptr inbounds double, ptr %dst, i64 %i
  store double %acc, ptr %op
  %i.next = add i64 %i, 1
  br label %row.cond

exit:
  ret void
}
`

// ParseModule parses LLVM IR text into a new module of ctx.
func ParseModule(tb testing.TB, ctx llvm.Context, src string) llvm.Module {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "kernels.ll")
	require.NoError(tb, os.WriteFile(path, []byte(src), 0o644))
	buf, err := llvm.NewMemoryBufferFromFile(path)
	require.NoError(tb, err)
	mod, err := ctx.ParseIR(buf)
	require.NoError(tb, err)
	return mod
}

// NewContext returns a fresh LLVM context disposed when the test ends. Cleanups
// registered later (engines, modules) run before it.
func NewContext(tb testing.TB) llvm.Context {
	tb.Helper()
	ctx := llvm.NewContext()
	tb.Cleanup(ctx.Dispose)
	return ctx
}

// Module returns a module holding Kernels in a fresh context.
func Module(tb testing.TB) llvm.Module {
	tb.Helper()
	return ParseModule(tb, NewContext(tb), Kernels)
}
