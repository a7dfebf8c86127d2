package irdump

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDump() *Dump {
	d := New("add_single_ckernel", "dev", "-avx", "O3")
	d.Trace("pre-opt", "define void @add_single_ckernel() {\n  ret void\n}\n")
	d.Trace("post-opt", "define void @add_single_ckernel() #0 {\n  ret void\n}\n")
	return d
}

func TestIsHashDir(t *testing.T) {
	for name, want := range map[string]bool{
		"0a1b2c3d":  true,
		"DEADBEEF":  true,
		"0a1b2c3":   false,
		"0a1b2c3d0": false,
		"0a1b2c3g":  false,
		".lock":     false,
	} {
		assert.Equal(t, want, isHashDir(name), name)
	}
}

func TestHashDependsOnMetaAndIR(t *testing.T) {
	short, full := sampleDump().Hash()
	assert.Len(t, short, 8)
	assert.Equal(t, full[:8], short)

	_, same := sampleDump().Hash()
	assert.Equal(t, full, same)

	other := New("add_single_ckernel", "dev", "+avx", "O3")
	other.Trace("pre-opt", "define void @add_single_ckernel() {\n  ret void\n}\n")
	other.Trace("post-opt", "define void @add_single_ckernel() #0 {\n  ret void\n}\n")
	_, otherFull := other.Hash()
	assert.NotEqual(t, full, otherFull)
}

func TestWrite(t *testing.T) {
	root := t.TempDir()
	d := sampleDump()
	assert.Equal(t, []string{"pre-opt", "post-opt"}, d.Stages())

	dir, err := Write(root, d)
	require.NoError(t, err)
	short, full := d.Hash()
	assert.Equal(t, filepath.Join(root, short), dir)

	pre, err := os.ReadFile(filepath.Join(dir, "add_single_ckernel.pre-opt.ll"))
	require.NoError(t, err)
	assert.Contains(t, string(pre), "define void @add_single_ckernel()")
	assert.FileExists(t, filepath.Join(dir, "add_single_ckernel.post-opt.ll"))
	stored, err := os.ReadFile(filepath.Join(dir, hashFileName))
	require.NoError(t, err)
	assert.Equal(t, full, string(stored))
	assert.FileExists(t, filepath.Join(root, lockFileName))
}

func TestWriteReusesAndRepairs(t *testing.T) {
	root := t.TempDir()
	d := sampleDump()
	dir, err := Write(root, d)
	require.NoError(t, err)

	// A complete dump is left alone.
	marker := filepath.Join(dir, "keep")
	require.NoError(t, os.WriteFile(marker, nil, 0644))
	again, err := Write(root, d)
	require.NoError(t, err)
	assert.Equal(t, dir, again)
	assert.FileExists(t, marker)

	// A mismatching hash file makes Write start over.
	require.NoError(t, os.WriteFile(filepath.Join(dir, hashFileName), []byte("other"), 0644))
	_, err = Write(root, d)
	require.NoError(t, err)
	assert.NoFileExists(t, marker)
	assert.FileExists(t, filepath.Join(dir, "add_single_ckernel.pre-opt.ll"))
}

func TestCleanupOld(t *testing.T) {
	root := t.TempDir()
	old := time.Now().Add(-30 * 24 * time.Hour)
	names := []string{"00000001", "00000002", "00000003", "00000004"}
	for i, name := range names {
		path := filepath.Join(root, name)
		require.NoError(t, os.Mkdir(path, 0755))
		mtime := old.Add(time.Duration(i) * time.Hour)
		if i == len(names)-1 {
			mtime = time.Now()
		}
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}
	require.NoError(t, os.Mkdir(filepath.Join(root, "not-a-hash"), 0755))

	cleanupOld(root, 2, 7*24*time.Hour)

	assert.NoDirExists(t, filepath.Join(root, "00000001"))
	assert.NoDirExists(t, filepath.Join(root, "00000002"))
	assert.DirExists(t, filepath.Join(root, "00000003"))
	assert.DirExists(t, filepath.Join(root, "00000004"))
	assert.DirExists(t, filepath.Join(root, "not-a-hash"))
}

func TestCleanupOldKeepsRecent(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"00000001", "00000002", "00000003"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, name), 0755))
	}

	cleanupOld(root, 1, time.Hour)

	for _, name := range []string{"00000001", "00000002", "00000003"} {
		assert.DirExists(t, filepath.Join(root, name))
	}
}

func TestDefaultRoot(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG_CACHE_HOME only applies on unix-like systems")
	}
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", "ckernel", "ir"), DefaultRoot())
}
