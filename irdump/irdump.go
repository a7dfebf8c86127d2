// Package irdump writes the IR of specialized kernels to a cache directory, one
// hash-named directory per distinct kernel and configuration:
//
//	<root>/<hash8>/<name>.pre-opt.ll
//	<root>/<hash8>/<name>.post-opt.ll
//	<root>/<hash8>/.hash
//
// Concurrent processes sharing root are serialized by a file lock on <root>/.lock.
package irdump

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	hashFileName = ".hash"
	lockFileName = ".lock"

	// Keep this many dump directories, and only remove older ones after MinAge.
	Keep   = 20
	MinAge = 7 * 24 * time.Hour
)

// DefaultRoot is the per-user cache location for dumps.
func DefaultRoot() string {
	return filepath.Join(userCacheDir(), "ckernel", "ir")
}

func userCacheDir() string {
	homeDir, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LocalAppData"); localAppData != "" {
			return localAppData
		}
		return filepath.Join(homeDir, "AppData", "Local")
	case "darwin":
		return filepath.Join(homeDir, "Library", "Caches")
	default:
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return xdg
		}
		return filepath.Join(homeDir, ".cache")
	}
}

type stage struct {
	name, ir string
}

// Dump collects the IR of one specialization. Its Trace method plugs into
// compiler.JITOptions.Trace.
type Dump struct {
	Name string
	// Meta lists the settings that affect the generated code (version, features, ...).
	Meta   []string
	stages []stage
}

func New(name string, meta ...string) *Dump {
	return &Dump{Name: name, Meta: meta}
}

// Trace records ir for the given stage.
func (d *Dump) Trace(stageName, ir string) {
	d.stages = append(d.stages, stage{stageName, ir})
}

// Stages returns the recorded stage names in order.
func (d *Dump) Stages() []string {
	names := make([]string, len(d.stages))
	for i, s := range d.stages {
		names[i] = s.name
	}
	return names
}

// Hash returns the directory name (first 8 hex digits) and the full hash.
func (d *Dump) Hash() (shortHash, fullHash string) {
	h := sha256.New()
	for _, m := range d.Meta {
		h.Write([]byte(m))
		h.Write([]byte{0})
	}
	h.Write([]byte(d.Name))
	h.Write([]byte{0})
	for _, s := range d.stages {
		h.Write([]byte(s.name))
		h.Write([]byte{0})
		h.Write([]byte(s.ir))
		h.Write([]byte{0})
	}
	fullHash = hex.EncodeToString(h.Sum(nil))
	return fullHash[:8], fullHash
}

// isHashDir returns true if name is an 8-char hex string (matches the short hash format).
func isHashDir(name string) bool {
	if len(name) != 8 {
		return false
	}
	_, err := hex.DecodeString(name)
	return err == nil
}

// Write stores d under root and returns its directory. A directory already holding
// the same full hash is reused as is.
func Write(root string, d *Dump) (string, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", errors.Wrap(err, "create dump root")
	}

	lock := flock.New(filepath.Join(root, lockFileName))
	if err := lock.Lock(); err != nil {
		return "", errors.Wrap(err, "acquire dump lock")
	}
	defer lock.Unlock()

	shortHash, fullHash := d.Hash()
	dir := filepath.Join(root, shortHash)
	hashFile := filepath.Join(dir, hashFileName)

	if stored, err := os.ReadFile(hashFile); err == nil {
		if string(stored) == fullHash {
			klog.V(2).Infof("ckernel: IR of %s already dumped in %s", d.Name, dir)
			return dir, nil
		}
		// Hash prefix collision or a partial dump: start over.
		klog.V(1).Infof("ckernel: dump hash mismatch, rewriting %s", dir)
		if err := os.RemoveAll(dir); err != nil {
			return "", errors.Wrapf(err, "remove stale dump %s", dir)
		}
	}

	cleanupOld(root, Keep, MinAge)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "create dump dir")
	}
	for _, s := range d.stages {
		path := filepath.Join(dir, d.Name+"."+s.name+".ll")
		if err := os.WriteFile(path, []byte(s.ir), 0644); err != nil {
			return "", errors.Wrapf(err, "write %s", path)
		}
	}
	// The hash file is written last and marks the dump complete.
	if err := os.WriteFile(hashFile, []byte(fullHash), 0644); err != nil {
		return "", errors.Wrap(err, "write hash file")
	}
	klog.V(1).Infof("ckernel: dumped IR of %s to %s", d.Name, dir)
	return dir, nil
}

// cleanupOld removes old dump directories.
// Only deletes directories older than minAge AND keeps at least 'keep' most recent.
func cleanupOld(root string, keep int, minAge time.Duration) {
	entries, err := os.ReadDir(root)
	if err != nil || len(entries) <= keep {
		return
	}

	type dirInfo struct {
		name  string
		mtime time.Time
	}
	var dirs []dirInfo
	for _, e := range entries {
		if e.IsDir() && isHashDir(e.Name()) {
			if info, err := e.Info(); err == nil {
				dirs = append(dirs, dirInfo{e.Name(), info.ModTime()})
			}
		}
	}
	if len(dirs) <= keep {
		return
	}

	// Oldest first.
	cutoff := time.Now().Add(-minAge)
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].mtime.Before(dirs[j].mtime) })
	for i := 0; i < len(dirs)-keep; i++ {
		if dirs[i].mtime.Before(cutoff) {
			path := filepath.Join(root, dirs[i].name)
			if err := os.RemoveAll(path); err != nil {
				klog.Warningf("ckernel: failed to remove old dump %s: %v", path, err)
			}
		}
	}
}
