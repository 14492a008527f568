package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("injected fault")

// Fault describes a failure injected for paths containing a pattern.
type Fault struct {
	FailOpen   bool // OpenFile fails.
	FailWrite  bool // Write fails.
	FailSync   bool // Sync fails.
	FailRename bool // Rename with a matching target fails.
	// Times limits how often the fault fires. Zero means always.
	Times int
	Err   error
}

type rule struct {
	pattern string
	fault   Fault
	fired   int
}

// FaultyFS is a FileSystem wrapper that injects errors for matching paths.
type FaultyFS struct {
	FS FileSystem

	mu    sync.Mutex
	rules []*rule
	opens map[string]int
}

// NewFaultyFS creates a new FaultyFS wrapping the provided FS (or Default if nil).
func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = Default
	}
	return &FaultyFS{FS: fs, opens: make(map[string]int)}
}

// AddRule adds a fault for every path containing pattern. Later rules win.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &rule{pattern: pattern, fault: fault})
}

// Reset removes all rules.
func (f *FaultyFS) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = nil
}

// Opens returns how often paths containing pattern were opened.
func (f *FaultyFS) Opens(pattern string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for name, c := range f.opens {
		if strings.Contains(name, pattern) {
			n += c
		}
	}
	return n
}

// fire reports the error for the first live rule matching name and kind.
func (f *FaultyFS) fire(name string, kind func(Fault) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.rules) - 1; i >= 0; i-- {
		r := f.rules[i]
		if !strings.Contains(name, r.pattern) || !kind(r.fault) {
			continue
		}
		if r.fault.Times > 0 && r.fired >= r.fault.Times {
			continue
		}
		r.fired++
		if r.fault.Err != nil {
			return r.fault.Err
		}
		return ErrInjected
	}
	return nil
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f.mu.Lock()
	f.opens[name]++
	f.mu.Unlock()

	if err := f.fire(name, func(x Fault) bool { return x.FailOpen }); err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f, name: name}, nil
}

func (f *FaultyFS) Remove(name string) error {
	return f.FS.Remove(name)
}

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	if err := f.fire(newpath, func(x Fault) bool { return x.FailRename }); err != nil {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: err}
	}
	return f.FS.Rename(oldpath, newpath)
}

func (f *FaultyFS) Stat(name string) (os.FileInfo, error) {
	return f.FS.Stat(name)
}

func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}

func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error) {
	return f.FS.ReadDir(name)
}

type faultyFile struct {
	File
	fs   *FaultyFS
	name string
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if err := ff.fs.fire(ff.name, func(x Fault) bool { return x.FailWrite }); err != nil {
		return 0, err
	}
	return ff.File.Write(p)
}

func (ff *faultyFile) Sync() error {
	if err := ff.fs.fire(ff.name, func(x Fault) bool { return x.FailSync }); err != nil {
		return err
	}
	return ff.File.Sync()
}
