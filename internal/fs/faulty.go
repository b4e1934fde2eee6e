package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is the error returned by a fault that does not set Err.
var ErrInjected = errors.New("injected fault")

// Fault defines specific failure behavior for files matching a rule.
type Fault struct {
	// FailAfterBytes fails any Write or WriteAt that would take the bytes
	// written to this file past the limit. Negative disables the limit.
	FailAfterBytes int64
	// ShortWrite makes the failing write persist the bytes up to the limit
	// before returning the error, like a full disk would.
	ShortWrite  bool
	FailOnRead  bool
	FailOnSync  bool
	FailOnClose bool
	Err         error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

// FaultyFS is a FileSystem wrapper that can inject errors.
//
// Rules are matched by substring against the file name passed to OpenFile;
// the longest matching pattern wins. Rules added after a file was opened do
// not affect that file unless they are armed with Arm.
type FaultyFS struct {
	FS FileSystem

	mu    sync.Mutex
	rules map[string]Fault
	files map[string][]*faultyFile
}

// NewFaultyFS creates a new FaultyFS wrapping the provided FS (or Default if nil).
func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = Default
	}
	return &FaultyFS{
		FS:    fs,
		rules: make(map[string]Fault),
		files: make(map[string][]*faultyFile),
	}
}

// AddRule adds a fault injection rule for a file name pattern.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = fault
}

// Arm applies fault to every already-open file whose name contains pattern.
// The byte budget counts from the moment of arming.
func (f *FaultyFS) Arm(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = fault
	for name, files := range f.files {
		if !strings.Contains(name, pattern) {
			continue
		}
		for _, ff := range files {
			ff.mu.Lock()
			ff.fault = fault
			ff.written = 0
			ff.mu.Unlock()
		}
	}
}

// Disarm removes all rules and clears faults from open files.
func (f *FaultyFS) Disarm() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.rules)
	for _, files := range f.files {
		for _, ff := range files {
			ff.mu.Lock()
			ff.fault = Fault{FailAfterBytes: -1}
			ff.mu.Unlock()
		}
	}
}

func (f *FaultyFS) match(name string) Fault {
	fault := Fault{FailAfterBytes: -1}
	best := -1
	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) && len(pattern) > best {
			fault, best = rule, len(pattern)
		}
	}
	return fault
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ff := &faultyFile{File: file, name: name, owner: f, fault: f.match(name)}
	f.files[name] = append(f.files[name], ff)
	return ff, nil
}

func (f *FaultyFS) forget(ff *faultyFile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	files := f.files[ff.name]
	for i, other := range files {
		if other == ff {
			files = append(files[:i], files[i+1:]...)
			break
		}
	}
	if len(files) == 0 {
		delete(f.files, ff.name)
	} else {
		f.files[ff.name] = files
	}
}

func (f *FaultyFS) Remove(name string) error {
	return f.FS.Remove(name)
}

func (f *FaultyFS) Rename(oldpath, newpath string) error {
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
	name  string
	owner *FaultyFS

	mu      sync.Mutex
	fault   Fault
	written int64
}

// budget returns how many of n bytes may be written, and the error to
// return if the write exceeds the budget.
func (ff *faultyFile) budget(n int) (int, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	limit := ff.fault.FailAfterBytes
	if limit < 0 || ff.written+int64(n) <= limit {
		ff.written += int64(n)
		return n, nil
	}

	allowed := 0
	if ff.fault.ShortWrite {
		allowed = int(max(limit-ff.written, 0))
	}
	ff.written += int64(allowed)
	return allowed, ff.fault.err()
}

func (ff *faultyFile) snapshot() Fault {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.fault
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	allowed, ferr := ff.budget(len(p))
	if ferr == nil {
		return ff.File.Write(p)
	}
	if allowed > 0 {
		n, err := ff.File.Write(p[:allowed])
		if err != nil {
			return n, err
		}
	}
	return allowed, ferr
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	allowed, ferr := ff.budget(len(p))
	if ferr == nil {
		return ff.File.WriteAt(p, off)
	}
	if allowed > 0 {
		n, err := ff.File.WriteAt(p[:allowed], off)
		if err != nil {
			return n, err
		}
	}
	return allowed, ferr
}

func (ff *faultyFile) Read(p []byte) (int, error) {
	if fault := ff.snapshot(); fault.FailOnRead {
		return 0, fault.err()
	}
	return ff.File.Read(p)
}

func (ff *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	if fault := ff.snapshot(); fault.FailOnRead {
		return 0, fault.err()
	}
	return ff.File.ReadAt(p, off)
}

func (ff *faultyFile) Sync() error {
	if fault := ff.snapshot(); fault.FailOnSync {
		return fault.err()
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	ff.owner.forget(ff)
	if fault := ff.snapshot(); fault.FailOnClose {
		_ = ff.File.Close()
		return fault.err()
	}
	return ff.File.Close()
}
