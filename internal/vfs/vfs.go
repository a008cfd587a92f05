// Package vfs provides the per-execution virtual filesystem. It is the only
// channel through which sandboxed code touches data: stdin/stdout/stderr
// buffers plus a policy-gated view of a backing file store. One instance
// serves exactly one execution and is discarded afterwards.
package vfs

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/codefionn/wasmwerk/internal/manifest"
)

// ErrAccessDenied is returned for any file operation the access policy forbids.
var ErrAccessDenied = errors.New("file access denied")

// ErrBadDescriptor is returned for operations on unknown descriptors.
var ErrBadDescriptor = errors.New("bad file descriptor")

// Standard stream descriptors. They are fixed and can never be closed by
// sandboxed code.
const (
	FdStdin  int32 = 0
	FdStdout int32 = 1
	FdStderr int32 = 2

	firstFileFd int32 = 3
)

// OpenMode selects how an opened virtual file behaves.
type OpenMode int

const (
	// ModeRead snapshots the file contents at open time; reads advance a cursor.
	ModeRead OpenMode = iota
	// ModeWrite accumulates writes and flushes to the store on close.
	ModeWrite
)

type openFile struct {
	path   string
	mode   OpenMode
	cursor int64
	data   []byte
}

// VirtualFS is the sandboxed I/O surface for a single execution.
type VirtualFS struct {
	mu     sync.Mutex
	access manifest.FileAccess
	store  FileStore

	stdin    []byte
	stdinPos int
	stdout   [][]byte
	stderr   [][]byte

	files  map[int32]*openFile
	nextFd int32
}

// New creates a VirtualFS over the given store with the given access policy.
// A nil store behaves like an empty in-memory store.
func New(access manifest.FileAccess, store FileStore) *VirtualFS {
	if store == nil {
		store = NewMemStore(nil)
	}
	return &VirtualFS{
		access: access,
		store:  store,
		files:  make(map[int32]*openFile),
		nextFd: firstFileFd,
	}
}

// NewInMemory creates a VirtualFS whose file view is a static path→bytes map.
// This is the worker-path variant: no real filesystem is ever reachable.
func NewInMemory(access manifest.FileAccess, files map[string][]byte) *VirtualFS {
	return New(access, NewMemStore(files))
}

// SetStdin replaces the stdin buffer with UTF-8 text and resets the cursor.
func (v *VirtualFS) SetStdin(text string) {
	v.SetStdinBytes([]byte(text))
}

// SetStdinBytes replaces the stdin buffer byte-for-byte and resets the cursor.
// Binary payloads must use this path; routing them through text would corrupt
// them irreversibly.
func (v *VirtualFS) SetStdinBytes(data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stdin = append([]byte(nil), data...)
	v.stdinPos = 0
}

// ReadStdin returns up to max bytes from the stdin cursor, advancing it.
// An empty result signals EOF.
func (v *VirtualFS) ReadStdin(max int) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	if max <= 0 || v.stdinPos >= len(v.stdin) {
		return nil
	}
	end := v.stdinPos + max
	if end > len(v.stdin) {
		end = len(v.stdin)
	}
	out := append([]byte(nil), v.stdin[v.stdinPos:end]...)
	v.stdinPos = end
	return out
}

// WriteStdout appends a defensive copy of b to the stdout chunk list. The
// caller's slice may alias WASM linear memory that is mutated afterwards.
func (v *VirtualFS) WriteStdout(b []byte) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stdout = append(v.stdout, append([]byte(nil), b...))
	return len(b)
}

// WriteStderr appends a defensive copy of b to the stderr chunk list.
func (v *VirtualFS) WriteStderr(b []byte) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stderr = append(v.stderr, append([]byte(nil), b...))
	return len(b)
}

// Stdout returns captured stdout decoded as UTF-8. Lossy for binary output;
// callers expecting binary must use StdoutBytes.
func (v *VirtualFS) Stdout() string { return string(v.StdoutBytes()) }

// Stderr returns captured stderr decoded as UTF-8.
func (v *VirtualFS) Stderr() string { return string(v.StderrBytes()) }

// StdoutBytes returns the exact captured stdout bytes in write order.
func (v *VirtualFS) StdoutBytes() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return joinChunks(v.stdout)
}

// StderrBytes returns the exact captured stderr bytes in write order.
func (v *VirtualFS) StderrBytes() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return joinChunks(v.stderr)
}

func joinChunks(chunks [][]byte) []byte {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]byte, 0, n)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// Reset clears all streams and closes all descriptors, returning the instance
// to its initial state.
func (v *VirtualFS) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stdin = nil
	v.stdinPos = 0
	v.stdout = nil
	v.stderr = nil
	v.files = make(map[int32]*openFile)
	v.nextFd = firstFileFd
}

// NormalizePath sanitizes a guest-supplied path: the leading slash is
// stripped, "." segments are dropped and each ".." pops one accumulated
// segment. Traversal above the root is silently absorbed, never an error, so
// benign relative paths keep working.
func NormalizePath(p string) string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	return strings.Join(out, "/")
}

// ReadFile reads a virtual file, subject to the access policy.
func (v *VirtualFS) ReadFile(path string) ([]byte, error) {
	if !v.access.CanRead() {
		return nil, fmt.Errorf("read %q: %w", path, ErrAccessDenied)
	}
	return v.store.ReadFile(NormalizePath(path))
}

// WriteFile writes a virtual file, subject to the access policy.
func (v *VirtualFS) WriteFile(path string, data []byte) error {
	if !v.access.CanWrite() {
		return fmt.Errorf("write %q: %w", path, ErrAccessDenied)
	}
	return v.store.WriteFile(NormalizePath(path), data)
}

// StatFile stats a virtual file, subject to the access policy.
func (v *VirtualFS) StatFile(path string) (*FileInfo, error) {
	if !v.access.CanRead() {
		return nil, fmt.Errorf("stat %q: %w", path, ErrAccessDenied)
	}
	return v.store.Stat(NormalizePath(path))
}

// FileExists reports whether a virtual file exists. Denied access reads as
// not existing rather than erroring.
func (v *VirtualFS) FileExists(path string) bool {
	if !v.access.CanRead() {
		return false
	}
	_, err := v.store.Stat(NormalizePath(path))
	return err == nil
}

// ListDir lists a virtual directory, subject to the access policy.
func (v *VirtualFS) ListDir(path string) ([]*FileInfo, error) {
	if !v.access.CanRead() {
		return nil, fmt.Errorf("readdir %q: %w", path, ErrAccessDenied)
	}
	return v.store.ListDir(NormalizePath(path))
}

// OpenFile allocates a descriptor above the standard streams for the given
// path. Read descriptors snapshot the current contents; write descriptors
// buffer until closed.
func (v *VirtualFS) OpenFile(path string, mode OpenMode) (int32, error) {
	norm := NormalizePath(path)
	var data []byte
	switch mode {
	case ModeRead:
		b, err := v.ReadFile(norm)
		if err != nil {
			return -1, err
		}
		data = b
	case ModeWrite:
		if !v.access.CanWrite() {
			return -1, fmt.Errorf("open %q for write: %w", path, ErrAccessDenied)
		}
	default:
		return -1, fmt.Errorf("open %q: unknown mode %d", path, mode)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	fd := v.nextFd
	v.nextFd++
	v.files[fd] = &openFile{path: norm, mode: mode, data: data}
	return fd, nil
}

// ReadFd reads up to max bytes from an open descriptor, advancing its cursor.
func (v *VirtualFS) ReadFd(fd int32, max int) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, ok := v.files[fd]
	if !ok || f.mode != ModeRead {
		return nil, fmt.Errorf("read fd %d: %w", fd, ErrBadDescriptor)
	}
	if f.cursor >= int64(len(f.data)) || max <= 0 {
		return nil, nil
	}
	end := f.cursor + int64(max)
	if end > int64(len(f.data)) {
		end = int64(len(f.data))
	}
	out := append([]byte(nil), f.data[f.cursor:end]...)
	f.cursor = end
	return out, nil
}

// WriteFd appends bytes to an open write descriptor.
func (v *VirtualFS) WriteFd(fd int32, b []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, ok := v.files[fd]
	if !ok || f.mode != ModeWrite {
		return 0, fmt.Errorf("write fd %d: %w", fd, ErrBadDescriptor)
	}
	f.data = append(f.data, b...)
	f.cursor = int64(len(f.data))
	return len(b), nil
}

// SeekFd moves the cursor of an open descriptor. whence follows the WASI
// convention: 0 = set, 1 = current, 2 = end.
func (v *VirtualFS) SeekFd(fd int32, offset int64, whence int) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, ok := v.files[fd]
	if !ok {
		return 0, fmt.Errorf("seek fd %d: %w", fd, ErrBadDescriptor)
	}
	var pos int64
	switch whence {
	case 0:
		pos = offset
	case 1:
		pos = f.cursor + offset
	case 2:
		pos = int64(len(f.data)) + offset
	default:
		return 0, fmt.Errorf("seek fd %d: invalid whence %d", fd, whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("seek fd %d: negative offset", fd)
	}
	f.cursor = pos
	return pos, nil
}

// CloseFd releases a descriptor, flushing buffered writes to the store.
// Closing a standard stream or an unknown descriptor is a no-op: fds 0-2 are
// owned by the host and must survive any close attempt from the guest.
func (v *VirtualFS) CloseFd(fd int32) error {
	if fd < firstFileFd {
		return nil
	}
	v.mu.Lock()
	f, ok := v.files[fd]
	delete(v.files, fd)
	v.mu.Unlock()
	if !ok {
		return nil
	}
	if f.mode == ModeWrite {
		return v.store.WriteFile(f.path, f.data)
	}
	return nil
}

// FdSize returns the current data length behind an open descriptor.
func (v *VirtualFS) FdSize(fd int32) (int64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, ok := v.files[fd]
	if !ok {
		return 0, false
	}
	return int64(len(f.data)), true
}

// IsOpen reports whether fd refers to an open virtual file.
func (v *VirtualFS) IsOpen(fd int32) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.files[fd]
	return ok
}

// Access returns the policy this instance was created with.
func (v *VirtualFS) Access() manifest.FileAccess { return v.access }
