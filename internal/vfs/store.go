package vfs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileInfo represents virtual file metadata.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// FileStore is the backing view a VirtualFS exposes to sandboxed code. Paths
// handed to a store are already normalized (relative, no traversal segments).
type FileStore interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	Stat(path string) (*FileInfo, error)
	ListDir(path string) ([]*FileInfo, error)
}

// MemStore is a purely in-memory path→bytes store. It backs the worker
// execution path, where sandboxed code must never reach a real filesystem.
type MemStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemStore creates a MemStore pre-loaded with the given files. Keys are
// normalized so guest lookups and host pre-loads agree on spelling.
func NewMemStore(files map[string][]byte) *MemStore {
	s := &MemStore{files: make(map[string][]byte, len(files))}
	for path, data := range files {
		s.files[NormalizePath(path)] = append([]byte(nil), data...)
	}
	return s
}

func (s *MemStore) ReadFile(path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemStore) WriteFile(path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = append([]byte(nil), data...)
	return nil
}

func (s *MemStore) Stat(path string) (*FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if data, ok := s.files[path]; ok {
		return &FileInfo{Path: path, Size: int64(len(data))}, nil
	}
	// A path with entries below it acts as a directory.
	prefix := path + "/"
	if path == "" {
		prefix = ""
	}
	for p := range s.files {
		if strings.HasPrefix(p, prefix) {
			return &FileInfo{Path: path, IsDir: true}, nil
		}
	}
	return nil, fmt.Errorf("no such file: %s", path)
}

func (s *MemStore) ListDir(path string) ([]*FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := ""
	if path != "" {
		prefix = path + "/"
	}
	seen := make(map[string]*FileInfo)
	for p, data := range s.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			// Entry in a subdirectory: surface the directory once.
			dir := prefix + rest[:idx]
			seen[dir] = &FileInfo{Path: dir, IsDir: true}
		} else {
			seen[p] = &FileInfo{Path: p, Size: int64(len(data))}
		}
	}
	out := make([]*FileInfo, 0, len(seen))
	for _, fi := range seen {
		out = append(out, fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// DirStore bridges a VirtualFS to a real directory on the host filesystem.
// Only the in-process execution path uses it. It performs no internal
// locking; concurrent writers to the same path must serialize themselves.
type DirStore struct {
	root string
}

// NewDirStore creates a store rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{root: dir}
}

// hostPath maps a normalized virtual path into the root directory. The
// normalized form cannot traverse upwards, but the clean+prefix check keeps
// that property independent of the caller.
func (s *DirStore) hostPath(path string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	clean := filepath.Clean(full)
	if clean != filepath.Clean(s.root) && !strings.HasPrefix(clean, filepath.Clean(s.root)+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes root: %s", path)
	}
	return clean, nil
}

func (s *DirStore) ReadFile(path string) ([]byte, error) {
	p, err := s.hostPath(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

func (s *DirStore) WriteFile(path string, data []byte) error {
	p, err := s.hostPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	return os.WriteFile(p, data, 0644)
}

func (s *DirStore) Stat(path string) (*FileInfo, error) {
	p, err := s.hostPath(path)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	return &FileInfo{Path: path, Size: fi.Size(), ModTime: fi.ModTime(), IsDir: fi.IsDir()}, nil
}

func (s *DirStore) ListDir(path string) ([]*FileInfo, error) {
	p, err := s.hostPath(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, err
	}
	out := make([]*FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		child := e.Name()
		if path != "" {
			child = path + "/" + child
		}
		out = append(out, &FileInfo{Path: child, Size: info.Size(), ModTime: info.ModTime(), IsDir: e.IsDir()})
	}
	return out, nil
}
