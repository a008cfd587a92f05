package registry

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/codefionn/wasmwerk/internal/logger"
	"github.com/codefionn/wasmwerk/internal/pack"
)

// Registry wraps the store with package installation and built-in bootstrap.
type Registry struct {
	store *Store
	log   *logger.Logger
}

// New creates a registry over an open store.
func New(store *Store) *Registry {
	return &Registry{
		store: store,
		log:   logger.Global().WithPrefix("registry"),
	}
}

// Store exposes the underlying store for read operations.
func (r *Registry) Store() *Store { return r.store }

// ToolID derives the deterministic id a tool registers under. The same
// name, version and binary always produce the same id.
func ToolID(name, version string, wasm []byte) string {
	d := xxhash.New()
	d.WriteString(name)
	d.WriteString("@")
	d.WriteString(version)
	d.WriteString(":")
	d.Write(wasm)
	return fmt.Sprintf("%016x", d.Sum64())
}

// Install registers a validated package as a user tool. Installation is
// atomic: the package was fully validated before this point, and the upsert
// either lands completely or not at all.
func (r *Registry) Install(p *pack.Package) (*StoredTool, error) {
	m := p.Manifest
	t := &StoredTool{
		ID:          ToolID(m.Name, m.Version, p.Wasm),
		Name:        m.Name,
		Version:     m.Version,
		Description: m.Description,
		Manifest:    m,
		Wasm:        p.Wasm,
		Builtin:     false,
		Enabled:     true,
	}
	if existing, err := r.store.Get(m.Name); err == nil && existing.Builtin {
		return nil, fmt.Errorf("cannot replace built-in tool %s", m.Name)
	}
	if err := r.store.Put(t); err != nil {
		return nil, err
	}
	r.log.Info("installed tool %s@%s (%s)", t.Name, t.Version, t.ID)
	return t, nil
}

// InstallFile validates and registers a package file.
func (r *Registry) InstallFile(path string) (*StoredTool, error) {
	p, err := pack.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return r.Install(p)
}

// Enabled returns all enabled tools.
func (r *Registry) Enabled() ([]*StoredTool, error) {
	all, err := r.store.List()
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, t := range all {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}
