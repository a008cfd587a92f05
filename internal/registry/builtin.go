package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/codefionn/wasmwerk/internal/consts"
	"github.com/codefionn/wasmwerk/internal/manifest"
	"github.com/codefionn/wasmwerk/internal/pack"
	"gopkg.in/yaml.v3"
)

// BuiltinSpec describes one curated built-in tool: where its binary comes
// from and the manifest it registers under. The manifest here is
// authoritative: it is re-synced into the store on every bootstrap, so schema
// additions reach installed tools without a reinstall.
type BuiltinSpec struct {
	Name     string         `yaml:"name"`
	Version  string         `yaml:"version"`
	URL      string         `yaml:"url"`
	Manifest map[string]any `yaml:"manifest"`
}

type builtinList struct {
	Tools []BuiltinSpec `yaml:"tools"`
}

// LoadBuiltinSpecs reads the curated built-in list from a YAML file.
func LoadBuiltinSpecs(path string) ([]BuiltinSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read builtin list: %w", err)
	}
	return ParseBuiltinSpecs(data)
}

// ParseBuiltinSpecs parses the curated built-in list from YAML bytes.
func ParseBuiltinSpecs(data []byte) ([]BuiltinSpec, error) {
	var list builtinList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse builtin list: %w", err)
	}
	return list.Tools, nil
}

// manifestOf converts the YAML manifest block through the normal manifest
// parser so built-ins face the same validation as packaged tools.
func (b BuiltinSpec) manifestOf() (*manifest.ToolManifest, error) {
	raw, err := json.Marshal(b.Manifest)
	if err != nil {
		return nil, fmt.Errorf("builtin %s: bad manifest block: %w", b.Name, err)
	}
	m, err := manifest.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("builtin %s: %w", b.Name, err)
	}
	return m, nil
}

// Fetcher retrieves a built-in binary by URL. Injectable for tests.
type Fetcher func(ctx context.Context, url string) ([]byte, error)

// HTTPFetch is the default Fetcher.
func HTTPFetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(consts.MaxBinarySize)+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	if len(data) > consts.MaxBinarySize {
		return nil, fmt.Errorf("fetch %s: binary exceeds %d bytes", url, consts.MaxBinarySize)
	}
	return data, nil
}

// Bootstrap registers every built-in from specs. Binaries already present at
// the current version are not re-fetched; their manifests are re-synced
// against the spec so definition changes propagate. A failing built-in is
// logged and skipped, never fatal: one unreachable URL must not take the
// whole tool set down.
func (r *Registry) Bootstrap(ctx context.Context, specs []BuiltinSpec, fetch Fetcher) error {
	if fetch == nil {
		fetch = HTTPFetch
	}
	var firstErr error
	for _, spec := range specs {
		if err := r.bootstrapOne(ctx, spec, fetch); err != nil {
			r.log.Warn("builtin %s: %v", spec.Name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Registry) bootstrapOne(ctx context.Context, spec BuiltinSpec, fetch Fetcher) error {
	m, err := spec.manifestOf()
	if err != nil {
		return err
	}
	if m.Name != spec.Name {
		return fmt.Errorf("manifest name %q does not match spec name %q", m.Name, spec.Name)
	}

	existing, err := r.store.Get(spec.Name)
	if err == nil && existing.Builtin && existing.Version == spec.Version {
		// Binary is current; only the manifest definition may have moved.
		return r.store.SyncManifest(spec.Name, m)
	}

	wasm, err := fetch(ctx, spec.URL)
	if err != nil {
		return err
	}
	if err := pack.CheckWasm(wasm); err != nil {
		return err
	}

	t := &StoredTool{
		ID:          ToolID(spec.Name, spec.Version, wasm),
		Name:        spec.Name,
		Version:     spec.Version,
		Description: m.Description,
		Manifest:    m,
		Wasm:        wasm,
		Builtin:     true,
		Enabled:     true,
	}
	if err := r.store.Put(t); err != nil {
		return err
	}
	r.log.Info("bootstrapped builtin %s@%s (%s)", t.Name, t.Version, t.ID)
	return nil
}
