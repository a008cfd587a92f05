// Package pack loads and validates tool packages. A package is a ZIP archive
// containing exactly one manifest.json and exactly one .wasm binary, at any
// depth; every other entry is ignored. Validation is all-or-nothing: a bad
// package is rejected before anything registers.
package pack

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/codefionn/wasmwerk/internal/consts"
	"github.com/codefionn/wasmwerk/internal/manifest"
)

// ErrInvalidPackage marks every package validation failure.
var ErrInvalidPackage = errors.New("invalid tool package")

// WasmMagic is the four-byte header every WebAssembly binary starts with.
var WasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// Package is a fully validated tool package, ready to install.
type Package struct {
	Manifest    *manifest.ToolManifest
	ManifestRaw []byte
	Wasm        []byte
}

// LoadFile reads and validates a package from disk.
func LoadFile(p string) (*Package, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read package: %w", err)
	}
	if fi.Size() > consts.MaxArchiveSize {
		return nil, fmt.Errorf("%w: archive exceeds %d bytes", ErrInvalidPackage, consts.MaxArchiveSize)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read package: %w", err)
	}
	return Load(data)
}

// Load validates a package from raw archive bytes.
func Load(data []byte) (*Package, error) {
	if len(data) > consts.MaxArchiveSize {
		return nil, fmt.Errorf("%w: archive exceeds %d bytes", ErrInvalidPackage, consts.MaxArchiveSize)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a valid ZIP archive: %v", ErrInvalidPackage, err)
	}
	if len(zr.File) > consts.MaxArchiveEntries {
		return nil, fmt.Errorf("%w: archive has %d entries, limit is %d", ErrInvalidPackage, len(zr.File), consts.MaxArchiveEntries)
	}

	var manifestEntry, wasmEntry *zip.File
	for _, f := range zr.File {
		if err := checkEntryName(f.Name); err != nil {
			return nil, err
		}
		switch {
		case path.Base(f.Name) == "manifest.json":
			if manifestEntry != nil {
				return nil, fmt.Errorf("%w: multiple manifest.json entries", ErrInvalidPackage)
			}
			manifestEntry = f
		case strings.HasSuffix(f.Name, ".wasm"):
			if wasmEntry != nil {
				return nil, fmt.Errorf("%w: multiple .wasm entries", ErrInvalidPackage)
			}
			wasmEntry = f
		}
	}
	if manifestEntry == nil {
		return nil, fmt.Errorf("%w: missing manifest.json", ErrInvalidPackage)
	}
	if wasmEntry == nil {
		return nil, fmt.Errorf("%w: missing .wasm binary", ErrInvalidPackage)
	}

	manifestRaw, err := readEntry(manifestEntry, consts.BufferSize1MB)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Parse(manifestRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
	}

	if wasmEntry.UncompressedSize64 > uint64(consts.MaxBinarySize) {
		return nil, fmt.Errorf("%w: binary exceeds %d bytes", ErrInvalidPackage, consts.MaxBinarySize)
	}
	wasm, err := readEntry(wasmEntry, consts.MaxBinarySize)
	if err != nil {
		return nil, err
	}
	if err := CheckWasm(wasm); err != nil {
		return nil, err
	}

	return &Package{Manifest: m, ManifestRaw: manifestRaw, Wasm: wasm}, nil
}

// CheckWasm validates the magic number and size of a WebAssembly binary.
func CheckWasm(wasm []byte) error {
	if len(wasm) > consts.MaxBinarySize {
		return fmt.Errorf("%w: binary exceeds %d bytes", ErrInvalidPackage, consts.MaxBinarySize)
	}
	if len(wasm) < len(WasmMagic) || !bytes.Equal(wasm[:len(WasmMagic)], WasmMagic) {
		return fmt.Errorf("%w: bad WASM magic number", ErrInvalidPackage)
	}
	return nil
}

// checkEntryName rejects entry names that could escape an extraction root.
// Packages are never extracted to disk here, but hostile names are a reliable
// signal of a hostile archive.
func checkEntryName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty entry name", ErrInvalidPackage)
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("%w: entry name %q escapes archive root", ErrInvalidPackage, name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: entry name %q contains path traversal", ErrInvalidPackage, name)
		}
	}
	return nil
}

// readEntry decompresses one archive entry, enforcing limit against the
// actual decompressed size rather than the header's claim.
func readEntry(f *zip.File, limit int) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open entry %q: %v", ErrInvalidPackage, f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, int64(limit)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read entry %q: %v", ErrInvalidPackage, f.Name, err)
	}
	if len(data) > limit {
		return nil, fmt.Errorf("%w: entry %q exceeds %d bytes", ErrInvalidPackage, f.Name, limit)
	}
	return data, nil
}
