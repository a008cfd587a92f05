package consts

import "time"

// Buffer sizes for sandbox I/O
const (
	// BufferSize4KB is 4 kilobytes
	BufferSize4KB = 4 * 1024
	// BufferSize64KB is 64 kilobytes
	BufferSize64KB = 64 * 1024
	// BufferSize1MB is 1 megabyte
	BufferSize1MB = 1024 * 1024
	// BufferSize20MB is 20 megabytes
	BufferSize20MB = 20 * 1024 * 1024
	// BufferSize50MB is 50 megabytes
	BufferSize50MB = 50 * 1024 * 1024
)

// Execution timeout bounds
const (
	// MinExecutionTimeout is the smallest timeout a tool may request
	MinExecutionTimeout = 100 * time.Millisecond
	// DefaultExecutionTimeout applies when a manifest declares no timeout
	DefaultExecutionTimeout = 30 * time.Second
	// MaxExecutionTimeout is the hard ceiling for any single execution
	MaxExecutionTimeout = 300 * time.Second
)

// WASM limits
const (
	// WasmPageSize is the size of one WebAssembly linear memory page
	WasmPageSize = 64 * 1024
	// DefaultMemoryPages is the default linear memory ceiling (256 pages = 16MB)
	DefaultMemoryPages = 256
	// MaxMemoryPages is the largest memory ceiling a manifest may request (4GiB)
	MaxMemoryPages = 65536
	// MaxBinarySize is the largest accepted tool binary
	MaxBinarySize = BufferSize20MB
)

// Package archive limits
const (
	// MaxArchiveSize is the largest accepted tool package archive
	MaxArchiveSize = BufferSize50MB
	// MaxArchiveEntries bounds the entry count of a package archive
	MaxArchiveEntries = 100
)

// Result shaping
const (
	// PreviewMaxBytes bounds the inline stdout preview returned to the model
	PreviewMaxBytes = BufferSize4KB
	// PreviewMaxLines bounds the inline stdout preview line count
	PreviewMaxLines = 40
)

// Timeouts for host-side operations
const (
	// Timeout10Seconds is a 10 second timeout
	Timeout10Seconds = 10 * time.Second
	// Timeout30Seconds is a 30 second timeout
	Timeout30Seconds = 30 * time.Second
)
