package wasihost

import (
	"time"
	"unicode/utf8"

	"github.com/codefionn/wasmwerk/internal/consts"
)

// Options are the resolved per-execution resource bounds and inputs.
type Options struct {
	// Timeout is the wall-clock bound; clamped to
	// [consts.MinExecutionTimeout, consts.MaxExecutionTimeout].
	Timeout time.Duration
	// MemoryPages is the linear memory ceiling in 64KB pages, clamped to
	// consts.MaxMemoryPages.
	MemoryPages uint32
	// Stdin is text input for the tool.
	Stdin string
	// StdinBinary is raw input; when set it always wins over Stdin.
	StdinBinary []byte
	// Files are pre-loaded virtual files visible through the VFS policy.
	Files map[string][]byte
}

// Normalize clamps the options into their allowed ranges, filling defaults.
func (o *Options) Normalize() {
	if o.Timeout <= 0 {
		o.Timeout = consts.DefaultExecutionTimeout
	}
	if o.Timeout < consts.MinExecutionTimeout {
		o.Timeout = consts.MinExecutionTimeout
	}
	if o.Timeout > consts.MaxExecutionTimeout {
		o.Timeout = consts.MaxExecutionTimeout
	}
	if o.MemoryPages == 0 {
		o.MemoryPages = consts.DefaultMemoryPages
	}
	if o.MemoryPages > consts.MaxMemoryPages {
		o.MemoryPages = consts.MaxMemoryPages
	}
}

// Result is the outcome of one sandboxed execution.
type Result struct {
	ExitCode int
	Stdout   string
	// StdoutBinary holds the exact output bytes whenever stdout is not valid
	// UTF-8: the text decoding in Stdout is lossy and irreversible.
	StdoutBinary []byte
	Stderr       string
	Err          string
	TimedOut     bool
}

// Success reports whether the execution completed with exit code zero and no
// host-side failure.
func (r *Result) Success() bool {
	return r.ExitCode == 0 && r.Err == "" && !r.TimedOut
}

// newResult captures streams from the VFS into a Result, attaching the exact
// bytes when text decoding would lose information.
func newResult(exitCode int, stdout, stderr []byte) *Result {
	r := &Result{
		ExitCode: exitCode,
		Stdout:   string(stdout),
		Stderr:   string(stderr),
	}
	if !utf8.Valid(stdout) {
		r.StdoutBinary = stdout
	}
	return r
}
