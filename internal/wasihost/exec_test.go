package wasihost

// The fixtures below are hand-assembled WASM command modules, small enough to
// keep as byte literals. Each one exercises a slice of the import surface
// against a real guest instead of a mock.

import (
	"context"
	"testing"
	"time"

	"github.com/codefionn/wasmwerk/internal/manifest"
	"github.com/codefionn/wasmwerk/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wasmExitSeven: _start calls proc_exit(7).
var wasmExitSeven = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type section: (i32)->(), ()->()
	0x01, 0x08, 0x02, 0x60, 0x01, 0x7f, 0x00, 0x60, 0x00, 0x00,
	// import section: wasi_snapshot_preview1.proc_exit
	0x02, 0x24, 0x01,
	0x16, 'w', 'a', 's', 'i', '_', 's', 'n', 'a', 'p', 's', 'h', 'o', 't', '_', 'p', 'r', 'e', 'v', 'i', 'e', 'w', '1',
	0x09, 'p', 'r', 'o', 'c', '_', 'e', 'x', 'i', 't',
	0x00, 0x00,
	// function section
	0x03, 0x02, 0x01, 0x01,
	// export section: "_start"
	0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x01,
	// code section: i32.const 7; call 0; end
	0x0a, 0x08, 0x01, 0x06, 0x00, 0x41, 0x07, 0x10, 0x00, 0x0b,
}

// wasmSpinForever: _start is `loop; br 0`, pure compute with no imports.
var wasmSpinForever = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x03, 0x40, 0x0c, 0x00, 0x0b, 0x0b,
}

// wasmArgsEcho: _start calls args_sizes_get(0, 4), args_get(8, 64), then
// writes the whole argument buffer (length taken from the reported buflen)
// to stdout with fd_write. Stdout is therefore the exact byte layout the
// host produced for argv.
var wasmArgsEcho = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// types: (i32,i32)->i32, (i32,i32,i32,i32)->i32, ()->()
	0x01, 0x12, 0x03, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f, 0x60, 0x00, 0x00,
	// imports: args_sizes_get, args_get, fd_write
	0x02, 0x6d, 0x03,
	0x16, 'w', 'a', 's', 'i', '_', 's', 'n', 'a', 'p', 's', 'h', 'o', 't', '_', 'p', 'r', 'e', 'v', 'i', 'e', 'w', '1',
	0x0e, 'a', 'r', 'g', 's', '_', 's', 'i', 'z', 'e', 's', '_', 'g', 'e', 't', 0x00, 0x00,
	0x16, 'w', 'a', 's', 'i', '_', 's', 'n', 'a', 'p', 's', 'h', 'o', 't', '_', 'p', 'r', 'e', 'v', 'i', 'e', 'w', '1',
	0x08, 'a', 'r', 'g', 's', '_', 'g', 'e', 't', 0x00, 0x00,
	0x16, 'w', 'a', 's', 'i', '_', 's', 'n', 'a', 'p', 's', 'h', 'o', 't', '_', 'p', 'r', 'e', 'v', 'i', 'e', 'w', '1',
	0x08, 'f', 'd', '_', 'w', 'r', 'i', 't', 'e', 0x00, 0x01,
	// function, memory (1 page), exports: memory + _start
	0x03, 0x02, 0x01, 0x02,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x13, 0x02, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x03,
	// code: the iovec at 128 points at the argv buffer (64) with the
	// buflen reported at address 4; nwritten lands at 160.
	0x0a, 0x34, 0x01, 0x32, 0x00,
	0x41, 0x00, 0x41, 0x04, 0x10, 0x00, 0x1a, // args_sizes_get(0, 4)
	0x41, 0x08, 0x41, 0xc0, 0x00, 0x10, 0x01, 0x1a, // args_get(8, 64)
	0x41, 0x80, 0x01, 0x41, 0xc0, 0x00, 0x36, 0x02, 0x00, // iovec.ptr = 64
	0x41, 0x84, 0x01, 0x41, 0x04, 0x28, 0x02, 0x00, 0x36, 0x02, 0x00, // iovec.len = buflen
	0x41, 0x01, 0x41, 0x80, 0x01, 0x41, 0x01, 0x41, 0xa0, 0x01, 0x10, 0x02, 0x1a, // fd_write(1, 128, 1, 160)
	0x0b,
}

// wasmStdinEcho: _start reads up to 64 bytes from fd 0 into the buffer at 16,
// patches the iovec length to the reported nread and writes the same buffer
// back to fd 1.
var wasmStdinEcho = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// types: (i32,i32,i32,i32)->i32, ()->()
	0x01, 0x0c, 0x02, 0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f, 0x60, 0x00, 0x00,
	// imports: fd_read, fd_write
	0x02, 0x44, 0x02,
	0x16, 'w', 'a', 's', 'i', '_', 's', 'n', 'a', 'p', 's', 'h', 'o', 't', '_', 'p', 'r', 'e', 'v', 'i', 'e', 'w', '1',
	0x07, 'f', 'd', '_', 'r', 'e', 'a', 'd', 0x00, 0x00,
	0x16, 'w', 'a', 's', 'i', '_', 's', 'n', 'a', 'p', 's', 'h', 'o', 't', '_', 'p', 'r', 'e', 'v', 'i', 'e', 'w', '1',
	0x08, 'f', 'd', '_', 'w', 'r', 'i', 't', 'e', 0x00, 0x00,
	0x03, 0x02, 0x01, 0x01,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x13, 0x02, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x02,
	0x0a, 0x24, 0x01, 0x22, 0x00,
	0x41, 0x00, 0x41, 0x00, 0x41, 0x01, 0x41, 0x08, 0x10, 0x00, 0x1a, // fd_read(0, 0, 1, 8)
	0x41, 0x04, 0x41, 0x08, 0x28, 0x02, 0x00, 0x36, 0x02, 0x00, // iovec.len = nread
	0x41, 0x01, 0x41, 0x00, 0x41, 0x01, 0x41, 0x0c, 0x10, 0x01, 0x1a, // fd_write(1, 0, 1, 12)
	0x0b,
	// data: iovec at 0 = {ptr: 16, len: 64}
	0x0b, 0x0e, 0x01, 0x00, 0x41, 0x00, 0x0b, 0x08,
	0x10, 0x00, 0x00, 0x00, 0x40, 0x00, 0x00, 0x00,
}

// wasmSetRights: _start calls fd_fdstat_set_rights(0, 0, 0), drops the errno
// and falls through to a normal exit.
var wasmSetRights = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// types: (i32,i64,i64)->i32, ()->()
	0x01, 0x0b, 0x02, 0x60, 0x03, 0x7f, 0x7e, 0x7e, 0x01, 0x7f, 0x60, 0x00, 0x00,
	0x02, 0x2f, 0x01,
	0x16, 'w', 'a', 's', 'i', '_', 's', 'n', 'a', 'p', 's', 'h', 'o', 't', '_', 'p', 'r', 'e', 'v', 'i', 'e', 'w', '1',
	0x14, 'f', 'd', '_', 'f', 'd', 's', 't', 'a', 't', '_', 's', 'e', 't', '_', 'r', 'i', 'g', 'h', 't', 's',
	0x00, 0x00,
	0x03, 0x02, 0x01, 0x01,
	0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x01,
	0x0a, 0x0d, 0x01, 0x0b, 0x00,
	0x41, 0x00, 0x42, 0x00, 0x42, 0x00, 0x10, 0x00, 0x1a, 0x0b,
}

func runModule(t *testing.T, wasm []byte, argv []string, opts Options) *Result {
	t.Helper()
	v := vfs.NewInMemory(manifest.AccessNone, nil)
	res := Execute(context.Background(), wasm, argv, opts, v)
	require.NotNil(t, res)
	return res
}

func TestExecuteProcExitCodePropagates(t *testing.T) {
	res := runModule(t, wasmExitSeven, []string{"tool"}, Options{})
	assert.Equal(t, 7, res.ExitCode, "exact code passed to proc_exit must reach the caller")
	assert.Empty(t, res.Err)
	assert.False(t, res.TimedOut)
}

func TestExecuteForciblyStopsComputeBoundGuest(t *testing.T) {
	start := time.Now()
	res := runModule(t, wasmSpinForever, []string{"tool"}, Options{Timeout: 200 * time.Millisecond})
	elapsed := time.Since(start)

	assert.True(t, res.TimedOut, "runaway loop must be terminated, got %+v", res)
	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.Err, "timed out")
	assert.Less(t, elapsed, 5*time.Second, "termination must not wait for the guest")
}

func TestExecuteArgumentBufferLayout(t *testing.T) {
	res := runModule(t, wasmArgsEcho, []string{"tool", "a", "bc"}, Options{})

	assert.Equal(t, 0, res.ExitCode)
	assert.Empty(t, res.Err)
	// Arguments live contiguously, each null-terminated, in declaration order.
	assert.Equal(t, "tool\x00a\x00bc\x00", res.Stdout)
}

func TestExecuteStdinReachesGuestAndBack(t *testing.T) {
	res := runModule(t, wasmStdinEcho, []string{"tool"}, Options{Stdin: "hello sandbox"})

	assert.Equal(t, 0, res.ExitCode)
	assert.Empty(t, res.Err)
	assert.Equal(t, "hello sandbox", res.Stdout)
}

func TestExecuteBinaryStdinRoundTrip(t *testing.T) {
	payload := []byte{0x00, 0xff, 0x10, 0x80, 0x7f}
	res := runModule(t, wasmStdinEcho, []string{"tool"}, Options{StdinBinary: payload})

	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, payload, res.StdoutBinary, "non-UTF-8 output keeps the exact bytes")
}

func TestExecuteUnimplementedImportInstantiates(t *testing.T) {
	// fd_fdstat_set_rights is stubbed, not absent: a module importing it must
	// instantiate and run, observing ENOSYS at the call site.
	res := runModule(t, wasmSetRights, []string{"tool"}, Options{})

	assert.Equal(t, 0, res.ExitCode)
	assert.Empty(t, res.Err)
}
