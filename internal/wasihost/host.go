// Package wasihost implements the WASI preview1 import surface from scratch
// on top of the wazero runtime. Modules are compiled, instantiated against
// this host module and driven through their _start export; all I/O goes
// through a per-execution vfs.VirtualFS.
//
// The host never pre-allocates guest memory: compiled modules export their
// own linear memory, which each import reaches through the calling module
// instance. Network syscalls are answered with "permission denied" instead of
// "not supported" so a module cannot distinguish missing sockets from
// forbidden ones.
package wasihost

import (
	"context"
	"errors"
	"fmt"

	"github.com/codefionn/wasmwerk/internal/logger"
	"github.com/codefionn/wasmwerk/internal/manifest"
	"github.com/codefionn/wasmwerk/internal/vfs"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
)

const wasiModuleName = "wasi_snapshot_preview1"

// procExitError is the sentinel thrown by proc_exit. WebAssembly has no early
// return across a nested host call, so unwinding the stack is the only way to
// stop exactly at the exit point; the execute boundary recognizes the
// sentinel and treats it as a clean exit.
type procExitError struct {
	code uint32
}

func (e *procExitError) Error() string {
	return fmt.Sprintf("proc_exit(%d)", e.code)
}

// Host holds the per-execution state shared by all WASI imports.
type Host struct {
	vfs  *vfs.VirtualFS
	argv []string
	log  *logger.Logger

	exited   bool
	exitCode uint32
}

// Execute compiles and runs a WASI command module to completion. argv[0] is
// the tool name by convention. The returned Result always reflects what the
// module observed: host-side failures surface as stderr text and exit code 1,
// never as a crash of the caller.
func Execute(ctx context.Context, wasmBytes []byte, argv []string, opts Options, v *vfs.VirtualFS) *Result {
	opts.Normalize()
	if v == nil {
		v = vfs.NewInMemory(manifest.AccessNone, opts.Files)
	}
	if opts.StdinBinary != nil {
		// Binary stdin always wins over text.
		v.SetStdinBytes(opts.StdinBinary)
	} else {
		v.SetStdin(opts.Stdin)
	}

	h := &Host{
		vfs:  v,
		argv: argv,
		log:  logger.Global().WithPrefix("wasi"),
	}

	runtimeCfg := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(opts.MemoryPages)
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	// Close with a fresh context: the execution context may already be done.
	defer r.Close(context.Background())

	if err := h.register(ctx, r); err != nil {
		return h.failure(fmt.Sprintf("failed to instantiate WASI host: %v", err), "host setup failed")
	}

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		h.log.Debug("compilation failed: %v", err)
		return h.failure(fmt.Sprintf("WASM compilation failed: %v", err), "compilation failed")
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	// Start functions are invoked explicitly below so instantiation errors
	// stay distinguishable from runtime errors.
	modCfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	mod, err := r.InstantiateModule(runCtx, compiled, modCfg)
	if err != nil {
		h.log.Debug("instantiation failed: %v", err)
		return h.failure(fmt.Sprintf("WASM instantiation failed: %v", err), "instantiation failed")
	}
	defer mod.Close(context.Background())

	start := mod.ExportedFunction("_start")
	if start == nil {
		return h.failure("WASM module does not export _start", "no _start function")
	}

	callErr := h.invoke(runCtx, start)

	switch {
	case h.exited:
		// proc_exit unwound the stack; the recorded code is authoritative.
		return newResult(int(h.exitCode), v.StdoutBytes(), v.StderrBytes())
	case callErr == nil:
		return newResult(0, v.StdoutBytes(), v.StderrBytes())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		h.log.Warn("execution timed out after %s", opts.Timeout)
		res := newResult(1, v.StdoutBytes(), v.StderrBytes())
		res.TimedOut = true
		res.Err = fmt.Sprintf("execution timed out after %s", opts.Timeout)
		return res
	case errors.Is(runCtx.Err(), context.Canceled):
		res := newResult(1, v.StdoutBytes(), v.StderrBytes())
		res.Err = "execution canceled"
		return res
	default:
		var exitErr *sys.ExitError
		if errors.As(callErr, &exitErr) {
			return newResult(int(exitErr.ExitCode()), v.StdoutBytes(), v.StderrBytes())
		}
		// Trap or host fault: surface on stderr, exit code 1.
		h.log.Debug("runtime error: %v", callErr)
		v.WriteStderr([]byte(fmt.Sprintf("runtime error: %v\n", callErr)))
		res := newResult(1, v.StdoutBytes(), v.StderrBytes())
		res.Err = "runtime error"
		return res
	}
}

// invoke calls _start, converting any unwind that escapes the engine back
// into an error. This is the outer execution boundary: nothing past it
// may panic.
func (h *Host) invoke(ctx context.Context, start api.Function) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*procExitError); ok {
				h.exited = true
				h.exitCode = pe.code
				err = nil
				return
			}
			err = fmt.Errorf("host fault: %v", r)
		}
	}()
	_, err = start.Call(ctx)
	if err != nil {
		// The engine reports the proc_exit sentinel as a call error; the
		// exited flag set inside the import identifies it.
		if h.exited {
			return nil
		}
	}
	return err
}

func (h *Host) failure(stderrMsg, errMsg string) *Result {
	h.vfs.WriteStderr([]byte(stderrMsg + "\n"))
	res := newResult(1, h.vfs.StdoutBytes(), h.vfs.StderrBytes())
	res.Err = errMsg
	return res
}

// register builds the wasi_snapshot_preview1 host module. Every import the
// tool chain's libc probes during startup is present; everything else
// answers ENOSYS, except sockets which answer EACCES.
func (h *Host) register(ctx context.Context, r wazero.Runtime) error {
	b := r.NewHostModuleBuilder(wasiModuleName)

	b.NewFunctionBuilder().WithFunc(h.argsGet).Export("args_get")
	b.NewFunctionBuilder().WithFunc(h.argsSizesGet).Export("args_sizes_get")
	b.NewFunctionBuilder().WithFunc(h.environGet).Export("environ_get")
	b.NewFunctionBuilder().WithFunc(h.environSizesGet).Export("environ_sizes_get")
	b.NewFunctionBuilder().WithFunc(h.clockResGet).Export("clock_res_get")
	b.NewFunctionBuilder().WithFunc(h.clockTimeGet).Export("clock_time_get")
	b.NewFunctionBuilder().WithFunc(h.fdClose).Export("fd_close")
	b.NewFunctionBuilder().WithFunc(h.fdFdstatGet).Export("fd_fdstat_get")
	b.NewFunctionBuilder().WithFunc(h.fdFdstatSetFlags).Export("fd_fdstat_set_flags")
	b.NewFunctionBuilder().WithFunc(h.fdFilestatGet).Export("fd_filestat_get")
	b.NewFunctionBuilder().WithFunc(h.fdPrestatGet).Export("fd_prestat_get")
	b.NewFunctionBuilder().WithFunc(h.fdPrestatDirName).Export("fd_prestat_dir_name")
	b.NewFunctionBuilder().WithFunc(h.fdRead).Export("fd_read")
	b.NewFunctionBuilder().WithFunc(h.fdSeek).Export("fd_seek")
	b.NewFunctionBuilder().WithFunc(h.fdWrite).Export("fd_write")
	b.NewFunctionBuilder().WithFunc(h.pathFilestatGet).Export("path_filestat_get")
	b.NewFunctionBuilder().WithFunc(h.pathOpen).Export("path_open")
	b.NewFunctionBuilder().WithFunc(h.procExit).Export("proc_exit")
	b.NewFunctionBuilder().WithFunc(h.randomGet).Export("random_get")

	// Sockets: actively forbidden, not merely absent. EACCES keeps the
	// network boundary indistinguishable from a policy denial.
	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, fd, riData, riDataCount, riFlags, resultRoDatalen, resultRoFlags uint32) uint32 {
			return errnoAcces
		}).Export("sock_recv")
	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, fd, siData, siDataCount, siFlags, resultSoDatalen uint32) uint32 {
			return errnoAcces
		}).Export("sock_send")
	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, fd, how uint32) uint32 {
			return errnoAcces
		}).Export("sock_shutdown")
	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, fd, flags, resultFd uint32) uint32 {
			return errnoAcces
		}).Export("sock_accept")

	// Remaining preview1 imports are not supported.
	stub1 := func(ctx context.Context, mod api.Module, a uint32) uint32 { return errnoNosys }
	stub2 := func(ctx context.Context, mod api.Module, a, b uint32) uint32 { return errnoNosys }
	stub3 := func(ctx context.Context, mod api.Module, a, b, c uint32) uint32 { return errnoNosys }
	stub4 := func(ctx context.Context, mod api.Module, a, b, c, d uint32) uint32 { return errnoNosys }

	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, fd uint32, offset, length uint64, advice uint32) uint32 {
			return errnoNosys
		}).Export("fd_advise")
	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, fd uint32, offset, length uint64) uint32 {
			return errnoNosys
		}).Export("fd_allocate")
	b.NewFunctionBuilder().WithFunc(stub1).Export("fd_datasync")
	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, fd uint32, base, inheriting uint64) uint32 {
			return errnoNosys
		}).Export("fd_fdstat_set_rights")
	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, fd uint32, size uint64) uint32 {
			return errnoNosys
		}).Export("fd_filestat_set_size")
	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, fd uint32, atim, mtim uint64, fstFlags uint32) uint32 {
			return errnoNosys
		}).Export("fd_filestat_set_times")
	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, fd, iovs, iovsCount uint32, offset uint64, resultNread uint32) uint32 {
			return errnoNosys
		}).Export("fd_pread")
	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, fd, iovs, iovsCount uint32, offset uint64, resultNwritten uint32) uint32 {
			return errnoNosys
		}).Export("fd_pwrite")
	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, fd, buf, bufLen uint32, cookie uint64, resultBufused uint32) uint32 {
			return errnoNosys
		}).Export("fd_readdir")
	b.NewFunctionBuilder().WithFunc(stub2).Export("fd_renumber")
	b.NewFunctionBuilder().WithFunc(stub1).Export("fd_sync")
	b.NewFunctionBuilder().WithFunc(stub2).Export("fd_tell")
	b.NewFunctionBuilder().WithFunc(stub3).Export("path_create_directory")
	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, fd, flags, path, pathLen uint32, atim, mtim uint64, fstFlags uint32) uint32 {
			return errnoNosys
		}).Export("path_filestat_set_times")
	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, a, b, c, d, e, f, g uint32) uint32 {
			return errnoNosys
		}).Export("path_link")
	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, a, b, c, d, e, f uint32) uint32 {
			return errnoNosys
		}).Export("path_readlink")
	b.NewFunctionBuilder().WithFunc(stub3).Export("path_remove_directory")
	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, a, b, c, d, e, f uint32) uint32 {
			return errnoNosys
		}).Export("path_rename")
	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, a, b, c, d, e uint32) uint32 {
			return errnoNosys
		}).Export("path_symlink")
	b.NewFunctionBuilder().WithFunc(stub3).Export("path_unlink_file")
	b.NewFunctionBuilder().WithFunc(stub4).Export("poll_oneoff")
	b.NewFunctionBuilder().WithFunc(stub1).Export("proc_raise")
	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module) uint32 { return errnoNosys }).
		Export("sched_yield")

	_, err := b.Instantiate(ctx)
	return err
}
