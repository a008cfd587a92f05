// Package toolmgr orchestrates tool execution: it resolves a tool by name,
// converts arguments, checks permissions, dispatches to an execution path and
// shapes the output. Callers depend only on ExecuteTool; whether a call ran
// on a worker, in-process or through a native adapter is invisible to them.
package toolmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/wasmwerk/internal/convert"
	"github.com/codefionn/wasmwerk/internal/logger"
	"github.com/codefionn/wasmwerk/internal/manifest"
	"github.com/codefionn/wasmwerk/internal/registry"
	"github.com/codefionn/wasmwerk/internal/vfs"
	"github.com/codefionn/wasmwerk/internal/wasihost"
	"github.com/codefionn/wasmwerk/internal/worker"
)

// ExecutionResult is the uniform outcome every execution path produces.
// Failures, including permission denials and timeouts, are values here, not
// errors: only authoring bugs surface as Go errors from ExecuteTool.
type ExecutionResult struct {
	Success      bool   `json:"success"`
	Stdout       string `json:"stdout"`
	Stderr       string `json:"stderr"`
	ExitCode     int    `json:"exitCode"`
	Error        string `json:"error,omitempty"`
	StdoutBinary bool   `json:"stdoutBinary,omitempty"`
	Truncated    bool   `json:"truncated,omitempty"`
	TotalBytes   int    `json:"totalBytes,omitempty"`
	TotalLines   int    `json:"totalLines,omitempty"`
	ResultID     string `json:"resultId,omitempty"`
	TimedOut     bool   `json:"timedOut,omitempty"`
}

// PermissionFunc decides whether a tool may use its declared file access for
// this call. Session state, caching and prompting belong to the caller; the
// manager only consults the predicate.
type PermissionFunc func(ctx context.Context, tool string, access manifest.FileAccess) (bool, error)

// NativeTool is a non-WASI adapter: a tool implemented directly in the host
// process but exposed through the same execution contract.
type NativeTool func(ctx context.Context, args map[string]any) (*ExecutionResult, error)

// Options configures a Manager.
type Options struct {
	Registry *registry.Registry
	Workers  *worker.Manager
	// WorkDir roots the real-filesystem bridge used by the in-process path.
	// Empty disables the bridge; file-access tools then see an empty
	// in-memory view.
	WorkDir    string
	Permission PermissionFunc
	// DisableWorkers forces every execution onto the in-process path.
	DisableWorkers bool
}

// Manager is the execution orchestrator.
type Manager struct {
	reg            *registry.Registry
	workers        *worker.Manager
	workDir        string
	permission     PermissionFunc
	disableWorkers bool
	cache          *convert.ResultCache
	log            *logger.Logger

	mu     sync.RWMutex
	native map[string]NativeTool
}

// New creates a Manager from options.
func New(opts Options) *Manager {
	return &Manager{
		reg:            opts.Registry,
		workers:        opts.Workers,
		workDir:        opts.WorkDir,
		permission:     opts.Permission,
		disableWorkers: opts.DisableWorkers,
		cache:          convert.NewResultCache(0),
		native:         make(map[string]NativeTool),
		log:            logger.Global().WithPrefix("toolmgr"),
	}
}

// RegisterNative exposes a host-implemented tool under the execution
// contract. Native tools shadow registry tools of the same name.
func (m *Manager) RegisterNative(name string, fn NativeTool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.native[name] = fn
}

// Output returns the lossless cached output for a result id, or nil.
func (m *Manager) Output(id string) *convert.CachedOutput {
	return m.cache.Get(id)
}

// ExecuteTool runs a registered tool with structured arguments. Runtime
// failures come back inside the result; a non-nil error means the call never
// started (unknown tool, authoring bug in the manifest, bad arguments).
func (m *Manager) ExecuteTool(ctx context.Context, name string, args map[string]any) (*ExecutionResult, error) {
	m.mu.RLock()
	native, ok := m.native[name]
	m.mu.RUnlock()
	if ok {
		return native(ctx, args)
	}

	tool, err := m.reg.Store().Get(name)
	if err != nil {
		return nil, err
	}
	if !tool.Enabled {
		return failed(fmt.Sprintf("tool %s is disabled", name)), nil
	}
	mf := tool.Manifest

	inv, err := convert.BuildInvocation(mf, args)
	if err != nil {
		return nil, err
	}

	access := mf.Policy.FileAccessLevel
	if access.CanRead() || access.CanWrite() {
		allowed, err := m.checkPermission(ctx, name, access)
		if err != nil {
			return nil, err
		}
		if !allowed {
			m.log.Info("permission denied for %s (%s)", name, access)
			return failed(fmt.Sprintf("permission denied: %s requires %s file access", name, access)), nil
		}
	}

	var res *wasihost.Result
	if m.useInProcess(access) {
		res = m.runInProcess(ctx, tool, inv)
	} else {
		res = m.runOnWorker(ctx, tool, inv)
	}
	return m.shape(res), nil
}

func (m *Manager) checkPermission(ctx context.Context, name string, access manifest.FileAccess) (bool, error) {
	if m.permission == nil {
		return true, nil
	}
	return m.permission(ctx, name, access)
}

// useInProcess selects the execution path: workers are primary, but real
// filesystem access only exists in-process.
func (m *Manager) useInProcess(access manifest.FileAccess) bool {
	if m.disableWorkers || m.workers == nil {
		return true
	}
	return (access.CanRead() || access.CanWrite()) && m.workDir != ""
}

// runOnWorker executes on a one-shot isolated worker with an in-memory VFS.
func (m *Manager) runOnWorker(ctx context.Context, tool *registry.StoredTool, inv *convert.Invocation) *wasihost.Result {
	mf := tool.Manifest
	return m.workers.Execute(ctx, tool.Wasm, inv.Argv, worker.ExecuteOptions{
		TimeoutMs:   int(mf.Timeout() / time.Millisecond),
		MemoryPages: mf.MemoryPages(),
		Stdin:       inv.Stdin,
		StdinBinary: inv.StdinBinary,
		FileAccess:  string(mf.Policy.FileAccessLevel),
	})
}

// runInProcess executes on the calling goroutine, bridging the tool's file
// view to a real directory when one is configured. There is no true
// cancellation on this path: the module runs until it finishes or its own
// deadline stops it.
func (m *Manager) runInProcess(ctx context.Context, tool *registry.StoredTool, inv *convert.Invocation) *wasihost.Result {
	mf := tool.Manifest
	var v *vfs.VirtualFS
	if m.workDir != "" {
		v = vfs.New(mf.Policy.FileAccessLevel, vfs.NewDirStore(m.workDir))
	} else {
		v = vfs.NewInMemory(mf.Policy.FileAccessLevel, nil)
	}
	return wasihost.Execute(ctx, tool.Wasm, inv.Argv, wasihost.Options{
		Timeout:     mf.Timeout(),
		MemoryPages: mf.MemoryPages(),
		Stdin:       inv.Stdin,
		StdinBinary: inv.StdinBinary,
	}, v)
}

// shape folds a raw execution result into the external contract, bounding
// stdout through the result cache.
func (m *Manager) shape(res *wasihost.Result) *ExecutionResult {
	out := convert.ShapeOutput(m.cache, res)
	return &ExecutionResult{
		Success:      res.Success(),
		Stdout:       out.Stdout,
		Stderr:       res.Stderr,
		ExitCode:     res.ExitCode,
		Error:        res.Err,
		StdoutBinary: out.Binary,
		Truncated:    out.Truncated,
		TotalBytes:   out.TotalBytes,
		TotalLines:   out.TotalLines,
		ResultID:     out.ResultID,
		TimedOut:     res.TimedOut,
	}
}

func failed(msg string) *ExecutionResult {
	return &ExecutionResult{
		Success:  false,
		ExitCode: 1,
		Error:    msg,
		Stderr:   msg,
	}
}
