package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/wasmwerk/internal/consts"
	"github.com/codefionn/wasmwerk/internal/logger"
	"github.com/codefionn/wasmwerk/internal/manifest"
	"github.com/codefionn/wasmwerk/internal/vfs"
	"github.com/codefionn/wasmwerk/internal/wasihost"
	"github.com/google/uuid"
)

// timerGrace is how far beyond the in-sandbox deadline the manager-level
// backstop timer fires. The sandbox deadline normally wins; the backstop only
// matters if the runtime fails to interrupt the guest.
const timerGrace = 2 * time.Second

// pendingExecution tracks one in-flight request. Exactly one of the three
// settle paths (worker finished, backstop timer, explicit cancel) may deliver
// into ch; the others find the entry gone and drop their result.
type pendingExecution struct {
	id     string
	ch     chan *wasihost.Result
	cancel context.CancelFunc
	timer  *time.Timer
}

// Manager dispatches executions to one-shot workers and arbitrates between
// completion, timeout and cancellation.
type Manager struct {
	mu      sync.Mutex
	pending map[string]*pendingExecution
	closed  bool
	log     *logger.Logger
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		pending: make(map[string]*pendingExecution),
		log:     logger.Global().WithPrefix("worker"),
	}
}

// Execute runs one WASM binary on a fresh worker and blocks until the request
// settles. The result is never nil.
func (m *Manager) Execute(ctx context.Context, wasmBinary []byte, args []string, opts ExecuteOptions) *wasihost.Result {
	req := &ExecuteRequest{
		Type:       MessageExecute,
		ID:         uuid.NewString(),
		WasmBinary: wasmBinary,
		Args:       args,
		Options:    opts,
	}
	return m.dispatch(ctx, req)
}

func (m *Manager) dispatch(ctx context.Context, req *ExecuteRequest) *wasihost.Result {
	hostOpts := req.Options.hostOptions()
	hostOpts.Normalize()

	runCtx, cancel := context.WithCancel(ctx)
	p := &pendingExecution{
		id:     req.ID,
		ch:     make(chan *wasihost.Result, 1),
		cancel: cancel,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return &wasihost.Result{ExitCode: 1, Err: "worker manager is shut down"}
	}
	m.pending[req.ID] = p
	// Backstop: if the sandbox deadline fails to stop the guest, force the
	// request to settle and tear the worker down.
	p.timer = time.AfterFunc(hostOpts.Timeout+timerGrace, func() {
		m.log.Warn("backstop timer fired for request %s", req.ID)
		m.settle(req.ID, &wasihost.Result{
			ExitCode: 1,
			TimedOut: true,
			Err:      fmt.Sprintf("execution timed out after %s", hostOpts.Timeout),
		})
		cancel()
	})
	m.mu.Unlock()

	go m.runWorker(runCtx, req, hostOpts)

	res := <-p.ch
	cancel()
	return res
}

// runWorker is the one-shot worker body: execute, report, exit. Results that
// arrive after the request already settled are dropped.
func (m *Manager) runWorker(ctx context.Context, req *ExecuteRequest, opts wasihost.Options) {
	access := manifest.FileAccess(req.Options.FileAccess)
	if access == "" {
		access = manifest.AccessNone
	}
	v := vfs.NewInMemory(access, opts.Files)
	res := wasihost.Execute(ctx, req.WasmBinary, req.Args, opts, v)
	msg := responseFrom(req.ID, res)
	if !m.settle(req.ID, resultFrom(msg)) {
		m.log.Debug("dropping late result for request %s", req.ID)
	}
}

// settle delivers a result for id exactly once. It reports false when the
// request already settled or was never registered.
func (m *Manager) settle(id string, res *wasihost.Result) bool {
	m.mu.Lock()
	p, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
		if p.timer != nil {
			p.timer.Stop()
		}
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	p.ch <- res
	return true
}

// Cancel forcibly terminates one in-flight request. It reports whether the
// request was still pending.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	p, ok := m.pending[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.log.Info("canceling request %s", id)
	settled := m.settle(id, &wasihost.Result{ExitCode: 1, Err: "execution canceled"})
	p.cancel()
	return settled
}

// CancelAll forcibly terminates every in-flight request and reports how many
// were settled.
func (m *Manager) CancelAll() int {
	m.mu.Lock()
	ids := make([]string, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	n := 0
	for _, id := range ids {
		if m.Cancel(id) {
			n++
		}
	}
	return n
}

// PendingCount returns the number of in-flight requests.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Close cancels everything in flight and rejects new requests.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.CancelAll()
}

// DefaultTimeoutMs is the wire-protocol default when a request carries no
// explicit timeout.
const DefaultTimeoutMs = int(consts.DefaultExecutionTimeout / time.Millisecond)
