// Package worker runs sandboxed executions on one-shot worker goroutines.
// Each request gets a fresh runtime; nothing is pooled or reused, so a
// misbehaving tool can never poison a later execution.
package worker

import (
	"time"

	"github.com/codefionn/wasmwerk/internal/wasihost"
)

// MessageType discriminates messages on the worker wire protocol.
type MessageType string

const (
	MessageExecute  MessageType = "execute"
	MessageResult   MessageType = "result"
	MessageError    MessageType = "error"
	MessageProgress MessageType = "progress"
)

// ExecuteOptions are the JSON-portable per-request resource bounds.
type ExecuteOptions struct {
	TimeoutMs   int               `json:"timeoutMs,omitempty"`
	MemoryPages uint32            `json:"memoryPages,omitempty"`
	Stdin       string            `json:"stdin,omitempty"`
	StdinBinary []byte            `json:"stdinBinary,omitempty"`
	Files       map[string][]byte `json:"files,omitempty"`
	FileAccess  string            `json:"fileAccess,omitempty"`
}

// ExecuteRequest asks a worker to run one WASM binary to completion.
type ExecuteRequest struct {
	Type       MessageType    `json:"type"`
	ID         string         `json:"id"`
	WasmBinary []byte         `json:"wasmBinary"`
	Args       []string       `json:"args"`
	Options    ExecuteOptions `json:"options"`
}

// ResponseMessage is what a worker sends back: a terminal result or error,
// or a non-terminal progress notification.
type ResponseMessage struct {
	Type         MessageType `json:"type"`
	ID           string      `json:"id"`
	ExitCode     int         `json:"exitCode"`
	Stdout       string      `json:"stdout"`
	StdoutBinary []byte      `json:"stdoutBinary,omitempty"`
	Stderr       string      `json:"stderr"`
	Error        string      `json:"error,omitempty"`
	TimedOut     bool        `json:"timedOut,omitempty"`
}

// hostOptions converts the wire options into execution options.
func (o ExecuteOptions) hostOptions() wasihost.Options {
	return wasihost.Options{
		Timeout:     time.Duration(o.TimeoutMs) * time.Millisecond,
		MemoryPages: o.MemoryPages,
		Stdin:       o.Stdin,
		StdinBinary: o.StdinBinary,
		Files:       o.Files,
	}
}

// responseFrom shapes an execution result as a terminal wire message.
func responseFrom(id string, res *wasihost.Result) *ResponseMessage {
	msg := &ResponseMessage{
		Type:         MessageResult,
		ID:           id,
		ExitCode:     res.ExitCode,
		Stdout:       res.Stdout,
		StdoutBinary: res.StdoutBinary,
		Stderr:       res.Stderr,
		TimedOut:     res.TimedOut,
	}
	if res.Err != "" {
		msg.Type = MessageError
		msg.Error = res.Err
	}
	return msg
}

// resultFrom is the inverse of responseFrom, used when a settled wire message
// is folded back into an execution result.
func resultFrom(msg *ResponseMessage) *wasihost.Result {
	return &wasihost.Result{
		ExitCode:     msg.ExitCode,
		Stdout:       msg.Stdout,
		StdoutBinary: msg.StdoutBinary,
		Stderr:       msg.Stderr,
		Err:          msg.Error,
		TimedOut:     msg.TimedOut,
	}
}
