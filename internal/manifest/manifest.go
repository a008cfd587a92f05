// Package manifest defines the declarative schema a tool ships with: its
// parameters, calling convention and execution policy. A manifest is validated
// once when loaded and treated as immutable afterwards.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/codefionn/wasmwerk/internal/consts"
)

// ErrInvalid marks any manifest validation failure.
var ErrInvalid = errors.New("invalid manifest")

// ParamType enumerates the supported parameter types.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeBinary  ParamType = "binary"
)

// CallingConvention selects how structured arguments become argv/stdin.
type CallingConvention string

const (
	// ConventionCLI emits --key value flags.
	ConventionCLI CallingConvention = "cli"
	// ConventionPositional emits bare values in declared order.
	ConventionPositional CallingConvention = "positional"
	// ConventionJSON serializes arguments as a single JSON object.
	ConventionJSON CallingConvention = "json"
)

// FileAccess is the manifest-declared virtual filesystem policy.
type FileAccess string

const (
	AccessNone      FileAccess = "none"
	AccessRead      FileAccess = "read"
	AccessWrite     FileAccess = "write"
	AccessReadWrite FileAccess = "readwrite"
)

// CanRead reports whether the policy permits reading virtual files.
func (a FileAccess) CanRead() bool {
	return a == AccessRead || a == AccessReadWrite
}

// CanWrite reports whether the policy permits writing virtual files.
func (a FileAccess) CanWrite() bool {
	return a == AccessWrite || a == AccessReadWrite
}

// ParamSpec describes one declared tool parameter.
type ParamSpec struct {
	Name        string      `json:"name"`
	Type        ParamType   `json:"type"`
	Description string      `json:"description,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
	Default     interface{} `json:"default,omitempty"`
}

// ExecutionPolicy bounds a single tool invocation.
type ExecutionPolicy struct {
	CallingConvention CallingConvention `json:"callingConvention"`
	FileAccessLevel   FileAccess        `json:"fileAccessLevel"`
	MemoryLimitPages  uint32            `json:"memoryLimitPages,omitempty"`
	TimeoutMs         int               `json:"timeoutMs,omitempty"`
	StdinParamName    string            `json:"stdinParamName,omitempty"`
}

// ToolManifest is the full declarative description of a tool.
type ToolManifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description,omitempty"`
	Parameters  []ParamSpec     `json:"parameters,omitempty"`
	Returns     string          `json:"returns,omitempty"`
	Policy      ExecutionPolicy `json:"policy"`
	Category    string          `json:"category,omitempty"`
	Pipeable    bool            `json:"pipeable,omitempty"`
}

var nameRe = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`)

// Parse unmarshals and validates a manifest document.
func Parse(data []byte) (*ToolManifest, error) {
	var m ToolManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks structural constraints. Defaults are applied in place:
// a missing calling convention means cli, a missing access level means none.
func (m *ToolManifest) Validate() error {
	if !nameRe.MatchString(m.Name) {
		return fmt.Errorf("%w: tool name %q must match %s", ErrInvalid, m.Name, nameRe.String())
	}
	if m.Version == "" {
		return fmt.Errorf("%w: tool %q has no version", ErrInvalid, m.Name)
	}

	if m.Policy.CallingConvention == "" {
		m.Policy.CallingConvention = ConventionCLI
	}
	switch m.Policy.CallingConvention {
	case ConventionCLI, ConventionPositional, ConventionJSON:
	default:
		return fmt.Errorf("%w: unknown calling convention %q", ErrInvalid, m.Policy.CallingConvention)
	}

	if m.Policy.FileAccessLevel == "" {
		m.Policy.FileAccessLevel = AccessNone
	}
	switch m.Policy.FileAccessLevel {
	case AccessNone, AccessRead, AccessWrite, AccessReadWrite:
	default:
		return fmt.Errorf("%w: unknown file access level %q", ErrInvalid, m.Policy.FileAccessLevel)
	}

	seen := make(map[string]bool, len(m.Parameters))
	for i := range m.Parameters {
		p := &m.Parameters[i]
		if p.Name == "" {
			return fmt.Errorf("%w: parameter %d of %q has no name", ErrInvalid, i, m.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate parameter %q", ErrInvalid, p.Name)
		}
		seen[p.Name] = true
		switch p.Type {
		case TypeString, TypeNumber, TypeBoolean, TypeArray, TypeBinary:
		default:
			return fmt.Errorf("%w: parameter %q has unknown type %q", ErrInvalid, p.Name, p.Type)
		}
	}

	if sp := m.Policy.StdinParamName; sp != "" && !seen[sp] {
		return fmt.Errorf("%w: stdin parameter %q is not declared", ErrInvalid, sp)
	}
	return nil
}

// Param looks up a declared parameter by name.
func (m *ToolManifest) Param(name string) (*ParamSpec, bool) {
	for i := range m.Parameters {
		if m.Parameters[i].Name == name {
			return &m.Parameters[i], true
		}
	}
	return nil, false
}

// Timeout returns the manifest timeout clamped to the allowed range.
func (m *ToolManifest) Timeout() time.Duration {
	if m.Policy.TimeoutMs <= 0 {
		return consts.DefaultExecutionTimeout
	}
	d := time.Duration(m.Policy.TimeoutMs) * time.Millisecond
	if d < consts.MinExecutionTimeout {
		return consts.MinExecutionTimeout
	}
	if d > consts.MaxExecutionTimeout {
		return consts.MaxExecutionTimeout
	}
	return d
}

// MemoryPages returns the manifest memory ceiling clamped to the allowed range.
func (m *ToolManifest) MemoryPages() uint32 {
	if m.Policy.MemoryLimitPages == 0 {
		return consts.DefaultMemoryPages
	}
	if m.Policy.MemoryLimitPages > consts.MaxMemoryPages {
		return consts.MaxMemoryPages
	}
	return m.Policy.MemoryLimitPages
}
