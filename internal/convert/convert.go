// Package convert turns structured tool arguments into the argv/stdin shape a
// WASI command expects, and shapes raw execution output back into a bounded,
// model-friendly form.
package convert

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/codefionn/wasmwerk/internal/manifest"
)

// ErrConfiguration marks authoring bugs in a manifest: an unsupported calling
// convention or more than one binary parameter. It is raised during
// conversion, before any execution starts.
var ErrConfiguration = errors.New("configuration error")

// Invocation is the fully converted input for one execution.
type Invocation struct {
	// Argv is the argument vector; Argv[0] is the tool name.
	Argv []string
	// Stdin is the text standard input, extracted from the stdin parameter or
	// the serialized JSON payload.
	Stdin string
	// StdinBinary is decoded binary input. When set it takes precedence over
	// Stdin all the way down to the sandbox.
	StdinBinary []byte
}

// BuildInvocation converts args according to the manifest's declared calling
// convention. The convention is resolved once, up front; per-argument handling
// never re-derives it.
func BuildInvocation(m *manifest.ToolManifest, args map[string]any) (*Invocation, error) {
	binaryParam, err := findBinaryParam(m)
	if err != nil {
		return nil, err
	}

	inv := &Invocation{Argv: []string{m.Name}}
	rest := make(map[string]any, len(args))
	for k, v := range args {
		rest[k] = v
	}

	if binaryParam != "" {
		if raw, ok := rest[binaryParam]; ok {
			delete(rest, binaryParam)
			text, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("binary parameter %q must be a base64 string", binaryParam)
			}
			decoded, err := base64.StdEncoding.DecodeString(text)
			if err != nil {
				return nil, fmt.Errorf("binary parameter %q is not valid base64: %w", binaryParam, err)
			}
			inv.StdinBinary = decoded
		}
	}

	// A declared stdin parameter never reaches argv or the JSON payload; its
	// value travels as text stdin, byte-for-byte, including the empty string.
	stdinParam := m.Policy.StdinParamName
	if stdinParam != "" {
		if raw, ok := rest[stdinParam]; ok {
			delete(rest, stdinParam)
			inv.Stdin = valueString(raw)
		}
	}

	switch m.Policy.CallingConvention {
	case manifest.ConventionCLI:
		inv.Argv = append(inv.Argv, cliArgs(m, rest)...)
	case manifest.ConventionPositional:
		inv.Argv = append(inv.Argv, positionalArgs(m, rest)...)
	case manifest.ConventionJSON:
		payload, err := json.Marshal(jsonPayload(rest))
		if err != nil {
			return nil, fmt.Errorf("failed to serialize arguments: %w", err)
		}
		if stdinParam != "" {
			// stdin already carries the named parameter; remaining arguments
			// ride along as one trailing argv element.
			if len(rest) > 0 {
				inv.Argv = append(inv.Argv, string(payload))
			}
		} else {
			inv.Stdin = string(payload)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported calling convention %q", ErrConfiguration, m.Policy.CallingConvention)
	}

	return inv, nil
}

// findBinaryParam returns the single binary-typed parameter name, or an error
// when the manifest declares more than one.
func findBinaryParam(m *manifest.ToolManifest) (string, error) {
	name := ""
	for _, p := range m.Parameters {
		if p.Type != manifest.TypeBinary {
			continue
		}
		if name != "" {
			return "", fmt.Errorf("%w: multiple binary parameters (%q, %q)", ErrConfiguration, name, p.Name)
		}
		name = p.Name
	}
	return name, nil
}

// cliArgs emits --key value pairs in schema order for every defined non-nil
// argument. Boolean true becomes a bare flag; boolean false is omitted
// entirely. Arguments not declared in the schema follow, sorted by name.
func cliArgs(m *manifest.ToolManifest, args map[string]any) []string {
	var out []string
	emit := func(key string, val any) {
		if val == nil {
			return
		}
		if b, ok := val.(bool); ok {
			if b {
				out = append(out, "--"+key)
			}
			return
		}
		out = append(out, "--"+key, valueString(val))
	}

	declared := make(map[string]bool, len(m.Parameters))
	for _, p := range m.Parameters {
		declared[p.Name] = true
		if val, ok := args[p.Name]; ok {
			emit(p.Name, val)
		}
	}

	extra := make([]string, 0)
	for k := range args {
		if !declared[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		emit(k, args[k])
	}
	return out
}

// positionalArgs emits required parameters first, in declared schema order,
// then the remaining declared parameters, each string-coerced. Input key
// order never matters.
func positionalArgs(m *manifest.ToolManifest, args map[string]any) []string {
	var out []string
	for _, p := range m.Parameters {
		if !p.Required {
			continue
		}
		if val, ok := args[p.Name]; ok && val != nil {
			out = append(out, valueString(val))
		}
	}
	for _, p := range m.Parameters {
		if p.Required {
			continue
		}
		if val, ok := args[p.Name]; ok && val != nil {
			out = append(out, valueString(val))
		}
	}
	return out
}

// jsonPayload keeps map semantics stable for serialization: nil values are
// dropped rather than encoded as null.
func jsonPayload(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// valueString coerces a single argument value to its argv string form.
func valueString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
