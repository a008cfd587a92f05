package manifest

import (
	"testing"
	"time"

	"github.com/codefionn/wasmwerk/internal/consts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	m, err := Parse([]byte(`{"name":"wc","version":"1.0.0"}`))
	require.NoError(t, err)
	assert.Equal(t, ConventionCLI, m.Policy.CallingConvention)
	assert.Equal(t, AccessNone, m.Policy.FileAccessLevel)
	assert.Equal(t, consts.DefaultExecutionTimeout, m.Timeout())
	assert.Equal(t, uint32(consts.DefaultMemoryPages), m.MemoryPages())
}

func TestParseRejectsBadManifests(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{`},
		{"missing name", `{"version":"1.0.0"}`},
		{"uppercase name", `{"name":"WC","version":"1.0.0"}`},
		{"name starts with digit", `{"name":"7zip","version":"1.0.0"}`},
		{"missing version", `{"name":"wc"}`},
		{"unknown convention", `{"name":"wc","version":"1","policy":{"callingConvention":"getopt"}}`},
		{"unknown access level", `{"name":"wc","version":"1","policy":{"fileAccessLevel":"all"}}`},
		{"unknown param type", `{"name":"wc","version":"1","parameters":[{"name":"x","type":"blob"}]}`},
		{"unnamed param", `{"name":"wc","version":"1","parameters":[{"type":"string"}]}`},
		{"duplicate param", `{"name":"wc","version":"1","parameters":[{"name":"x","type":"string"},{"name":"x","type":"string"}]}`},
		{"undeclared stdin param", `{"name":"wc","version":"1","policy":{"stdinParamName":"input"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.json))
			require.Error(t, err)
			if tt.name != "not json" {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}

func TestStdinParamMustBeDeclared(t *testing.T) {
	m, err := Parse([]byte(`{
		"name": "base64",
		"version": "1.0.0",
		"parameters": [{"name": "input", "type": "string"}],
		"policy": {"callingConvention": "positional", "stdinParamName": "input"}
	}`))
	require.NoError(t, err)
	p, ok := m.Param("input")
	require.True(t, ok)
	assert.Equal(t, TypeString, p.Type)
}

func TestTimeoutClamping(t *testing.T) {
	tests := []struct {
		name      string
		timeoutMs int
		want      time.Duration
	}{
		{"zero means default", 0, consts.DefaultExecutionTimeout},
		{"negative means default", -5, consts.DefaultExecutionTimeout},
		{"below floor", 1, consts.MinExecutionTimeout},
		{"in range", 5000, 5 * time.Second},
		{"above ceiling", 10_000_000, consts.MaxExecutionTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &ToolManifest{Policy: ExecutionPolicy{TimeoutMs: tt.timeoutMs}}
			assert.Equal(t, tt.want, m.Timeout())
		})
	}
}

func TestMemoryPagesClamping(t *testing.T) {
	m := &ToolManifest{Policy: ExecutionPolicy{MemoryLimitPages: 100000}}
	assert.Equal(t, uint32(consts.MaxMemoryPages), m.MemoryPages())

	m.Policy.MemoryLimitPages = 512
	assert.Equal(t, uint32(512), m.MemoryPages())
}

func TestFileAccessPredicates(t *testing.T) {
	assert.False(t, AccessNone.CanRead())
	assert.False(t, AccessNone.CanWrite())
	assert.True(t, AccessRead.CanRead())
	assert.False(t, AccessRead.CanWrite())
	assert.False(t, AccessWrite.CanRead())
	assert.True(t, AccessWrite.CanWrite())
	assert.True(t, AccessReadWrite.CanRead())
	assert.True(t, AccessReadWrite.CanWrite())
}
