package convert

import (
	"encoding/base64"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/codefionn/wasmwerk/internal/consts"
	"github.com/codefionn/wasmwerk/internal/wasihost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeSmallTextInline(t *testing.T) {
	cache := NewResultCache(8)
	out := ShapeOutput(cache, &wasihost.Result{Stdout: "hello\nworld\n"})

	assert.Equal(t, "hello\nworld\n", out.Stdout)
	assert.False(t, out.Truncated)
	assert.False(t, out.Binary)
	assert.Empty(t, out.ResultID)
	assert.Equal(t, 12, out.TotalBytes)
	assert.Equal(t, 2, out.TotalLines)
	assert.Equal(t, 0, cache.Len(), "small output is not cached")
}

func TestShapeLongTextCachedWithPreview(t *testing.T) {
	cache := NewResultCache(8)
	var sb strings.Builder
	for i := 0; i < 500; i++ {
		sb.WriteString("line of output text\n")
	}
	full := sb.String()

	out := ShapeOutput(cache, &wasihost.Result{Stdout: full})

	assert.True(t, out.Truncated)
	assert.Equal(t, len(full), out.TotalBytes)
	assert.Equal(t, 500, out.TotalLines)
	assert.LessOrEqual(t, len(out.Stdout), consts.PreviewMaxBytes)
	assert.LessOrEqual(t, strings.Count(out.Stdout, "\n"), consts.PreviewMaxLines)
	assert.True(t, strings.HasPrefix(full, out.Stdout))

	require.NotEmpty(t, out.ResultID)
	cached := cache.Get(out.ResultID)
	require.NotNil(t, cached)
	assert.Equal(t, full, string(cached.Data))
	assert.False(t, cached.Binary)
}

func TestShapeManyShortLinesBoundedByLineCap(t *testing.T) {
	cache := NewResultCache(8)
	full := strings.Repeat("x\n", 100) // 200 bytes, 100 lines

	out := ShapeOutput(cache, &wasihost.Result{Stdout: full})

	assert.True(t, out.Truncated)
	assert.Equal(t, strings.Repeat("x\n", consts.PreviewMaxLines), out.Stdout)
	assert.Equal(t, 100, out.TotalLines)
}

func TestShapeBinaryBase64AndLosslessCache(t *testing.T) {
	cache := NewResultCache(8)
	raw := []byte{0x00, 0x01, 0xfe, 0xff, 0x42}
	res := &wasihost.Result{Stdout: string(raw), StdoutBinary: raw}

	out := ShapeOutput(cache, res)

	assert.True(t, out.Binary)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), out.Stdout)
	assert.Equal(t, len(raw), out.TotalBytes)

	require.NotEmpty(t, out.ResultID)
	cached := cache.Get(out.ResultID)
	require.NotNil(t, cached)
	assert.Equal(t, raw, cached.Data)
	assert.True(t, cached.Binary)
}

func TestShapeBinaryPreviewStaysDecodable(t *testing.T) {
	cache := NewResultCache(8)
	raw := make([]byte, 2*consts.PreviewMaxBytes)
	for i := range raw {
		raw[i] = byte(i)
	}
	out := ShapeOutput(cache, &wasihost.Result{StdoutBinary: raw})

	require.True(t, out.Truncated)
	assert.Zero(t, len(out.Stdout)%4, "preview must end on a base64 quantum")
	decoded, err := base64.StdEncoding.DecodeString(out.Stdout)
	require.NoError(t, err)
	assert.Equal(t, raw[:len(decoded)], decoded)
}

func TestShapeTextPreviewNeverSplitsRune(t *testing.T) {
	cache := NewResultCache(8)
	// Single long line: the byte cap lands one byte into the final rune.
	full := strings.Repeat("a", consts.PreviewMaxBytes-1) + "世界"

	out := ShapeOutput(cache, &wasihost.Result{Stdout: full})

	require.True(t, out.Truncated)
	assert.True(t, utf8.ValidString(out.Stdout))
	assert.Equal(t, strings.Repeat("a", consts.PreviewMaxBytes-1), out.Stdout)
}

func TestResultCacheEvictsOldest(t *testing.T) {
	cache := NewResultCache(2)
	id1 := cache.Put([]byte("one"), false)
	id2 := cache.Put([]byte("two"), false)
	id3 := cache.Put([]byte("three"), false)

	assert.Nil(t, cache.Get(id1))
	assert.NotNil(t, cache.Get(id2))
	assert.NotNil(t, cache.Get(id3))
	assert.Equal(t, 2, cache.Len())
}

func TestResultCacheCopiesData(t *testing.T) {
	cache := NewResultCache(2)
	buf := []byte("abc")
	id := cache.Put(buf, false)
	buf[0] = 'z'
	assert.Equal(t, "abc", string(cache.Get(id).Data))
}

func TestCountLines(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"a\n", 1},
		{"a\nb", 2},
		{"a\nb\n", 2},
	}
	for _, tt := range tests {
		if got := countLines(tt.in); got != tt.want {
			t.Errorf("countLines(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
