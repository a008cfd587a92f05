package vfs

import (
	"strings"
	"testing"

	"github.com/codefionn/wasmwerk/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdinRoundTrip(t *testing.T) {
	v := NewInMemory(manifest.AccessNone, nil)

	v.SetStdin("hello world")
	got := v.ReadStdin(len("hello world"))
	assert.Equal(t, "hello world", string(got))
	assert.Nil(t, v.ReadStdin(1), "second read past the end is EOF")

	payload := []byte{0x00, 0xff, 0x80, 0x01}
	v.SetStdinBytes(payload)
	assert.Equal(t, payload, v.ReadStdin(len(payload)))
	assert.Nil(t, v.ReadStdin(1))
}

func TestStdinLargePayloadExact(t *testing.T) {
	big := strings.Repeat("0123456789abcdef", 8192) // 128KB
	v := NewInMemory(manifest.AccessNone, nil)
	v.SetStdin(big)

	var out []byte
	for {
		chunk := v.ReadStdin(4096)
		if len(chunk) == 0 {
			break
		}
		out = append(out, chunk...)
	}
	assert.Equal(t, big, string(out))
}

func TestStdinChunkedReads(t *testing.T) {
	v := NewInMemory(manifest.AccessNone, nil)
	v.SetStdin("abcdef")
	assert.Equal(t, "abc", string(v.ReadStdin(3)))
	assert.Equal(t, "def", string(v.ReadStdin(100)))
	assert.Nil(t, v.ReadStdin(100))
}

func TestSetStdinResetsCursor(t *testing.T) {
	v := NewInMemory(manifest.AccessNone, nil)
	v.SetStdin("first")
	v.ReadStdin(5)
	v.SetStdin("second")
	assert.Equal(t, "second", string(v.ReadStdin(6)))
}

func TestStreamCaptureOrder(t *testing.T) {
	v := NewInMemory(manifest.AccessNone, nil)
	v.WriteStdout([]byte("a"))
	v.WriteStderr([]byte("x"))
	v.WriteStdout([]byte("b"))
	v.WriteStderr([]byte("y"))
	assert.Equal(t, "ab", v.Stdout())
	assert.Equal(t, "xy", v.Stderr())
}

func TestWriteCopiesCallerBuffer(t *testing.T) {
	v := NewInMemory(manifest.AccessNone, nil)
	buf := []byte("abc")
	v.WriteStdout(buf)
	buf[0] = 'z'
	assert.Equal(t, "abc", v.Stdout())
}

func TestResetClearsEverything(t *testing.T) {
	v := NewInMemory(manifest.AccessReadWrite, nil)
	v.SetStdin("in")
	v.WriteStdout([]byte("out"))
	v.WriteStderr([]byte("err"))
	fd, err := v.OpenFile("scratch.txt", ModeWrite)
	require.NoError(t, err)

	v.Reset()

	assert.Empty(t, v.Stdout())
	assert.Empty(t, v.Stderr())
	assert.Empty(t, v.StdoutBytes())
	assert.Empty(t, v.StderrBytes())
	assert.Nil(t, v.ReadStdin(10))
	assert.False(t, v.IsOpen(fd))
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/etc/passwd", "etc/passwd"},
		{"a/b/c", "a/b/c"},
		{"./a/./b", "a/b"},
		{"a//b", "a/b"},
		{"a/b/../c", "a/c"},
		{"../../a", "a"},
		{"..", ""},
		{"/", ""},
		{"", ""},
		{"a/../../..", ""},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAccessPolicyMatrix(t *testing.T) {
	files := map[string][]byte{"data.txt": []byte("payload")}
	tests := []struct {
		access    manifest.FileAccess
		wantRead  bool
		wantWrite bool
	}{
		{manifest.AccessNone, false, false},
		{manifest.AccessRead, true, false},
		{manifest.AccessWrite, false, true},
		{manifest.AccessReadWrite, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.access), func(t *testing.T) {
			v := NewInMemory(tt.access, files)

			_, err := v.ReadFile("data.txt")
			if tt.wantRead {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrAccessDenied)
			}

			err = v.WriteFile("new.txt", []byte("x"))
			if tt.wantWrite {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrAccessDenied)
			}
		})
	}
}

func TestFileExistsDeniedReadsAsMissing(t *testing.T) {
	v := NewInMemory(manifest.AccessNone, map[string][]byte{"data.txt": []byte("x")})
	assert.False(t, v.FileExists("data.txt"))

	v = NewInMemory(manifest.AccessRead, map[string][]byte{"data.txt": []byte("x")})
	assert.True(t, v.FileExists("data.txt"))
	assert.False(t, v.FileExists("missing.txt"))
}

func TestOpenReadSeekClose(t *testing.T) {
	v := NewInMemory(manifest.AccessRead, map[string][]byte{"a.txt": []byte("0123456789")})

	fd, err := v.OpenFile("/a.txt", ModeRead)
	require.NoError(t, err)
	require.GreaterOrEqual(t, fd, firstFileFd)

	got, err := v.ReadFd(fd, 4)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(got))

	pos, err := v.SeekFd(fd, -2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(8), pos)

	got, err = v.ReadFd(fd, 100)
	require.NoError(t, err)
	assert.Equal(t, "89", string(got))

	got, err = v.ReadFd(fd, 100)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, v.CloseFd(fd))
	assert.False(t, v.IsOpen(fd))
}

func TestWriteFdFlushesOnClose(t *testing.T) {
	v := NewInMemory(manifest.AccessReadWrite, nil)

	fd, err := v.OpenFile("out.txt", ModeWrite)
	require.NoError(t, err)
	_, err = v.WriteFd(fd, []byte("hello "))
	require.NoError(t, err)
	_, err = v.WriteFd(fd, []byte("world"))
	require.NoError(t, err)

	// Nothing lands in the store until close.
	_, err = v.ReadFile("out.txt")
	assert.Error(t, err)

	require.NoError(t, v.CloseFd(fd))
	data, err := v.ReadFile("out.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestCloseStandardStreamsIsNoop(t *testing.T) {
	v := NewInMemory(manifest.AccessNone, nil)
	assert.NoError(t, v.CloseFd(FdStdin))
	assert.NoError(t, v.CloseFd(FdStdout))
	assert.NoError(t, v.CloseFd(FdStderr))
	assert.NoError(t, v.CloseFd(99), "unknown fd close is a no-op")
}

func TestBadDescriptorOps(t *testing.T) {
	v := NewInMemory(manifest.AccessReadWrite, map[string][]byte{"a.txt": []byte("x")})

	_, err := v.ReadFd(42, 10)
	assert.ErrorIs(t, err, ErrBadDescriptor)
	_, err = v.WriteFd(42, []byte("x"))
	assert.ErrorIs(t, err, ErrBadDescriptor)
	_, err = v.SeekFd(42, 0, 0)
	assert.ErrorIs(t, err, ErrBadDescriptor)

	// Mode mismatches are descriptor errors too.
	rfd, err := v.OpenFile("a.txt", ModeRead)
	require.NoError(t, err)
	_, err = v.WriteFd(rfd, []byte("x"))
	assert.ErrorIs(t, err, ErrBadDescriptor)
}

func TestMemStoreListDir(t *testing.T) {
	s := NewMemStore(map[string][]byte{
		"a.txt":       []byte("1"),
		"sub/b.txt":   []byte("22"),
		"sub/c/d.txt": []byte("333"),
	})

	root, err := s.ListDir("")
	require.NoError(t, err)
	require.Len(t, root, 2)
	assert.Equal(t, "a.txt", root[0].Path)
	assert.Equal(t, "sub", root[1].Path)
	assert.True(t, root[1].IsDir)

	sub, err := s.ListDir("sub")
	require.NoError(t, err)
	require.Len(t, sub, 2)
	assert.Equal(t, "sub/b.txt", sub[0].Path)
	assert.Equal(t, "sub/c", sub[1].Path)
	assert.True(t, sub[1].IsDir)
}

func TestDirStoreBridge(t *testing.T) {
	dir := t.TempDir()
	s := NewDirStore(dir)

	require.NoError(t, s.WriteFile("nested/out.txt", []byte("content")))
	data, err := s.ReadFile("nested/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	fi, err := s.Stat("nested/out.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(7), fi.Size)

	entries, err := s.ListDir("nested")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "nested/out.txt", entries[0].Path)
}
