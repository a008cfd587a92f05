package convert

import (
	"encoding/base64"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/codefionn/wasmwerk/internal/consts"
	"github.com/codefionn/wasmwerk/internal/wasihost"
	"github.com/google/uuid"
)

// CachedOutput is a lossless copy of one execution's stdout, kept so the full
// bytes can be rendered or downloaded after only a preview went inline.
type CachedOutput struct {
	ID      string
	Data    []byte
	Binary  bool
	Created time.Time
}

// ResultCache retains full outputs keyed by opaque ids. Oldest entries are
// evicted first once the cache is full.
type ResultCache struct {
	mu      sync.Mutex
	max     int
	entries map[string]*CachedOutput
	order   []string
}

// NewResultCache creates a cache holding at most max entries.
func NewResultCache(max int) *ResultCache {
	if max <= 0 {
		max = 128
	}
	return &ResultCache{
		max:     max,
		entries: make(map[string]*CachedOutput),
	}
}

// Put stores data and returns the opaque id it is retrievable under.
func (c *ResultCache) Put(data []byte, binary bool) string {
	id := uuid.NewString()
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[id] = &CachedOutput{
		ID:      id,
		Data:    append([]byte(nil), data...),
		Binary:  binary,
		Created: time.Now(),
	}
	c.order = append(c.order, id)
	return id
}

// Get returns the cached output for id, or nil when unknown or evicted.
func (c *ResultCache) Get(id string) *CachedOutput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[id]
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// ShapedOutput is the bounded, model-facing form of one execution's stdout.
type ShapedOutput struct {
	// Stdout is the inline text: either the full output, a truncated preview,
	// or base64 when the output is binary.
	Stdout string
	// Binary reports that Stdout is a base64 rendering of raw bytes.
	Binary bool
	// Truncated reports that Stdout is only a preview of the full output.
	Truncated bool
	// TotalBytes and TotalLines describe the full output, not the preview.
	TotalBytes int
	TotalLines int
	// ResultID keys the lossless copy in the cache; empty when the full
	// output already fits inline.
	ResultID string
}

// ShapeOutput bounds an execution's stdout for the model-facing response.
// Binary output is base64-encoded; oversize text is cut to a short head with
// line and byte counts. In both cases the exact bytes stay in the cache.
func ShapeOutput(cache *ResultCache, res *wasihost.Result) *ShapedOutput {
	if res.StdoutBinary != nil {
		encoded := base64.StdEncoding.EncodeToString(res.StdoutBinary)
		out := &ShapedOutput{
			Stdout:     encoded,
			Binary:     true,
			TotalBytes: len(res.StdoutBinary),
			ResultID:   cache.Put(res.StdoutBinary, true),
		}
		if len(encoded) > consts.PreviewMaxBytes {
			// Cut on a 4-char quantum so the preview stays decodable.
			cut := consts.PreviewMaxBytes - consts.PreviewMaxBytes%4
			out.Stdout = encoded[:cut]
			out.Truncated = true
		}
		return out
	}

	text := res.Stdout
	lines := countLines(text)
	out := &ShapedOutput{
		Stdout:     text,
		TotalBytes: len(text),
		TotalLines: lines,
	}
	if len(text) <= consts.PreviewMaxBytes && lines <= consts.PreviewMaxLines {
		return out
	}
	out.ResultID = cache.Put([]byte(text), false)
	out.Stdout = previewOf(text)
	out.Truncated = true
	return out
}

// previewOf returns the head of text bounded by both the byte and line caps.
// The byte cut never splits a multi-byte rune.
func previewOf(text string) string {
	if len(text) > consts.PreviewMaxBytes {
		cut := consts.PreviewMaxBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	parts := strings.SplitAfterN(text, "\n", consts.PreviewMaxLines+1)
	if len(parts) > consts.PreviewMaxLines {
		parts = parts[:consts.PreviewMaxLines]
	}
	return strings.Join(parts, "")
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
