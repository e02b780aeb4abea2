// Package pathconvert normalizes raw VM source identifiers into canonical
// keys usable as BreakpointIndex lookup keys.
package pathconvert

import (
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind classifies a raw VM source identifier.
type Kind int

const (
	// KindFile is an `@path` source: a real file on disk.
	KindFile Kind = iota
	// KindChunk is an `=name` source: a named, non-file chunk.
	KindChunk
	// KindNative is the `=[C]` host-native frame: no canonical key.
	KindNative
	// KindAnonymous is a raw in-memory buffer with no name.
	KindAnonymous
)

// Resolution is the outcome of converting a raw VM source string.
type Resolution struct {
	Kind Kind
	// Key is the canonical lookup key. Empty for KindNative.
	Key string
	// Display is a human-facing path/name for the source.
	Display string
}

// CustomResolver resolves `=name` chunks to a client-visible path. The
// second return value is the caching tier: ResolveSuccess (memoize for the
// session), ResolveOnce (memoize only for the current stackTrace render),
// or ResolveFailure (do not memoize).
type CustomResolver func(name string) (path string, tier ResolveTier, ok bool)

// ResolveTier is the lifetime of a custom resolver's answer.
type ResolveTier int

const (
	// ResolveSuccess memoizes for the life of the session.
	ResolveSuccess ResolveTier = iota
	// ResolveOnce memoizes only for the current stackTrace render.
	ResolveOnce
	// ResolveFailure indicates resolution failed; not memoized.
	ResolveFailure
)

var lowerCaser = cases.Lower(language.Und)

// Converter normalizes raw VM source strings and caches `=name` resolutions
// at two lifetimes: session-long (persistent) and render-scoped (once).
type Converter struct {
	mu         sync.RWMutex
	workDir    string
	persistent map[string]string // name -> canonical key, session lifetime
	once       map[string]string // name -> canonical key, current render only
	custom     CustomResolver
}

// New creates a Converter rooted at workDir.
func New(workDir string) *Converter {
	return &Converter{
		workDir:    workDir,
		persistent: make(map[string]string),
		once:       make(map[string]string),
	}
}

// SetWorkingDirectory updates the working directory used to resolve
// relative file paths. Safe to call concurrently with reads.
func (c *Converter) SetWorkingDirectory(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workDir = dir
}

// WorkingDirectory returns the current working directory.
func (c *Converter) WorkingDirectory() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workDir
}

// SetCustomResolver installs the resolver consulted for `=name` chunks.
func (c *Converter) SetCustomResolver(r CustomResolver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.custom = r
}

// BeginRender clears the once-tier cache; call at the start of each
// stackTrace request.
func (c *Converter) BeginRender() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.once = make(map[string]string)
}

// Convert classifies and canonicalizes a raw VM source identifier.
// bufferIdentity is an opaque, process-stable identity for anonymous
// in-memory chunks (e.g. a pointer address or content hash rendered as a
// string); it is only consulted for KindAnonymous sources.
func (c *Converter) Convert(raw string, bufferIdentity string) Resolution {
	switch {
	case raw == "=[C]":
		return Resolution{Kind: KindNative}
	case strings.HasPrefix(raw, "@"):
		return c.convertFile(raw[1:])
	case strings.HasPrefix(raw, "="):
		return c.convertChunk(raw[1:])
	default:
		return Resolution{Kind: KindAnonymous, Key: bufferIdentity, Display: bufferIdentity}
	}
}

func (c *Converter) convertFile(raw string) Resolution {
	c.mu.RLock()
	workDir := c.workDir
	c.mu.RUnlock()

	lowered := lowerCaser.String(raw)
	resolved := lowered
	if !filepath.IsAbs(resolved) && workDir != "" {
		resolved = filepath.Join(workDir, resolved)
	}
	resolved = filepath.Clean(resolved)
	return Resolution{Kind: KindFile, Key: resolved, Display: raw}
}

func (c *Converter) convertChunk(name string) Resolution {
	c.mu.RLock()
	if key, ok := c.persistent[name]; ok {
		c.mu.RUnlock()
		return Resolution{Kind: KindChunk, Key: key, Display: name}
	}
	if key, ok := c.once[name]; ok {
		c.mu.RUnlock()
		return Resolution{Kind: KindChunk, Key: key, Display: name}
	}
	resolver := c.custom
	c.mu.RUnlock()

	if resolver == nil {
		return Resolution{Kind: KindChunk, Key: name, Display: name}
	}

	path, tier, ok := resolver(name)
	if !ok || tier == ResolveFailure {
		return Resolution{Kind: KindChunk, Key: name, Display: name}
	}

	key := lowerCaser.String(path)
	c.mu.Lock()
	switch tier {
	case ResolveSuccess:
		c.persistent[name] = key
	case ResolveOnce:
		c.once[name] = key
	}
	c.mu.Unlock()

	return Resolution{Kind: KindChunk, Key: key, Display: path}
}
