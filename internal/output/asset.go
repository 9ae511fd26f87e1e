// Package output models emittable build artifacts: code chunks, JSON
// manifests and verbatim-copied assets, each rooted under the server output
// root or the client-relative output root, plus the idempotent disk emitter.
package output

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path"
	"sort"
	"strings"

	"github.com/vk/routepack/internal/buildfail"
)

// Root selects the output root an asset is emitted under.
type Root int

const (
	RootServer Root = iota
	RootClient
)

func (r Root) String() string {
	if r == RootClient {
		return "client"
	}
	return "server"
}

// Kind classifies an asset.
type Kind int

const (
	KindChunk Kind = iota
	KindManifest
	KindRaw
)

// Asset is one emittable file. Immutable once produced; assets are shared by
// identity across endpoints within a build generation.
type Asset struct {
	Root Root
	// Path is root-relative and "/"-separated.
	Path    string
	Kind    Kind
	Content []byte
}

// New creates an asset, validating that the path stays inside its root.
// A path escaping the root is a consistency failure: a planning bug that
// must never be silently ignored.
func New(root Root, p string, kind Kind, content []byte) (*Asset, error) {
	clean := path.Clean(strings.TrimPrefix(p, "/"))
	if clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return nil, &buildfail.ConsistencyError{Path: p, Root: root.String()}
	}
	return &Asset{Root: root, Path: clean, Kind: kind, Content: content}, nil
}

// NewJSON creates a manifest asset by encoding v. The caller wraps encoding
// failures with the manifest kind and route.
func NewJSON(root Root, p string, v any) (*Asset, error) {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return New(root, p, KindManifest, append(content, '\n'))
}

// ID is the asset's identity within a build generation.
func (a *Asset) ID() string {
	return a.Root.String() + "/" + a.Path
}

// Hash returns the content hash used for change detection and idempotent
// emission.
func (a *Asset) Hash() string {
	sum := sha256.Sum256(a.Content)
	return hex.EncodeToString(sum[:])
}

// HashAll folds the identities and content hashes of a set of assets into a
// single fingerprint, independent of input order.
func HashAll(assets []*Asset) string {
	lines := make([]string, 0, len(assets))
	for _, a := range assets {
		lines = append(lines, a.ID()+"\x1f"+a.Hash())
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// Dedupe returns assets with duplicate identities removed, keeping the first
// occurrence and the original order.
func Dedupe(assets []*Asset) []*Asset {
	seen := make(map[string]struct{}, len(assets))
	out := make([]*Asset, 0, len(assets))
	for _, a := range assets {
		if _, ok := seen[a.ID()]; ok {
			continue
		}
		seen[a.ID()] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Paths returns the root-relative paths of all assets under the given root,
// sorted for deterministic manifest and summary ordering.
func Paths(assets []*Asset, root Root) []string {
	var paths []string
	for _, a := range assets {
		if a.Root == root {
			paths = append(paths, a.Path)
		}
	}
	sort.Strings(paths)
	return paths
}

// JSPaths returns the sorted ".js" paths of all assets under the given root.
func JSPaths(assets []*Asset, root Root) []string {
	var paths []string
	for _, a := range assets {
		if a.Root == root && strings.HasSuffix(a.Path, ".js") {
			paths = append(paths, a.Path)
		}
	}
	sort.Strings(paths)
	return paths
}
