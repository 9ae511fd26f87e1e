// Package chunk partitions resolved modules into output chunk groups per
// runtime target, tracking cross-group availability so code emitted by a
// shared group is never re-emitted by the per-route groups that build on it.
package chunk

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/vk/routepack/internal/buildctx"
	"github.com/vk/routepack/internal/modgraph"
	"github.com/vk/routepack/internal/output"
)

// Context is a chunking context: it decides under which output root and
// directory the chunks of one runtime target are emitted. The NodeJs and
// Edge server contexts share all planning code; only root directories and
// the evaluated-group requirement differ.
type Context struct {
	// Name tags the context in logs and chunk headers.
	Name string
	// Root is the output root chunks are rooted under.
	Root output.Root
	// Dir is the root-relative directory generated chunks are placed in.
	Dir string
	// IncludeClientAssets marks server contexts whose groups may also carry
	// client assets (the Edge context when processing a page).
	IncludeClientAssets bool
}

// Group is the set of output chunks produced for one chunking context, one
// or more evaluatable roots, and an availability baseline. Deterministic and
// cacheable for fixed inputs.
type Group struct {
	Assets []*output.Asset
	// ModuleIDs are the identities of all modules whose code the group
	// emitted, in emission order.
	ModuleIDs []string
	// Availability is the updated baseline for downstream groups.
	Availability *Availability
	// Problems are subtree-scoped resolution failures encountered during
	// traversal. Reported, not fatal.
	Problems []error
}

// SharedGroup plans the chunk group for modules common to all routes (the
// client runtime entries). Computed once per app project; its availability
// becomes the baseline of every per-route group.
func SharedGroup(ctx context.Context, cc *Context, name string, roots []*buildctx.Module) (*Group, error) {
	return EntryGroup(ctx, cc, name, roots, RootAvailability())
}

// EntryGroup plans per-root chunks against an availability baseline. Modules
// already covered by the baseline are never re-emitted; within the group the
// first root claiming a module wins.
func EntryGroup(ctx context.Context, cc *Context, name string, roots []*buildctx.Module, avail *Availability) (*Group, error) {
	group := &Group{}
	claimed := make(map[string]struct{})

	for _, root := range roots {
		modules, errs := reach(ctx, root)
		group.Problems = append(group.Problems, errs...)

		var scripts, styles []*buildctx.Module
		for _, m := range modules {
			id := m.ID()
			if avail.Has(id) {
				continue
			}
			if _, ok := claimed[id]; ok {
				continue
			}
			claimed[id] = struct{}{}
			group.ModuleIDs = append(group.ModuleIDs, id)
			if m.Kind == modgraph.KindStylesheet {
				styles = append(styles, m)
			} else {
				scripts = append(scripts, m)
			}
		}

		if len(scripts) > 0 {
			asset, err := emitChunk(cc, chunkSlug(name, root), ".js", scripts)
			if err != nil {
				return nil, err
			}
			group.Assets = append(group.Assets, asset)
		}
		if len(styles) > 0 {
			asset, err := emitChunk(cc, chunkSlug(name, root), ".css", styles)
			if err != nil {
				return nil, err
			}
			group.Assets = append(group.Assets, asset)
		}
	}

	group.Availability = avail.With(group.ModuleIDs)
	return group, nil
}

// EntryChunk plans a single chunk at a fixed root-relative path, evaluating
// all roots. Used for the NodeJs server entry file, whose path downstream
// manifests point at.
func EntryChunk(ctx context.Context, cc *Context, path string, roots []*buildctx.Module, avail *Availability) (*output.Asset, *Group, error) {
	group := &Group{}
	claimed := make(map[string]struct{})
	var modules []*buildctx.Module

	for _, root := range roots {
		reached, errs := reach(ctx, root)
		group.Problems = append(group.Problems, errs...)
		for _, m := range reached {
			id := m.ID()
			if avail.Has(id) {
				continue
			}
			if _, ok := claimed[id]; ok {
				continue
			}
			claimed[id] = struct{}{}
			group.ModuleIDs = append(group.ModuleIDs, id)
			modules = append(modules, m)
		}
	}

	asset, err := output.New(cc.Root, path, output.KindChunk, chunkContent(cc, path, modules))
	if err != nil {
		return nil, nil, err
	}
	group.Assets = []*output.Asset{asset}
	group.Availability = avail.With(group.ModuleIDs)
	return asset, group, nil
}

// EvaluatedGroup plans the fully inlined chunk of the Edge runtime: the edge
// runtime cannot load chunks dynamically, so everything reachable from the
// evaluatable roots is emitted into one statically loaded file.
func EvaluatedGroup(ctx context.Context, cc *Context, name string, roots []*buildctx.Module) (*Group, error) {
	group := &Group{}
	claimed := make(map[string]struct{})
	var modules []*buildctx.Module

	for _, root := range roots {
		reached, errs := reach(ctx, root)
		group.Problems = append(group.Problems, errs...)
		for _, m := range reached {
			id := m.ID()
			if _, ok := claimed[id]; ok {
				continue
			}
			claimed[id] = struct{}{}
			group.ModuleIDs = append(group.ModuleIDs, id)
			modules = append(modules, m)
		}
	}

	asset, err := emitChunk(cc, slug(name), ".js", modules)
	if err != nil {
		return nil, err
	}
	group.Assets = []*output.Asset{asset}
	group.Availability = RootAvailability().With(group.ModuleIDs)
	return group, nil
}

// reach collects the modules evaluated together with root: the in-context
// closure plus ssr/shared transition targets. Client-reference, dynamic and
// dynamic-import edges end the traversal; their targets belong to other
// groups. Returns modules in deterministic source order.
func reach(ctx context.Context, root *buildctx.Module) ([]*buildctx.Module, []error) {
	var (
		ordered []*buildctx.Module
		errs    []error
	)
	seen := make(map[string]struct{})

	var visit func(m *buildctx.Module)
	visit = func(m *buildctx.Module) {
		if _, ok := seen[m.ID()]; ok {
			return
		}
		seen[m.ID()] = struct{}{}
		ordered = append(ordered, m)

		refs, err := m.Context.References(ctx, m)
		if err != nil {
			errs = append(errs, err)
		}
		for _, ref := range refs {
			if ref.Dynamic {
				continue
			}
			if ref.Transition == nil {
				visit(ref.Module)
				continue
			}
			switch ref.Transition.Kind {
			case buildctx.TransitionSSR, buildctx.TransitionShared:
				visit(ref.Module)
			}
		}
	}
	visit(root)
	return ordered, errs
}

func emitChunk(cc *Context, name, ext string, modules []*buildctx.Module) (*output.Asset, error) {
	content := chunkContent(cc, name, modules)
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])[:8]
	path := fmt.Sprintf("%s/%s-%s%s", cc.Dir, name, hash, ext)
	return output.New(cc.Root, path, output.KindChunk, content)
}

// chunkContent renders the deterministic module registry of one chunk.
// Real code generation is the bundler's business; the registry format only
// needs to be stable and complete.
func chunkContent(cc *Context, name string, modules []*buildctx.Module) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "// routepack chunk %s (%s)\n", name, cc.Name)
	for _, m := range modules {
		fmt.Fprintf(&buf, "__routepack_register(%q, function (module, exports) {\n%s\n});\n", m.ID(), m.Source)
	}
	return buf.Bytes()
}

func chunkSlug(groupName string, root *buildctx.Module) string {
	return slug(groupName + "/" + root.Path)
}

var slugReplacer = strings.NewReplacer("/", "_", "[", "_", "]", "_", ".", "_")

func slug(s string) string {
	return strings.Trim(slugReplacer.Replace(s), "_")
}
