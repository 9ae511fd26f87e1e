package chunk

import (
	"context"

	"github.com/vk/routepack/internal/buildctx"
	"github.com/vk/routepack/internal/clientref"
)

// RefGroup is the planned chunk groups of one client reference.
type RefGroup struct {
	Ref *clientref.ClientReference
	// Client holds the hydration chunks, planned against the chained
	// client availability.
	Client *Group
	// SSR holds the server-render twin chunks, nil for stylesheets.
	SSR *Group
}

// ReferenceGroups plans the client and SSR chunk groups of every client
// reference. Client groups chain their availability so a module shared by
// two references is emitted once; SSR groups each plan against the root
// baseline, matching the separate SSR chunking context.
func ReferenceGroups(
	ctx context.Context,
	clientCC *Context,
	ssrCC *Context,
	refs []*clientref.ClientReference,
	clientAvail *Availability,
) ([]*RefGroup, *Availability, error) {
	groups := make([]*RefGroup, 0, len(refs))
	avail := clientAvail

	for _, ref := range refs {
		rg := &RefGroup{Ref: ref}

		clientGroup, err := EntryGroup(ctx, clientCC, "client", []*buildctx.Module{ref.Client}, avail)
		if err != nil {
			return nil, nil, err
		}
		rg.Client = clientGroup
		avail = clientGroup.Availability

		if ref.SSR != nil && ssrCC != nil {
			ssrGroup, err := EntryGroup(ctx, ssrCC, "ssr", []*buildctx.Module{ref.SSR}, RootAvailability())
			if err != nil {
				return nil, nil, err
			}
			rg.SSR = ssrGroup
		}

		groups = append(groups, rg)
	}
	return groups, avail, nil
}

// DynamicGroup is the planned chunk group of one dynamic-import boundary.
type DynamicGroup struct {
	Module *buildctx.Module
	Group  *Group
}

// DynamicImportGroups plans one chunk group per dynamic-import boundary.
// Each group plans against the shared baseline only: dynamic chunks load
// independently of each other at runtime, so they must not assume sibling
// dynamic chunks are present.
func DynamicImportGroups(
	ctx context.Context,
	cc *Context,
	modules []*buildctx.Module,
	avail *Availability,
) ([]*DynamicGroup, error) {
	groups := make([]*DynamicGroup, 0, len(modules))
	for _, m := range modules {
		g, err := EntryGroup(ctx, cc, "dynamic", []*buildctx.Module{m}, avail)
		if err != nil {
			return nil, err
		}
		groups = append(groups, &DynamicGroup{Module: m, Group: g})
	}
	return groups, nil
}
