package buildctx

// Named transition keys as they appear on import edges. The string form
// exists only at this serialization boundary; internal dispatch is on
// TransitionKind.
const (
	KeyClientReference = "client-reference"
	KeyDynamicImport   = "dynamic-import"
	KeySSR             = "ssr"
	KeyShared          = "shared"
)

// TransitionKind is the closed set of context transitions.
type TransitionKind int

const (
	// TransitionClientReference crosses the server->client trust boundary.
	// Script targets are double-compiled: a client twin for hydration and an
	// SSR twin for server-side rendering.
	TransitionClientReference TransitionKind = iota
	// TransitionDynamicImport reinterprets a dynamic import boundary under
	// the client context.
	TransitionDynamicImport
	// TransitionSSR reinterprets a module under the server-side-render context.
	TransitionSSR
	// TransitionShared reinterprets a module under the shared-runtime context.
	TransitionShared
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionClientReference:
		return KeyClientReference
	case TransitionDynamicImport:
		return KeyDynamicImport
	case TransitionSSR:
		return KeySSR
	case TransitionShared:
		return KeyShared
	}
	return "unknown"
}

// Transition reinterprets a module resolved in one context under a target
// context. Transitions are pure value objects owned by their context set.
type Transition struct {
	Kind TransitionKind

	// Client is the context the client-compiled twin resolves under. Set for
	// client-reference and dynamic-import transitions.
	Client *Context
	// SSR is the context the server-executable twin resolves under. Set for
	// client-reference transitions only.
	SSR *Context
	// Target is the destination context of plain context transitions
	// (ssr, shared).
	Target *Context
}
