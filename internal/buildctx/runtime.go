package buildctx

// Runtime is the execution runtime a route endpoint targets.
type Runtime int

const (
	// RuntimeNodeJs is the long-lived server process runtime, the default.
	RuntimeNodeJs Runtime = iota
	// RuntimeEdge is the restricted edge runtime without dynamic code loading.
	RuntimeEdge
)

func (r Runtime) String() string {
	if r == RuntimeEdge {
		return "edge"
	}
	return "nodejs"
}

// ParseRuntime maps a segment config runtime string to a Runtime. The empty
// string is the NodeJs default.
func ParseRuntime(s string) (Runtime, bool) {
	switch s {
	case "", "nodejs", "node":
		return RuntimeNodeJs, true
	case "edge":
		return RuntimeEdge, true
	}
	return RuntimeNodeJs, false
}
