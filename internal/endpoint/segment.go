package endpoint

import (
	"fmt"

	"github.com/vk/routepack/internal/buildctx"
	"github.com/vk/routepack/internal/buildfail"
	"github.com/vk/routepack/internal/config"
)

// SegmentConfig is the merged per-route segment configuration.
type SegmentConfig struct {
	Runtime          buildctx.Runtime
	PreferredRegions []string
	MaxDuration      *int
}

// MergeSegments folds raw segment configs in outermost-first order, the
// entry module's own segment last. A later declaration overrides earlier
// ones per field; fields a segment leaves unset keep the outer value.
func MergeSegments(segments ...*config.Segment) (*SegmentConfig, error) {
	merged := &SegmentConfig{}
	for _, s := range segments {
		if s == nil {
			continue
		}
		if s.Runtime != "" {
			rt, ok := buildctx.ParseRuntime(s.Runtime)
			if !ok {
				return nil, &buildfail.ConfigError{
					Missing: "runtime",
					Detail:  fmt.Sprintf("unknown runtime %q", s.Runtime),
				}
			}
			merged.Runtime = rt
		}
		if len(s.PreferredRegions) > 0 {
			merged.PreferredRegions = append([]string(nil), s.PreferredRegions...)
		}
		if s.MaxDuration != nil {
			d := *s.MaxDuration
			merged.MaxDuration = &d
		}
	}
	return merged, nil
}
