//go:build !darwin && !linux

package portbroker

// NewPlatformIdentifier returns nil on platforms with no supported port
// attribution tool (spec.md §4.2: "on platforms that expose it").
func NewPlatformIdentifier() Identifier { return nil }
