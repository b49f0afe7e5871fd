// Package root implements RootObject: the cooperative step loop shared by
// World and Scene, the object slab they own, and the tree/link plumbing
// that ties a process into the rest of the Splash cluster (spec §4.8).
package root

import "github.com/paperManu/splash/transport"

// Context carries the launch-time configuration a RootObject needs but
// cannot derive for itself: CLI-derived settings (spec §4.9: "parses the
// launch Context ... and applies"). Global singletons (logger, timer) are
// deliberately not modeled here — see spec §9 design note; xlog's package
// functions stand in for the injected-logger pattern the note asks for.
type Context struct {
	// ConfigurationPath is the project file path (empty for a fresh root).
	ConfigurationPath string
	// MediaPath is the base directory media paths in the configuration
	// resolve against.
	MediaPath string
	// SocketPrefix namespaces this cluster's transport endpoints so
	// multiple Splash instances can share a host (spec §6.3).
	SocketPrefix string
	// ChannelKind selects the transport Link uses for this process's link.
	ChannelKind transport.Kind
	// ChildName is this process's own Scene name, or "" for World (spec
	// §6.4 "-c/--child <name>").
	ChildName string
	// FrameRate bounds the per-step wait on the buffer-updated condition
	// (spec §4.8 step 9); zero means the default of 60.
	FrameRate float64
}

// IsChild reports whether this Context describes a Scene process.
func (c Context) IsChild() bool { return c.ChildName != "" }

const defaultFrameRate = 60.0

func (c Context) frameDeadline() float64 {
	if c.FrameRate > 0 {
		return c.FrameRate
	}
	return defaultFrameRate
}
