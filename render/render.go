// Package render models Scene's per-step rendering work as a narrow
// interface so the module builds and is testable without a GPU context
// (spec §4.10: "the main loop's render step is opaque to this spec").
package render

import "context"

// BufferHandle identifies a texture-backed BufferObject a Driver should
// upload before the next frame; Scene's role strategy collects these from
// its owned Image/Mesh objects each step.
type BufferHandle struct {
	Name string
	Kind string // "image" or "mesh", matching graph.Category.String()
}

// Driver is the rendering backend Scene drives once per step. Production
// GL/GLES backends remain a non-goal (spec.md Non-goals); this interface
// is the seam a real one would implement.
type Driver interface {
	// UploadTextures pushes the payload of every named buffer to the GPU
	// (or whatever the backend renders from), in response to World's
	// uploadTextures broadcast (spec §4.10).
	UploadTextures(ctx context.Context, buffers []BufferHandle) error
	// RenderFrame draws one frame at the driver's current swap interval.
	RenderFrame(ctx context.Context) error
	// SwapInterval sets the number of vsyncs between buffer swaps (0
	// disables vsync).
	SwapInterval(n int)
}

// NullDriver is a no-op Driver: every call succeeds immediately without
// touching any GPU state, so World/Scene wiring and tests don't need a
// display.
type NullDriver struct {
	interval int
}

// NewNullDriver constructs a NullDriver with the default swap interval (1).
func NewNullDriver() *NullDriver { return &NullDriver{interval: 1} }

func (d *NullDriver) UploadTextures(ctx context.Context, buffers []BufferHandle) error {
	return nil
}

func (d *NullDriver) RenderFrame(ctx context.Context) error { return nil }
func (d *NullDriver) SwapInterval(n int)                    { d.interval = n }

// SwapIntervalValue reports the last value passed to SwapInterval, for
// tests to assert against.
func (d *NullDriver) SwapIntervalValue() int { return d.interval }
