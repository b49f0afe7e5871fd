// Package objects implements the concrete GraphObject/BufferObject types a
// RootObject's factory can create: Image and Mesh payload objects, and the
// attribute-only Window, LtcClock and Controller objects (spec §3, §4.9,
// supplemented from original_source/src/{mesh,controller}).
package objects

import (
	"fmt"

	"github.com/paperManu/splash/graph"
	"github.com/paperManu/splash/value"
)

// Entity is the common surface every object type built by this package
// exposes to a RootObject, regardless of whether it embeds graph.Object
// directly (Window, LtcClock, Controller) or through buffer.Object (Image,
// Mesh). It names only the methods the factory-exhaustiveness property
// (spec §8 property 1) and RootObject's dispatch actually need; every
// concrete type below satisfies it through embedding.
type Entity interface {
	Name() string
	Type() string
	Category() graph.Category
	SetAttribute(name string, args ...value.Value) graph.SetResult
	GetAttribute(name string) ([]value.Value, bool)
	AttributesList() []string
	RunTasks()
}

// Types is the fixed list of type names Factory.Create accepts, one per
// object type this package registers (spec §8 property 1: "for every type returned by
// factory.getObjectTypes()").
var Types = []string{"image", "mesh", "window", "ltc_clock", "controller"}

// Factory constructs named instances of the types in Types. It holds no
// state of its own; construction is pure per call, matching the "arena
// plus index" ownership model (spec §9) where RootObject — not the
// factory — is what owns objects afterward.
type Factory struct{}

// NewFactory returns a Factory ready to create any type named in Types.
func NewFactory() *Factory { return &Factory{} }

// Create builds a new instance of typ named name, or an error if typ is
// not one Types lists.
func (f *Factory) Create(name, typ string) (Entity, error) {
	switch typ {
	case "image":
		return NewImage(name), nil
	case "mesh":
		return NewMesh(name), nil
	case "window":
		return NewWindow(name), nil
	case "ltc_clock":
		return NewLtcClock(name, NullClockSource{}), nil
	case "controller":
		return NewController(name), nil
	default:
		return nil, fmt.Errorf("objects: unknown type %q", typ)
	}
}
