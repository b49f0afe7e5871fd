package root

import (
	"fmt"

	"github.com/paperManu/splash/graph"
	"github.com/paperManu/splash/objects"
	"github.com/paperManu/splash/sobj"
	"github.com/paperManu/splash/value"
)

// Entity is the root-level view of an owned object: everything RootObject
// needs to route sets, drain tasks, and mirror attributes into the tree.
// Every concrete type objects.Factory produces satisfies this by embedding
// *graph.Object (directly, or transitively via *buffer.Object).
type Entity interface {
	Name() string
	Type() string
	Category() graph.Category
	SetAttribute(name string, args ...value.Value) graph.SetResult
	GetAttribute(name string) ([]value.Value, bool)
	AttributesList() []string
	SyncPolicyOf(name string) graph.SyncPolicy
	RunTasks()
	WasUpdated() bool
	SetNotUpdated()
}

// bufferEntity narrows Entity to the BufferObject subset RootObject needs
// for step 4/5/6's serialize-and-send dance and for routing
// setFromSerializedObject (spec §4.7/§4.8).
type bufferEntity interface {
	Entity
	Serialize() *sobj.Serialized
	SetSerializedObject(obj *sobj.Serialized)
	HasSerializedObjectWaiting() bool
	WasBufferUpdated() bool
	ClearBufferUpdated()
	Timestamp() int64
}

// Factory is the narrow collaborator RootObject asks to instantiate new
// owned entities, kept as an interface so tests can substitute a fake
// (spec §4.8 createObject's "calls the factory").
type Factory interface {
	Create(name, typ string) (Entity, error)
}

// objectsFactory adapts objects.Factory (whose Create returns the narrower
// objects.Entity) to root.Entity. The type assertion always succeeds for
// every type objects.Types names, since each embeds *graph.Object and so
// promotes SyncPolicyOf/WasUpdated/SetNotUpdated alongside the methods
// objects.Entity already declares.
type objectsFactory struct {
	f *objects.Factory
}

// NewObjectsFactory wraps the real objects.Factory for production use.
func NewObjectsFactory() Factory { return objectsFactory{f: objects.NewFactory()} }

func (o objectsFactory) Create(name, typ string) (Entity, error) {
	raw, err := o.f.Create(name, typ)
	if err != nil {
		return nil, err
	}
	e, ok := raw.(Entity)
	if !ok {
		return nil, fmt.Errorf("root: object type %q does not satisfy root.Entity", typ)
	}
	return e, nil
}
