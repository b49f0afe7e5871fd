package graph

import (
	"sync"
	"time"

	"github.com/paperManu/splash/internal/xlog"
	"github.com/paperManu/splash/value"
)

// Category classifies a GraphObject for the factory and for rendering
// priority decisions (spec §3, §4.6).
type Category uint8

const (
	CategoryMisc Category = iota
	CategoryImage
	CategoryMesh
	CategoryTexture
)

func (c Category) String() string {
	switch c {
	case CategoryImage:
		return "image"
	case CategoryMesh:
		return "mesh"
	case CategoryTexture:
		return "texture"
	default:
		return "misc"
	}
}

// Task is a single-shot deferred callable, run at the next root step.
type Task func()

// PeriodicTask is a named repeating callable.
type PeriodicTask struct {
	name     string
	fn       func()
	interval time.Duration
	last     time.Time
}

// Object is the common base every Splash scene entity embeds: a name,
// type, category, attribute map, task queues, savable flag, and dirty flag
// (spec §4.6).
type Object struct {
	mu sync.Mutex

	name     string
	typ      string
	category Category
	savable  bool
	alias    string

	attrs     map[string]*Attribute
	attrOrder []string

	tasks    []Task
	periodic map[string]*PeriodicTask

	dirty bool
}

// New constructs an Object; embedders call this from their own
// constructor and register their attributes with AddAttribute.
func New(name, typ string, category Category) *Object {
	o := &Object{
		name:     name,
		typ:      typ,
		category: category,
		savable:  true,
		attrs:    make(map[string]*Attribute),
		periodic: make(map[string]*PeriodicTask),
	}
	o.registerCoreAttributes()
	return o
}

func (o *Object) registerCoreAttributes() {
	o.AddAttribute(&Attribute{
		Name: "savable", Types: []byte{'b'}, Doc: "whether this object is written out with project/configuration saves",
		set: func(args []value.Value) (bool, error) {
			b, _ := args[0].AsBool()
			changed := b != o.savable
			o.savable = b
			return changed, nil
		},
		get: func() []value.Value { return []value.Value{value.NewBool(o.savable)} },
	})
	o.AddAttribute(&Attribute{
		Name: "alias", Types: []byte{'s'}, Doc: "display name used by the tree and UI in place of the object's own name",
		set: func(args []value.Value) (bool, error) {
			s, _ := args[0].AsString()
			changed := s != o.alias
			o.alias = s
			return changed, nil
		},
		get: func() []value.Value { return []value.Value{value.NewString(o.alias)} },
	})
}

func (o *Object) Name() string       { return o.name }
func (o *Object) Type() string       { return o.typ }
func (o *Object) Category() Category { return o.category }
func (o *Object) Savable() bool      { o.mu.Lock(); defer o.mu.Unlock(); return o.savable }
func (o *Object) Alias() string      { o.mu.Lock(); defer o.mu.Unlock(); return o.alias }

// AddAttribute registers attr, keyed by its Name; re-registering an
// existing name replaces it (used by embedders overriding a core
// attribute's getter/setter).
func (o *Object) AddAttribute(attr *Attribute) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.attrs[attr.Name]; !exists {
		o.attrOrder = append(o.attrOrder, attr.Name)
	}
	o.attrs[attr.Name] = attr
}

// SetAttribute validates and invokes the named attribute's setter, marking
// the object dirty on success (spec §4.6).
func (o *Object) SetAttribute(name string, args ...value.Value) SetResult {
	o.mu.Lock()
	attr, ok := o.attrs[name]
	o.mu.Unlock()
	if !ok {
		xlog.Warningf("graph: %s: no such attribute %q", o.name, name)
		return SetFailure
	}
	result := attr.Set(args)
	if result == SetSuccess {
		o.mu.Lock()
		o.dirty = true
		o.mu.Unlock()
	}
	return result
}

// GetAttribute invokes the named attribute's getter.
func (o *Object) GetAttribute(name string) ([]value.Value, bool) {
	o.mu.Lock()
	attr, ok := o.attrs[name]
	o.mu.Unlock()
	if !ok {
		return nil, false
	}
	return attr.Get()
}

// SyncPolicyOf reports the sync policy of the named attribute, or Async if
// it doesn't exist — used by RootObject.Set to decide whether to force an
// inline call (spec §4.8: "If the target attribute is force_sync, the
// async flag is forced to false").
func (o *Object) SyncPolicyOf(name string) SyncPolicy {
	o.mu.Lock()
	defer o.mu.Unlock()
	if attr, ok := o.attrs[name]; ok {
		return attr.Policy
	}
	return Async
}

// AttributesList returns attribute names in registration order.
func (o *Object) AttributesList() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.attrOrder))
	copy(out, o.attrOrder)
	return out
}

// AttributesDescriptions returns each attribute's documentation string,
// keyed by name.
func (o *Object) AttributesDescriptions() map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]string, len(o.attrs))
	for name, attr := range o.attrs {
		out[name] = attr.Doc
	}
	return out
}

// AddTask enqueues fn to run once at the next RunTasks call.
func (o *Object) AddTask(fn Task) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tasks = append(o.tasks, fn)
}

// AddPeriodicTask registers fn under name, replacing any existing task
// with that name (spec §4.6). interval == 0 runs every step.
func (o *Object) AddPeriodicTask(name string, fn func(), interval time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.periodic[name] = &PeriodicTask{name: name, fn: fn, interval: interval}
}

// RunTasks drains the single-shot queue into a local list first (so a task
// enqueuing another task doesn't run within the same call), then runs
// periodic tasks whose interval has elapsed (spec §4.6).
func (o *Object) RunTasks() {
	o.mu.Lock()
	pending := o.tasks
	o.tasks = nil
	due := make([]*PeriodicTask, 0, len(o.periodic))
	now := time.Now()
	for _, pt := range o.periodic {
		if pt.interval == 0 || now.Sub(pt.last) >= pt.interval {
			pt.last = now
			due = append(due, pt)
		}
	}
	o.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
	for _, pt := range due {
		pt.fn()
	}
}

// WasUpdated/SetNotUpdated implement the cooperative dirty flag the owning
// root uses to decide whether to re-propagate an object's attributes into
// the tree (spec §4.6).
func (o *Object) WasUpdated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dirty
}

func (o *Object) SetNotUpdated() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dirty = false
}

// MarkDirty is used by embedders (e.g. BufferObject.updateTimestamp) that
// change state outside of a SetAttribute call.
func (o *Object) MarkDirty() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dirty = true
}
