// Package graph implements GraphObject, the base for every Splash scene
// entity: named attributes with typed setters/getters, a deferred task
// queue, periodic tasks, and a cooperative dirty flag (spec §4.6).
package graph

import (
	"fmt"

	"github.com/paperManu/splash/value"
)

// SyncPolicy controls whether an attribute set is applied inline by the
// caller's root, or deferred to the next task drain (spec §4.6).
type SyncPolicy uint8

const (
	Async SyncPolicy = iota
	ForceSync
)

// SetResult is the three-way outcome of Attribute.Set (spec §4.6).
type SetResult uint8

const (
	SetSuccess SetResult = iota
	SetNoChange
	SetFailure
)

func (r SetResult) String() string {
	switch r {
	case SetSuccess:
		return "success"
	case SetNoChange:
		return "no_change"
	default:
		return "failure"
	}
}

// Setter applies args and reports whether the value actually changed
// (returning false signals SetNoChange, not SetFailure) and whether the
// call is semantically valid (an error signals SetFailure).
type Setter func(args []value.Value) (changed bool, err error)

// Getter returns the attribute's current value(s), or nil if it has none to
// report (write-only attributes, e.g. "save").
type Getter func() []value.Value

// Attribute is one entry in a GraphObject's attribute map.
type Attribute struct {
	Name   string
	Types  []byte // expected per-position type codes: 'b','i','r','s','v'
	Doc    string
	Policy SyncPolicy
	Locked bool
	set    Setter
	get    Getter
}

// NewAttribute builds an Attribute with the given setter/getter, for
// embedders outside this package (objects.Image, objects.Mesh, ...) that
// cannot set Attribute's unexported set/get fields directly. Either of set
// or get may be nil (a write-only or read-only attribute).
func NewAttribute(name string, types []byte, doc string, policy SyncPolicy, locked bool, set Setter, get Getter) *Attribute {
	return &Attribute{Name: name, Types: types, Doc: doc, Policy: policy, Locked: locked, set: set, get: get}
}

func typeCode(k value.Kind) byte { return k.TypeCode() }

// checkTypes validates arity and per-position type codes before the setter
// is ever invoked (spec §4.6: "a set with mismatched arity or type codes
// fails pre-call"). An empty Types list means variable arity (no check at
// all), matching original_source's addAttribute(..., {}) convention for
// debug/rendezvous attributes that accept any argument list.
func (a *Attribute) checkTypes(args []value.Value) error {
	if len(a.Types) == 0 {
		return nil
	}
	if len(args) != len(a.Types) {
		return fmt.Errorf("attribute %q: expected %d argument(s), got %d", a.Name, len(a.Types), len(args))
	}
	for i, want := range a.Types {
		if want == 'v' {
			continue // 'v' accepts any Value
		}
		if got := typeCode(args[i].Kind()); got != want {
			return fmt.Errorf("attribute %q: argument %d has type %q, want %q", a.Name, i, string(got), string(want))
		}
	}
	return nil
}

// Set validates and invokes the attribute's setter, per spec §4.6's
// three-way result.
func (a *Attribute) Set(args []value.Value) SetResult {
	if a.Locked {
		return SetFailure
	}
	if err := a.checkTypes(args); err != nil {
		return SetFailure
	}
	if a.set == nil {
		return SetFailure
	}
	changed, err := a.set(args)
	if err != nil {
		return SetFailure
	}
	if !changed {
		return SetNoChange
	}
	return SetSuccess
}

// Get invokes the attribute's getter, if any.
func (a *Attribute) Get() ([]value.Value, bool) {
	if a.get == nil {
		return nil, false
	}
	return a.get(), true
}
