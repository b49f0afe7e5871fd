package objects

import (
	"github.com/paperManu/splash/graph"
	"github.com/paperManu/splash/value"
)

// Window is an attribute-only GraphObject standing in for a Scene's render
// window: layout (monitor index/position/size, encoded as a free-form
// string so this module doesn't need a display-geometry type) and
// fullscreen mode. Rendering itself is out of scope (spec Non-goals); this
// gives the two attributes the config upgrade chain writes a real object
// to land on (spec SPEC_FULL.md supplemented feature 4). The config tests
// check the upgraded document itself and do not create a Window.
type Window struct {
	*graph.Object

	layout     string
	fullscreen string // e.g. "", "windowed", "fullscreen" (spec §6.1 upgrade target)
}

// NewWindow constructs a Window GraphObject named name.
func NewWindow(name string) *Window {
	w := &Window{Object: graph.New(name, "window", graph.CategoryMisc)}
	w.AddAttribute(graph.NewAttribute(
		"layout", []byte{'s'}, "monitor/position/size descriptor", graph.Async, false,
		func(args []value.Value) (bool, error) {
			s, _ := args[0].AsString()
			changed := s != w.layout
			w.layout = s
			return changed, nil
		},
		func() []value.Value { return []value.Value{value.NewString(w.layout)} },
	))
	w.AddAttribute(graph.NewAttribute(
		"fullscreen", []byte{'s'}, "window display mode", graph.Async, false,
		func(args []value.Value) (bool, error) {
			s, _ := args[0].AsString()
			changed := s != w.fullscreen
			w.fullscreen = s
			return changed, nil
		},
		func() []value.Value { return []value.Value{value.NewString(w.fullscreen)} },
	))
	return w
}
