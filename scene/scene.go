// Package scene implements Scene: the per-GPU worker role that renders the
// objects World fans out to it (spec §4.10).
package scene

import (
	"context"
	"sync"
	"time"

	"github.com/paperManu/splash/config"
	"github.com/paperManu/splash/graph"
	"github.com/paperManu/splash/internal/xlog"
	"github.com/paperManu/splash/render"
	"github.com/paperManu/splash/root"
	"github.com/paperManu/splash/sobj"
	"github.com/paperManu/splash/stats"
	"github.com/paperManu/splash/value"
)

// Scene is spec §4.10's worker role: it renders the BufferObjects World
// and its own configuration give it, and answers World's
// runInBackground/uploadTextures/start/quit/link/unlink messages.
type Scene struct {
	*root.RootObject

	ctx     root.Context
	driver  render.Driver
	metrics *stats.Collector

	mu              sync.Mutex
	runInBackground bool
	started         bool
	swapInterval    int
	links           map[string]map[string]bool // child name -> set of parent names
	defaults        map[string]map[string][]value.Value
}

// New constructs a Scene named name. driver may be render.NewNullDriver()
// when no GPU context is available (production GL/GLES backends remain a
// non-goal per spec.md).
func New(name string, ctx root.Context, driver render.Driver, metrics *stats.Collector) *Scene {
	s := &Scene{
		ctx:          ctx,
		driver:       driver,
		metrics:      metrics,
		swapInterval: 1,
		links:        make(map[string]map[string]bool),
	}
	s.RootObject = root.New(name, ctx, root.NewObjectsFactory(), s)
	s.registerAttributes()
	return s
}

func (s *Scene) registerAttributes() {
	s.AddAttribute(graph.NewAttribute(
		"runInBackground", []byte{'b'}, "if true, no window is created", graph.Async, false,
		func(args []value.Value) (bool, error) {
			b, _ := args[0].AsBool()
			s.mu.Lock()
			s.runInBackground = b
			s.mu.Unlock()
			return true, nil
		},
		func() []value.Value {
			s.mu.Lock()
			defer s.mu.Unlock()
			return []value.Value{value.NewBool(s.runInBackground)}
		},
	))
	s.AddAttribute(graph.NewAttribute(
		"swapInterval", []byte{'i'}, "vsyncs between buffer swaps, 0 disables vsync", graph.ForceSync, false,
		func(args []value.Value) (bool, error) {
			if len(args) != 1 {
				return false, nil
			}
			n64, _ := args[0].AsInt()
			n := int(n64)
			s.mu.Lock()
			s.swapInterval = n
			s.mu.Unlock()
			s.driver.SwapInterval(n)
			return true, nil
		},
		func() []value.Value {
			s.mu.Lock()
			defer s.mu.Unlock()
			return []value.Value{value.NewInt(int64(s.swapInterval))}
		},
	))
	s.AddAttribute(graph.NewAttribute(
		"uploadTextures", []byte{}, "upload every owned buffer's payload to the render driver", graph.ForceSync, false,
		func(args []value.Value) (bool, error) {
			s.uploadTextures()
			return true, nil
		},
		nil,
	))
	s.AddAttribute(graph.NewAttribute(
		"start", []byte{}, "begin the render loop", graph.ForceSync, false,
		func(args []value.Value) (bool, error) {
			s.mu.Lock()
			s.started = true
			s.mu.Unlock()
			return true, nil
		},
		nil,
	))
	s.AddAttribute(graph.NewAttribute(
		"quit", []byte{}, "stop the step loop", graph.ForceSync, false,
		func(args []value.Value) (bool, error) {
			s.Quit()
			return true, nil
		},
		nil,
	))
	s.AddAttribute(graph.NewAttribute(
		"link", []byte{'s', 's'}, "link(child, parent)", graph.ForceSync, false,
		func(args []value.Value) (bool, error) {
			if len(args) != 2 {
				return false, nil
			}
			child, _ := args[0].AsString()
			parent, _ := args[1].AsString()
			return s.Link(child, parent), nil
		},
		nil,
	))
	s.AddAttribute(graph.NewAttribute(
		"unlink", []byte{'s', 's'}, "unlink(child, parent)", graph.ForceSync, false,
		func(args []value.Value) (bool, error) {
			if len(args) != 2 {
				return false, nil
			}
			child, _ := args[0].AsString()
			parent, _ := args[1].AsString()
			s.Unlink(child, parent)
			return true, nil
		},
		nil,
	))
	s.AddAttribute(graph.NewAttribute(
		"addObject", []byte{'s', 's'}, "type, name", graph.ForceSync, false,
		func(args []value.Value) (bool, error) {
			if len(args) < 2 {
				return false, nil
			}
			typ, _ := args[0].AsString()
			name, _ := args[1].AsString()
			_, ok := s.CreateObject(typ, name)
			if ok {
				s.applyDefaults(typ, name)
			}
			return ok, nil
		},
		nil,
	))
}

// Announce implements spec §4.10's "on start ... sends sceneLaunched to
// World", sent as a plain (non-rendezvous) message addressed to the
// reserved World peer name.
func (s *Scene) Announce() {
	s.SendMessage(root.WorldName, "sceneLaunched", nil)
}

// LoadDefaults mirrors World.LoadDefaults: the same SPLASH_DEFAULTS table
// is consulted by both processes' factories, since either may be the one
// that actually creates a given named object (spec §6.4).
func (s *Scene) LoadDefaults(filename string) error {
	defaults, err := config.LoadDefaults(filename)
	if err != nil {
		return err
	}
	s.defaults = defaults
	return nil
}

func (s *Scene) applyDefaults(typ, name string) {
	if s.defaults == nil {
		return
	}
	for attr, args := range s.defaults[typ] {
		s.SetValues(name, attr, args, true)
	}
}

// Link records that child depends on parent, rejecting a link against an
// unknown child (spec §4.10's original link() "Return true if the linking
// succeeded"). The actual rendering wiring this implies is opaque to this
// spec (spec.md §4.10: "the main loop's render step is opaque").
func (s *Scene) Link(child, parent string) bool {
	if _, ok := s.Lookup(child); !ok {
		xlog.Warningf("scene: %s: link(%s, %s): no such child object", s.Name(), child, parent)
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.links[child] == nil {
		s.links[child] = make(map[string]bool)
	}
	s.links[child][parent] = true
	return true
}

// Unlink always succeeds, matching the original's "this always succeeds".
func (s *Scene) Unlink(child, parent string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links[child], parent)
}

// ParentsOf reports every parent currently linked to child, for tests and
// a future render backend to query.
func (s *Scene) ParentsOf(child string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	parents := make([]string, 0, len(s.links[child]))
	for parent := range s.links[child] {
		parents = append(parents, parent)
	}
	return parents
}

// uploadTextures collects every owned BufferObject (image/mesh) and hands
// them to the render driver, answering World's uploadTextures broadcast
// (spec §4.10).
func (s *Scene) uploadTextures() {
	var handles []render.BufferHandle
	for _, e := range s.Snapshot() {
		switch e.Category() {
		case graph.CategoryImage, graph.CategoryMesh:
			handles = append(handles, render.BufferHandle{Name: e.Name(), Kind: e.Category().String()})
		}
	}
	if err := s.driver.UploadTextures(context.Background(), handles); err != nil {
		xlog.Warningf("scene: %s: uploadTextures: %v", s.Name(), err)
	}
}

// OnStep implements root.Role: once started, it drives one render frame
// per step at the driver's configured swap interval.
func (s *Scene) OnStep(r *root.RootObject) {
	s.metrics.SetTreeQueueDepth(r.TreeQueueDepth())

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	if err := s.driver.RenderFrame(context.Background()); err != nil {
		xlog.Warningf("scene: %s: renderFrame: %v", s.Name(), err)
	}
}

// HandleSerializedObject implements root.Role's hook for a buffer whose
// target matches no locally owned BufferObject: a Scene has nowhere
// further to forward it, so it is logged and dropped (spec §4.8: "Scene
// logs and drops").
func (s *Scene) HandleSerializedObject(r *root.RootObject, target string, obj *sobj.Serialized) bool {
	xlog.Warningf("scene: %s: unknown-target: buffer addressed to %q", s.Name(), target)
	return false
}

// Run drives the step loop until Quit is called or stopCh closes,
// recording each step's duration.
func (s *Scene) Run(stopCh <-chan struct{}) {
	for !s.ShouldQuit() {
		select {
		case <-stopCh:
			return
		default:
		}
		start := time.Now()
		s.Step()
		s.metrics.ObserveStepDuration(time.Since(start).Seconds())
	}
}
