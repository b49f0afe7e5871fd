package world

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/paperManu/splash/config"
	"github.com/paperManu/splash/graph"
	"github.com/paperManu/splash/internal/xlog"
	"github.com/paperManu/splash/link"
	"github.com/paperManu/splash/root"
	"github.com/paperManu/splash/sobj"
	"github.com/paperManu/splash/stats"
	"github.com/paperManu/splash/value"
)

// bufferTypes names the object types World keeps a local shadow of: only
// types deriving from BufferObject need a local instance, since World's own
// role is to serialize and broadcast their payload, not to render them
// (spec §4.9: "creates a local shadow (only for types that derive from
// BufferObject)").
var bufferTypes = map[string]bool{"image": true, "mesh": true}

func isBufferType(typ string) bool { return bufferTypes[typ] }

type sceneEntry struct {
	cfg  config.SceneConfig
	stop func()
}

// World is spec §4.9's master role: it owns the configuration, spawns
// Scene subprocesses, fans configured objects/links/attributes out to
// them, and rebroadcasts any buffer addressed to a name it doesn't own
// locally.
type World struct {
	*root.RootObject

	ctx      root.Context
	spawner  Spawner
	metrics  *stats.Collector
	defaults map[string]map[string][]value.Value

	mu          sync.Mutex
	scenes      map[string]*sceneEntry
	masterScene string
	connected   int

	launchFlag atomic.Bool
	launchCh   chan struct{}
}

// New constructs a World ready to have LoadAndApply called on it. spawner
// may be a fake in tests; metrics may be nil (every Collector method is a
// nil-safe no-op).
func New(name string, ctx root.Context, spawner Spawner, metrics *stats.Collector) *World {
	w := &World{
		ctx:      ctx,
		spawner:  spawner,
		metrics:  metrics,
		scenes:   make(map[string]*sceneEntry),
		launchCh: make(chan struct{}, 1),
	}
	w.RootObject = root.New(name, ctx, root.NewObjectsFactory(), w)
	w.registerAttributes()
	return w
}

func (w *World) registerAttributes() {
	w.AddAttribute(graph.NewAttribute(
		"sceneLaunched", []byte{}, "rendezvous signal sent by a Scene once its link is open", graph.ForceSync, false,
		func(args []value.Value) (bool, error) {
			w.signalLaunched()
			return true, nil
		},
		nil,
	))
	w.AddAttribute(graph.NewAttribute(
		"addObject", []byte{'s', 's', 's'}, "type, name, scene (empty = every Scene)", graph.ForceSync, false,
		func(args []value.Value) (bool, error) {
			if len(args) < 2 {
				return false, nil
			}
			typ, _ := args[0].AsString()
			name, _ := args[1].AsString()
			scene := ""
			if len(args) > 2 {
				scene, _ = args[2].AsString()
			}
			w.AddObject(scene, name, typ, nil)
			return true, nil
		},
		nil,
	))
}

// signalLaunched/resetLaunch/waitForLaunch mirror RootObject's
// SignalBufferObjectUpdated single-waker pattern, standing in for the
// original's single shared condition variable: original_source's
// world.cpp resets one _sceneLaunched bool before every spawn and blocks
// on one condition variable regardless of which Scene answers, rather
// than tracking per-scene channels — spawning is sequential, so there is
// never more than one outstanding wait.
func (w *World) signalLaunched() {
	if w.launchFlag.CompareAndSwap(false, true) {
		select {
		case w.launchCh <- struct{}{}:
		default:
		}
	}
}

func (w *World) resetLaunch() {
	w.launchFlag.Store(false)
	select {
	case <-w.launchCh:
	default:
	}
}

func (w *World) waitForLaunch(timeout time.Duration) bool {
	select {
	case <-w.launchCh:
		w.launchFlag.Store(false)
		return true
	case <-time.After(timeout):
		return false
	}
}

// LoadAndApply loads filename as a configuration or project document and
// applies it: spawning Scenes, creating objects, replaying links and
// attributes (spec §4.9).
func (w *World) LoadAndApply(filename string) error {
	doc, err := config.Load(filename)
	if err != nil {
		return err
	}
	if doc.IsProject() {
		w.DisposeSavableObjects()
	}
	w.Apply(doc)
	return nil
}

// LoadDefaults loads the SPLASH_DEFAULTS table (spec §6.4) applied to
// every object this World shadows or asks a Scene to create, right before
// the configured attributes so explicit configuration always wins.
func (w *World) LoadDefaults(filename string) error {
	defaults, err := config.LoadDefaults(filename)
	if err != nil {
		return err
	}
	w.defaults = defaults
	return nil
}

// Apply spawns every configured Scene in sorted name order (a stable
// substitute for the original's JSON-array order, since Document.Scenes is
// keyed by a Go map), then fans out objects, links and attributes.
func (w *World) Apply(doc *config.Document) {
	names := sortedSceneNames(doc.Scenes)
	w.mu.Lock()
	if len(names) > 0 {
		w.masterScene = names[0]
	}
	w.mu.Unlock()

	for _, name := range names {
		cfg := doc.Scenes[name]
		if cfg.Spawn {
			w.spawnScene(name, cfg)
		} else {
			w.RootObject.ConnectTo(name)
			w.recordScene(name, cfg, nil)
		}
	}

	for _, name := range names {
		cfg := doc.Scenes[name]
		for objName, objCfg := range cfg.Objects {
			w.AddObject(name, objName, objCfg.Type, objCfg.Attributes)
		}
		for _, l := range cfg.Links {
			w.Link(l[0], l[1])
		}
		for attr, val := range cfg.Attributes {
			items, _ := val.AsList()
			w.SendMessage(name, attr, items)
		}
	}

	w.applyWorldAttributes(doc.World)

	if _, ok := w.Lookup("ltc_clock"); !ok {
		w.CreateObject("ltc_clock", "ltc_clock")
	}

	for _, name := range names {
		w.SendMessage(name, "start", nil)
	}
}

func (w *World) applyWorldAttributes(attrs map[string]value.Value) {
	for attr, val := range attrs {
		items, _ := val.AsList()
		w.SetValues(w.Name(), attr, items, true)
	}
}

// MasterScene returns the first Scene (in sorted name order) named in the
// most recently applied configuration, mirroring _masterSceneName.
func (w *World) MasterScene() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.masterScene
}

func sortedSceneNames(scenes map[string]config.SceneConfig) []string {
	names := make([]string, 0, len(scenes))
	for name := range scenes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// spawnScene launches sceneName's subprocess and waits for its
// sceneLaunched announcement, aborting the whole World (spec §4.9, §7
// child-spawn-failed: "World continues with the remaining Scenes" on a
// spawn failure, but a launch timeout is treated as fatal since the
// original aborts/quits on it).
func (w *World) spawnScene(name string, cfg config.SceneConfig) {
	if w.spawner == nil {
		w.RootObject.ConnectTo(name)
		w.recordScene(name, cfg, nil)
		return
	}

	w.resetLaunch()
	stop, err := w.spawner.Spawn(name, cfg.Display, w.ctx)
	if err != nil {
		xlog.Errorf("world: child-spawn-failed: scene %q: %v", name, err)
		return
	}
	w.RootObject.ConnectTo(name)
	w.recordScene(name, cfg, stop)

	if !w.waitForLaunch(sceneLaunchTimeout) {
		xlog.Errorf("world: scene %q did not announce sceneLaunched within %s, aborting", name, sceneLaunchTimeout)
		w.Quit()
	}
}

func (w *World) recordScene(name string, cfg config.SceneConfig, stop func()) {
	w.mu.Lock()
	w.scenes[name] = &sceneEntry{cfg: cfg, stop: stop}
	w.connected = len(w.scenes)
	w.mu.Unlock()
	w.metrics.SetScenesConnected(w.connected)
}

// AddObject implements spec §4.9's per-object fan-out: a local shadow is
// created only for BufferObject-derived types, and every Scene named (or
// every Scene, when sceneName is empty) is asked to create its own full
// instance. Configured attrs are applied to the local shadow (if any) and
// replayed as set messages addressed to objName, so only the Scene(s) that
// actually own that name act on them (spec §4.5: an unmatched target is
// logged and dropped by its receiver).
func (w *World) AddObject(sceneName, objName, objType string, attrs map[string]value.Value) {
	if isBufferType(objType) {
		if _, ok := w.CreateObject(objType, objName); ok {
			w.applyDefaults(objType, objName)
			for attr, val := range attrs {
				items, _ := val.AsList()
				w.SetValues(objName, attr, items, false)
			}
		}
	}

	target := sceneName
	if target == "" {
		target = link.BroadcastName
	}
	w.SendMessage(target, "addObject", []value.Value{
		value.NewString(objType), value.NewString(objName), value.NewString(sceneName), value.NewBool(false),
	})

	for attr, val := range attrs {
		items, _ := val.AsList()
		w.SendMessage(objName, attr, items)
	}
}

func (w *World) applyDefaults(typ, name string) {
	if w.defaults == nil {
		return
	}
	for attr, args := range w.defaults[typ] {
		w.SetValues(name, attr, args, false)
	}
}

// Link replays a configured link as a tree/message command addressed to
// every Scene (spec §4.9: "for each configured link ... replays as tree
// commands").
func (w *World) Link(source, sink string) {
	w.SendMessage(link.BroadcastName, "link", []value.Value{value.NewString(source), value.NewString(sink)})
}

// Unlink is the inverse of Link.
func (w *World) Unlink(source, sink string) {
	w.SendMessage(link.BroadcastName, "unlink", []value.Value{value.NewString(source), value.NewString(sink)})
}

// OnStep implements root.Role: it records step-loop metrics and drives the
// optional LTC clock by simply letting its own AddPeriodicTask run through
// the shared RootObject.Step's per-object RunTasks — no special driving
// logic is needed here beyond having created it in Apply.
func (w *World) OnStep(r *root.RootObject) {
	w.mu.Lock()
	connected := w.connected
	w.mu.Unlock()
	w.metrics.SetScenesConnected(connected)
	w.metrics.SetTreeQueueDepth(r.TreeQueueDepth())
}

// HandleSerializedObject implements root.Role's hook for a buffer whose
// target matches no locally owned BufferObject: World rebroadcasts it to
// every Scene (spec §4.9, §4.8 "World re-sends it to every Scene").
func (w *World) HandleSerializedObject(r *root.RootObject, target string, obj *sobj.Serialized) bool {
	ok := w.RootObject.SendBuffer(target, obj)
	w.metrics.AddBuffersSent(1)
	return ok
}

// Run drives the step loop until Quit is called or stopCh closes,
// recording each step's duration.
func (w *World) Run(stopCh <-chan struct{}) {
	for !w.ShouldQuit() {
		select {
		case <-stopCh:
			return
		default:
		}
		start := time.Now()
		w.Step()
		w.metrics.ObserveStepDuration(time.Since(start).Seconds())
	}
}

// Shutdown stops every spawned Scene subprocess and closes the RootObject.
func (w *World) Shutdown() {
	w.mu.Lock()
	entries := make([]*sceneEntry, 0, len(w.scenes))
	for _, e := range w.scenes {
		entries = append(entries, e)
	}
	w.scenes = make(map[string]*sceneEntry)
	w.mu.Unlock()

	for _, e := range entries {
		if e.stop != nil {
			e.stop()
		}
	}
	w.Close()
}
