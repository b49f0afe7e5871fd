package world

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paperManu/splash/config"
	"github.com/paperManu/splash/root"
	"github.com/paperManu/splash/value"
)

var errSpawnFailed = errors.New("spawn failed")

type fakeSpawner struct {
	mu      sync.Mutex
	spawned []string
	fail    map[string]bool
	stopped []string
	notify  func(sceneName string)
}

func (f *fakeSpawner) Spawn(sceneName, display string, ctx root.Context) (func(), error) {
	f.mu.Lock()
	if f.fail[sceneName] {
		f.mu.Unlock()
		return nil, errSpawnFailed
	}
	f.spawned = append(f.spawned, sceneName)
	f.mu.Unlock()
	if f.notify != nil {
		f.notify(sceneName)
	}
	return func() {
		f.mu.Lock()
		f.stopped = append(f.stopped, sceneName)
		f.mu.Unlock()
	}, nil
}

func newTestWorld(t *testing.T, spawner Spawner) *World {
	t.Helper()
	w := New("world", root.Context{}, spawner, nil)
	t.Cleanup(w.Shutdown)
	return w
}

func TestSpawnSceneWaitsForSceneLaunchedAnnouncement(t *testing.T) {
	spawner := &fakeSpawner{}
	w := newTestWorld(t, spawner)
	spawner.notify = func(sceneName string) {
		w.SetValues("world", "sceneLaunched", nil, true)
		w.Step() // sceneLaunched is ForceSync, so SetValues has already run its callback
	}

	w.spawnScene("main", config.SceneConfig{Spawn: true})

	if len(spawner.spawned) != 1 || spawner.spawned[0] != "main" {
		t.Fatalf("spawned = %v", spawner.spawned)
	}
	if w.ShouldQuit() {
		t.Fatalf("World should not quit when sceneLaunched arrives in time")
	}
}

func TestSpawnSceneQuitsOnLaunchTimeout(t *testing.T) {
	original := sceneLaunchTimeout
	sceneLaunchTimeout = 20 * time.Millisecond
	defer func() { sceneLaunchTimeout = original }()

	spawner := &fakeSpawner{}
	w := newTestWorld(t, spawner)

	w.spawnScene("slow", config.SceneConfig{Spawn: true})

	if !w.ShouldQuit() {
		t.Fatalf("World should quit when a spawned scene never announces sceneLaunched")
	}
}

func TestSpawnSceneSkipsOnSpawnFailure(t *testing.T) {
	spawner := &fakeSpawner{fail: map[string]bool{"broken": true}}
	w := newTestWorld(t, spawner)

	w.spawnScene("broken", config.SceneConfig{Spawn: true})

	if w.ShouldQuit() {
		t.Fatalf("a spawn failure should be skipped, not abort the whole World")
	}
	if _, ok := w.scenes["broken"]; ok {
		t.Fatalf("a failed spawn should not be recorded as a live scene")
	}
}

func TestAddObjectCreatesLocalShadowOnlyForBufferTypes(t *testing.T) {
	w := newTestWorld(t, nil)

	w.AddObject("", "img", "image", map[string]value.Value{
		"alias": value.NewString("frame"),
	})
	if _, ok := w.Lookup("img"); !ok {
		t.Fatalf("expected a local shadow for a BufferObject type")
	}
	img, _ := w.Lookup("img")
	got, _ := img.GetAttribute("alias")
	if len(got) != 1 {
		t.Fatalf("configured attribute should have been applied to the local shadow, got %v", got)
	}

	w.AddObject("", "win", "window", nil)
	if _, ok := w.Lookup("win"); ok {
		t.Fatalf("window is not a BufferObject type and should not get a local shadow")
	}
}

func TestApplyHonorsExplicitDefaultsBeforeConfiguredAttributes(t *testing.T) {
	w := newTestWorld(t, nil)
	w.defaults = map[string]map[string][]value.Value{
		"image": {"alias": []value.Value{value.NewString("default")}},
	}

	w.AddObject("", "img", "image", map[string]value.Value{
		"alias": value.NewString("explicit"),
	})

	img, _ := w.Lookup("img")
	got, _ := img.GetAttribute("alias")
	if len(got) != 1 {
		t.Fatalf("GetAttribute(alias) = %v", got)
	}
	if s, _ := got[0].AsString(); s != "explicit" {
		t.Fatalf("alias = %q, want the configured value to win over the default", s)
	}
}

func TestApplyPicksFirstSceneInSortedOrderAsMaster(t *testing.T) {
	w := newTestWorld(t, nil)
	doc := &config.Document{
		Scenes: map[string]config.SceneConfig{
			"zeta":  {},
			"alpha": {},
		},
	}
	w.Apply(doc)
	if w.MasterScene() != "alpha" {
		t.Fatalf("MasterScene() = %q, want %q", w.MasterScene(), "alpha")
	}
}
