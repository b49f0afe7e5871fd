package scene

import (
	"context"
	"sync"
	"testing"

	"github.com/paperManu/splash/render"
	"github.com/paperManu/splash/root"
	"github.com/paperManu/splash/value"
)

type recordingDriver struct {
	mu       sync.Mutex
	uploaded []render.BufferHandle
	frames   int
	interval int
}

func (d *recordingDriver) UploadTextures(ctx context.Context, buffers []render.BufferHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uploaded = append(d.uploaded, buffers...)
	return nil
}

func (d *recordingDriver) RenderFrame(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames++
	return nil
}

func (d *recordingDriver) SwapInterval(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interval = n
}

func newTestScene(t *testing.T, driver render.Driver) *Scene {
	t.Helper()
	s := New("main", root.Context{}, driver, nil)
	t.Cleanup(s.Close)
	return s
}

func TestAnnounceSendsSceneLaunchedToWorld(t *testing.T) {
	s := newTestScene(t, render.NewNullDriver())
	// No Link attached: SendMessage falls back to a local SetValues, so
	// this merely exercises that Announce doesn't panic without a World
	// peer to receive it.
	s.Announce()
}

func TestUploadTexturesCollectsOnlyBufferTypes(t *testing.T) {
	driver := &recordingDriver{}
	s := newTestScene(t, driver)
	s.CreateObject("image", "img")
	s.CreateObject("mesh", "msh")
	s.CreateObject("window", "win")

	s.SetValues(s.Name(), "uploadTextures", nil, true)
	s.Step()

	driver.mu.Lock()
	defer driver.mu.Unlock()
	if len(driver.uploaded) != 2 {
		t.Fatalf("uploaded = %v, want 2 buffer handles", driver.uploaded)
	}
	seen := map[string]string{}
	for _, h := range driver.uploaded {
		seen[h.Name] = h.Kind
	}
	if seen["img"] != "image" || seen["msh"] != "mesh" {
		t.Fatalf("uploaded kinds = %v", seen)
	}
}

func TestStartGatesRenderFrame(t *testing.T) {
	driver := &recordingDriver{}
	s := newTestScene(t, driver)

	s.Step()
	driver.mu.Lock()
	frames := driver.frames
	driver.mu.Unlock()
	if frames != 0 {
		t.Fatalf("RenderFrame should not run before start, frames = %d", frames)
	}

	s.SetValues(s.Name(), "start", nil, true)
	s.Step()
	driver.mu.Lock()
	frames = driver.frames
	driver.mu.Unlock()
	if frames != 1 {
		t.Fatalf("RenderFrame should run once per step after start, frames = %d", frames)
	}
}

func TestQuitStopsTheStepLoop(t *testing.T) {
	s := newTestScene(t, render.NewNullDriver())
	s.SetValues(s.Name(), "quit", nil, true)
	s.Step()
	if !s.ShouldQuit() {
		t.Fatalf("quit message should set ShouldQuit")
	}
}

func TestLinkRejectsUnknownChildAndUnlinkAlwaysSucceeds(t *testing.T) {
	s := newTestScene(t, render.NewNullDriver())
	s.CreateObject("image", "child")
	s.CreateObject("image", "parent")

	if s.Link("nosuch", "parent") {
		t.Fatalf("Link against an unknown child should fail")
	}
	if !s.Link("child", "parent") {
		t.Fatalf("Link against a known child should succeed")
	}
	if got := s.ParentsOf("child"); len(got) != 1 || got[0] != "parent" {
		t.Fatalf("ParentsOf(child) = %v", got)
	}

	s.Unlink("child", "parent")
	if got := s.ParentsOf("child"); len(got) != 0 {
		t.Fatalf("ParentsOf(child) after unlink = %v, want none", got)
	}
	// Unlinking an object with no recorded links at all must not panic
	// and always succeeds, per the original's "this always succeeds".
	s.Unlink("nosuch", "parent")
}

func TestSwapIntervalForwardsToDriver(t *testing.T) {
	driver := &recordingDriver{}
	s := newTestScene(t, driver)

	s.SetValues(s.Name(), "swapInterval", []value.Value{value.NewInt(2)}, true)
	s.Step()

	driver.mu.Lock()
	interval := driver.interval
	driver.mu.Unlock()
	if interval != 2 {
		t.Fatalf("driver swap interval = %d, want 2", interval)
	}
}

func TestAddObjectAppliesDefaults(t *testing.T) {
	s := newTestScene(t, render.NewNullDriver())
	if err := s.LoadDefaults("/nonexistent-defaults.json"); err == nil {
		t.Fatalf("LoadDefaults against a missing file should return an error")
	}
	s.defaults = map[string]map[string][]value.Value{
		"image": {"alias": []value.Value{value.NewString("fromDefaults")}},
	}

	s.SetValues(s.Name(), "addObject", []value.Value{value.NewString("image"), value.NewString("img")}, true)
	s.Step()

	img, ok := s.Lookup("img")
	if !ok {
		t.Fatalf("addObject should have created img")
	}
	got, _ := img.GetAttribute("alias")
	if len(got) != 1 {
		t.Fatalf("GetAttribute(alias) = %v", got)
	}
	if v, _ := got[0].AsString(); v != "fromDefaults" {
		t.Fatalf("alias = %q, want %q", v, "fromDefaults")
	}
}
