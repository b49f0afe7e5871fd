package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// TestLoadLegacyFlatLayout is spec §8 scenario S6.
func TestLoadLegacyFlatLayout(t *testing.T) {
	path := writeTemp(t, `{
		"description": "splashConfiguration",
		"version": "0.7.0",
		"world": {"framerate": 30},
		"scenes": [{"name": "main"}],
		"main": {
			"cam": {"type": "camera"},
			"links": [["cam", "win"]]
		}
	}`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Version != CurrentVersion {
		t.Fatalf("Version = %q, want %q", doc.Version, CurrentVersion)
	}
	scene, ok := doc.Scenes["main"]
	if !ok {
		t.Fatalf("expected a %q scene, got %v", "main", doc.Scenes)
	}
	if _, ok := scene.Objects["cam"]; !ok {
		t.Fatalf("expected migrated object %q, got %v", "cam", scene.Objects)
	}
	if len(scene.Links) != 1 || scene.Links[0] != [2]string{"cam", "win"} {
		t.Fatalf("links = %v", scene.Links)
	}
	rate, ok := doc.World["targetFrameRate"]
	if !ok {
		t.Fatalf("expected legacy world framerate migrated to targetFrameRate, got %v", doc.World)
	}
	if v, _ := rate.AsReal(); v != 30 {
		t.Fatalf("targetFrameRate = %v, want 30", v)
	}
	if _, ok := doc.World["framerate"]; ok {
		t.Fatalf("legacy framerate key should have been removed")
	}
}

func TestUpgradeWindowDefaultLayoutAndBooleanCoercion(t *testing.T) {
	path := writeTemp(t, `{
		"description": "splashConfiguration",
		"version": "0.7.15",
		"world": {},
		"scenes": {
			"main": {
				"objects": {
					"win": {"type": "window", "decorated": 0, "hide": 1}
				}
			}
		}
	}`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	win := doc.Scenes["main"].Objects["win"]
	layout, ok := win.Attributes["layout"]
	if !ok {
		t.Fatalf("expected a layout attribute, got %v", win.Attributes)
	}
	if items, _ := layout.AsList(); len(items) != 4 {
		t.Fatalf("expected a default 4-element layout, got %v", items)
	}
	decorated, ok := win.Attributes["decorated"]
	if !ok {
		t.Fatalf("expected a decorated attribute")
	}
	if b, _ := decorated.AsBool(); b {
		t.Fatalf("decorated should be coerced to false, got %v", decorated)
	}
	hide, ok := win.Attributes["hide"]
	if !ok {
		t.Fatalf("expected a hide attribute")
	}
	if b, _ := hide.AsBool(); !b {
		t.Fatalf("hide should be coerced to true, got %v", hide)
	}
}

func TestUpgradeSidenessAndFullscreen(t *testing.T) {
	path := writeTemp(t, `{
		"description": "splashConfiguration",
		"version": "0.10.0",
		"world": {},
		"scenes": {
			"main": {
				"objects": {
					"obj": {"type": "object", "sideness": 1},
					"win": {"type": "window", "guiOnly": true}
				}
			}
		}
	}`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	scene := doc.Scenes["main"]
	obj, ok := scene.Objects["obj"]
	if !ok {
		t.Fatalf("expected object %q to survive", "obj")
	}
	if _, ok := obj.Attributes["sideness"]; ok {
		t.Fatalf("sideness should have been renamed away")
	}
	if _, ok := obj.Attributes["culling"]; !ok {
		t.Fatalf("expected culling to be set from sideness")
	}
	if _, ok := scene.Objects["win"]; ok {
		t.Fatalf("a guiOnly window should be dropped by the upgrade chain")
	}
}

func TestLoadRejectsUnknownDescription(t *testing.T) {
	path := writeTemp(t, `{"description": "somethingElse", "version": "1.0.0"}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an unrecognized description field")
	}
}

func TestLoadProjectFile(t *testing.T) {
	path := writeTemp(t, `{
		"description": "splashProject",
		"version": "1.0.0",
		"scenes": {"main": {"objects": {"cam": {"type": "camera", "savable": true}}}}
	}`)
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !doc.IsProject() {
		t.Fatalf("IsProject() = false, want true")
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.json")
	if err := os.WriteFile(path, []byte(`{
		"camera": {"fov": 45, "position": [0, 0, 5]},
		"window": {"fullscreen": "windowed"}
	}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	defaults, err := LoadDefaults(path)
	if err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}
	fov := defaults["camera"]["fov"]
	if len(fov) != 1 {
		t.Fatalf("fov = %v", fov)
	}
	if v, _ := fov[0].AsReal(); v != 45 {
		t.Fatalf("fov = %v, want 45", v)
	}
	position := defaults["camera"]["position"]
	if len(position) != 3 {
		t.Fatalf("position = %v, want 3 arguments", position)
	}
	fullscreen := defaults["window"]["fullscreen"]
	if len(fullscreen) != 1 {
		t.Fatalf("fullscreen = %v", fullscreen)
	}
	if s, _ := fullscreen[0].AsString(); s != "windowed" {
		t.Fatalf("fullscreen = %q, want %q", s, "windowed")
	}
}
