package config

// rawDoc is a configuration document still in its generic JSON shape, before
// decodeDocument folds it into a Document. Every upgrade rule operates on
// this shape so the chain composes without an intermediate strongly-typed
// representation, mirroring original_source's in-place Json::Value rewrites.
type rawDoc = map[string]any

// boolAttributes is the set of attributes jsonutils.cpp coerces to proper
// JSON booleans in the < 0.8.20 rule; some configurations predating that
// release wrote them as 0/1. String values are left as they are.
var boolAttributes = []string{
	"16bits",
	"decorated",
	"flip",
	"flop",
	"forceRealtime",
	"looseClock",
	"fullscreen",
	"guiOnly",
	"hide",
	"invertChannels",
	"keepRatio",
	"pattern",
	"savable",
	"srgb",
	"weightedCalibrationPoints",
}

type upgradeRule struct {
	name    string
	applies func(major, minor, patch int) bool
	apply   func(*rawDoc)
}

// upgradeRules runs in original_source/src/utils/jsonutils.cpp order. Each
// rule's version gate is copied verbatim from the original's condition
// rather than normalized into a single "version < X.Y.Z" comparator: the
// original's gates are not uniformly monotonic (e.g. the first two test
// minor<=7 and the patch number independently, so 0.6.20 skips the
// flatten rule), and reproducing
// that literally is what keeps this chain's behavior identical to the
// configurations it has always accepted.
var upgradeRules = []upgradeRule{
	{
		name:    "flatten-to-hierarchical",
		applies: func(major, minor, patch int) bool { return major == 0 && minor <= 7 && patch < 15 },
		apply:   upgradeFlattenToHierarchical,
	},
	{
		name:    "window-default-layout",
		applies: func(major, minor, patch int) bool { return major == 0 && minor <= 7 && patch < 21 },
		apply:   upgradeWindowDefaultLayout,
	},
	{
		name: "boolean-coercion",
		applies: func(major, minor, patch int) bool {
			return (major == 0 && minor < 8) || (major == 0 && minor == 8 && patch < 20)
		},
		apply: upgradeBooleanCoercion,
	},
	{
		name: "sideness-to-culling",
		applies: func(major, minor, patch int) bool {
			return (major == 0 && minor < 10) || (major == 0 && minor == 10 && patch < 1)
		},
		apply: upgradeSidenessToCulling,
	},
	{
		name: "window-fullscreen-and-guionly",
		applies: func(major, minor, patch int) bool {
			return (major == 0 && minor < 10) || (major == 0 && minor == 10 && patch < 21)
		},
		apply: upgradeWindowFullscreenAndGUIOnly,
	},
}

// upgrade runs every applicable rule in order and stamps the result with
// CurrentVersion, mirroring checkAndUpgradeConfiguration's final
// `configuration["version"] = PACKAGE_VERSION`.
func upgrade(raw *rawDoc) error {
	major, minor, patch := parseVersion(stringField(*raw, "version"))
	for _, rule := range upgradeRules {
		if rule.applies(major, minor, patch) {
			rule.apply(raw)
		}
	}
	(*raw)["version"] = CurrentVersion
	return nil
}

// upgradeFlattenToHierarchical lifts the pre-0.7.15 flat layout (a "scenes"
// array of {"name": ...} carrying each scene's attributes, plus one
// top-level object per scene name holding that scene's objects and its
// "links" list) into the "scenes"/"objects" map
// hierarchy every later version expects.
func upgradeFlattenToHierarchical(raw *rawDoc) {
	newConfig := rawDoc{
		"description": descriptionConfiguration,
		"world":       (*raw)["world"],
	}
	scenes := rawDoc{}
	newConfig["scenes"] = scenes

	var sceneNames []string
	rawScenes, _ := (*raw)["scenes"].([]any)
	for _, s := range rawScenes {
		sceneMap, ok := s.(map[string]any)
		if !ok {
			continue
		}
		name, _ := sceneMap["name"].(string)
		sceneNames = append(sceneNames, name)
		if name == "" {
			continue
		}
		scene := rawDoc{}
		for attr, v := range sceneMap {
			if attr == "name" {
				continue
			}
			scene[attr] = v
		}
		scenes[name] = scene
	}

	for _, name := range sceneNames {
		legacyBlob, ok := (*raw)[name].(map[string]any)
		if !ok {
			continue
		}
		scene, ok := scenes[name].(rawDoc)
		if !ok {
			scene = rawDoc{}
			scenes[name] = scene
		}
		objects, ok := scene["objects"].(rawDoc)
		if !ok {
			objects = rawDoc{}
			scene["objects"] = objects
		}
		for attr, v := range legacyBlob {
			if attr == "links" {
				scene["links"] = v
				continue
			}
			objects[attr] = v
		}
	}

	*raw = newConfig
}

// upgradeWindowDefaultLayout gives every window object a layout of the
// four legacy corners [0,1,2,3] (single full-display quadrant layout),
// since the attribute didn't exist before 0.7.21.
func upgradeWindowDefaultLayout(raw *rawDoc) {
	forEachObject(*raw, func(_ string, obj rawDoc) {
		if obj["type"] != "window" {
			return
		}
		obj["layout"] = []any{float64(0), float64(1), float64(2), float64(3)}
	})
}

// upgradeBooleanCoercion walks every known boolean-typed attribute (on
// scene objects and on world) and coerces a loosely-typed JSON value
// (number, or the first element of an array) into a proper bool, skipping
// any value it cannot coerce (a string, matching jsoncpp's asBool()
// throwing Json::LogicError for non-numeric, non-bool values).
func upgradeBooleanCoercion(raw *rawDoc) {
	coerce := func(attrs rawDoc) {
		for _, attr := range boolAttributes {
			v, ok := attrs[attr]
			if !ok {
				continue
			}
			if arr, ok := v.([]any); ok && len(arr) > 0 {
				if b, ok := toBool(arr[0]); ok {
					arr[0] = b
				}
				continue
			}
			if b, ok := toBool(v); ok {
				attrs[attr] = b
			}
		}
	}

	forEachObject(*raw, func(_ string, obj rawDoc) { coerce(obj) })
	if world, ok := (*raw)["world"].(map[string]any); ok {
		coerce(world)
	}
}

// toBool mirrors Json::Value::asBool(): total for bool and numeric values,
// refuses (ok=false) to coerce a string, matching the original's
// catch-and-skip behavior for values it can't interpret as boolean.
func toBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	default:
		return false, false
	}
}

// upgradeSidenessToCulling renames the legacy "sideness" attribute to
// "culling" on every scene object that carries it.
func upgradeSidenessToCulling(raw *rawDoc) {
	forEachObject(*raw, func(_ string, obj rawDoc) {
		v, ok := obj["sideness"]
		if !ok {
			return
		}
		obj["culling"] = v
		delete(obj, "sideness")
	})
}

// upgradeWindowFullscreenAndGUIOnly gives every window (and any other
// object carrying a "fullscreen" key) a string "fullscreen" mode: an
// existing string is kept, a missing or legacy boolean value becomes
// "windowed". It drops those objects whose legacy "guiOnly" attribute was
// true, and
// folds in two supplemental normalizations original_source also performs
// around this version: a stray top-level "fullscreen" boolean left over
// from the single-window era is dropped in favor of the per-window
// string, and a legacy world "framerate" attribute is renamed to
// "targetFrameRate".
func upgradeWindowFullscreenAndGUIOnly(raw *rawDoc) {
	scenes, _ := (*raw)["scenes"].(map[string]any)
	for _, s := range scenes {
		scene, ok := s.(map[string]any)
		if !ok {
			continue
		}
		delete(scene, "fullscreen")

		objects, ok := scene["objects"].(map[string]any)
		if !ok {
			continue
		}
		var toDelete []string
		for name, o := range objects {
			obj, ok := o.(map[string]any)
			if !ok {
				continue
			}
			_, hadFullscreen := obj["fullscreen"]
			if obj["type"] != "window" && !hadFullscreen {
				continue
			}
			if _, isMode := obj["fullscreen"].(string); !isMode {
				obj["fullscreen"] = "windowed"
			}

			guiOnly, ok := obj["guiOnly"]
			if !ok {
				continue
			}
			if removed, _ := toBool(firstIfArray(guiOnly)); removed {
				toDelete = append(toDelete, name)
			}
		}
		for _, name := range toDelete {
			delete(objects, name)
		}
	}

	if world, ok := (*raw)["world"].(map[string]any); ok {
		delete(world, "fullscreen")
		if rate, ok := world["framerate"]; ok {
			world["targetFrameRate"] = rate
			delete(world, "framerate")
		}
	}
}

func firstIfArray(v any) any {
	if arr, ok := v.([]any); ok && len(arr) > 0 {
		return arr[0]
	}
	return v
}

// forEachObject visits every scene object across the whole document.
func forEachObject(raw rawDoc, fn func(name string, obj rawDoc)) {
	scenes, _ := raw["scenes"].(map[string]any)
	for _, s := range scenes {
		scene, ok := s.(map[string]any)
		if !ok {
			continue
		}
		objects, ok := scene["objects"].(map[string]any)
		if !ok {
			continue
		}
		for name, o := range objects {
			if obj, ok := o.(map[string]any); ok {
				fn(name, obj)
			}
		}
	}
}
