// Package config loads and upgrades Splash's JSON configuration and project
// files (spec.md §6.1), and loads the SPLASH_DEFAULTS attribute table.
package config

import (
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/paperManu/splash/value"
)

// CurrentVersion is stamped onto every document after the upgrade chain
// runs, mirroring PACKAGE_VERSION in original_source's jsonutils.cpp.
const CurrentVersion = "1.0.0"

const (
	descriptionConfiguration = "splashConfiguration"
	descriptionProject       = "splashProject"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Document is a validated, upgraded Splash configuration or project file.
// Attribute values are decoded directly into value.Value through its own
// JSON codec (value.Value.UnmarshalJSON) rather than left as a generic
// map[string]interface{} walk, matching SPEC_FULL.md's "JSON↔tree mapping
// contract": the document's shape (which keys exist, how they nest) is
// still resolved generically so the upgrade chain can rewrite it, but once
// an attribute's final name and value are known they become a Value a
// caller can feed straight into root.RootObject.SetValues.
type Document struct {
	Description string
	Version     string
	World       map[string]value.Value
	Scenes      map[string]SceneConfig
}

// SceneConfig is one entry of Document.Scenes.
type SceneConfig struct {
	Address    string
	Display    string
	Spawn      bool
	Objects    map[string]ObjectConfig
	Links      [][2]string
	Attributes map[string]value.Value
}

// ObjectConfig is one entry of SceneConfig.Objects.
type ObjectConfig struct {
	Type       string
	Attributes map[string]value.Value
}

// IsProject reports whether the document was loaded from a project file
// (description == "splashProject") rather than a full configuration.
func (d *Document) IsProject() bool { return d.Description == descriptionProject }

// Load reads filename, decodes it as JSON, validates its description field,
// runs the upgrade chain, and returns the resulting Document.
func Load(filename string) (*Document, error) {
	raw, err := decodeFile(filename)
	if err != nil {
		return nil, err
	}

	description, _ := raw["description"].(string)
	if description != descriptionConfiguration && description != descriptionProject {
		return nil, errors.Errorf("config: %s: unknown description %q, want %q or %q", filename, description, descriptionConfiguration, descriptionProject)
	}

	if err := upgrade(&raw); err != nil {
		return nil, errors.Wrapf(err, "config: %s: upgrade", filename)
	}

	return decodeDocument(raw)
}

func decodeFile(filename string) (rawDoc, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "config: unable to open %s", filename)
	}
	var raw rawDoc
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "config: unable to parse %s", filename)
	}
	return raw, nil
}

func decodeDocument(raw rawDoc) (*Document, error) {
	world, err := valuesFromMap(mapField(raw, "world"))
	if err != nil {
		return nil, errors.Wrap(err, "config: world attributes")
	}

	doc := &Document{
		Description: stringField(raw, "description"),
		Version:     stringField(raw, "version"),
		World:       world,
		Scenes:      map[string]SceneConfig{},
	}

	scenes, _ := raw["scenes"].(map[string]any)
	for name, rawScene := range scenes {
		sceneMap, ok := rawScene.(map[string]any)
		if !ok {
			continue
		}
		scene := SceneConfig{
			Address: stringField(sceneMap, "address"),
			Display: stringField(sceneMap, "display"),
			Spawn:   boolField(sceneMap, "spawn", true),
			Objects: map[string]ObjectConfig{},
		}

		rawObjects, _ := sceneMap["objects"].(map[string]any)
		for objName, rawObj := range rawObjects {
			objMap, ok := rawObj.(map[string]any)
			if !ok {
				continue
			}
			attrMap := map[string]any{}
			for k, v := range objMap {
				if k == "type" {
					continue
				}
				attrMap[k] = v
			}
			attrs, err := valuesFromMap(attrMap)
			if err != nil {
				return nil, errors.Wrapf(err, "config: scene %q object %q", name, objName)
			}
			scene.Objects[objName] = ObjectConfig{Type: stringField(objMap, "type"), Attributes: attrs}
		}

		if rawLinks, ok := sceneMap["links"].([]any); ok {
			for _, l := range rawLinks {
				pair, ok := l.([]any)
				if !ok || len(pair) != 2 {
					continue
				}
				src, _ := pair[0].(string)
				dst, _ := pair[1].(string)
				scene.Links = append(scene.Links, [2]string{src, dst})
			}
		}

		sceneAttrMap := map[string]any{}
		for k, v := range sceneMap {
			switch k {
			case "address", "display", "spawn", "objects", "links":
				continue
			}
			sceneAttrMap[k] = v
		}
		scene.Attributes, err = valuesFromMap(sceneAttrMap)
		if err != nil {
			return nil, errors.Wrapf(err, "config: scene %q attributes", name)
		}

		doc.Scenes[name] = scene
	}

	return doc, nil
}

// valuesFromMap converts a generic decoded-JSON map into value.Value by
// round-tripping each member through JSON (re-marshal via jsoniter, then
// value.Value.UnmarshalJSON) rather than a hand-rolled any->Value switch:
// the document's overall shape has to stay generic for the upgrade chain
// to rewrite it, but every individual attribute value flows through
// Value's own JSON codec once its final shape is settled.
func valuesFromMap(m map[string]any) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(m))
	for k, v := range m {
		data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "attribute %q", k)
		}
		var val value.Value
		if err := val.UnmarshalJSON(data); err != nil {
			return nil, errors.Wrapf(err, "attribute %q", k)
		}
		out[k] = val
	}
	return out, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func mapField(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	if v == nil {
		return map[string]any{}
	}
	return v
}

func boolField(m map[string]any, key string, def bool) bool {
	v, ok := m[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// parseVersion splits a "<major>.<minor>.<patch>" string as
// checkAndUpgradeConfiguration does, defaulting every unparsable or absent
// component to zero rather than failing the load.
func parseVersion(s string) (major, minor, patch int) {
	if s == "" {
		return 0, 0, 0
	}
	parts := strings.SplitN(s, ".", 3)
	if len(parts) > 0 {
		major, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(parts[1])
	}
	if len(parts) > 2 {
		patch, _ = strconv.Atoi(parts[2])
	}
	return major, minor, patch
}
