package config

import (
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/paperManu/splash/value"
)

// LoadDefaults reads the SPLASH_DEFAULTS file (spec.md §6.4): a JSON object
// keyed by object type name, each holding an object of attribute name to
// default argument value(s), applied by the root's factory right after
// CreateObject and before the caller's own setAttribute calls.
func LoadDefaults(filename string) (map[string]map[string][]value.Value, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "config: unable to open defaults file %s", filename)
	}

	var raw map[string]map[string]jsoniter.RawMessage
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "config: unable to parse defaults file %s", filename)
	}

	out := make(map[string]map[string][]value.Value, len(raw))
	for typeName, attrs := range raw {
		converted := make(map[string][]value.Value, len(attrs))
		for attrName, data := range attrs {
			args, err := valueArgs(data)
			if err != nil {
				return nil, errors.Wrapf(err, "config: %s: type %q attribute %q", filename, typeName, attrName)
			}
			converted[attrName] = args
		}
		out[typeName] = converted
	}
	return out, nil
}

// valueArgs decodes one raw JSON token into the argument list a setter
// call is made with, mirroring original_source/src/utils/jsonutils.cpp's
// jsonToValues: a scalar or object becomes a single argument; a top-level
// JSON array becomes one argument per element (each element still decoded
// through value.Value's own JSON codec, so a nested array/object within an
// element stays a single list/tuple Value rather than being split
// further).
func valueArgs(data jsoniter.RawMessage) ([]value.Value, error) {
	trimmed := data
	for len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\t' || trimmed[0] == '\n') {
		trimmed = trimmed[1:]
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var elements []jsoniter.RawMessage
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &elements); err != nil {
			return nil, err
		}
		args := make([]value.Value, len(elements))
		for i, elem := range elements {
			if err := args[i].UnmarshalJSON(elem); err != nil {
				return nil, err
			}
		}
		return args, nil
	}

	var v value.Value
	if err := v.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return []value.Value{v}, nil
}
