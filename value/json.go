package value

import (
	"bytes"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// MarshalJSON implements json.Marshaler so a Value round-trips through
// config's JSON configuration files and SPLASH_DEFAULTS table without an
// intermediate map[string]interface{} representation. A list marshals as
// a JSON array; a named tuple marshals as a JSON object keyed by each
// element's leaf name.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return jsonAPI.Marshal(v.b)
	case KindInt:
		return jsonAPI.Marshal(v.i)
	case KindReal:
		return jsonAPI.Marshal(v.r)
	case KindString:
		return jsonAPI.Marshal(v.s)
	case KindList:
		return jsonAPI.Marshal(v.list)
	case KindTuple:
		m := make(map[string]Value, len(v.list))
		for i, item := range v.list {
			m[v.names[i]] = item
		}
		return jsonAPI.Marshal(m)
	default:
		return nil, fmt.Errorf("value: MarshalJSON: unknown kind %v", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler. The JSON token's own shape
// picks the Kind: a string, boolean, or number decodes to the matching
// scalar; a JSON array decodes to a list; a JSON object decodes to a named
// tuple, one element per member. A bare JSON number decodes to KindInt
// when it carries no fractional/exponent part, KindReal otherwise.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("value: UnmarshalJSON: empty input")
	}

	switch data[0] {
	case '"':
		var s string
		if err := jsonAPI.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = NewString(s)
	case 't', 'f':
		var b bool
		if err := jsonAPI.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = NewBool(b)
	case 'n':
		*v = Value{}
	case '[':
		var raw []jsoniter.RawMessage
		if err := jsonAPI.Unmarshal(data, &raw); err != nil {
			return err
		}
		items := make([]Value, len(raw))
		for i, r := range raw {
			if err := items[i].UnmarshalJSON(r); err != nil {
				return err
			}
		}
		*v = NewList(items...)
	case '{':
		var raw map[string]jsoniter.RawMessage
		if err := jsonAPI.Unmarshal(data, &raw); err != nil {
			return err
		}
		names := make([]string, 0, len(raw))
		items := make([]Value, 0, len(raw))
		for name, r := range raw {
			var item Value
			if err := item.UnmarshalJSON(r); err != nil {
				return err
			}
			names = append(names, name)
			items = append(items, item)
		}
		*v = NewTuple(items, names)
	default:
		if bytes.ContainsAny(data, ".eE") {
			var f float64
			if err := jsonAPI.Unmarshal(data, &f); err != nil {
				return err
			}
			*v = NewReal(f)
		} else {
			var i int64
			if err := jsonAPI.Unmarshal(data, &i); err != nil {
				return err
			}
			*v = NewInt(i)
		}
	}
	return nil
}
