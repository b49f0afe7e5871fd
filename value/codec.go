package value

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode serializes v into the wire format shared by tree commands and link
// messages (spec §6.2): {uint8 type-tag, uint32 name-length, name bytes,
// payload}. Scalar payloads are native little-endian; strings are a uint32
// length plus bytes; lists/tuples are a uint32 count plus each element
// encoded recursively. A tuple's per-element leaf name is carried as that
// element's own name field, so Decode can reconstruct the tuple's Names()
// without a separate wire slot.
func (v Value) Encode() []byte {
	buf := make([]byte, 0, 16)
	buf = append(buf, byte(v.kind))
	buf = appendString(buf, v.name)

	switch v.kind {
	case KindBool:
		if v.b {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindInt:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(v.i))
		buf = append(buf, tmp[:]...)
	case KindReal:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v.r))
		buf = append(buf, tmp[:]...)
	case KindString:
		buf = appendString(buf, v.s)
	case KindList:
		buf = appendCount(buf, len(v.list))
		for _, item := range v.list {
			buf = append(buf, item.Encode()...)
		}
	case KindTuple:
		buf = appendCount(buf, len(v.list))
		for i, item := range v.list {
			named := item
			if i < len(v.names) {
				named = item.WithName(v.names[i])
			}
			buf = append(buf, named.Encode()...)
		}
	}
	return buf
}

// Decode reads one Value from the front of data and returns it along with
// the unconsumed remainder.
func Decode(data []byte) (Value, []byte, error) {
	if len(data) < 1 {
		return Value{}, nil, fmt.Errorf("value: decode: empty buffer")
	}
	kind := Kind(data[0])
	rest := data[1:]

	name, rest, err := readString(rest)
	if err != nil {
		return Value{}, nil, fmt.Errorf("value: decode name: %w", err)
	}

	switch kind {
	case KindBool:
		if len(rest) < 1 {
			return Value{}, nil, fmt.Errorf("value: decode bool: short buffer")
		}
		return NewBool(rest[0] != 0).WithName(name), rest[1:], nil
	case KindInt:
		if len(rest) < 8 {
			return Value{}, nil, fmt.Errorf("value: decode int: short buffer")
		}
		i := int64(binary.LittleEndian.Uint64(rest[:8]))
		return NewInt(i).WithName(name), rest[8:], nil
	case KindReal:
		if len(rest) < 8 {
			return Value{}, nil, fmt.Errorf("value: decode real: short buffer")
		}
		bits := binary.LittleEndian.Uint64(rest[:8])
		return NewReal(math.Float64frombits(bits)).WithName(name), rest[8:], nil
	case KindString:
		s, rest2, err := readString(rest)
		if err != nil {
			return Value{}, nil, fmt.Errorf("value: decode string: %w", err)
		}
		return NewString(s).WithName(name), rest2, nil
	case KindList:
		count, rest2, err := readCount(rest)
		if err != nil {
			return Value{}, nil, err
		}
		items := make([]Value, 0, count)
		for i := 0; i < count; i++ {
			var item Value
			item, rest2, err = Decode(rest2)
			if err != nil {
				return Value{}, nil, fmt.Errorf("value: decode list[%d]: %w", i, err)
			}
			items = append(items, item)
		}
		return NewList(items...).WithName(name), rest2, nil
	case KindTuple:
		count, rest2, err := readCount(rest)
		if err != nil {
			return Value{}, nil, err
		}
		items := make([]Value, 0, count)
		names := make([]string, 0, count)
		for i := 0; i < count; i++ {
			var item Value
			item, rest2, err = Decode(rest2)
			if err != nil {
				return Value{}, nil, fmt.Errorf("value: decode tuple[%d]: %w", i, err)
			}
			items = append(items, item)
			names = append(names, item.Name())
		}
		return NewTuple(items, names).WithName(name), rest2, nil
	default:
		return Value{}, nil, fmt.Errorf("value: decode: unknown type tag %d", kind)
	}
}

func appendString(buf []byte, s string) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(s)))
	buf = append(buf, tmp[:]...)
	return append(buf, s...)
}

func readString(data []byte) (string, []byte, error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("short buffer for string length")
	}
	n := int(binary.LittleEndian.Uint32(data[:4]))
	data = data[4:]
	if len(data) < n {
		return "", nil, fmt.Errorf("short buffer for string body")
	}
	return string(data[:n]), data[n:], nil
}

func appendCount(buf []byte, n int) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(n))
	return append(buf, tmp[:]...)
}

func readCount(data []byte) (int, []byte, error) {
	if len(data) < 4 {
		return 0, nil, fmt.Errorf("short buffer for count")
	}
	return int(binary.LittleEndian.Uint32(data[:4])), data[4:], nil
}
