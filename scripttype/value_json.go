package scripttype

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MarshalJSON encodes a value in its tagged form, which round trips exactly
// through ParseJSON:
//
//	{"kind":"list","value":[{"kind":"integer","value":5}]}
//
// Returns an error wrapping ErrCyclicValue if the tree contains a cycle.
func (v *Value) MarshalJSON() ([]byte, error) {
	return marshalValue(v, make(map[*Value]struct{}))
}

func marshalValue(v *Value, ancestors map[*Value]struct{}) ([]byte, error) {
	if v == nil {
		return nil, errors.New("cannot encode nil value")
	}

	doc, err := sjson.SetBytes([]byte(`{}`), "kind", string(v.Kind))
	if err != nil {
		return nil, err
	}

	switch v.Kind {
	case KindInteger:
		return sjson.SetBytes(doc, "value", v.Int)
	case KindText:
		return sjson.SetBytes(doc, "value", v.Text)
	case KindBool:
		return sjson.SetBytes(doc, "value", v.Bool)
	case KindPoint:
		return sjson.SetBytes(doc, "value", v.Point)
	case KindPlane:
		return sjson.SetBytes(doc, "value", v.Plane)
	case KindSet, KindList, KindMap:
	default:
		return nil, fmt.Errorf("cannot encode value of unknown kind %q", v.Kind)
	}

	if _, ok := ancestors[v]; ok {
		return nil, fmt.Errorf("error encoding %s: %w", v.Kind, ErrCyclicValue)
	}
	ancestors[v] = struct{}{}
	defer delete(ancestors, v)

	if v.Kind == KindMap {
		if doc, err = sjson.SetRawBytes(doc, "value", []byte(`{}`)); err != nil {
			return nil, err
		}
		for _, key := range v.SortedKeys() {
			member, err := marshalValue(v.Entries[key], ancestors)
			if err != nil {
				return nil, err
			}
			if doc, err = sjson.SetRawBytes(doc, "value."+gjson.Escape(key), member); err != nil {
				return nil, err
			}
		}
		return doc, nil
	}

	if doc, err = sjson.SetRawBytes(doc, "value", []byte(`[]`)); err != nil {
		return nil, err
	}
	for _, elem := range v.Elems {
		member, err := marshalValue(elem, ancestors)
		if err != nil {
			return nil, err
		}
		if doc, err = sjson.SetRawBytes(doc, "value.-1", member); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// ParseJSON decodes a value from JSON. Values may be given in the tagged form
// produced by MarshalJSON, or in a plain shorthand where integers, strings,
// booleans, arrays (as lists), and objects (as maps) are accepted directly.
// An object carrying a string "kind" key is always read as the tagged form, so
// a map which has a "kind" entry must itself be written tagged.
func ParseJSON(data []byte) (*Value, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}
	return parseResult(gjson.ParseBytes(data), "$")
}

// ParseJSONResult decodes a value from an already parsed gjson result. It's
// used by callers embedding values in larger documents.
func ParseJSONResult(res gjson.Result) (*Value, error) {
	return parseResult(res, "$")
}

func parseResult(res gjson.Result, path string) (*Value, error) {
	switch res.Type {
	case gjson.Null:
		return nil, fmt.Errorf("%s: null is not a value", path)
	case gjson.False, gjson.True:
		return NewBool(res.Bool()), nil
	case gjson.String:
		return NewText(res.String()), nil
	case gjson.Number:
		i, err := parseInteger(res)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return NewInteger(i), nil
	case gjson.JSON:
	}

	if res.IsArray() {
		return parseElems(res, path, KindList)
	}

	if kind := res.Get("kind"); kind.Type == gjson.String {
		return parseTagged(res, path)
	}

	entries := make(map[string]*Value)
	var err error
	res.ForEach(func(key, member gjson.Result) bool {
		var v *Value
		v, err = parseResult(member, path+"."+key.String())
		if err != nil {
			return false
		}
		entries[key.String()] = v
		return true
	})
	if err != nil {
		return nil, err
	}
	return NewMap(entries), nil
}

func parseTagged(res gjson.Result, path string) (*Value, error) {
	kind, err := ParseKind(res.Get("kind").String())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var unknownKey string
	res.ForEach(func(key, _ gjson.Result) bool {
		if key.String() != "kind" && key.String() != "value" {
			unknownKey = key.String()
			return false
		}
		return true
	})
	if unknownKey != "" {
		return nil, fmt.Errorf("%s: unknown key %q in tagged value", path, unknownKey)
	}

	val := res.Get("value")
	if !val.Exists() {
		return Zero(kind), nil
	}
	valPath := path + ".value"

	switch kind {
	case KindInteger:
		if val.Type != gjson.Number {
			return nil, fmt.Errorf("%s: expected number for %s", valPath, kind)
		}
		i, err := parseInteger(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", valPath, err)
		}
		return NewInteger(i), nil

	case KindText:
		if val.Type != gjson.String {
			return nil, fmt.Errorf("%s: expected string for %s", valPath, kind)
		}
		return NewText(val.String()), nil

	case KindBool:
		if val.Type != gjson.True && val.Type != gjson.False {
			return nil, fmt.Errorf("%s: expected boolean for %s", valPath, kind)
		}
		return NewBool(val.Bool()), nil

	case KindPoint:
		coords, err := parseCoordinates(val, valPath, "x", "y")
		if err != nil {
			return nil, err
		}
		return NewPoint(Point{X: coords[0], Y: coords[1]}), nil

	case KindPlane:
		coords, err := parseCoordinates(val, valPath, "z", "c", "t")
		if err != nil {
			return nil, err
		}
		return NewPlane(Plane{Z: coords[0], C: coords[1], T: coords[2]}), nil

	case KindSet, KindList:
		if !val.IsArray() {
			return nil, fmt.Errorf("%s: expected array for %s", valPath, kind)
		}
		return parseElems(val, valPath, kind)

	case KindMap:
		if !val.IsObject() {
			return nil, fmt.Errorf("%s: expected object for %s", valPath, kind)
		}
		entries := make(map[string]*Value)
		var err error
		val.ForEach(func(key, member gjson.Result) bool {
			var v *Value
			v, err = parseResult(member, valPath+"."+key.String())
			if err != nil {
				return false
			}
			entries[key.String()] = v
			return true
		})
		if err != nil {
			return nil, err
		}
		return NewMap(entries), nil
	}

	return nil, fmt.Errorf("%s: unhandled kind %q", path, kind)
}

func parseElems(res gjson.Result, path string, kind Kind) (*Value, error) {
	var elems []*Value
	for i, member := range res.Array() {
		v, err := parseResult(member, path+"["+strconv.Itoa(i)+"]")
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
	}
	if kind == KindSet {
		return NewSet(elems...), nil
	}
	return NewList(elems...), nil
}

func parseCoordinates(res gjson.Result, path string, names ...string) ([]int64, error) {
	if !res.IsObject() {
		return nil, fmt.Errorf("%s: expected object with keys %v", path, names)
	}

	coords := make([]int64, len(names))
	for i, name := range names {
		coord := res.Get(name)
		if coord.Type != gjson.Number {
			return nil, fmt.Errorf("%s.%s: expected number", path, name)
		}
		var err error
		if coords[i], err = parseInteger(coord); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", path, name, err)
		}
	}
	return coords, nil
}

func parseInteger(res gjson.Result) (int64, error) {
	i, err := strconv.ParseInt(res.Raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("expected an integer, got %s", res.Raw)
	}
	return i, nil
}
