package scripthcl

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/riverqueue/riverscript/scripttype"
)

// translateValues evaluates a param's values expression into its list of
// allowed values. Allowed values constrain each member of a collection, so
// for a collection param they're converted against its element type rather
// than against the collection itself. A missing expression produces nil.
func translateValues(expr hcl.Expression, proto *scripttype.Value) ([]*scripttype.Value, error) {
	if expr == nil {
		return nil, nil
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}

	ty := val.Type()
	if !ty.IsListType() && !ty.IsTupleType() && !ty.IsSetType() {
		return nil, fmt.Errorf("expected a list, got %s", ty.FriendlyName())
	}

	itemProto := proto
	if proto.Kind.IsCollection() {
		itemProto = elemPrototype(proto)
	}

	var values []*scripttype.Value
	for it := val.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		value, err := ctyToValue(elem, itemProto)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", len(values), err)
		}
		values = append(values, value)
	}
	return values, nil
}

// ctyToValue converts a cty value into a value tree of the prototype's kind.
// A nil prototype means the kind isn't constrained and is inferred from the
// cty type instead.
func ctyToValue(val cty.Value, proto *scripttype.Value) (*scripttype.Value, error) {
	if val.IsNull() || !val.IsKnown() {
		return nil, errors.New("value must be known and non-null")
	}

	if proto == nil {
		return inferValue(val)
	}

	ty := val.Type()

	switch proto.Kind {
	case scripttype.KindInteger:
		if ty != cty.Number {
			return nil, fmt.Errorf("expected integer, got %s", ty.FriendlyName())
		}
		var i int64
		if err := gocty.FromCtyValue(val, &i); err != nil {
			return nil, err
		}
		return scripttype.NewInteger(i), nil

	case scripttype.KindText:
		if ty != cty.String {
			return nil, fmt.Errorf("expected text, got %s", ty.FriendlyName())
		}
		return scripttype.NewText(val.AsString()), nil

	case scripttype.KindBool:
		if ty != cty.Bool {
			return nil, fmt.Errorf("expected bool, got %s", ty.FriendlyName())
		}
		return scripttype.NewBool(val.True()), nil

	case scripttype.KindPoint:
		coords, err := ctyToCoordinates(val, "x", "y")
		if err != nil {
			return nil, fmt.Errorf("point: %w", err)
		}
		return scripttype.NewPoint(scripttype.Point{X: coords[0], Y: coords[1]}), nil

	case scripttype.KindPlane:
		coords, err := ctyToCoordinates(val, "z", "c", "t")
		if err != nil {
			return nil, fmt.Errorf("plane: %w", err)
		}
		return scripttype.NewPlane(scripttype.Plane{Z: coords[0], C: coords[1], T: coords[2]}), nil

	case scripttype.KindSet, scripttype.KindList:
		if !ty.IsListType() && !ty.IsTupleType() && !ty.IsSetType() {
			return nil, fmt.Errorf("expected %s, got %s", proto.Kind, ty.FriendlyName())
		}

		elemProto := elemPrototype(proto)

		var elems []*scripttype.Value
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			value, err := ctyToValue(elem, elemProto)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", len(elems), err)
			}
			elems = append(elems, value)
		}

		if proto.Kind == scripttype.KindSet {
			return scripttype.NewSet(elems...), nil
		}
		return scripttype.NewList(elems...), nil

	case scripttype.KindMap:
		if !ty.IsObjectType() && !ty.IsMapType() {
			return nil, fmt.Errorf("expected map, got %s", ty.FriendlyName())
		}

		elemProto := elemPrototype(proto)

		entries := make(map[string]*scripttype.Value)
		for it := val.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			value, err := ctyToValue(elem, elemProto)
			if err != nil {
				return nil, fmt.Errorf("in key %q: %w", key.AsString(), err)
			}
			entries[key.AsString()] = value
		}
		return scripttype.NewMap(entries), nil
	}

	return nil, fmt.Errorf("unsupported kind %q", proto.Kind)
}

// inferValue converts a cty value without a prototype. Numbers become
// integers, sequences become lists, and objects become maps.
func inferValue(val cty.Value) (*scripttype.Value, error) {
	ty := val.Type()

	switch {
	case ty == cty.Number:
		return ctyToValue(val, scripttype.Zero(scripttype.KindInteger))
	case ty == cty.String:
		return scripttype.NewText(val.AsString()), nil
	case ty == cty.Bool:
		return scripttype.NewBool(val.True()), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		return ctyToValue(val, scripttype.Zero(scripttype.KindList))
	case ty.IsObjectType() || ty.IsMapType():
		return ctyToValue(val, scripttype.Zero(scripttype.KindMap))
	}

	return nil, fmt.Errorf("unsupported type %s", ty.FriendlyName())
}

// ctyToCoordinates reads the named integer attributes of an object. The object
// must have exactly those attributes.
func ctyToCoordinates(val cty.Value, names ...string) ([]int64, error) {
	ty := val.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("expected object with attributes %v, got %s", names, ty.FriendlyName())
	}

	attrs := val.AsValueMap()
	for name := range attrs {
		if !slices.Contains(names, name) {
			return nil, fmt.Errorf("unexpected attribute %q", name)
		}
	}

	coords := make([]int64, len(names))
	for i, name := range names {
		attr, ok := attrs[name]
		if !ok {
			return nil, fmt.Errorf("missing attribute %q", name)
		}
		if attr.IsNull() || attr.Type() != cty.Number {
			return nil, fmt.Errorf("attribute %q: expected integer", name)
		}
		if err := gocty.FromCtyValue(attr, &coords[i]); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
	}
	return coords, nil
}
