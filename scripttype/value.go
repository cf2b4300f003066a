// Package scripttype stores the lowest level riverscript primitives so they can
// be shared amongst a number of packages including the top-level riverscript
// package, the callback endpoint, session stores, and test helpers.
package scripttype

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrCyclicValue is returned when an operation that needs to fully traverse a
// value tree (like encoding it to JSON) encounters a node that references one
// of its own ancestors.
var ErrCyclicValue = errors.New("value tree contains a cycle")

// Kind is the variant tag of a Value. The set of kinds is closed, and code
// operating on values is expected to switch over it exhaustively.
type Kind string

const (
	KindInteger Kind = "integer"
	KindText    Kind = "text"
	KindBool    Kind = "bool"
	KindPoint   Kind = "point"
	KindPlane   Kind = "plane"
	KindSet     Kind = "set"
	KindList    Kind = "list"
	KindMap     Kind = "map"
)

// AllKinds returns every known kind in a stable order.
func AllKinds() []Kind {
	return []Kind{KindInteger, KindText, KindBool, KindPoint, KindPlane, KindSet, KindList, KindMap}
}

// ParseKind parses a kind from its string form.
func ParseKind(s string) (Kind, error) {
	kind := Kind(s)
	if !slices.Contains(AllKinds(), kind) {
		return "", fmt.Errorf("unknown value kind %q", s)
	}
	return kind, nil
}

// IsCollection returns true for kinds that contain other values.
func (k Kind) IsCollection() bool {
	return k == KindSet || k == KindList || k == KindMap
}

// Point is a two dimensional coordinate.
type Point struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

func (p Point) String() string { return fmt.Sprintf("(%d, %d)", p.X, p.Y) }

// Plane addresses a single plane within a multidimensional image by its
// focal, channel, and timepoint indexes.
type Plane struct {
	Z int64 `json:"z"`
	C int64 `json:"c"`
	T int64 `json:"t"`
}

func (p Plane) String() string { return fmt.Sprintf("plane(z=%d, c=%d, t=%d)", p.Z, p.C, p.T) }

// Value is a node in a value tree. It's a tagged union: Kind determines which
// of the payload fields is meaningful and the others are left at their zero
// values.
//
// Values are always handled by pointer. Collection nodes hold pointers to their
// children, so a tree may share nodes or even contain cycles, and pointer
// identity is what distinguishes one node from another.
type Value struct {
	Kind Kind

	Int   int64
	Text  string
	Bool  bool
	Point Point
	Plane Plane

	// Elems holds the members of a Set or List.
	Elems []*Value

	// Entries holds the members of a Map.
	Entries map[string]*Value
}

func NewInteger(i int64) *Value { return &Value{Kind: KindInteger, Int: i} }
func NewText(s string) *Value   { return &Value{Kind: KindText, Text: s} }
func NewBool(b bool) *Value     { return &Value{Kind: KindBool, Bool: b} }
func NewPoint(p Point) *Value   { return &Value{Kind: KindPoint, Point: p} }
func NewPlane(p Plane) *Value   { return &Value{Kind: KindPlane, Plane: p} }

// NewList returns a list of the given elements.
func NewList(elems ...*Value) *Value {
	return &Value{Kind: KindList, Elems: elems}
}

// NewSet returns a set of the given elements. Scalar elements which are equal
// to an element already present are dropped.
func NewSet(elems ...*Value) *Value {
	set := &Value{Kind: KindSet}
	for _, elem := range elems {
		if elem != nil && !elem.Kind.IsCollection() && slices.ContainsFunc(set.Elems, func(existing *Value) bool {
			return existing.Kind == elem.Kind && existing.Equal(elem)
		}) {
			continue
		}
		set.Elems = append(set.Elems, elem)
	}
	return set
}

// NewMap returns a map value. A nil entries map produces an empty map.
func NewMap(entries map[string]*Value) *Value {
	if entries == nil {
		entries = make(map[string]*Value)
	}
	return &Value{Kind: KindMap, Entries: entries}
}

// Zero returns the canonical zero value for a kind. It's what parameter
// descriptors use as their prototype.
func Zero(kind Kind) *Value {
	switch kind {
	case KindInteger:
		return NewInteger(0)
	case KindText:
		return NewText("")
	case KindBool:
		return NewBool(false)
	case KindPoint:
		return NewPoint(Point{})
	case KindPlane:
		return NewPlane(Plane{})
	case KindSet:
		return NewSet()
	case KindList:
		return NewList()
	case KindMap:
		return NewMap(nil)
	}
	panic("unknown value kind: " + string(kind))
}

// Len returns the number of members of a collection value, or zero for
// scalars.
func (v *Value) Len() int {
	switch v.Kind {
	case KindSet, KindList:
		return len(v.Elems)
	case KindMap:
		return len(v.Entries)
	case KindInteger, KindText, KindBool, KindPoint, KindPlane:
	}
	return 0
}

// SortedKeys returns the keys of a map value in lexical order. Map members are
// always visited in this order so that output derived from them is stable.
func (v *Value) SortedKeys() []string {
	keys := make([]string, 0, len(v.Entries))
	for key := range v.Entries {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Members returns the members of a collection in visiting order: elements of
// a set or list in their stored order, and values of a map ordered by key.
func (v *Value) Members() []*Value {
	switch v.Kind {
	case KindSet, KindList:
		return v.Elems
	case KindMap:
		members := make([]*Value, 0, len(v.Entries))
		for _, key := range v.SortedKeys() {
			members = append(members, v.Entries[key])
		}
		return members
	case KindInteger, KindText, KindBool, KindPoint, KindPlane:
	}
	return nil
}

// Equal compares two values structurally. Collections compare equal if their
// members do. Nodes already under comparison are assumed equal, so Equal
// terminates on cyclic trees.
func (v *Value) Equal(other *Value) bool {
	return equal(v, other, make(map[[2]*Value]struct{}))
}

func equal(a, b *Value, inProgress map[[2]*Value]struct{}) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a == b {
		return true
	}
	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case KindInteger:
		return a.Int == b.Int
	case KindText:
		return a.Text == b.Text
	case KindBool:
		return a.Bool == b.Bool
	case KindPoint:
		return a.Point == b.Point
	case KindPlane:
		return a.Plane == b.Plane
	case KindSet, KindList, KindMap:
	}

	pair := [2]*Value{a, b}
	if _, ok := inProgress[pair]; ok {
		return true
	}
	inProgress[pair] = struct{}{}

	if a.Kind == KindMap {
		if len(a.Entries) != len(b.Entries) {
			return false
		}
		for key, aVal := range a.Entries {
			bVal, ok := b.Entries[key]
			if !ok || !equal(aVal, bVal, inProgress) {
				return false
			}
		}
		return true
	}

	if len(a.Elems) != len(b.Elems) {
		return false
	}
	for i := range a.Elems {
		if !equal(a.Elems[i], b.Elems[i], inProgress) {
			return false
		}
	}
	return true
}

// String renders a value for human consumption, as used in validation
// messages. A node revisited while rendering its own subtree prints as "...".
func (v *Value) String() string {
	var sb strings.Builder
	writeValue(&sb, v, make(map[*Value]struct{}))
	return sb.String()
}

func writeValue(sb *strings.Builder, v *Value, ancestors map[*Value]struct{}) {
	if v == nil {
		sb.WriteString("<nil>")
		return
	}

	switch v.Kind {
	case KindInteger:
		sb.WriteString(strconv.FormatInt(v.Int, 10))
		return
	case KindText:
		sb.WriteString(v.Text)
		return
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.Bool))
		return
	case KindPoint:
		sb.WriteString(v.Point.String())
		return
	case KindPlane:
		sb.WriteString(v.Plane.String())
		return
	case KindSet, KindList, KindMap:
	}

	if _, ok := ancestors[v]; ok {
		sb.WriteString("...")
		return
	}
	ancestors[v] = struct{}{}
	defer delete(ancestors, v)

	switch v.Kind {
	case KindMap:
		sb.WriteString("map[")
		for i, key := range v.SortedKeys() {
			if i > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(key)
			sb.WriteString(":")
			writeValue(sb, v.Entries[key], ancestors)
		}
		sb.WriteString("]")
	default:
		if v.Kind == KindSet {
			sb.WriteString("set")
		}
		sb.WriteString("[")
		for i, elem := range v.Elems {
			if i > 0 {
				sb.WriteString(" ")
			}
			writeValue(sb, elem, ancestors)
		}
		sb.WriteString("]")
	}
}
