package scripttype

// Unwrap converts a value tree into plain Go values:
//
//   - integer -> int64
//   - text    -> string
//   - bool    -> bool
//   - point   -> Point
//   - plane   -> Plane
//   - set     -> []any
//   - list    -> []any
//   - map     -> map[string]any
//
// A nil value unwraps to nil. A node which is an ancestor of itself unwraps to
// nil at the point where it recurs, so the result is always finite.
func Unwrap(v *Value) any {
	return unwrap(v, make(map[*Value]struct{}))
}

func unwrap(v *Value, ancestors map[*Value]struct{}) any {
	if v == nil {
		return nil
	}

	switch v.Kind {
	case KindInteger:
		return v.Int
	case KindText:
		return v.Text
	case KindBool:
		return v.Bool
	case KindPoint:
		return v.Point
	case KindPlane:
		return v.Plane
	case KindSet, KindList, KindMap:
	}

	if _, ok := ancestors[v]; ok {
		return nil
	}
	ancestors[v] = struct{}{}
	defer delete(ancestors, v)

	if v.Kind == KindMap {
		plain := make(map[string]any, len(v.Entries))
		for key, entry := range v.Entries {
			plain[key] = unwrap(entry, ancestors)
		}
		return plain
	}

	plain := make([]any, len(v.Elems))
	for i, elem := range v.Elems {
		plain[i] = unwrap(elem, ancestors)
	}
	return plain
}
