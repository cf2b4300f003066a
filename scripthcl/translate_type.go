package scripthcl

import (
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/riverqueue/riverscript/scripttype"
)

// typeKeywords maps the bare type keywords accepted in a param's type
// expression to the kind they declare.
var typeKeywords = map[string]scripttype.Kind{ //nolint:gochecknoglobals
	"bool":    scripttype.KindBool,
	"integer": scripttype.KindInteger,
	"list":    scripttype.KindList,
	"map":     scripttype.KindMap,
	"number":  scripttype.KindInteger,
	"plane":   scripttype.KindPlane,
	"point":   scripttype.KindPoint,
	"set":     scripttype.KindSet,
	"string":  scripttype.KindText,
	"text":    scripttype.KindText,
}

// typeExprToPrototype converts a type expression like `integer` or
// `list(map(text))` into the prototype a parameter of that type has. Type
// constructors produce a collection holding a single exemplar of their
// argument's type.
func typeExprToPrototype(expr hcl.Expression) (*scripttype.Value, error) {
	switch expr := expr.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		if len(expr.Traversal) != 1 {
			return nil, errors.New("invalid type keyword: traversal path is not a single identifier")
		}

		name := expr.Traversal.RootName()
		kind, ok := typeKeywords[name]
		if !ok {
			return nil, fmt.Errorf("unknown type %q", name)
		}
		return scripttype.Zero(kind), nil

	case *hclsyntax.FunctionCallExpr:
		if len(expr.Args) != 1 {
			return nil, fmt.Errorf("type constructor %s() requires exactly one argument, got %d", expr.Name, len(expr.Args))
		}

		elem, err := typeExprToPrototype(expr.Args[0])
		if err != nil {
			return nil, fmt.Errorf("in %s(): %w", expr.Name, err)
		}

		switch expr.Name {
		case "list":
			return scripttype.NewList(elem), nil
		case "map":
			return scripttype.NewMap(map[string]*scripttype.Value{"*": elem}), nil
		case "set":
			return scripttype.NewSet(elem), nil
		}
		return nil, fmt.Errorf("unknown type constructor %q (should be one of list, map, set)", expr.Name)
	}

	return nil, errors.New("expected a type keyword like integer or a type constructor like list(text)")
}

// elemPrototype returns the exemplar of a collection prototype, or nil for
// scalars and empty collections.
func elemPrototype(proto *scripttype.Value) *scripttype.Value {
	if !proto.Kind.IsCollection() || proto.Len() < 1 {
		return nil
	}
	return proto.Members()[0]
}
