package riverscript

import (
	"errors"
	"fmt"

	"github.com/riverqueue/riverscript/scripttype"
)

// Direction is the direction in which a parameter flows relative to a job. A
// parameter may be an input, an output, or both.
type Direction uint8

const (
	// DirectionIn marks a parameter as a job input. It's the default.
	DirectionIn Direction = 1 << iota

	// DirectionOut marks a parameter as a job output.
	DirectionOut

	// DirectionInOut marks a parameter as both an input and an output.
	DirectionInOut = DirectionIn | DirectionOut
)

// IsIn returns true if the direction includes input.
func (d Direction) IsIn() bool { return d&DirectionIn != 0 }

// IsOut returns true if the direction includes output.
func (d Direction) IsOut() bool { return d&DirectionOut != 0 }

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	case DirectionInOut:
		return "inout"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// ParseDirection parses a direction from its string form: "in", "out", or
// "inout".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "in":
		return DirectionIn, nil
	case "out":
		return DirectionOut, nil
	case "inout":
		return DirectionInOut, nil
	}
	return 0, fmt.Errorf("unknown direction %q (should be one of in, out, inout)", s)
}

// ParamOpts are optional settings for a parameter, given to one of the
// parameter constructors like Integer or List.
type ParamOpts struct {
	// Description is a human readable description of the parameter.
	Description string

	// Max is an inclusive upper bound for an integer parameter, or for every
	// integer member of a collection parameter.
	Max *int64

	// Min is an inclusive lower bound for an integer parameter, or for every
	// integer member of a collection parameter.
	Min *int64

	// Of is an exemplar element for a set, list, or map parameter. When set,
	// the parameter's prototype contains it as its only member and every
	// member of a submitted collection is validated against it. Only valid on
	// collection parameters.
	Of *scripttype.Value

	// Optional marks the parameter as optional so that omitting it from
	// submitted inputs isn't an error.
	Optional bool

	// Out marks the parameter as an output in addition to an input. Use
	// Param.Out to make a parameter output only.
	Out bool

	// UseDefault indicates that the parameter's prototype should be installed
	// as its value when it's omitted from submitted inputs.
	UseDefault bool

	// Values is a list of allowed values. When non-empty, every submitted
	// value (or every member of a submitted collection) must be equal to one
	// of them.
	Values []*scripttype.Value
}

// Param describes a single named input or output of a job. Params are built
// with one of the variant constructors (Integer, Text, Bool, Point, Plane,
// Set, List, or Map) and then passed to NewJobSpec or Declare.
type Param struct {
	// Name is the parameter's name, unique amongst the parameters of a job
	// flowing in the same direction.
	Name string

	// Description is a human readable description of the parameter.
	Description string

	// Direction is whether the parameter is an input, output, or both.
	Direction Direction

	// Max is an optional inclusive upper bound. See ParamOpts.Max.
	Max *int64

	// Min is an optional inclusive lower bound. See ParamOpts.Min.
	Min *int64

	// Optional indicates that the parameter may be omitted.
	Optional bool

	// Prototype is the canonical zero value of the parameter's variant. It's
	// never nil, and doubles as the template that submitted values are
	// structurally compared against.
	Prototype *scripttype.Value

	// UseDefault indicates that Prototype should be installed as the
	// parameter's value when it's omitted.
	UseDefault bool

	// Values is an optional list of allowed values.
	Values []*scripttype.Value
}

// Integer returns an integer parameter whose prototype is 0.
func Integer(name string, opts *ParamOpts) *Param {
	return newParam(name, scripttype.KindInteger, opts)
}

// Text returns a text parameter whose prototype is the empty string.
func Text(name string, opts *ParamOpts) *Param {
	return newParam(name, scripttype.KindText, opts)
}

// Bool returns a boolean parameter whose prototype is false.
func Bool(name string, opts *ParamOpts) *Param {
	return newParam(name, scripttype.KindBool, opts)
}

// Point returns a point parameter whose prototype is the origin.
func Point(name string, opts *ParamOpts) *Param {
	return newParam(name, scripttype.KindPoint, opts)
}

// Plane returns a plane parameter whose prototype is the zero plane.
func Plane(name string, opts *ParamOpts) *Param {
	return newParam(name, scripttype.KindPlane, opts)
}

// Set returns a set parameter whose prototype is the empty set, or a set
// containing only ParamOpts.Of.
func Set(name string, opts *ParamOpts) *Param {
	return newParam(name, scripttype.KindSet, opts)
}

// List returns a list parameter whose prototype is the empty list, or a list
// containing only ParamOpts.Of.
func List(name string, opts *ParamOpts) *Param {
	return newParam(name, scripttype.KindList, opts)
}

// Map returns a map parameter whose prototype is the empty map, or a map
// containing only ParamOpts.Of.
func Map(name string, opts *ParamOpts) *Param {
	return newParam(name, scripttype.KindMap, opts)
}

// NewParam returns a parameter of the given kind. It's for callers which only
// learn the kind at runtime, like loaders reading job definitions from files.
// Panics on an unknown kind.
func NewParam(name string, kind scripttype.Kind, opts *ParamOpts) *Param {
	return newParam(name, kind, opts)
}

// mapExemplarKey is the key under which a map prototype holds its exemplar.
// Only the exemplar's value is significant.
const mapExemplarKey = "*"

func newParam(name string, kind scripttype.Kind, opts *ParamOpts) *Param {
	if opts == nil {
		opts = &ParamOpts{}
	}

	param := &Param{
		Name:        name,
		Description: opts.Description,
		Direction:   DirectionIn,
		Max:         opts.Max,
		Min:         opts.Min,
		Optional:    opts.Optional,
		Prototype:   scripttype.Zero(kind),
		UseDefault:  opts.UseDefault,
		Values:      opts.Values,
	}

	if opts.Out {
		param.Direction |= DirectionOut
	}

	if opts.Of != nil {
		switch kind {
		case scripttype.KindSet:
			param.Prototype = scripttype.NewSet(opts.Of)
		case scripttype.KindList:
			param.Prototype = scripttype.NewList(opts.Of)
		case scripttype.KindMap:
			param.Prototype = scripttype.NewMap(map[string]*scripttype.Value{mapExemplarKey: opts.Of})
		case scripttype.KindInteger, scripttype.KindText, scripttype.KindBool, scripttype.KindPoint, scripttype.KindPlane:
			// Rejected by validate. The exemplar is kept on a list prototype
			// so that it isn't silently dropped before then.
			param.Prototype = &scripttype.Value{Kind: kind, Elems: []*scripttype.Value{opts.Of}}
		}
	}

	return param
}

// Out makes the parameter an output only. Returns the same parameter for
// convenience.
func (p *Param) Out() *Param {
	p.Direction = DirectionOut
	return p
}

// InOut makes the parameter both an input and an output. Returns the same
// parameter for convenience.
func (p *Param) InOut() *Param {
	p.Direction = DirectionInOut
	return p
}

// Kind returns the kind of the parameter's prototype.
func (p *Param) Kind() scripttype.Kind { return p.Prototype.Kind }

// exemplar returns the single member of a non-empty collection prototype, or
// nil for scalars and empty collections.
func exemplar(proto *scripttype.Value) *scripttype.Value {
	if !proto.Kind.IsCollection() || proto.Len() < 1 {
		return nil
	}
	return proto.Members()[0]
}

func (p *Param) validate() error {
	if p.Name == "" {
		return errors.New("parameter name cannot be empty")
	}

	if p.Prototype == nil {
		return fmt.Errorf("parameter %q: prototype cannot be nil", p.Name)
	}

	if p.Direction != DirectionIn && p.Direction != DirectionOut && p.Direction != DirectionInOut {
		return fmt.Errorf("parameter %q: invalid direction %s", p.Name, p.Direction)
	}

	kind := p.Prototype.Kind
	if !kind.IsCollection() && len(p.Prototype.Elems) > 0 {
		return fmt.Errorf("parameter %q: element type only applies to set, list, or map parameters, not %s", p.Name, kind)
	}

	if p.Min != nil || p.Max != nil {
		numeric := kind == scripttype.KindInteger
		if kind.IsCollection() {
			elem := exemplar(p.Prototype)
			numeric = elem == nil || elem.Kind == scripttype.KindInteger
		}
		if !numeric {
			return fmt.Errorf("parameter %q: min and max only apply to integers or collections of integers", p.Name)
		}
	}

	if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
		return fmt.Errorf("parameter %q: min %d is greater than max %d", p.Name, *p.Min, *p.Max)
	}

	for i, value := range p.Values {
		if value == nil {
			return fmt.Errorf("parameter %q: allowed value at index %d is nil", p.Name, i)
		}
	}

	return nil
}
