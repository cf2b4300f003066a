package riverscript

import (
	"errors"
	"fmt"
	"slices"

	"github.com/riverqueue/riverscript/internal/util/sliceutil"
	"github.com/riverqueue/riverscript/internal/util/valutil"
)

// DefaultOutputFormat is the format assumed for a job's standard output and
// standard error streams when none is configured.
const DefaultOutputFormat = "text/plain"

// JobSpecOpts are optional settings for a job spec.
type JobSpecOpts struct {
	// StderrFormat is the format of the job's standard error stream.
	//
	// Defaults to DefaultOutputFormat.
	StderrFormat string

	// StdoutFormat is the format of the job's standard output stream.
	//
	// Defaults to DefaultOutputFormat.
	StdoutFormat string
}

// JobSpec is the declared parameter contract of a job: its name, description,
// and the parameters it accepts and produces. Inputs and outputs are keyed by
// parameter name, and a parameter marked both input and output appears in
// both.
type JobSpec struct {
	// Name is the job's name, possibly empty.
	Name string

	// Description is the job's description, possibly empty.
	Description string

	// Inputs are the job's input parameters keyed by name.
	Inputs map[string]*Param

	// Outputs are the job's output parameters keyed by name.
	Outputs map[string]*Param

	// StderrFormat is the format of the job's standard error stream.
	StderrFormat string

	// StdoutFormat is the format of the job's standard output stream.
	StdoutFormat string

	inputOrder  []string
	outputOrder []string
}

// NewJobSpec builds a job spec from positional arguments. The first one or
// two arguments, if they're strings, are taken as the job's name and
// description respectively. Every argument after those must be a *Param,
// which is filed under the spec's inputs, outputs, or both depending on its
// direction:
//
//	spec, err := riverscript.NewJobSpec(nil, "resize", "Resizes an image.",
//		riverscript.Integer("width", &riverscript.ParamOpts{Min: ptrutil.Ptr(int64(1))}),
//		riverscript.Text("path", nil).Out(),
//	)
//
// Returns an error if an argument isn't a parameter, a parameter is invalid,
// or two parameters flowing in the same direction share a name.
func NewJobSpec(opts *JobSpecOpts, args ...any) (*JobSpec, error) {
	if opts == nil {
		opts = &JobSpecOpts{}
	}

	spec := &JobSpec{
		Inputs:       make(map[string]*Param),
		Outputs:      make(map[string]*Param),
		StderrFormat: valutil.ValOrDefault(opts.StderrFormat, DefaultOutputFormat),
		StdoutFormat: valutil.ValOrDefault(opts.StdoutFormat, DefaultOutputFormat),
	}

	pos := 0
	if pos < len(args) {
		if name, ok := args[pos].(string); ok {
			spec.Name = name
			pos++
		}
	}
	if pos == 1 && pos < len(args) {
		if description, ok := args[pos].(string); ok {
			spec.Description = description
			pos++
		}
	}

	for i := pos; i < len(args); i++ {
		param, ok := args[i].(*Param)
		if !ok || param == nil {
			return nil, fmt.Errorf("argument %d: expected a parameter, got %T", i, args[i])
		}
		if err := spec.add(param); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
	}

	return spec, nil
}

// ErrDuplicateParam is returned when two parameters flowing in the same
// direction share a name.
var ErrDuplicateParam = errors.New("duplicate parameter name")

func (s *JobSpec) add(param *Param) error {
	if err := param.validate(); err != nil {
		return err
	}

	if param.Direction.IsIn() {
		if _, ok := s.Inputs[param.Name]; ok {
			return fmt.Errorf("input %q: %w", param.Name, ErrDuplicateParam)
		}
	}
	if param.Direction.IsOut() {
		if _, ok := s.Outputs[param.Name]; ok {
			return fmt.Errorf("output %q: %w", param.Name, ErrDuplicateParam)
		}
	}

	if param.Direction.IsIn() {
		s.Inputs[param.Name] = param
		s.inputOrder = append(s.inputOrder, param.Name)
	}
	if param.Direction.IsOut() {
		s.Outputs[param.Name] = param
		s.outputOrder = append(s.outputOrder, param.Name)
	}

	return nil
}

// InputNames returns the names of the spec's input parameters in the order
// they were declared. Parameters added to Inputs directly rather than through
// NewJobSpec follow in sorted order.
func (s *JobSpec) InputNames() []string {
	return orderedNames(s.inputOrder, s.Inputs)
}

// OutputNames returns the names of the spec's output parameters in the order
// they were declared. Parameters added to Outputs directly rather than
// through NewJobSpec follow in sorted order.
func (s *JobSpec) OutputNames() []string {
	return orderedNames(s.outputOrder, s.Outputs)
}

// inputParams returns input parameters in the order of InputNames.
func (s *JobSpec) inputParams() []*Param {
	return sliceutil.Map(s.InputNames(), func(name string) *Param { return s.Inputs[name] })
}

// orderedNames returns the keys of params, first those in declared order and
// then any remaining in sorted order. Declared names no longer in params are
// skipped, as are nil parameters.
func orderedNames(declared []string, params map[string]*Param) []string {
	names := make([]string, 0, len(params))
	seen := make(map[string]struct{}, len(params))
	for _, name := range declared {
		if _, ok := seen[name]; ok || params[name] == nil {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	var rest []string
	for name, param := range params {
		if _, ok := seen[name]; !ok && param != nil {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)

	return append(names, rest...)
}
