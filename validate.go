package riverscript

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/riverqueue/riverscript/internal/util/sliceutil"
	"github.com/riverqueue/riverscript/scripttype"
)

// DefaultSink receives default values installed for omitted parameters
// during validation. A session store is the usual implementation.
type DefaultSink interface {
	SetInput(ctx context.Context, key string, value *scripttype.Value) error
}

// ReportCategory is the category of a single validation problem.
type ReportCategory string

const (
	ReportCategoryFailedToSet  ReportCategory = "failed to set input"
	ReportCategoryMissingInput ReportCategory = "missing input"
	ReportCategoryOutOfBounds  ReportCategory = "out of bounds"
	ReportCategoryValueList    ReportCategory = "value list"
	ReportCategoryWrongType    ReportCategory = "wrong type"
)

// reportCategoryTags are category tags as they appear in report lines.
// Casers aren't safe for concurrent use so tags are computed once up front.
var reportCategoryTags = func() map[ReportCategory]string {
	upper := cases.Upper(language.Und)
	tags := make(map[ReportCategory]string)
	for _, category := range []ReportCategory{
		ReportCategoryFailedToSet,
		ReportCategoryMissingInput,
		ReportCategoryOutOfBounds,
		ReportCategoryValueList,
		ReportCategoryWrongType,
	} {
		tags[category] = upper.String(string(category))
	}
	return tags
}()

// Tag returns the category's tag as it's rendered in report lines.
func (c ReportCategory) Tag() string {
	if tag, ok := reportCategoryTags[c]; ok {
		return tag
	}
	return strings.ToUpper(string(c))
}

// reportLine renders a single report line. Tags are padded or truncated to a
// fixed width so that messages line up.
func reportLine(category ReportCategory, format string, args ...any) string {
	return fmt.Sprintf("%-15.15s ---   %s", category.Tag(), fmt.Sprintf(format, args...))
}

// ValidationReport is the result of validating submitted inputs against a job
// spec: an ordered list of human readable problem lines. An empty report means
// the inputs are valid.
type ValidationReport []string

// Valid returns true if the report contains no problems.
func (r ValidationReport) Valid() bool { return len(r) == 0 }

// String renders the report with one problem per line, each indented by a
// tab.
func (r ValidationReport) String() string {
	var sb strings.Builder
	for _, line := range r {
		sb.WriteString("\t")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// ValidateInputs checks submitted inputs against the spec's input parameters
// and returns a report of every problem found. It never returns early, so a
// single call surfaces all problems at once.
//
// For each input parameter missing from inputs:
//
//   - If it's optional and sets UseDefault, its prototype is installed through
//     sink (when sink is non-nil) and failures are ignored.
//   - If it's required and sets UseDefault, its prototype is installed through
//     sink, and a failure to do so (including a nil sink) is reported.
//   - If it's required and doesn't set UseDefault, it's reported missing.
//
// For each input parameter present in inputs, the submitted value is compared
// structurally to the parameter's prototype, then checked against the
// parameter's min and max, then against its allowed values.
//
// Lines for missing parameters come first, followed by lines for present
// parameters, each group in declaration order. Keys in inputs that don't name
// an input parameter are ignored.
func ValidateInputs(ctx context.Context, spec *JobSpec, inputs map[string]*scripttype.Value, sink DefaultSink) ValidationReport {
	var missing, invalid ValidationReport

	for _, param := range spec.inputParams() {
		input, ok := inputs[param.Name]
		if !ok {
			missing = append(missing, validateAbsent(ctx, param, sink)...)
			continue
		}

		invalid = append(invalid, compareProto(param.Prototype, input, make(visitedSet))...)
		invalid = append(invalid, checkBoundaries(param.Min, param.Max, input)...)
		invalid = append(invalid, checkValues(param.Values, input)...)
	}

	return append(missing, invalid...)
}

func validateAbsent(ctx context.Context, param *Param, sink DefaultSink) []string {
	switch {
	case param.Optional:
		if param.UseDefault && sink != nil {
			_ = sink.SetInput(ctx, param.Name, param.Prototype)
		}
		return nil

	case param.UseDefault:
		if sink == nil {
			return []string{reportLine(ReportCategoryFailedToSet, "%s=%s. Error: %s", param.Name, param.Prototype, "no default sink")}
		}
		if err := sink.SetInput(ctx, param.Name, param.Prototype); err != nil {
			return []string{reportLine(ReportCategoryFailedToSet, "%s=%s. Error: %s", param.Name, param.Prototype, err)}
		}
		return nil
	}

	return []string{reportLine(ReportCategoryMissingInput, "%s", param.Name)}
}

// visitedSet tracks nodes already compared during a single structural
// comparison. Node identity is pointer identity.
type visitedSet map[*scripttype.Value]struct{}

// compareProto compares an input value against a prototype. Kinds must match
// exactly. A collection prototype with an exemplar member has that exemplar
// compared against every member of the input. An empty collection prototype
// accepts any members. A pair of nodes that have both been seen before is
// skipped, which guarantees termination on cyclic inputs.
func compareProto(proto, input *scripttype.Value, visited visitedSet) []string {
	_, protoSeen := visited[proto]
	_, inputSeen := visited[input]
	if protoSeen && inputSeen {
		return nil
	}
	visited[proto] = struct{}{}
	if input != nil {
		visited[input] = struct{}{}
	}

	if input == nil {
		return []string{reportLine(ReportCategoryWrongType, "%s != %s", "<nil>", proto.Kind)}
	}
	if input.Kind != proto.Kind {
		return []string{reportLine(ReportCategoryWrongType, "%s != %s", input.Kind, proto.Kind)}
	}

	elemProto := exemplar(proto)
	if elemProto == nil {
		return nil
	}

	var lines []string
	for _, member := range input.Members() {
		lines = append(lines, compareProto(elemProto, member, visited)...)
	}
	return lines
}

// expand flattens an unwrapped value into the items that boundary and allowed
// value checks apply to: the members of a collection, or the value itself.
// Nil members are dropped. Unwrap produces them where it cuts a cycle, and a
// nil member is already reported as a wrong type by compareProto.
func expand(plain any) []any {
	switch plain := plain.(type) {
	case nil:
		return nil
	case []any:
		items := make([]any, 0, len(plain))
		for _, item := range plain {
			if item != nil {
				items = append(items, item)
			}
		}
		return items
	case map[string]any:
		keys := make([]string, 0, len(plain))
		for key := range plain {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		items := make([]any, 0, len(keys))
		for _, key := range keys {
			if plain[key] != nil {
				items = append(items, plain[key])
			}
		}
		return items
	}
	return []any{plain}
}

// checkBoundaries checks every integer item of the input against inclusive
// bounds. Items which aren't integers are ignored.
func checkBoundaries(lower, upper *int64, input *scripttype.Value) []string {
	if lower == nil && upper == nil {
		return nil
	}

	var lines []string
	for _, item := range expand(scripttype.Unwrap(input)) {
		n, ok := item.(int64)
		if !ok {
			continue
		}
		if lower != nil && n < *lower {
			lines = append(lines, reportLine(ReportCategoryOutOfBounds, "%d is below min %d", n, *lower))
		}
		if upper != nil && n > *upper {
			lines = append(lines, reportLine(ReportCategoryOutOfBounds, "%d is above max %d", n, *upper))
		}
	}
	return lines
}

// checkValues checks every item of the input for membership in the allowed
// values. An empty allowed list permits anything.
func checkValues(allowed []*scripttype.Value, input *scripttype.Value) []string {
	if len(allowed) < 1 {
		return nil
	}

	allowedPlain := sliceutil.Map(allowed, scripttype.Unwrap)

	var lines []string
	for _, item := range expand(scripttype.Unwrap(input)) {
		if !containsPlain(allowedPlain, item) {
			lines = append(lines, reportLine(ReportCategoryValueList, "%v not in %v", item, allowedPlain))
		}
	}
	return lines
}

func containsPlain(haystack []any, needle any) bool {
	for _, candidate := range haystack {
		if reflect.DeepEqual(candidate, needle) {
			return true
		}
	}
	return false
}
