package riverscript

import (
	"errors"
	"fmt"
	"slices"

	"github.com/agext/levenshtein"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/riverqueue/riverscript/scripttype"
)

// UnknownKeyError is returned when a spec document contains a key that isn't
// recognized. Suggestion is the closest known key if one is near enough to be
// a likely typo.
type UnknownKeyError struct {
	Key        string
	Path       string
	Suggestion string
}

func (e *UnknownKeyError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: unknown key %q; did you mean %q?", e.Path, e.Key, e.Suggestion)
	}
	return fmt.Sprintf("%s: unknown key %q", e.Path, e.Key)
}

// SuggestKey returns the candidate closest to given by edit distance, or an
// empty string if none is within a distance that's plausibly a typo.
func SuggestKey(given string, candidates []string) string {
	var (
		best     string
		bestDist = 3
	)
	for _, candidate := range candidates {
		if dist := levenshtein.Distance(given, candidate, nil); dist < bestDist {
			best, bestDist = candidate, dist
		}
	}
	return best
}

var (
	jobSpecKeys = []string{"description", "inputs", "name", "outputs", "stderr_format", "stdout_format"}
	paramKeys   = []string{"description", "direction", "max", "min", "optional", "prototype", "type", "use_default", "values"}
)

// MarshalJSON encodes the spec as a JSON document. Parameters are emitted in
// declaration order, and a parameter that's both an input and an output
// appears under both "inputs" and "outputs":
//
//	{
//	  "name": "resize",
//	  "description": "Resizes an image.",
//	  "stdout_format": "text/plain",
//	  "stderr_format": "text/plain",
//	  "inputs": {
//	    "width": {"type": "integer", "direction": "in", "min": 1, "prototype": {"kind": "integer", "value": 0}, ...}
//	  },
//	  "outputs": {}
//	}
func (s *JobSpec) MarshalJSON() ([]byte, error) {
	doc := []byte(`{}`)

	var err error
	for _, field := range []struct {
		key string
		val string
	}{
		{"name", s.Name},
		{"description", s.Description},
		{"stdout_format", s.StdoutFormat},
		{"stderr_format", s.StderrFormat},
	} {
		if doc, err = sjson.SetBytes(doc, field.key, field.val); err != nil {
			return nil, err
		}
	}

	for _, section := range []struct {
		key    string
		order  []string
		params map[string]*Param
	}{
		{"inputs", s.InputNames(), s.Inputs},
		{"outputs", s.OutputNames(), s.Outputs},
	} {
		if doc, err = sjson.SetRawBytes(doc, section.key, []byte(`{}`)); err != nil {
			return nil, err
		}
		for _, name := range section.order {
			paramJSON, err := section.params[name].MarshalJSON()
			if err != nil {
				return nil, fmt.Errorf("error encoding parameter %q: %w", name, err)
			}
			if doc, err = sjson.SetRawBytes(doc, section.key+"."+gjson.Escape(name), paramJSON); err != nil {
				return nil, err
			}
		}
	}

	return doc, nil
}

// MarshalJSON encodes a single parameter. The parameter's name isn't included
// because it's the key the parameter is stored under in a spec document.
func (p *Param) MarshalJSON() ([]byte, error) {
	doc, err := sjson.SetBytes([]byte(`{}`), "type", string(p.Prototype.Kind))
	if err != nil {
		return nil, err
	}

	if doc, err = sjson.SetBytes(doc, "direction", p.Direction.String()); err != nil {
		return nil, err
	}
	if p.Description != "" {
		if doc, err = sjson.SetBytes(doc, "description", p.Description); err != nil {
			return nil, err
		}
	}
	if doc, err = sjson.SetBytes(doc, "optional", p.Optional); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetBytes(doc, "use_default", p.UseDefault); err != nil {
		return nil, err
	}
	if p.Min != nil {
		if doc, err = sjson.SetBytes(doc, "min", *p.Min); err != nil {
			return nil, err
		}
	}
	if p.Max != nil {
		if doc, err = sjson.SetBytes(doc, "max", *p.Max); err != nil {
			return nil, err
		}
	}

	if len(p.Values) > 0 {
		if doc, err = sjson.SetRawBytes(doc, "values", []byte(`[]`)); err != nil {
			return nil, err
		}
		for _, value := range p.Values {
			valueJSON, err := value.MarshalJSON()
			if err != nil {
				return nil, err
			}
			if doc, err = sjson.SetRawBytes(doc, "values.-1", valueJSON); err != nil {
				return nil, err
			}
		}
	}

	protoJSON, err := p.Prototype.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return sjson.SetRawBytes(doc, "prototype", protoJSON)
}

// ParseJobSpecJSON decodes a spec from a document produced by
// JobSpec.MarshalJSON. Keys that aren't recognized are rejected with an
// *UnknownKeyError. The decoded spec is built through NewJobSpec, so the same
// construction rules apply.
func ParseJobSpecJSON(data []byte) (*JobSpec, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}

	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, errors.New("$: expected object")
	}
	if err := checkKeys(doc, "$", jobSpecKeys); err != nil {
		return nil, err
	}

	var (
		name        = doc.Get("name").String()
		description = doc.Get("description").String()
		args        = []any{name, description}
		seenInOut   = make(map[string]struct{})
	)

	for _, section := range []string{"inputs", "outputs"} {
		params := doc.Get(section)
		if !params.Exists() {
			continue
		}
		if !params.IsObject() {
			return nil, fmt.Errorf("$.%s: expected object", section)
		}

		var err error
		params.ForEach(func(key, paramRes gjson.Result) bool {
			var param *Param
			param, err = parseParamJSON(key.String(), paramRes, "$."+section+"."+key.String())
			if err != nil {
				return false
			}

			if param.Direction == DirectionInOut {
				// Parameters flowing both ways are listed in both sections but
				// only added once.
				if _, ok := seenInOut[param.Name]; ok {
					return true
				}
				seenInOut[param.Name] = struct{}{}
			}

			args = append(args, param)
			return true
		})
		if err != nil {
			return nil, err
		}
	}

	return NewJobSpec(&JobSpecOpts{
		StderrFormat: doc.Get("stderr_format").String(),
		StdoutFormat: doc.Get("stdout_format").String(),
	}, args...)
}

func parseParamJSON(name string, res gjson.Result, path string) (*Param, error) {
	if !res.IsObject() {
		return nil, fmt.Errorf("%s: expected object", path)
	}
	if err := checkKeys(res, path, paramKeys); err != nil {
		return nil, err
	}

	kind, err := scripttype.ParseKind(res.Get("type").String())
	if err != nil {
		return nil, fmt.Errorf("%s.type: %w", path, err)
	}

	param := newParam(name, kind, &ParamOpts{
		Description: res.Get("description").String(),
		Optional:    res.Get("optional").Bool(),
		UseDefault:  res.Get("use_default").Bool(),
	})

	if dir := res.Get("direction"); dir.Exists() {
		if param.Direction, err = ParseDirection(dir.String()); err != nil {
			return nil, fmt.Errorf("%s.direction: %w", path, err)
		}
	}

	for _, bound := range []struct {
		key string
		dst **int64
	}{
		{"min", &param.Min},
		{"max", &param.Max},
	} {
		boundRes := res.Get(bound.key)
		if !boundRes.Exists() {
			continue
		}
		val, err := scripttype.ParseJSONResult(boundRes)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", path, bound.key, err)
		}
		if val.Kind != scripttype.KindInteger {
			return nil, fmt.Errorf("%s.%s: expected integer, got %s", path, bound.key, val.Kind)
		}
		*bound.dst = &val.Int
	}

	if values := res.Get("values"); values.Exists() {
		if !values.IsArray() {
			return nil, fmt.Errorf("%s.values: expected array", path)
		}
		for i, valueRes := range values.Array() {
			value, err := scripttype.ParseJSONResult(valueRes)
			if err != nil {
				return nil, fmt.Errorf("%s.values[%d]: %w", path, i, err)
			}
			param.Values = append(param.Values, value)
		}
	}

	if protoRes := res.Get("prototype"); protoRes.Exists() {
		proto, err := scripttype.ParseJSONResult(protoRes)
		if err != nil {
			return nil, fmt.Errorf("%s.prototype: %w", path, err)
		}
		if proto.Kind != kind {
			return nil, fmt.Errorf("%s.prototype: kind %s doesn't match type %s", path, proto.Kind, kind)
		}
		param.Prototype = proto
	}

	return param, nil
}

func checkKeys(res gjson.Result, path string, known []string) error {
	var unknownErr error
	res.ForEach(func(key, _ gjson.Result) bool {
		if slices.Contains(known, key.String()) {
			return true
		}
		unknownErr = &UnknownKeyError{
			Key:        key.String(),
			Path:       path,
			Suggestion: SuggestKey(key.String(), known),
		}
		return false
	})
	return unknownErr
}
