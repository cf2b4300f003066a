package riverscript

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/riverqueue/riverscript/internal/util/ptrutil"
	"github.com/riverqueue/riverscript/scripttype"
)

func TestSuggestKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "optional", SuggestKey("optinal", paramKeys))
	require.Equal(t, "use_default", SuggestKey("use_defualt", paramKeys))
	require.Empty(t, SuggestKey("completely_different", paramKeys))
	require.Empty(t, SuggestKey("x", nil))
}

func TestJobSpecMarshalJSON(t *testing.T) {
	t.Parallel()

	spec, err := NewJobSpec(nil, "resize", "Resizes an image.",
		Integer("width", &ParamOpts{Description: "Target width.", Min: ptrutil.Ptr(int64(1)), Max: ptrutil.Ptr(int64(4096))}),
		Text("mode", &ParamOpts{Optional: true, Values: []*scripttype.Value{scripttype.NewText("fit"), scripttype.NewText("fill")}}),
		List("sizes", &ParamOpts{Of: scripttype.NewInteger(0)}).InOut(),
		Text("path", nil).Out(),
	)
	require.NoError(t, err)

	specJSON, err := spec.MarshalJSON()
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(specJSON))

	doc := gjson.ParseBytes(specJSON)
	require.Equal(t, "resize", doc.Get("name").String())
	require.Equal(t, "Resizes an image.", doc.Get("description").String())
	require.Equal(t, DefaultOutputFormat, doc.Get("stdout_format").String())
	require.Equal(t, DefaultOutputFormat, doc.Get("stderr_format").String())

	var inputNames []string
	doc.Get("inputs").ForEach(func(key, _ gjson.Result) bool {
		inputNames = append(inputNames, key.String())
		return true
	})
	require.Equal(t, []string{"width", "mode", "sizes"}, inputNames)

	width := doc.Get("inputs.width")
	require.Equal(t, "integer", width.Get("type").String())
	require.Equal(t, "in", width.Get("direction").String())
	require.Equal(t, "Target width.", width.Get("description").String())
	require.Equal(t, int64(1), width.Get("min").Int())
	require.Equal(t, int64(4096), width.Get("max").Int())
	require.False(t, width.Get("optional").Bool())
	require.False(t, width.Get("values").Exists())
	require.JSONEq(t, `{"kind":"integer","value":0}`, width.Get("prototype").Raw)

	mode := doc.Get("inputs.mode")
	require.True(t, mode.Get("optional").Bool())
	require.False(t, mode.Get("min").Exists())
	require.JSONEq(t, `[{"kind":"text","value":"fit"},{"kind":"text","value":"fill"}]`, mode.Get("values").Raw)

	require.Equal(t, "inout", doc.Get("inputs.sizes.direction").String())
	require.Equal(t, doc.Get("inputs.sizes").Raw, doc.Get("outputs.sizes").Raw)
	require.Equal(t, "out", doc.Get("outputs.path.direction").String())
}

func TestJobSpecMarshalJSONEmpty(t *testing.T) {
	t.Parallel()

	spec, err := NewJobSpec(nil)
	require.NoError(t, err)

	specJSON, err := spec.MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `{
		"name": "",
		"description": "",
		"stdout_format": "text/plain",
		"stderr_format": "text/plain",
		"inputs": {},
		"outputs": {}
	}`, string(specJSON))
}

func TestParseJobSpecJSON(t *testing.T) {
	t.Parallel()

	t.Run("RoundTrip", func(t *testing.T) {
		t.Parallel()

		spec, err := NewJobSpec(&JobSpecOpts{StderrFormat: "application/json"}, "resize", "Resizes an image.",
			Integer("width", &ParamOpts{Min: ptrutil.Ptr(int64(1)), Max: ptrutil.Ptr(int64(4096)), UseDefault: true}),
			Map("labels", &ParamOpts{Of: scripttype.NewText(""), Optional: true}),
			Point("origin", &ParamOpts{Values: []*scripttype.Value{scripttype.NewPoint(scripttype.Point{X: 1, Y: 2})}}),
			List("sizes", nil).InOut(),
			Plane("plane", nil).Out(),
		)
		require.NoError(t, err)

		specJSON, err := spec.MarshalJSON()
		require.NoError(t, err)

		parsed, err := ParseJobSpecJSON(specJSON)
		require.NoError(t, err)

		require.Equal(t, spec.Name, parsed.Name)
		require.Equal(t, spec.Description, parsed.Description)
		require.Equal(t, spec.StdoutFormat, parsed.StdoutFormat)
		require.Equal(t, "application/json", parsed.StderrFormat)
		require.Equal(t, spec.InputNames(), parsed.InputNames())
		require.Equal(t, spec.OutputNames(), parsed.OutputNames())
		require.Same(t, parsed.Inputs["sizes"], parsed.Outputs["sizes"])

		for name, param := range spec.Inputs {
			parsedParam := parsed.Inputs[name]
			require.Equal(t, param.Direction, parsedParam.Direction, name)
			require.Equal(t, param.Optional, parsedParam.Optional, name)
			require.Equal(t, param.UseDefault, parsedParam.UseDefault, name)
			require.Equal(t, param.Min, parsedParam.Min, name)
			require.Equal(t, param.Max, parsedParam.Max, name)
			require.True(t, param.Prototype.Equal(parsedParam.Prototype), name)
			require.Len(t, parsedParam.Values, len(param.Values), name)
		}

		reencoded, err := parsed.MarshalJSON()
		require.NoError(t, err)
		require.JSONEq(t, string(specJSON), string(reencoded))
	})

	t.Run("UnknownTopLevelKey", func(t *testing.T) {
		t.Parallel()

		_, err := ParseJobSpecJSON([]byte(`{"name": "resize", "inptus": {}}`))
		var unknownErr *UnknownKeyError
		require.ErrorAs(t, err, &unknownErr)
		require.Equal(t, "inptus", unknownErr.Key)
		require.Equal(t, "inputs", unknownErr.Suggestion)
		require.EqualError(t, err, `$: unknown key "inptus"; did you mean "inputs"?`)
	})

	t.Run("UnknownParamKey", func(t *testing.T) {
		t.Parallel()

		_, err := ParseJobSpecJSON([]byte(`{"inputs": {"width": {"type": "integer", "maximum_value": 5}}}`))
		require.EqualError(t, err, `$.inputs.width: unknown key "maximum_value"`)
	})

	t.Run("ShorthandValues", func(t *testing.T) {
		t.Parallel()

		spec, err := ParseJobSpecJSON([]byte(`{
			"name": "pick",
			"inputs": {
				"choice": {"type": "text", "values": ["a", "b"]},
				"count": {"type": "integer", "min": 0, "max": 10}
			}
		}`))
		require.NoError(t, err)
		require.Equal(t, []string{"choice", "count"}, spec.InputNames())
		require.Len(t, spec.Inputs["choice"].Values, 2)
		require.Equal(t, int64(10), *spec.Inputs["count"].Max)
		require.True(t, scripttype.NewInteger(0).Equal(spec.Inputs["count"].Prototype))
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		t.Parallel()

		_, err := ParseJobSpecJSON([]byte(`{`))
		require.EqualError(t, err, "invalid JSON")
	})

	t.Run("NotObject", func(t *testing.T) {
		t.Parallel()

		_, err := ParseJobSpecJSON([]byte(`[]`))
		require.EqualError(t, err, "$: expected object")
	})

	t.Run("UnknownType", func(t *testing.T) {
		t.Parallel()

		_, err := ParseJobSpecJSON([]byte(`{"inputs": {"width": {"type": "float"}}}`))
		require.EqualError(t, err, `$.inputs.width.type: unknown value kind "float"`)
	})

	t.Run("BadDirection", func(t *testing.T) {
		t.Parallel()

		_, err := ParseJobSpecJSON([]byte(`{"inputs": {"width": {"type": "integer", "direction": "up"}}}`))
		require.EqualError(t, err, `$.inputs.width.direction: unknown direction "up" (should be one of in, out, inout)`)
	})

	t.Run("NonIntegerBound", func(t *testing.T) {
		t.Parallel()

		_, err := ParseJobSpecJSON([]byte(`{"inputs": {"width": {"type": "integer", "min": "zero"}}}`))
		require.EqualError(t, err, `$.inputs.width.min: expected integer, got text`)
	})

	t.Run("PrototypeKindMismatch", func(t *testing.T) {
		t.Parallel()

		_, err := ParseJobSpecJSON([]byte(`{"inputs": {"width": {"type": "integer", "prototype": {"kind": "text", "value": ""}}}}`))
		require.EqualError(t, err, `$.inputs.width.prototype: kind text doesn't match type integer`)
	})

	t.Run("InvalidParamRejected", func(t *testing.T) {
		t.Parallel()

		_, err := ParseJobSpecJSON([]byte(`{"inputs": {"name": {"type": "text", "min": 1}}}`))
		require.EqualError(t, err, `argument 2: parameter "name": min and max only apply to integers or collections of integers`)
	})
}
