package scripthcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riverqueue/riverscript"
	"github.com/riverqueue/riverscript/internal/scriptsharedtest"
	"github.com/riverqueue/riverscript/scripttype"
)

func TestMain(m *testing.M) {
	scriptsharedtest.WrapTestMain(m)
}

const resizeJob = `
job "resize" {
  description   = "Resizes an image."
  stdout_format = "application/json"

  param "width" {
    type        = integer
    description = "Target width."
    min         = 1
    max         = 4096
  }

  param "mode" {
    type     = text
    optional = true
    values   = ["fit", "fill"]
  }

  param "origin" {
    type       = point
    use_default = true
    values     = [{ x = 0, y = 0 }, { x = 1, y = 1 }]
  }

  param "sizes" {
    type      = list(integer)
    direction = "inout"
    values    = [1, 2, 3]
  }

  param "labels" {
    type = map(text)
  }

  param "path" {
    type      = string
    direction = "out"
  }
}
`

func TestLoaderParse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	setup := func(t *testing.T) *Loader {
		t.Helper()

		return newLoader(scriptsharedtest.BaseServiceArchetype(t))
	}

	parseOne := func(t *testing.T, loader *Loader, src string) *riverscript.JobSpec {
		t.Helper()

		specs, err := loader.Parse(ctx, []byte(src), "test.hcl")
		require.NoError(t, err)
		require.Len(t, specs, 1)
		return specs[0]
	}

	t.Run("FullJob", func(t *testing.T) {
		t.Parallel()

		loader := setup(t)

		spec := parseOne(t, loader, resizeJob)
		require.Equal(t, "resize", spec.Name)
		require.Equal(t, "Resizes an image.", spec.Description)
		require.Equal(t, "application/json", spec.StdoutFormat)
		require.Equal(t, riverscript.DefaultOutputFormat, spec.StderrFormat)
		require.Equal(t, []string{"width", "mode", "origin", "sizes", "labels"}, spec.InputNames())
		require.Equal(t, []string{"sizes", "path"}, spec.OutputNames())

		width := spec.Inputs["width"]
		require.Equal(t, scripttype.KindInteger, width.Kind())
		require.Equal(t, "Target width.", width.Description)
		require.Equal(t, int64(1), *width.Min)
		require.Equal(t, int64(4096), *width.Max)
		require.False(t, width.Optional)

		mode := spec.Inputs["mode"]
		require.True(t, mode.Optional)
		require.Len(t, mode.Values, 2)
		require.True(t, scripttype.NewText("fill").Equal(mode.Values[1]))

		origin := spec.Inputs["origin"]
		require.True(t, origin.UseDefault)
		require.Len(t, origin.Values, 2)
		require.True(t, scripttype.NewPoint(scripttype.Point{X: 1, Y: 1}).Equal(origin.Values[1]))

		sizes := spec.Inputs["sizes"]
		require.Equal(t, riverscript.DirectionInOut, sizes.Direction)
		require.True(t, scripttype.NewList(scripttype.NewInteger(0)).Equal(sizes.Prototype))
		require.Len(t, sizes.Values, 3)
		require.Equal(t, scripttype.KindInteger, sizes.Values[0].Kind)

		labels := spec.Inputs["labels"]
		require.Equal(t, scripttype.KindMap, labels.Kind())
		require.Equal(t, scripttype.KindText, labels.Prototype.Members()[0].Kind)

		require.Equal(t, riverscript.DirectionOut, spec.Outputs["path"].Direction)
		require.Equal(t, scripttype.KindText, spec.Outputs["path"].Kind())
	})

	t.Run("LoadedSpecValidatesInputs", func(t *testing.T) {
		t.Parallel()

		loader := setup(t)

		spec := parseOne(t, loader, resizeJob)

		report := riverscript.ValidateInputs(ctx, spec, map[string]*scripttype.Value{
			"width":  scripttype.NewInteger(5000),
			"origin": scripttype.NewPoint(scripttype.Point{}),
			"sizes":  scripttype.NewList(scripttype.NewInteger(1), scripttype.NewInteger(4)),
			"labels": scripttype.NewMap(nil),
		}, nil)
		require.Equal(t, riverscript.ValidationReport{
			"OUT OF BOUNDS   ---   5000 is above max 4096",
			"VALUE LIST      ---   4 not in [1 2 3]",
		}, report)
	})

	t.Run("NestedCollections", func(t *testing.T) {
		t.Parallel()

		loader := setup(t)

		spec := parseOne(t, loader, `
job "matrix" {
  param "rows" {
    type   = list(set(integer))
  }

  param "anything" {
    type   = list
    values = [1, "a", [true], { k = 2 }]
  }
}
`)

		rows := spec.Inputs["rows"]
		require.True(t, scripttype.NewList(scripttype.NewSet(scripttype.NewInteger(0))).Equal(rows.Prototype))

		anything := spec.Inputs["anything"]
		require.Equal(t, []scripttype.Kind{
			scripttype.KindInteger,
			scripttype.KindText,
			scripttype.KindList,
			scripttype.KindMap,
		}, []scripttype.Kind{
			anything.Values[0].Kind,
			anything.Values[1].Kind,
			anything.Values[2].Kind,
			anything.Values[3].Kind,
		})
	})

	t.Run("TypeKeywordAliases", func(t *testing.T) {
		t.Parallel()

		loader := setup(t)

		spec := parseOne(t, loader, `
job "aliases" {
  param "n" { type = number }
  param "s" { type = string }
  param "p" { type = plane }
  param "b" { type = bool }
}
`)
		require.Equal(t, scripttype.KindInteger, spec.Inputs["n"].Kind())
		require.Equal(t, scripttype.KindText, spec.Inputs["s"].Kind())
		require.Equal(t, scripttype.KindPlane, spec.Inputs["p"].Kind())
		require.Equal(t, scripttype.KindBool, spec.Inputs["b"].Kind())
	})

	t.Run("OtherBlocksIgnored", func(t *testing.T) {
		t.Parallel()

		loader := setup(t)

		specs, err := loader.Parse(ctx, []byte(`
settings {
  verbose = true
}

job "a" {}
job "b" {}
`), "test.hcl")
		require.NoError(t, err)
		require.Len(t, specs, 2)
		require.Equal(t, "a", specs[0].Name)
		require.Equal(t, "b", specs[1].Name)
	})

	for _, tt := range []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "UnknownType",
			src:     `
job "j" {
  param "p" {
    type = float
  }
}
`,
			wantErr: `job "j", param "p": type: unknown type "float"`,
		},
		{
			name:    "UnknownTypeConstructor",
			src:     `
job "j" {
  param "p" {
    type = tuple(integer)
  }
}
`,
			wantErr: `job "j", param "p": type: unknown type constructor "tuple" (should be one of list, map, set)`,
		},
		{
			name:    "TypeConstructorArgs",
			src:     `
job "j" {
  param "p" {
    type = list(integer, text)
  }
}
`,
			wantErr: `job "j", param "p": type: type constructor list() requires exactly one argument, got 2`,
		},
		{
			name:    "TypeLiteral",
			src:     `
job "j" {
  param "p" {
    type = "integer"
  }
}
`,
			wantErr: `job "j", param "p": type: expected a type keyword like integer or a type constructor like list(text)`,
		},
		{
			name:    "BadDirection",
			src:     `
job "j" {
  param "p" {
    type      = integer
    direction = "up"
  }
}
`,
			wantErr: `job "j", param "p": direction: unknown direction "up" (should be one of in, out, inout)`,
		},
		{
			name:    "ValuesWrongKind",
			src:     `
job "j" {
  param "p" {
    type   = integer
    values = [1, "two"]
  }
}
`,
			wantErr: `job "j", param "p": values: element 1: expected integer, got string`,
		},
		{
			name:    "ValuesNotList",
			src:     `
job "j" {
  param "p" {
    type   = integer
    values = 1
  }
}
`,
			wantErr: `job "j", param "p": values: expected a list, got number`,
		},
		{
			name:    "PointMissingAttribute",
			src:     `
job "j" {
  param "p" {
    type   = point
    values = [{ x = 1 }]
  }
}
`,
			wantErr: `job "j", param "p": values: element 0: point: missing attribute "y"`,
		},
		{
			name:    "InvalidBounds",
			src:     `
job "j" {
  param "p" {
    type = text
    min  = 1
  }
}
`,
			wantErr: `job "j": argument 2: parameter "p": min and max only apply to integers or collections of integers`,
		},
		{
			name:    "DuplicateParam",
			src:     `
job "j" {
  param "p" { type = text }
  param "p" { type = integer }
}
`,
			wantErr: `job "j": argument 3: input "p": duplicate parameter name`,
		},
		{
			name:    "DuplicateJob",
			src:     `
job "j" {}
job "j" {}
`,
			wantErr: `job "j" declared more than once`,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			loader := setup(t)

			_, err := loader.Parse(ctx, []byte(tt.src), "test.hcl")
			require.EqualError(t, err, tt.wantErr)
		})
	}

	t.Run("SyntaxError", func(t *testing.T) {
		t.Parallel()

		loader := setup(t)

		_, err := loader.Parse(ctx, []byte(`job "j" {`), "test.hcl")
		require.ErrorContains(t, err, "error parsing test.hcl")
	})

	t.Run("MissingType", func(t *testing.T) {
		t.Parallel()

		loader := setup(t)

		_, err := loader.Parse(ctx, []byte(`
job "j" {
  param "p" {}
}
`), "test.hcl")
		require.ErrorContains(t, err, `job "j", param "p": test.hcl:3,`)
		require.ErrorContains(t, err, `Missing required argument; The argument "type" is required`)
	})

	t.Run("NullType", func(t *testing.T) {
		t.Parallel()

		loader := setup(t)

		_, err := loader.Parse(ctx, []byte(`
job "j" {
  param "p" {
    type = null
  }
}
`), "test.hcl")
		require.ErrorContains(t, err, `Missing required argument`)
	})
}

func TestLoaderLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	writeFile := func(t *testing.T, path, contents string) {
		t.Helper()

		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	}

	t.Run("FilesAndDirectories", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "jobs", "a.hcl"), `job "a" {}`)
		writeFile(t, filepath.Join(dir, "jobs", "nested", "b.hcl"), `job "b" {}`)
		writeFile(t, filepath.Join(dir, "jobs", "notes.txt"), `not hcl`)
		writeFile(t, filepath.Join(dir, "c.hcl"), `job "c" {}`)

		loader := NewLoader(&Config{Logger: scriptsharedtest.Logger(t)})

		specs, err := loader.Load(ctx,
			filepath.Join(dir, "jobs"),
			filepath.Join(dir, "c.hcl"),
			filepath.Join(dir, "jobs", "a.hcl"), // already found through directory
			filepath.Join(dir, "does-not-exist"),
		)
		require.NoError(t, err)

		names := make([]string, len(specs))
		for i, spec := range specs {
			names[i] = spec.Name
		}
		require.ElementsMatch(t, []string{"a", "b", "c"}, names)
	})

	t.Run("DuplicateAcrossFiles", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "a.hcl"), `job "same" {}`)
		writeFile(t, filepath.Join(dir, "b.hcl"), `job "same" {}`)

		loader := NewLoader(nil)

		_, err := loader.Load(ctx, filepath.Join(dir, "a.hcl"), filepath.Join(dir, "b.hcl"))
		require.EqualError(t, err, `job "same" in `+filepath.Join(dir, "b.hcl")+` already declared in `+filepath.Join(dir, "a.hcl"))
	})

	t.Run("ParseError", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "bad.hcl"), `job "j" {`)

		_, err := NewLoader(nil).Load(ctx, dir)
		require.ErrorContains(t, err, "error parsing "+filepath.Join(dir, "bad.hcl"))
	})
}
