// Package scripthcl loads job specs declared in HCL files:
//
//	job "resize" {
//	  description = "Resizes an image."
//
//	  param "width" {
//	    type = integer
//	    min  = 1
//	  }
//
//	  param "sizes" {
//	    type      = list(integer)
//	    direction = "inout"
//	  }
//	}
package scripthcl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/riverqueue/riverscript"
	"github.com/riverqueue/riverscript/internal/baseservice"
	"github.com/riverqueue/riverscript/internal/util/sliceutil"
)

// FileExtension is the extension of files picked up when loading a directory.
const FileExtension = ".hcl"

// fileRoot is decoded from every file. Blocks other than job are ignored so
// that job definitions can live alongside other configuration.
type fileRoot struct {
	Jobs   []*jobBlock `hcl:"job,block"`
	Remain hcl.Body    `hcl:",remain"`
}

type jobBlock struct {
	Name         string        `hcl:"name,label"`
	Description  string        `hcl:"description,optional"`
	StderrFormat string        `hcl:"stderr_format,optional"`
	StdoutFormat string        `hcl:"stdout_format,optional"`
	Params       []*paramBlock `hcl:"param,block"`
}

type paramBlock struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type"`
	Description string         `hcl:"description,optional"`
	Direction   string         `hcl:"direction,optional"`
	Max         *int64         `hcl:"max,optional"`
	Min         *int64         `hcl:"min,optional"`
	Optional    bool           `hcl:"optional,optional"`
	UseDefault  bool           `hcl:"use_default,optional"`
	Values      hcl.Expression `hcl:"values,optional"`
}

// Config is configuration for a Loader.
type Config struct {
	// Logger is the structured logger to use for logging purposes. If none is
	// specified, slog.Default is used.
	Logger *slog.Logger
}

// Loader loads job specs from HCL.
type Loader struct {
	baseservice.BaseService
}

// NewLoader returns a new loader.
func NewLoader(config *Config) *Loader {
	if config == nil {
		config = &Config{}
	}

	return newLoader(baseservice.NewArchetype(config.Logger))
}

func newLoader(archetype *baseservice.Archetype) *Loader {
	return baseservice.Init(archetype, &Loader{})
}

// Load loads job specs from the given paths. A path may be a single file or a
// directory, in which case every file ending in FileExtension beneath it is
// loaded. Paths that don't exist are skipped. Job names must be unique across
// all loaded files.
func (l *Loader) Load(ctx context.Context, paths ...string) ([]*riverscript.JobSpec, error) {
	files, err := findHCLFiles(paths)
	if err != nil {
		return nil, err
	}

	l.Logger.DebugContext(ctx, l.Name+": Discovered files", slog.Int("num_files", len(files)))

	var (
		parser = hclparse.NewParser()
		seen   = make(map[string]string)
		specs  []*riverscript.JobSpec
	)
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("error parsing %s: %w", file, diags)
		}

		fileSpecs, err := l.decode(ctx, hclFile)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}

		for _, spec := range fileSpecs {
			if firstFile, ok := seen[spec.Name]; ok {
				return nil, fmt.Errorf("job %q in %s already declared in %s", spec.Name, file, firstFile)
			}
			seen[spec.Name] = file
		}
		specs = append(specs, fileSpecs...)
	}

	l.Logger.DebugContext(ctx, l.Name+": Loaded job specs", slog.Int("num_jobs", len(specs)))
	return specs, nil
}

// Parse loads job specs from HCL source. filename is used in diagnostics.
func (l *Loader) Parse(ctx context.Context, src []byte, filename string) ([]*riverscript.JobSpec, error) {
	hclFile, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("error parsing %s: %w", filename, diags)
	}

	return l.decode(ctx, hclFile)
}

func (l *Loader) decode(ctx context.Context, hclFile *hcl.File) ([]*riverscript.JobSpec, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
		return nil, diags
	}

	seen := make(map[string]struct{}, len(root.Jobs))
	for _, job := range root.Jobs {
		if _, ok := seen[job.Name]; ok {
			return nil, fmt.Errorf("job %q declared more than once", job.Name)
		}
		seen[job.Name] = struct{}{}
	}

	return sliceutil.MapError(root.Jobs, func(job *jobBlock) (*riverscript.JobSpec, error) {
		return l.translateJob(ctx, job)
	})
}

func (l *Loader) translateJob(ctx context.Context, job *jobBlock) (*riverscript.JobSpec, error) {
	params, err := sliceutil.MapError(job.Params, func(param *paramBlock) (any, error) {
		translated, err := translateParam(param)
		if err != nil {
			return nil, fmt.Errorf("job %q, param %q: %w", job.Name, param.Name, err)
		}
		return translated, nil
	})
	if err != nil {
		return nil, err
	}

	spec, err := riverscript.NewJobSpec(&riverscript.JobSpecOpts{
		StderrFormat: job.StderrFormat,
		StdoutFormat: job.StdoutFormat,
	}, append([]any{job.Name, job.Description}, params...)...)
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", job.Name, err)
	}

	l.Logger.DebugContext(ctx, l.Name+": Translated job",
		slog.String("job", spec.Name), slog.Int("num_inputs", len(spec.Inputs)), slog.Int("num_outputs", len(spec.Outputs)))

	return spec, nil
}

func translateParam(block *paramBlock) (*riverscript.Param, error) {
	// gohcl never requires expression fields, and fills in a null expression
	// when the attribute is absent.
	if exprIsNull(block.Type) {
		diag := &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Missing required argument",
			Detail:   `The argument "type" is required, but no definition was found.`,
		}
		if block.Type != nil {
			diag.Subject = block.Type.Range().Ptr()
		}
		return nil, hcl.Diagnostics{diag}
	}

	proto, err := typeExprToPrototype(block.Type)
	if err != nil {
		return nil, fmt.Errorf("type: %w", err)
	}

	param := riverscript.NewParam(block.Name, proto.Kind, &riverscript.ParamOpts{
		Description: block.Description,
		Max:         block.Max,
		Min:         block.Min,
		Of:          elemPrototype(proto),
		Optional:    block.Optional,
		UseDefault:  block.UseDefault,
	})

	if block.Direction != "" {
		if param.Direction, err = riverscript.ParseDirection(block.Direction); err != nil {
			return nil, fmt.Errorf("direction: %w", err)
		}
	}

	if param.Values, err = translateValues(block.Values, proto); err != nil {
		return nil, fmt.Errorf("values: %w", err)
	}

	return param, nil
}

// exprIsNull reports whether an expression is missing or is a literal null.
// Type keywords are traversals, so any expression referencing variables is
// taken to be present.
func exprIsNull(expr hcl.Expression) bool {
	if expr == nil {
		return true
	}
	if len(expr.Variables()) > 0 {
		return false
	}

	val, diags := expr.Value(nil)
	return !diags.HasErrors() && val.IsNull()
}

// findHCLFiles walks the given paths and returns every HCL file found, each
// only once.
func findHCLFiles(paths []string) ([]string, error) {
	var (
		files []string
		seen  = make(map[string]struct{})
	)

	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			add(path)
			continue
		}

		if err := filepath.WalkDir(path, func(p string, entry os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !entry.IsDir() && filepath.Ext(p) == FileExtension {
				add(p)
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}

	return files, nil
}
