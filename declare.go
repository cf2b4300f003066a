package riverscript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// EnvParseOnly is the environment variable read by ParseOnlyFromEnv. When set
// to a non-empty value other than "0" or "false", a job should emit its spec
// and exit without running.
const EnvParseOnly = "RIVERSCRIPT_PARSE"

// OutputKeyParse is the name of the output slot under which Declare publishes
// a job spec when running in parse-only mode.
const OutputKeyParse = "riverscript.parse"

// Outcome is the result of Declare. It tells the caller whether to run the
// job body or to stop after the spec has been emitted.
type Outcome int

const (
	// OutcomeExecute indicates that the job body should run.
	OutcomeExecute Outcome = iota

	// OutcomeSpecOnly indicates that the job spec was published to the parse
	// output slot and the job body should not run. It's not a failure.
	OutcomeSpecOnly
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExecute:
		return "execute"
	case OutcomeSpecOnly:
		return "spec_only"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// OutputSink receives a job's named outputs. A session store is the usual
// implementation.
type OutputSink interface {
	SetOutput(ctx context.Context, key string, value []byte) error
}

// Config is the configuration for Declare.
type Config struct {
	// Logger is the structured logger to use for logging purposes. If none is
	// specified, logs will be emitted to STDOUT with messages at warn level
	// or higher.
	Logger *slog.Logger

	// Outputs is the sink that the job spec is published to under
	// OutputKeyParse when ParseOnly is set. It's required when ParseOnly is
	// set.
	Outputs OutputSink

	// ParseOnly indicates that the job should only publish its spec rather
	// than run. See ParseOnlyFromEnv for reading it from the environment.
	ParseOnly bool
}

func (c *Config) validate() error {
	if c.ParseOnly && c.Outputs == nil {
		return errors.New("Outputs must be set when ParseOnly is set")
	}
	return nil
}

// ParseOnlyFromEnv returns true if EnvParseOnly is set in the environment to
// a value indicating that a job should only emit its spec.
func ParseOnlyFromEnv() bool {
	val := strings.TrimSpace(os.Getenv(EnvParseOnly))
	return val != "" && val != "0" && !strings.EqualFold(val, "false")
}

// Declare builds a job spec from the given arguments as NewJobSpec does, then
// decides whether the job should run. In parse-only mode the spec is encoded
// to JSON and published to config.Outputs under OutputKeyParse, and
// OutcomeSpecOnly is returned so the caller can exit without running the job
// body:
//
//	spec, outcome, err := riverscript.Declare(ctx, config, nil, "resize", params...)
//	if err != nil {
//		return err
//	}
//	if outcome == riverscript.OutcomeSpecOnly {
//		return nil
//	}
func Declare(ctx context.Context, config *Config, opts *JobSpecOpts, args ...any) (*JobSpec, Outcome, error) {
	if config == nil {
		config = &Config{}
	}
	if err := config.validate(); err != nil {
		return nil, OutcomeExecute, err
	}

	spec, err := NewJobSpec(opts, args...)
	if err != nil {
		return nil, OutcomeExecute, err
	}

	outcome, err := EmitSpec(ctx, config, spec)
	if err != nil {
		return nil, OutcomeExecute, err
	}

	return spec, outcome, nil
}

// EmitSpec is Declare for a spec that's already been built, like one loaded
// from a file. In parse-only mode the spec is published to config.Outputs and
// OutcomeSpecOnly is returned. Otherwise it does nothing and returns
// OutcomeExecute.
func EmitSpec(ctx context.Context, config *Config, spec *JobSpec) (Outcome, error) {
	if config == nil {
		config = &Config{}
	}
	if err := config.validate(); err != nil {
		return OutcomeExecute, err
	}

	if !config.ParseOnly {
		return OutcomeExecute, nil
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	specJSON, err := spec.MarshalJSON()
	if err != nil {
		return OutcomeExecute, fmt.Errorf("error encoding job spec: %w", err)
	}

	if err := config.Outputs.SetOutput(ctx, OutputKeyParse, specJSON); err != nil {
		return OutcomeExecute, fmt.Errorf("error publishing job spec: %w", err)
	}

	logger.DebugContext(ctx, "riverscript: Published job spec in parse-only mode",
		slog.String("job", spec.Name), slog.Int("num_inputs", len(spec.Inputs)), slog.Int("num_outputs", len(spec.Outputs)))

	return OutcomeSpecOnly, nil
}
