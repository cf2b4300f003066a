// Package riverscriptcli provides an implementation for the riverscript CLI.
//
// This package is largely for internal use and doesn't provide the same API
// guarantees as the main riverscript modules. Breaking API changes will be
// made without warning.
package riverscriptcli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/riverqueue/riverscript"
	"github.com/riverqueue/riverscript/scripthcl"
	"github.com/riverqueue/riverscript/scriptsession"
	"github.com/riverqueue/riverscript/scripttype"
)

// CLI provides a common base of commands for the riverscript CLI.
type CLI struct {
	out io.Writer
}

func NewCLI() *CLI {
	return &CLI{
		out: os.Stdout,
	}
}

// BaseCommandSet provides a base riverscript CLI command set which may be
// further augmented with additional commands.
func (c *CLI) BaseCommandSet() *cobra.Command {
	var rootOpts struct {
		Debug   bool
		Verbose bool
	}
	rootCmd := &cobra.Command{
		Use:   "riverscript",
		Short: "Provides command line facilities for riverscript jobs",
		Long: strings.TrimSpace(`
Provides command line facilities for riverscript jobs: printing the parameter
contract of jobs declared in files, checking a set of inputs against one, and
migrating database backed session stores.
		`),
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Usage()
		},
	}
	rootCmd.PersistentFlags().BoolVar(&rootOpts.Debug, "debug", false, "output maximum logging verbosity (debug level)")
	rootCmd.PersistentFlags().BoolVarP(&rootOpts.Verbose, "verbose", "v", false, "output additional logging verbosity (info level)")
	rootCmd.MarkFlagsMutuallyExclusive("debug", "verbose")

	ctx := context.Background()

	makeLogger := func() *slog.Logger {
		switch {
		case rootOpts.Debug:
			return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelDebug}))
		case rootOpts.Verbose:
			return slog.New(tint.NewHandler(os.Stderr, nil))
		default:
			return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelWarn}))
		}
	}

	// Make a bundle for RunCommand. Takes a database URL pointer because not
	// every command takes a database URL.
	makeCommandBundle := func(databaseURL *string) *RunCommandBundle {
		return &RunCommandBundle{
			DatabaseURL: databaseURL,
			Logger:      makeLogger(),
			OutStd:      c.out,
		}
	}

	mustMarkFlagRequired := func(cmd *cobra.Command, name string) {
		// We just panic here because this will never happen outside of an error
		// in development.
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}

	addDatabaseURLFlag := func(cmd *cobra.Command, databaseURL *string) {
		cmd.Flags().StringVar(databaseURL, "database-url", "", "URL of the session database (should look like `postgres://...` or `sqlite://...`")
	}

	// params and validate both operate on a job loaded from files.
	addJobFlags := func(cmd *cobra.Command, opts *jobOpts) {
		addDatabaseURLFlag(cmd, &opts.DatabaseURL)
		cmd.Flags().StringSliceVarP(&opts.File, "file", "f", nil, "file or directory of job declarations (`.hcl` or `.json`, can be multiple)")
		cmd.Flags().StringVar(&opts.Job, "job", "", "name of the job to use (required if files declare more than one)")
		cmd.Flags().StringVar(&opts.SessionID, "session-id", "", "session to use (requires --database-url; default: a new session)")
		mustMarkFlagRequired(cmd, "file")
	}

	// params
	{
		var opts paramsOpts

		cmd := &cobra.Command{
			Use:   "params",
			Short: "Print the parameter contract of a job",
			Long: strings.TrimSpace(`
Loads job declarations from --file and emits the parameter contract of one of
them the same way a job run in parse-only mode does.

By default the contract is printed to stdout as JSON. With --database-url, it's
instead published as the "parse" output of a session in that database, which is
where a job runner looks for it:

    riverscript params --file jobs/ --job resize
    riverscript params --file jobs/ --job resize --database-url sqlite://sessions.sqlite3
	`),
			Run: func(cmd *cobra.Command, args []string) {
				if err := RunCommand(ctx, makeCommandBundle(&opts.DatabaseURL), &params{}, &opts); err != nil {
					fmt.Fprintf(os.Stderr, "failed: %s\n", err)
					os.Exit(1)
				}
			},
		}
		addJobFlags(cmd, &opts.jobOpts)
		rootCmd.AddCommand(cmd)
	}

	// migrate-down and migrate-up share a set of options, so this is a way of
	// plugging in all the right flags to both so options and docstrings stay
	// consistent.
	addMigrateFlags := func(cmd *cobra.Command, opts *migrateOpts) {
		addDatabaseURLFlag(cmd, &opts.DatabaseURL)
		mustMarkFlagRequired(cmd, "database-url")
		cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "maximum number of steps to migrate")
	}

	// migrate-down
	{
		var opts migrateOpts

		cmd := &cobra.Command{
			Use:   "migrate-down",
			Short: "Run session store down migrations",
			Long: strings.TrimSpace(`
Run down migrations to reverse the session store's database schema changes.

Defaults to running a single down migration. This behavior can be changed with
--max-steps.
	`),
			Run: func(cmd *cobra.Command, args []string) {
				if err := RunCommand(ctx, makeCommandBundle(&opts.DatabaseURL), &migrateDown{}, &opts); err != nil {
					fmt.Fprintf(os.Stderr, "failed: %s\n", err)
					os.Exit(1)
				}
			},
		}
		addMigrateFlags(cmd, &opts)
		rootCmd.AddCommand(cmd)
	}

	// migrate-up
	{
		var opts migrateOpts

		cmd := &cobra.Command{
			Use:   "migrate-up",
			Short: "Run session store up migrations",
			Long: strings.TrimSpace(`
Run up migrations to raise the database schema necessary to store sessions.

Defaults to running all up migrations that aren't yet run. This behavior can be
restricted with --max-steps.
	`),
			Run: func(cmd *cobra.Command, args []string) {
				if err := RunCommand(ctx, makeCommandBundle(&opts.DatabaseURL), &migrateUp{}, &opts); err != nil {
					fmt.Fprintf(os.Stderr, "failed: %s\n", err)
					os.Exit(1)
				}
			},
		}
		addMigrateFlags(cmd, &opts)
		rootCmd.AddCommand(cmd)
	}

	// validate
	{
		var opts validateOpts

		cmd := &cobra.Command{
			Use:   "validate",
			Short: "Validate inputs against a job's parameter contract",
			Long: strings.TrimSpace(`
Validates a set of inputs against the parameter contract of a job loaded from
--file, printing a report of every problem found and exiting with a non-zero
status if there were any.

Inputs are a JSON object given with --inputs or read from --inputs-file. Values
may be plain JSON or tagged with their type:

    riverscript validate --file jobs/ --job resize --inputs '{"width": 800}'
    riverscript validate --file jobs/ --job resize --inputs '{"origin": {"kind": "point", "value": {"x": 0, "y": 0}}}'

With --database-url, inputs are validated on top of those already stored in
the session from --session-id, given inputs are stored to it, and defaults are
installed to it for parameters that use them.
	`),
			Run: func(cmd *cobra.Command, args []string) {
				if err := RunCommand(ctx, makeCommandBundle(&opts.DatabaseURL), &validate{}, &opts); err != nil {
					fmt.Fprintf(os.Stderr, "failed: %s\n", err)
					os.Exit(1)
				}
			},
		}
		addJobFlags(cmd, &opts.jobOpts)
		cmd.Flags().StringVar(&opts.Inputs, "inputs", "", "inputs as a JSON object")
		cmd.Flags().StringVar(&opts.InputsFile, "inputs-file", "", "path to a file containing inputs as a JSON object")
		cmd.MarkFlagsMutuallyExclusive("inputs", "inputs-file")
		rootCmd.AddCommand(cmd)
	}

	rootCmd.SetOut(c.out)

	return rootCmd
}

//
// jobOpts
//

type jobOpts struct {
	DatabaseURL string
	File        []string
	Job         string
	SessionID   string
}

func (o *jobOpts) Validate() error {
	if len(o.File) < 1 {
		return errors.New("at least one file is required")
	}

	if o.SessionID != "" && o.DatabaseURL == "" {
		return errors.New("session ID requires a database URL")
	}

	return nil
}

// loadJobSpec loads job declarations from the given files and directories and
// returns the one named by opts.Job. JSON files hold a single spec in the form
// printed by the params command. Everything else is read as HCL.
func loadJobSpec(ctx context.Context, logger *slog.Logger, opts *jobOpts) (*riverscript.JobSpec, error) {
	var (
		hclPaths []string
		specs    []*riverscript.JobSpec
	)
	for _, path := range opts.File {
		if filepath.Ext(path) != ".json" {
			hclPaths = append(hclPaths, path)
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading file: %w", err)
		}

		spec, err := riverscript.ParseJobSpecJSON(data)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", path, err)
		}
		specs = append(specs, spec)
	}

	if len(hclPaths) > 0 {
		hclSpecs, err := scripthcl.NewLoader(&scripthcl.Config{Logger: logger}).Load(ctx, hclPaths...)
		if err != nil {
			return nil, err
		}
		specs = append(specs, hclSpecs...)
	}

	return selectJobSpec(specs, opts.Job)
}

func selectJobSpec(specs []*riverscript.JobSpec, job string) (*riverscript.JobSpec, error) {
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name
	}
	slices.Sort(names)

	if job == "" {
		switch len(specs) {
		case 0:
			return nil, errors.New("no jobs found")
		case 1:
			return specs[0], nil
		}
		return nil, fmt.Errorf("found multiple jobs (%s); select one with --job", strings.Join(names, ", "))
	}

	for _, spec := range specs {
		if spec.Name == job {
			return spec, nil
		}
	}
	return nil, fmt.Errorf("job %q not found; available jobs: %s", job, strings.Join(names, ", "))
}

//
// params
//

type paramsOpts struct {
	jobOpts
}

type params struct {
	CommandBase
}

func (c *params) Run(ctx context.Context, opts *paramsOpts) (bool, error) {
	spec, err := loadJobSpec(ctx, c.Logger, &opts.jobOpts)
	if err != nil {
		return false, err
	}

	var (
		outputs riverscript.OutputSink = &writerOutputSink{out: c.Out}
		session *scriptsession.Session
	)
	if c.Store != nil {
		session = scriptsession.NewSession(c.Store, &scriptsession.Config{ID: opts.SessionID, Logger: c.Logger})
		outputs = session
	}

	if _, err := riverscript.EmitSpec(ctx, &riverscript.Config{
		Logger:    c.Logger,
		Outputs:   outputs,
		ParseOnly: true,
	}, spec); err != nil {
		return false, err
	}

	if session != nil {
		fmt.Fprintf(c.Out, "published job spec %q to session %s\n", spec.Name, session.ID())
	}

	return true, nil
}

// writerOutputSink is an output sink that prints outputs as indented JSON.
type writerOutputSink struct {
	out io.Writer
}

func (s *writerOutputSink) SetOutput(ctx context.Context, key string, value []byte) error {
	if !gjson.ValidBytes(value) {
		return fmt.Errorf("output %q is not valid JSON", key)
	}

	_, err := fmt.Fprint(s.out, gjson.GetBytes(value, "@pretty").Raw)
	return err
}

//
// migrate-down and migrate-up
//

type migrateOpts struct {
	DatabaseURL string
	MaxSteps    int
}

func (o *migrateOpts) Validate() error {
	if o.DatabaseURL == "" {
		return errors.New("database URL cannot be empty")
	}

	if o.MaxSteps < 0 {
		return errors.New("max steps cannot be negative")
	}

	return nil
}

type migrateDown struct {
	CommandBase
}

func (c *migrateDown) Run(ctx context.Context, opts *migrateOpts) (bool, error) {
	// Default to applying only one migration maximum on the down direction.
	if opts.MaxSteps == 0 {
		opts.MaxSteps = 1
	}

	return c.migrate(ctx, scriptsession.MigrateDirectionDown, opts)
}

type migrateUp struct {
	CommandBase
}

func (c *migrateUp) Run(ctx context.Context, opts *migrateOpts) (bool, error) {
	return c.migrate(ctx, scriptsession.MigrateDirectionUp, opts)
}

func (b *CommandBase) migrate(ctx context.Context, direction scriptsession.MigrateDirection, opts *migrateOpts) (bool, error) {
	if b.Store == nil {
		return false, errors.New("database URL cannot be empty")
	}

	start := time.Now()

	versions, err := b.Store.Migrate(ctx, direction, opts.MaxSteps)
	if err != nil {
		return false, err
	}

	migratePrintResult(b.Out, opts, versions, direction, time.Since(start))

	return true, nil
}

func migratePrintResult(out io.Writer, opts *migrateOpts, versions []int, direction scriptsession.MigrateDirection, duration time.Duration) {
	if len(versions) < 1 {
		fmt.Fprintf(out, "no migrations to apply\n")
		return
	}

	for _, version := range versions {
		fmt.Fprintf(out, "applied migration %03d [%s]\n", version, direction)
	}

	fmt.Fprintf(out, "migrated %d version(s) in %s\n", len(versions), roundDuration(duration))

	// Only prints if more steps than available were requested.
	if opts.MaxSteps > 0 && len(versions) < opts.MaxSteps {
		fmt.Fprintf(out, "no more migrations to apply\n")
	}
}

// Rounds a duration so that it doesn't show so much cluttered and not useful
// precision in printf output.
func roundDuration(duration time.Duration) time.Duration {
	switch {
	case duration > 1*time.Second:
		return duration.Truncate(10 * time.Millisecond)
	case duration < 1*time.Millisecond:
		return duration.Truncate(10 * time.Nanosecond)
	default:
		return duration.Truncate(10 * time.Microsecond)
	}
}

//
// validate
//

type validateOpts struct {
	jobOpts

	Inputs     string
	InputsFile string
}

func (o *validateOpts) Validate() error {
	if err := o.jobOpts.Validate(); err != nil {
		return err
	}

	if o.Inputs != "" && o.InputsFile != "" {
		return errors.New("inputs and inputs file are mutually exclusive")
	}

	return nil
}

type validate struct {
	CommandBase
}

func (c *validate) Run(ctx context.Context, opts *validateOpts) (bool, error) {
	spec, err := loadJobSpec(ctx, c.Logger, &opts.jobOpts)
	if err != nil {
		return false, err
	}

	inputsJSON := []byte(opts.Inputs)
	if opts.InputsFile != "" {
		inputsJSON, err = os.ReadFile(opts.InputsFile)
		if err != nil {
			return false, fmt.Errorf("error reading inputs file: %w", err)
		}
	}

	given, err := parseInputs(inputsJSON)
	if err != nil {
		return false, err
	}

	// Without a database, defaults are installed into a throwaway session.
	store := scriptsession.Store(scriptsession.NewMemoryStore())
	if c.Store != nil {
		store = c.Store
	}
	session := scriptsession.NewSession(store, &scriptsession.Config{ID: opts.SessionID, Logger: c.Logger})

	inputs, err := session.Inputs(ctx)
	if err != nil {
		return false, err
	}
	for _, key := range slices.Sorted(maps.Keys(given)) {
		if err := session.SetInput(ctx, key, given[key]); err != nil {
			return false, err
		}
		inputs[key] = given[key]
	}

	report := riverscript.ValidateInputs(ctx, spec, inputs, session)
	if !report.Valid() {
		fmt.Fprintf(c.Out, "inputs for job %q are invalid:\n%s", spec.Name, report)
		return false, nil
	}

	fmt.Fprintf(c.Out, "inputs for job %q are valid\n", spec.Name)
	if c.Store != nil {
		fmt.Fprintf(c.Out, "stored inputs to session %s\n", session.ID())
	}

	return true, nil
}

// parseInputs parses a JSON object of input values keyed by name. Empty input
// is no inputs.
func parseInputs(data []byte) (map[string]*scripttype.Value, error) {
	inputs := make(map[string]*scripttype.Value)
	if len(strings.TrimSpace(string(data))) < 1 {
		return inputs, nil
	}

	if !gjson.ValidBytes(data) {
		return nil, errors.New("inputs are not valid JSON")
	}

	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return nil, errors.New("inputs should be a JSON object keyed by input name")
	}

	var err error
	res.ForEach(func(key, value gjson.Result) bool {
		var input *scripttype.Value
		input, err = scripttype.ParseJSONResult(value)
		if err != nil {
			err = fmt.Errorf("error parsing input %q: %w", key.String(), err)
			return false
		}
		inputs[key.String()] = input
		return true
	})
	if err != nil {
		return nil, err
	}

	return inputs, nil
}
