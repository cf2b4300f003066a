package riverscript_test

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/riverscript"
	"github.com/riverqueue/riverscript/internal/util/ptrutil"
	"github.com/riverqueue/riverscript/internal/util/slogutil"
	"github.com/riverqueue/riverscript/scriptsession"
	"github.com/riverqueue/riverscript/scripttype"
)

// Example_declare demonstrates a job declaring its parameters, then checking
// the inputs it was given against them.
func Example_declare() {
	ctx := context.Background()

	logger := slog.New(&slogutil.SlogMessageOnlyHandler{Level: slog.LevelWarn})

	session := scriptsession.NewSession(scriptsession.NewMemoryStore(), &scriptsession.Config{Logger: logger})
	if err := session.SetInput(ctx, "width", scripttype.NewInteger(8000)); err != nil {
		panic(err)
	}

	spec, outcome, err := riverscript.Declare(ctx, &riverscript.Config{
		Logger:  logger,
		Outputs: session,
	}, nil,
		"resize", "Resizes an image.",
		riverscript.Integer("width", &riverscript.ParamOpts{Min: ptrutil.Ptr(int64(1)), Max: ptrutil.Ptr(int64(4096))}),
		riverscript.Integer("height", nil),
		riverscript.Text("mode", &riverscript.ParamOpts{UseDefault: true}),
		riverscript.Text("path", nil).Out(),
	)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Outcome: %s\n", outcome)

	inputs, err := session.Inputs(ctx)
	if err != nil {
		panic(err)
	}

	report := riverscript.ValidateInputs(ctx, spec, inputs, session)
	fmt.Printf("Problems:\n%s", report)

	mode, err := session.Input(ctx, "mode")
	if err != nil {
		panic(err)
	}
	fmt.Printf("Installed default for mode: %q\n", mode)

	// Output:
	// Outcome: execute
	// Problems:
	// 	MISSING INPUT   ---   height
	// 	OUT OF BOUNDS   ---   8000 is above max 4096
	// Installed default for mode: ""
}

// Example_parseOnly demonstrates a job run in parse-only mode, in which it
// publishes its parameter contract instead of executing.
func Example_parseOnly() {
	ctx := context.Background()

	logger := slog.New(&slogutil.SlogMessageOnlyHandler{Level: slog.LevelWarn})

	session := scriptsession.NewSession(scriptsession.NewMemoryStore(), &scriptsession.Config{Logger: logger})

	_, outcome, err := riverscript.Declare(ctx, &riverscript.Config{
		Logger:    logger,
		Outputs:   session,
		ParseOnly: true, // normally riverscript.ParseOnlyFromEnv()
	}, nil,
		"resize", "Resizes an image.",
		riverscript.Integer("width", nil),
		riverscript.List("sizes", &riverscript.ParamOpts{Of: scripttype.NewInteger(0), Out: true}),
	)
	if err != nil {
		panic(err)
	}
	if outcome == riverscript.OutcomeSpecOnly {
		fmt.Println("Published spec instead of executing")
	}

	specJSON, err := session.Output(ctx, riverscript.OutputKeyParse)
	if err != nil {
		panic(err)
	}

	spec, err := riverscript.ParseJobSpecJSON(specJSON)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Job %q has inputs %v and outputs %v\n", spec.Name, spec.InputNames(), spec.OutputNames())

	// Output:
	// Published spec instead of executing
	// Job "resize" has inputs [width sizes] and outputs [sizes]
}
