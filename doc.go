/*
Package riverscript lets jobs declare a typed parameter contract, and lets
clients wait on remotely executing jobs without polling.

A job describes the inputs it accepts and the outputs it produces as a list of
parameters. A job runner can ask for this contract without executing the job
by running it in parse-only mode, in which case the job publishes its contract
as JSON to an output slot and stops. Submitted inputs are checked against the
contract before a job runs, producing a human readable report of every
problem found.

# Declaring parameters

Parameters are built with one constructor per value kind, then passed to
Declare along with a job name and description:

	spec, outcome, err := riverscript.Declare(ctx, &riverscript.Config{
		Outputs:   session,
		ParseOnly: riverscript.ParseOnlyFromEnv(),
	}, nil,
		"resize", "Resizes an image.",
		riverscript.Integer("width", &riverscript.ParamOpts{Min: ptr(1), Max: ptr(4096)}),
		riverscript.Text("mode", &riverscript.ParamOpts{UseDefault: true}),
		riverscript.List("sizes", &riverscript.ParamOpts{Of: scripttype.NewInteger(0)}),
		riverscript.Text("path", nil).Out(),
	)
	if err != nil {
		return err
	}
	if outcome == riverscript.OutcomeSpecOnly {
		return nil
	}

Each parameter has a prototype, a zero value of its kind which submitted
values are compared against. Collection parameters may carry an exemplar
member with [ParamOpts].Of, in which case every member of a submitted
collection is compared against the exemplar.

Job specs can also be built with [NewJobSpec], loaded from HCL files with
package scripthcl, or decoded from the JSON that parse-only mode publishes
with [ParseJobSpecJSON].

# Validating inputs

[ValidateInputs] checks a map of submitted inputs against a spec. Every
problem is reported rather than stopping at the first, and each report line
is categorized:

	report := riverscript.ValidateInputs(ctx, spec, inputs, session)
	if !report.Valid() {
		fmt.Printf("invalid inputs:\n%s", report)
	}

Missing parameters that use a default have their prototype installed through
the given sink, which is usually a session from package scriptsession.

# Process callbacks

A [ProcessCallback] is published on an endpoint (see package scriptendpoint)
and registered with a remote process, whose executor sends it exactly one
terminal notification when the process finishes, is cancelled, or is killed.
Callers block on it with a timeout or a context:

	callback, err := riverscript.NewProcessCallback(ctx, endpoint, process, nil)
	if err != nil {
		return err
	}
	defer callback.Close(ctx)

	state, err := callback.Wait(ctx)

See package riverscripttest for test helpers.
*/
package riverscript
