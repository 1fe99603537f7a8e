// Package operations runs one export as an ordered list of steps.
//
// A Step is a single unit of work: sign in, open the list page, fire the
// export, acquire the file, keep the latest one, validate it, load it, clean
// it, archive it and publish it. The Runner executes steps in order and stops
// at the first failure; the remaining steps are marked skipped. Every step
// gets its own span and its duration and outcome are recorded as metrics.
//
// Steps exchange their results through RunState:
//
//	state := operations.NewRunState(runID, table)
//	runner := operations.NewRunner(tracer, logger)
//	err := runner.Run(ctx, state, pipeline.Steps())
//
// A step that has nothing to do returns Skip(reason); the runner records it
// as skipped and moves on.
package operations
