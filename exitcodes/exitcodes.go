// Package exitcodes defines the standard exit codes used by op-testkit.
package exitcodes

// Exit code constants used by op-testkit
//
// * Success (0): every selected test passed or was skipped
// * TestFailure (1): at least one test or cleanup routine failed
// * RuntimeErr (2): the engine could not complete the run (bad configuration,
//   sink failures, engine error events)
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors
)
