// Package runner executes discovered test cases.
//
// The main components form a hierarchy, each level bracketing its work with a
// starting and a finished event on the message bus:
//   - TestAssemblyRunner: partitions cases by collection, owns cancellation and the failure policy
//   - TestCollectionRunner: creates collection fixtures and drives the class runners
//   - TestClassRunner: creates class fixtures, selects the constructor and orders the cases
//   - TestMethodRunner: runs the cases of one method in order
//   - TestCaseRunner: produces the tests of a case, enumerating theory data when delayed
//   - TestRunner: reports the outcome of one test
//   - TestInvoker: constructs the instance, runs hooks and the body, and disposes
//
// Failures are collected in an aggregator at every level so that cleanup
// failures never mask body failures. Errors returned from the runners are
// reserved for a broken message bus, which is fatal to the run.
package runner
