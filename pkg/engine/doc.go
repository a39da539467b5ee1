// Package engine runs declarative provisioning steps against a host.
//
// # Overview
//
// A provisioning run has four parts:
//
//  1. Steps - each pairs a side-effect-free precondition with an apply action
//  2. Ordering - DAGBuilder orders steps by DependsOn, declared order breaks ties
//  3. Execution - Executor evaluates steps one at a time against a HostState snapshot
//  4. Report - counts, the first failure and the operator's manual follow-ups
//
// # Execution Model
//
// For every step in order the Executor evaluates the precondition. A
// satisfied step is recorded as skipped. Otherwise the apply action runs
// with a private copy of the snapshot and returns it updated. The first
// failure aborts the run: the Report is Aborted, names the failed step, and
// no later step is evaluated. There are no retries and no rollback.
//
// Cancelling the context never interrupts an apply action in flight. It is
// observed before the next step, which is then recorded as failed with
// code ErrCodeInterrupted.
//
// # Run States
//
//	NotStarted -> Running -> Completed
//	                      -> Aborted
//
// # Observers
//
// Logging, metrics, tracing and the run journal plug in as Observers and
// see every step result as it is produced.
//
// # Error Classification
//
//   - Validation: invalid configuration or step graph, raised before any step
//   - Apply: a step's apply action failed and the run halted
//   - Host: the target could not be reached or probed
//   - Internal: a bug in the engine
package engine
