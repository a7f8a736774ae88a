// Package orchestrator drives a transaction from submission to a terminal
// status: policy evaluation, approval decision, optional voice confirmation
// and settlement. Every status transition is persisted before the matching
// lifecycle event is published.
package orchestrator
