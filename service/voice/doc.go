// Package voice models confirmation calls placed to a human before a
// transaction is settled.
//
// A VoiceApproval moves requested → ringing → active → completed, or to failed
// from any non-terminal state. The Service persists each approval, dials it
// through a Provider, and lets callers Await the terminal outcome within a
// wait window. Completion and failure are applied exactly once; repeated
// requests return the recorded outcome.
package voice
