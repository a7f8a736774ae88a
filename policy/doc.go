// Package policy decides whether a proposed transaction may proceed given the
// agent configuration and the spend already committed or reserved.
package policy
