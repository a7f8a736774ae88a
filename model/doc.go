// Package model defines the transaction, voice approval and agent
// configuration records together with their state machines and the error
// taxonomy shared by every agentpay component.
package model
