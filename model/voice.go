package model

import (
	"fmt"
	"time"
)

// VoiceStatus represents a voice approval call state.
type VoiceStatus string

const (
	VoiceRequested VoiceStatus = "requested"
	VoiceRinging   VoiceStatus = "ringing"
	VoiceActive    VoiceStatus = "active"
	VoiceCompleted VoiceStatus = "completed"
	VoiceFailed    VoiceStatus = "failed"
)

// IsTerminal reports whether the call reached completed or failed.
func (s VoiceStatus) IsTerminal() bool {
	return s == VoiceCompleted || s == VoiceFailed
}

var voiceTransitions = map[VoiceStatus][]VoiceStatus{
	VoiceRequested: {VoiceRinging, VoiceFailed},
	VoiceRinging:   {VoiceActive, VoiceFailed},
	VoiceActive:    {VoiceCompleted, VoiceFailed},
}

// VoiceOutcome is exposed once the call is terminal. Notification calls ask
// for no decision and end delivered.
type VoiceOutcome string

const (
	OutcomeApproved  VoiceOutcome = "approved"
	OutcomeRejected  VoiceOutcome = "rejected"
	OutcomeFailed    VoiceOutcome = "failed"
	OutcomeDelivered VoiceOutcome = "delivered"
)

// VoiceDirection tells who placed the call.
type VoiceDirection string

const (
	DirectionIncoming VoiceDirection = "incoming"
	DirectionOutgoing VoiceDirection = "outgoing"
)

// VoicePurpose tells why the call was placed.
type VoicePurpose string

const (
	PurposeTransactionApproval VoicePurpose = "transaction_approval"
	PurposeNotification        VoicePurpose = "notification"
	PurposeEmergency           VoicePurpose = "emergency"
)

// Voice failure reasons.
const (
	FailureTimeout       = "timeout"
	FailureCancelled     = "cancelled"
	FailureProviderError = "provider-error"
	FailureDropped       = "dropped"
)

// VoiceApproval is one confirmation call and its state.
type VoiceApproval struct {
	ID              string         `json:"id"`
	ProviderCallID  string         `json:"providerCallId,omitempty"`
	Direction       VoiceDirection `json:"direction"`
	Purpose         VoicePurpose   `json:"purpose"`
	Status          VoiceStatus    `json:"status"`
	Outcome         VoiceOutcome   `json:"outcome,omitempty"`
	FailureReason   string         `json:"failureReason,omitempty"`
	DurationSeconds *float64       `json:"durationSeconds,omitempty"`
	Transcript      string         `json:"transcript,omitempty"`
	TransactionID   string         `json:"transactionId,omitempty"`
	StartedAt       time.Time      `json:"startedAt"`
	EndedAt         *time.Time     `json:"endedAt,omitempty"`
}

// RecordID returns the storage key.
func (v *VoiceApproval) RecordID() string { return v.ID }

// State returns the status as string, used by storage filters.
func (v *VoiceApproval) State() string { return string(v.Status) }

// Created returns the start time, used by storage backends.
func (v *VoiceApproval) Created() time.Time { return v.StartedAt }

// Transition moves the call to the next state.
func (v *VoiceApproval) Transition(to VoiceStatus) error {
	for _, candidate := range voiceTransitions[v.Status] {
		if candidate == to {
			v.Status = to
			return nil
		}
	}
	return fmt.Errorf("voice approval %s: invalid transition %s -> %s", v.ID, v.Status, to)
}

// Complete records the human decision and closes the call.
func (v *VoiceApproval) Complete(transcript string, approved bool, duration *float64, at time.Time) error {
	if err := v.Transition(VoiceCompleted); err != nil {
		return err
	}
	v.Transcript = transcript
	if approved {
		v.Outcome = OutcomeApproved
	} else {
		v.Outcome = OutcomeRejected
	}
	if duration == nil {
		seconds := at.Sub(v.StartedAt).Seconds()
		duration = &seconds
	}
	v.DurationSeconds = duration
	v.EndedAt = &at
	return nil
}

// Conclude closes a notification call once its message was played.
func (v *VoiceApproval) Conclude(transcript string, duration *float64, at time.Time) error {
	if err := v.Complete(transcript, false, duration, at); err != nil {
		return err
	}
	v.Outcome = OutcomeDelivered
	return nil
}

// Fail closes the call without a decision.
func (v *VoiceApproval) Fail(reason string, at time.Time) error {
	if err := v.Transition(VoiceFailed); err != nil {
		return err
	}
	v.Outcome = OutcomeFailed
	v.FailureReason = reason
	v.EndedAt = &at
	return nil
}

// Clone returns a copy safe to hand out.
func (v *VoiceApproval) Clone() *VoiceApproval {
	if v == nil {
		return nil
	}
	ret := *v
	if v.DurationSeconds != nil {
		d := *v.DurationSeconds
		ret.DurationSeconds = &d
	}
	if v.EndedAt != nil {
		ts := *v.EndedAt
		ret.EndedAt = &ts
	}
	return &ret
}
