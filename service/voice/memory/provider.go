// Package memory provides an in-process voice provider that simulates the
// telephony vendor.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/agentpay/internal/clock"
	"github.com/viant/agentpay/internal/idgen"
	"github.com/viant/agentpay/model"
	"github.com/viant/agentpay/service/voice"
)

var transcripts = map[model.VoicePurpose]string{
	model.PurposeTransactionApproval: "Agent: Hello, I need your approval for a transaction.",
	model.PurposeNotification:        "Agent: This is a notification about your recent transaction.",
	model.PurposeEmergency:           "Agent: Emergency stop has been activated. All transactions have been halted.",
}

type call struct {
	request    voice.CallRequest
	status     model.VoiceStatus
	startedAt  time.Time
	endedAt    time.Time
	transcript string
	approved   *bool
	reason     string
}

// Provider is a simulated voice vendor. Calls ring on request and connect once
// answerAfter has elapsed; they end through Answer, EndCall or DropCall.
type Provider struct {
	mux         sync.Mutex
	calls       map[string]*call
	answerAfter time.Duration
	requestErr  error
}

// Option configures the provider.
type Option func(p *Provider)

// WithAnswerAfter sets the ringing time before a call becomes active
func WithAnswerAfter(d time.Duration) Option {
	return func(p *Provider) { p.answerAfter = d }
}

// New creates a simulated provider
func New(opts ...Option) *Provider {
	ret := &Provider{calls: make(map[string]*call)}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// SetRequestError makes every subsequent RequestCall fail with err; nil resets it.
func (p *Provider) SetRequestError(err error) {
	p.mux.Lock()
	p.requestErr = err
	p.mux.Unlock()
}

// RequestCall registers a ringing call.
func (p *Provider) RequestCall(_ context.Context, request *voice.CallRequest) (*voice.CallHandle, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.requestErr != nil {
		return nil, p.requestErr
	}
	handle := &voice.CallHandle{ID: idgen.Prefixed("vapi")}
	p.calls[handle.ID] = &call{request: *request, status: model.VoiceRinging, startedAt: clock.Now()}
	return handle, nil
}

// GetStatus returns the simulated call status.
func (p *Provider) GetStatus(_ context.Context, handle voice.CallHandle) (*voice.CallStatus, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	c, ok := p.calls[handle.ID]
	if !ok {
		return nil, fmt.Errorf("call %s not found", handle.ID)
	}
	if c.status == model.VoiceRinging && clock.Now().Sub(c.startedAt) >= p.answerAfter {
		c.status = model.VoiceActive
	}
	ret := &voice.CallStatus{Handle: handle, Status: c.status, Reason: c.reason}
	if c.status == model.VoiceCompleted {
		ret.Transcript = c.transcript
		duration := c.endedAt.Sub(c.startedAt).Seconds()
		ret.Duration = &duration
		if c.approved != nil {
			approved := *c.approved
			ret.Approved = &approved
		}
	}
	return ret, nil
}

// Answer simulates the remote party giving a decision on the call.
func (p *Provider) Answer(handle string, approved bool, transcript string) error {
	return p.end(handle, func(c *call) {
		c.status = model.VoiceCompleted
		c.approved = &approved
		c.transcript = transcript
	})
}

// EndCall hangs up the call without a recorded decision.
func (p *Provider) EndCall(_ context.Context, handle voice.CallHandle) error {
	return p.end(handle.ID, func(c *call) {
		c.status = model.VoiceCompleted
		c.transcript = transcripts[c.request.Purpose]
	})
}

// DropCall simulates the line dropping.
func (p *Provider) DropCall(handle string) error {
	return p.end(handle, func(c *call) {
		c.status = model.VoiceFailed
		c.reason = model.FailureDropped
	})
}

func (p *Provider) end(handle string, apply func(c *call)) error {
	p.mux.Lock()
	defer p.mux.Unlock()
	c, ok := p.calls[handle]
	if !ok {
		return fmt.Errorf("call %s not found", handle)
	}
	if c.status.IsTerminal() {
		return nil
	}
	apply(c)
	c.endedAt = clock.Now()
	return nil
}

// Requests returns the number of calls placed.
func (p *Provider) Requests() int {
	p.mux.Lock()
	defer p.mux.Unlock()
	return len(p.calls)
}

// Request returns the request that opened the call.
func (p *Provider) Request(handle string) (*voice.CallRequest, bool) {
	p.mux.Lock()
	defer p.mux.Unlock()
	c, ok := p.calls[handle]
	if !ok {
		return nil, false
	}
	request := c.request
	return &request, true
}

var (
	_ voice.Provider   = (*Provider)(nil)
	_ voice.Terminator = (*Provider)(nil)
)
