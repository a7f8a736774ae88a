package voice

import (
	"context"
	"time"

	"github.com/viant/agentpay/model"
)

// AnswerFunc decides a pending approval call.
// Return (true, transcript) to approve
//
//	(false, transcript) to reject.
type AnswerFunc func(v *model.VoiceApproval) (approved bool, transcript string)

// AutoAnswer starts a goroutine that polls pending transaction approval calls
// and completes every connected one with fn. It returns stop(); call it (or
// cancel ctx) to exit.
func AutoAnswer(ctx context.Context,
	svc *Service,
	fn AnswerFunc,
	interval time.Duration) (stop func()) {

	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				pending, _ := svc.Pending(ctx)
				for _, v := range pending {
					if v.Purpose != model.PurposeTransactionApproval || v.Status == model.VoiceRequested {
						continue
					}
					ok, transcript := fn(v)
					_, _, _ = svc.Complete(ctx, v.ID, transcript, ok, nil)
				}
			}
		}
	}()
	return func() { close(done) }
}

// AutoApprove automatically approves all pending calls
func AutoApprove(ctx context.Context,
	svc *Service,
	interval time.Duration) func() {
	return AutoAnswer(ctx, svc,
		func(*model.VoiceApproval) (bool, string) {
			return true, "Agent: I need your approval for a transaction. User: Yes, approved."
		}, interval)
}

// AutoReject automatically rejects all pending calls
func AutoReject(ctx context.Context,
	svc *Service,
	interval time.Duration) func() {
	return AutoAnswer(ctx, svc,
		func(*model.VoiceApproval) (bool, string) {
			return false, "Agent: I need your approval for a transaction. User: No, do not proceed."
		}, interval)
}
